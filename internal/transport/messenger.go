package transport

import (
	"time"

	"zenyx/internal/models"
)

// Member statuses that grant management rights in a chat.
const (
	StatusCreator       = "creator"
	StatusAdministrator = "administrator"
)

// Button is an inline keyboard button. Data is delivered verbatim to the
// callback handler; URL buttons leave Data empty.
type Button struct {
	Text string
	Data string
	URL  string
}

// Keyboard is a list of button rows.
type Keyboard [][]Button

// Row is a convenience for building a Keyboard.
func Row(buttons ...Button) []Button {
	return buttons
}

// ChatInfo is the metadata recorded for a linked group.
type ChatInfo struct {
	ID       int64
	Title    string
	Type     string
	Username string
}

// Messenger is what the core needs from the chat transport, bound to one bot.
type Messenger interface {
	SendText(chatID int64, text string, kb Keyboard) error
	SendPhotoBytes(chatID int64, png []byte, caption string, kb Keyboard) error
	SendMedia(chatID int64, media models.Media, caption string, kb Keyboard) error
	CreateInviteLink(chatID int64, expireAt time.Time) (string, error)
	MemberStatus(chatID, userID int64) (string, error)
	ChatInfo(chatID int64) (*ChatInfo, error)
}

// IsAdmin reports whether a member status grants administration.
func IsAdmin(status string) bool {
	return status == StatusCreator || status == StatusAdministrator
}
