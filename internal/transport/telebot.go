package transport

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	tele "gopkg.in/telebot.v3"

	"zenyx/internal/models"
)

// Telebot adapts a telebot instance to Messenger.
type Telebot struct {
	b *tele.Bot
}

func NewTelebot(b *tele.Bot) *Telebot {
	return &Telebot{b: b}
}

// NewOffline builds a Messenger for a bot that is not polling. It skips the
// getMe call and only issues API requests.
func NewOffline(token, apiURL string) (*Telebot, error) {
	b, err := tele.NewBot(tele.Settings{
		URL:     apiURL,
		Token:   token,
		Offline: true,
	})
	if err != nil {
		return nil, fmt.Errorf("offline bot: %w", err)
	}
	return &Telebot{b: b}, nil
}

// Bot returns the underlying telebot instance.
func (t *Telebot) Bot() *tele.Bot {
	return t.b
}

func (t *Telebot) SendText(chatID int64, text string, kb Keyboard) error {
	_, err := t.b.Send(tele.ChatID(chatID), text, sendOptions(kb))
	return wrap("send message", err)
}

func (t *Telebot) SendPhotoBytes(chatID int64, png []byte, caption string, kb Keyboard) error {
	photo := &tele.Photo{File: tele.FromReader(bytes.NewReader(png)), Caption: caption}
	_, err := t.b.Send(tele.ChatID(chatID), photo, sendOptions(kb))
	return wrap("send photo", err)
}

func (t *Telebot) SendMedia(chatID int64, media models.Media, caption string, kb Keyboard) error {
	file := tele.File{FileID: media.FileID}
	var what interface{}
	switch media.Type {
	case models.MediaPhoto:
		what = &tele.Photo{File: file, Caption: caption}
	case models.MediaVideo:
		what = &tele.Video{File: file, Caption: caption}
	case models.MediaAudio:
		what = &tele.Audio{File: file, Caption: caption}
	case models.MediaDocument:
		what = &tele.Document{File: file, Caption: caption}
	case models.MediaAnimation:
		what = &tele.Animation{File: file, Caption: caption}
	default:
		return fmt.Errorf("%w: media type %q", models.ErrInvalidInput, media.Type)
	}
	_, err := t.b.Send(tele.ChatID(chatID), what, sendOptions(kb))
	return wrap("send media", err)
}

func (t *Telebot) CreateInviteLink(chatID int64, expireAt time.Time) (string, error) {
	link, err := t.b.CreateInviteLink(tele.ChatID(chatID), &tele.ChatInviteLink{
		MemberLimit:    1,
		ExpireUnixtime: expireAt.Unix(),
	})
	if err != nil {
		return "", wrap("create invite link", err)
	}
	return link.InviteLink, nil
}

func (t *Telebot) MemberStatus(chatID, userID int64) (string, error) {
	member, err := t.b.ChatMemberOf(tele.ChatID(chatID), tele.ChatID(userID))
	if err != nil {
		return "", wrap("get chat member", err)
	}
	return string(member.Role), nil
}

func (t *Telebot) ChatInfo(chatID int64) (*ChatInfo, error) {
	chat, err := t.b.ChatByID(chatID)
	if err != nil {
		return nil, wrap("get chat", err)
	}
	title := chat.Title
	if title == "" {
		title = chat.FirstName
	}
	return &ChatInfo{
		ID:       chat.ID,
		Title:    title,
		Type:     string(chat.Type),
		Username: chat.Username,
	}, nil
}

// Markup converts a Keyboard to telebot inline markup.
func Markup(kb Keyboard) *tele.ReplyMarkup {
	if len(kb) == 0 {
		return nil
	}
	rows := make([][]tele.InlineButton, 0, len(kb))
	for _, r := range kb {
		row := make([]tele.InlineButton, 0, len(r))
		for _, btn := range r {
			row = append(row, tele.InlineButton{Text: btn.Text, Data: btn.Data, URL: btn.URL})
		}
		rows = append(rows, row)
	}
	return &tele.ReplyMarkup{InlineKeyboard: rows}
}

func sendOptions(kb Keyboard) *tele.SendOptions {
	return &tele.SendOptions{ParseMode: tele.ModeHTML, ReplyMarkup: Markup(kb)}
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, tele.ErrChatNotFound):
		return fmt.Errorf("%s: %w: %v", op, models.ErrNotFound, err)
	case errors.Is(err, tele.ErrUnauthorized):
		return fmt.Errorf("%s: %w: %v", op, models.ErrUnauthorized, err)
	}
	return fmt.Errorf("%s: %w: %v", op, models.ErrTransportUnavailable, err)
}
