package transport

import (
	"fmt"
	"sync"
	"time"

	"zenyx/internal/models"
)

// Sent is one message recorded by Fake.
type Sent struct {
	ChatID   int64
	Text     string
	Media    *models.Media
	Photo    []byte
	Keyboard Keyboard
}

// Fake is an in-memory Messenger for tests and dry runs.
type Fake struct {
	mu       sync.Mutex
	sent     []Sent
	links    int
	Statuses map[int64]string
	Chats    map[int64]*ChatInfo
	// FailInvite makes CreateInviteLink fail for the listed chats.
	FailInvite map[int64]bool
	FailSend   bool
}

func NewFake() *Fake {
	return &Fake{
		Statuses:   make(map[int64]string),
		Chats:      make(map[int64]*ChatInfo),
		FailInvite: make(map[int64]bool),
	}
}

func (f *Fake) record(s Sent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailSend {
		return fmt.Errorf("send: %w", models.ErrTransportUnavailable)
	}
	f.sent = append(f.sent, s)
	return nil
}

func (f *Fake) SendText(chatID int64, text string, kb Keyboard) error {
	return f.record(Sent{ChatID: chatID, Text: text, Keyboard: kb})
}

func (f *Fake) SendPhotoBytes(chatID int64, png []byte, caption string, kb Keyboard) error {
	return f.record(Sent{ChatID: chatID, Text: caption, Photo: png, Keyboard: kb})
}

func (f *Fake) SendMedia(chatID int64, media models.Media, caption string, kb Keyboard) error {
	m := media
	return f.record(Sent{ChatID: chatID, Text: caption, Media: &m, Keyboard: kb})
}

func (f *Fake) CreateInviteLink(chatID int64, expireAt time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailInvite[chatID] {
		return "", fmt.Errorf("invite: %w", models.ErrTransportUnavailable)
	}
	f.links++
	return fmt.Sprintf("https://t.me/+link%d_%d", chatID, f.links), nil
}

func (f *Fake) MemberStatus(chatID, userID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.Statuses[chatID]
	if !ok {
		return "", fmt.Errorf("member: %w", models.ErrNotFound)
	}
	return status, nil
}

func (f *Fake) ChatInfo(chatID int64) (*ChatInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.Chats[chatID]
	if !ok {
		return &ChatInfo{ID: chatID, Title: fmt.Sprintf("chat %d", chatID), Type: "supergroup"}, nil
	}
	c := *info
	return &c, nil
}

// Sent returns a copy of every recorded message.
func (f *Fake) Sent() []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Sent, len(f.sent))
	copy(out, f.sent)
	return out
}

// SentTo returns the messages delivered to chatID.
func (f *Fake) SentTo(chatID int64) []Sent {
	var out []Sent
	for _, s := range f.Sent() {
		if s.ChatID == chatID {
			out = append(out, s)
		}
	}
	return out
}
