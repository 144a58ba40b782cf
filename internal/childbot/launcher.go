package childbot

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
	"gopkg.in/telebot.v3/middleware"

	"zenyx/internal/models"
	"zenyx/internal/registry"
	"zenyx/internal/transport"
)

// updateTimeout bounds the work done for a single update.
const updateTimeout = 45 * time.Second

// Launcher builds polling child bots for the registry.
type Launcher struct {
	deps Deps
}

func NewLauncher(deps Deps) *Launcher {
	return &Launcher{deps: deps}
}

// Launch creates the telebot instance for cfg and binds its handler table.
// The identity was already checked by the registry, so getMe is skipped.
func (l *Launcher) Launch(cfg *models.BotConfig) (registry.Instance, error) {
	logger := l.deps.Logger.With(zap.String("bot", cfg.Username))

	tb, err := tele.NewBot(tele.Settings{
		URL:         l.deps.APIURL,
		Token:       cfg.Token,
		Poller:      &tele.LongPoller{Timeout: 10 * time.Second},
		Synchronous: true,
		Offline:     true,
		OnError: func(err error, c tele.Context) {
			logger.Error("telebot error", zap.Error(err))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telebot: %w", err)
	}
	tb.Me = &tele.User{ID: cfg.BotID, Username: cfg.Username, IsBot: true}

	msgr := transport.NewTelebot(tb)
	h := NewHandlers(cfg, l.deps, msgr)
	h.register(tb)

	return &instance{tb: tb, msgr: msgr, logger: logger}, nil
}

type instance struct {
	tb     *tele.Bot
	msgr   *transport.Telebot
	logger *zap.Logger
}

// Start drops pending updates and polls until Stop.
func (i *instance) Start() {
	if err := i.tb.RemoveWebhook(true); err != nil {
		i.logger.Warn("Failed to remove webhook before long polling", zap.Error(err))
	}
	i.logger.Info("Starting child bot", zap.String("mode", "polling"))
	i.tb.Start()
}

func (i *instance) Stop() {
	i.tb.Stop()
}

func (i *instance) Messenger() transport.Messenger {
	return i.msgr
}

func (h *Handlers) register(tb *tele.Bot) {
	tb.Use(middleware.Recover(), middleware.AutoRespond())

	tb.Handle("/start", h.onStart)
	tb.Handle("/cancel", h.onCancel)
	tb.Handle(tele.OnText, h.onText)
	tb.Handle(tele.OnChannelPost, h.onChannelPost)
	tb.Handle(tele.OnCallback, h.onCallback)
	for _, ev := range []string{tele.OnPhoto, tele.OnVideo, tele.OnAudio, tele.OnDocument, tele.OnAnimation} {
		tb.Handle(ev, h.onMedia)
	}
}

func senderOf(c tele.Context) Sender {
	u := c.Sender()
	if u == nil {
		return Sender{}
	}
	return Sender{ID: u.ID, Username: u.Username, FirstName: u.FirstName}
}

func isPrivate(c tele.Context) bool {
	return c.Chat() != nil && c.Chat().Type == tele.ChatPrivate
}

func (h *Handlers) onStart(c tele.Context) error {
	if !isPrivate(c) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), updateTimeout)
	defer cancel()
	return h.Start(ctx, senderOf(c), c.Chat().ID)
}

func (h *Handlers) onCancel(c tele.Context) error {
	if !isPrivate(c) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), updateTimeout)
	defer cancel()
	return h.Cancel(ctx, senderOf(c), c.Chat().ID)
}

func (h *Handlers) onText(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), updateTimeout)
	defer cancel()
	if !isPrivate(c) {
		return h.ChatText(ctx, c.Chat().ID, c.Text())
	}
	return h.Message(ctx, senderOf(c), c.Chat().ID, c.Text(), nil)
}

func (h *Handlers) onChannelPost(c tele.Context) error {
	m := c.Message()
	if m == nil || m.Text == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), updateTimeout)
	defer cancel()
	return h.ChatText(ctx, m.Chat.ID, m.Text)
}

func (h *Handlers) onMedia(c tele.Context) error {
	if !isPrivate(c) {
		return nil
	}
	media := mediaOf(c.Message())
	if media == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), updateTimeout)
	defer cancel()
	return h.Message(ctx, senderOf(c), c.Chat().ID, c.Message().Caption, media)
}

func (h *Handlers) onCallback(c tele.Context) error {
	cb := c.Callback()
	if cb == nil || c.Chat() == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), updateTimeout)
	defer cancel()
	return h.Callback(ctx, senderOf(c), c.Chat().ID, cb.Data)
}

func mediaOf(m *tele.Message) *models.Media {
	if m == nil {
		return nil
	}
	switch {
	case m.Animation != nil:
		return &models.Media{Type: models.MediaAnimation, FileID: m.Animation.FileID}
	case m.Photo != nil:
		return &models.Media{Type: models.MediaPhoto, FileID: m.Photo.FileID}
	case m.Video != nil:
		return &models.Media{Type: models.MediaVideo, FileID: m.Video.FileID}
	case m.Audio != nil:
		return &models.Media{Type: models.MediaAudio, FileID: m.Audio.FileID}
	case m.Document != nil:
		return &models.Media{Type: models.MediaDocument, FileID: m.Document.FileID}
	}
	return nil
}
