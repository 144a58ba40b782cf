// Package bot is the platform's root bot: bot creation, balance,
// withdrawals, referrals and the admin VIP trial.
package bot

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
	"gopkg.in/telebot.v3/middleware"

	"zenyx/internal/config"
	"zenyx/internal/transport"
)

const updateTimeout = 45 * time.Second

// Bot wraps the telebot instance and handlers.
type Bot struct {
	tb         *tele.Bot
	webhook    *tele.Webhook
	useWebhook bool
	cfg        *config.Config
	msgr       *transport.Telebot
	handlers   *Handlers
	logger     *zap.Logger
}

// New creates and configures the root bot.
func New(cfg *config.Config, deps Deps, logger *zap.Logger) (*Bot, error) {
	logger = logger.Named("bot")

	mode := strings.ToLower(strings.TrimSpace(cfg.Bot.UpdateMode))
	if mode == "" {
		mode = "auto"
	}

	useWebhook := true
	switch mode {
	case "polling":
		useWebhook = false
	case "webhook":
		useWebhook = true
	default: // auto
		useWebhook = strings.TrimSpace(cfg.Bot.WebhookURL) != ""
	}

	var poller tele.Poller
	var webhook *tele.Webhook
	if useWebhook {
		if strings.TrimSpace(cfg.Bot.WebhookURL) == "" {
			return nil, fmt.Errorf("BOT_WEBHOOK_URL is required when BOT_UPDATE_MODE=webhook")
		}
		webhook = &tele.Webhook{
			Listen:         "", // mounted on Echo
			Endpoint:       &tele.WebhookEndpoint{PublicURL: cfg.Bot.WebhookURL},
			DropUpdates:    true,
			AllowedUpdates: []string{"message", "callback_query"},
		}
		poller = webhook
	} else {
		poller = &tele.LongPoller{Timeout: 10 * time.Second}
	}

	tb, err := tele.NewBot(tele.Settings{
		URL:    cfg.Bot.APIURL,
		Token:  cfg.Bot.Token,
		Poller: poller,
		OnError: func(err error, c tele.Context) {
			logger.Error("telebot error", zap.Error(err))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telebot: %w", err)
	}

	botCfg := cfg.Bot
	if botCfg.Username == "" {
		botCfg.Username = tb.Me.Username
	}

	msgr := transport.NewTelebot(tb)
	b := &Bot{
		tb:         tb,
		webhook:    webhook,
		useWebhook: useWebhook,
		cfg:        cfg,
		msgr:       msgr,
		handlers:   NewHandlers(botCfg, deps, msgr, logger),
		logger:     logger,
	}
	b.registerHandlers()
	return b, nil
}

// Messenger sends through the root bot. Used for admin and wallet notices.
func (b *Bot) Messenger() transport.Messenger {
	return b.msgr
}

// WebhookHandler returns the webhook handler for mounting on Echo.
// Returns nil when running in long-polling mode.
func (b *Bot) WebhookHandler() http.Handler {
	if b.webhook == nil {
		return nil
	}
	return b.webhook
}

// Start begins polling/webhook processing. It blocks until Stop.
func (b *Bot) Start() {
	if b.useWebhook {
		b.logger.Info("Starting root bot", zap.String("mode", "webhook"), zap.String("webhook_url", b.cfg.Bot.WebhookURL))
	} else {
		if err := b.tb.RemoveWebhook(true); err != nil {
			b.logger.Warn("Failed to remove webhook before long polling", zap.Error(err))
		}
		b.logger.Info("Starting root bot", zap.String("mode", "polling"))
	}
	b.tb.Start()
}

// Stop gracefully shuts down the bot.
func (b *Bot) Stop() {
	b.tb.Stop()
}

func (b *Bot) registerHandlers() {
	b.tb.Use(middleware.Recover(), middleware.AutoRespond())

	b.tb.Handle("/start", b.handleStart)
	b.tb.Handle("/cancel", b.handleCancel)
	b.tb.Handle("/admin", b.handleAdmin)
	b.tb.Handle(tele.OnText, b.handleText)
	b.tb.Handle(tele.OnCallback, b.handleCallback)
}

func senderOf(c tele.Context) Sender {
	u := c.Sender()
	if u == nil {
		return Sender{}
	}
	return Sender{ID: u.ID, Username: u.Username, FirstName: u.FirstName, LastName: u.LastName}
}

func private(c tele.Context) bool {
	return c.Chat() != nil && c.Chat().Type == tele.ChatPrivate
}

// ── /start ────────────────────────────────────────────────────────────

func (b *Bot) handleStart(c tele.Context) error {
	if !private(c) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), updateTimeout)
	defer cancel()
	return b.handlers.Start(ctx, senderOf(c), c.Chat().ID, c.Message().Payload)
}

func (b *Bot) handleCancel(c tele.Context) error {
	if !private(c) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), updateTimeout)
	defer cancel()
	return b.handlers.Cancel(ctx, senderOf(c), c.Chat().ID)
}

func (b *Bot) handleAdmin(c tele.Context) error {
	if !private(c) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), updateTimeout)
	defer cancel()
	return b.handlers.Callback(ctx, senderOf(c), c.Chat().ID, cbAdmin)
}

// ── Text routing ──────────────────────────────────────────────────────

func (b *Bot) handleText(c tele.Context) error {
	if !private(c) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), updateTimeout)
	defer cancel()
	return b.handlers.Message(ctx, senderOf(c), c.Chat().ID, c.Text())
}

// ── Callback queries ──────────────────────────────────────────────────

func (b *Bot) handleCallback(c tele.Context) error {
	cb := c.Callback()
	if cb == nil || c.Chat() == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), updateTimeout)
	defer cancel()
	return b.handlers.Callback(ctx, senderOf(c), c.Chat().ID, cb.Data)
}
