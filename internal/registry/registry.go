package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"zenyx/internal/models"
	"zenyx/internal/pkg/telegram"
	"zenyx/internal/pkg/utils"
	"zenyx/internal/repository"
	"zenyx/internal/transport"
)

// Instance is a live poller for one bot token.
type Instance interface {
	// Start blocks until Stop is called.
	Start()
	Stop()
	Messenger() transport.Messenger
}

// Launcher builds an Instance with its handler table bound to cfg.
type Launcher interface {
	Launch(cfg *models.BotConfig) (Instance, error)
}

// Identifier resolves a token to the bot identity.
type Identifier interface {
	Identify(ctx context.Context, token string) (*telegram.Identity, error)
}

// OfflineFactory builds a Messenger for a bot that is not running.
type OfflineFactory func(token string) (transport.Messenger, error)

// Handle describes a running bot.
type Handle struct {
	Token     string
	BotID     int64
	Username  string
	OwnerID   int64
	StartedAt time.Time
}

type entry struct {
	ready  chan struct{}
	err    error
	handle *Handle
	inst   Instance
	done   chan struct{}
}

// Options holds the platform limits enforced by Create.
type Options struct {
	MaxBotsPerUser int
}

// Registry owns the set of running child bots.
type Registry struct {
	bots     *repository.BotRepository
	users    *repository.UserRepository
	ident    Identifier
	launcher Launcher
	offline  OfflineFactory
	opts     Options
	logger   *zap.Logger

	mu       sync.Mutex
	running  map[string]*entry
	offlines map[string]transport.Messenger
}

func New(bots *repository.BotRepository, users *repository.UserRepository, ident Identifier, launcher Launcher, offline OfflineFactory, opts Options, logger *zap.Logger) *Registry {
	return &Registry{
		bots:     bots,
		users:    users,
		ident:    ident,
		launcher: launcher,
		offline:  offline,
		opts:     opts,
		logger:   logger.Named("registry"),
		running:  make(map[string]*entry),
		offlines: make(map[string]transport.Messenger),
	}
}

// Start runs the bot for token, returning the existing handle when it is
// already running. Concurrent calls for one token share a single start.
func (r *Registry) Start(ctx context.Context, token string) (*Handle, error) {
	r.mu.Lock()
	if e, ok := r.running[token]; ok {
		r.mu.Unlock()
		<-e.ready
		if e.err != nil {
			return nil, e.err
		}
		return e.handle, nil
	}
	e := &entry{ready: make(chan struct{}), done: make(chan struct{})}
	r.running[token] = e
	r.mu.Unlock()

	handle, inst, err := r.launch(ctx, token)
	if err != nil {
		r.mu.Lock()
		if r.running[token] == e {
			delete(r.running, token)
		}
		r.mu.Unlock()
		e.err = err
		close(e.ready)
		return nil, err
	}

	e.handle, e.inst = handle, inst
	close(e.ready)

	go func() {
		defer close(e.done)
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("Bot poller panicked", zap.String("bot", handle.Username), zap.Any("panic", rec))
				r.mu.Lock()
				if r.running[token] == e {
					delete(r.running, token)
				}
				r.mu.Unlock()
			}
		}()
		inst.Start()
	}()

	r.logger.Info("Bot started",
		zap.String("bot", handle.Username),
		zap.String("token", utils.MaskToken(token)),
	)
	return handle, nil
}

func (r *Registry) launch(ctx context.Context, token string) (*Handle, Instance, error) {
	cfg, err := r.bots.FindByToken(ctx, token)
	if err != nil {
		return nil, nil, err
	}

	me, err := r.ident.Identify(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	if cfg.BotID != me.ID || cfg.Username != me.Username {
		cfg, err = r.bots.Update(ctx, token, func(c *models.BotConfig) error {
			c.BotID = me.ID
			c.Username = me.Username
			return nil
		})
		if err != nil {
			return nil, nil, err
		}
	}

	inst, err := r.launcher.Launch(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("launch %s: %w", me.Username, err)
	}

	return &Handle{
		Token:     token,
		BotID:     me.ID,
		Username:  me.Username,
		OwnerID:   cfg.OwnerID,
		StartedAt: time.Now(),
	}, inst, nil
}

// Stop halts the poller for token. It returns false when the bot was not running.
func (r *Registry) Stop(token string) bool {
	r.mu.Lock()
	e, ok := r.running[token]
	r.mu.Unlock()
	if !ok {
		return false
	}

	<-e.ready
	if e.err != nil {
		return false
	}

	r.mu.Lock()
	if r.running[token] != e {
		r.mu.Unlock()
		return false
	}
	delete(r.running, token)
	r.mu.Unlock()

	e.inst.Stop()
	<-e.done
	r.logger.Info("Bot stopped", zap.String("bot", e.handle.Username))
	return true
}

// Restart stops and starts token. A failed stop is logged and ignored.
func (r *Registry) Restart(ctx context.Context, token string) (*Handle, error) {
	if !r.Stop(token) {
		r.logger.Warn("Restart on a bot that was not running", zap.String("token", utils.MaskToken(token)))
	}
	return r.Start(ctx, token)
}

// ListRunning returns the tokens of every running bot.
func (r *Registry) ListRunning() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	tokens := make([]string, 0, len(r.running))
	for token, e := range r.running {
		select {
		case <-e.ready:
			if e.err == nil {
				tokens = append(tokens, token)
			}
		default:
		}
	}
	sort.Strings(tokens)
	return tokens
}

// Handles returns the handles of every running bot.
func (r *Registry) Handles() []Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Handle, 0, len(r.running))
	for _, e := range r.running {
		select {
		case <-e.ready:
			if e.err == nil {
				out = append(out, *e.handle)
			}
		default:
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

// Messenger returns the live Messenger for token, or an offline one when the
// bot is not polling.
func (r *Registry) Messenger(token string) (transport.Messenger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.running[token]; ok {
		select {
		case <-e.ready:
			if e.err == nil {
				return e.inst.Messenger(), nil
			}
		default:
		}
	}
	if m, ok := r.offlines[token]; ok {
		return m, nil
	}
	m, err := r.offline(token)
	if err != nil {
		return nil, err
	}
	r.offlines[token] = m
	return m, nil
}

// Create claims token for ownerID, persists a fresh configuration and starts it.
func (r *Registry) Create(ctx context.Context, ownerID int64, token string) (*Handle, error) {
	if !utils.IsValidBotToken(token) {
		return nil, fmt.Errorf("%w: malformed bot token", models.ErrInvalidInput)
	}

	owner, err := r.users.FindByID(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if r.opts.MaxBotsPerUser > 0 && len(owner.Bots) >= r.opts.MaxBotsPerUser {
		return nil, fmt.Errorf("%w: at most %d bots per user", models.ErrLimitReached, r.opts.MaxBotsPerUser)
	}

	me, err := r.ident.Identify(ctx, token)
	if err != nil {
		return nil, err
	}

	cfg := &models.BotConfig{
		Token:     token,
		BotID:     me.ID,
		Username:  me.Username,
		OwnerID:   ownerID,
		Active:    true,
		CreatedAt: time.Now(),
	}
	if err := r.bots.Create(ctx, cfg); err != nil {
		return nil, err
	}

	_, err = r.users.Update(ctx, ownerID, func(u *models.User) error {
		if r.opts.MaxBotsPerUser > 0 && len(u.Bots) >= r.opts.MaxBotsPerUser {
			return fmt.Errorf("%w: at most %d bots per user", models.ErrLimitReached, r.opts.MaxBotsPerUser)
		}
		if !u.HasBot(token) {
			u.Bots = append(u.Bots, token)
		}
		return nil
	})
	if err != nil {
		r.release(ctx, 0, token)
		return nil, err
	}

	h, err := r.Start(ctx, token)
	if err != nil {
		r.release(ctx, ownerID, token)
		return nil, err
	}
	return h, nil
}

// release undoes a claim made by Create so the token can be submitted again.
// A zero ownerID leaves the user record untouched.
func (r *Registry) release(ctx context.Context, ownerID int64, token string) {
	if ownerID != 0 {
		_, err := r.users.Update(ctx, ownerID, func(u *models.User) error {
			kept := u.Bots[:0]
			for _, t := range u.Bots {
				if t != token {
					kept = append(kept, t)
				}
			}
			u.Bots = kept
			return nil
		})
		if err != nil {
			r.logger.Error("Failed to remove bot from owner", zap.Int64("owner_id", ownerID), zap.Error(err))
		}
	}
	if err := r.bots.Delete(ctx, token); err != nil {
		r.logger.Error("Failed to roll back bot claim", zap.String("token", utils.MaskToken(token)), zap.Error(err))
	}
}

// StartAll starts every active configuration. Failures are logged per bot.
func (r *Registry) StartAll(ctx context.Context) int {
	cfgs, err := r.bots.FindActive(ctx)
	if err != nil {
		r.logger.Error("Failed to list active bots", zap.Error(err))
		return 0
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		started int
	)
	for _, cfg := range cfgs {
		wg.Add(1)
		go func(token, username string) {
			defer wg.Done()
			if _, err := r.Start(ctx, token); err != nil {
				r.logger.Warn("Failed to start bot", zap.String("bot", username), zap.Error(err))
				return
			}
			mu.Lock()
			started++
			mu.Unlock()
		}(cfg.Token, cfg.Username)
	}
	wg.Wait()
	r.logger.Info("Active bots started", zap.Int("started", started), zap.Int("total", len(cfgs)))
	return started
}

// StopAll halts every running bot.
func (r *Registry) StopAll() {
	for _, token := range r.ListRunning() {
		r.Stop(token)
	}
}

// Deactivate stops the bot and marks its configuration inactive.
func (r *Registry) Deactivate(ctx context.Context, token string) error {
	r.Stop(token)
	_, err := r.bots.Update(ctx, token, func(c *models.BotConfig) error {
		c.Active = false
		return nil
	})
	return err
}

// TelegramIdentifier validates tokens with the Bot API getMe call.
type TelegramIdentifier struct {
	BaseURL string
}

func (t TelegramIdentifier) Identify(ctx context.Context, token string) (*telegram.Identity, error) {
	me, err := telegram.NewBotAPI(t.BaseURL, token).GetMe(ctx)
	if err != nil {
		if errors.Is(err, telegram.ErrUnauthorized) {
			return nil, fmt.Errorf("%w: token rejected by telegram", models.ErrInvalidInput)
		}
		return nil, fmt.Errorf("%w: %v", models.ErrTransportUnavailable, err)
	}
	if !me.IsBot {
		return nil, fmt.Errorf("%w: token does not belong to a bot", models.ErrInvalidInput)
	}
	return me, nil
}
