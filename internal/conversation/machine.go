// Package conversation gates how a user's text and media are interpreted,
// based on the single step they are in inside one bot.
package conversation

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"zenyx/internal/models"
	"zenyx/internal/pkg/utils"
	"zenyx/internal/repository"
)

// RootScope is the state scope of the platform bot.
const RootScope = "root"

// Message is one inbound text or media update.
type Message struct {
	Scope  string
	UserID int64
	ChatID int64
	Text   string
	Media  *models.Media
}

// IsMedia reports whether the message carries a file.
func (m Message) IsMedia() bool {
	return m.Media != nil
}

// Handler processes a message for one state.
type Handler func(ctx context.Context, msg Message) error

// CodeHandler is tried before any state dispatch for code-shaped text.
// Returning models.ErrNotFound lets dispatch continue as if the text were ordinary.
type CodeHandler func(ctx context.Context, msg Message, code string) error

// Machine holds a static state -> handler table built once per bot.
type Machine struct {
	states   *repository.StateRepository
	handlers map[models.State]Handler
	onCode   CodeHandler
	fallback Handler
	logger   *zap.Logger
}

func New(states *repository.StateRepository, logger *zap.Logger) *Machine {
	return &Machine{
		states:   states,
		handlers: make(map[models.State]Handler),
		logger:   logger,
	}
}

// On registers the handler for state.
func (m *Machine) On(state models.State, h Handler) *Machine {
	m.handlers[state] = h
	return m
}

// OnCode registers the linking-code interceptor.
func (m *Machine) OnCode(h CodeHandler) *Machine {
	m.onCode = h
	return m
}

// Fallback registers the handler for idle users and unknown states.
func (m *Machine) Fallback(h Handler) *Machine {
	m.fallback = h
	return m
}

// Enter overwrites the user's state.
func (m *Machine) Enter(ctx context.Context, scope string, userID int64, state models.State) error {
	return m.states.Set(ctx, scope, userID, state)
}

// Reset returns the user to idle.
func (m *Machine) Reset(ctx context.Context, scope string, userID int64) error {
	return m.states.Clear(ctx, scope, userID)
}

// Current returns the user's state.
func (m *Machine) Current(ctx context.Context, scope string, userID int64) (models.State, error) {
	return m.states.Get(ctx, scope, userID)
}

// Dispatch routes msg. Code-shaped text goes to the code handler first,
// regardless of state; the store is never consulted for other text.
func (m *Machine) Dispatch(ctx context.Context, msg Message) error {
	if !msg.IsMedia() && m.onCode != nil {
		if text := strings.TrimSpace(msg.Text); utils.IsLinkingCodeShape(text) {
			err := m.onCode(ctx, msg, text)
			if !errors.Is(err, models.ErrNotFound) {
				return err
			}
		}
	}

	state, err := m.states.Get(ctx, msg.Scope, msg.UserID)
	if err != nil {
		m.logger.Warn("Failed to load conversation state", zap.Int64("user_id", msg.UserID), zap.Error(err))
		state = models.StateIdle
	}

	if state != models.StateIdle {
		if h, ok := m.handlers[state]; ok {
			return h(ctx, msg)
		}
		m.logger.Debug("No handler for state", zap.String("state", state.String()))
	}
	if m.fallback != nil {
		return m.fallback(ctx, msg)
	}
	return nil
}
