// Package linking binds groups and channels to a bot through one-time codes.
package linking

import (
	"context"
	"errors"
	"fmt"
	"html"
	"time"

	"go.uber.org/zap"

	"zenyx/internal/models"
	"zenyx/internal/pkg/utils"
	"zenyx/internal/repository"
	"zenyx/internal/store"
	"zenyx/internal/transport"
)

// DefaultTTL is how long an issued code stays redeemable.
const DefaultTTL = time.Hour

// MessengerSource resolves the Messenger of a bot.
type MessengerSource interface {
	Messenger(token string) (transport.Messenger, error)
}

// Service issues and redeems linking codes.
type Service struct {
	codes      *repository.CodeRepository
	bots       *repository.BotRepository
	messengers MessengerSource
	ttl        time.Duration
	maxGroups  int
	now        func() time.Time
	logger     *zap.Logger
}

func NewService(codes *repository.CodeRepository, bots *repository.BotRepository, messengers MessengerSource, ttl time.Duration, maxGroups int, logger *zap.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		codes:      codes,
		bots:       bots,
		messengers: messengers,
		ttl:        ttl,
		maxGroups:  maxGroups,
		now:        time.Now,
		logger:     logger.Named("linking"),
	}
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// RequestCode issues a fresh code for a bot the owner controls.
func (s *Service) RequestCode(ctx context.Context, botToken string, ownerID int64) (*models.LinkingCode, error) {
	cfg, err := s.bots.FindByToken(ctx, botToken)
	if err != nil {
		return nil, err
	}
	if cfg.OwnerID != ownerID {
		return nil, models.ErrUnauthorized
	}
	if s.maxGroups > 0 && len(cfg.LinkedGroups) >= s.maxGroups {
		return nil, fmt.Errorf("%w: at most %d groups per bot", models.ErrLimitReached, s.maxGroups)
	}

	for attempt := 0; attempt < 5; attempt++ {
		code := &models.LinkingCode{
			Code:      utils.GenerateLinkingCode(),
			BotToken:  botToken,
			OwnerID:   ownerID,
			ExpiresAt: s.now().Add(s.ttl),
		}
		err := s.codes.Create(ctx, code)
		if errors.Is(err, store.ErrExists) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return code, nil
	}
	return nil, fmt.Errorf("linking code: %w", store.ErrConflict)
}

// Redeem binds chatID to the code's bot. The bot must administer the chat;
// that is checked before anything is written. A code succeeds at most once.
func (s *Service) Redeem(ctx context.Context, code string, chatID int64) (*models.LinkedGroup, error) {
	lc, err := s.codes.Find(ctx, code)
	if err != nil {
		return nil, err
	}
	if lc.Expired(s.now()) {
		if err := s.codes.Delete(ctx, code); err != nil {
			s.logger.Warn("Failed to purge expired code", zap.Error(err))
		}
		return nil, models.ErrExpired
	}

	cfg, err := s.bots.FindByToken(ctx, lc.BotToken)
	if err != nil {
		return nil, err
	}
	m, err := s.messengers.Messenger(lc.BotToken)
	if err != nil {
		return nil, err
	}

	status, err := m.MemberStatus(chatID, cfg.BotID)
	if err != nil {
		return nil, fmt.Errorf("check bot rights in %d: %w", chatID, err)
	}
	if !transport.IsAdmin(status) {
		return nil, fmt.Errorf("%w: bot is %q in chat %d", models.ErrUnauthorized, status, chatID)
	}

	info, err := m.ChatInfo(chatID)
	if err != nil {
		return nil, err
	}

	if err := s.codes.Claim(ctx, code); err != nil {
		return nil, err
	}

	group := models.LinkedGroup{
		ChatID:   chatID,
		Title:    info.Title,
		Type:     info.Type,
		Username: info.Username,
	}
	_, err = s.bots.Update(ctx, lc.BotToken, func(c *models.BotConfig) error {
		if c.HasGroup(chatID) {
			return models.ErrAlreadyExists
		}
		if s.maxGroups > 0 && len(c.LinkedGroups) >= s.maxGroups {
			return models.ErrLimitReached
		}
		c.LinkedGroups = append(c.LinkedGroups, group)
		return nil
	})
	if err != nil {
		if relErr := s.codes.Release(ctx, code); relErr != nil {
			s.logger.Warn("Failed to release code", zap.Error(relErr))
		}
		return nil, err
	}

	if err := s.codes.Delete(ctx, code); err != nil {
		s.logger.Warn("Failed to delete redeemed code", zap.Error(err))
	}

	msg := fmt.Sprintf("✅ Grupo/Canal <b>%s</b> foi vinculado ao seu bot com sucesso!", html.EscapeString(group.Title))
	if err := m.SendText(lc.OwnerID, msg, nil); err != nil {
		s.logger.Debug("Owner notification failed", zap.Int64("owner_id", lc.OwnerID), zap.Error(err))
	}

	s.logger.Info("Chat linked",
		zap.String("bot", cfg.Username),
		zap.Int64("chat_id", chatID),
		zap.String("title", group.Title),
	)
	return &group, nil
}

// Lookup returns a live code without redeeming it.
func (s *Service) Lookup(ctx context.Context, code string) (*models.LinkingCode, error) {
	lc, err := s.codes.Find(ctx, code)
	if err != nil {
		return nil, err
	}
	if lc.Expired(s.now()) {
		return nil, models.ErrExpired
	}
	return lc, nil
}

// Unlink removes chatID from the owner's bot.
func (s *Service) Unlink(ctx context.Context, botToken string, ownerID, chatID int64) error {
	_, err := s.bots.Update(ctx, botToken, func(c *models.BotConfig) error {
		if c.OwnerID != ownerID {
			return models.ErrUnauthorized
		}
		kept := c.LinkedGroups[:0]
		found := false
		for _, g := range c.LinkedGroups {
			if g.ChatID == chatID {
				found = true
				continue
			}
			kept = append(kept, g)
		}
		if !found {
			return models.ErrNotFound
		}
		c.LinkedGroups = kept
		return nil
	})
	return err
}

// SweepExpired drops every code past its expiry.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	return s.codes.DeleteExpired(ctx, s.now())
}
