// Package wallet handles owner balances: withdrawals, referrals and the
// admin VIP trial.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"zenyx/internal/models"
	"zenyx/internal/payment"
	"zenyx/internal/pkg/utils"
	"zenyx/internal/repository"
	"zenyx/internal/transport"
)

// PIX key types accepted by the cash-out API.
const (
	KeyEVP   = "evp"
	KeyCPF   = "cpf"
	KeyCNPJ  = "cnpj"
	KeyPhone = "phone"
	KeyEmail = "email"
)

var (
	emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	phoneRe = regexp.MustCompile(`^\+?55\d{10,11}$`)
	evpRe   = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
)

// Options holds the platform wallet rules.
type Options struct {
	MinWithdrawal     decimal.Decimal
	Interval          time.Duration
	VIPTrial          time.Duration
	ReferralExpiry    time.Duration
	ReferralMinSales  int
	ReferralMinAmount decimal.Decimal
	AdminIDs          []int64
}

// DefaultOptions mirrors the platform defaults.
func DefaultOptions() Options {
	return Options{
		MinWithdrawal:     decimal.NewFromInt(30),
		Interval:          15 * 24 * time.Hour,
		VIPTrial:          30 * 24 * time.Hour,
		ReferralExpiry:    15 * 24 * time.Hour,
		ReferralMinSales:  3,
		ReferralMinAmount: decimal.RequireFromString("9.90"),
	}
}

// Service applies wallet rules over the user records.
type Service struct {
	users    *repository.UserRepository
	payouts  payment.Gateway
	notifier transport.Messenger
	opts     Options
	now      func() time.Time
	logger   *zap.Logger
}

// NewService builds the wallet. payouts may be nil, in which case withdrawals
// are recorded for manual payment.
func NewService(users *repository.UserRepository, payouts payment.Gateway, opts Options, logger *zap.Logger) *Service {
	return &Service{
		users:   users,
		payouts: payouts,
		opts:    opts,
		now:     time.Now,
		logger:  logger.Named("wallet"),
	}
}

// SetNotifier sets the Messenger used to reach admins and referrers.
func (s *Service) SetNotifier(m transport.Messenger) {
	s.notifier = m
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Options returns the wallet rules.
func (s *Service) Options() Options {
	return s.opts
}

// CanWithdraw checks the minimum balance and the interval between withdrawals.
func (s *Service) CanWithdraw(u *models.User) error {
	if u.Balance.LessThan(s.opts.MinWithdrawal) {
		return fmt.Errorf("%w: minimum is %s", models.ErrInsufficientBalance, utils.FormatBRL(s.opts.MinWithdrawal))
	}
	if next, ok := s.NextWithdrawal(u); ok && s.now().Before(next) {
		return fmt.Errorf("%w: next withdrawal at %s", models.ErrWithdrawalTooSoon, next.Format("02/01/2006 15:04"))
	}
	return nil
}

// NextWithdrawal returns when the user may withdraw again; ok is false when
// there is no previous withdrawal.
func (s *Service) NextWithdrawal(u *models.User) (time.Time, bool) {
	if u.LastWithdrawal == nil {
		return time.Time{}, false
	}
	return u.LastWithdrawal.Add(s.opts.Interval), true
}

// DetectKeyType classifies a PIX key.
func DetectKeyType(key string) (string, string, error) {
	key = strings.TrimSpace(key)
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, key)

	switch {
	case emailRe.MatchString(key):
		return strings.ToLower(key), KeyEmail, nil
	case evpRe.MatchString(key):
		return strings.ToLower(key), KeyEVP, nil
	case strings.HasPrefix(key, "+") && phoneRe.MatchString("+"+digits):
		return "+" + digits, KeyPhone, nil
	case len(digits) == 11 && !strings.ContainsAny(key, "+()"):
		return digits, KeyCPF, nil
	case len(digits) == 14:
		return digits, KeyCNPJ, nil
	case phoneRe.MatchString(digits):
		return "+" + digits, KeyPhone, nil
	}
	return "", "", fmt.Errorf("%w: unrecognized pix key", models.ErrInvalidInput)
}

// SetPixKey validates and stores the user's payout key.
func (s *Service) SetPixKey(ctx context.Context, userID int64, raw string) (*models.User, error) {
	key, kind, err := DetectKeyType(raw)
	if err != nil {
		return nil, err
	}
	return s.users.Update(ctx, userID, func(u *models.User) error {
		u.PixKey = key
		u.PixKeyType = kind
		return nil
	})
}

// Withdraw debits the whole balance and pays it out. When the cash-out call
// fails the withdrawal stays recorded for manual payment.
func (s *Service) Withdraw(ctx context.Context, userID int64) (*models.Withdrawal, error) {
	var w models.Withdrawal
	u, err := s.users.Update(ctx, userID, func(u *models.User) error {
		if err := s.CanWithdraw(u); err != nil {
			return err
		}
		if u.PixKey == "" {
			return fmt.Errorf("%w: pix key not set", models.ErrInvalidInput)
		}
		now := s.now()
		w = models.Withdrawal{
			ID:        uuid.NewString(),
			Amount:    u.Balance,
			Status:    models.WithdrawalPending,
			CreatedAt: now,
		}
		u.Balance = decimal.Zero
		u.LastWithdrawal = &now
		u.Withdrawals = append(u.Withdrawals, w)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.payouts != nil {
		t, err := s.payouts.CreateTransfer(ctx, utils.ToCents(w.Amount), u.PixKey, u.PixKeyType, "")
		if err != nil {
			s.logger.Error("Cash-out failed, left for manual payment", zap.Int64("user_id", userID), zap.Error(err))
		} else {
			w.TransferID = t.ID
			if strings.EqualFold(t.Status, payment.StatusPaid) {
				w.Status = models.WithdrawalPaid
			}
			s.saveWithdrawal(ctx, userID, w)
		}
	}

	s.notifyAdmins(fmt.Sprintf("💸 <b>Saque solicitado</b>\n\nUsuário: %d\nValor: %s\nChave PIX (%s): %s\nStatus: %s",
		userID, utils.FormatBRL(w.Amount), u.PixKeyType, u.PixKey, w.Status))

	s.logger.Info("Withdrawal recorded",
		zap.Int64("user_id", userID),
		zap.String("amount", w.Amount.StringFixed(2)),
		zap.String("status", w.Status),
	)
	return &w, nil
}

// RefreshWithdrawal asks the gateway for the state of a pending cash-out.
func (s *Service) RefreshWithdrawal(ctx context.Context, userID int64, withdrawalID string) (*models.Withdrawal, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, w := range u.Withdrawals {
		if w.ID != withdrawalID {
			continue
		}
		if w.Status == models.WithdrawalPaid || w.TransferID == "" || s.payouts == nil {
			return &w, nil
		}
		t, err := s.payouts.TransferStatus(ctx, w.TransferID)
		if err != nil {
			return nil, err
		}
		if strings.EqualFold(t.Status, payment.StatusPaid) {
			w.Status = models.WithdrawalPaid
			s.saveWithdrawal(ctx, userID, w)
		}
		return &w, nil
	}
	return nil, models.ErrNotFound
}

func (s *Service) saveWithdrawal(ctx context.Context, userID int64, w models.Withdrawal) {
	_, err := s.users.Update(ctx, userID, func(u *models.User) error {
		for i := range u.Withdrawals {
			if u.Withdrawals[i].ID == w.ID {
				u.Withdrawals[i] = w
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("Failed to update withdrawal", zap.String("withdrawal_id", w.ID), zap.Error(err))
	}
}

// ── Referrals ─────────────────────────────────────────────────────────

// Referral is one referred user with their eligibility for the bonus.
type Referral struct {
	UserID   int64
	Username string
	Sales    int
	Revenue  decimal.Decimal
	Eligible bool
}

// RegisterReferral links userID to referrerID once. Self-referrals and
// second referrals are rejected.
func (s *Service) RegisterReferral(ctx context.Context, userID, referrerID int64) error {
	if userID == referrerID {
		return fmt.Errorf("%w: self referral", models.ErrInvalidInput)
	}
	referrer, err := s.users.FindByID(ctx, referrerID)
	if err != nil {
		return err
	}

	now := s.now()
	_, err = s.users.Update(ctx, userID, func(u *models.User) error {
		if u.ReferredBy != 0 {
			return models.ErrAlreadyExists
		}
		u.ReferredBy = referrerID
		u.ReferralDate = &now
		return nil
	})
	if err != nil {
		return err
	}

	_, err = s.users.Update(ctx, referrerID, func(u *models.User) error {
		for _, id := range u.Referrals {
			if id == userID {
				return nil
			}
		}
		u.Referrals = append(u.Referrals, userID)
		return nil
	})
	if err != nil {
		return err
	}

	if s.notifier != nil {
		_ = s.notifier.SendText(referrer.ID, fmt.Sprintf("🎉 Novo indicado! O usuário %d entrou pelo seu link.", userID), nil)
	}
	return nil
}

// Eligible reports whether a referred user qualifies the referrer for a bonus:
// recent signup, enough sales and enough revenue.
func (s *Service) Eligible(u *models.User) bool {
	if u.ReferralDate == nil || s.now().Sub(*u.ReferralDate) > s.opts.ReferralExpiry {
		return false
	}
	if u.TotalSales < s.opts.ReferralMinSales {
		return false
	}
	min := s.opts.ReferralMinAmount.Mul(decimal.NewFromInt(int64(s.opts.ReferralMinSales)))
	return !u.TotalRevenue.LessThan(min)
}

// Referrals lists the users referred by referrerID.
func (s *Service) Referrals(ctx context.Context, referrerID int64) ([]Referral, error) {
	u, err := s.users.FindByID(ctx, referrerID)
	if err != nil {
		return nil, err
	}
	out := make([]Referral, 0, len(u.Referrals))
	for _, id := range u.Referrals {
		ref, err := s.users.FindByID(ctx, id)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, Referral{
			UserID:   ref.ID,
			Username: ref.Username,
			Sales:    ref.TotalSales,
			Revenue:  ref.TotalRevenue,
			Eligible: s.Eligible(ref),
		})
	}
	return out, nil
}

// ── Admin VIP ─────────────────────────────────────────────────────────

// ActivateVIP grants the one-time trial.
func (s *Service) ActivateVIP(ctx context.Context, userID int64) (*models.User, error) {
	return s.users.Update(ctx, userID, func(u *models.User) error {
		if u.AdminVIPUsed {
			return fmt.Errorf("%w: trial already used", models.ErrAlreadyExists)
		}
		expiry := s.now().Add(s.opts.VIPTrial)
		u.IsAdminVIP = true
		u.AdminVIPUsed = true
		u.AdminVIPExpiry = &expiry
		return nil
	})
}

// ExpireVIP clears trials past their expiry and returns how many ended.
func (s *Service) ExpireVIP(ctx context.Context) (int, error) {
	users, err := s.users.FindAll(ctx)
	if err != nil {
		return 0, err
	}
	now := s.now()
	n := 0
	for _, u := range users {
		if !u.IsAdminVIP || u.AdminVIPExpiry == nil || now.Before(*u.AdminVIPExpiry) {
			continue
		}
		_, err := s.users.Update(ctx, u.ID, func(u *models.User) error {
			u.IsAdminVIP = false
			return nil
		})
		if err != nil {
			s.logger.Warn("Failed to expire VIP", zap.Int64("user_id", u.ID), zap.Error(err))
			continue
		}
		n++
		if s.notifier != nil {
			_ = s.notifier.SendText(u.ID, "⏰ Seu período VIP terminou.", nil)
		}
	}
	return n, nil
}

func (s *Service) notifyAdmins(text string) {
	if s.notifier == nil {
		return
	}
	for _, id := range s.opts.AdminIDs {
		if err := s.notifier.SendText(id, text, nil); err != nil {
			s.logger.Debug("Admin notification failed", zap.Int64("admin_id", id), zap.Error(err))
		}
	}
}
