// Package checkout drives a PIX payment from charge creation to fulfillment.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"zenyx/internal/models"
	"zenyx/internal/payment"
	"zenyx/internal/pkg/utils"
	"zenyx/internal/repository"
	"zenyx/internal/transport"
)

// Outcome is the result of a confirmation attempt.
type Outcome int

const (
	// Pending means the gateway has not settled the charge yet.
	Pending Outcome = iota
	// Confirmed means this call moved the payment to paid and ran fulfillment.
	Confirmed
	// AlreadyPaid means another path fulfilled the payment first.
	AlreadyPaid
)

func (o Outcome) String() string {
	switch o {
	case Confirmed:
		return "confirmed"
	case AlreadyPaid:
		return "already_paid"
	default:
		return "pending"
	}
}

// MessengerSource resolves the Messenger of a bot.
type MessengerSource interface {
	Messenger(token string) (transport.Messenger, error)
}

// Options tunes the workflow.
type Options struct {
	CommissionRate decimal.Decimal
	PollInterval   time.Duration
	PollAttempts   int
	InviteTTL      time.Duration
	// PublicURL is the externally reachable base for gateway webhooks. Empty disables them.
	PublicURL string
}

// DefaultOptions mirrors the platform defaults.
func DefaultOptions() Options {
	return Options{
		CommissionRate: decimal.RequireFromString("0.20"),
		PollInterval:   30 * time.Second,
		PollAttempts:   60,
		InviteTTL:      24 * time.Hour,
	}
}

// Fulfillment summarizes the side effects of a confirmed payment.
type Fulfillment struct {
	Links      map[int64]string
	Failed     []int64
	Commission decimal.Decimal
}

// Service creates charges, confirms them and fulfills paid payments exactly once.
type Service struct {
	payments   *repository.PaymentRepository
	bots       *repository.BotRepository
	users      *repository.UserRepository
	gateways   payment.Factory
	messengers MessengerSource
	watcher    *Watcher
	opts       Options
	now        func() time.Time
	logger     *zap.Logger
}

func NewService(payments *repository.PaymentRepository, bots *repository.BotRepository, users *repository.UserRepository, gateways payment.Factory, messengers MessengerSource, opts Options, logger *zap.Logger) *Service {
	s := &Service{
		payments:   payments,
		bots:       bots,
		users:      users,
		gateways:   gateways,
		messengers: messengers,
		opts:       opts,
		now:        time.Now,
		logger:     logger.Named("checkout"),
	}
	s.watcher = NewWatcher(opts.PollInterval, opts.PollAttempts, s.Check, s.logger)
	return s
}

// Watcher returns the background confirmation poller.
func (s *Service) Watcher() *Watcher {
	return s.watcher
}

// Commission returns the owner credit for a sale of amount.
func (s *Service) Commission(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(s.opts.CommissionRate).Round(2)
}

// CreatePayment charges buyerID for planID and starts the background watcher.
// Nothing is persisted when the gateway call fails.
func (s *Service) CreatePayment(ctx context.Context, botToken string, buyerID int64, planID string) (*models.Payment, *payment.Charge, error) {
	cfg, err := s.bots.FindByToken(ctx, botToken)
	if err != nil {
		return nil, nil, err
	}
	plan, ok := cfg.Plan(planID)
	if !ok {
		return nil, nil, fmt.Errorf("plan %s: %w", planID, models.ErrNotFound)
	}
	if cfg.GatewayToken == "" {
		return nil, nil, fmt.Errorf("%w: payment gateway not configured", models.ErrInvalidInput)
	}

	gw := s.gateways(cfg.GatewayToken)
	charge, err := gw.CreateCharge(ctx, utils.ToCents(plan.Price), s.webhookURL(cfg.BotID))
	if err != nil {
		return nil, nil, err
	}

	p := &models.Payment{
		ID:        charge.ID,
		BuyerID:   buyerID,
		BotToken:  botToken,
		PlanID:    plan.ID,
		PlanName:  plan.Name,
		Price:     plan.Price,
		Status:    models.PaymentPending,
		QRCode:    charge.QRCode,
		CreatedAt: s.now(),
	}
	if err := s.payments.Create(ctx, p); err != nil {
		return nil, nil, fmt.Errorf("persist payment %s: %w", p.ID, err)
	}

	s.watcher.Watch(*p, s.opts.PollAttempts)
	s.logger.Info("Payment created",
		zap.String("payment_id", p.ID),
		zap.Int64("buyer_id", buyerID),
		zap.String("plan", plan.Name),
		zap.String("price", plan.Price.StringFixed(2)),
	)
	return p, charge, nil
}

// Check queries the gateway and confirms the payment when it is paid.
func (s *Service) Check(ctx context.Context, buyerID int64, paymentID string) (Outcome, error) {
	p, err := s.payments.Find(ctx, buyerID, paymentID)
	if err != nil {
		return Pending, err
	}
	if p.IsPaid() {
		return AlreadyPaid, nil
	}

	cfg, err := s.bots.FindByToken(ctx, p.BotToken)
	if err != nil {
		return Pending, err
	}
	if cfg.GatewayToken == "" {
		return Pending, fmt.Errorf("%w: payment gateway not configured", models.ErrInvalidInput)
	}

	status, err := s.gateways(cfg.GatewayToken).PaymentStatus(ctx, paymentID)
	if err != nil {
		return Pending, err
	}
	if !strings.EqualFold(status, payment.StatusPaid) {
		return Pending, nil
	}
	return s.confirm(ctx, p, cfg)
}

// CheckByID resolves a payment by gateway id and checks it. Used by webhooks.
func (s *Service) CheckByID(ctx context.Context, paymentID string) (Outcome, error) {
	p, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		return Pending, err
	}
	return s.Check(ctx, p.BuyerID, p.ID)
}

func (s *Service) confirm(ctx context.Context, p *models.Payment, cfg *models.BotConfig) (Outcome, error) {
	paid, transitioned, err := s.payments.MarkPaid(ctx, p.BuyerID, p.ID, s.now())
	if err != nil {
		return Pending, err
	}
	if !transitioned {
		s.watcher.Cancel(p.ID)
		return AlreadyPaid, nil
	}

	// The transition happened; fulfillment must finish even if the caller goes away.
	f := s.fulfill(context.WithoutCancel(ctx), paid, cfg)
	s.watcher.Cancel(p.ID)
	s.logger.Info("Payment fulfilled",
		zap.String("payment_id", paid.ID),
		zap.Int("links", len(f.Links)),
		zap.Int("failed_links", len(f.Failed)),
		zap.String("commission", f.Commission.StringFixed(2)),
	)
	return Confirmed, nil
}

// fulfill runs once per payment. Partial failures are logged, never returned.
func (s *Service) fulfill(ctx context.Context, p *models.Payment, cfg *models.BotConfig) *Fulfillment {
	f := &Fulfillment{Links: make(map[int64]string), Commission: s.Commission(p.Price)}

	m, err := s.messengers.Messenger(p.BotToken)
	if err != nil {
		s.logger.Error("No messenger for fulfillment", zap.String("payment_id", p.ID), zap.Error(err))
	}

	if m != nil {
		expireAt := s.now().Add(s.opts.InviteTTL)
		var b strings.Builder
		fmt.Fprintf(&b, "✅ <b>Pagamento confirmado!</b>\n\nPlano: %s\nValor: %s\n\n",
			html.EscapeString(p.PlanName), utils.FormatBRL(p.Price))

		for _, g := range cfg.LinkedGroups {
			link, err := m.CreateInviteLink(g.ChatID, expireAt)
			if err != nil {
				f.Failed = append(f.Failed, g.ChatID)
				s.logger.Warn("Invite link failed",
					zap.String("payment_id", p.ID),
					zap.Int64("chat_id", g.ChatID),
					zap.Error(err),
				)
				continue
			}
			f.Links[g.ChatID] = link
			fmt.Fprintf(&b, "🔗 %s: %s\n", html.EscapeString(g.Title), link)
		}
		switch {
		case len(cfg.LinkedGroups) == 0:
			b.WriteString("O vendedor ainda não vinculou grupos. Entre em contato com ele.")
		case len(f.Links) > 0:
			b.WriteString("\n⚠️ Os links são de uso único e expiram em 24 horas.")
		}
		if len(f.Failed) > 0 {
			b.WriteString("\n\nAlguns links não puderam ser gerados. Fale com o vendedor.")
		}

		if err := m.SendText(p.BuyerID, b.String(), nil); err != nil {
			s.logger.Warn("Failed to deliver access links", zap.Int64("buyer_id", p.BuyerID), zap.Error(err))
		}
	}

	sale := models.Sale{
		PaymentID:  p.ID,
		BuyerID:    p.BuyerID,
		BotToken:   p.BotToken,
		PlanName:   p.PlanName,
		Amount:     p.Price,
		Commission: f.Commission,
		CreatedAt:  s.now(),
	}
	if _, err := s.users.RecordSale(ctx, cfg.OwnerID, sale); err != nil {
		s.logger.Error("Failed to record sale", zap.String("payment_id", p.ID), zap.Int64("owner_id", cfg.OwnerID), zap.Error(err))
	}

	if m != nil {
		msg := fmt.Sprintf("💰 <b>Nova venda!</b>\n\nPlano: %s\nValor: %s\nComissão creditada: %s",
			html.EscapeString(p.PlanName), utils.FormatBRL(p.Price), utils.FormatBRL(f.Commission))
		_ = m.SendText(cfg.OwnerID, msg, nil)
	}
	return f
}

// ResumePending re-arms watchers for pending payments still inside the poll
// window. Payments already being watched are skipped.
func (s *Service) ResumePending(ctx context.Context) (int, error) {
	pending, err := s.payments.FindPending(ctx)
	if err != nil {
		return 0, err
	}
	window := time.Duration(s.opts.PollAttempts) * s.opts.PollInterval
	now := s.now()

	armed := 0
	for _, p := range pending {
		age := now.Sub(p.CreatedAt)
		if age >= window {
			continue
		}
		left := s.opts.PollAttempts - int(age/s.opts.PollInterval)
		if s.watcher.Watch(p, left) {
			armed++
		}
	}
	return armed, nil
}

func (s *Service) webhookURL(botID int64) string {
	if s.opts.PublicURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/webhooks/pushinpay/%d", strings.TrimRight(s.opts.PublicURL, "/"), botID)
}

// IsTerminal reports whether err should stop background polling.
func IsTerminal(err error) bool {
	return err != nil && !errors.Is(err, models.ErrTransportUnavailable)
}
