package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"zenyx/internal/bot"
	"zenyx/internal/pkg/utils"
	"zenyx/internal/store"
	"zenyx/internal/transport"
)

const jobTimeout = 2 * time.Minute

type CodeSweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

type PaymentResumer interface {
	ResumePending(ctx context.Context) (int, error)
}

type VIPExpirer interface {
	ExpireVIP(ctx context.Context) (int, error)
}

type FleetStarter interface {
	StartAll(ctx context.Context) int
}

// Jobs bundles the services the periodic jobs drive. Nil members disable
// their job.
type Jobs struct {
	Codes    CodeSweeper
	Payments PaymentResumer
	VIP      VIPExpirer
	Fleet    FleetStarter
	Store    store.Sweeper
	Stats    func(ctx context.Context) (*bot.Stats, error)
	// Notifier delivers the daily report to AdminIDs.
	Notifier transport.Messenger
	AdminIDs []int64
}

// Scheduler manages all cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	jobs   Jobs
	logger *zap.Logger
}

// New creates a new cron scheduler.
func New(jobs Jobs, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds()),
		jobs:   jobs,
		logger: logger.Named("cron"),
	}
}

// Start registers and starts all cron jobs. Pending payments are resumed
// once before the first tick.
func (s *Scheduler) Start() {
	s.logger.Info("Starting cron scheduler...")

	s.resumePayments()

	// Expired linking codes - every 10 minutes
	s.add("0 */10 * * * *", "sweep linking codes", s.sweepCodes)

	// Pending payment watchers - every 5 minutes
	s.add("0 */5 * * * *", "resume pending payments", s.resumePayments)

	// Child bots that died - every 5 minutes
	s.add("30 */5 * * * *", "reconcile bots", s.reconcileBots)

	// Expired store rows - every 15 minutes
	s.add("0 */15 * * * *", "sweep store", s.sweepStore)

	// Admin VIP trials - every hour
	s.add("0 0 * * * *", "expire vip trials", s.expireVIP)

	// Daily status report - at 23:45
	s.add("0 45 23 * * *", "daily status report", s.dailyReport)

	s.cron.Start()
	s.logger.Info("Cron scheduler started", zap.Int("jobs", len(s.cron.Entries())))
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) add(spec, name string, job func()) {
	if _, err := s.cron.AddFunc(spec, func() {
		s.logger.Debug("Running: " + name)
		job()
	}); err != nil {
		s.logger.Error("Failed to register cron job", zap.String("job", name), zap.Error(err))
	}
}

func (s *Scheduler) sweepCodes() {
	defer s.recoverFromPanic("sweepCodes")
	if s.jobs.Codes == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	n, err := s.jobs.Codes.SweepExpired(ctx)
	if err != nil {
		s.logger.Error("Failed to sweep linking codes", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("Expired linking codes removed", zap.Int("count", n))
	}
}

func (s *Scheduler) sweepStore() {
	defer s.recoverFromPanic("sweepStore")
	if s.jobs.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	n, err := s.jobs.Store.SweepExpired(ctx)
	if err != nil {
		s.logger.Error("Failed to sweep store", zap.Error(err))
		return
	}
	s.logger.Debug("Store swept", zap.Int("count", n))
}

func (s *Scheduler) resumePayments() {
	defer s.recoverFromPanic("resumePayments")
	if s.jobs.Payments == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	n, err := s.jobs.Payments.ResumePending(ctx)
	if err != nil {
		s.logger.Error("Failed to resume pending payments", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("Payment watchers resumed", zap.Int("count", n))
	}
}

func (s *Scheduler) reconcileBots() {
	defer s.recoverFromPanic("reconcileBots")
	if s.jobs.Fleet == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	s.jobs.Fleet.StartAll(ctx)
}

func (s *Scheduler) expireVIP() {
	defer s.recoverFromPanic("expireVIP")
	if s.jobs.VIP == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	n, err := s.jobs.VIP.ExpireVIP(ctx)
	if err != nil {
		s.logger.Error("Failed to expire VIP trials", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("VIP trials expired", zap.Int("count", n))
	}
}

func (s *Scheduler) dailyReport() {
	defer s.recoverFromPanic("dailyReport")
	if s.jobs.Stats == nil || s.jobs.Notifier == nil || len(s.jobs.AdminIDs) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	st, err := s.jobs.Stats(ctx)
	if err != nil {
		s.logger.Error("Failed to collect stats", zap.Error(err))
		return
	}
	report := fmt.Sprintf(
		"📊 <b>Relatório diário - %s</b>\n\n"+
			"👥 Usuários: %d (pagantes: %d)\n"+
			"🤖 Bots: %d (online: %d)\n"+
			"🧾 Vendas: %d\n"+
			"💵 Faturamento: %s\n"+
			"💸 Comissões: %s\n"+
			"⏳ Pendentes: %d",
		time.Now().Format("02/01/2006"),
		st.Users, st.PayingUsers,
		st.Bots, st.RunningBots,
		st.Sales,
		utils.FormatBRL(st.Revenue),
		utils.FormatBRL(st.Commission),
		st.PendingCount,
	)
	for _, id := range s.jobs.AdminIDs {
		if err := s.jobs.Notifier.SendText(id, report, nil); err != nil {
			s.logger.Warn("Failed to deliver daily report", zap.Int64("admin_id", id), zap.Error(err))
		}
	}
}

func (s *Scheduler) recoverFromPanic(jobName string) {
	if r := recover(); r != nil {
		s.logger.Error("Cron job panicked", zap.String("job", jobName), zap.Any("error", r))
	}
}
