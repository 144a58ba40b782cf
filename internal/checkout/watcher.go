package checkout

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"zenyx/internal/models"
)

// CheckFunc confirms one payment.
type CheckFunc func(ctx context.Context, buyerID int64, paymentID string) (Outcome, error)

// Watcher polls pending payments in the background. Jobs are keyed by payment
// id and live independently of the bot that created them.
type Watcher struct {
	interval time.Duration
	attempts int
	check    CheckFunc
	logger   *zap.Logger

	mu   sync.Mutex
	jobs map[string]context.CancelFunc
	root context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

func NewWatcher(interval time.Duration, attempts int, check CheckFunc, logger *zap.Logger) *Watcher {
	root, stop := context.WithCancel(context.Background())
	return &Watcher{
		interval: interval,
		attempts: attempts,
		check:    check,
		logger:   logger,
		jobs:     make(map[string]context.CancelFunc),
		root:     root,
		stop:     stop,
	}
}

// Watch starts polling p for up to attempts ticks. It returns false when p is
// already watched or the watcher is stopped.
func (w *Watcher) Watch(p models.Payment, attempts int) bool {
	if attempts <= 0 {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.root.Err() != nil {
		return false
	}
	if _, ok := w.jobs[p.ID]; ok {
		return false
	}
	ctx, cancel := context.WithCancel(w.root)
	w.jobs[p.ID] = cancel

	w.wg.Add(1)
	go w.poll(ctx, p, attempts)
	return true
}

func (w *Watcher) poll(ctx context.Context, p models.Payment, attempts int) {
	defer w.wg.Done()
	defer w.done(p.ID)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for attempt := 1; attempt <= attempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		outcome, err := w.check(ctx, p.BuyerID, p.ID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if IsTerminal(err) {
				w.logger.Warn("Payment polling stopped",
					zap.String("payment_id", p.ID),
					zap.Int("attempt", attempt),
					zap.Error(err),
				)
				return
			}
			w.logger.Debug("Payment check failed, retrying", zap.String("payment_id", p.ID), zap.Error(err))
			continue
		}
		if outcome != Pending {
			return
		}
	}
	w.logger.Info("Payment polling exhausted", zap.String("payment_id", p.ID), zap.Int("attempts", attempts))
}

func (w *Watcher) done(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if cancel, ok := w.jobs[id]; ok {
		cancel()
		delete(w.jobs, id)
	}
}

// Cancel stops watching a payment.
func (w *Watcher) Cancel(id string) {
	w.mu.Lock()
	cancel, ok := w.jobs[id]
	w.mu.Unlock()
	if ok {
		cancel()
	}
}

// Watching reports whether id has an active job.
func (w *Watcher) Watching(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.jobs[id]
	return ok
}

// Active returns the number of running jobs.
func (w *Watcher) Active() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.jobs)
}

// Stop cancels every job and waits for them to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	w.stop()
	w.mu.Unlock()
	w.wg.Wait()
}
