package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"zenyx/internal/models"
	"zenyx/internal/store"
)

// PaymentRepository handles payment records keyed by buyer and gateway id.
type PaymentRepository struct {
	kv   store.KV
	keys Keys
}

func NewPaymentRepository(kv store.KV, keys Keys) *PaymentRepository {
	return &PaymentRepository{kv: kv, keys: keys}
}

// Create persists a new pending payment.
func (r *PaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	err = r.kv.Create(ctx, r.keys.Payment(p.BuyerID, p.ID), raw, 0)
	if errors.Is(err, store.ErrExists) {
		return fmt.Errorf("payment %s: %w", p.ID, models.ErrAlreadyExists)
	}
	return err
}

func (r *PaymentRepository) Find(ctx context.Context, buyerID int64, paymentID string) (*models.Payment, error) {
	return getJSON[models.Payment](ctx, r.kv, r.keys.Payment(buyerID, paymentID))
}

// MarkPaid moves a payment from pending to paid. transitioned is true only for
// the single caller that performed the transition.
func (r *PaymentRepository) MarkPaid(ctx context.Context, buyerID int64, paymentID string, at time.Time) (p *models.Payment, transitioned bool, err error) {
	p, err = updateJSON(ctx, r.kv, r.keys.Payment(buyerID, paymentID), func(cur *models.Payment) (*models.Payment, error) {
		if cur == nil {
			return nil, models.ErrNotFound
		}
		transitioned = false
		if cur.Status != models.PaymentPaid {
			cur.Status = models.PaymentPaid
			cur.PaidAt = &at
			transitioned = true
		}
		return cur, nil
	})
	if err != nil {
		return nil, false, err
	}
	return p, transitioned, nil
}

// FindPending returns payments still waiting for confirmation.
func (r *PaymentRepository) FindPending(ctx context.Context) ([]models.Payment, error) {
	all, err := listJSON[models.Payment](ctx, r.kv, r.keys.Payments())
	if err != nil {
		return nil, err
	}
	pending := all[:0]
	for _, p := range all {
		if p.Status == models.PaymentPending {
			pending = append(pending, p)
		}
	}
	return pending, nil
}

// FindByID scans for a payment when only the gateway id is known (webhooks).
func (r *PaymentRepository) FindByID(ctx context.Context, paymentID string) (*models.Payment, error) {
	all, err := listJSON[models.Payment](ctx, r.kv, r.keys.Payments())
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == paymentID {
			return &all[i], nil
		}
	}
	return nil, models.ErrNotFound
}
