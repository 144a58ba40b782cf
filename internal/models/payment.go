package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment statuses. pending -> paid happens exactly once.
const (
	PaymentPending = "pending"
	PaymentPaid    = "paid"
)

// Payment is keyed by (BuyerID, ID), where ID is the gateway payment id.
type Payment struct {
	ID        string          `json:"id"`
	BuyerID   int64           `json:"buyer_id"`
	BotToken  string          `json:"bot_token"`
	PlanID    string          `json:"plan_id"`
	PlanName  string          `json:"plan_name"`
	Price     decimal.Decimal `json:"price"`
	Status    string          `json:"status"`
	QRCode    string          `json:"qr_code,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	PaidAt    *time.Time      `json:"paid_at,omitempty"`
}

// IsPaid reports whether the payment reached its terminal state.
func (p *Payment) IsPaid() bool {
	return p.Status == PaymentPaid
}
