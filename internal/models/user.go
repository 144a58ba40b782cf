package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is a platform account, created on first contact with the root bot.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`

	// Bots holds the tokens of the child bots owned by this user.
	Bots    []string        `json:"bots"`
	Balance decimal.Decimal `json:"balance"`

	ReferredBy   int64      `json:"referred_by,omitempty"`
	ReferralDate *time.Time `json:"referral_date,omitempty"`
	Referrals    []int64    `json:"referrals"`

	IsAdminVIP     bool       `json:"is_admin_vip"`
	AdminVIPUsed   bool       `json:"admin_vip_used"`
	AdminVIPExpiry *time.Time `json:"admin_vip_expiry,omitempty"`

	PixKey         string       `json:"pix_key,omitempty"`
	PixKeyType     string       `json:"pix_key_type,omitempty"`
	LastWithdrawal *time.Time   `json:"last_withdrawal,omitempty"`
	Withdrawals    []Withdrawal `json:"withdrawals,omitempty"`

	Sales        []Sale          `json:"sales"`
	TotalSales   int             `json:"total_sales"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`

	CreatedAt time.Time `json:"created_at"`
}

// HasBot reports whether token belongs to the user.
func (u *User) HasBot(token string) bool {
	for _, t := range u.Bots {
		if t == token {
			return true
		}
	}
	return false
}

// Sale is one fulfilled purchase credited to a bot owner.
type Sale struct {
	PaymentID  string          `json:"payment_id"`
	BuyerID    int64           `json:"buyer_id"`
	BotToken   string          `json:"bot_token"`
	PlanName   string          `json:"plan_name"`
	Amount     decimal.Decimal `json:"amount"`
	Commission decimal.Decimal `json:"commission"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Withdrawal statuses.
const (
	WithdrawalPaid    = "paid"
	WithdrawalPending = "pending_manual"
)

// Withdrawal records a payout of the whole wallet balance.
type Withdrawal struct {
	ID         string          `json:"id"`
	Amount     decimal.Decimal `json:"amount"`
	Status     string          `json:"status"`
	TransferID string          `json:"transfer_id,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
