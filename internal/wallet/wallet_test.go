package wallet

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"zenyx/internal/models"
	"zenyx/internal/payment"
	"zenyx/internal/repository"
	"zenyx/internal/store"
	"zenyx/internal/transport"
)

type fakePayouts struct {
	err       error
	transfers []int64
}

func (f *fakePayouts) Name() string { return "fake" }
func (f *fakePayouts) CreateCharge(context.Context, int64, string) (*payment.Charge, error) {
	return nil, errors.New("not used")
}
func (f *fakePayouts) PaymentStatus(context.Context, string) (string, error) { return "", nil }
func (f *fakePayouts) CreateTransfer(ctx context.Context, cents int64, key, kind, hook string) (*payment.Transfer, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.transfers = append(f.transfers, cents)
	return &payment.Transfer{ID: "tr-1", Status: "processing"}, nil
}
func (f *fakePayouts) TransferStatus(ctx context.Context, id string) (*payment.Transfer, error) {
	return &payment.Transfer{ID: id, Status: payment.StatusPaid}, nil
}

func newService(t *testing.T, payouts payment.Gateway) (*Service, *repository.UserRepository, *transport.Fake) {
	t.Helper()
	users := repository.NewUserRepository(store.NewMemory(), repository.NewKeys("test"))
	opts := DefaultOptions()
	opts.AdminIDs = []int64{1}
	svc := NewService(users, payouts, opts, zap.NewNop())
	fake := transport.NewFake()
	svc.SetNotifier(fake)
	return svc, users, fake
}

func seedUser(t *testing.T, users *repository.UserRepository, id int64, balance string) {
	t.Helper()
	ctx := context.Background()
	if _, err := users.Touch(ctx, id, fmt.Sprintf("u%d", id), "", ""); err != nil {
		t.Fatalf("touch: %v", err)
	}
	_, err := users.Update(ctx, id, func(u *models.User) error {
		u.Balance = decimal.RequireFromString(balance)
		u.PixKey = "owner@example.com"
		u.PixKeyType = KeyEmail
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestWithdrawBelowMinimum(t *testing.T) {
	svc, users, _ := newService(t, nil)
	seedUser(t, users, 5, "25.00")

	if _, err := svc.Withdraw(context.Background(), 5); !errors.Is(err, models.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	u, _ := users.FindByID(context.Background(), 5)
	if !u.Balance.Equal(decimal.RequireFromString("25")) {
		t.Fatalf("balance changed to %s", u.Balance)
	}
}

func TestWithdrawAccepted(t *testing.T) {
	payouts := &fakePayouts{}
	svc, users, fake := newService(t, payouts)
	seedUser(t, users, 5, "40.00")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return now })

	w, err := svc.Withdraw(context.Background(), 5)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if !w.Amount.Equal(decimal.RequireFromString("40")) || w.TransferID != "tr-1" {
		t.Fatalf("withdrawal = %+v", w)
	}
	if len(payouts.transfers) != 1 || payouts.transfers[0] != 4000 {
		t.Fatalf("transfers = %v", payouts.transfers)
	}

	u, _ := users.FindByID(context.Background(), 5)
	if !u.Balance.IsZero() {
		t.Fatalf("balance = %s, want 0.00", u.Balance)
	}
	if u.LastWithdrawal == nil || !u.LastWithdrawal.Equal(now) {
		t.Fatalf("last withdrawal = %v", u.LastWithdrawal)
	}
	if len(u.Withdrawals) != 1 || u.Withdrawals[0].TransferID != "tr-1" {
		t.Fatalf("withdrawals = %+v", u.Withdrawals)
	}
	if len(fake.SentTo(1)) != 1 {
		t.Fatal("admin not notified")
	}

	w2, err := svc.RefreshWithdrawal(context.Background(), 5, w.ID)
	if err != nil || w2.Status != models.WithdrawalPaid {
		t.Fatalf("refresh = %+v, %v", w2, err)
	}
}

func TestWithdrawInterval(t *testing.T) {
	svc, users, _ := newService(t, nil)
	seedUser(t, users, 5, "40.00")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return now })

	if _, err := svc.Withdraw(context.Background(), 5); err != nil {
		t.Fatalf("first withdraw: %v", err)
	}
	_, _ = users.Update(context.Background(), 5, func(u *models.User) error {
		u.Balance = decimal.NewFromInt(50)
		return nil
	})

	now = now.Add(10 * 24 * time.Hour)
	if _, err := svc.Withdraw(context.Background(), 5); !errors.Is(err, models.ErrWithdrawalTooSoon) {
		t.Fatalf("err = %v, want ErrWithdrawalTooSoon", err)
	}
	now = now.Add(6 * 24 * time.Hour)
	if _, err := svc.Withdraw(context.Background(), 5); err != nil {
		t.Fatalf("withdraw after interval: %v", err)
	}
}

func TestWithdrawCashOutFailureKeepsManualRecord(t *testing.T) {
	svc, users, _ := newService(t, &fakePayouts{err: fmt.Errorf("%w: down", models.ErrTransportUnavailable)})
	seedUser(t, users, 5, "40.00")

	w, err := svc.Withdraw(context.Background(), 5)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if w.Status != models.WithdrawalPending {
		t.Fatalf("status = %s, want pending_manual", w.Status)
	}
}

func TestWithdrawRequiresPixKey(t *testing.T) {
	svc, users, _ := newService(t, nil)
	seedUser(t, users, 5, "40.00")
	_, _ = users.Update(context.Background(), 5, func(u *models.User) error {
		u.PixKey = ""
		return nil
	})
	if _, err := svc.Withdraw(context.Background(), 5); !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestDetectKeyType(t *testing.T) {
	cases := []struct {
		in, key, kind string
	}{
		{"Owner@Example.com", "owner@example.com", KeyEmail},
		{"123.456.789-09", "12345678909", KeyCPF},
		{"12.345.678/0001-90", "12345678000190", KeyCNPJ},
		{"+55 (11) 99999-8888", "+5511999998888", KeyPhone},
		{"123e4567-e89b-12d3-a456-426614174000", "123e4567-e89b-12d3-a456-426614174000", KeyEVP},
	}
	for _, tc := range cases {
		key, kind, err := DetectKeyType(tc.in)
		if err != nil || key != tc.key || kind != tc.kind {
			t.Errorf("DetectKeyType(%q) = %q, %q, %v", tc.in, key, kind, err)
		}
	}
	if _, _, err := DetectKeyType("nope"); !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("err = %v", err)
	}
}

func TestReferrals(t *testing.T) {
	svc, users, fake := newService(t, nil)
	ctx := context.Background()
	seedUser(t, users, 5, "0")
	seedUser(t, users, 6, "0")

	if err := svc.RegisterReferral(ctx, 5, 5); !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("self referral err = %v", err)
	}
	if err := svc.RegisterReferral(ctx, 6, 5); err != nil {
		t.Fatalf("referral: %v", err)
	}
	if err := svc.RegisterReferral(ctx, 6, 5); !errors.Is(err, models.ErrAlreadyExists) {
		t.Fatalf("double referral err = %v", err)
	}
	if len(fake.SentTo(5)) != 1 {
		t.Fatal("referrer not notified")
	}

	refs, err := svc.Referrals(ctx, 5)
	if err != nil || len(refs) != 1 || refs[0].Eligible {
		t.Fatalf("referrals = %+v, %v", refs, err)
	}

	_, _ = users.Update(ctx, 6, func(u *models.User) error {
		u.TotalSales = 3
		u.TotalRevenue = decimal.RequireFromString("29.70")
		return nil
	})
	refs, _ = svc.Referrals(ctx, 5)
	if !refs[0].Eligible {
		t.Fatal("referral with 3 sales totalling 29.70 should be eligible")
	}

	svc.SetClock(func() time.Time { return time.Now().Add(16 * 24 * time.Hour) })
	refs, _ = svc.Referrals(ctx, 5)
	if refs[0].Eligible {
		t.Fatal("referral older than 15 days should not be eligible")
	}
}

func TestVIPTrial(t *testing.T) {
	svc, users, _ := newService(t, nil)
	ctx := context.Background()
	seedUser(t, users, 5, "0")

	if _, err := svc.ActivateVIP(ctx, 5); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, err := svc.ActivateVIP(ctx, 5); !errors.Is(err, models.ErrAlreadyExists) {
		t.Fatalf("second activation err = %v", err)
	}

	if n, _ := svc.ExpireVIP(ctx); n != 0 {
		t.Fatalf("expired %d active trials", n)
	}
	svc.SetClock(func() time.Time { return time.Now().Add(31 * 24 * time.Hour) })
	if n, _ := svc.ExpireVIP(ctx); n != 1 {
		t.Fatalf("expired = %d, want 1", n)
	}
	u, _ := users.FindByID(ctx, 5)
	if u.IsAdminVIP || !u.AdminVIPUsed {
		t.Fatalf("user = %+v", u)
	}
}
