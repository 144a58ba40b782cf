package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"zenyx/internal/models"
	"zenyx/internal/store"
)

func TestMarkPaidTransitionsOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewPaymentRepository(store.NewMemory(), NewKeys("test"))
	p := &models.Payment{ID: "pix-1", BuyerID: 7, Status: models.PaymentPending, Price: decimal.RequireFromString("49.90")}
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}

	var winners int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := repo.MarkPaid(ctx, 7, "pix-1", time.Now())
			if err != nil {
				t.Errorf("mark paid: %v", err)
			}
			if ok {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("transitions = %d, want 1", winners)
	}
	got, _ := repo.Find(ctx, 7, "pix-1")
	if !got.IsPaid() || got.PaidAt == nil {
		t.Fatalf("payment not marked paid: %+v", got)
	}
}

func TestPaymentCreateRejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	repo := NewPaymentRepository(store.NewMemory(), NewKeys("test"))
	p := &models.Payment{ID: "pix-1", BuyerID: 7, Status: models.PaymentPending}
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := repo.Create(ctx, p)
	if !errors.Is(err, models.ErrAlreadyExists) {
		t.Fatalf("err = %v, want ErrAlreadyExists", err)
	}
	if errors.Is(err, models.ErrDuplicateToken) {
		t.Fatal("payment collision reported as a bot token conflict")
	}
}

func TestMarkPaidUnknownPayment(t *testing.T) {
	repo := NewPaymentRepository(store.NewMemory(), NewKeys("test"))
	_, _, err := repo.MarkPaid(context.Background(), 1, "nope", time.Now())
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRecordSaleConcurrentCredits(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(store.NewMemory(), NewKeys("test"))
	if _, err := repo.Touch(ctx, 1, "owner", "", ""); err != nil {
		t.Fatalf("touch: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.RecordSale(ctx, 1, models.Sale{
				Amount:     decimal.RequireFromString("49.90"),
				Commission: decimal.RequireFromString("9.98"),
			})
			if err != nil {
				t.Errorf("record sale: %v", err)
			}
		}()
	}
	wg.Wait()

	u, _ := repo.FindByID(ctx, 1)
	if !u.Balance.Equal(decimal.RequireFromString("499")) {
		t.Fatalf("balance = %s, want 499.00", u.Balance)
	}
	if u.TotalSales != 50 || len(u.Sales) != 50 {
		t.Fatalf("sales = %d/%d, want 50", u.TotalSales, len(u.Sales))
	}
	if !u.TotalRevenue.Equal(decimal.RequireFromString("2495")) {
		t.Fatalf("revenue = %s, want 2495", u.TotalRevenue)
	}
}

func TestTouchKeepsWallet(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(store.NewMemory(), NewKeys("test"))
	_, _ = repo.Touch(ctx, 5, "a", "A", "")
	_, _ = repo.Update(ctx, 5, func(u *models.User) error {
		u.Balance = decimal.NewFromInt(12)
		u.Bots = append(u.Bots, "tok")
		return nil
	})
	u, err := repo.Touch(ctx, 5, "b", "B", "")
	if err != nil {
		t.Fatalf("touch: %v", err)
	}
	if u.Username != "b" || !u.Balance.Equal(decimal.NewFromInt(12)) || !u.HasBot("tok") {
		t.Fatalf("unexpected user after touch: %+v", u)
	}
}

func TestBotCreateRejectsDuplicateToken(t *testing.T) {
	ctx := context.Background()
	repo := NewBotRepository(store.NewMemory(), NewKeys("test"))
	cfg := &models.BotConfig{Token: "1:abc", OwnerID: 1}
	if err := repo.Create(ctx, cfg); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(ctx, &models.BotConfig{Token: "1:abc", OwnerID: 2}); !errors.Is(err, models.ErrDuplicateToken) {
		t.Fatalf("err = %v, want ErrDuplicateToken", err)
	}
}

func TestCodeClaimOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewCodeRepository(store.NewMemory(), NewKeys("test"))
	code := &models.LinkingCode{Code: "ABCD1234", BotToken: "1:x", OwnerID: 1, ExpiresAt: time.Now().Add(time.Hour)}
	if err := repo.Create(ctx, code); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Claim(ctx, "ABCD1234"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if err := repo.Claim(ctx, "ABCD1234"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("second claim err = %v, want ErrNotFound", err)
	}
	if _, err := repo.Find(ctx, "ABCD1234"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("find claimed err = %v, want ErrNotFound", err)
	}
	if err := repo.Release(ctx, "ABCD1234"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := repo.Find(ctx, "ABCD1234"); err != nil {
		t.Fatalf("find released: %v", err)
	}
}

func TestStateOverwritesAndClears(t *testing.T) {
	ctx := context.Background()
	repo := NewStateRepository(store.NewMemory(), NewKeys("test"))
	_ = repo.Set(ctx, "root", 1, models.StateWaitingToken)
	_ = repo.Set(ctx, "root", 1, models.StateWaitingPixKey)
	st, _ := repo.Get(ctx, "root", 1)
	if st != models.StateWaitingPixKey {
		t.Fatalf("state = %s, want %s", st, models.StateWaitingPixKey)
	}
	other, _ := repo.Get(ctx, "123", 1)
	if other != models.StateIdle {
		t.Fatalf("state leaked across scopes: %s", other)
	}
	_ = repo.Set(ctx, "root", 1, models.StateIdle)
	st, _ = repo.Get(ctx, "root", 1)
	if st != models.StateIdle {
		t.Fatalf("state = %s, want idle", st)
	}
}
