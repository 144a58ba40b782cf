package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParseIDs(t *testing.T) {
	got := ParseIDs(" 1, 22,abc,,333 ")
	want := []int64{1, 22, 333}
	if len(got) != len(want) {
		t.Fatalf("ids = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ids = %v, want %v", got, want)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BOT_TOKEN", "1:x")
	t.Setenv("ADMIN_IDS", "7,8")
	t.Setenv("MIN_WITHDRAWAL", "50")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Rules.CommissionRate.Equal(decimal.RequireFromString("0.20")) {
		t.Fatalf("commission = %s", cfg.Rules.CommissionRate)
	}
	if !cfg.Rules.MinWithdrawal.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("min withdrawal = %s", cfg.Rules.MinWithdrawal)
	}
	if cfg.Rules.WithdrawalInterval != 15*24*time.Hour {
		t.Fatalf("interval = %s", cfg.Rules.WithdrawalInterval)
	}
	if cfg.Rules.PaymentPoll != 30*time.Second || cfg.Rules.PaymentAttempts != 60 {
		t.Fatalf("poll = %s x %d", cfg.Rules.PaymentPoll, cfg.Rules.PaymentAttempts)
	}
	if !cfg.Bot.IsAdmin(8) || cfg.Bot.IsAdmin(9) {
		t.Fatalf("admins = %v", cfg.Bot.AdminIDs)
	}
}
