package cron

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"zenyx/internal/bot"
	"zenyx/internal/transport"
)

type counter struct {
	calls int
	n     int
	err   error
}

func (c *counter) SweepExpired(ctx context.Context) (int, error)  { c.calls++; return c.n, c.err }
func (c *counter) ResumePending(ctx context.Context) (int, error) { c.calls++; return c.n, c.err }
func (c *counter) ExpireVIP(ctx context.Context) (int, error)     { c.calls++; return c.n, c.err }
func (c *counter) StartAll(ctx context.Context) int               { c.calls++; return c.n }

type panicky struct{}

func (panicky) SweepExpired(ctx context.Context) (int, error) { panic("boom") }

func TestJobsCallServices(t *testing.T) {
	codes, payments, vip, fleet, kv := &counter{n: 2}, &counter{n: 1}, &counter{err: errors.New("down")}, &counter{}, &counter{}
	s := New(Jobs{Codes: codes, Payments: payments, VIP: vip, Fleet: fleet, Store: kv}, zap.NewNop())

	s.sweepCodes()
	s.sweepStore()
	s.resumePayments()
	s.expireVIP()
	s.reconcileBots()
	s.dailyReport() // no stats configured

	for name, c := range map[string]*counter{"codes": codes, "payments": payments, "vip": vip, "fleet": fleet, "store": kv} {
		if c.calls != 1 {
			t.Fatalf("%s called %d times", name, c.calls)
		}
	}
}

func TestNilJobsAreSkipped(t *testing.T) {
	s := New(Jobs{}, zap.NewNop())
	s.sweepCodes()
	s.sweepStore()
	s.resumePayments()
	s.expireVIP()
	s.reconcileBots()
	s.dailyReport()
}

func TestPanicIsRecovered(t *testing.T) {
	s := New(Jobs{Codes: panicky{}}, zap.NewNop())
	s.sweepCodes()
}

func TestDailyReport(t *testing.T) {
	fake := transport.NewFake()
	s := New(Jobs{
		Stats: func(ctx context.Context) (*bot.Stats, error) {
			return &bot.Stats{Users: 4, Sales: 3, Revenue: decimal.RequireFromString("29.70"), Commission: decimal.RequireFromString("5.94")}, nil
		},
		Notifier: fake,
		AdminIDs: []int64{1, 2},
	}, zap.NewNop())

	s.dailyReport()
	sent := fake.Sent()
	if len(sent) != 2 {
		t.Fatalf("sent %d reports", len(sent))
	}
	if !strings.Contains(sent[0].Text, "Vendas: 3") || !strings.Contains(sent[0].Text, "29,70") {
		t.Fatalf("report = %q", sent[0].Text)
	}
}

func TestStartRegistersJobs(t *testing.T) {
	payments := &counter{}
	s := New(Jobs{Payments: payments}, zap.NewNop())
	s.Start()
	defer s.Stop()

	if payments.calls != 1 {
		t.Fatalf("pending payments resumed %d times at start", payments.calls)
	}
	if got := len(s.cron.Entries()); got != 6 {
		t.Fatalf("entries = %d", got)
	}
}
