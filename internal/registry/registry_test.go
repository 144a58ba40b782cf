package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"zenyx/internal/models"
	"zenyx/internal/pkg/telegram"
	"zenyx/internal/repository"
	"zenyx/internal/store"
	"zenyx/internal/transport"
)

const testToken = "123456789:ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghi"

type fakeIdentifier struct {
	calls atomic.Int32
	delay time.Duration
	// failOn makes the n-th call (1-based) report the transport as down.
	failOn int32
}

func (f *fakeIdentifier) Identify(ctx context.Context, token string) (*telegram.Identity, error) {
	n := f.calls.Add(1)
	if f.failOn > 0 && n == f.failOn {
		return nil, fmt.Errorf("%w: getMe timed out", models.ErrTransportUnavailable)
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if token == "999:rejected" {
		return nil, fmt.Errorf("%w: rejected", models.ErrInvalidInput)
	}
	return &telegram.Identity{ID: 123456789, IsBot: true, Username: "shop_bot"}, nil
}

type fakeInstance struct {
	stop chan struct{}
	once sync.Once
	m    *transport.Fake
}

func (f *fakeInstance) Start()                         { <-f.stop }
func (f *fakeInstance) Stop()                          { f.once.Do(func() { close(f.stop) }) }
func (f *fakeInstance) Messenger() transport.Messenger { return f.m }

type fakeLauncher struct {
	launches atomic.Int32
}

func (f *fakeLauncher) Launch(cfg *models.BotConfig) (Instance, error) {
	f.launches.Add(1)
	return &fakeInstance{stop: make(chan struct{}), m: transport.NewFake()}, nil
}

type fixture struct {
	reg      *Registry
	bots     *repository.BotRepository
	users    *repository.UserRepository
	ident    *fakeIdentifier
	launcher *fakeLauncher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	kv := store.NewMemory()
	keys := repository.NewKeys("test")
	f := &fixture{
		bots:     repository.NewBotRepository(kv, keys),
		users:    repository.NewUserRepository(kv, keys),
		ident:    &fakeIdentifier{},
		launcher: &fakeLauncher{},
	}
	offline := func(token string) (transport.Messenger, error) { return transport.NewFake(), nil }
	f.reg = New(f.bots, f.users, f.ident, f.launcher, offline, Options{MaxBotsPerUser: 3}, zap.NewNop())
	t.Cleanup(f.reg.StopAll)
	return f
}

func (f *fixture) seedBot(t *testing.T, token string) {
	t.Helper()
	err := f.bots.Create(context.Background(), &models.BotConfig{Token: token, OwnerID: 1, Active: true})
	if err != nil {
		t.Fatalf("seed bot: %v", err)
	}
}

func TestConcurrentStartLaunchesOnce(t *testing.T) {
	f := newFixture(t)
	f.ident.delay = 20 * time.Millisecond
	f.seedBot(t, testToken)

	var wg sync.WaitGroup
	handles := make([]*Handle, 20)
	errs := make([]error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i], errs[i] = f.reg.Start(context.Background(), testToken)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
		if handles[i] != handles[0] {
			t.Fatalf("start %d returned a different handle", i)
		}
	}
	if n := f.launcher.launches.Load(); n != 1 {
		t.Fatalf("launches = %d, want 1", n)
	}
	if got := f.reg.ListRunning(); len(got) != 1 || got[0] != testToken {
		t.Fatalf("running = %v", got)
	}
}

func TestStartRecordsIdentity(t *testing.T) {
	f := newFixture(t)
	f.seedBot(t, testToken)

	h, err := f.reg.Start(context.Background(), testToken)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if h.Username != "shop_bot" || h.BotID != 123456789 {
		t.Fatalf("handle = %+v", h)
	}
	cfg, _ := f.bots.FindByToken(context.Background(), testToken)
	if cfg.Username != "shop_bot" {
		t.Fatalf("stored username = %q", cfg.Username)
	}
}

func TestStartUnknownToken(t *testing.T) {
	f := newFixture(t)
	if _, err := f.reg.Start(context.Background(), testToken); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if len(f.reg.ListRunning()) != 0 {
		t.Fatal("failed start must not stay registered")
	}
}

func TestStopAndRestart(t *testing.T) {
	f := newFixture(t)
	f.seedBot(t, testToken)

	if f.reg.Stop(testToken) {
		t.Fatal("stop on idle token should report false")
	}
	if _, err := f.reg.Start(context.Background(), testToken); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !f.reg.Stop(testToken) {
		t.Fatal("stop should report true")
	}
	if len(f.reg.ListRunning()) != 0 {
		t.Fatal("bot still listed after stop")
	}

	if _, err := f.reg.Restart(context.Background(), testToken); err != nil {
		t.Fatalf("restart from stopped: %v", err)
	}
	if _, err := f.reg.Restart(context.Background(), testToken); err != nil {
		t.Fatalf("restart from running: %v", err)
	}
	if n := f.launcher.launches.Load(); n != 3 {
		t.Fatalf("launches = %d, want 3", n)
	}
	if len(f.reg.ListRunning()) != 1 {
		t.Fatal("restart should leave exactly one instance")
	}
}

func TestConcurrentStartStop(t *testing.T) {
	f := newFixture(t)
	f.seedBot(t, testToken)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = f.reg.Start(context.Background(), testToken)
		}()
		go func() {
			defer wg.Done()
			f.reg.Stop(testToken)
		}()
	}
	wg.Wait()

	if n := len(f.reg.ListRunning()); n > 1 {
		t.Fatalf("running = %d", n)
	}
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.users.Touch(ctx, 1, "owner", "Owner", ""); err != nil {
		t.Fatalf("touch: %v", err)
	}

	if _, err := f.reg.Create(ctx, 1, "abc:123"); !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	if f.ident.calls.Load() != 0 {
		t.Fatal("malformed token must not reach telegram")
	}

	if _, err := f.reg.Create(ctx, 1, testToken); err != nil {
		t.Fatalf("create: %v", err)
	}
	u, _ := f.users.FindByID(ctx, 1)
	if !u.HasBot(testToken) {
		t.Fatal("token not added to owner")
	}

	if _, err := f.users.Touch(ctx, 2, "other", "Other", ""); err != nil {
		t.Fatalf("touch: %v", err)
	}
	if _, err := f.reg.Create(ctx, 2, testToken); !errors.Is(err, models.ErrDuplicateToken) {
		t.Fatalf("err = %v, want ErrDuplicateToken", err)
	}
}

func TestCreateLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _ = f.users.Touch(ctx, 1, "owner", "Owner", "")
	_, _ = f.users.Update(ctx, 1, func(u *models.User) error {
		u.Bots = []string{"a", "b", "c"}
		return nil
	})
	if _, err := f.reg.Create(ctx, 1, testToken); !errors.Is(err, models.ErrLimitReached) {
		t.Fatalf("err = %v, want ErrLimitReached", err)
	}
}

func TestMessengerFallsBackOffline(t *testing.T) {
	f := newFixture(t)
	f.seedBot(t, testToken)

	off, err := f.reg.Messenger(testToken)
	if err != nil {
		t.Fatalf("offline messenger: %v", err)
	}
	if _, err := f.reg.Start(context.Background(), testToken); err != nil {
		t.Fatalf("start: %v", err)
	}
	live, err := f.reg.Messenger(testToken)
	if err != nil {
		t.Fatalf("live messenger: %v", err)
	}
	if live == off {
		t.Fatal("running bot should use its live messenger")
	}
}

func TestStartAllAndDeactivate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const second = "222333444:ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghi"
	f.seedBot(t, testToken)
	f.seedBot(t, second)
	f.seedBot(t, "999:rejected")
	if err := f.bots.Create(ctx, &models.BotConfig{Token: "555:idle", OwnerID: 1}); err != nil {
		t.Fatalf("seed inactive: %v", err)
	}

	if n := f.reg.StartAll(ctx); n != 2 {
		t.Fatalf("started = %d, want 2", n)
	}
	if len(f.reg.ListRunning()) != 2 {
		t.Fatalf("running = %v", f.reg.ListRunning())
	}

	if err := f.reg.Deactivate(ctx, testToken); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if got := f.reg.ListRunning(); len(got) != 1 || got[0] != second {
		t.Fatalf("running after deactivate = %v", got)
	}
	cfg, _ := f.bots.FindByToken(ctx, testToken)
	if cfg.Active {
		t.Fatal("configuration still active")
	}
}

func TestCreateRollsBackWhenStartFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.users.Touch(ctx, 1, "owner", "Owner", ""); err != nil {
		t.Fatalf("touch: %v", err)
	}
	f.ident.failOn = 2

	if _, err := f.reg.Create(ctx, 1, testToken); !errors.Is(err, models.ErrTransportUnavailable) {
		t.Fatalf("err = %v, want ErrTransportUnavailable", err)
	}
	if _, err := f.bots.FindByToken(ctx, testToken); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("config left behind: %v", err)
	}
	if u, _ := f.users.FindByID(ctx, 1); u.HasBot(testToken) {
		t.Fatalf("owner still lists token: %v", u.Bots)
	}
	if len(f.reg.ListRunning()) != 0 {
		t.Fatal("failed create must not leave a running bot")
	}

	if _, err := f.reg.Create(ctx, 1, testToken); err != nil {
		t.Fatalf("retry create: %v", err)
	}
	if u, _ := f.users.FindByID(ctx, 1); len(u.Bots) != 1 {
		t.Fatalf("owner bots = %v", u.Bots)
	}
}
