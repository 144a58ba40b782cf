package bot

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"zenyx/internal/config"
	"zenyx/internal/conversation"
	"zenyx/internal/models"
	"zenyx/internal/registry"
	"zenyx/internal/repository"
	"zenyx/internal/store"
	"zenyx/internal/transport"
	"zenyx/internal/wallet"
)

const (
	userID    = int64(100)
	adminID   = int64(1)
	channelID = int64(-100777)
	validTok  = "222:BBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"
)

type fleet struct {
	bots    *repository.BotRepository
	users   *repository.UserRepository
	running []string
	created []string
}

func (f *fleet) Create(ctx context.Context, ownerID int64, token string) (*registry.Handle, error) {
	if !strings.HasPrefix(token, "222:") {
		return nil, fmt.Errorf("%w: bad token", models.ErrInvalidInput)
	}
	cfg := &models.BotConfig{Token: token, BotID: 222, Username: "newbot", OwnerID: ownerID, Active: true, CreatedAt: time.Now()}
	if err := f.bots.Create(ctx, cfg); err != nil {
		return nil, err
	}
	if _, err := f.users.Update(ctx, ownerID, func(u *models.User) error {
		u.Bots = append(u.Bots, token)
		return nil
	}); err != nil {
		return nil, err
	}
	f.created = append(f.created, token)
	f.running = append(f.running, token)
	return &registry.Handle{Token: token, BotID: 222, Username: "newbot", OwnerID: ownerID}, nil
}

func (f *fleet) Restart(ctx context.Context, token string) (*registry.Handle, error) {
	return &registry.Handle{Token: token}, nil
}

func (f *fleet) ListRunning() []string { return f.running }

type fixture struct {
	h      *Handlers
	fake   *transport.Fake
	users  *repository.UserRepository
	states *repository.StateRepository
	fleet  *fleet
}

func newFixture(t *testing.T, channel int64) *fixture {
	t.Helper()
	kv := store.NewMemory()
	keys := repository.NewKeys("test")
	users := repository.NewUserRepository(kv, keys)
	bots := repository.NewBotRepository(kv, keys)
	f := &fixture{
		fake:   transport.NewFake(),
		users:  users,
		states: repository.NewStateRepository(kv, keys),
		fleet:  &fleet{bots: bots, users: users},
	}
	w := wallet.NewService(users, nil, wallet.DefaultOptions(), zap.NewNop())
	w.SetNotifier(f.fake)
	f.h = NewHandlers(config.BotConfig{
		Username:  "zenyxbot",
		ChannelID: channel,
		AdminIDs:  []int64{adminID},
	}, Deps{
		Users:    users,
		Bots:     bots,
		States:   f.states,
		Payments: repository.NewPaymentRepository(kv, keys),
		Fleet:    f.fleet,
		Wallet:   w,
	}, f.fake, zap.NewNop())
	return f
}

func (f *fixture) last(t *testing.T, chatID int64) transport.Sent {
	t.Helper()
	sent := f.fake.SentTo(chatID)
	if len(sent) == 0 {
		t.Fatalf("nothing sent to %d", chatID)
	}
	return sent[len(sent)-1]
}

func hasButton(kb transport.Keyboard, data string) bool {
	for _, row := range kb {
		for _, b := range row {
			if b.Data == data {
				return true
			}
		}
	}
	return false
}

func TestStartShowsMenu(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	if err := f.h.Start(ctx, Sender{ID: userID, FirstName: "Ana"}, userID, ""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	msg := f.last(t, userID)
	if !hasButton(msg.Keyboard, cbCreateBot) || hasButton(msg.Keyboard, cbAdmin) {
		t.Fatalf("unexpected menu: %+v", msg.Keyboard)
	}
	if _, err := f.users.FindByID(ctx, userID); err != nil {
		t.Fatalf("user not registered: %v", err)
	}

	if err := f.h.Start(ctx, Sender{ID: adminID}, adminID, ""); err != nil {
		t.Fatalf("Start admin: %v", err)
	}
	if !hasButton(f.last(t, adminID).Keyboard, cbAdmin) {
		t.Fatal("admin menu missing admin row")
	}
}

func TestChannelGate(t *testing.T) {
	f := newFixture(t, channelID)
	ctx := context.Background()
	from := Sender{ID: userID}

	if err := f.h.Start(ctx, from, userID, ""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !hasButton(f.last(t, userID).Keyboard, cbVerify) {
		t.Fatal("expected verification prompt")
	}

	f.fake.Statuses[channelID] = "left"
	_ = f.h.Callback(ctx, from, userID, cbVerify)
	if !strings.Contains(f.last(t, userID).Text, "ainda não entrou") {
		t.Fatalf("expected failed verification, got %q", f.last(t, userID).Text)
	}

	f.fake.Statuses[channelID] = "member"
	_ = f.h.Callback(ctx, from, userID, cbVerify)
	if !hasButton(f.last(t, userID).Keyboard, cbCreateBot) {
		t.Fatal("expected main menu after verification")
	}
}

func TestCreateBot(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	from := Sender{ID: userID}
	_ = f.h.Start(ctx, from, userID, "")

	if err := f.h.Callback(ctx, from, userID, cbCreateBot); err != nil {
		t.Fatalf("Callback: %v", err)
	}
	if st, _ := f.states.Get(ctx, conversation.RootScope, userID); st != models.StateWaitingToken {
		t.Fatalf("state = %q", st)
	}

	_ = f.h.Message(ctx, from, userID, "not-a-token")
	if !strings.Contains(f.last(t, userID).Text, "TOKEN INVÁLIDO") {
		t.Fatalf("got %q", f.last(t, userID).Text)
	}
	if st, _ := f.states.Get(ctx, conversation.RootScope, userID); st != models.StateWaitingToken {
		t.Fatalf("invalid token should keep the state, got %q", st)
	}

	_ = f.h.Message(ctx, from, userID, "  "+validTok+"  ")
	if !strings.Contains(f.last(t, userID).Text, "@newbot") {
		t.Fatalf("got %q", f.last(t, userID).Text)
	}
	if len(f.fleet.created) != 1 || f.fleet.created[0] != validTok {
		t.Fatalf("created = %v", f.fleet.created)
	}
	if st, _ := f.states.Get(ctx, conversation.RootScope, userID); st != models.StateIdle {
		t.Fatalf("state = %q", st)
	}

	_ = f.h.Callback(ctx, from, userID, cbMyBots)
	if !hasButton(f.last(t, userID).Keyboard, cbBotPrefix+"222") {
		t.Fatal("created bot missing from list")
	}
	_ = f.h.Callback(ctx, from, userID, cbBotPrefix+"222")
	if !strings.Contains(f.last(t, userID).Text, "Online") {
		t.Fatalf("got %q", f.last(t, userID).Text)
	}

	// Someone else cannot inspect it.
	_ = f.h.Callback(ctx, Sender{ID: 999}, 999, cbRestart+"222")
	if !strings.Contains(f.last(t, 999).Text, "permissão") {
		t.Fatalf("got %q", f.last(t, 999).Text)
	}
}

func TestWithdrawAsksForPixKey(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	from := Sender{ID: userID}
	_ = f.h.Start(ctx, from, userID, "")

	_ = f.h.Callback(ctx, from, userID, cbWithdraw)
	if !strings.Contains(f.last(t, userID).Text, "Saldo insuficiente") {
		t.Fatalf("got %q", f.last(t, userID).Text)
	}

	if _, err := f.users.Update(ctx, userID, func(u *models.User) error {
		u.Balance = decimal.NewFromInt(50)
		return nil
	}); err != nil {
		t.Fatalf("seed balance: %v", err)
	}
	_ = f.h.Callback(ctx, from, userID, cbWithdraw)
	if st, _ := f.states.Get(ctx, conversation.RootScope, userID); st != models.StateWaitingPixKey {
		t.Fatalf("state = %q", st)
	}

	_ = f.h.Message(ctx, from, userID, "nope")
	if !strings.Contains(f.last(t, userID).Text, "Chave PIX inválida") {
		t.Fatalf("got %q", f.last(t, userID).Text)
	}

	_ = f.h.Message(ctx, from, userID, "ana@example.com")
	if !strings.Contains(f.last(t, userID).Text, "Saque de") {
		t.Fatalf("got %q", f.last(t, userID).Text)
	}
	u, _ := f.users.FindByID(ctx, userID)
	if !u.Balance.IsZero() || len(u.Withdrawals) != 1 || u.PixKeyType != wallet.KeyEmail {
		t.Fatalf("unexpected user after withdrawal: %+v", u)
	}

	_ = f.h.Callback(ctx, from, userID, cbWithdraw)
	if !strings.Contains(f.last(t, userID).Text, "Saldo insuficiente") {
		t.Fatalf("got %q", f.last(t, userID).Text)
	}
}

func TestReferralPayload(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	referrer := int64(50)
	_ = f.h.Start(ctx, Sender{ID: referrer}, referrer, "")

	_ = f.h.Start(ctx, Sender{ID: userID}, userID, fmt.Sprintf("ref_%d", referrer))
	u, _ := f.users.FindByID(ctx, userID)
	if u.ReferredBy != referrer {
		t.Fatalf("ReferredBy = %d", u.ReferredBy)
	}
	if !strings.Contains(f.last(t, referrer).Text, "Novo indicado") {
		t.Fatalf("referrer not notified: %q", f.last(t, referrer).Text)
	}

	// Self referral is ignored and the menu still shows.
	other := int64(60)
	_ = f.h.Start(ctx, Sender{ID: other}, other, fmt.Sprintf("ref_%d", other))
	if u, _ := f.users.FindByID(ctx, other); u.ReferredBy != 0 {
		t.Fatalf("self referral stored: %d", u.ReferredBy)
	}

	_ = f.h.Callback(ctx, Sender{ID: referrer}, referrer, cbReferral)
	text := f.last(t, referrer).Text
	if !strings.Contains(text, "Usuários indicados: 1") || !strings.Contains(text, "start=ref_50") {
		t.Fatalf("got %q", text)
	}
}

func TestVIPTrialOnce(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	from := Sender{ID: userID}
	_ = f.h.Start(ctx, from, userID, "")

	_ = f.h.Callback(ctx, from, userID, cbVIP)
	if !hasButton(f.last(t, userID).Keyboard, cbVIPActivate) {
		t.Fatal("expected activation button")
	}
	_ = f.h.Callback(ctx, from, userID, cbVIPActivate)
	if !strings.Contains(f.last(t, userID).Text, "ATIVADO") {
		t.Fatalf("got %q", f.last(t, userID).Text)
	}
	_ = f.h.Callback(ctx, from, userID, cbVIPActivate)
	if strings.Contains(f.last(t, userID).Text, "ATIVADO") {
		t.Fatal("trial activated twice")
	}
}

func TestAdminRequiresAdmin(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	_ = f.h.Callback(ctx, Sender{ID: userID}, userID, cbAdmin)
	if !strings.Contains(f.last(t, userID).Text, "permissão") {
		t.Fatalf("got %q", f.last(t, userID).Text)
	}

	_ = f.h.Callback(ctx, Sender{ID: adminID}, adminID, cbAdmin)
	if !strings.Contains(f.last(t, adminID).Text, "MENU ADMINISTRATIVO") {
		t.Fatalf("got %q", f.last(t, adminID).Text)
	}
	_ = f.h.Callback(ctx, Sender{ID: adminID}, adminID, cbAdminPending)
	if !strings.Contains(f.last(t, adminID).Text, "Nenhum pagamento pendente") {
		t.Fatalf("got %q", f.last(t, adminID).Text)
	}
}

func TestCancelResetsState(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	from := Sender{ID: userID}
	_ = f.h.Callback(ctx, from, userID, cbSetPix)
	_ = f.h.Callback(ctx, from, userID, cbCancel)
	if st, _ := f.states.Get(ctx, conversation.RootScope, userID); st != models.StateIdle {
		t.Fatalf("state = %q", st)
	}
}
