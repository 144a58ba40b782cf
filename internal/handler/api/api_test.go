package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"zenyx/internal/bot"
	"zenyx/internal/checkout"
	"zenyx/internal/models"
	"zenyx/internal/registry"
	"zenyx/internal/repository"
	"zenyx/internal/store"
	"zenyx/internal/wallet"
)

type fleet struct {
	running  map[string]bool
	restarts []string
}

func (f *fleet) Handles() []registry.Handle {
	var out []registry.Handle
	for token := range f.running {
		out = append(out, registry.Handle{Token: token, StartedAt: time.Now()})
	}
	return out
}

func (f *fleet) Restart(ctx context.Context, token string) (*registry.Handle, error) {
	f.restarts = append(f.restarts, token)
	f.running[token] = true
	return &registry.Handle{Token: token, BotID: 1, Username: "one", StartedAt: time.Now()}, nil
}

func (f *fleet) Stop(token string) bool {
	if !f.running[token] {
		return false
	}
	delete(f.running, token)
	return true
}

func (f *fleet) Deactivate(ctx context.Context, token string) error {
	f.Stop(token)
	return nil
}

type confirmer struct{}

func (confirmer) CheckByID(ctx context.Context, id string) (checkout.Outcome, error) {
	if id == "PAY-1" {
		return checkout.AlreadyPaid, nil
	}
	return checkout.Pending, models.ErrNotFound
}

type env struct {
	e     *echo.Echo
	fleet *fleet
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	kv := store.NewMemory()
	keys := repository.NewKeys("test")
	users := repository.NewUserRepository(kv, keys)
	bots := repository.NewBotRepository(kv, keys)
	payments := repository.NewPaymentRepository(kv, keys)

	for _, u := range []struct {
		id   int64
		name string
	}{{7, "alice"}, {8, "bob"}, {9, "carol"}} {
		if _, err := users.Touch(ctx, u.id, u.name, strings.ToUpper(u.name[:1])+u.name[1:], ""); err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}
	if err := bots.Create(ctx, &models.BotConfig{Token: "1:AAAAAAAAAAAA", BotID: 1, Username: "one", OwnerID: 7, Active: true}); err != nil {
		t.Fatalf("seed bot: %v", err)
	}
	if err := bots.Create(ctx, &models.BotConfig{Token: "2:BBBBBBBBBBBB", BotID: 2, Username: "two", OwnerID: 8, Active: true}); err != nil {
		t.Fatalf("seed bot: %v", err)
	}
	if err := payments.Create(ctx, &models.Payment{
		ID: "PAY-1", BuyerID: 9, BotToken: "1:AAAAAAAAAAAA", PlanName: "VIP",
		Price: decimal.RequireFromString("19.90"), Status: models.PaymentPending, CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("seed payment: %v", err)
	}

	fl := &fleet{running: map[string]bool{"1:AAAAAAAAAAAA": true}}
	deps := Deps{
		Users:    users,
		Bots:     bots,
		Payments: payments,
		Fleet:    fl,
		Checkout: confirmer{},
		Wallet:   wallet.NewService(users, nil, wallet.DefaultOptions(), zap.NewNop()),
	}
	deps.Stats = func(ctx context.Context) (*bot.Stats, error) {
		return &bot.Stats{Users: 3, Bots: 2, RunningBots: len(fl.running), Revenue: decimal.Zero, Commission: decimal.Zero}, nil
	}

	e := echo.New()
	e.POST("/api/bots", NewBotHandler(deps, zap.NewNop()).Handle)
	e.POST("/api/payments", NewPaymentHandler(deps, zap.NewNop()).Handle)
	e.POST("/api/users", NewUserHandler(deps, zap.NewNop()).Handle)
	e.GET("/api/stats", NewStatsHandler(deps, zap.NewNop()).Handle)
	return &env{e: e, fleet: fl}
}

type response struct {
	Status bool            `json:"status"`
	Msg    string          `json:"msg"`
	Obj    json.RawMessage `json:"obj"`
}

func (v *env) call(t *testing.T, method, path, body string) response {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	v.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("%s %s: status %d", method, path, rec.Code)
	}
	var out response
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v (%s)", err, rec.Body.String())
	}
	return out
}

func TestBotsActions(t *testing.T) {
	v := newEnv(t)

	res := v.call(t, http.MethodPost, "/api/bots", `{"actions":"bots"}`)
	if !res.Status {
		t.Fatalf("bots: %s", res.Msg)
	}
	var page struct {
		Data  []map[string]interface{} `json:"data"`
		Total int                      `json:"total"`
	}
	_ = json.Unmarshal(res.Obj, &page)
	if page.Total != 2 || len(page.Data) != 2 {
		t.Fatalf("page = %+v", page)
	}
	for _, b := range page.Data {
		if strings.Contains(b["token"].(string), "AAAAAAAAAAAA") {
			t.Fatalf("token not masked: %v", b["token"])
		}
	}

	res = v.call(t, http.MethodPost, "/api/bots", `{"actions":"bots","running":"1"}`)
	_ = json.Unmarshal(res.Obj, &page)
	if page.Total != 1 {
		t.Fatalf("running filter total = %d", page.Total)
	}

	if res = v.call(t, http.MethodPost, "/api/bots", `{"actions":"bot_restart","bot_id":2}`); !res.Status {
		t.Fatalf("restart: %s", res.Msg)
	}
	if len(v.fleet.restarts) != 1 || v.fleet.restarts[0] != "2:BBBBBBBBBBBB" {
		t.Fatalf("restarts = %v", v.fleet.restarts)
	}

	if res = v.call(t, http.MethodPost, "/api/bots", `{"actions":"bot_stop","bot_id":"1"}`); !res.Status {
		t.Fatalf("stop: %s", res.Msg)
	}
	if res = v.call(t, http.MethodPost, "/api/bots", `{"actions":"bot_stop","bot_id":"1"}`); res.Status {
		t.Fatal("second stop should fail")
	}
	if res = v.call(t, http.MethodPost, "/api/bots", `{"actions":"bot","bot_id":99}`); res.Status || res.Msg != "Not found" {
		t.Fatalf("missing bot: %+v", res)
	}
	if res = v.call(t, http.MethodPost, "/api/bots", `{"actions":"fly"}`); res.Status {
		t.Fatal("unknown action accepted")
	}
}

func TestPaymentActions(t *testing.T) {
	v := newEnv(t)

	res := v.call(t, http.MethodPost, "/api/payments", `{"actions":"payment","id":"PAY-1"}`)
	if !res.Status || !strings.Contains(string(res.Obj), `"price":"19.90"`) {
		t.Fatalf("payment: %+v %s", res, res.Obj)
	}
	res = v.call(t, http.MethodPost, "/api/payments", `{"actions":"payments","limit":10}`)
	if !res.Status || !strings.Contains(string(res.Obj), "PAY-1") {
		t.Fatalf("payments: %s", res.Obj)
	}
	res = v.call(t, http.MethodPost, "/api/payments", `{"actions":"payment_check","id":"PAY-1"}`)
	if !res.Status || !strings.Contains(string(res.Obj), "already_paid") {
		t.Fatalf("check: %s", res.Obj)
	}
	if res = v.call(t, http.MethodPost, "/api/payments", `{"actions":"payment_check"}`); res.Status {
		t.Fatal("check without id accepted")
	}
}

func TestUserActions(t *testing.T) {
	v := newEnv(t)

	res := v.call(t, http.MethodPost, "/api/users", `{"actions":"users","q":"@bo"}`)
	var page struct {
		Total int `json:"total"`
	}
	_ = json.Unmarshal(res.Obj, &page)
	if page.Total != 1 {
		t.Fatalf("search total = %d (%s)", page.Total, res.Obj)
	}

	res = v.call(t, http.MethodPost, "/api/users", `{"actions":"users","limit":2,"page":2}`)
	var paged struct {
		Data       []interface{} `json:"data"`
		TotalPages int           `json:"total_pages"`
	}
	_ = json.Unmarshal(res.Obj, &paged)
	if len(paged.Data) != 1 || paged.TotalPages != 2 {
		t.Fatalf("paged = %+v", paged)
	}

	if res = v.call(t, http.MethodPost, "/api/users", `{"actions":"user","chat_id":7}`); !res.Status {
		t.Fatalf("user: %s", res.Msg)
	}
	if res = v.call(t, http.MethodPost, "/api/users", `{"actions":"withdrawal_refresh","chat_id":7,"withdrawal_id":"x"}`); res.Status {
		t.Fatal("unknown withdrawal refreshed")
	}
}

func TestStats(t *testing.T) {
	v := newEnv(t)
	res := v.call(t, http.MethodGet, "/api/stats", "")
	if !res.Status || !strings.Contains(string(res.Obj), `"running_bots":1`) {
		t.Fatalf("stats: %s", res.Obj)
	}
}
