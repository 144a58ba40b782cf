package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"zenyx/internal/handler/api"
	"zenyx/internal/middleware"
)

func TestSetupRoutes(t *testing.T) {
	hits := 0
	webhook := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	})

	e := echo.New()
	Setup(e, api.Deps{}, Options{
		APIKey:  "secret",
		Deduper: middleware.NewDeduper(nil, "test", time.Minute),
		Webhook: webhook,
	}, zap.NewNop())

	do := func(method, path, body string) int {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := do(http.MethodGet, "/health", ""); code != http.StatusOK {
		t.Fatalf("health: %d", code)
	}
	if code := do(http.MethodPost, "/api/bots", `{"actions":"bots"}`); code != http.StatusUnauthorized {
		t.Fatalf("api without token: %d", code)
	}

	// httptest requests come from 192.0.2.1, outside Telegram's ranges.
	if code := do(http.MethodPost, "/bot/webhook", `{"update_id":1}`); code != http.StatusForbidden {
		t.Fatalf("foreign webhook: %d", code)
	}
	if hits != 0 {
		t.Fatal("webhook reached from foreign ip")
	}

	if code := do(http.MethodPost, "/webhooks/pushinpay/1", `{"id":"x","status":"paid"}`); code != http.StatusNotFound {
		t.Fatalf("pushinpay route should be absent without handler: %d", code)
	}
}
