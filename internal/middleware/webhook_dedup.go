package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// Deduper remembers processed webhook deliveries for a while.
type Deduper interface {
	// Seen marks key and reports whether it was already marked.
	Seen(ctx context.Context, key string) (bool, error)
}

type redisDeduper struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func (d *redisDeduper) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.prefix+":"+key, "1", d.ttl).Result()
	if err != nil {
		return false, err
	}
	// false => already exists => duplicate
	return !ok, nil
}

type memoryDeduper struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	ttl    time.Duration
	nextGC time.Time
}

func newMemoryDeduper(ttl time.Duration) *memoryDeduper {
	return &memoryDeduper{
		seen:   make(map[string]time.Time),
		ttl:    ttl,
		nextGC: time.Now().Add(ttl),
	}
}

func (d *memoryDeduper) Seen(_ context.Context, key string) (bool, error) {
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if exp, ok := d.seen[key]; ok && exp.After(now) {
		return true, nil
	}

	d.seen[key] = now.Add(d.ttl)
	if now.After(d.nextGC) {
		for k, exp := range d.seen {
			if exp.Before(now) {
				delete(d.seen, k)
			}
		}
		d.nextGC = now.Add(d.ttl)
	}

	return false, nil
}

// NewDeduper uses client when given and an in-process map otherwise.
func NewDeduper(client *redis.Client, prefix string, ttl time.Duration) Deduper {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if client == nil {
		return newMemoryDeduper(ttl)
	}
	return &redisDeduper{client: client, prefix: prefix + ":dedup", ttl: ttl}
}

// peekBody reads the request body and puts it back for the next handler.
func peekBody(req *http.Request) []byte {
	if req.Body == nil {
		return nil
	}
	raw, err := io.ReadAll(req.Body)
	if err != nil {
		return nil
	}
	req.Body = io.NopCloser(bytes.NewBuffer(raw))
	return raw
}

func dedup(deduper Deduper, keyOf func([]byte) string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if deduper == nil {
				return next(c)
			}
			raw := peekBody(c.Request())
			if len(raw) == 0 {
				return next(c)
			}
			key := keyOf(raw)
			if key == "" {
				return next(c)
			}
			dup, err := deduper.Seen(c.Request().Context(), key)
			if err != nil {
				return next(c)
			}
			if dup {
				// Senders only need a 2xx to stop retrying.
				return c.NoContent(http.StatusOK)
			}
			return next(c)
		}
	}
}

// TelegramUpdateDedup drops duplicate Telegram webhook updates by update_id.
func TelegramUpdateDedup(deduper Deduper) echo.MiddlewareFunc {
	return dedup(deduper, func(raw []byte) string {
		var payload struct {
			UpdateID int64 `json:"update_id"`
		}
		if err := json.Unmarshal(raw, &payload); err != nil || payload.UpdateID == 0 {
			return ""
		}
		return "tg:" + strconv.FormatInt(payload.UpdateID, 10)
	})
}

// PushinPayNotice is the part of a PushinPay notification the platform reads.
// PushinPay posts it either as JSON or as a form.
type PushinPayNotice struct {
	ID     string `json:"id" form:"id"`
	Status string `json:"status" form:"status"`
	Value  string `json:"value" form:"value"`
}

// ParsePushinPayNotice decodes a JSON or form-encoded notification body.
func ParsePushinPayNotice(raw []byte) (PushinPayNotice, bool) {
	var n PushinPayNotice
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var body struct {
			ID     string          `json:"id"`
			Status string          `json:"status"`
			Value  json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal(trimmed, &body); err != nil {
			return n, false
		}
		n = PushinPayNotice{ID: body.ID, Status: body.Status, Value: strings.Trim(string(body.Value), `"`)}
	} else {
		form, err := url.ParseQuery(string(trimmed))
		if err != nil {
			return n, false
		}
		n = PushinPayNotice{ID: form.Get("id"), Status: form.Get("status"), Value: form.Get("value")}
	}
	n.ID = strings.TrimSpace(n.ID)
	n.Status = strings.ToLower(strings.TrimSpace(n.Status))
	return n, n.ID != ""
}

// PushinPayDedup drops repeated notifications for the same charge and status.
func PushinPayDedup(deduper Deduper) echo.MiddlewareFunc {
	return dedup(deduper, func(raw []byte) string {
		n, ok := ParsePushinPayNotice(raw)
		if !ok {
			return ""
		}
		return "pushinpay:" + n.ID + ":" + n.Status
	})
}
