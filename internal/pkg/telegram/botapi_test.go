package telegram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetMe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/bot123:good/getMe":
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":123,"is_bot":true,"first_name":"Shop","username":"shop_bot"}}`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":401,"description":"Unauthorized"}`))
		}
	}))
	defer srv.Close()

	me, err := NewBotAPI(srv.URL, "123:good").GetMe(context.Background())
	if err != nil {
		t.Fatalf("getMe: %v", err)
	}
	if me.ID != 123 || me.Username != "shop_bot" {
		t.Fatalf("identity = %+v", me)
	}

	_, err = NewBotAPI(srv.URL, "123:bad").GetMe(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestCallAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"chat not found"}`))
	}))
	defer srv.Close()

	err := NewBotAPI(srv.URL, "1:x").Call(context.Background(), "sendMessage", map[string]interface{}{"chat_id": 5}, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != 400 {
		t.Fatalf("err = %v, want APIError 400", err)
	}
}
