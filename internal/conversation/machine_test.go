package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap"

	"zenyx/internal/models"
	"zenyx/internal/repository"
	"zenyx/internal/store"
)

type recorder struct {
	calls []string
	codes []string
}

func newMachine(t *testing.T, known map[string]bool) (*Machine, *recorder) {
	t.Helper()
	states := repository.NewStateRepository(store.NewMemory(), repository.NewKeys("test"))
	rec := &recorder{}
	m := New(states, zap.NewNop()).
		On(models.StateWaitingWelcomeText, func(ctx context.Context, msg Message) error {
			rec.calls = append(rec.calls, "welcome:"+msg.Text)
			return nil
		}).
		On(models.StateWaitingMedia, func(ctx context.Context, msg Message) error {
			rec.calls = append(rec.calls, "media")
			return nil
		}).
		OnCode(func(ctx context.Context, msg Message, code string) error {
			rec.codes = append(rec.codes, code)
			if !known[code] {
				return models.ErrNotFound
			}
			rec.calls = append(rec.calls, "code:"+code)
			return nil
		}).
		Fallback(func(ctx context.Context, msg Message) error {
			rec.calls = append(rec.calls, "fallback")
			return nil
		})
	return m, rec
}

func TestCodeTakesPrecedenceOverState(t *testing.T) {
	ctx := context.Background()
	m, rec := newMachine(t, map[string]bool{"AB12CD34": true})
	if err := m.Enter(ctx, "bot1", 7, models.StateWaitingWelcomeText); err != nil {
		t.Fatalf("enter: %v", err)
	}

	if err := m.Dispatch(ctx, Message{Scope: "bot1", UserID: 7, Text: "AB12CD34"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(rec.calls) != 1 || rec.calls[0] != "code:AB12CD34" {
		t.Fatalf("calls = %v", rec.calls)
	}
	if st, _ := m.Current(ctx, "bot1", 7); st != models.StateWaitingWelcomeText {
		t.Fatalf("state = %s, code redemption must not touch it", st)
	}
}

func TestUnknownCodeFallsThroughToState(t *testing.T) {
	ctx := context.Background()
	m, rec := newMachine(t, nil)
	_ = m.Enter(ctx, "bot1", 7, models.StateWaitingWelcomeText)

	_ = m.Dispatch(ctx, Message{Scope: "bot1", UserID: 7, Text: "PROMO123"})
	if len(rec.calls) != 1 || rec.calls[0] != "welcome:PROMO123" {
		t.Fatalf("calls = %v", rec.calls)
	}
}

func TestOrdinaryTextSkipsCodeLookup(t *testing.T) {
	ctx := context.Background()
	m, rec := newMachine(t, nil)

	for _, text := range []string{"hello", "ab12cd34", "AB12CD345", "AB12 D34"} {
		_ = m.Dispatch(ctx, Message{Scope: "bot1", UserID: 7, Text: text})
	}
	if len(rec.codes) != 0 {
		t.Fatalf("code handler consulted for %v", rec.codes)
	}
	if len(rec.calls) != 4 {
		t.Fatalf("calls = %v, want 4 fallbacks", rec.calls)
	}
}

func TestEnterOverwritesAndScopes(t *testing.T) {
	ctx := context.Background()
	m, rec := newMachine(t, nil)

	_ = m.Enter(ctx, "bot1", 7, models.StateWaitingWelcomeText)
	_ = m.Enter(ctx, "bot1", 7, models.StateWaitingMedia)
	_ = m.Dispatch(ctx, Message{Scope: "bot1", UserID: 7, Media: &models.Media{Type: models.MediaPhoto, FileID: "f"}})
	_ = m.Dispatch(ctx, Message{Scope: "bot2", UserID: 7, Text: "hi"})

	if len(rec.calls) != 2 || rec.calls[0] != "media" || rec.calls[1] != "fallback" {
		t.Fatalf("calls = %v", rec.calls)
	}

	_ = m.Reset(ctx, "bot1", 7)
	if st, _ := m.Current(ctx, "bot1", 7); st != models.StateIdle {
		t.Fatalf("state = %s after reset", st)
	}
}

func TestMediaIsNeverACode(t *testing.T) {
	ctx := context.Background()
	m, rec := newMachine(t, map[string]bool{"AB12CD34": true})
	_ = m.Dispatch(ctx, Message{Scope: "bot1", UserID: 7, Text: "AB12CD34", Media: &models.Media{Type: models.MediaPhoto}})
	if len(rec.codes) != 0 {
		t.Fatal("media caption must not be treated as a code")
	}
}

func TestDescribe(t *testing.T) {
	wrapped := fmt.Errorf("create bot: %w", models.ErrDuplicateToken)
	if got := Describe(wrapped); !strings.Contains(got, "token já está em uso") {
		t.Fatalf("Describe(duplicate) = %q", got)
	}
	if got := Describe(models.ErrExpired); !strings.Contains(got, "expirado") {
		t.Fatalf("Describe(expired) = %q", got)
	}
	if Describe(nil) != "" {
		t.Fatal("Describe(nil) should be empty")
	}
	if got := Describe(errors.New("boom")); got == "" {
		t.Fatal("unknown errors still need a message")
	}
}
