package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"zenyx/internal/models"
	"zenyx/internal/store"
)

// Keys builds the namespaced keys for each logical map of the state store.
type Keys struct {
	prefix string
}

func NewKeys(prefix string) Keys {
	if prefix == "" {
		prefix = "zenyx"
	}
	return Keys{prefix: prefix}
}

func (k Keys) User(id int64) string        { return k.prefix + ":user:" + strconv.FormatInt(id, 10) }
func (k Keys) Users() string               { return k.prefix + ":user:" }
func (k Keys) Bot(token string) string     { return k.prefix + ":bot:" + token }
func (k Keys) Bots() string                { return k.prefix + ":bot:" }
func (k Keys) Code(code string) string     { return k.prefix + ":code:" + code }
func (k Keys) Codes() string               { return k.prefix + ":code:" }
func (k Keys) Payments() string            { return k.prefix + ":payment:" }
func (k Keys) State(scope string, userID int64) string {
	return fmt.Sprintf("%s:state:%s:%d", k.prefix, scope, userID)
}
func (k Keys) Payment(buyerID int64, paymentID string) string {
	return fmt.Sprintf("%s:payment:%d:%s", k.prefix, buyerID, paymentID)
}

func getJSON[T any](ctx context.Context, kv store.KV, key string) (*T, error) {
	raw, err := kv.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &v, nil
}

// updateJSON runs fn on the decoded record under the store's per-key atomicity.
// fn receives nil when the record does not exist yet.
func updateJSON[T any](ctx context.Context, kv store.KV, key string, fn func(*T) (*T, error)) (*T, error) {
	var out *T
	err := kv.Update(ctx, key, func(cur []byte) ([]byte, error) {
		var v *T
		if cur != nil {
			v = new(T)
			if err := json.Unmarshal(cur, v); err != nil {
				return nil, fmt.Errorf("decode %s: %w", key, err)
			}
		}
		next, err := fn(v)
		if err != nil {
			return nil, err
		}
		out = next
		return json.Marshal(next)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func listJSON[T any](ctx context.Context, kv store.KV, prefix string) ([]T, error) {
	keys, err := kv.Keys(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(keys))
	for _, key := range keys {
		v, err := getJSON[T](ctx, kv, key)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, nil
}
