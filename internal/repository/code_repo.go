package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"zenyx/internal/models"
	"zenyx/internal/store"
)

// CodeRepository handles channel linking codes.
type CodeRepository struct {
	kv   store.KV
	keys Keys
}

func NewCodeRepository(kv store.KV, keys Keys) *CodeRepository {
	return &CodeRepository{kv: kv, keys: keys}
}

type storedCode struct {
	models.LinkingCode
	Claimed bool `json:"claimed,omitempty"`
}

// Create stores a fresh code and returns store.ErrExists on collision.
// The store-level TTL is a safety net; expiry is decided by ExpiresAt.
func (r *CodeRepository) Create(ctx context.Context, code *models.LinkingCode) error {
	raw, err := json.Marshal(storedCode{LinkingCode: *code})
	if err != nil {
		return err
	}
	ttl := time.Until(code.ExpiresAt) + time.Hour
	return r.kv.Create(ctx, r.keys.Code(code.Code), raw, ttl)
}

// Find returns an unclaimed code or models.ErrNotFound.
func (r *CodeRepository) Find(ctx context.Context, code string) (*models.LinkingCode, error) {
	sc, err := getJSON[storedCode](ctx, r.kv, r.keys.Code(code))
	if err != nil {
		return nil, err
	}
	if sc.Claimed {
		return nil, models.ErrNotFound
	}
	return &sc.LinkingCode, nil
}

// Claim marks the code as used. Only one caller can claim a given code.
func (r *CodeRepository) Claim(ctx context.Context, code string) error {
	_, err := updateJSON(ctx, r.kv, r.keys.Code(code), func(sc *storedCode) (*storedCode, error) {
		if sc == nil || sc.Claimed {
			return nil, models.ErrNotFound
		}
		sc.Claimed = true
		return sc, nil
	})
	return err
}

// Release undoes a Claim when the redemption could not complete.
func (r *CodeRepository) Release(ctx context.Context, code string) error {
	_, err := updateJSON(ctx, r.kv, r.keys.Code(code), func(sc *storedCode) (*storedCode, error) {
		if sc == nil {
			return nil, models.ErrNotFound
		}
		sc.Claimed = false
		return sc, nil
	})
	return err
}

func (r *CodeRepository) Delete(ctx context.Context, code string) error {
	return r.kv.Delete(ctx, r.keys.Code(code))
}

// DeleteExpired removes codes past their expiry and returns how many were dropped.
func (r *CodeRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	codes, err := listJSON[storedCode](ctx, r.kv, r.keys.Codes())
	if err != nil {
		return 0, err
	}
	n := 0
	for _, c := range codes {
		if !c.Expired(now) {
			continue
		}
		if err := r.kv.Delete(ctx, r.keys.Code(c.Code)); err != nil && !errors.Is(err, store.ErrNotFound) {
			return n, err
		}
		n++
	}
	return n, nil
}
