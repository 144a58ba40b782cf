package repository

import (
	"context"
	"errors"
	"time"

	"zenyx/internal/models"
	"zenyx/internal/store"
)

// StateTTL bounds how long an abandoned conversation step survives.
const StateTTL = 24 * time.Hour

// StateRepository stores the conversational state per bot scope and user.
type StateRepository struct {
	kv   store.KV
	keys Keys
}

func NewStateRepository(kv store.KV, keys Keys) *StateRepository {
	return &StateRepository{kv: kv, keys: keys}
}

// Get returns StateIdle when nothing is stored.
func (r *StateRepository) Get(ctx context.Context, scope string, userID int64) (models.State, error) {
	raw, err := r.kv.Get(ctx, r.keys.State(scope, userID))
	if errors.Is(err, store.ErrNotFound) {
		return models.StateIdle, nil
	}
	if err != nil {
		return models.StateIdle, err
	}
	return models.State(raw), nil
}

// Set overwrites the current state.
func (r *StateRepository) Set(ctx context.Context, scope string, userID int64, state models.State) error {
	if state == models.StateIdle {
		return r.Clear(ctx, scope, userID)
	}
	return r.kv.Set(ctx, r.keys.State(scope, userID), []byte(state), StateTTL)
}

func (r *StateRepository) Clear(ctx context.Context, scope string, userID int64) error {
	return r.kv.Delete(ctx, r.keys.State(scope, userID))
}
