package repository

import (
	"context"
	"encoding/json"
	"errors"

	"zenyx/internal/models"
	"zenyx/internal/store"
)

// BotRepository handles child bot configurations keyed by token.
type BotRepository struct {
	kv   store.KV
	keys Keys
}

func NewBotRepository(kv store.KV, keys Keys) *BotRepository {
	return &BotRepository{kv: kv, keys: keys}
}

func (r *BotRepository) FindByToken(ctx context.Context, token string) (*models.BotConfig, error) {
	return getJSON[models.BotConfig](ctx, r.kv, r.keys.Bot(token))
}

// Create claims the token. It fails with models.ErrDuplicateToken when any
// configuration already holds it.
func (r *BotRepository) Create(ctx context.Context, cfg *models.BotConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	err = r.kv.Create(ctx, r.keys.Bot(cfg.Token), raw, 0)
	if errors.Is(err, store.ErrExists) {
		return models.ErrDuplicateToken
	}
	return err
}

// Update mutates a configuration atomically.
func (r *BotRepository) Update(ctx context.Context, token string, fn func(*models.BotConfig) error) (*models.BotConfig, error) {
	return updateJSON(ctx, r.kv, r.keys.Bot(token), func(b *models.BotConfig) (*models.BotConfig, error) {
		if b == nil {
			return nil, models.ErrNotFound
		}
		if err := fn(b); err != nil {
			return nil, err
		}
		return b, nil
	})
}

func (r *BotRepository) Delete(ctx context.Context, token string) error {
	return r.kv.Delete(ctx, r.keys.Bot(token))
}

func (r *BotRepository) FindAll(ctx context.Context) ([]models.BotConfig, error) {
	return listJSON[models.BotConfig](ctx, r.kv, r.keys.Bots())
}

// FindActive returns configurations flagged active, for bootstrapping the registry.
func (r *BotRepository) FindActive(ctx context.Context) ([]models.BotConfig, error) {
	all, err := r.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	active := all[:0]
	for _, b := range all {
		if b.Active {
			active = append(active, b)
		}
	}
	return active, nil
}

// FindByBotID resolves a configuration from the numeric bot id embedded in its token.
func (r *BotRepository) FindByBotID(ctx context.Context, botID int64) (*models.BotConfig, error) {
	all, err := r.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].BotID == botID {
			return &all[i], nil
		}
	}
	return nil, models.ErrNotFound
}
