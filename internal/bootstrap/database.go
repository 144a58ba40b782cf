package bootstrap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"zenyx/internal/config"
	"zenyx/internal/models"
	"zenyx/internal/store"
)

// Backend is the opened persistence layer.
type Backend struct {
	KV store.KV
	// Redis is set when the redis driver is in use; the webhook deduper shares it.
	Redis *redis.Client
	// Sweeper is set for stores that need expired keys purged periodically.
	Sweeper store.Sweeper
}

// Migrate ensures the tables of the SQL store exist.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("auto migrate failed: %w", err)
	}
	return nil
}

func allModels() []interface{} {
	return []interface{}{
		&models.KVEntry{},
	}
}

// OpenStore connects the backend named by cfg.Store.Driver.
func OpenStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Backend, error) {
	switch cfg.Store.Driver {
	case "redis", "":
		client, err := config.NewRedis(ctx, &cfg.Redis)
		if err != nil {
			return nil, err
		}
		logger.Info("Using redis store", zap.String("addr", cfg.Redis.Addr))
		return &Backend{KV: store.NewRedis(client), Redis: client}, nil

	case "mysql":
		db, err := config.NewDatabase(&cfg.Database)
		if err != nil {
			return nil, err
		}
		if err := Migrate(db); err != nil {
			return nil, err
		}
		kv := store.NewSQL(db)
		logger.Info("Using mysql store", zap.String("host", cfg.Database.Host), zap.String("db", cfg.Database.Name))
		return &Backend{KV: kv, Sweeper: kv}, nil

	case "memory":
		kv := store.NewMemory()
		logger.Warn("Using in-memory store; data is lost on restart")
		return &Backend{KV: kv, Sweeper: kv}, nil
	}
	return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.Store.Driver)
}
