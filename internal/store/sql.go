package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"zenyx/internal/models"
)

// SQL keeps every key in the kv_entries table. Update locks the row with
// SELECT ... FOR UPDATE inside a transaction; expired rows count as absent.
type SQL struct {
	db  *gorm.DB
	now func() time.Time
}

// NewSQL expects a gorm handle opened with TranslateError so duplicate keys
// surface as gorm.ErrDuplicatedKey.
func NewSQL(db *gorm.DB) *SQL {
	return &SQL{db: db, now: time.Now}
}

func (s *SQL) Get(ctx context.Context, key string) ([]byte, error) {
	var row models.KVEntry
	err := s.db.WithContext(ctx).Where("`key` = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sql get %s: %w", key, err)
	}
	if !s.live(&row) {
		return nil, ErrNotFound
	}
	return row.Value, nil
}

func (s *SQL) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	row := models.KVEntry{Key: key, Value: value, ExpiresAt: s.expiry(ttl)}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("sql set %s: %w", key, err)
	}
	return nil
}

func (s *SQL) Create(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.KVEntry
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("`key` = ?", key).First(&row).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(&models.KVEntry{Key: key, Value: value, ExpiresAt: s.expiry(ttl)}).Error
		case err != nil:
			return err
		case s.live(&row):
			return ErrExists
		default:
			return tx.Model(&row).Updates(map[string]interface{}{
				"value":      value,
				"expires_at": s.expiry(ttl),
			}).Error
		}
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrExists
	}
	return err
}

func (s *SQL) Update(ctx context.Context, key string, fn UpdateFunc) error {
	for i := 0; i < maxUpdateRetries; i++ {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var row models.KVEntry
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("`key` = ?", key).First(&row).Error
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			exists := err == nil

			var current []byte
			if exists && s.live(&row) {
				current = row.Value
			}
			next, err := fn(current)
			if err != nil {
				return err
			}

			if !exists {
				return tx.Create(&models.KVEntry{Key: key, Value: next}).Error
			}
			updates := map[string]interface{}{"value": next}
			if current == nil {
				updates["expires_at"] = nil
			}
			return tx.Model(&row).Updates(updates).Error
		})
		// Two writers inserting the same missing key: the loser retries and
		// finds the row on the next pass.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			continue
		}
		return err
	}
	return ErrConflict
}

func (s *SQL) Delete(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where("`key` = ?", key).Delete(&models.KVEntry{}).Error; err != nil {
		return fmt.Errorf("sql delete %s: %w", key, err)
	}
	return nil
}

func (s *SQL) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.db.WithContext(ctx).Model(&models.KVEntry{}).
		Where("`key` LIKE ? AND (expires_at IS NULL OR expires_at > ?)", escapeLike(prefix)+"%", s.now()).
		Order("`key`").
		Pluck("key", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("sql keys %s: %w", prefix, err)
	}
	return keys, nil
}

// SweepExpired deletes rows whose expiry has passed.
func (s *SQL) SweepExpired(ctx context.Context) (int, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", s.now()).
		Delete(&models.KVEntry{})
	return int(res.RowsAffected), res.Error
}

func (s *SQL) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQL) live(row *models.KVEntry) bool {
	return row.ExpiresAt == nil || s.now().Before(*row.ExpiresAt)
}

func (s *SQL) expiry(ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	t := s.now().Add(ttl)
	return &t
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
