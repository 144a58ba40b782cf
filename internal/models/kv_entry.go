package models

import "time"

// KVEntry maps to the `kv_entries` table backing the SQL state store.
type KVEntry struct {
	Key       string     `gorm:"column:key;primaryKey;size:255"`
	Value     []byte     `gorm:"column:value;type:longblob"`
	ExpiresAt *time.Time `gorm:"column:expires_at;index"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (KVEntry) TableName() string {
	return "kv_entries"
}
