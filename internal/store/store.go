// Package store provides the key/value backing medium for the verification
// caches. Values are opaque bytes; each entry carries its own expiry.
package store

import (
	"context"
	"time"
)

// Store represents a time-bounded key/value medium.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Clear(ctx context.Context) error
	Close() error
}

// Sweeper is implemented by stores that can purge expired entries in bulk.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (int64, error)
}

// Entry is a cached value persisted by FileStore.
type Entry struct {
	Key       string    `gorm:"primaryKey;size:512"`
	Value     []byte    `gorm:"type:blob"`
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Entry) TableName() string {
	return "cache_entries"
}
