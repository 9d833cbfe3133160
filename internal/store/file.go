package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/multierr"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// FileStore implements Store on a single SQLite file.
type FileStore struct {
	db   *gorm.DB
	path string
	now  func() time.Time
}

// Option customises a FileStore.
type Option func(*FileStore)

// WithNow overrides the clock used for expiry, primarily for testing.
func WithNow(now func() time.Time) Option {
	return func(s *FileStore) {
		if now != nil {
			s.now = now
		}
	}
}

// OpenFile opens (creating if needed) the SQLite file at path.
func OpenFile(path string, opts ...Option) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("store: path is required")
	}
	if err := ensureDir(path); err != nil {
		return nil, fmt.Errorf("store: failed to create directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", filepath.ToSlash(path))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: failed to open %s: %w", path, err)
	}

	if err := db.AutoMigrate(&Entry{}); err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		return nil, fmt.Errorf("store: failed to migrate %s: %w", path, err)
	}

	s := &FileStore{db: db, path: path, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path returns the file backing the store.
func (s *FileStore) Path() string {
	return s.path
}

// Set upserts the value for a given key. A non-positive ttl stores the
// value without expiry.
func (s *FileStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s == nil {
		return errors.New("store: file store not initialised")
	}

	expiry := time.Time{}
	if ttl > 0 {
		expiry = s.now().UTC().Add(ttl)
	}

	entry := Entry{
		Key:       key,
		Value:     value,
		ExpiresAt: expiry,
	}

	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
		}).Create(&entry).Error
}

// Get retrieves a value by key, respecting expiry.
func (s *FileStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, ok, err := s.entry(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	return entry.Value, true, nil
}

// ExpiresAt reports the expiry recorded for key. The zero time means the
// entry never expires.
func (s *FileStore) ExpiresAt(ctx context.Context, key string) (time.Time, bool, error) {
	entry, ok, err := s.entry(ctx, key)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	return entry.ExpiresAt, true, nil
}

func (s *FileStore) entry(ctx context.Context, key string) (*Entry, bool, error) {
	if s == nil {
		return nil, false, errors.New("store: file store not initialised")
	}

	var entry Entry
	err := s.db.WithContext(ctx).Take(&entry, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if !entry.ExpiresAt.IsZero() && s.now().After(entry.ExpiresAt) {
		_ = s.Delete(ctx, key)
		return nil, false, nil
	}

	return &entry, true, nil
}

// Delete removes keys from the store.
func (s *FileStore) Delete(ctx context.Context, keys ...string) error {
	if s == nil {
		return errors.New("store: file store not initialised")
	}
	if len(keys) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Where("key IN ?", keys).Delete(&Entry{}).Error
}

// Clear removes every entry.
func (s *FileStore) Clear(ctx context.Context) error {
	if s == nil {
		return errors.New("store: file store not initialised")
	}
	return s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Entry{}).Error
}

// Sweep deletes entries that expired before now.
func (s *FileStore) Sweep(ctx context.Context, now time.Time) (int64, error) {
	if s == nil {
		return 0, errors.New("store: file store not initialised")
	}
	res := s.db.WithContext(ctx).
		Where("expires_at > ? AND expires_at < ?", time.Time{}, now.UTC()).
		Delete(&Entry{})
	return res.RowsAffected, res.Error
}

// Close releases the underlying connection pool.
func (s *FileStore) Close() error {
	if s == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Remove deletes the SQLite file at path together with its journal side
// files. Missing files are not an error.
func Remove(path string) error {
	var err error
	for _, p := range []string{path, path + "-wal", path + "-shm", path + "-journal"} {
		if rmErr := os.Remove(p); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			err = multierr.Append(err, rmErr)
		}
	}
	return err
}

// Exists reports whether a store file is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
