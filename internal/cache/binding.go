package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/cruxstack/email-verifier-go/internal/store"
)

// Opener opens the backing store at path.
type Opener func(path string) (store.Store, error)

func openFileStore(path string) (store.Store, error) {
	return store.OpenFile(path)
}

// binding holds the currently bound store of one cache kind together with
// the retention window applied to new writes.
type binding struct {
	kind Kind
	path string
	open Opener

	mu  sync.RWMutex
	st  store.Store
	ttl time.Duration
}

func newBinding(kind Kind, baseDir string, open Opener) *binding {
	return &binding{
		kind: kind,
		path: kind.Path(baseDir),
		open: open,
	}
}

// reconfigure binds a fresh store when the cache is closed or the ttl
// changed. Entries already written keep their recorded expiry.
func (b *binding) reconfigure(ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.st != nil && b.ttl == ttl {
		return nil
	}

	st, err := b.open(b.path)
	if err != nil {
		// leave the cache unbound rather than writing with a stale ttl
		if b.st != nil {
			_ = b.st.Close()
			b.st = nil
			b.ttl = 0
		}
		return fmt.Errorf("%s cache: %w", b.kind.Name, err)
	}

	old := b.st
	b.st = st
	b.ttl = ttl

	if old != nil {
		if err := old.Close(); err != nil {
			slog.Warn("failed to close previous cache store", "cache", b.kind.Name, "error", err)
		}
		slog.Info("cache rebound with new retention", "cache", b.kind.Name, "ttl", ttl)
	}

	return nil
}

// disable closes the store and deletes its backing file, including a file
// left behind by an earlier process.
func (b *binding) disable() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var err error
	if b.st != nil {
		err = multierr.Append(err, b.st.Close())
		b.st = nil
		b.ttl = 0
	}

	if store.Exists(b.path) {
		if rmErr := store.Remove(b.path); rmErr != nil {
			err = multierr.Append(err, rmErr)
		} else {
			slog.Info("cache file cleaned up", "cache", b.kind.Name, "path", b.path)
		}
	}

	if err != nil {
		return fmt.Errorf("%s cache: %w", b.kind.Name, err)
	}
	return nil
}

func (b *binding) close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.st == nil {
		return nil
	}
	err := b.st.Close()
	b.st = nil
	return err
}

func (b *binding) enabled() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.st != nil
}

func (b *binding) retention() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ttl
}

func (b *binding) get(ctx context.Context, key string) ([]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.st == nil {
		return nil, false, nil
	}
	return b.st.Get(ctx, key)
}

func (b *binding) put(ctx context.Context, key string, value []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.st == nil {
		return nil
	}
	return b.st.Set(ctx, key, value, b.ttl)
}

func (b *binding) sweep(ctx context.Context, now time.Time) (int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	sw, ok := b.st.(store.Sweeper)
	if !ok {
		return 0, nil
	}
	return sw.Sweep(ctx, now)
}
