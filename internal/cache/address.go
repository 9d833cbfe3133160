package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cruxstack/email-verifier-go/internal/verifier"
)

// ErrNotCacheable is returned when a result does not qualify for a cache.
var ErrNotCacheable = errors.New("result is not cacheable")

// AddressCache maps a normalized email address to its last successful
// verification result.
type AddressCache struct {
	b *binding
}

func NewAddressCache(baseDir string, open Opener) *AddressCache {
	if open == nil {
		open = openFileStore
	}
	return &AddressCache{b: newBinding(AddressKind, baseDir, open)}
}

// Enabled reports whether a store is currently bound.
func (c *AddressCache) Enabled() bool { return c.b.enabled() }

// TTL returns the retention applied to new entries.
func (c *AddressCache) TTL() time.Duration { return c.b.retention() }

func (c *AddressCache) Path() string { return c.b.path }

// Reconfigure enables the cache, binding a fresh store if ttl differs
// from the active retention.
func (c *AddressCache) Reconfigure(ttl time.Duration) error { return c.b.reconfigure(ttl) }

// Disable closes the cache and removes its backing file.
func (c *AddressCache) Disable() error { return c.b.disable() }

func (c *AddressCache) Get(ctx context.Context, address string) (*verifier.EmailVerificationResult, bool, error) {
	raw, ok, err := c.b.get(ctx, NormalizeAddress(address))
	if err != nil || !ok {
		return nil, false, err
	}

	var res verifier.EmailVerificationResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, false, fmt.Errorf("address cache: malformed entry: %w", err)
	}
	return &res, true, nil
}

// Put stores res under address. Only successful results are accepted.
func (c *AddressCache) Put(ctx context.Context, address string, res *verifier.EmailVerificationResult) error {
	if res == nil || !res.Success {
		return ErrNotCacheable
	}

	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("address cache: %w", err)
	}
	return c.b.put(ctx, NormalizeAddress(address), raw)
}
