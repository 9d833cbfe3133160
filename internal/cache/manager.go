package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/multierr"
)

// Settings selects which caches are active and their retention.
type Settings struct {
	AddressEnabled bool
	AddressTTL     time.Duration
	DomainEnabled  bool
	DomainTTL      time.Duration
}

type managerOptions struct {
	open Opener
}

// Option customises a Manager.
type Option func(*managerOptions)

// WithOpener replaces the file-backed store, primarily for testing.
func WithOpener(open Opener) Option {
	return func(o *managerOptions) {
		if open != nil {
			o.open = open
		}
	}
}

// Manager owns both caches for the lifetime of the hosting process.
type Manager struct {
	mu      sync.Mutex
	Address *AddressCache
	Domain  *DomainCache
}

func NewManager(baseDir string, opts ...Option) *Manager {
	o := managerOptions{open: openFileStore}
	for _, opt := range opts {
		opt(&o)
	}

	return &Manager{
		Address: NewAddressCache(baseDir, o.open),
		Domain:  NewDomainCache(baseDir, o.open),
	}
}

// Apply brings both caches in line with s. It completes before returning
// so that subsequent reads and writes see the new binding.
func (m *Manager) Apply(s Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	if s.AddressEnabled {
		err = multierr.Append(err, m.Address.Reconfigure(s.AddressTTL))
	} else {
		err = multierr.Append(err, m.Address.Disable())
	}

	if s.DomainEnabled {
		err = multierr.Append(err, m.Domain.Reconfigure(s.DomainTTL))
	} else {
		err = multierr.Append(err, m.Domain.Disable())
	}

	return err
}

// Sweep purges expired entries from both caches.
func (m *Manager) Sweep(ctx context.Context, now time.Time) (int64, error) {
	a, aErr := m.Address.b.sweep(ctx, now)
	d, dErr := m.Domain.b.sweep(ctx, now)
	return a + d, multierr.Combine(aErr, dErr)
}

// Close releases both stores without removing their files.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return multierr.Combine(m.Address.b.close(), m.Domain.b.close())
}
