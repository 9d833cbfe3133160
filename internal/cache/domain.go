package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cruxstack/email-verifier-go/internal/verifier"
)

// DomainEntry is the snapshot kept for an accept-all domain. It holds no
// address-specific fields.
type DomainEntry struct {
	Result           verifier.Result `json:"result"`
	Reason           string          `json:"reason"`
	Disposable       bool            `json:"disposable"`
	AcceptAll        bool            `json:"accept_all"`
	Free             bool            `json:"free"`
	Domain           string          `json:"domain"`
	MXRecord         bool            `json:"mx_record"`
	MXDomain         string          `json:"mx_domain"`
	SafeToSend       bool            `json:"safe_to_send"`
	DidYouMean       string          `json:"did_you_mean"`
	Success          bool            `json:"success"`
	Message          *string         `json:"message"`
	RemainingCredits *int            `json:"remainingCredits,omitempty"`
	VerifiedAt       time.Time       `json:"verifiedAt"`
}

// NewDomainEntry snapshots res for its domain.
func NewDomainEntry(res *verifier.EmailVerificationResult, verifiedAt time.Time) DomainEntry {
	return DomainEntry{
		Result:           res.Result,
		Reason:           res.Reason,
		Disposable:       res.Disposable,
		AcceptAll:        res.AcceptAll,
		Free:             res.Free,
		Domain:           res.Domain,
		MXRecord:         res.MXRecord,
		MXDomain:         res.MXDomain,
		SafeToSend:       res.SafeToSend,
		DidYouMean:       res.DidYouMean,
		Success:          res.Success,
		Message:          res.Message,
		RemainingCredits: res.RemainingCredits,
		VerifiedAt:       verifiedAt,
	}
}

// ResultFor builds the result reported for address from the domain
// snapshot. Role is always false since the address itself was never probed.
func (e DomainEntry) ResultFor(address string) *verifier.EmailVerificationResult {
	user, _, _ := verifier.SplitAddress(address)
	verifiedAt := e.VerifiedAt

	return &verifier.EmailVerificationResult{
		Result:           e.Result,
		Reason:           e.Reason,
		Disposable:       e.Disposable,
		AcceptAll:        e.AcceptAll,
		Role:             false,
		Free:             e.Free,
		Email:            address,
		User:             user,
		Domain:           e.Domain,
		MXRecord:         e.MXRecord,
		MXDomain:         e.MXDomain,
		SafeToSend:       e.SafeToSend,
		DidYouMean:       e.DidYouMean,
		Success:          e.Success,
		Message:          e.Message,
		RemainingCredits: e.RemainingCredits,
		VerifiedAt:       &verifiedAt,
	}
}

// DomainCache maps a domain to an accept-all snapshot.
type DomainCache struct {
	b *binding
}

func NewDomainCache(baseDir string, open Opener) *DomainCache {
	if open == nil {
		open = openFileStore
	}
	return &DomainCache{b: newBinding(DomainKind, baseDir, open)}
}

func (c *DomainCache) Enabled() bool { return c.b.enabled() }

func (c *DomainCache) TTL() time.Duration { return c.b.retention() }

func (c *DomainCache) Path() string { return c.b.path }

func (c *DomainCache) Reconfigure(ttl time.Duration) error { return c.b.reconfigure(ttl) }

func (c *DomainCache) Disable() error { return c.b.disable() }

// Get returns the snapshot for the domain of address.
func (c *DomainCache) Get(ctx context.Context, address string) (*DomainEntry, bool, error) {
	domain, err := DomainOf(address)
	if err != nil {
		return nil, false, err
	}

	raw, ok, err := c.b.get(ctx, domain)
	if err != nil || !ok {
		return nil, false, err
	}

	var entry DomainEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false, fmt.Errorf("domain cache: malformed entry: %w", err)
	}
	return &entry, true, nil
}

// Lookup returns a result synthesized for address on a domain hit.
func (c *DomainCache) Lookup(ctx context.Context, address string) (*verifier.EmailVerificationResult, bool, error) {
	entry, ok, err := c.Get(ctx, address)
	if err != nil || !ok {
		return nil, false, err
	}
	return entry.ResultFor(address), true, nil
}

// Put records res for the domain of address. The result must be
// successful and accept-all.
func (c *DomainCache) Put(ctx context.Context, address string, res *verifier.EmailVerificationResult) error {
	if res == nil || !res.Success || !res.AcceptAll {
		return ErrNotCacheable
	}

	domain, err := DomainOf(address)
	if err != nil {
		return err
	}

	verifiedAt := time.Now().UTC()
	if res.VerifiedAt != nil {
		verifiedAt = *res.VerifiedAt
	}

	raw, err := json.Marshal(NewDomainEntry(res, verifiedAt))
	if err != nil {
		return fmt.Errorf("domain cache: %w", err)
	}
	return c.b.put(ctx, domain, raw)
}
