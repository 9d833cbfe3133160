// Package cache implements the address and accept-all domain caches that
// sit in front of the remote verification call.
package cache

import (
	"path/filepath"
	"strings"

	"github.com/cruxstack/email-verifier-go/internal/verifier"
)

// Kind identifies a cache and the fixed location of its backing file
// relative to the base cache directory.
type Kind struct {
	Name   string
	SubDir string
	File   string
}

var (
	AddressKind = Kind{
		Name:   "address",
		SubDir: "quickemailverification-address-cache",
		File:   "address-cache.db",
	}
	DomainKind = Kind{
		Name:   "domain",
		SubDir: "quickemailverification-domain-cache",
		File:   "domain-accept-all-cache.db",
	}
)

// Path returns the backing file location under baseDir.
func (k Kind) Path(baseDir string) string {
	return filepath.Join(baseDir, k.SubDir, k.File)
}

// NormalizeAddress returns the cache key for an email address.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// DomainOf extracts the domain after the last '@' of address.
func DomainOf(address string) (string, error) {
	_, domain, ok := verifier.SplitAddress(strings.TrimSpace(address))
	if !ok {
		return "", &verifier.InvalidInputError{Field: "email", Reason: "missing '@' in " + address}
	}
	domain = strings.ToLower(domain)
	if domain == "" {
		return "", &verifier.InvalidInputError{Field: "email", Reason: "empty domain in " + address}
	}
	return domain, nil
}
