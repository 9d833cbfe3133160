// Package orchestrator resolves each requested address from the address
// cache, the accept-all domain cache or the remote provider, in that order.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cruxstack/email-verifier-go/internal/cache"
	"github.com/cruxstack/email-verifier-go/internal/metrics"
	"github.com/cruxstack/email-verifier-go/internal/policy"
	"github.com/cruxstack/email-verifier-go/internal/retry"
	"github.com/cruxstack/email-verifier-go/internal/verifier"
)

// Source records where an output record came from.
type Source string

const (
	SourceAPI          Source = "api"
	SourceAddressCache Source = "addressCache"
	SourceDomainCache  Source = "domainCache"
)

type GreylistOptions struct {
	Enabled    bool
	Delay      time.Duration
	MaxRetries int
}

// Batch is one invocation's worth of addresses and settings.
type Batch struct {
	APIKey         string
	Caches         cache.Settings
	Greylist       GreylistOptions
	ContinueOnFail bool
	Emails         []string
}

// Output is one record of a batch result. Failed items carry only Email
// and Error.
type Output struct {
	*verifier.EmailVerificationResult
	Email     string          `json:"email"`
	Source    Source          `json:"source,omitempty"`
	RetryInfo *retry.Info     `json:"retryInfo,omitempty"`
	Verdict   *policy.Verdict `json:"verdict,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// ItemError reports the item that aborted a batch.
type ItemError struct {
	Index int
	Email string
	Err   error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("failed to verify %s (item %d): %v", e.Email, e.Index, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// VerdictPolicy classifies an output record.
type VerdictPolicy interface {
	Verdict(ctx context.Context, input any) (*policy.Verdict, error)
}

type Orchestrator struct {
	Caches      *cache.Manager
	NewVerifier verifier.Factory
	Policy      VerdictPolicy
	Now         func() time.Time
	Sleep       retry.Sleeper
}

func New(caches *cache.Manager, newVerifier verifier.Factory) *Orchestrator {
	return &Orchestrator{
		Caches:      caches,
		NewVerifier: newVerifier,
		Now:         func() time.Time { return time.Now().UTC() },
		Sleep:       retry.Wait,
	}
}

// VerifyBatch processes b.Emails sequentially. Output order matches input
// order. Without ContinueOnFail the first failing item aborts the batch and
// the outputs produced so far are returned with an *ItemError.
func (o *Orchestrator) VerifyBatch(ctx context.Context, b Batch) ([]Output, error) {
	if err := o.Caches.Apply(b.Caches); err != nil {
		slog.WarnContext(ctx, "cache configuration failed, affected caches disabled for batch", "error", err)
	}

	v := o.NewVerifier(b.APIKey)
	outputs := make([]Output, 0, len(b.Emails))

	for i, email := range b.Emails {
		out, err := o.verifyOne(ctx, v, b.Greylist, email)
		if err != nil {
			metrics.Verifications.WithLabelValues("error").Inc()
			if !b.ContinueOnFail {
				return outputs, &ItemError{Index: i, Email: email, Err: err}
			}

			slog.WarnContext(ctx, "verification failed, continuing", "email", email, "error", err)
			outputs = append(outputs, Output{Email: email, Error: err.Error()})
			continue
		}

		metrics.Verifications.WithLabelValues(string(out.Source)).Inc()
		outputs = append(outputs, *out)
	}

	return outputs, nil
}

func (o *Orchestrator) verifyOne(ctx context.Context, v verifier.EmailVerifier, greylist GreylistOptions, email string) (*Output, error) {
	address := strings.TrimSpace(email)
	if address == "" {
		return nil, &verifier.InvalidInputError{Field: "email", Reason: "must not be empty"}
	}

	if o.Caches.Address.Enabled() {
		if res, ok := o.lookupAddress(ctx, address); ok {
			return o.finish(ctx, res, SourceAddressCache, nil), nil
		}
	}

	if o.Caches.Domain.Enabled() {
		res, ok, err := o.lookupDomain(ctx, address)
		if err != nil {
			return nil, err
		}
		if ok {
			return o.finish(ctx, res, SourceDomainCache, nil), nil
		}
	}

	res, info, err := o.fetch(ctx, v, greylist, address)
	if err != nil {
		return nil, err
	}

	if res.Success {
		now := o.now()
		res.VerifiedAt = &now
		o.remember(ctx, address, res)
	}

	return o.finish(ctx, res, SourceAPI, info), nil
}

func (o *Orchestrator) lookupAddress(ctx context.Context, address string) (*verifier.EmailVerificationResult, bool) {
	res, ok, err := o.Caches.Address.Get(ctx, address)
	if err != nil {
		metrics.CacheLookups.WithLabelValues("address", "error").Inc()
		slog.WarnContext(ctx, "address cache lookup failed, treating as miss", "email", address, "error", err)
		return nil, false
	}
	metrics.CacheLookups.WithLabelValues("address", hitLabel(ok)).Inc()
	return res, ok
}

func (o *Orchestrator) lookupDomain(ctx context.Context, address string) (*verifier.EmailVerificationResult, bool, error) {
	if _, err := cache.DomainOf(address); err != nil {
		return nil, false, err
	}

	res, ok, err := o.Caches.Domain.Lookup(ctx, address)
	if err != nil {
		metrics.CacheLookups.WithLabelValues("domain", "error").Inc()
		slog.WarnContext(ctx, "domain cache lookup failed, treating as miss", "email", address, "error", err)
		return nil, false, nil
	}
	metrics.CacheLookups.WithLabelValues("domain", hitLabel(ok)).Inc()
	return res, ok, nil
}

func (o *Orchestrator) fetch(ctx context.Context, v verifier.EmailVerifier, greylist GreylistOptions, address string) (*verifier.EmailVerificationResult, *retry.Info, error) {
	res, err := o.call(ctx, v, address)
	if err != nil {
		return nil, nil, err
	}

	if !greylist.Enabled || !res.Greylisted() {
		return res, nil, nil
	}

	slog.InfoContext(ctx, "address greylisted, scheduling retry", "email", address, "delay", greylist.Delay, "max_retries", greylist.MaxRetries)

	ctrl := retry.New(greylist.Delay, greylist.MaxRetries)
	if o.Sleep != nil {
		ctrl.Sleep = o.Sleep
	}
	return ctrl.Run(ctx, res, func(ctx context.Context) (*verifier.EmailVerificationResult, error) {
		metrics.GreylistRetries.Inc()
		return o.call(ctx, v, address)
	})
}

func (o *Orchestrator) call(ctx context.Context, v verifier.EmailVerifier, address string) (*verifier.EmailVerificationResult, error) {
	res, err := v.VerifyEmail(ctx, address)
	metrics.APICalls.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		return nil, err
	}
	return res, nil
}

// remember writes a fresh successful result to the enabled caches. Store
// failures are logged and otherwise ignored.
func (o *Orchestrator) remember(ctx context.Context, address string, res *verifier.EmailVerificationResult) {
	if o.Caches.Address.Enabled() {
		o.recordWrite(ctx, "address", address, o.Caches.Address.Put(ctx, address, res))
	}

	if o.Caches.Domain.Enabled() && res.AcceptAll {
		o.recordWrite(ctx, "domain", address, o.Caches.Domain.Put(ctx, address, res))
	}
}

func (o *Orchestrator) recordWrite(ctx context.Context, name, address string, err error) {
	if err != nil {
		metrics.CacheWrites.WithLabelValues(name, "error").Inc()
		slog.WarnContext(ctx, "cache write failed", "cache", name, "email", address, "error", err)
		return
	}
	metrics.CacheWrites.WithLabelValues(name, "stored").Inc()
}

func (o *Orchestrator) finish(ctx context.Context, res *verifier.EmailVerificationResult, source Source, info *retry.Info) *Output {
	if res.VerifiedAt == nil {
		now := o.now()
		res.VerifiedAt = &now
	}

	out := &Output{
		EmailVerificationResult: res,
		Email:                   res.Email,
		Source:                  source,
		RetryInfo:               info,
	}

	if o.Policy != nil {
		verdict, err := o.Policy.Verdict(ctx, out)
		if err != nil {
			slog.WarnContext(ctx, "verdict policy evaluation failed", "email", res.Email, "error", err)
		} else {
			out.Verdict = verdict
		}
	}

	return out
}

func (o *Orchestrator) now() time.Time {
	if o.Now == nil {
		return time.Now().UTC()
	}
	return o.Now()
}

func hitLabel(ok bool) string {
	if ok {
		return "hit"
	}
	return "miss"
}

func outcome(err error) string {
	var (
		inputErr     *verifier.InvalidInputError
		authErr      *verifier.AuthenticationError
		rateErr      *verifier.RateLimitError
		protocolErr  *verifier.ProtocolError
		transportErr *verifier.TransportError
	)

	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &inputErr):
		return "invalid_input"
	case errors.As(err, &authErr):
		return "auth_error"
	case errors.As(err, &rateErr):
		return "rate_limited"
	case errors.As(err, &protocolErr):
		return "protocol_error"
	case errors.As(err, &transportErr):
		return "transport_error"
	default:
		return "error"
	}
}
