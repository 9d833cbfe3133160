// Package service binds configuration, caches, the provider and the
// verdict policy into the batch operation exposed by every host.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/cruxstack/email-verifier-go/internal/cache"
	"github.com/cruxstack/email-verifier-go/internal/config"
	"github.com/cruxstack/email-verifier-go/internal/metrics"
	"github.com/cruxstack/email-verifier-go/internal/orchestrator"
	"github.com/cruxstack/email-verifier-go/internal/policy"
	"github.com/cruxstack/email-verifier-go/internal/retry"
	"github.com/cruxstack/email-verifier-go/internal/secrets"
	"github.com/cruxstack/email-verifier-go/internal/verifier"
)

type Service struct {
	cfg      *config.Config
	apiKey   string
	caches   *cache.Manager
	orch     *orchestrator.Orchestrator
	validate *validator.Validate

	newVerifier verifier.Factory
	policy      orchestrator.VerdictPolicy
	sleep       retry.Sleeper
}

// Option customises a Service.
type Option func(*Service)

// WithVerifierFactory replaces the configured provider.
func WithVerifierFactory(f verifier.Factory) Option {
	return func(s *Service) {
		s.newVerifier = f
	}
}

// WithPolicy replaces the policy loaded from APP_VERDICT_POLICY_PATH.
func WithPolicy(p orchestrator.VerdictPolicy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

// WithSleeper replaces the wall-clock wait between greylist retries.
func WithSleeper(sleep retry.Sleeper) Option {
	return func(s *Service) {
		s.sleep = sleep
	}
}

func NewService(ctx context.Context, cfg *config.Config, opts ...Option) (*Service, error) {
	s := &Service{
		cfg:      cfg,
		validate: newValidator(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.newVerifier == nil {
		f, err := verifier.NewFactory(cfg)
		if err != nil {
			return nil, err
		}
		s.newVerifier = f
	}

	decrypter, err := secrets.NewDecrypter(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to init decrypter: %w", err)
	}
	s.apiKey, err = secrets.ResolveAPIKey(ctx, cfg, decrypter)
	if err != nil {
		return nil, err
	}

	if s.policy == nil && cfg.AppVerdictPolicyPath != "" {
		ev, err := policy.Load(ctx, cfg.AppVerdictPolicyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load verdict policy: %w", err)
		}
		s.policy = ev
		slog.InfoContext(ctx, "verdict policy loaded", "path", cfg.AppVerdictPolicyPath)
	}

	s.caches = cache.NewManager(cfg.AppCacheDir)
	s.orch = orchestrator.New(s.caches, s.newVerifier)
	if s.policy != nil {
		s.orch.Policy = s.policy
	}
	if s.sleep != nil {
		s.orch.Sleep = s.sleep
	}

	return s, nil
}

// Verify runs one batch. When the batch is aborted the response still
// carries the records produced before the failing item.
func (s *Service) Verify(ctx context.Context, req *Request) (*Response, error) {
	if err := validateRequest(s.validate, req); err != nil {
		return nil, err
	}

	b := s.batch(req)
	if b.APIKey == "" && s.cfg.AppVerifierProvider == config.ProviderQuickEmail {
		slog.WarnContext(ctx, "no api key available, only cached addresses can resolve")
	}

	resp := &Response{BatchID: uuid.NewString()}
	logger := slog.With("batch_id", resp.BatchID)
	logger.InfoContext(ctx, "verifying batch", "count", len(b.Emails))

	start := time.Now()
	results, err := s.orch.VerifyBatch(ctx, b)
	resp.Results = results
	if err != nil {
		logger.ErrorContext(ctx, "batch aborted", "error", err, "completed", len(results))
		return resp, err
	}

	logger.InfoContext(ctx, "batch verified", "count", len(results), "duration", time.Since(start))
	return resp, nil
}

// Sweep purges expired entries from the caches.
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	n, err := s.caches.Sweep(ctx, time.Now())
	metrics.SweptEntries.Add(float64(n))
	return n, err
}

func (s *Service) Close() error {
	return s.caches.Close()
}

// batch merges request overrides with the configured defaults. A
// non-positive ttl falls back to the configured retention.
func (s *Service) batch(req *Request) orchestrator.Batch {
	cfg := s.cfg

	b := orchestrator.Batch{
		APIKey:         req.APIKey,
		ContinueOnFail: req.ContinueOnFail,
		Emails:         req.Emails,
		Caches: cache.Settings{
			AddressEnabled: cfg.AddressCacheEnabled,
			AddressTTL:     config.Days(cfg.AddressCacheTTLDays),
			DomainEnabled:  cfg.DomainCacheEnabled,
			DomainTTL:      config.Days(cfg.DomainCacheTTLDays),
		},
		Greylist: orchestrator.GreylistOptions{
			Enabled:    cfg.GreylistRetryEnabled,
			Delay:      cfg.GreylistRetryDelay,
			MaxRetries: cfg.GreylistMaxRetries,
		},
	}

	if b.APIKey == "" {
		b.APIKey = s.apiKey
	}

	if o := req.AddressCache; o != nil {
		if o.Enabled != nil {
			b.Caches.AddressEnabled = *o.Enabled
		}
		if o.TTLDays > 0 {
			b.Caches.AddressTTL = config.Days(o.TTLDays)
		}
	}

	if o := req.DomainCache; o != nil {
		if o.Enabled != nil {
			b.Caches.DomainEnabled = *o.Enabled
		}
		if o.TTLDays > 0 {
			b.Caches.DomainTTL = config.Days(o.TTLDays)
		}
	}

	if o := req.Greylist; o != nil {
		if o.Enabled != nil {
			b.Greylist.Enabled = *o.Enabled
		}
		if o.RetryDelaySeconds != nil {
			b.Greylist.Delay = time.Duration(*o.RetryDelaySeconds) * time.Second
		}
		if o.MaxRetries != nil {
			b.Greylist.MaxRetries = *o.MaxRetries
		}
	}

	return b
}
