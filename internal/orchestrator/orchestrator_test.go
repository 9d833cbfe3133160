package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cruxstack/email-verifier-go/internal/cache"
	"github.com/cruxstack/email-verifier-go/internal/policy"
	"github.com/cruxstack/email-verifier-go/internal/retry"
	"github.com/cruxstack/email-verifier-go/internal/store"
	"github.com/cruxstack/email-verifier-go/internal/verifier"
)

type respondFunc func(email string, call int) (*verifier.EmailVerificationResult, error)

type fakeVerifier struct {
	mu      sync.Mutex
	calls   map[string]int
	total   int
	respond respondFunc
}

func newFakeVerifier(respond respondFunc) *fakeVerifier {
	return &fakeVerifier{calls: map[string]int{}, respond: respond}
}

func (f *fakeVerifier) VerifyEmail(ctx context.Context, email string) (*verifier.EmailVerificationResult, error) {
	f.mu.Lock()
	f.calls[email]++
	f.total++
	call := f.calls[email]
	f.mu.Unlock()
	return f.respond(email, call)
}

func result(email, reason string, acceptAll bool) *verifier.EmailVerificationResult {
	user, domain, _ := verifier.SplitAddress(email)
	return &verifier.EmailVerificationResult{
		Result:     verifier.ResultValid,
		Reason:     reason,
		AcceptAll:  acceptAll,
		Role:       true,
		Email:      email,
		User:       user,
		Domain:     domain,
		MXRecord:   true,
		MXDomain:   "mx." + domain,
		SafeToSend: !acceptAll,
		Success:    true,
	}
}

func accepted(acceptAll bool) respondFunc {
	return func(email string, call int) (*verifier.EmailVerificationResult, error) {
		return result(email, "accepted_email", acceptAll), nil
	}
}

var fixedNow = time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

func newTestOrchestrator(t *testing.T, fv *fakeVerifier, opts ...cache.Option) (*Orchestrator, *[]time.Duration) {
	t.Helper()

	caches := cache.NewManager(t.TempDir(), opts...)
	t.Cleanup(func() { _ = caches.Close() })

	var sleeps []time.Duration
	o := New(caches, func(apiKey string) verifier.EmailVerifier { return fv })
	o.Now = func() time.Time { return fixedNow }
	o.Sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return o, &sleeps
}

func bothCaches() cache.Settings {
	return cache.Settings{
		AddressEnabled: true,
		AddressTTL:     30 * 24 * time.Hour,
		DomainEnabled:  true,
		DomainTTL:      30 * 24 * time.Hour,
	}
}

func verifyOne(t *testing.T, o *Orchestrator, b Batch, email string) Output {
	t.Helper()

	b.Emails = []string{email}
	outputs, err := o.VerifyBatch(context.Background(), b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outputs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(outputs))
	}
	return outputs[0]
}

func TestVerifyBatch_AddressCacheHit(t *testing.T) {
	fv := newFakeVerifier(accepted(false))
	o, _ := newTestOrchestrator(t, fv)
	b := Batch{APIKey: "key", Caches: cache.Settings{AddressEnabled: true, AddressTTL: time.Hour}}

	first := verifyOne(t, o, b, "jane@example.com")
	if first.Source != SourceAPI {
		t.Fatalf("expected api source, got %s", first.Source)
	}
	if first.VerifiedAt == nil || !first.VerifiedAt.Equal(fixedNow) {
		t.Errorf("expected verifiedAt %v, got %v", fixedNow, first.VerifiedAt)
	}

	o.Now = func() time.Time { return fixedNow.Add(time.Minute) }
	second := verifyOne(t, o, b, "jane@example.com")
	if second.Source != SourceAddressCache {
		t.Fatalf("expected addressCache source, got %s", second.Source)
	}
	if fv.total != 1 {
		t.Errorf("expected one remote call, got %d", fv.total)
	}
	if !second.VerifiedAt.Equal(*first.VerifiedAt) {
		t.Errorf("expected cached verifiedAt %v, got %v", first.VerifiedAt, second.VerifiedAt)
	}
	if second.Result != first.Result || second.Reason != first.Reason || second.MXDomain != first.MXDomain || second.Role != first.Role {
		t.Errorf("cached result differs: %+v vs %+v", second.EmailVerificationResult, first.EmailVerificationResult)
	}
}

func TestVerifyBatch_AcceptAllScenario(t *testing.T) {
	fv := newFakeVerifier(accepted(true))
	o, _ := newTestOrchestrator(t, fv)
	b := Batch{APIKey: "key", Caches: bothCaches()}

	first := verifyOne(t, o, b, "a@accept-all.test")
	if first.Source != SourceAPI {
		t.Fatalf("expected api source, got %s", first.Source)
	}

	second := verifyOne(t, o, b, "b@accept-all.test")
	if second.Source != SourceDomainCache {
		t.Fatalf("expected domainCache source, got %s", second.Source)
	}
	if !second.AcceptAll || second.Role {
		t.Errorf("expected acceptAll=true role=false, got acceptAll=%v role=%v", second.AcceptAll, second.Role)
	}
	if second.Email != "b@accept-all.test" || second.User != "b" {
		t.Errorf("expected synthesized address fields, got email=%q user=%q", second.Email, second.User)
	}
	if fv.total != 1 {
		t.Errorf("expected one remote call, got %d", fv.total)
	}
}

func TestVerifyBatch_AddressCacheTakesPrecedence(t *testing.T) {
	fv := newFakeVerifier(accepted(true))
	o, _ := newTestOrchestrator(t, fv)
	b := Batch{APIKey: "key", Caches: bothCaches()}

	verifyOne(t, o, b, "a@accept-all.test")
	again := verifyOne(t, o, b, "a@accept-all.test")

	if again.Source != SourceAddressCache {
		t.Fatalf("expected addressCache source, got %s", again.Source)
	}
	if !again.Role {
		t.Errorf("expected the address entry with role=true")
	}
}

func TestVerifyBatch_NoCacheWriteWithoutSuccess(t *testing.T) {
	fv := newFakeVerifier(func(email string, call int) (*verifier.EmailVerificationResult, error) {
		res := result(email, "unexpected_error", true)
		res.Success = false
		return res, nil
	})
	o, _ := newTestOrchestrator(t, fv)
	b := Batch{APIKey: "key", Caches: bothCaches()}

	verifyOne(t, o, b, "a@example.com")
	out := verifyOne(t, o, b, "a@example.com")
	verifyOne(t, o, b, "b@example.com")

	if out.Source != SourceAPI {
		t.Errorf("expected api source, got %s", out.Source)
	}
	if fv.total != 3 {
		t.Errorf("expected three remote calls, got %d", fv.total)
	}
	if out.VerifiedAt == nil {
		t.Errorf("expected verifiedAt fallback")
	}
}

func TestVerifyBatch_DomainCacheRequiresAcceptAll(t *testing.T) {
	fv := newFakeVerifier(accepted(false))
	o, _ := newTestOrchestrator(t, fv)
	b := Batch{APIKey: "key", Caches: bothCaches()}

	verifyOne(t, o, b, "a@example.com")
	out := verifyOne(t, o, b, "b@example.com")

	if out.Source != SourceAPI {
		t.Errorf("expected api source, got %s", out.Source)
	}
	if fv.total != 2 {
		t.Errorf("expected two remote calls, got %d", fv.total)
	}
}

func greylistedUntil(successCall int) respondFunc {
	return func(email string, call int) (*verifier.EmailVerificationResult, error) {
		if successCall > 0 && call >= successCall {
			return result(email, "accepted_email", false), nil
		}
		res := result(email, verifier.ReasonGreylisted, false)
		res.Result = verifier.ResultUnknown
		res.MXDomain = "attempt-" + string(rune('0'+call))
		return res, nil
	}
}

func TestVerifyBatch_GreylistExhausted(t *testing.T) {
	fv := newFakeVerifier(greylistedUntil(0))
	o, sleeps := newTestOrchestrator(t, fv)
	b := Batch{
		APIKey:   "key",
		Greylist: GreylistOptions{Enabled: true, Delay: 90 * time.Second, MaxRetries: 2},
	}

	out := verifyOne(t, o, b, "slow@example.com")

	want := retry.Info{Retried: true, RetryCount: 2, RetrySuccessful: false}
	if out.RetryInfo == nil || *out.RetryInfo != want {
		t.Fatalf("expected %+v, got %+v", want, out.RetryInfo)
	}
	if out.MXDomain != "attempt-3" {
		t.Errorf("expected last attempt's data, got %q", out.MXDomain)
	}
	if out.Reason != verifier.ReasonGreylisted {
		t.Errorf("expected greylisted reason, got %q", out.Reason)
	}
	if fv.total != 3 {
		t.Errorf("expected three remote calls, got %d", fv.total)
	}
	if len(*sleeps) != 2 || (*sleeps)[0] != 90*time.Second {
		t.Errorf("expected two 90s waits, got %v", *sleeps)
	}
}

func TestVerifyBatch_GreylistResolved(t *testing.T) {
	fv := newFakeVerifier(greylistedUntil(3))
	o, _ := newTestOrchestrator(t, fv)
	b := Batch{
		APIKey:   "key",
		Caches:   cache.Settings{AddressEnabled: true, AddressTTL: time.Hour},
		Greylist: GreylistOptions{Enabled: true, Delay: time.Second, MaxRetries: 3},
	}

	out := verifyOne(t, o, b, "slow@example.com")

	want := retry.Info{Retried: true, RetryCount: 2, RetrySuccessful: true}
	if out.RetryInfo == nil || *out.RetryInfo != want {
		t.Fatalf("expected %+v, got %+v", want, out.RetryInfo)
	}
	if out.Reason != "accepted_email" || out.Result != verifier.ResultValid {
		t.Errorf("expected accepted result, got %+v", out.EmailVerificationResult)
	}

	cached := verifyOne(t, o, b, "slow@example.com")
	if cached.Source != SourceAddressCache || cached.RetryInfo != nil {
		t.Errorf("expected cached result without retry info, got %s %+v", cached.Source, cached.RetryInfo)
	}
}

func TestVerifyBatch_GreylistDisabled(t *testing.T) {
	fv := newFakeVerifier(greylistedUntil(0))
	o, sleeps := newTestOrchestrator(t, fv)

	out := verifyOne(t, o, Batch{APIKey: "key"}, "slow@example.com")

	if out.RetryInfo != nil {
		t.Errorf("expected no retry info, got %+v", out.RetryInfo)
	}
	if fv.total != 1 || len(*sleeps) != 0 {
		t.Errorf("expected a single call without waits, got calls=%d waits=%d", fv.total, len(*sleeps))
	}
}

func TestVerifyBatch_GreylistNeverRetriesErrors(t *testing.T) {
	fv := newFakeVerifier(func(email string, call int) (*verifier.EmailVerificationResult, error) {
		return nil, &verifier.TransportError{Err: errors.New("connection reset")}
	})
	o, sleeps := newTestOrchestrator(t, fv)
	b := Batch{
		APIKey:   "key",
		Greylist: GreylistOptions{Enabled: true, Delay: time.Second, MaxRetries: 3},
		Emails:   []string{"a@example.com"},
	}

	_, err := o.VerifyBatch(context.Background(), b)

	var transportErr *verifier.TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if fv.total != 1 || len(*sleeps) != 0 {
		t.Errorf("expected no retries, got calls=%d waits=%d", fv.total, len(*sleeps))
	}
}

func TestVerifyBatch_DisableForcesFreshCall(t *testing.T) {
	fv := newFakeVerifier(accepted(false))
	o, _ := newTestOrchestrator(t, fv)
	enabled := Batch{APIKey: "key", Caches: cache.Settings{AddressEnabled: true, AddressTTL: time.Hour}}

	verifyOne(t, o, enabled, "a@example.com")
	path := o.Caches.Address.Path()
	if !store.Exists(path) {
		t.Fatalf("expected cache file at %s", path)
	}

	out := verifyOne(t, o, Batch{APIKey: "key"}, "a@example.com")
	if out.Source != SourceAPI {
		t.Errorf("expected api source with cache disabled, got %s", out.Source)
	}
	if store.Exists(path) {
		t.Errorf("expected cache file to be removed")
	}

	out = verifyOne(t, o, enabled, "a@example.com")
	if out.Source != SourceAPI {
		t.Errorf("expected fresh call after re-enabling, got %s", out.Source)
	}
	if fv.total != 3 {
		t.Errorf("expected three remote calls, got %d", fv.total)
	}
}

func TestVerifyBatch_ContinueOnFail(t *testing.T) {
	fv := newFakeVerifier(func(email string, call int) (*verifier.EmailVerificationResult, error) {
		if email == "bad@example.com" {
			return nil, &verifier.AuthenticationError{StatusCode: 401}
		}
		return result(email, "accepted_email", false), nil
	})
	o, _ := newTestOrchestrator(t, fv)
	emails := []string{"one@example.com", "bad@example.com", "two@example.com"}

	outputs, err := o.VerifyBatch(context.Background(), Batch{APIKey: "key", ContinueOnFail: true, Emails: emails})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outputs) != 3 {
		t.Fatalf("expected 3 outputs, got %d", len(outputs))
	}
	for i, email := range emails {
		if outputs[i].Email != email {
			t.Errorf("output %d: expected %s, got %s", i, email, outputs[i].Email)
		}
	}
	if outputs[1].Error == "" || outputs[1].EmailVerificationResult != nil {
		t.Errorf("expected error record, got %+v", outputs[1])
	}

	outputs, err = o.VerifyBatch(context.Background(), Batch{APIKey: "key", Emails: emails})
	var itemErr *ItemError
	if !errors.As(err, &itemErr) || itemErr.Index != 1 {
		t.Fatalf("expected ItemError at index 1, got %v", err)
	}
	var authErr *verifier.AuthenticationError
	if !errors.As(err, &authErr) {
		t.Errorf("expected wrapped AuthenticationError, got %v", err)
	}
	if len(outputs) != 1 {
		t.Errorf("expected outputs before the failure only, got %d", len(outputs))
	}
}

func TestVerifyBatch_DomainRequiresAt(t *testing.T) {
	fv := newFakeVerifier(accepted(false))
	o, _ := newTestOrchestrator(t, fv)

	_, err := o.VerifyBatch(context.Background(), Batch{APIKey: "key", Caches: bothCaches(), Emails: []string{"not-an-address"}})

	var inputErr *verifier.InvalidInputError
	if !errors.As(err, &inputErr) {
		t.Fatalf("expected InvalidInputError, got %v", err)
	}
	if fv.total != 0 {
		t.Errorf("expected no remote call, got %d", fv.total)
	}
}

type brokenStore struct{}

func (brokenStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, errors.New("disk unavailable")
}

func (brokenStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return errors.New("disk unavailable")
}

func (brokenStore) Delete(ctx context.Context, keys ...string) error { return nil }
func (brokenStore) Clear(ctx context.Context) error                  { return nil }
func (brokenStore) Close() error                                     { return nil }

func TestVerifyBatch_StoreErrorsAreMisses(t *testing.T) {
	fv := newFakeVerifier(accepted(true))
	o, _ := newTestOrchestrator(t, fv, cache.WithOpener(func(string) (store.Store, error) {
		return brokenStore{}, nil
	}))
	b := Batch{APIKey: "key", Caches: bothCaches()}

	verifyOne(t, o, b, "a@example.com")
	out := verifyOne(t, o, b, "a@example.com")

	if out.Source != SourceAPI {
		t.Errorf("expected api source, got %s", out.Source)
	}
	if fv.total != 2 {
		t.Errorf("expected two remote calls, got %d", fv.total)
	}
}

func TestVerifyBatch_Verdict(t *testing.T) {
	ctx := context.Background()
	ev, err := policy.New(ctx, `
		package email_verifier
		default verdict := {"action": "review"}
		verdict := {"action": "send", "reason": input.source} if {
			input.safe_to_send
		}
	`)
	if err != nil {
		t.Fatal(err)
	}

	fv := newFakeVerifier(accepted(false))
	o, _ := newTestOrchestrator(t, fv)
	o.Policy = ev

	out := verifyOne(t, o, Batch{APIKey: "key"}, "a@example.com")
	if out.Verdict == nil || out.Verdict.Action != "send" || out.Verdict.Reason != "api" {
		t.Errorf("expected send verdict from api, got %+v", out.Verdict)
	}
}

func TestOutput_JSON(t *testing.T) {
	fv := newFakeVerifier(greylistedUntil(2))
	o, _ := newTestOrchestrator(t, fv)
	b := Batch{APIKey: "key", Greylist: GreylistOptions{Enabled: true, Delay: time.Second, MaxRetries: 1}}

	out := verifyOne(t, o, b, "a@example.com")

	raw, err := json.Marshal(out)
	if err != nil {
		t.Fatal(err)
	}

	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}

	if got["email"] != "a@example.com" || got["source"] != "api" || got["result"] != "valid" {
		t.Errorf("unexpected record: %s", raw)
	}
	if got["verifiedAt"] != "2025-05-01T10:00:00Z" {
		t.Errorf("unexpected verifiedAt: %v", got["verifiedAt"])
	}
	info, ok := got["retryInfo"].(map[string]any)
	if !ok || info["retried"] != true || info["retryCount"] != float64(1) || info["retrySuccessful"] != true {
		t.Errorf("unexpected retryInfo: %v", got["retryInfo"])
	}
	if _, ok := got["error"]; ok {
		t.Errorf("unexpected error field: %s", raw)
	}
}
