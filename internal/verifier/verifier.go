package verifier

import (
	"context"
	"strings"
	"time"
)

// Result is the provider's deliverability verdict.
type Result string

const (
	ResultValid   Result = "valid"
	ResultInvalid Result = "invalid"
	ResultUnknown Result = "unknown"
)

// ReasonGreylisted is reported when the receiving server deferred the probe.
const ReasonGreylisted = "temporarily_blocked"

type EmailVerificationResult struct {
	Result           Result     `json:"result"`
	Reason           string     `json:"reason"`
	Disposable       bool       `json:"disposable"`
	AcceptAll        bool       `json:"accept_all"`
	Role             bool       `json:"role"`
	Free             bool       `json:"free"`
	Email            string     `json:"email"`
	User             string     `json:"user"`
	Domain           string     `json:"domain"`
	MXRecord         bool       `json:"mx_record"`
	MXDomain         string     `json:"mx_domain"`
	SafeToSend       bool       `json:"safe_to_send"`
	DidYouMean       string     `json:"did_you_mean"`
	Success          bool       `json:"success"`
	Message          *string    `json:"message"`
	RemainingCredits *int       `json:"remainingCredits,omitempty"`
	VerifiedAt       *time.Time `json:"verifiedAt,omitempty"`
}

// Greylisted reports whether the provider asked for the probe to be retried later.
func (r *EmailVerificationResult) Greylisted() bool {
	return r != nil && r.Reason == ReasonGreylisted
}

type EmailVerifier interface {
	VerifyEmail(ctx context.Context, email string) (*EmailVerificationResult, error)
}

// SplitAddress returns the local part and domain around the last '@'.
func SplitAddress(email string) (user, domain string, ok bool) {
	at := strings.LastIndex(email, "@")
	if at == -1 {
		return email, "", false
	}
	return email[:at], email[at+1:], true
}
