package verifier

import (
	"context"
	"net/mail"
	"strings"
)

// OfflineEmailVerifier performs basic email address validation without
// external API calls. It validates the email format using RFC 5322 parsing
// and never reports accept-all or role status.
type OfflineEmailVerifier struct{}

func (v *OfflineEmailVerifier) VerifyEmail(ctx context.Context, email string) (*EmailVerificationResult, error) {
	if strings.TrimSpace(email) == "" {
		return nil, &InvalidInputError{Field: "email", Reason: "email is required"}
	}

	user, domain, _ := SplitAddress(email)
	result := &EmailVerificationResult{
		Result:  ResultInvalid,
		Email:   email,
		User:    user,
		Domain:  domain,
		Success: true,
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		result.Reason = "invalid_email"
		return result, nil
	}

	// Ensure there's a domain part with at least one dot
	at := strings.LastIndex(addr.Address, "@")
	if at == -1 || at == len(addr.Address)-1 {
		result.Reason = "invalid_domain"
		return result, nil
	}
	domain = addr.Address[at+1:]
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") {
		result.Reason = "invalid_domain"
		return result, nil
	}

	result.Result = ResultUnknown
	result.Reason = "unverified_offline"
	return result, nil
}

func NewOfflineVerifier() *OfflineEmailVerifier {
	return &OfflineEmailVerifier{}
}
