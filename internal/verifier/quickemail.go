package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cruxstack/email-verifier-go/internal/config"
	"github.com/sendgrid/rest"
)

const (
	DefaultQuickEmailAPIHost = "https://api.quickemailverification.com"
	quickEmailVerifyPath     = "/v1/verify"
	remainingCreditsHeader   = "X-Qev-Remaining-Credits"
	userAgent                = "email-verifier-go"
)

// flexBool accepts both JSON booleans and the "true"/"false" strings the
// provider uses in some payloads.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*b = false
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*b = false
			return nil
		}
		v, err := strconv.ParseBool(s)
		if err != nil {
			return fmt.Errorf("invalid boolean %q", s)
		}
		*b = flexBool(v)
		return nil
	}
	var v bool
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*b = flexBool(v)
	return nil
}

type QuickEmailVerificationResponse struct {
	Result     string   `json:"result"`
	Reason     string   `json:"reason"`
	Disposable flexBool `json:"disposable"`
	AcceptAll  flexBool `json:"accept_all"`
	Role       flexBool `json:"role"`
	Free       flexBool `json:"free"`
	Email      string   `json:"email"`
	User       string   `json:"user"`
	Domain     string   `json:"domain"`
	MXRecord   flexBool `json:"mx_record"`
	MXDomain   string   `json:"mx_domain"`
	SafeToSend flexBool `json:"safe_to_send"`
	DidYouMean string   `json:"did_you_mean"`
	Success    flexBool `json:"success"`
	Message    *string  `json:"message"`
}

// QuickEmailVerifier calls the QuickEmailVerification single-address endpoint.
type QuickEmailVerifier struct {
	APIHost string
	APIKey  string
	Client  *rest.Client
}

func (v *QuickEmailVerifier) VerifyEmail(ctx context.Context, email string) (*EmailVerificationResult, error) {
	if strings.TrimSpace(email) == "" {
		return nil, &InvalidInputError{Field: "email", Reason: "email is required"}
	}
	if strings.TrimSpace(v.APIKey) == "" {
		return nil, &InvalidInputError{Field: "api key", Reason: "api key is required"}
	}

	host := v.APIHost
	if host == "" {
		host = DefaultQuickEmailAPIHost
	}
	client := v.Client
	if client == nil {
		client = rest.DefaultClient
	}

	request := rest.Request{
		Method:  rest.Get,
		BaseURL: strings.TrimRight(host, "/") + quickEmailVerifyPath,
		Headers: map[string]string{
			"Accept":     "application/json",
			"User-Agent": userAgent,
		},
		QueryParams: map[string]string{
			"email":  email,
			"apikey": v.APIKey,
		},
	}

	response, err := client.SendWithContext(ctx, request)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	switch {
	case response.StatusCode == http.StatusUnauthorized:
		return nil, &AuthenticationError{StatusCode: response.StatusCode}
	case response.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitError{StatusCode: response.StatusCode}
	case response.StatusCode < 200 || response.StatusCode >= 300:
		return nil, &ProtocolError{StatusCode: response.StatusCode, Message: "unexpected response"}
	}

	var payload QuickEmailVerificationResponse
	if err := json.Unmarshal([]byte(response.Body), &payload); err != nil {
		return nil, &ProtocolError{StatusCode: response.StatusCode, Message: "malformed response", Err: err}
	}

	if !payload.Success {
		msg := "email verification failed"
		if payload.Message != nil && *payload.Message != "" {
			msg = *payload.Message
		}
		return nil, &ProtocolError{StatusCode: response.StatusCode, Message: msg}
	}

	result := &EmailVerificationResult{
		Result:     Result(payload.Result),
		Reason:     payload.Reason,
		Disposable: bool(payload.Disposable),
		AcceptAll:  bool(payload.AcceptAll),
		Role:       bool(payload.Role),
		Free:       bool(payload.Free),
		Email:      payload.Email,
		User:       payload.User,
		Domain:     payload.Domain,
		MXRecord:   bool(payload.MXRecord),
		MXDomain:   payload.MXDomain,
		SafeToSend: bool(payload.SafeToSend),
		DidYouMean: payload.DidYouMean,
		Success:    true,
		Message:    payload.Message,
	}
	result.RemainingCredits = parseRemainingCredits(response.Headers)

	return result, nil
}

func parseRemainingCredits(headers map[string][]string) *int {
	raw := strings.TrimSpace(http.Header(headers).Get(remainingCreditsHeader))
	if raw == "" {
		return nil
	}
	// leading digits only, trailing junk is ignored
	end := 0
	if raw[0] == '-' || raw[0] == '+' {
		end = 1
	}
	digits := end
	for end < len(raw) && raw[end] >= '0' && raw[end] <= '9' {
		end++
	}
	if end == digits {
		return nil
	}
	n, err := strconv.Atoi(raw[:end])
	if err != nil {
		return nil
	}
	return &n
}

func NewQuickEmailVerifier(cfg *config.Config, apiKey string) *QuickEmailVerifier {
	timeout := cfg.QuickEmailTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &QuickEmailVerifier{
		APIHost: cfg.QuickEmailApiHost,
		APIKey:  apiKey,
		Client:  &rest.Client{HTTPClient: &http.Client{Timeout: timeout}},
	}
}
