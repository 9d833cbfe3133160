package verifier

import "fmt"

// InvalidInputError is returned before any network attempt when the
// address, the API key or the derived domain is unusable.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// AuthenticationError means the provider rejected the API key.
type AuthenticationError struct {
	StatusCode int
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("invalid api key (status=%d)", e.StatusCode)
}

// RateLimitError means the provider throttled the request.
type RateLimitError struct {
	StatusCode int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded (status=%d)", e.StatusCode)
}

// ProtocolError covers provider-reported failures and unusable responses.
type ProtocolError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *ProtocolError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "email verification failed"
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status=%d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// TransportError wraps lower-level communication failures.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("verification request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
