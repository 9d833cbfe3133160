package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/cruxstack/email-verifier-go/internal/orchestrator"
	"github.com/cruxstack/email-verifier-go/internal/service"
	"github.com/cruxstack/email-verifier-go/internal/verifier"
)

const maxBodyBytes = 1 << 20

// BatchVerifier is satisfied by *service.Service.
type BatchVerifier interface {
	Verify(ctx context.Context, req *service.Request) (*service.Response, error)
}

type Handlers struct {
	svc BatchVerifier
}

func NewHandlers(svc BatchVerifier) *Handlers {
	return &Handlers{svc: svc}
}

type errorResponse struct {
	Error   string                   `json:"error"`
	Details service.ValidationErrors `json:"details,omitempty"`
	BatchID string                   `json:"batchId,omitempty"`
	Results []orchestrator.Output    `json:"results,omitempty"`
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) Verify(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req service.Request
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	resp, err := h.svc.Verify(r.Context(), &req)
	if err != nil {
		status := statusFor(err)
		body := errorResponse{Error: err.Error()}

		var ve service.ValidationErrors
		if errors.As(err, &ve) {
			body.Details = ve
		}
		if resp != nil {
			body.BatchID = resp.BatchID
			body.Results = resp.Results
		}

		if status >= http.StatusInternalServerError {
			slog.ErrorContext(r.Context(), "verify request failed", "error", err)
		}
		respondJSON(w, status, body)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

func statusFor(err error) int {
	var (
		validationErr service.ValidationErrors
		inputErr      *verifier.InvalidInputError
		authErr       *verifier.AuthenticationError
		rateErr       *verifier.RateLimitError
		protocolErr   *verifier.ProtocolError
		transportErr  *verifier.TransportError
	)

	switch {
	case errors.As(err, &validationErr), errors.As(err, &inputErr):
		return http.StatusBadRequest
	case errors.As(err, &authErr):
		return http.StatusUnauthorized
	case errors.As(err, &rateErr):
		return http.StatusTooManyRequests
	case errors.As(err, &protocolErr), errors.As(err, &transportErr):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}
