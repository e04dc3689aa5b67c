// Package httpapi holds the JSON wire types and response helpers shared by the HTTP handlers.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// ErrBadRequest marks a malformed request. It is rejected before any store access.
var ErrBadRequest = errors.New("bad request")

// MaxBodyBytes caps request bodies. Attestations are a few KiB at most.
const MaxBodyBytes = 64 << 10

// DecodeJSON reads one JSON object from the request body into v.
func DecodeJSON(r *http.Request, v any) error {
	body := io.LimitReader(r.Body, MaxBodyBytes+1)
	raw, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrBadRequest, err)
	}
	if len(raw) > MaxBodyBytes {
		return fmt.Errorf("%w: body too large", ErrBadRequest)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}

// HasObject reports whether raw is a JSON object with at least one member. null, {}, arrays
// and scalars all count as a missing payload.
func HasObject(raw json.RawMessage) bool {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(raw, &members); err != nil {
		return false
	}
	return len(members) > 0
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, log *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && log != nil {
		log.Error("failed to encode response", "err", err)
	}
}

// WriteError writes {"error": msg} with the given status.
func WriteError(w http.ResponseWriter, log *slog.Logger, status int, msg string) {
	WriteJSON(w, log, status, ErrorResponse{Error: msg})
}

// BadRequest writes the generic 400 response.
func BadRequest(w http.ResponseWriter, log *slog.Logger) {
	WriteError(w, log, http.StatusBadRequest, "bad request")
}

// Unavailable writes the generic 503 response used for store faults.
func Unavailable(w http.ResponseWriter, log *slog.Logger) {
	WriteError(w, log, http.StatusServiceUnavailable, "service unavailable")
}

// Internal writes the generic 500 response.
func Internal(w http.ResponseWriter, log *slog.Logger) {
	WriteError(w, log, http.StatusInternalServerError, "internal error")
}
