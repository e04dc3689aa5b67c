// Package handler serves the dev-only code lookup.
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"camp-auth/backend/internal/devotp"
	participantdomain "camp-auth/backend/internal/participant/domain"
	"camp-auth/backend/internal/server/httpapi"
)

// Handler serves GET /dev/otp?email=. Register it only in dev OTP mode.
type Handler struct {
	store devotp.Store
	log   *slog.Logger
}

// NewHandler returns a dev code handler.
func NewHandler(store devotp.Store, log *slog.Logger) *Handler {
	return &Handler{store: store, log: log}
}

// RegisterRoutes registers GET /dev/otp.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/dev/otp", h.HandleGet)
}

// HandleGet returns the last code issued for the email query parameter.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	email := participantdomain.NormalizeEmail(r.URL.Query().Get("email"))
	if participantdomain.ValidateEmail(email) != nil {
		httpapi.BadRequest(w, h.log)
		return
	}
	code, ok := h.store.Get(r.Context(), email)
	if !ok {
		httpapi.WriteError(w, h.log, http.StatusNotFound, "not found")
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, httpapi.DevOTPResponse{Code: code})
}
