// Package handler serves the session boundary over HTTP.
package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"camp-auth/backend/internal/server/httpapi"
	"camp-auth/backend/internal/server/middleware"
	"camp-auth/backend/internal/session"
	"camp-auth/backend/internal/session/domain"
)

// Handler serves GET and DELETE /session/{kind}.
type Handler struct {
	sessions *session.Service
	log      *slog.Logger
}

// NewHandler returns a session handler.
func NewHandler(sessions *session.Service, log *slog.Logger) *Handler {
	return &Handler{sessions: sessions, log: log}
}

// RegisterRoutes registers the session routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/session/{kind}", h.HandleCurrent)
	r.Delete("/session/{kind}", h.HandleRevoke)
}

// HandleCurrent returns {authenticated, principalId?} for the kind.
func (h *Handler) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	kind, err := domain.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		httpapi.BadRequest(w, h.log)
		return
	}
	view, err := h.sessions.Current(r.Context(), kind)
	if err != nil {
		h.log.Error("session read failed", "err", err, "kind", kind)
		httpapi.Unavailable(w, h.log)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, httpapi.SessionResponse{
		Authenticated: view.Authenticated,
		PrincipalID:   view.PrincipalID,
	})
}

// HandleRevoke ends the session named by the bearer token.
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	kind, err := domain.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		httpapi.BadRequest(w, h.log)
		return
	}
	token := middleware.BearerToken(r)
	if token == "" {
		httpapi.WriteError(w, h.log, http.StatusUnauthorized, "unauthorized")
		return
	}
	switch err := h.sessions.RevokeToken(r.Context(), kind, token); {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, session.ErrInvalidToken), errors.Is(err, session.ErrSessionMismatch):
		httpapi.WriteError(w, h.log, http.StatusUnauthorized, "unauthorized")
	default:
		h.log.Error("session revoke failed", "err", err, "kind", kind)
		httpapi.Unavailable(w, h.log)
	}
}
