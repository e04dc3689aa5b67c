// Package handler exposes health over HTTP and the standard gRPC health service.
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"camp-auth/backend/internal/health"
	"camp-auth/backend/internal/server/httpapi"
)

// HTTPHandler serves /livez and /readyz.
type HTTPHandler struct {
	checker *health.Checker
	log     *slog.Logger
}

// NewHTTPHandler returns a health HTTP handler.
func NewHTTPHandler(checker *health.Checker, log *slog.Logger) *HTTPHandler {
	return &HTTPHandler{checker: checker, log: log}
}

// RegisterRoutes registers GET /livez and GET /readyz.
func (h *HTTPHandler) RegisterRoutes(r chi.Router) {
	r.Get("/livez", h.HandleLiveness)
	r.Get("/readyz", h.HandleReadiness)
}

// HandleLiveness always answers alive.
func (h *HTTPHandler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	httpapi.WriteJSON(w, h.log, http.StatusOK, httpapi.StatusResponse{Status: "alive"})
}

// HandleReadiness answers 503 while the store is unreachable or the process is draining.
func (h *HTTPHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	if err := h.checker.Ready(r.Context()); err != nil {
		h.log.Warn("readiness check failed", "err", err)
		httpapi.WriteJSON(w, h.log, http.StatusServiceUnavailable, httpapi.StatusResponse{Status: "not ready", Error: err.Error()})
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, httpapi.StatusResponse{Status: "ready"})
}
