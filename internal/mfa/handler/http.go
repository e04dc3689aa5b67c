// Package handler serves participant code routes over HTTP.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"camp-auth/backend/internal/mfa"
	participantdomain "camp-auth/backend/internal/participant/domain"
	"camp-auth/backend/internal/server/httpapi"
	"camp-auth/backend/internal/session"
	sessiondomain "camp-auth/backend/internal/session/domain"
)

// Handler serves the email code and TOTP routes.
type Handler struct {
	codes    *mfa.Service
	sessions *session.Service
	log      *slog.Logger
}

// NewHandler returns a participant code handler.
func NewHandler(codes *mfa.Service, sessions *session.Service, log *slog.Logger) *Handler {
	return &Handler{codes: codes, sessions: sessions, log: log}
}

// RegisterRoutes registers:
//   - POST /otp/email
//   - POST /otp/email/verify
//   - POST /otp/totp/provision
//   - POST /otp/totp/verify
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/otp/email", h.HandleIssue)
	r.Post("/otp/email/verify", h.HandleVerifyEmail)
	r.Post("/otp/totp/provision", h.HandleProvision)
	r.Post("/otp/totp/verify", h.HandleVerifyTOTP)
}

func decodeEmail(r *http.Request) (string, bool) {
	var req httpapi.EmailRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil || strings.TrimSpace(req.Email) == "" {
		return "", false
	}
	return req.Email, true
}

// HandleIssue sends a fresh code to the email.
func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	email, ok := decodeEmail(r)
	if !ok {
		httpapi.BadRequest(w, h.log)
		return
	}
	expiresAt, err := h.codes.IssueEmailCode(r.Context(), email)
	switch {
	case errors.Is(err, mfa.ErrInvalidEmail):
		httpapi.BadRequest(w, h.log)
	case err != nil:
		h.log.Error("code issue failed", "err", err)
		httpapi.Unavailable(w, h.log)
	default:
		httpapi.WriteJSON(w, h.log, http.StatusAccepted, httpapi.SentResponse{Sent: true, ExpiresAt: expiresAt})
	}
}

// HandleProvision returns the TOTP provisioning URI and QR code.
func (h *Handler) HandleProvision(w http.ResponseWriter, r *http.Request) {
	email, ok := decodeEmail(r)
	if !ok {
		httpapi.BadRequest(w, h.log)
		return
	}
	prov, err := h.codes.ProvisionTOTP(r.Context(), email)
	switch {
	case errors.Is(err, mfa.ErrInvalidEmail):
		httpapi.BadRequest(w, h.log)
	case err != nil:
		h.log.Error("totp provisioning failed", "err", err)
		httpapi.Unavailable(w, h.log)
	default:
		httpapi.WriteJSON(w, h.log, http.StatusOK, httpapi.ProvisionResponse{URI: prov.URI, QRPng: prov.QRCode})
	}
}

// HandleVerifyEmail checks an emailed code.
func (h *Handler) HandleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	h.verify(w, r, h.codes.VerifyEmailCode)
}

// HandleVerifyTOTP checks a TOTP code.
func (h *Handler) HandleVerifyTOTP(w http.ResponseWriter, r *http.Request) {
	h.verify(w, r, h.codes.VerifyTOTP)
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request, check func(ctx context.Context, email, code string) (bool, error)) {
	var req httpapi.CodeRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil || strings.TrimSpace(req.Email) == "" || req.Code == "" {
		httpapi.BadRequest(w, h.log)
		return
	}
	ok, err := check(r.Context(), req.Email, strings.TrimSpace(req.Code))
	if err != nil {
		h.log.Error("code verification failed", "err", err)
		httpapi.Unavailable(w, h.log)
		return
	}
	if !ok {
		httpapi.WriteJSON(w, h.log, http.StatusOK, httpapi.VerifyResponse{OK: false, Error: httpapi.InvalidCode})
		return
	}
	sess, token, err := h.sessions.Issue(r.Context(), sessiondomain.KindParticipant, participantdomain.NormalizeEmail(req.Email))
	if err != nil {
		h.log.Error("session issue failed", "err", err)
		httpapi.Unavailable(w, h.log)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, httpapi.VerifyResponse{OK: true, SessionToken: token, ExpiresAt: &sess.ExpiresAt})
}
