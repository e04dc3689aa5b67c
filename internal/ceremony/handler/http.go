// Package handler serves the administrator WebAuthn ceremonies over HTTP.
package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"camp-auth/backend/internal/ceremony"
	"camp-auth/backend/internal/server/httpapi"
)

// Handler serves the registration and login ceremony routes.
type Handler struct {
	svc *ceremony.Service
	log *slog.Logger
}

// NewHandler returns a ceremony handler.
func NewHandler(svc *ceremony.Service, log *slog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// RegisterRoutes registers:
//   - POST /webauthn/register/options
//   - POST /webauthn/register/verify
//   - POST /webauthn/login/options
//   - POST /webauthn/login/verify
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/webauthn", func(r chi.Router) {
		r.Post("/register/options", h.HandleRegisterOptions)
		r.Post("/register/verify", h.HandleRegisterVerify)
		r.Post("/login/options", h.HandleLoginOptions)
		r.Post("/login/verify", h.HandleLoginVerify)
	})
}

func (h *Handler) decodeAdmin(r *http.Request) (string, bool) {
	var req httpapi.AdminRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		return "", false
	}
	return req.AdminID, ceremony.ValidateAdminID(req.AdminID) == nil
}

// rejected reports whether err is a ceremony failure the caller may only learn generically about.
func rejected(err error) bool {
	return errors.Is(err, ceremony.ErrNoPendingChallenge) ||
		errors.Is(err, ceremony.ErrAttestationInvalid) ||
		errors.Is(err, ceremony.ErrAssertionInvalid)
}

// HandleRegisterOptions issues registration options for an admin.
func (h *Handler) HandleRegisterOptions(w http.ResponseWriter, r *http.Request) {
	adminID, ok := h.decodeAdmin(r)
	if !ok {
		httpapi.BadRequest(w, h.log)
		return
	}
	creation, err := h.svc.BeginRegistration(r.Context(), adminID)
	if err != nil {
		h.log.Error("begin registration failed", "admin_id", adminID, "err", err)
		httpapi.Unavailable(w, h.log)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, creation.Response)
}

// HandleRegisterVerify verifies an attestation and stores the credential.
func (h *Handler) HandleRegisterVerify(w http.ResponseWriter, r *http.Request) {
	var req httpapi.RegistrationVerifyRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil || ceremony.ValidateAdminID(req.AdminID) != nil || !httpapi.HasObject(req.Attestation) {
		httpapi.BadRequest(w, h.log)
		return
	}
	cred, err := h.svc.CompleteRegistration(r.Context(), req.AdminID, req.Attestation)
	switch {
	case rejected(err):
		h.log.Info("registration rejected", "admin_id", req.AdminID, "err", err)
		httpapi.WriteJSON(w, h.log, http.StatusUnauthorized, httpapi.VerifyResponse{OK: false, Error: httpapi.InvalidCredential})
	case err != nil:
		h.log.Error("complete registration failed", "admin_id", req.AdminID, "err", err)
		httpapi.Unavailable(w, h.log)
	default:
		httpapi.WriteJSON(w, h.log, http.StatusOK, httpapi.RegistrationVerifyResponse{
			OK: true,
			Credential: httpapi.CredentialView{
				ID:        cred.ID,
				PublicKey: cred.PublicKey,
				SignCount: cred.SignCount,
			},
		})
	}
}

// HandleLoginOptions issues assertion options for an admin with registered credentials.
func (h *Handler) HandleLoginOptions(w http.ResponseWriter, r *http.Request) {
	adminID, ok := h.decodeAdmin(r)
	if !ok {
		httpapi.BadRequest(w, h.log)
		return
	}
	assertion, err := h.svc.BeginAuthentication(r.Context(), adminID)
	switch {
	case errors.Is(err, ceremony.ErrNoCredentials):
		httpapi.WriteError(w, h.log, http.StatusNotFound, httpapi.InvalidCredential)
	case err != nil:
		h.log.Error("begin login failed", "admin_id", adminID, "err", err)
		httpapi.Unavailable(w, h.log)
	default:
		httpapi.WriteJSON(w, h.log, http.StatusOK, assertion.Response)
	}
}

// HandleLoginVerify verifies an assertion and issues an admin session.
func (h *Handler) HandleLoginVerify(w http.ResponseWriter, r *http.Request) {
	var req httpapi.LoginVerifyRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil || ceremony.ValidateAdminID(req.AdminID) != nil || !httpapi.HasObject(req.Assertion) {
		httpapi.BadRequest(w, h.log)
		return
	}
	sess, token, err := h.svc.CompleteAuthentication(r.Context(), req.AdminID, req.Assertion)
	switch {
	case rejected(err):
		h.log.Info("login rejected", "admin_id", req.AdminID, "err", err)
		httpapi.WriteJSON(w, h.log, http.StatusUnauthorized, httpapi.VerifyResponse{OK: false, Error: httpapi.InvalidCredential})
	case err != nil:
		h.log.Error("complete login failed", "admin_id", req.AdminID, "err", err)
		httpapi.Unavailable(w, h.log)
	default:
		httpapi.WriteJSON(w, h.log, http.StatusOK, httpapi.VerifyResponse{OK: true, SessionToken: token, ExpiresAt: &sess.ExpiresAt})
	}
}
