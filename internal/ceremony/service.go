// Package ceremony runs the administrator WebAuthn ceremonies. Each admin has at most one
// pending challenge; every completion attempt consumes it, whatever the outcome.
package ceremony

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	admindomain "camp-auth/backend/internal/admin/domain"
	adminrepo "camp-auth/backend/internal/admin/repository"
	"camp-auth/backend/internal/audit"
	auditdomain "camp-auth/backend/internal/audit/domain"
	challengedomain "camp-auth/backend/internal/challenge/domain"
	challengerepo "camp-auth/backend/internal/challenge/repository"
	"camp-auth/backend/internal/session"
	sessiondomain "camp-auth/backend/internal/session/domain"
	telemetryotel "camp-auth/backend/internal/telemetry/otel"
)

// DefaultChallengeTTL bounds how long a ceremony challenge can be completed.
const DefaultChallengeTTL = 120 * time.Second

const maxAdminIDLen = 64

// Options configures the relying party.
type Options struct {
	RPID          string
	RPDisplayName string
	RPOrigins     []string
	ChallengeTTL  time.Duration
}

// Service runs registration and authentication ceremonies for administrators.
type Service struct {
	webauthn   *webauthn.WebAuthn
	admins     adminrepo.Repository
	challenges challengerepo.Repository
	sessions   *session.Service
	audit      audit.AuditLogger
	metrics    *telemetryotel.Metrics
	tracer     trace.Tracer
	log        *slog.Logger
	ttl        time.Duration
	nowF       func() time.Time
}

// NewService returns a ceremony service. auditLogger, metrics and tracer may be nil.
func NewService(opts Options, admins adminrepo.Repository, challenges challengerepo.Repository, sessions *session.Service, auditLogger audit.AuditLogger, metrics *telemetryotel.Metrics, tracer trace.Tracer, log *slog.Logger) (*Service, error) {
	if opts.ChallengeTTL <= 0 {
		opts.ChallengeTTL = DefaultChallengeTTL
	}
	timeout := webauthn.TimeoutConfig{Timeout: opts.ChallengeTTL, TimeoutUVD: opts.ChallengeTTL}
	wa, err := webauthn.New(&webauthn.Config{
		RPID:                  opts.RPID,
		RPDisplayName:         opts.RPDisplayName,
		RPOrigins:             opts.RPOrigins,
		AttestationPreference: protocol.PreferNoAttestation,
		Timeouts: webauthn.TimeoutsConfig{
			Login:        timeout,
			Registration: timeout,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("webauthn config: %w", err)
	}
	if auditLogger == nil {
		auditLogger = audit.Nop{}
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		webauthn:   wa,
		admins:     admins,
		challenges: challenges,
		sessions:   sessions,
		audit:      auditLogger,
		metrics:    metrics,
		tracer:     tracer,
		log:        log.With(slog.String("component", "ceremony")),
		ttl:        opts.ChallengeTTL,
		nowF:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// SetClock replaces the service clock. Used by tests.
func (s *Service) SetClock(now func() time.Time) {
	s.nowF = now
}

// ValidateAdminID rejects ids that cannot name an administrator.
func ValidateAdminID(adminID string) error {
	if adminID == "" || len(adminID) > maxAdminIDLen || !utf8.ValidString(adminID) {
		return ErrInvalidAdminID
	}
	for _, r := range adminID {
		if unicode.IsControl(r) {
			return ErrInvalidAdminID
		}
	}
	return nil
}

func (s *Service) persist(ctx context.Context, adminID string, ceremony challengedomain.Ceremony, sd *webauthn.SessionData) error {
	now := s.nowF()
	return s.challenges.Put(ctx, &challengedomain.PendingChallenge{
		OwnerID:   adminID,
		Ceremony:  ceremony,
		Session:   *sd,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	})
}

// take consumes the owner's challenge. Expired and wrong-ceremony challenges are consumed too.
func (s *Service) take(ctx context.Context, adminID string, want challengedomain.Ceremony) (*challengedomain.PendingChallenge, string, error) {
	c, err := s.challenges.Take(ctx, adminID)
	if err != nil {
		return nil, "", err
	}
	switch {
	case c == nil:
		return nil, "no pending challenge", ErrNoPendingChallenge
	case c.Ceremony != want:
		return nil, "challenge belongs to " + string(c.Ceremony), ErrNoPendingChallenge
	case c.Expired(s.nowF()):
		return nil, "challenge expired", ErrNoPendingChallenge
	}
	return c, "", nil
}

// BeginRegistration issues a registration challenge for adminID that only a platform
// authenticator performing user verification can answer. Existing credentials are excluded.
func (s *Service) BeginRegistration(ctx context.Context, adminID string) (*protocol.CredentialCreation, error) {
	if err := ValidateAdminID(adminID); err != nil {
		return nil, err
	}
	admin, err := s.admins.GetByID(ctx, adminID)
	if err != nil {
		return nil, err
	}
	user := newAdminUser(adminID, admin)
	creation, sd, err := s.webauthn.BeginRegistration(user,
		webauthn.WithAuthenticatorSelection(protocol.AuthenticatorSelection{
			AuthenticatorAttachment: protocol.Platform,
			ResidentKey:             protocol.ResidentKeyRequirementPreferred,
			UserVerification:        protocol.VerificationRequired,
		}),
		webauthn.WithConveyancePreference(protocol.PreferNoAttestation),
		webauthn.WithExclusions(user.descriptors()),
	)
	if err != nil {
		return nil, fmt.Errorf("begin registration: %w", err)
	}
	if err := s.persist(ctx, adminID, challengedomain.CeremonyRegistration, sd); err != nil {
		return nil, err
	}
	s.audit.LogEvent(ctx, audit.Event{Action: auditdomain.ActionRegistrationStarted, PrincipalKind: string(sessiondomain.KindAdmin), PrincipalID: adminID})
	return creation, nil
}

// CompleteRegistration verifies an attestation response against the pending registration
// challenge and appends the new credential (counter 0) to the admin, creating the account on
// first registration.
func (s *Service) CompleteRegistration(ctx context.Context, adminID string, body []byte) (cred *admindomain.Credential, err error) {
	ctx, span := s.tracer.Start(ctx, "ceremony.CompleteRegistration",
		trace.WithAttributes(attribute.String("admin_id", adminID)))
	defer func() { s.finish(ctx, span, challengedomain.CeremonyRegistration, err) }()

	if err := ValidateAdminID(adminID); err != nil {
		return nil, err
	}
	pending, reason, err := s.take(ctx, adminID, challengedomain.CeremonyRegistration)
	if err != nil {
		if reason != "" {
			s.rejected(ctx, auditdomain.ActionRegistrationRejected, adminID, reason)
		}
		return nil, err
	}

	parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(body))
	if err != nil {
		return nil, s.invalidAttestation(ctx, adminID, "parse", err)
	}
	created, err := s.webauthn.CreateCredential(newAdminUser(adminID, nil), pending.Session, parsed)
	if err != nil {
		return nil, s.invalidAttestation(ctx, adminID, "verify", err)
	}
	if !created.Flags.UserVerified {
		return nil, s.invalidAttestation(ctx, adminID, "policy", errors.New("user not verified"))
	}

	c := fromWebAuthn(created)
	c.CreatedAt = s.nowF()
	if _, err := s.admins.AppendCredential(ctx, adminID, c); err != nil {
		if errors.Is(err, adminrepo.ErrDuplicateCredential) {
			return nil, s.invalidAttestation(ctx, adminID, "append", err)
		}
		return nil, err
	}
	s.audit.LogEvent(ctx, audit.Event{
		Action:        auditdomain.ActionRegistrationSucceeded,
		PrincipalKind: string(sessiondomain.KindAdmin),
		PrincipalID:   adminID,
		Metadata:      map[string]string{"aaguid": fmt.Sprintf("%x", c.AAGUID)},
	})
	return &c, nil
}

// BeginAuthentication issues an assertion challenge scoped to exactly the admin's credentials.
func (s *Service) BeginAuthentication(ctx context.Context, adminID string) (*protocol.CredentialAssertion, error) {
	if err := ValidateAdminID(adminID); err != nil {
		return nil, err
	}
	admin, err := s.admins.GetByID(ctx, adminID)
	if err != nil {
		return nil, err
	}
	if admin == nil || len(admin.Credentials) == 0 {
		return nil, ErrNoCredentials
	}
	user := newAdminUser(adminID, admin)
	assertion, sd, err := s.webauthn.BeginLogin(user,
		webauthn.WithAllowedCredentials(user.descriptors()),
		webauthn.WithUserVerification(protocol.VerificationRequired),
	)
	if err != nil {
		return nil, fmt.Errorf("begin login: %w", err)
	}
	if err := s.persist(ctx, adminID, challengedomain.CeremonyAuthentication, sd); err != nil {
		return nil, err
	}
	s.audit.LogEvent(ctx, audit.Event{Action: auditdomain.ActionLoginStarted, PrincipalKind: string(sessiondomain.KindAdmin), PrincipalID: adminID})
	return assertion, nil
}

// CompleteAuthentication verifies an assertion against the pending authentication challenge,
// advances the credential's signature counter and issues an admin session with its token.
func (s *Service) CompleteAuthentication(ctx context.Context, adminID string, body []byte) (sess *sessiondomain.Session, token string, err error) {
	ctx, span := s.tracer.Start(ctx, "ceremony.CompleteAuthentication",
		trace.WithAttributes(attribute.String("admin_id", adminID)))
	defer func() { s.finish(ctx, span, challengedomain.CeremonyAuthentication, err) }()

	if err := ValidateAdminID(adminID); err != nil {
		return nil, "", err
	}
	pending, reason, err := s.take(ctx, adminID, challengedomain.CeremonyAuthentication)
	if err != nil {
		if reason != "" {
			s.rejected(ctx, auditdomain.ActionLoginRejected, adminID, reason)
		}
		return nil, "", err
	}

	parsed, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(body))
	if err != nil {
		return nil, "", s.invalidAssertion(ctx, adminID, "parse", err)
	}
	admin, err := s.admins.GetByID(ctx, adminID)
	if err != nil {
		return nil, "", err
	}
	stored, ok := admin.Credential(parsed.RawID)
	if !ok {
		return nil, "", s.invalidAssertion(ctx, adminID, "lookup", errors.New("unknown credential id"))
	}
	storedCount := stored.SignCount

	validated, err := s.webauthn.ValidateLogin(newAdminUser(adminID, admin), pending.Session, parsed)
	if err != nil {
		return nil, "", s.invalidAssertion(ctx, adminID, "verify", err)
	}
	reported := parsed.Response.AuthenticatorData.Counter
	if validated.Authenticator.CloneWarning || !admindomain.CounterAdvanced(storedCount, reported) {
		return nil, "", s.possibleClone(ctx, adminID, validated.ID, storedCount, reported)
	}

	now := s.nowF()
	err = s.admins.RecordAssertion(ctx, adminID, validated.ID, reported, validated.Flags.BackupState, now)
	switch {
	case errors.Is(err, adminrepo.ErrCounterNotAdvanced):
		// A concurrent assertion advanced the counter first.
		return nil, "", s.possibleClone(ctx, adminID, validated.ID, storedCount, reported)
	case errors.Is(err, adminrepo.ErrCredentialNotFound):
		return nil, "", s.invalidAssertion(ctx, adminID, "record", err)
	case err != nil:
		return nil, "", err
	}

	sess, token, err = s.sessions.Issue(ctx, sessiondomain.KindAdmin, adminID)
	if err != nil {
		return nil, "", err
	}
	s.audit.LogEvent(ctx, audit.Event{
		Action:        auditdomain.ActionLoginSucceeded,
		PrincipalKind: string(sessiondomain.KindAdmin),
		PrincipalID:   adminID,
		SessionID:     sess.ID,
	})
	return sess, token, nil
}

func (s *Service) rejected(ctx context.Context, action auditdomain.Action, adminID, reason string) {
	s.log.InfoContext(ctx, "ceremony rejected",
		slog.String("action", string(action)), slog.String("admin_id", adminID), slog.String("reason", reason))
	s.audit.LogEvent(ctx, audit.Event{
		Action:        action,
		PrincipalKind: string(sessiondomain.KindAdmin),
		PrincipalID:   adminID,
		Reason:        reason,
	})
}

func (s *Service) invalidAttestation(ctx context.Context, adminID, stage string, cause error) error {
	reason := stage + ": " + protocolDetail(cause)
	s.rejected(ctx, auditdomain.ActionRegistrationRejected, adminID, reason)
	return fmt.Errorf("%w: %s", ErrAttestationInvalid, reason)
}

func (s *Service) invalidAssertion(ctx context.Context, adminID, stage string, cause error) error {
	reason := stage + ": " + protocolDetail(cause)
	s.rejected(ctx, auditdomain.ActionLoginRejected, adminID, reason)
	return fmt.Errorf("%w: %s", ErrAssertionInvalid, reason)
}

func (s *Service) possibleClone(ctx context.Context, adminID string, credentialID []byte, stored, reported uint32) error {
	s.log.WarnContext(ctx, "possible cloned authenticator: signature counter did not advance",
		slog.String("admin_id", adminID),
		slog.String("credential_id", fmt.Sprintf("%x", credentialID)),
		slog.Uint64("stored_count", uint64(stored)),
		slog.Uint64("reported_count", uint64(reported)))
	s.audit.LogEvent(ctx, audit.Event{
		Action:        auditdomain.ActionPossibleClone,
		PrincipalKind: string(sessiondomain.KindAdmin),
		PrincipalID:   adminID,
		Reason:        fmt.Sprintf("counter %d -> %d", stored, reported),
		Metadata:      map[string]string{"credential_id": fmt.Sprintf("%x", credentialID)},
	})
	return ErrPossibleCloneDetected
}

func (s *Service) finish(ctx context.Context, span trace.Span, ceremony challengedomain.Ceremony, err error) {
	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrPossibleCloneDetected):
		outcome = "possible_clone"
	case errors.Is(err, ErrNoPendingChallenge):
		outcome = "no_pending_challenge"
	case errors.Is(err, ErrAttestationInvalid), errors.Is(err, ErrAssertionInvalid), errors.Is(err, ErrInvalidAdminID):
		outcome = "rejected"
	default:
		outcome = "error"
	}
	s.metrics.CeremonyOutcome(ctx, string(ceremony), outcome)
	span.SetAttributes(attribute.String("outcome", outcome))
	if outcome == "error" {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ceremony failed")
	}
	span.End()
}

// protocolDetail extends a go-webauthn error with its developer info, which Error() omits.
func protocolDetail(err error) string {
	var perr *protocol.Error
	if errors.As(err, &perr) && perr.DevInfo != "" {
		return perr.Error() + " (" + perr.DevInfo + ")"
	}
	return err.Error()
}
