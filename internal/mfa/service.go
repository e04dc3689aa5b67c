package mfa

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"camp-auth/backend/internal/audit"
	auditdomain "camp-auth/backend/internal/audit/domain"
	"camp-auth/backend/internal/mfa/domain"
	"camp-auth/backend/internal/mfa/email"
	"camp-auth/backend/internal/mfa/repository"
	participantdomain "camp-auth/backend/internal/participant/domain"
	participantrepo "camp-auth/backend/internal/participant/repository"
	telemetryotel "camp-auth/backend/internal/telemetry/otel"
)

// ErrInvalidEmail is returned when an email cannot identify a participant.
var ErrInvalidEmail = errors.New("invalid email")

const (
	defaultSendTimeout = 20 * time.Second
	defaultTOTPIssuer  = "Camp Dashboard"
	principalKind      = "participant"
)

// Options configures the code service.
type Options struct {
	// CodeTTL is the emailed code lifetime. Zero means repository.DefaultCodeTTL.
	CodeTTL time.Duration
	// SingleUse deletes an emailed code on its first successful verification.
	SingleUse bool
	// TOTPIssuer is the issuer label in provisioning URIs.
	TOTPIssuer string
	// SendTimeout bounds one background email delivery.
	SendTimeout time.Duration
}

// Service issues and verifies participant codes: emailed one-time codes and TOTP.
type Service struct {
	participants participantrepo.Repository
	codes        repository.Repository
	sender       email.Sender
	audit        audit.AuditLogger
	metrics      *telemetryotel.Metrics
	log          *slog.Logger
	opts         Options
	nowF         func() time.Time
	sends        sync.WaitGroup
}

// NewService returns a code service. audit and metrics may be nil.
func NewService(participants participantrepo.Repository, codes repository.Repository, sender email.Sender, auditLogger audit.AuditLogger, metrics *telemetryotel.Metrics, log *slog.Logger, opts Options) *Service {
	if opts.CodeTTL <= 0 {
		opts.CodeTTL = repository.DefaultCodeTTL
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}
	if opts.TOTPIssuer == "" {
		opts.TOTPIssuer = defaultTOTPIssuer
	}
	if auditLogger == nil {
		auditLogger = audit.Nop{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		participants: participants,
		codes:        codes,
		sender:       sender,
		audit:        auditLogger,
		metrics:      metrics,
		log:          log.With(slog.String("component", "mfa")),
		opts:         opts,
		nowF:         func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the service clock. Used by tests.
func (s *Service) SetClock(now func() time.Time) {
	s.nowF = now
}

// Wait blocks until every background email delivery has finished.
func (s *Service) Wait() {
	s.sends.Wait()
}

func normalize(email string) (string, error) {
	e := participantdomain.NormalizeEmail(email)
	if err := participantdomain.ValidateEmail(e); err != nil {
		return "", ErrInvalidEmail
	}
	return e, nil
}

// IssueEmailCode generates a fresh code for email, stores its hash as the only pending code
// (replacing any earlier one) and hands the code to the sender in the background.
// Delivery failures are logged and never returned. Returns the code's expiry.
func (s *Service) IssueEmailCode(ctx context.Context, email string) (time.Time, error) {
	addr, err := normalize(email)
	if err != nil {
		return time.Time{}, err
	}
	code, err := GenerateCode()
	if err != nil {
		return time.Time{}, err
	}
	now := s.nowF()
	pending := &domain.PendingCode{
		Email:     addr,
		CodeHash:  HashCode(code),
		ExpiresAt: now.Add(s.opts.CodeTTL),
		CreatedAt: now,
	}
	if err := s.codes.Put(ctx, pending); err != nil {
		return time.Time{}, err
	}
	s.audit.LogEvent(ctx, audit.Event{
		Action:        auditdomain.ActionCodeIssued,
		PrincipalKind: principalKind,
		PrincipalID:   addr,
	})
	s.deliver(ctx, addr, code)
	return pending.ExpiresAt, nil
}

func (s *Service) deliver(ctx context.Context, to, code string) {
	if s.sender == nil {
		return
	}
	s.sends.Add(1)
	go func() {
		defer s.sends.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.SendTimeout)
		defer cancel()
		if err := s.sender.Send(sendCtx, to, code); err != nil {
			s.log.Error("code email delivery failed", slog.String("to", to), slog.Any("error", err))
		}
	}()
}

// VerifyEmailCode reports whether code is the current pending code for email and has not
// expired (the expiry instant itself still verifies). With SingleUse a match consumes the code.
// Only store failures are returned as errors.
func (s *Service) VerifyEmailCode(ctx context.Context, email, code string) (bool, error) {
	addr, err := normalize(email)
	if err != nil {
		return false, nil
	}
	now := s.nowF()
	reason := "no pending code"
	match := func(c *domain.PendingCode) bool {
		switch {
		case c.Expired(now):
			reason = "expired"
			return false
		case !CodeMatches(code, c.CodeHash):
			reason = "mismatch"
			return false
		}
		return true
	}

	var ok bool
	if s.opts.SingleUse {
		ok, err = s.codes.ConsumeIf(ctx, addr, match)
	} else {
		var c *domain.PendingCode
		c, err = s.codes.GetByEmail(ctx, addr)
		ok = err == nil && c != nil && match(c)
	}
	if err != nil {
		return false, err
	}
	if reason == "expired" {
		s.purgeExpired(ctx, addr, now)
	}

	s.metrics.CodeVerification(ctx, "email", ok)
	ev := audit.Event{Action: auditdomain.ActionCodeVerified, PrincipalKind: principalKind, PrincipalID: addr}
	if !ok {
		ev.Action, ev.Reason = auditdomain.ActionCodeRejected, reason
	}
	s.audit.LogEvent(ctx, ev)
	return ok, nil
}

// purgeExpired deletes the pending code for addr if it is still expired at now. The expiry is
// re-checked inside the store update so a code issued meanwhile survives.
func (s *Service) purgeExpired(ctx context.Context, addr string, now time.Time) {
	_, err := s.codes.ConsumeIf(ctx, addr, func(c *domain.PendingCode) bool { return c.Expired(now) })
	if err != nil {
		s.log.Warn("expired code cleanup failed", slog.String("email", addr), slog.Any("error", err))
	}
}
