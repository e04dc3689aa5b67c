// Package session owns the session boundary: one slot per principal kind holding the last
// successfully authenticated principal.
package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"camp-auth/backend/internal/audit"
	auditdomain "camp-auth/backend/internal/audit/domain"
	"camp-auth/backend/internal/security"
	"camp-auth/backend/internal/session/domain"
	"camp-auth/backend/internal/session/repository"
)

// DefaultTTL is the session lifetime when none is configured.
const DefaultTTL = 12 * time.Hour

var (
	// ErrSessionMismatch is returned by Revoke when the slot does not hold the given session.
	ErrSessionMismatch = errors.New("session does not match")
	// ErrInvalidToken is returned by RevokeToken for tokens that do not validate.
	ErrInvalidToken = errors.New("invalid session token")
)

// View is what callers may learn about a kind's session.
type View struct {
	Authenticated bool
	PrincipalID   string
}

// Service issues, reads and revokes sessions.
type Service struct {
	repo   repository.Repository
	tokens *security.TokenProvider
	audit  audit.AuditLogger
	log    *slog.Logger
	ttl    time.Duration
	nowF   func() time.Time
}

// NewService returns a session service. tokens may be nil, in which case no tokens are issued
// and RevokeToken always fails.
func NewService(repo repository.Repository, tokens *security.TokenProvider, auditLogger audit.AuditLogger, log *slog.Logger, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if auditLogger == nil {
		auditLogger = audit.Nop{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		repo:   repo,
		tokens: tokens,
		audit:  auditLogger,
		log:    log.With(slog.String("component", "session")),
		ttl:    ttl,
		nowF:   func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the service clock. Used by tests.
func (s *Service) SetClock(now func() time.Time) {
	s.nowF = now
}

// Issue creates an authenticated session for principalID, replacing whatever the kind's slot
// held, and returns it with a signed token for it.
func (s *Service) Issue(ctx context.Context, kind domain.Kind, principalID string) (*domain.Session, string, error) {
	now := s.nowF()
	sess := &domain.Session{
		ID:            uuid.NewString(),
		Kind:          kind,
		PrincipalID:   principalID,
		Authenticated: true,
		IssuedAt:      now,
		ExpiresAt:     now.Add(s.ttl),
	}
	if err := s.repo.Put(ctx, sess); err != nil {
		return nil, "", err
	}
	token := ""
	if s.tokens != nil {
		var err error
		token, err = s.tokens.IssueSession(sess.ID, string(kind), principalID, sess.ExpiresAt)
		if err != nil {
			// The session is stored; without a token it simply cannot be revoked by its holder.
			s.log.Error("session token signing failed", slog.String("kind", string(kind)), slog.Any("error", err))
			token = ""
		}
	}
	return sess, token, nil
}

// Current returns the kind's session view. Missing, expired and unauthenticated sessions all
// read as unauthenticated.
func (s *Service) Current(ctx context.Context, kind domain.Kind) (View, error) {
	sess, err := s.repo.Get(ctx, kind)
	if err != nil {
		return View{}, err
	}
	if !sess.Active(s.nowF()) {
		return View{}, nil
	}
	return View{Authenticated: true, PrincipalID: sess.PrincipalID}, nil
}

// Lookup returns the session stored in the kind's slot, expired or not, or nil when empty.
// It is meant for operators; request paths use Current.
func (s *Service) Lookup(ctx context.Context, kind domain.Kind) (*domain.Session, error) {
	return s.repo.Get(ctx, kind)
}

// Revoke empties the kind's slot when it holds sessionID. ErrSessionMismatch otherwise.
func (s *Service) Revoke(ctx context.Context, kind domain.Kind, sessionID string) error {
	deleted, err := s.repo.DeleteIfID(ctx, kind, sessionID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrSessionMismatch
	}
	s.audit.LogEvent(ctx, audit.Event{
		Action:        auditdomain.ActionSessionRevoked,
		PrincipalKind: string(kind),
		SessionID:     sessionID,
	})
	return nil
}

// RevokeToken validates a session token for kind and revokes the session it names.
func (s *Service) RevokeToken(ctx context.Context, kind domain.Kind, token string) error {
	if s.tokens == nil {
		return ErrInvalidToken
	}
	claims, err := s.tokens.ValidateSession(token)
	if err != nil || claims.Kind != string(kind) {
		return ErrInvalidToken
	}
	return s.Revoke(ctx, kind, claims.SessionID)
}
