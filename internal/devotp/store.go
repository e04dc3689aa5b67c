// Package devotp keeps issued email codes in memory for dev-only retrieval (GET /dev/otp).
// It is enabled only when OTP_RETURN_TO_CLIENT is set outside production.
package devotp

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Store holds plain codes by email for dev-only retrieval. Not used in production.
type Store interface {
	// Put stores code for email until expiresAt, replacing any earlier code.
	Put(ctx context.Context, email, code string, expiresAt time.Time)
	// Get returns the code for email if present and not expired. Returns ok false if missing or expired.
	Get(ctx context.Context, email string) (code string, ok bool)
}

type entry struct {
	code      string
	expiresAt time.Time
}

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu   sync.RWMutex
	m    map[string]entry
	nowF func() time.Time
}

// NewMemoryStore returns a new in-memory dev code store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		m:    make(map[string]entry),
		nowF: func() time.Time { return time.Now().UTC() },
	}
}

// Put stores code for email until expiresAt.
func (s *MemoryStore) Put(ctx context.Context, email, code string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[email] = entry{code: code, expiresAt: expiresAt}
}

// Get returns the code for email if present and not expired.
func (s *MemoryStore) Get(ctx context.Context, email string) (string, bool) {
	s.mu.RLock()
	e, ok := s.m[email]
	s.mu.RUnlock()
	if !ok {
		return "", false
	}
	now := s.nowF()
	if !now.After(e.expiresAt) {
		return e.code, true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// A Put may have replaced the entry since the read lock was released.
	if cur, ok := s.m[email]; ok && !now.After(cur.expiresAt) {
		return cur.code, true
	}
	delete(s.m, email)
	return "", false
}

// Sender is an email.Sender that keeps codes in a Store instead of delivering them.
type Sender struct {
	store Store
	ttl   time.Duration
	log   *slog.Logger
	nowF  func() time.Time
}

// NewSender returns a sender that keeps each code for ttl.
func NewSender(store Store, ttl time.Duration, log *slog.Logger) *Sender {
	if log == nil {
		log = slog.Default()
	}
	return &Sender{store: store, ttl: ttl, log: log, nowF: func() time.Time { return time.Now().UTC() }}
}

// Send stores the code for retrieval through GET /dev/otp.
func (s *Sender) Send(ctx context.Context, to, code string) error {
	s.store.Put(ctx, to, code, s.nowF().Add(s.ttl))
	s.log.InfoContext(ctx, "dev otp stored; fetch it from /dev/otp", slog.String("to", to))
	return nil
}
