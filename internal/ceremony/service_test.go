package ceremony

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	adminrepo "camp-auth/backend/internal/admin/repository"
	"camp-auth/backend/internal/audit"
	auditdomain "camp-auth/backend/internal/audit/domain"
	"camp-auth/backend/internal/ceremony/webauthntest"
	challengerepo "camp-auth/backend/internal/challenge/repository"
	"camp-auth/backend/internal/logging"
	"camp-auth/backend/internal/security"
	"camp-auth/backend/internal/session"
	sessiondomain "camp-auth/backend/internal/session/domain"
	sessionrepo "camp-auth/backend/internal/session/repository"
	"camp-auth/backend/internal/store"
)

const (
	testRPID   = "localhost"
	testOrigin = "http://localhost:8000"
)

type fixture struct {
	svc      *Service
	admins   *adminrepo.StoreRepository
	sessions *session.Service
	store    store.Store
	audit    *auditRecorder
	logs     *syncBuffer
	now      time.Time
}

type auditRecorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *auditRecorder) LogEvent(_ context.Context, ev audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *auditRecorder) byAction(action auditdomain.Action) []audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []audit.Event
	for _, ev := range r.events {
		if ev.Action == action {
			out = append(out, ev)
		}
	}
	return out
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// warnings returns the messages of WARN log lines written so far.
func (b *syncBuffer) warnings(t *testing.T) []string {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, line := range bytes.Split(b.buf.Bytes(), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var rec struct {
			Level string `json:"level"`
			Msg   string `json:"msg"`
		}
		require.NoError(t, json.Unmarshal(line, &rec))
		if rec.Level == slog.LevelWarn.String() {
			out = append(out, rec.Msg)
		}
	}
	return out
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.NewFileStore(filepath.Join(t.TempDir(), "app_db.json"), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	tokens, err := security.NewTestTokenProvider()
	require.NoError(t, err)

	f := &fixture{
		admins: adminrepo.NewStoreRepository(st),
		store:  st,
		audit:  &auditRecorder{},
		logs:   &syncBuffer{},
		now:    time.Now().UTC(),
	}
	f.sessions = session.NewService(sessionrepo.NewStoreRepository(st), tokens, nil, logging.Discard(), 0)
	f.svc, err = NewService(Options{
		RPID:          testRPID,
		RPDisplayName: "Camp Dashboard",
		RPOrigins:     []string{testOrigin},
	}, f.admins, challengerepo.NewStoreRepository(st), f.sessions, f.audit, nil, nil, slog.New(slog.NewJSONHandler(f.logs, nil)))
	require.NoError(t, err)
	f.svc.SetClock(func() time.Time { return f.now })
	return f
}

func (f *fixture) register(t *testing.T, adminID string, a *webauthntest.Authenticator) {
	t.Helper()
	creation, err := f.svc.BeginRegistration(context.Background(), adminID)
	require.NoError(t, err)
	_, err = f.svc.CompleteRegistration(context.Background(), adminID, a.Attest(t, creation))
	require.NoError(t, err)
}

func (f *fixture) login(t *testing.T, adminID string, a *webauthntest.Authenticator) (*sessiondomain.Session, error) {
	t.Helper()
	assertion, err := f.svc.BeginAuthentication(context.Background(), adminID)
	require.NoError(t, err)
	sess, _, err := f.svc.CompleteAuthentication(context.Background(), adminID, a.Assert(t, assertion, UserHandle(adminID)))
	return sess, err
}

func (f *fixture) pendingCount(t *testing.T) int {
	t.Helper()
	all, err := f.store.List(context.Background(), store.PendingChallenges)
	require.NoError(t, err)
	return len(all)
}

func TestRegisterThenAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := webauthntest.New(t, testRPID, testOrigin)

	creation, err := f.svc.BeginRegistration(ctx, "admin1")
	require.NoError(t, err)
	cred, err := f.svc.CompleteRegistration(ctx, "admin1", a.Attest(t, creation))
	require.NoError(t, err)
	assert.Equal(t, a.CredentialID, cred.ID)
	assert.Equal(t, uint32(0), cred.SignCount)
	assert.True(t, cred.UserVerified)
	assert.Equal(t, 0, f.pendingCount(t), "registration must consume its challenge")

	a.Counter = 1
	sess, err := f.login(t, "admin1", a)
	require.NoError(t, err)
	assert.Equal(t, "admin1", sess.PrincipalID)
	assert.Equal(t, sessiondomain.KindAdmin, sess.Kind)
	assert.Equal(t, 0, f.pendingCount(t))

	view, err := f.sessions.Current(ctx, sessiondomain.KindAdmin)
	require.NoError(t, err)
	assert.Equal(t, session.View{Authenticated: true, PrincipalID: "admin1"}, view)

	admin, err := f.admins.GetByID(ctx, "admin1")
	require.NoError(t, err)
	stored, ok := admin.Credential(a.CredentialID)
	require.True(t, ok)
	assert.Equal(t, uint32(1), stored.SignCount)
	require.NotNil(t, stored.LastUsedAt)
}

func TestBeginRegistration_Policy(t *testing.T) {
	f := newFixture(t)
	a := webauthntest.New(t, testRPID, testOrigin)
	f.register(t, "admin1", a)

	creation, err := f.svc.BeginRegistration(context.Background(), "admin1")
	require.NoError(t, err)
	opts := creation.Response
	assert.Equal(t, protocol.Platform, opts.AuthenticatorSelection.AuthenticatorAttachment)
	assert.Equal(t, protocol.VerificationRequired, opts.AuthenticatorSelection.UserVerification)
	assert.Equal(t, testRPID, opts.RelyingParty.ID)
	require.Len(t, opts.CredentialExcludeList, 1)
	assert.Equal(t, protocol.URLEncodedBase64(a.CredentialID), opts.CredentialExcludeList[0].CredentialID)
	assert.Len(t, opts.Challenge, 32)
	assert.Equal(t, 1, f.pendingCount(t))
}

func TestCompleteRegistration_Replay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := webauthntest.New(t, testRPID, testOrigin)

	creation, err := f.svc.BeginRegistration(ctx, "admin1")
	require.NoError(t, err)
	body := a.Attest(t, creation)
	_, err = f.svc.CompleteRegistration(ctx, "admin1", body)
	require.NoError(t, err)

	_, err = f.svc.CompleteRegistration(ctx, "admin1", body)
	require.ErrorIs(t, err, ErrNoPendingChallenge)
}

func TestCompleteRegistration_GarbageConsumesChallenge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := webauthntest.New(t, testRPID, testOrigin)

	creation, err := f.svc.BeginRegistration(ctx, "admin1")
	require.NoError(t, err)

	_, err = f.svc.CompleteRegistration(ctx, "admin1", []byte(`{"garbage":true}`))
	require.ErrorIs(t, err, ErrAttestationInvalid)

	_, err = f.svc.CompleteRegistration(ctx, "admin1", a.Attest(t, creation))
	require.ErrorIs(t, err, ErrNoPendingChallenge)

	admin, err := f.admins.GetByID(ctx, "admin1")
	require.NoError(t, err)
	assert.Nil(t, admin, "no account may be created from a rejected ceremony")
}

func TestCompleteRegistration_NoPendingChallenge(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CompleteRegistration(context.Background(), "admin1", []byte(`{}`))
	require.ErrorIs(t, err, ErrNoPendingChallenge)
}

func TestCompleteRegistration_PolicyViolations(t *testing.T) {
	cases := map[string]func(a *webauthntest.Authenticator){
		"no user verification": func(a *webauthntest.Authenticator) { a.Flags = webauthntest.FlagUP },
		"wrong origin":         func(a *webauthntest.Authenticator) { a.Origin = "https://evil.example" },
		"wrong relying party":  func(a *webauthntest.Authenticator) { a.RPID = "evil.example" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			a := webauthntest.New(t, testRPID, testOrigin)
			mutate(a)

			creation, err := f.svc.BeginRegistration(ctx, "admin1")
			require.NoError(t, err)
			_, err = f.svc.CompleteRegistration(ctx, "admin1", a.Attest(t, creation))
			require.ErrorIs(t, err, ErrAttestationInvalid)
			assert.Equal(t, 0, f.pendingCount(t))
		})
	}
}

func TestCompleteRegistration_WrongChallenge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := webauthntest.New(t, testRPID, testOrigin)

	stale, err := f.svc.BeginRegistration(ctx, "admin1")
	require.NoError(t, err)
	_, err = f.svc.BeginRegistration(ctx, "admin1")
	require.NoError(t, err)

	_, err = f.svc.CompleteRegistration(ctx, "admin1", a.Attest(t, stale))
	require.ErrorIs(t, err, ErrAttestationInvalid, "re-issue must supersede the earlier challenge")
}

func TestCompleteRegistration_Expired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := webauthntest.New(t, testRPID, testOrigin)

	creation, err := f.svc.BeginRegistration(ctx, "admin1")
	require.NoError(t, err)
	body := a.Attest(t, creation)

	f.now = f.now.Add(DefaultChallengeTTL + time.Second)
	_, err = f.svc.CompleteRegistration(ctx, "admin1", body)
	require.ErrorIs(t, err, ErrNoPendingChallenge)
	assert.Equal(t, 0, f.pendingCount(t), "expired challenge is consumed")
}

func TestCompleteRegistration_ExpiryInstant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := webauthntest.New(t, testRPID, testOrigin)

	creation, err := f.svc.BeginRegistration(ctx, "admin1")
	require.NoError(t, err)
	f.now = f.now.Add(DefaultChallengeTTL)
	_, err = f.svc.CompleteRegistration(ctx, "admin1", a.Attest(t, creation))
	require.NoError(t, err)
}

func TestCompleteRegistration_DuplicateCredential(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := webauthntest.New(t, testRPID, testOrigin)
	f.register(t, "admin1", a)

	creation, err := f.svc.BeginRegistration(ctx, "admin1")
	require.NoError(t, err)
	_, err = f.svc.CompleteRegistration(ctx, "admin1", a.Attest(t, creation))
	require.ErrorIs(t, err, ErrAttestationInvalid)

	admin, err := f.admins.GetByID(ctx, "admin1")
	require.NoError(t, err)
	assert.Len(t, admin.Credentials, 1)
}

func TestRegister_SecondAuthenticatorAppends(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, second := webauthntest.New(t, testRPID, testOrigin), webauthntest.New(t, testRPID, testOrigin)
	f.register(t, "admin1", first)
	f.register(t, "admin1", second)

	admin, err := f.admins.GetByID(ctx, "admin1")
	require.NoError(t, err)
	require.Len(t, admin.Credentials, 2)

	assertion, err := f.svc.BeginAuthentication(ctx, "admin1")
	require.NoError(t, err)
	assert.Len(t, assertion.Response.AllowedCredentials, 2)
	assert.Equal(t, protocol.VerificationRequired, assertion.Response.UserVerification)

	second.Counter = 1
	sess, _, err := f.svc.CompleteAuthentication(ctx, "admin1", second.Assert(t, assertion, UserHandle("admin1")))
	require.NoError(t, err)
	assert.Equal(t, "admin1", sess.PrincipalID)
}

func TestBeginAuthentication_NoCredentials(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.BeginAuthentication(context.Background(), "admin1")
	require.ErrorIs(t, err, ErrNoCredentials)
	assert.Equal(t, 0, f.pendingCount(t))
}

func TestCompleteAuthentication_CounterMustAdvance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := webauthntest.New(t, testRPID, testOrigin)
	f.register(t, "admin1", a)

	a.Counter = 5
	_, err := f.login(t, "admin1", a)
	require.NoError(t, err)

	for _, counter := range []uint32{5, 3, 0} {
		a.Counter = counter
		_, err = f.login(t, "admin1", a)
		require.ErrorIs(t, err, ErrPossibleCloneDetected, "counter %d", counter)
		require.ErrorIs(t, err, ErrAssertionInvalid)
		assert.Equal(t, 0, f.pendingCount(t))
	}

	clones := f.audit.byAction(auditdomain.ActionPossibleClone)
	require.Len(t, clones, 3)
	assert.Equal(t, "admin1", clones[1].PrincipalID)
	assert.Equal(t, "counter 5 -> 3", clones[1].Reason)
	assert.NotEmpty(t, clones[1].Metadata["credential_id"])
	assert.Len(t, f.logs.warnings(t), 3)
	assert.Empty(t, f.audit.byAction(auditdomain.ActionLoginRejected), "a counter rollback is reported only as a possible clone")

	admin, err := f.admins.GetByID(ctx, "admin1")
	require.NoError(t, err)
	stored, _ := admin.Credential(a.CredentialID)
	assert.Equal(t, uint32(5), stored.SignCount, "rejected assertions must not move the counter")

	a.Counter = 6
	_, err = f.login(t, "admin1", a)
	require.NoError(t, err)
}

func TestCompleteAuthentication_ZeroCounters(t *testing.T) {
	f := newFixture(t)
	a := webauthntest.New(t, testRPID, testOrigin)
	f.register(t, "admin1", a)

	for i := 0; i < 3; i++ {
		_, err := f.login(t, "admin1", a)
		require.NoError(t, err, "attempt %d", i+1)
	}
}

func TestCompleteAuthentication_Replay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := webauthntest.New(t, testRPID, testOrigin)
	f.register(t, "admin1", a)

	assertion, err := f.svc.BeginAuthentication(ctx, "admin1")
	require.NoError(t, err)
	a.Counter = 1
	body := a.Assert(t, assertion, UserHandle("admin1"))
	_, _, err = f.svc.CompleteAuthentication(ctx, "admin1", body)
	require.NoError(t, err)

	_, _, err = f.svc.CompleteAuthentication(ctx, "admin1", body)
	require.ErrorIs(t, err, ErrNoPendingChallenge)
}

func TestCompleteAuthentication_FailureConsumesChallenge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := webauthntest.New(t, testRPID, testOrigin)
	f.register(t, "admin1", a)

	assertion, err := f.svc.BeginAuthentication(ctx, "admin1")
	require.NoError(t, err)
	a.Counter = 1
	body := a.Assert(t, assertion, UserHandle("admin1"))

	_, _, err = f.svc.CompleteAuthentication(ctx, "admin1", []byte(`not json`))
	require.ErrorIs(t, err, ErrAssertionInvalid)

	_, _, err = f.svc.CompleteAuthentication(ctx, "admin1", body)
	require.ErrorIs(t, err, ErrNoPendingChallenge)
}

func TestCompleteAuthentication_BadSignature(t *testing.T) {
	f := newFixture(t)
	a := webauthntest.New(t, testRPID, testOrigin)
	f.register(t, "admin1", a)

	impostor := webauthntest.New(t, testRPID, testOrigin)
	impostor.CredentialID = a.CredentialID
	impostor.Counter = 1
	_, err := f.login(t, "admin1", impostor)
	require.ErrorIs(t, err, ErrAssertionInvalid)
	require.NotErrorIs(t, err, ErrPossibleCloneDetected)

	assert.Len(t, f.audit.byAction(auditdomain.ActionLoginRejected), 1)
	assert.Empty(t, f.audit.byAction(auditdomain.ActionPossibleClone))
	assert.Empty(t, f.logs.warnings(t))
}

func TestCompleteAuthentication_UserVerificationRequired(t *testing.T) {
	f := newFixture(t)
	a := webauthntest.New(t, testRPID, testOrigin)
	f.register(t, "admin1", a)

	a.Flags = webauthntest.FlagUP
	a.Counter = 1
	_, err := f.login(t, "admin1", a)
	require.ErrorIs(t, err, ErrAssertionInvalid)
}

func TestCompleteAuthentication_OtherAdminsCredential(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mine, theirs := webauthntest.New(t, testRPID, testOrigin), webauthntest.New(t, testRPID, testOrigin)
	f.register(t, "admin1", mine)
	f.register(t, "admin2", theirs)

	assertion, err := f.svc.BeginAuthentication(ctx, "admin1")
	require.NoError(t, err)
	theirs.Counter = 1
	_, _, err = f.svc.CompleteAuthentication(ctx, "admin1", theirs.Assert(t, assertion, UserHandle("admin1")))
	require.ErrorIs(t, err, ErrAssertionInvalid)
}

func TestCompleteAuthentication_WrongCeremony(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := webauthntest.New(t, testRPID, testOrigin)

	creation, err := f.svc.BeginRegistration(ctx, "admin1")
	require.NoError(t, err)
	_, _, err = f.svc.CompleteAuthentication(ctx, "admin1", []byte(`{}`))
	require.ErrorIs(t, err, ErrNoPendingChallenge)

	_, err = f.svc.CompleteRegistration(ctx, "admin1", a.Attest(t, creation))
	require.ErrorIs(t, err, ErrNoPendingChallenge, "mismatched completion consumes the challenge")
}

func TestCompleteAuthentication_ConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := webauthntest.New(t, testRPID, testOrigin)
	f.register(t, "admin1", a)

	assertion, err := f.svc.BeginAuthentication(ctx, "admin1")
	require.NoError(t, err)
	a.Counter = 1
	body := a.Assert(t, assertion, UserHandle("admin1"))

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = f.svc.CompleteAuthentication(ctx, "admin1", body)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrNoPendingChallenge):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
}

func TestInvalidAdminID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, id := range []string{"", "bad\nid", string(make([]byte, maxAdminIDLen+1))} {
		_, err := f.svc.BeginRegistration(ctx, id)
		assert.ErrorIs(t, err, ErrInvalidAdminID, "%q", id)
		_, err = f.svc.BeginAuthentication(ctx, id)
		assert.ErrorIs(t, err, ErrInvalidAdminID, "%q", id)
	}
	assert.Equal(t, 0, f.pendingCount(t))
}

func TestUserHandle(t *testing.T) {
	assert.Len(t, UserHandle("admin1"), 32)
	assert.Equal(t, UserHandle("admin1"), UserHandle("admin1"))
	assert.NotEqual(t, UserHandle("admin1"), UserHandle("admin2"))
}

func TestNewService_InvalidConfig(t *testing.T) {
	_, err := NewService(Options{RPID: "localhost"}, nil, nil, nil, nil, nil, nil, nil)
	require.Error(t, err)
}
