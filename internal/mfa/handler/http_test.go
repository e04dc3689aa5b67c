package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camp-auth/backend/internal/logging"
	"camp-auth/backend/internal/mfa"
	mfarepo "camp-auth/backend/internal/mfa/repository"
	participantrepo "camp-auth/backend/internal/participant/repository"
	"camp-auth/backend/internal/security"
	"camp-auth/backend/internal/server/httpapi"
	"camp-auth/backend/internal/session"
	sessiondomain "camp-auth/backend/internal/session/domain"
	sessionrepo "camp-auth/backend/internal/session/repository"
	"camp-auth/backend/internal/store"
)

type lastCode struct {
	mu   sync.Mutex
	code string
}

func (l *lastCode) Send(ctx context.Context, to, code string) error {
	l.mu.Lock()
	l.code = code
	l.mu.Unlock()
	return nil
}

type fixture struct {
	mux      http.Handler
	codes    *mfa.Service
	sessions *session.Service
	sent     *lastCode
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.NewFileStore(filepath.Join(t.TempDir(), "app_db.json"), logging.Discard())
	require.NoError(t, err)
	tokens, err := security.NewTestTokenProvider()
	require.NoError(t, err)
	log := logging.Discard()

	f := &fixture{sent: &lastCode{}}
	f.codes = mfa.NewService(participantrepo.NewStoreRepository(st), mfarepo.NewStoreRepository(st), f.sent, nil, nil, log, mfa.Options{})
	f.sessions = session.NewService(sessionrepo.NewStoreRepository(st), tokens, nil, log, 0)
	mux := chi.NewRouter()
	NewHandler(f.codes, f.sessions, log).RegisterRoutes(mux)
	f.mux = mux
	return f
}

func (f *fixture) post(target, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, target, strings.NewReader(body)))
	return w
}

func TestEmailCodeFlow(t *testing.T) {
	f := newFixture(t)

	w := f.post("/otp/email", `{"email":"A@B.com"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	f.codes.Wait()
	f.sent.mu.Lock()
	code := f.sent.code
	f.sent.mu.Unlock()
	require.Len(t, code, 6)
	assert.NotContains(t, w.Body.String(), code, "the code must only travel by email")

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	w = f.post("/otp/email/verify", `{"email":"a@b.com","code":"`+wrong+`"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":false,"error":"invalid code"}`, w.Body.String())

	w = f.post("/otp/email/verify", `{"email":"a@b.com","code":"`+code+`"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var resp httpapi.VerifyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.NotEmpty(t, resp.SessionToken)
	require.NotNil(t, resp.ExpiresAt)

	view, err := f.sessions.Current(context.Background(), sessiondomain.KindParticipant)
	require.NoError(t, err)
	assert.Equal(t, session.View{Authenticated: true, PrincipalID: "a@b.com"}, view)
}

func TestVerify_UnknownEmailLooksLikeWrongCode(t *testing.T) {
	f := newFixture(t)
	w := f.post("/otp/email/verify", `{"email":"x@y.com","code":"123456"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":false,"error":"invalid code"}`, w.Body.String())

	w = f.post("/otp/totp/verify", `{"email":"x@y.com","code":"123456"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":false,"error":"invalid code"}`, w.Body.String())
}

func TestTOTPFlow(t *testing.T) {
	f := newFixture(t)

	w := f.post("/otp/totp/provision", `{"email":"a@b.com"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var prov httpapi.ProvisionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &prov))
	assert.True(t, bytes.HasPrefix(prov.QRPng, []byte("\x89PNG")))
	key, err := otp.NewKeyFromURL(prov.URI)
	require.NoError(t, err)

	code, err := totp.GenerateCode(key.Secret(), time.Now())
	require.NoError(t, err)
	w = f.post("/otp/totp/verify", `{"email":"a@b.com","code":"`+code+`"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var resp httpapi.VerifyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
}

func TestBadRequests(t *testing.T) {
	f := newFixture(t)
	cases := []struct{ target, body string }{
		{"/otp/email", `not json`},
		{"/otp/email", `{}`},
		{"/otp/email", `{"email":"not-an-email"}`},
		{"/otp/email/verify", `{"email":"a@b.com"}`},
		{"/otp/email/verify", `{"code":"123456"}`},
		{"/otp/totp/provision", `{"email":""}`},
		{"/otp/totp/verify", `{"email":"a@b.com","code":""}`},
	}
	for _, tc := range cases {
		w := f.post(tc.target, tc.body)
		assert.Equal(t, http.StatusBadRequest, w.Code, "%s %s", tc.target, tc.body)
		assert.JSONEq(t, `{"error":"bad request"}`, w.Body.String())
	}
}
