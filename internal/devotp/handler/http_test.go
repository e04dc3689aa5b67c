package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camp-auth/backend/internal/devotp"
	"camp-auth/backend/internal/logging"
	"camp-auth/backend/internal/server/httpapi"
)

func serve(h *Handler, target string) *httptest.ResponseRecorder {
	mux := chi.NewRouter()
	h.RegisterRoutes(mux)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestHandleGet(t *testing.T) {
	store := devotp.NewMemoryStore()
	store.Put(context.Background(), "a@b.com", "123456", time.Now().UTC().Add(time.Minute))
	h := NewHandler(store, logging.Discard())

	w := serve(h, "/dev/otp?email=A@B.com")
	require.Equal(t, http.StatusOK, w.Code)
	var resp httpapi.DevOTPResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "123456", resp.Code)

	assert.Equal(t, http.StatusNotFound, serve(h, "/dev/otp?email=c@d.com").Code)
	assert.Equal(t, http.StatusBadRequest, serve(h, "/dev/otp").Code)
}
