package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refolio/refolio/internal/config"
	"github.com/refolio/refolio/internal/realtime"
	"github.com/refolio/refolio/internal/storage"
)

func newTestServer(t *testing.T, cfg config.Config) (*Server, *storage.DiskStore) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := storage.NewDiskStore(t.TempDir(), "/media")
	require.NoError(t, err)

	s, err := New(cfg, store, realtime.NewMemoryBus(logger), logger)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, store
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.DBPath = ":memory:"
	cfg.Auth.JWTSecret = "server-test-secret-0123456789"
	return cfg
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestServer_Routes(t *testing.T) {
	s, _ := newTestServer(t, testConfig())

	tests := []struct {
		path string
		want int
	}{
		{"/", http.StatusOK},
		{"/api/profiles", http.StatusOK},
		{"/api/me", http.StatusUnauthorized},
		{"/api/settings", http.StatusUnauthorized},
		{"/user/me", http.StatusUnauthorized},
		{"/api/profiles/nobody", http.StatusNotFound},
		{"/nobody", http.StatusNotFound},
		{"/@nobody", http.StatusNotFound},
		{"/auth/google/login", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rr := get(t, s, tt.path)
			assert.Equal(t, tt.want, rr.Code, rr.Body.String())
		})
	}
}

func TestServer_GoogleLoginWhenConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.GoogleClientID = "client-id"
	cfg.Auth.GoogleClientSecret = "client-secret"
	s, _ := newTestServer(t, cfg)

	rr := get(t, s, "/auth/google/login")

	require.Equal(t, http.StatusTemporaryRedirect, rr.Code)
	assert.Contains(t, rr.Header().Get("Location"), "accounts.google.com")
	assert.Contains(t, rr.Header().Get("Location"), "client_id=client-id")
}

func TestServer_ServesDiskMedia(t *testing.T) {
	s, store := newTestServer(t, testConfig())

	key, err := store.Put(context.Background(), "avatars/owner/a.png", []byte("\x89PNG\r\n\x1a\n"), "image/png")
	require.NoError(t, err)

	rr := get(t, s, "/media/"+key)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "\x89PNG\r\n\x1a\n", rr.Body.String())
}

func TestNew_GeneratesSecretWhenUnset(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.JWTSecret = ""

	s, _ := newTestServer(t, cfg)

	assert.NotNil(t, s.tokens)
}
