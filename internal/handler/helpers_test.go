package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/refolio/refolio/internal/auth"
	"github.com/refolio/refolio/internal/github"
	"github.com/refolio/refolio/internal/handler"
	"github.com/refolio/refolio/internal/middleware"
	"github.com/refolio/refolio/internal/model"
	"github.com/refolio/refolio/internal/realtime"
	sqliteRepo "github.com/refolio/refolio/internal/repository/sqlite"
	"github.com/refolio/refolio/internal/schema"
	"github.com/refolio/refolio/internal/service"
	"github.com/refolio/refolio/internal/storage"
)

const testSecret = "handler-test-secret-0123456789"

// captureMailer keeps the last link instead of sending it.
type captureMailer struct {
	mu   sync.Mutex
	link string
}

func (m *captureMailer) SendMagicLink(_ context.Context, _, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.link = link
	return nil
}

func (m *captureMailer) last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.link
}

// stubProvider stands in for Google.
type stubProvider struct {
	identity *model.Identity
}

func (p *stubProvider) AuthURL(state string) string {
	return "https://accounts.test/o/oauth2/auth?state=" + state
}

func (p *stubProvider) Exchange(_ context.Context, code string) (*model.Identity, error) {
	return p.identity, nil
}

type testEnv struct {
	router http.Handler
	auths  *service.AuthService
	tokens *auth.TokenService
	bus    *realtime.MemoryBus
	mailer *captureMailer
}

// newTestEnv builds the full handler stack over an in-memory database, a
// temp media directory and the in-process bus. provider may be nil.
func newTestEnv(t *testing.T, provider handler.IdentityProvider) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := sqliteRepo.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	schemas, err := schema.New()
	require.NoError(t, err)

	tokens, err := auth.NewTokenService(testSecret)
	require.NoError(t, err)

	store, err := storage.NewDiskStore(t.TempDir(), "/media")
	require.NoError(t, err)

	bus := realtime.NewMemoryBus(logger)
	t.Cleanup(func() { bus.Close() })

	mailer := &captureMailer{}
	passwords := auth.NewPasswordServiceForTest(4)

	usernames := service.NewUsernameService(db, logger)
	auths := service.NewAuthService(db, db, tokens, mailer, "http://refolio.test", logger)
	sections := service.NewSectionService(db, db, db, usernames, passwords, schemas, bus, logger)
	profiles := service.NewProfileService(db, db, github.NewClient(""), logger)
	gates := service.NewGateService(db, passwords, tokens, logger)
	uploads := service.NewUploadService(store, sections, logger)

	authHandler := handler.NewAuthHandler(provider, auths, false, logger)
	settingsHandler := handler.NewSettingsHandler(sections, usernames, profiles, uploads, logger)
	profileHandler := handler.NewProfileHandler(profiles, gates, tokens, bus, false, logger)
	pageHandler, err := handler.NewPageHandler(profiles, gates, tokens, false, logger)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(middleware.AtUsername)
	r.Use(auth.LoadSession(tokens))

	r.Get("/auth/google/login", authHandler.HandleGoogleLogin)
	r.Get("/auth/callback", authHandler.HandleCallback)
	r.Post("/auth/magic-link", authHandler.HandleMagicLink)
	r.Post("/auth/logout", authHandler.HandleLogout)

	r.Get("/api/profiles", profileHandler.HandleDirectory)
	r.Get("/api/profiles/{username}", profileHandler.HandleProfile)
	r.Get("/api/profiles/{username}/gate", profileHandler.HandleGateStart)
	r.Post("/api/profiles/{username}/gate", profileHandler.HandleGateSubmit)
	r.Get("/api/profiles/{username}/events", profileHandler.HandleEvents)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireSession)
		r.Get("/api/me", authHandler.HandleMe)
		r.Get("/api/settings", settingsHandler.HandleSettings)
		r.Put("/api/settings/username", settingsHandler.HandleUsername)
		r.Put("/api/settings/publish", settingsHandler.HandlePublish)
		r.Post("/api/settings/avatar", settingsHandler.HandleAvatar)
		r.Get("/api/settings/sections/{name}", settingsHandler.HandleSection)
		r.Put("/api/settings/sections/{name}", settingsHandler.HandleReplace)
		r.Post("/api/settings/sections/{name}/edits", settingsHandler.HandleEdits)
		r.Post("/api/settings/sections/{name}/rows/{index}/media", settingsHandler.HandleRowMedia)
	})

	r.Get("/{username}", pageHandler.HandleProfile)
	r.Post("/{username}", pageHandler.HandleUnlock)

	return &testEnv{router: r, auths: auths, tokens: tokens, bus: bus, mailer: mailer}
}

// owner is a signed-in account.
type owner struct {
	id       string
	username string
	cookie   *http.Cookie
}

func (e *testEnv) signIn(t *testing.T, email, name string) owner {
	t.Helper()
	res, err := e.auths.SignIn(context.Background(), &model.Identity{Email: email, Name: name})
	require.NoError(t, err)
	return owner{
		id:       res.User.ID,
		username: res.User.Username,
		cookie:   &http.Cookie{Name: auth.SessionCookie, Value: res.Token},
	}
}

// do sends a request through the router. body may be nil, a string, []byte
// or any value to encode as JSON.
func (e *testEnv) do(t *testing.T, method, target string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = bytes.NewBufferString(b)
	case []byte:
		rdr = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, rdr)
	if rdr != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), "body: %s", rr.Body.String())
	return v
}

func responseCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

type editsBody struct {
	Ops []opBody `json:"ops"`
}

type opBody struct {
	Op    string `json:"op"`
	Index int    `json:"index,omitempty"`
	Field string `json:"field,omitempty"`
	Value string `json:"value,omitempty"`
}

func set(field, value string) opBody { return opBody{Op: "set", Field: field, Value: value} }

func update(index int, field, value string) opBody {
	return opBody{Op: "update", Index: index, Field: field, Value: value}
}

// protect enables the password gate on o's profile.
func (e *testEnv) protect(t *testing.T, o owner, password string) {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/api/settings/sections/password-protection/edits", editsBody{Ops: []opBody{
		set("enabled", "true"),
		set("password", password),
	}}, o.cookie)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}
