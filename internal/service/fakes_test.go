package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/refolio/refolio/internal/apperror"
	"github.com/refolio/refolio/internal/auth"
	"github.com/refolio/refolio/internal/github"
	"github.com/refolio/refolio/internal/model"
	"github.com/refolio/refolio/internal/realtime"
	"github.com/refolio/refolio/internal/schema"
	"github.com/refolio/refolio/internal/section"
)

// =========================================================================
// FAKES
// =========================================================================

// fakeStore is an in-memory stand-in for the user, profile and section
// repositories. Setting an *Err field makes the matching call fail.
type fakeStore struct {
	mu       sync.Mutex
	users    map[string]*model.User
	profiles map[string]*model.Profile
	sections map[string]map[section.Name][]byte
	nextID   int

	createErr       error
	updateAvatarErr error
	replaceErr      error
	getSectionErr   error

	// listUsernamesHook runs after ListUsernames has read the claims.
	listUsernamesHook func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[string]*model.User),
		profiles: make(map[string]*model.Profile),
		sections: make(map[string]map[section.Name][]byte),
	}
}

// addAccount seeds a user and profile without going through AuthService.
func (f *fakeStore) addAccount(id, email, username string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().Add(time.Duration(len(f.users)) * time.Second)
	f.users[id] = &model.User{ID: id, Email: email, Username: username, CreatedAt: now}
	f.profiles[id] = &model.Profile{OwnerID: id, Username: username, Email: email, CanChangeUsername: true, CreatedAt: now}
}

func (f *fakeStore) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if strings.EqualFold(u.Email, strings.TrimSpace(email)) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (f *fakeStore) CreateAccount(ctx context.Context, user *model.User, profile *model.Profile) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	user.ID = fmt.Sprintf("owner-%d", f.nextID)
	user.Email = strings.ToLower(user.Email)
	user.Username = profile.Username
	profile.OwnerID = user.ID
	profile.CanChangeUsername = true
	u, p := *user, *profile
	f.users[user.ID] = &u
	f.profiles[user.ID] = &p
	return nil
}

func (f *fakeStore) UpdateAvatar(ctx context.Context, ownerID, avatarURL string) error {
	if f.updateAvatarErr != nil {
		return f.updateAvatarErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[ownerID]
	if !ok {
		return apperror.NotFound("user", ownerID)
	}
	u.AvatarURL = avatarURL
	return nil
}

func (f *fakeStore) GetProfile(ctx context.Context, ownerID string) (*model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[ownerID]
	if !ok {
		return nil, apperror.NotFound("profile", ownerID)
	}
	cp := *p
	return &cp, nil
}

// oldestClaim mirrors the sqlite tie-break for duplicate usernames.
func (f *fakeStore) oldestClaim(username string) *model.Profile {
	var best *model.Profile
	for _, p := range f.profiles {
		if p.Username != username {
			continue
		}
		if best == nil || p.CreatedAt.Before(best.CreatedAt) {
			best = p
		}
	}
	return best
}

func (f *fakeStore) GetProfileByUsername(ctx context.Context, username string) (*model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.oldestClaim(username)
	if p == nil {
		return nil, apperror.NotFound("profile", username)
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) ListUsernames(ctx context.Context) ([]model.UsernameClaim, error) {
	f.mu.Lock()
	claims := make([]model.UsernameClaim, 0, len(f.profiles))
	for _, p := range f.profiles {
		claims = append(claims, model.UsernameClaim{Username: p.Username, OwnerID: p.OwnerID})
	}
	hook := f.listUsernamesHook
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return claims, nil
}

func (f *fakeStore) UpdateUsername(ctx context.Context, ownerID, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[ownerID]
	if !ok {
		return apperror.NotFound("profile", ownerID)
	}
	p.Username = username
	p.CanChangeUsername = false
	return nil
}

func (f *fakeStore) SetPublished(ctx context.Context, ownerID string, published bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[ownerID]
	if !ok {
		return apperror.NotFound("profile", ownerID)
	}
	p.IsPublished = published
	return nil
}

func (f *fakeStore) SetProtection(ctx context.Context, ownerID string, prot model.Protection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[ownerID]
	if !ok {
		return apperror.NotFound("profile", ownerID)
	}
	p.IsPasswordProtected = prot.Enabled
	p.PasswordHash = ""
	if prot.Enabled {
		p.PasswordHash = prot.PasswordHash
	}
	return nil
}

func (f *fakeStore) GetProtection(ctx context.Context, username string) (model.Protection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.oldestClaim(username)
	if p == nil {
		return model.Protection{}, apperror.NotFound("profile", username)
	}
	return model.Protection{Enabled: p.IsPasswordProtected, PasswordHash: p.PasswordHash}, nil
}

func (f *fakeStore) ListPublished(ctx context.Context, limit int) ([]model.PublishedProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.PublishedProfile
	for id, p := range f.profiles {
		if !p.IsPublished || f.users[id].AvatarURL == "" {
			continue
		}
		out = append(out, model.PublishedProfile{Username: p.Username, Name: p.Name, AvatarURL: f.users[id].AvatarURL})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) ReplaceSection(ctx context.Context, ownerID string, name section.Name, doc []byte) error {
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sections[ownerID] == nil {
		f.sections[ownerID] = make(map[section.Name][]byte)
	}
	f.sections[ownerID][name] = append([]byte(nil), doc...)
	return nil
}

func (f *fakeStore) GetSection(ctx context.Context, ownerID string, name section.Name) ([]byte, error) {
	if f.getSectionErr != nil {
		return nil, f.getSectionErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.sections[ownerID][name]
	if !ok {
		return nil, apperror.NotFound("section", name.String())
	}
	return doc, nil
}

func (f *fakeStore) GetSectionByUsername(ctx context.Context, username string, name section.Name) ([]byte, error) {
	p, err := f.GetProfileByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return f.GetSection(ctx, p.OwnerID, name)
}

func (f *fakeStore) ListSectionsByUsername(ctx context.Context, username string) (map[section.Name][]byte, error) {
	p, err := f.GetProfileByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[section.Name][]byte, len(f.sections[p.OwnerID]))
	for k, v := range f.sections[p.OwnerID] {
		out[k] = v
	}
	return out, nil
}

// section returns the stored document, or nil.
func (f *fakeStore) section(ownerID string, name section.Name) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sections[ownerID][name]
}

type fakeMailer struct {
	email, link string
	err         error
}

func (m *fakeMailer) SendMagicLink(ctx context.Context, email, link string) error {
	m.email, m.link = email, link
	return m.err
}

type fakeBus struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (b *fakeBus) Publish(ctx context.Context, ev realtime.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
	return nil
}

func (b *fakeBus) published() []realtime.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]realtime.Event(nil), b.events...)
}

type fakePinned struct {
	repos map[string][]github.Repository
	err   error
}

func (p *fakePinned) Pinned(ctx context.Context, login string) ([]github.Repository, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.repos[login], nil
}

type fakeBlobs struct {
	puts map[string][]byte
	err  error
}

func (b *fakeBlobs) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if b.err != nil {
		return "", b.err
	}
	if b.puts == nil {
		b.puts = make(map[string][]byte)
	}
	b.puts[key] = data
	return key, nil
}

func (b *fakeBlobs) PublicURL(stored string) string { return "https://media.test/" + stored }

// =========================================================================
// HELPERS
// =========================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testTokens(t *testing.T) *auth.TokenService {
	t.Helper()
	ts, err := auth.NewTokenService("test-secret-at-least-16-chars!!")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

func testValidator(t *testing.T) *schema.Validator {
	t.Helper()
	v, err := schema.New()
	if err != nil {
		t.Fatalf("schema.New: %v", err)
	}
	return v
}

func newTestSectionService(t *testing.T, store *fakeStore, bus *fakeBus) *SectionService {
	t.Helper()
	logger := testLogger()
	return NewSectionService(
		store, store, store,
		NewUsernameService(store, logger),
		auth.NewPasswordServiceForTest(4),
		testValidator(t),
		bus,
		logger,
	)
}
