package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/refolio/refolio/internal/apperror"
	"github.com/refolio/refolio/internal/auth"
	"github.com/refolio/refolio/internal/model"
)

func newTestAuthService(t *testing.T, store *fakeStore, mailer *fakeMailer) *AuthService {
	t.Helper()
	return NewAuthService(store, store, testTokens(t), mailer, "https://refolio.test/", testLogger())
}

// =========================================================================
// SignIn TESTS
// =========================================================================

func TestSignIn_NewOwnerIsProvisioned(t *testing.T) {
	store := newFakeStore()
	svc := newTestAuthService(t, store, &fakeMailer{})

	result, err := svc.SignIn(context.Background(), &model.Identity{
		Email:     "Ada@Example.com",
		Name:      "Ada Lovelace",
		AvatarURL: "https://lh3.test/ada.png",
	})
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if !result.Created {
		t.Error("Created = false, want true on first sign-in")
	}
	if result.Token == "" {
		t.Fatal("SignIn() returned empty Token")
	}

	p, err := store.GetProfile(context.Background(), result.User.ID)
	if err != nil {
		t.Fatalf("profile not created: %v", err)
	}
	if p.Username != "adalovelace" {
		t.Errorf("Username = %q, want %q", p.Username, "adalovelace")
	}
	if !p.CanChangeUsername {
		t.Error("a new profile must allow one username change")
	}
}

func TestSignIn_ExistingOwnerKeepsAccount(t *testing.T) {
	store := newFakeStore()
	svc := newTestAuthService(t, store, &fakeMailer{})
	ctx := context.Background()

	first, err := svc.SignIn(ctx, &model.Identity{Email: "ada@example.com", Name: "Ada"})
	if err != nil {
		t.Fatalf("first SignIn() error = %v", err)
	}
	second, err := svc.SignIn(ctx, &model.Identity{Email: "ADA@example.com", Name: "Someone Else"})
	if err != nil {
		t.Fatalf("second SignIn() error = %v", err)
	}

	if second.User.ID != first.User.ID {
		t.Errorf("second sign-in landed on %q, want %q", second.User.ID, first.User.ID)
	}
	if second.Created {
		t.Error("Created = true on a returning owner")
	}
}

func TestSignIn_DerivedUsernameIsSuffixedWhenTaken(t *testing.T) {
	store := newFakeStore()
	store.addAccount("existing", "first@example.com", "ada")
	svc := newTestAuthService(t, store, &fakeMailer{})

	result, err := svc.SignIn(context.Background(), &model.Identity{Email: "second@example.com", Name: "A D A"})
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if result.User.Username != "ada2" {
		t.Errorf("Username = %q, want %q", result.User.Username, "ada2")
	}
}

func TestSignIn_FallsBackToEmailLocalPart(t *testing.T) {
	store := newFakeStore()
	svc := newTestAuthService(t, store, &fakeMailer{})

	result, err := svc.SignIn(context.Background(), &model.Identity{Email: "grace.hopper@navy.test", Name: "  "})
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if result.User.Username != "grace.hopper" {
		t.Errorf("Username = %q, want %q", result.User.Username, "grace.hopper")
	}
}

func TestSignIn_TokenCarriesOwnerID(t *testing.T) {
	tokens := testTokens(t)
	store := newFakeStore()
	svc := NewAuthService(store, store, tokens, &fakeMailer{}, "https://refolio.test", testLogger())

	result, err := svc.SignIn(context.Background(), &model.Identity{Email: "ada@example.com", Name: "Ada"})
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	sub, err := tokens.ValidateSession(result.Token)
	if err != nil {
		t.Fatalf("ValidateSession() error = %v", err)
	}
	if sub != result.User.ID {
		t.Errorf("token subject = %q, want %q", sub, result.User.ID)
	}
}

func TestSignIn_RejectsMissingEmail(t *testing.T) {
	svc := newTestAuthService(t, newFakeStore(), &fakeMailer{})

	for _, id := range []*model.Identity{nil, {Name: "Ada"}} {
		if _, err := svc.SignIn(context.Background(), id); err == nil {
			t.Errorf("SignIn(%+v) should fail", id)
		}
	}
}

func TestSignIn_RepositoryError(t *testing.T) {
	store := newFakeStore()
	store.createErr = errors.New("database is on fire")
	svc := newTestAuthService(t, store, &fakeMailer{})

	_, err := svc.SignIn(context.Background(), &model.Identity{Email: "ada@example.com", Name: "Ada"})
	if err == nil {
		t.Fatal("SignIn() should propagate repository errors")
	}
}

// =========================================================================
// MAGIC LINK TESTS
// =========================================================================

func TestMagicLink_RoundTrip(t *testing.T) {
	store := newFakeStore()
	mailer := &fakeMailer{}
	svc := newTestAuthService(t, store, mailer)
	ctx := context.Background()

	if err := svc.RequestMagicLink(ctx, "  Ada@Example.com "); err != nil {
		t.Fatalf("RequestMagicLink() error = %v", err)
	}
	if !strings.HasPrefix(mailer.link, "https://refolio.test/auth/callback?token=") {
		t.Fatalf("link = %q, want the callback URL", mailer.link)
	}

	u, err := url.Parse(mailer.link)
	if err != nil {
		t.Fatalf("parsing link: %v", err)
	}
	result, err := svc.CompleteMagicLink(ctx, u.Query().Get("token"))
	if err != nil {
		t.Fatalf("CompleteMagicLink() error = %v", err)
	}
	if result.User.Email != "ada@example.com" {
		t.Errorf("Email = %q, want %q", result.User.Email, "ada@example.com")
	}
	if result.User.Username != "ada" {
		t.Errorf("Username = %q, want %q", result.User.Username, "ada")
	}
}

func TestRequestMagicLink_InvalidEmail(t *testing.T) {
	mailer := &fakeMailer{}
	svc := newTestAuthService(t, newFakeStore(), mailer)

	err := svc.RequestMagicLink(context.Background(), "not-an-email")
	if !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
	if mailer.link != "" {
		t.Error("no mail should be sent for an invalid address")
	}
}

func TestCompleteMagicLink_RejectsOtherTokens(t *testing.T) {
	tokens := testTokens(t)
	store := newFakeStore()
	svc := NewAuthService(store, store, tokens, &fakeMailer{}, "https://refolio.test", testLogger())

	session, _ := tokens.IssueSession("owner-1")
	for _, tok := range []string{"", "garbage", session} {
		_, err := svc.CompleteMagicLink(context.Background(), tok)
		if !errors.Is(err, apperror.ErrUnauthorized) {
			t.Errorf("CompleteMagicLink(%q) error = %v, want ErrUnauthorized", tok, err)
		}
	}
}

// =========================================================================
// GetUserByID TESTS
// =========================================================================

func TestGetUserByID(t *testing.T) {
	store := newFakeStore()
	store.addAccount("owner-1", "ada@example.com", "ada")
	svc := newTestAuthService(t, store, &fakeMailer{})

	u, err := svc.GetUserByID(context.Background(), "owner-1")
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if u.Username != "ada" {
		t.Errorf("Username = %q, want %q", u.Username, "ada")
	}

	if _, err := svc.GetUserByID(context.Background(), ""); err == nil {
		t.Error("GetUserByID(\"\") should fail")
	}
	if _, err := svc.GetUserByID(context.Background(), "missing"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestRequireOwner(t *testing.T) {
	if _, err := requireOwner(auth.Anonymous); !errors.Is(err, apperror.ErrUnauthorized) {
		t.Errorf("anonymous: error = %v, want ErrUnauthorized", err)
	}
	owner, err := requireOwner(auth.NewSession("owner-1"))
	if err != nil || owner != "owner-1" {
		t.Errorf("requireOwner() = %q, %v", owner, err)
	}
}
