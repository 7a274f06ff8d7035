package service

import (
	"context"
	"errors"
	"testing"

	"github.com/refolio/refolio/internal/apperror"
	"github.com/refolio/refolio/internal/auth"
	"github.com/refolio/refolio/internal/gate"
	"github.com/refolio/refolio/internal/model"
)

func protectedGateService(t *testing.T, secret string) (*GateService, *fakeStore, *auth.TokenService) {
	t.Helper()
	store := newFakeStore()
	store.addAccount("owner-1", "ada@example.com", "ada")

	passwords := auth.NewPasswordServiceForTest(4)
	if secret != "" {
		hash, err := passwords.Hash(secret)
		if err != nil {
			t.Fatal(err)
		}
		_ = store.SetProtection(context.Background(), "owner-1", model.Protection{Enabled: true, PasswordHash: hash})
	}

	tokens := testTokens(t)
	return NewGateService(store, passwords, tokens, testLogger()), store, tokens
}

func TestGate_UnprotectedShowsContent(t *testing.T) {
	svc, _, _ := protectedGateService(t, "")

	res, err := svc.Start(context.Background(), "ada")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if res.View.State != gate.ContentVisible {
		t.Errorf("State = %s, want %s", res.View.State, gate.ContentVisible)
	}
	locked, _ := svc.Locked(context.Background(), "ada")
	if locked {
		t.Error("Locked() = true for an unprotected profile")
	}
}

func TestGate_ProtectedPrompts(t *testing.T) {
	svc, _, _ := protectedGateService(t, "ax8dr")

	res, err := svc.Start(context.Background(), "ada")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if res.View.State != gate.PromptingPassword {
		t.Errorf("State = %s, want %s", res.View.State, gate.PromptingPassword)
	}
	if res.Pass != "" {
		t.Error("no pass before a correct password")
	}
}

func TestGate_SubmitCorrectIssuesPass(t *testing.T) {
	svc, store, tokens := protectedGateService(t, "ax8dr")

	res, err := svc.Submit(context.Background(), "ada", "ax8dr")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if res.View.State != gate.ContentVisible {
		t.Fatalf("State = %s, want %s", res.View.State, gate.ContentVisible)
	}
	prot, _ := store.GetProtection(context.Background(), "ada")
	key := auth.GatePassKey(prot.PasswordHash)
	if err := tokens.ValidateGatePass(res.Pass, "ada", key); err != nil {
		t.Errorf("pass does not validate: %v", err)
	}
	if err := tokens.ValidateGatePass(res.Pass, "grace", key); err == nil {
		t.Error("pass must be scoped to its username")
	}
}

func TestGate_PassDiesWithThePassword(t *testing.T) {
	svc, store, tokens := protectedGateService(t, "ax8dr")
	ctx := context.Background()

	res, err := svc.Submit(ctx, "ada", "ax8dr")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	hash, err := auth.NewPasswordServiceForTest(4).Hash("n3w-secret")
	if err != nil {
		t.Fatal(err)
	}
	_ = store.SetProtection(ctx, "owner-1", model.Protection{Enabled: true, PasswordHash: hash})

	if err := tokens.ValidateGatePass(res.Pass, "ada", auth.GatePassKey(hash)); err == nil {
		t.Error("pass issued under the old password must not validate under the new one")
	}
}

func TestGate_SubmitWrong(t *testing.T) {
	svc, _, _ := protectedGateService(t, "ax8dr")

	res, err := svc.Submit(context.Background(), "ada", "AX8DR")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if res.View.State != gate.PromptingPassword || res.View.Error != gate.MsgIncorrectPassword {
		t.Errorf("view = %+v", res.View)
	}
	if res.Pass != "" {
		t.Error("no pass after a wrong password")
	}
}

func TestGate_UnknownProfile(t *testing.T) {
	svc, _, _ := protectedGateService(t, "")

	if _, err := svc.Start(context.Background(), "nobody"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Start() error = %v, want ErrNotFound", err)
	}
	if _, err := svc.Submit(context.Background(), "nobody", "x"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Submit() error = %v, want ErrNotFound", err)
	}
}
