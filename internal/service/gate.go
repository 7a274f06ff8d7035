package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/refolio/refolio/internal/auth"
	"github.com/refolio/refolio/internal/gate"
	"github.com/refolio/refolio/internal/repository"
)

// GateResult is the outcome of a gate step. Pass is a gate-pass token, set
// only when the step ended with the content visible.
type GateResult struct {
	View gate.View
	Pass string
}

// GateService runs the password gate of a profile. Each request replays the
// gate from CheckingProtection; nothing is kept between requests except the
// gate-pass cookie.
type GateService struct {
	profiles  repository.ProfileRepository
	passwords *auth.PasswordService
	tokens    *auth.TokenService
	logger    *slog.Logger
}

func NewGateService(
	profiles repository.ProfileRepository,
	passwords *auth.PasswordService,
	tokens *auth.TokenService,
	logger *slog.Logger,
) *GateService {
	return &GateService{profiles: profiles, passwords: passwords, tokens: tokens, logger: logger}
}

// Start resolves whether a visitor must be prompted.
func (s *GateService) Start(ctx context.Context, username string) (*GateResult, error) {
	if _, err := s.profiles.GetProfileByUsername(ctx, username); err != nil {
		return nil, fmt.Errorf("service/gate: %w", err)
	}

	g := gate.New(username, s.profiles, s.passwords)
	g.Start(ctx)
	return &GateResult{View: g.View()}, nil
}

// Submit checks password against the current secret of the profile.
func (s *GateService) Submit(ctx context.Context, username, password string) (*GateResult, error) {
	if _, err := s.profiles.GetProfileByUsername(ctx, username); err != nil {
		return nil, fmt.Errorf("service/gate: %w", err)
	}

	g := gate.New(username, s.profiles, s.passwords)
	if g.Start(ctx) == gate.PromptingPassword {
		g.SetInput(password)
		if _, err := g.Submit(ctx); err != nil {
			return nil, fmt.Errorf("service/gate: %w", err)
		}
	}

	res := &GateResult{View: g.View()}
	if res.View.State != gate.ContentVisible {
		s.logger.Info("gate rejected", slog.String("username", username))
		return res, nil
	}

	// The key is read after the check; a password changed in between only
	// yields a pass that no longer validates.
	prot, err := s.profiles.GetProtection(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("service/gate: %w", err)
	}
	pass, err := s.tokens.IssueGatePass(username, auth.GatePassKey(prot.PasswordHash))
	if err != nil {
		return nil, fmt.Errorf("service/gate: issuing pass for %s: %w", username, err)
	}
	res.Pass = pass
	return res, nil
}

// Locked reports whether username's content is behind a password.
func (s *GateService) Locked(ctx context.Context, username string) (bool, error) {
	p, err := s.profiles.GetProtection(ctx, username)
	if err != nil {
		return false, fmt.Errorf("service/gate: %w", err)
	}
	return p.Enabled && p.PasswordHash != "", nil
}
