// Package service holds re-folio's business rules. Handlers call services;
// services call repositories, storage and the realtime bus.
//
//	Handler (HTTP) → Service (rules) → Repository (sqlite)
//	                                 ↘ Store / Bus / GitHub
//
// Services never read requests or set cookies.
//
// WHY A SERVICE LAYER?
// The rules of an editor save span several stores. A personal-details save
// writes the section document, mirrors the avatar onto the user row and then
// claims the username. Keeping that sequence here means:
//
//  1. Tests drive it with plain function calls and in-memory fakes, with no
//     HTTP request or database in sight.
//  2. The page renderer and the JSON API share one Lookup, so the gate check
//     cannot drift between them.
//  3. Handlers only translate: decode the body, call one method, map the
//     apperror sentinel to a status code.
//
// DEPENDENCIES ARE INTERFACES:
// Every service takes repository.UserRepository and friends, never *sqlite.DB.
// main.go wires the concrete types once; everything else sees behaviour.
//
// ERRORS:
// Rule violations are *apperror.AppError values (ErrValidation, ErrConflict,
// ErrForbidden...) carrying the offending field. Anything else is a storage
// failure, wrapped with %w and logged by the handler as a 500.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"

	"github.com/refolio/refolio/internal/apperror"
	"github.com/refolio/refolio/internal/auth"
	"github.com/refolio/refolio/internal/model"
	"github.com/refolio/refolio/internal/repository"
)

// AuthService signs owners in and provisions their account on first sign-in.
//
// Both sign-in flows end in SignIn with a verified email, so an owner who
// used Google once and a magic link later lands on the same account.
type AuthService struct {
	users    repository.UserRepository
	profiles repository.ProfileRepository
	tokens   *auth.TokenService
	mailer   auth.Mailer
	baseURL  string
	logger   *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	profiles repository.ProfileRepository,
	tokens *auth.TokenService,
	mailer auth.Mailer,
	baseURL string,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		profiles: profiles,
		tokens:   tokens,
		mailer:   mailer,
		baseURL:  strings.TrimRight(baseURL, "/"),
		logger:   logger,
	}
}

// AuthResult bundles the user and the issued session token so the handler
// can set the cookie and respond in one step.
type AuthResult struct {
	User    *model.User
	Token   string
	Created bool
}

// SignIn finds the account for a verified identity, creating the user and
// its profile when none exists, and issues a session token.
func (s *AuthService) SignIn(ctx context.Context, id *model.Identity) (*AuthResult, error) {
	if id == nil || strings.TrimSpace(id.Email) == "" {
		return nil, fmt.Errorf("service/auth: identity must carry an email")
	}

	created := false
	user, err := s.users.GetUserByEmail(ctx, id.Email)
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		user, err = s.provision(ctx, id)
		if err != nil {
			return nil, err
		}
		created = true
	case err != nil:
		return nil, fmt.Errorf("service/auth: looking up %s: %w", id.Email, err)
	}

	token, err := s.tokens.IssueSession(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing session for %s: %w", user.ID, err)
	}

	s.logger.Info("owner signed in",
		slog.String("ownerID", user.ID),
		slog.Bool("created", created),
	)
	return &AuthResult{User: user, Token: token, Created: created}, nil
}

func (s *AuthService) provision(ctx context.Context, id *model.Identity) (*model.User, error) {
	base := deriveUsername(id.Name)
	if base == "" {
		local, _, _ := strings.Cut(id.Email, "@")
		base = deriveUsername(local)
	}
	if base == "" {
		base = "user"
	}

	claims, err := s.profiles.ListUsernames(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/auth: listing usernames: %w", err)
	}
	names := make([]string, len(claims))
	for i, c := range claims {
		names[i] = c.Username
	}

	user := &model.User{Email: id.Email, AvatarURL: id.AvatarURL}
	profile := &model.Profile{
		Username: freeUsername(base, names),
		Name:     strings.TrimSpace(id.Name),
		Email:    id.Email,
	}
	if err := s.users.CreateAccount(ctx, user, profile); err != nil {
		return nil, fmt.Errorf("service/auth: creating account for %s: %w", id.Email, err)
	}
	return user, nil
}

// RequestMagicLink mails a one-time sign-in link for email.
func (s *AuthService) RequestMagicLink(ctx context.Context, email string) error {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return apperror.ValidationFailed("email", "Please enter a valid email address.")
	}

	token, err := s.tokens.IssueMagicLink(strings.ToLower(addr.Address))
	if err != nil {
		return fmt.Errorf("service/auth: issuing magic link: %w", err)
	}

	link := s.baseURL + "/auth/callback?token=" + url.QueryEscape(token)
	if err := s.mailer.SendMagicLink(ctx, addr.Address, link); err != nil {
		return fmt.Errorf("service/auth: sending magic link: %w", err)
	}
	return nil
}

// CompleteMagicLink signs in the owner a magic-link token was issued for.
func (s *AuthService) CompleteMagicLink(ctx context.Context, token string) (*AuthResult, error) {
	email, err := s.tokens.ValidateMagicLink(token)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return nil, apperror.Unauthorized("This sign-in link has expired. Please request a new one.")
		}
		return nil, apperror.Unauthorized("This sign-in link is not valid.")
	}

	local, _, _ := strings.Cut(email, "@")
	return s.SignIn(ctx, &model.Identity{Email: email, Name: local})
}

// GetUserByID backs /api/me.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, fmt.Errorf("service/auth: user ID must not be empty")
	}

	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}
	return user, nil
}

// requireOwner returns the owner ID of an authenticated session.
func requireOwner(session auth.Session) (string, error) {
	if !session.Authenticated() {
		return "", apperror.Unauthorized("Please sign in to continue.")
	}
	return session.OwnerID(), nil
}
