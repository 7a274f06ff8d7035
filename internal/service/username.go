package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"github.com/refolio/refolio/internal/apperror"
	"github.com/refolio/refolio/internal/repository"
)

// MaxUsernameLength matches GitHub's login limit.
const MaxUsernameLength = 39

// Outcome and error messages of a username change, shown verbatim.
const (
	MsgUsernameUpdated   = "Username updated successfully!"
	MsgUsernameUnchanged = "Current username is already set."
	MsgUsernameTaken     = "This username is already taken. Please choose another."
	MsgUsernameLocked    = "You can only change your username once. Please contact support."
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9._-]+$`)

// reservedUsernames are first path segments the router already uses.
var reservedUsernames = map[string]bool{
	"api":   true,
	"auth":  true,
	"media": true,
	"user":  true,
}

// UsernameService reserves public usernames.
//
// The availability check and the write are two separate repository calls, so
// two owners racing for the same free name can both succeed. Display reads
// resolve such a tie to the oldest claim.
type UsernameService struct {
	profiles repository.ProfileRepository
	logger   *slog.Logger
}

func NewUsernameService(profiles repository.ProfileRepository, logger *slog.Logger) *UsernameService {
	return &UsernameService{profiles: profiles, logger: logger}
}

// ValidateUsername trims and lower-cases a candidate and checks its shape.
func ValidateUsername(candidate string) (string, error) {
	candidate = strings.TrimSpace(candidate)
	if strings.IndexFunc(candidate, unicode.IsSpace) >= 0 {
		return "", apperror.ValidationFailed("username", "Username cannot contain spaces.")
	}
	candidate = strings.ToLower(candidate)
	switch {
	case candidate == "":
		return "", apperror.ValidationFailed("username", "Username is required.")
	case len(candidate) > MaxUsernameLength:
		return "", apperror.ValidationFailed("username",
			fmt.Sprintf("Username must be at most %d characters.", MaxUsernameLength))
	case !usernamePattern.MatchString(candidate):
		return "", apperror.ValidationFailed("username",
			"Username may only contain letters, digits, '-', '_' and '.'.")
	case reservedUsernames[candidate]:
		return "", apperror.Conflict("username", MsgUsernameTaken)
	}
	return candidate, nil
}

// Change reserves candidate for ownerID and returns the message to show.
func (s *UsernameService) Change(ctx context.Context, ownerID, candidate string) (string, error) {
	username, err := ValidateUsername(candidate)
	if err != nil {
		return "", err
	}

	claims, err := s.profiles.ListUsernames(ctx)
	if err != nil {
		return "", fmt.Errorf("service/username: listing usernames: %w", err)
	}
	for _, c := range claims {
		if c.Username == username && c.OwnerID != ownerID {
			return "", apperror.Conflict("username", MsgUsernameTaken)
		}
	}

	profile, err := s.profiles.GetProfile(ctx, ownerID)
	if err != nil {
		return "", fmt.Errorf("service/username: loading profile %s: %w", ownerID, err)
	}
	if profile.Username == username {
		return MsgUsernameUnchanged, nil
	}
	if !profile.CanChangeUsername {
		return "", apperror.Forbidden("username", MsgUsernameLocked)
	}

	if err := s.profiles.UpdateUsername(ctx, ownerID, username); err != nil {
		return "", fmt.Errorf("service/username: updating %s: %w", ownerID, err)
	}

	s.logger.Info("username changed",
		slog.String("ownerID", ownerID),
		slog.String("from", profile.Username),
		slog.String("to", username),
	)
	return MsgUsernameUpdated, nil
}

// deriveUsername turns a display name into a username candidate: lower-cased,
// whitespace removed, anything outside [a-z0-9._-] dropped.
func deriveUsername(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsSpace(r):
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	out := strings.Trim(b.String(), ".-_")
	if len(out) > MaxUsernameLength-4 {
		out = out[:MaxUsernameLength-4]
	}
	return out
}

// freeUsername returns base, or base with the smallest numeric suffix that no
// claim holds.
func freeUsername(base string, claims []string) string {
	taken := make(map[string]bool, len(claims)+len(reservedUsernames))
	for name := range reservedUsernames {
		taken[name] = true
	}
	for _, c := range claims {
		taken[c] = true
	}
	if !taken[base] {
		return base
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s%d", base, n)
		if !taken[candidate] {
			return candidate
		}
	}
}
