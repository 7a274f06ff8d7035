// Package auth handles sign-in, sessions and gate secrets.
//
// SIGN-IN FLOWS:
//  1. Google: /auth/google/login redirects to Google, which returns to
//     /auth/callback?code=...&state=...
//  2. Magic link: POST /auth/magic-link mails a link to
//     /auth/callback?token=<magic-link JWT>
//
// Both flows end in the same place: the callback resolves an email address,
// provisions the account on first sign-in, and sets the session cookie.
//
// TOKENS:
// Every token is an HS256 JWT signed with one secret. The audience claim
// separates the three kinds so a token minted for one purpose is rejected
// everywhere else:
//
//	session    sub = owner ID     7 days
//	magic-link sub = email        15 minutes
//	gate-pass  sub = username:key 1 hour
//
// A gate pass is bound to GatePassKey of the password hash that was checked.
// Changing or removing the password changes the key, so outstanding passes
// stop working at once instead of living out their hour.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "refolio"

// Audiences.
const (
	AudienceSession   = "session"
	AudienceMagicLink = "magic-link"
	AudienceGatePass  = "gate-pass"
)

// Lifetimes.
const (
	SessionTTL   = 7 * 24 * time.Hour
	MagicLinkTTL = 15 * time.Minute
	GatePassTTL  = time.Hour
)

// ErrTokenExpired is returned for a well-formed token past its expiry.
var ErrTokenExpired = errors.New("auth: token expired")

// TokenService signs and verifies every JWT the server issues.
type TokenService struct {
	secret []byte
}

// NewTokenService requires a secret of at least 16 characters.
// Generate one with: openssl rand -hex 32
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret)}, nil
}

// IssueSession returns a session token for ownerID.
func (s *TokenService) IssueSession(ownerID string) (string, error) {
	return s.generate(ownerID, AudienceSession, SessionTTL)
}

// ValidateSession returns the owner ID carried by a session token.
func (s *TokenService) ValidateSession(token string) (string, error) {
	return s.validate(token, AudienceSession)
}

// IssueMagicLink returns a short-lived sign-in token for email.
func (s *TokenService) IssueMagicLink(email string) (string, error) {
	return s.generate(email, AudienceMagicLink, MagicLinkTTL)
}

// ValidateMagicLink returns the email a magic-link token was issued for.
func (s *TokenService) ValidateMagicLink(token string) (string, error) {
	return s.validate(token, AudienceMagicLink)
}

// GatePassKey fingerprints a password hash. The hash itself never leaves
// the server; only this prefix of its digest goes into the token.
func GatePassKey(passwordHash string) string {
	sum := sha256.Sum256([]byte(passwordHash))
	return hex.EncodeToString(sum[:8])
}

// IssueGatePass returns a token proving the holder passed the password gate
// of username while its secret had the given key.
func (s *TokenService) IssueGatePass(username, key string) (string, error) {
	return s.generate(username+":"+key, AudienceGatePass, GatePassTTL)
}

// ValidateGatePass checks that token is a live gate pass for username and
// that the secret has not changed since it was issued.
func (s *TokenService) ValidateGatePass(token, username, key string) error {
	sub, err := s.validate(token, AudienceGatePass)
	if err != nil {
		return err
	}
	if sub != username+":"+key {
		return fmt.Errorf("auth: gate pass is for another profile or password")
	}
	return nil
}

func (s *TokenService) generate(subject, audience string, ttl time.Duration) (string, error) {
	now := time.Now()

	c := jwt.RegisteredClaims{
		Subject:   subject,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		Issuer:    issuer,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// validate verifies signature, algorithm, issuer, audience and expiry and
// returns the subject. WithValidMethods rules out "alg: none" tokens.
func (s *TokenService) validate(tokenStr, audience string) (string, error) {
	var c jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&c,
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", fmt.Errorf("auth: invalid token: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("auth: invalid token claims")
	}
	if c.Subject == "" {
		return "", fmt.Errorf("auth: token has no subject")
	}
	return c.Subject, nil
}
