package auth

import (
	"context"
	"net/http"
	"time"
)

// SessionCookie holds the session JWT. HttpOnly keeps it out of reach of
// page scripts.
const SessionCookie = "token"

// Session is the identity of the caller for one request. It is built once
// by LoadSession and passed down explicitly; the zero value is Anonymous.
type Session struct {
	ownerID string
}

// Anonymous is the session of a caller without a valid token.
var Anonymous = Session{}

// NewSession returns an authenticated session for ownerID.
func NewSession(ownerID string) Session { return Session{ownerID: ownerID} }

// Authenticated reports whether the caller signed in.
func (s Session) Authenticated() bool { return s.ownerID != "" }

// OwnerID returns the signed-in owner, or "" for Anonymous.
func (s Session) OwnerID() string { return s.ownerID }

// contextKey is private so no other package can read or overwrite the session.
type contextKey struct{}

// WithSession stores s in ctx.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the request session, Anonymous if none was loaded.
func FromContext(ctx context.Context) Session {
	s, _ := ctx.Value(contextKey{}).(Session)
	return s
}

// LoadSession resolves the session cookie on every request. An invalid or
// missing token yields Anonymous; it never rejects the request.
func LoadSession(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s := Anonymous
			if cookie, err := r.Cookie(SessionCookie); err == nil {
				if ownerID, err := tokens.ValidateSession(cookie.Value); err == nil {
					s = NewSession(ownerID)
				}
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
		})
	}
}

// RequireSession rejects anonymous callers with 401. It must run after
// LoadSession.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !FromContext(r.Context()).Authenticated() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized","message":"valid authentication required"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SetSessionCookie writes the session token.
func SetSessionCookie(w http.ResponseWriter, token string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(SessionTTL / time.Second),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// GatePassCookie names the cookie carrying the gate pass for username.
func GatePassCookie(username string) string { return "gate_" + username }

// SetGatePassCookie writes a gate pass scoped to one profile.
func SetGatePassCookie(w http.ResponseWriter, username, token string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     GatePassCookie(username),
		Value:    token,
		Path:     "/",
		MaxAge:   int(GatePassTTL / time.Second),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// HasGatePass reports whether r carries a valid gate pass for username
// issued under the current secret key.
func HasGatePass(r *http.Request, tokens *TokenService, username, key string) bool {
	cookie, err := r.Cookie(GatePassCookie(username))
	if err != nil {
		return false
	}
	return tokens.ValidateGatePass(cookie.Value, username, key) == nil
}
