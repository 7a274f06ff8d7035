package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rs/xid"

	"github.com/refolio/refolio/internal/apperror"
	"github.com/refolio/refolio/internal/auth"
	"github.com/refolio/refolio/internal/model"
	"github.com/refolio/refolio/internal/service"
)

const stateCookie = "oauth_state"

// afterSignIn is where a completed sign-in lands.
const afterSignIn = "/user/me"

// IdentityProvider runs an OAuth authorization code flow.
type IdentityProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*model.Identity, error)
}

// AuthHandler serves the sign-in flows and the session endpoints.
//
//	GET  /auth/google/login  → redirect to Google
//	GET  /auth/callback      → Google (code+state) or magic link (token)
//	POST /auth/magic-link    → mail a sign-in link
//	POST /auth/logout        → clear the session cookie
//	GET  /api/me             → the signed-in user
type AuthHandler struct {
	provider IdentityProvider // nil when Google is not configured
	auths    *service.AuthService
	secure   bool
	logger   *slog.Logger
}

func NewAuthHandler(provider IdentityProvider, auths *service.AuthService, secureCookies bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{provider: provider, auths: auths, secure: secureCookies, logger: logger}
}

// HandleGoogleLogin redirects to Google's consent page. The random state is
// kept in a short-lived cookie and checked on the callback.
func (h *AuthHandler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		writeError(w, apperror.NotFound("sign-in method", "google"))
		return
	}

	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.provider.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleCallback completes either sign-in flow, sets the session cookie and
// redirects to the owner's settings.
func (h *AuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var (
		result *service.AuthResult
		err    error
	)
	if token := q.Get("token"); token != "" {
		result, err = h.auths.CompleteMagicLink(r.Context(), token)
	} else {
		result, err = h.completeGoogle(w, r)
	}
	if err != nil {
		if errors.Is(err, apperror.ErrValidation) || errors.Is(err, apperror.ErrUnauthorized) {
			h.logger.Warn("auth callback rejected", slog.String("error", err.Error()))
			writeError(w, err)
			return
		}
		h.logger.Error("auth callback failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	auth.SetSessionCookie(w, result.Token, h.secure)
	http.Redirect(w, r, afterSignIn, http.StatusSeeOther)
}

func (h *AuthHandler) completeGoogle(w http.ResponseWriter, r *http.Request) (*service.AuthResult, error) {
	if h.provider == nil {
		return nil, apperror.NotFound("sign-in method", "google")
	}

	q := r.URL.Query()
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || q.Get("state") != cookie.Value {
		return nil, apperror.ValidationFailed("state", "Invalid sign-in state. Please try again.")
	}

	// The state is single-use.
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})

	if denied := q.Get("error"); denied != "" {
		return nil, apperror.Unauthorized("Sign-in was cancelled.")
	}
	code := q.Get("code")
	if code == "" {
		return nil, apperror.ValidationFailed("code", "Missing authorization code.")
	}

	identity, err := h.provider.Exchange(r.Context(), code)
	if err != nil {
		return nil, err
	}
	return h.auths.SignIn(r.Context(), identity)
}

type magicLinkRequest struct {
	Email string `json:"email"`
}

// HandleMagicLink mails a sign-in link. The response is the same whether or
// not an account exists for the address.
func (h *AuthHandler) HandleMagicLink(w http.ResponseWriter, r *http.Request) {
	var req magicLinkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.auths.RequestMagicLink(r.Context(), req.Email); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, MessageResponse{Message: "Check your inbox for a sign-in link."})
}

// HandleLogout clears the session cookie. The JWT itself stays valid until it
// expires; without the cookie the browser no longer sends it.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSessionCookie(w, h.secure)
	writeJSON(w, http.StatusOK, MessageResponse{Message: "logged out"})
}

// HandleMe returns the signed-in user.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	session := auth.FromContext(r.Context())

	user, err := h.auths.GetUserByID(r.Context(), session.OwnerID())
	if err != nil {
		h.logger.Error("HandleMe: user not found", slog.String("ownerID", session.OwnerID()))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
