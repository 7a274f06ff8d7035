package handler

import (
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/refolio/refolio/internal/apperror"
	"github.com/refolio/refolio/internal/auth"
	"github.com/refolio/refolio/internal/gate"
	"github.com/refolio/refolio/internal/service"
)

//go:embed templates/*.html
var templateFS embed.FS

// PageHandler renders the public profile page at /{username}. A protected
// profile renders the password prompt instead until the visitor unlocks it.
type PageHandler struct {
	profiles  *service.ProfileService
	gates     *service.GateService
	tokens    *auth.TokenService
	secure    bool
	templates *template.Template
	logger    *slog.Logger
}

// NewPageHandler parses the templates once; rendering reuses them.
func NewPageHandler(
	profiles *service.ProfileService,
	gates *service.GateService,
	tokens *auth.TokenService,
	secureCookies bool,
	logger *slog.Logger,
) (*PageHandler, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	return &PageHandler{
		profiles:  profiles,
		gates:     gates,
		tokens:    tokens,
		secure:    secureCookies,
		templates: tmpl,
		logger:    logger,
	}, nil
}

type pageData struct {
	Title   string
	Profile *service.ProfilePage
	Gate    *gate.View
}

// HandleProfile renders a profile, or its gate prompt.
//
// HTTP: GET /{username} (and /@{username})
func (h *PageHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	header, err := h.profiles.Lookup(r.Context(), usernameParam(r))
	if err != nil {
		h.renderError(w, err)
		return
	}
	if header.Protected && !h.viewerUnlocked(r, header) {
		h.render(w, http.StatusOK, pageData{
			Title:   header.Username,
			Profile: &service.ProfilePage{Username: header.Username},
			Gate:    &gate.View{State: gate.PromptingPassword},
		})
		return
	}

	page, err := h.profiles.Page(r.Context(), header.Username)
	if err != nil {
		h.renderError(w, err)
		return
	}
	h.render(w, http.StatusOK, pageData{Title: title(page), Profile: page})
}

// HandleUnlock takes the password form of the prompt.
//
// HTTP: POST /{username}
func (h *PageHandler) HandleUnlock(w http.ResponseWriter, r *http.Request) {
	username := usernameParam(r)
	if err := r.ParseForm(); err != nil {
		h.renderError(w, apperror.ValidationFailed("password", "Invalid form."))
		return
	}

	res, err := h.gates.Submit(r.Context(), username, r.PostFormValue("password"))
	if err != nil {
		h.renderError(w, err)
		return
	}
	if res.Pass == "" {
		view := res.View
		h.render(w, http.StatusUnauthorized, pageData{
			Title:   username,
			Profile: &service.ProfilePage{Username: username},
			Gate:    &view,
		})
		return
	}

	auth.SetGatePassCookie(w, username, res.Pass, h.secure)
	http.Redirect(w, r, "/"+username, http.StatusSeeOther)
}

func (h *PageHandler) viewerUnlocked(r *http.Request, page *service.ProfilePage) bool {
	if auth.FromContext(r.Context()).OwnerID() == page.OwnerID {
		return true
	}
	return auth.HasGatePass(r, h.tokens, page.Username, page.PassKey)
}

func title(page *service.ProfilePage) string {
	if page.Name != "" {
		return page.Name
	}
	return page.Username
}

func (h *PageHandler) render(w http.ResponseWriter, status int, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.ExecuteTemplate(w, "base", data); err != nil {
		h.logger.Error("failed to render template", slog.String("error", err.Error()))
	}
}

func (h *PageHandler) renderError(w http.ResponseWriter, err error) {
	if errors.Is(err, apperror.ErrNotFound) {
		http.Error(w, "Profile not found", http.StatusNotFound)
		return
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status, _ := errorStatus(err)
		http.Error(w, appErr.Message, status)
		return
	}
	h.logger.Error("rendering profile failed", slog.String("error", err.Error()))
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}
