package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/refolio/refolio/internal/auth"
	"github.com/refolio/refolio/internal/gate"
	"github.com/refolio/refolio/internal/realtime"
	"github.com/refolio/refolio/internal/service"
)

// keepAlive is how often an idle event stream gets a comment line so
// proxies do not close it.
const keepAlive = 25 * time.Second

// ProfileHandler serves public profiles, their gate and their change stream.
type ProfileHandler struct {
	profiles *service.ProfileService
	gates    *service.GateService
	tokens   *auth.TokenService
	bus      realtime.Bus
	secure   bool
	logger   *slog.Logger
}

func NewProfileHandler(
	profiles *service.ProfileService,
	gates *service.GateService,
	tokens *auth.TokenService,
	bus realtime.Bus,
	secureCookies bool,
	logger *slog.Logger,
) *ProfileHandler {
	return &ProfileHandler{
		profiles: profiles,
		gates:    gates,
		tokens:   tokens,
		bus:      bus,
		secure:   secureCookies,
		logger:   logger,
	}
}

func usernameParam(r *http.Request) string {
	return strings.ToLower(strings.TrimSpace(chi.URLParam(r, "username")))
}

// unlocked reports whether r may see the content of page: it is not
// protected, the viewer owns it, or the viewer holds a gate pass.
func (h *ProfileHandler) unlocked(r *http.Request, page *service.ProfilePage) bool {
	if !page.Protected {
		return true
	}
	if auth.FromContext(r.Context()).OwnerID() == page.OwnerID {
		return true
	}
	return auth.HasGatePass(r, h.tokens, page.Username, page.PassKey)
}

// LockedResponse is returned instead of a protected profile.
type LockedResponse struct {
	ErrorResponse
	Gate gate.View `json:"gate"`
}

func writeLocked(w http.ResponseWriter) {
	writeJSON(w, http.StatusForbidden, LockedResponse{
		ErrorResponse: ErrorResponse{Error: "password_required", Message: "This profile is password protected."},
		Gate:          gate.View{State: gate.PromptingPassword},
	})
}

// HandleDirectory lists published profiles.
//
// HTTP: GET /api/profiles
func (h *ProfileHandler) HandleDirectory(w http.ResponseWriter, r *http.Request) {
	list, err := h.profiles.Directory(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleProfile returns the visible sections of a profile.
//
// HTTP: GET /api/profiles/{username}
func (h *ProfileHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	header, err := h.profiles.Lookup(r.Context(), usernameParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if !h.unlocked(r, header) {
		writeLocked(w)
		return
	}

	page, err := h.profiles.Page(r.Context(), header.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// HandleGateStart tells the visitor whether to prompt for a password.
//
// HTTP: GET /api/profiles/{username}/gate
func (h *ProfileHandler) HandleGateStart(w http.ResponseWriter, r *http.Request) {
	username := usernameParam(r)

	res, err := h.gates.Start(r.Context(), username)
	if err != nil {
		writeError(w, err)
		return
	}
	if res.View.State == gate.PromptingPassword && res.View.Error == "" {
		header, err := h.profiles.Lookup(r.Context(), username)
		if err == nil && auth.HasGatePass(r, h.tokens, username, header.PassKey) {
			res.View = gate.View{State: gate.ContentVisible}
		}
	}
	writeJSON(w, http.StatusOK, res.View)
}

type gateRequest struct {
	Password string `json:"password"`
}

// HandleGateSubmit checks a password. On success the gate pass cookie is set
// and the returned state is content_visible.
//
// HTTP: POST /api/profiles/{username}/gate
func (h *ProfileHandler) HandleGateSubmit(w http.ResponseWriter, r *http.Request) {
	username := usernameParam(r)

	var req gateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.gates.Submit(r.Context(), username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	if res.Pass != "" {
		auth.SetGatePassCookie(w, username, res.Pass, h.secure)
	}
	writeJSON(w, http.StatusOK, res.View)
}

// HandleEvents streams change notifications for a profile as Server-Sent
// Events until the client goes away.
//
// HTTP: GET /api/profiles/{username}/events
func (h *ProfileHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	page, err := h.profiles.Lookup(r.Context(), usernameParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if !h.unlocked(r, page) {
		writeLocked(w)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub, err := h.bus.Subscribe(r.Context(), page.Username)
	if err != nil {
		h.logger.Error("subscribing to profile events failed",
			slog.String("username", page.Username),
			slog.String("error", err.Error()),
		)
		http.Error(w, "events unavailable", http.StatusServiceUnavailable)
		return
	}
	defer sub.Close()

	// The server-wide write timeout would cut the stream.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Error("encoding event failed", slog.String("error", err.Error()))
				continue
			}
			fmt.Fprintf(w, "event: section\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}
