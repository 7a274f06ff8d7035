package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/refolio/refolio/internal/apperror"
	"github.com/refolio/refolio/internal/auth"
	"github.com/refolio/refolio/internal/model"
	"github.com/refolio/refolio/internal/section"
	"github.com/refolio/refolio/internal/service"
)

// SettingsHandler serves the owner's editors. Every route sits behind
// auth.RequireSession.
type SettingsHandler struct {
	sections  *service.SectionService
	usernames *service.UsernameService
	profiles  *service.ProfileService
	uploads   *service.UploadService
	logger    *slog.Logger
}

func NewSettingsHandler(
	sections *service.SectionService,
	usernames *service.UsernameService,
	profiles *service.ProfileService,
	uploads *service.UploadService,
	logger *slog.Logger,
) *SettingsHandler {
	return &SettingsHandler{
		sections:  sections,
		usernames: usernames,
		profiles:  profiles,
		uploads:   uploads,
		logger:    logger,
	}
}

// SettingsResponse is the whole settings page.
type SettingsResponse struct {
	Profile  *model.Profile            `json:"profile"`
	Sections []service.SettingsSection `json:"sections"`
}

// SectionResponse is one editor.
type SectionResponse struct {
	Name  section.Name `json:"name"`
	State any          `json:"state"`
}

// HandleSettings returns the profile and every editor state.
//
// HTTP: GET /api/settings, GET /user/me
func (h *SettingsHandler) HandleSettings(w http.ResponseWriter, r *http.Request) {
	session := auth.FromContext(r.Context())

	profile, err := h.profiles.Me(r.Context(), session)
	if err != nil {
		writeError(w, err)
		return
	}
	sections, err := h.sections.Settings(r.Context(), session)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SettingsResponse{Profile: profile, Sections: sections})
}

// HandleSection returns one editor state.
//
// HTTP: GET /api/settings/sections/{name}
func (h *SettingsHandler) HandleSection(w http.ResponseWriter, r *http.Request) {
	name := section.Name(chi.URLParam(r, "name"))

	e, err := h.sections.Editor(r.Context(), auth.FromContext(r.Context()), name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SectionResponse{Name: e.Name(), State: e.State()})
}

// HandleReplace stores the request body as the whole section.
//
// HTTP: PUT /api/settings/sections/{name}
func (h *SettingsHandler) HandleReplace(w http.ResponseWriter, r *http.Request) {
	name := section.Name(chi.URLParam(r, "name"))

	body, err := readBody(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := h.sections.Replace(r.Context(), auth.FromContext(r.Context()), name, body)
	if err != nil {
		h.writeSaveError(w, r, name, res, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type editsRequest struct {
	Ops []section.Op `json:"ops"`
}

// HandleEdits applies a batch of editor operations and saves the result.
//
// HTTP: POST /api/settings/sections/{name}/edits
// REQUEST BODY: {"ops": [{"op":"add"}, {"op":"update","index":2,"field":"title","value":"..."}]}
func (h *SettingsHandler) HandleEdits(w http.ResponseWriter, r *http.Request) {
	name := section.Name(chi.URLParam(r, "name"))

	var req editsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.sections.Edit(r.Context(), auth.FromContext(r.Context()), name, req.Ops)
	if err != nil {
		h.writeSaveError(w, r, name, res, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// PartialSaveResponse is returned when a save landed but one of its steps
// was refused, e.g. personal details stored while the username was taken.
// The status is that of the refusal (409 or 403); State is what was stored.
type PartialSaveResponse struct {
	ErrorResponse
	State any `json:"state"`
}

func (h *SettingsHandler) writeSaveError(w http.ResponseWriter, r *http.Request, name section.Name, res *service.SaveResult, err error) {
	var appErr *apperror.AppError
	if res != nil && errors.As(err, &appErr) {
		status, errorType := errorStatus(err)
		writeJSON(w, status, PartialSaveResponse{
			ErrorResponse: ErrorResponse{Error: errorType, Message: appErr.Message, Field: appErr.Field},
			State:         res.State,
		})
		return
	}
	h.logSaveFailure(r, name, err)
	writeError(w, err)
}

func (h *SettingsHandler) logSaveFailure(r *http.Request, name section.Name, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return
	}
	h.logger.Error("saving section failed",
		slog.String("ownerID", auth.FromContext(r.Context()).OwnerID()),
		slog.String("section", name.String()),
		slog.String("error", err.Error()),
	)
}

type usernameRequest struct {
	Username string `json:"username"`
}

// HandleUsername reserves a new username.
//
// HTTP: PUT /api/settings/username
func (h *SettingsHandler) HandleUsername(w http.ResponseWriter, r *http.Request) {
	var req usernameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	msg, err := h.usernames.Change(r.Context(), auth.FromContext(r.Context()).OwnerID(), req.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: msg})
}

type publishRequest struct {
	Published bool `json:"published"`
}

// HandlePublish toggles the directory listing.
//
// HTTP: PUT /api/settings/publish
func (h *SettingsHandler) HandlePublish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.profiles.SetPublished(r.Context(), auth.FromContext(r.Context()), req.Published); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// UploadResponse carries the public URL of a stored file.
type UploadResponse struct {
	URL string `json:"url"`
}

// HandleRowMedia stores the media of one list row.
//
// HTTP: POST /api/settings/sections/{name}/rows/{index}/media (multipart, field "file")
func (h *SettingsHandler) HandleRowMedia(w http.ResponseWriter, r *http.Request) {
	name := section.Name(chi.URLParam(r, "name"))
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, apperror.ValidationFailed("index", "Row index must be a number."))
		return
	}

	f, err := readUpload(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	url, err := h.uploads.RowMedia(r.Context(), auth.FromContext(r.Context()), name, index, f)
	if err != nil {
		h.logUploadFailure(r, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, UploadResponse{URL: url})
}

// HandleAvatar stores a new avatar.
//
// HTTP: POST /api/settings/avatar (multipart, field "file")
func (h *SettingsHandler) HandleAvatar(w http.ResponseWriter, r *http.Request) {
	f, err := readUpload(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	url, err := h.uploads.Avatar(r.Context(), auth.FromContext(r.Context()), f)
	if err != nil {
		h.logUploadFailure(r, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, UploadResponse{URL: url})
}

func (h *SettingsHandler) logUploadFailure(r *http.Request, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return
	}
	h.logger.Error("upload failed",
		slog.String("ownerID", auth.FromContext(r.Context()).OwnerID()),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
}

// readUpload reads the "file" part of a multipart request. The content type
// is sniffed from the bytes; the client's claim is not trusted.
func readUpload(w http.ResponseWriter, r *http.Request) (service.Upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, service.MaxUploadBytes+maxJSONBody)
	if err := r.ParseMultipartForm(service.MaxUploadBytes); err != nil {
		return service.Upload{}, apperror.ValidationFailed("file", "Upload must be a multipart form of at most 5 MB.")
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return service.Upload{}, apperror.ValidationFailed("file", "Missing file.")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return service.Upload{}, apperror.ValidationFailed("file", "Could not read the uploaded file.")
	}

	return service.Upload{
		Filename:    header.Filename,
		ContentType: http.DetectContentType(data),
		Data:        data,
	}, nil
}
