package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/refolio/refolio/internal/apperror"
	"github.com/refolio/refolio/internal/auth"
	"github.com/refolio/refolio/internal/section"
	"github.com/refolio/refolio/internal/storage"
)

// MaxUploadBytes bounds a single media upload.
const MaxUploadBytes = 5 << 20

// Upload is one file received from a settings form.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// UploadService stores media and points records at it. A failed store leaves
// every record as it was.
type UploadService struct {
	store    storage.Store
	sections *SectionService
	now      func() time.Time
	logger   *slog.Logger
}

func NewUploadService(store storage.Store, sections *SectionService, logger *slog.Logger) *UploadService {
	return &UploadService{store: store, sections: sections, now: time.Now, logger: logger}
}

func checkUpload(f Upload) error {
	switch {
	case len(f.Data) == 0:
		return apperror.ValidationFailed("file", "The uploaded file is empty.")
	case len(f.Data) > MaxUploadBytes:
		return apperror.ValidationFailed("file", fmt.Sprintf("Files may be at most %d MB.", MaxUploadBytes>>20))
	case !strings.HasPrefix(f.ContentType, "image/"):
		return apperror.ValidationFailed("file", "Only image uploads are supported.")
	}
	return nil
}

// RowMedia stores the media of one list row and returns its public URL. The
// stored row is patched when it exists; otherwise the caller keeps the URL in
// its form until the next save.
func (s *UploadService) RowMedia(ctx context.Context, session auth.Session, name section.Name, index int, f Upload) (string, error) {
	owner, err := requireOwner(session)
	if err != nil {
		return "", err
	}
	def, err := section.Parse(name.String())
	if err != nil {
		return "", err
	}
	if def.Kind != section.KindList || def.NewEditor().SetMedia(1, "") != nil {
		return "", apperror.ValidationFailed("section", fmt.Sprintf("%s rows carry no media.", def.Heading))
	}
	if index < 1 || index > def.Max {
		return "", apperror.ValidationFailed("index", fmt.Sprintf("%s has no row %d.", def.Heading, index))
	}
	if err := checkUpload(f); err != nil {
		return "", err
	}

	key := fmt.Sprintf("%s/%s/%d-%s", def.Name, owner, index, storage.SanitizeFilename(f.Filename))
	stored, err := s.store.Put(ctx, key, f.Data, f.ContentType)
	if err != nil {
		return "", fmt.Errorf("service/upload: storing %s: %w", key, err)
	}
	url := s.store.PublicURL(stored)

	patched, err := s.sections.PatchMedia(ctx, owner, def.Name, index, url)
	if err != nil {
		s.logger.Error("patching row media failed",
			slog.String("ownerID", owner),
			slog.String("section", def.Name.String()),
			slog.Int("index", index),
			slog.Any("error", err),
		)
	}
	s.logger.Info("row media uploaded",
		slog.String("key", key),
		slog.Bool("patched", patched),
	)
	return url, nil
}

// Avatar stores a new avatar and sets it on personal details and the user.
func (s *UploadService) Avatar(ctx context.Context, session auth.Session, f Upload) (string, error) {
	owner, err := requireOwner(session)
	if err != nil {
		return "", err
	}
	if err := checkUpload(f); err != nil {
		return "", err
	}

	key := fmt.Sprintf("avatars/%s/%s-%d-%s", owner, owner, s.now().Unix(), storage.SanitizeFilename(f.Filename))
	stored, err := s.store.Put(ctx, key, f.Data, f.ContentType)
	if err != nil {
		return "", fmt.Errorf("service/upload: storing %s: %w", key, err)
	}
	url := s.store.PublicURL(stored)

	if err := s.sections.PatchAvatar(ctx, owner, url); err != nil {
		return "", err
	}
	return url, nil
}
