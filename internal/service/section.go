package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/refolio/refolio/internal/apperror"
	"github.com/refolio/refolio/internal/auth"
	"github.com/refolio/refolio/internal/model"
	"github.com/refolio/refolio/internal/realtime"
	"github.com/refolio/refolio/internal/repository"
	"github.com/refolio/refolio/internal/section"
)

type (
	personalDetailsEditor = section.Object[section.PersonalDetailsField, section.PersonalDetailsRecord]
	protectionEditor      = section.Object[section.ProtectionField, section.ProtectionRecord]
)

// DocumentValidator checks a raw section document before it is stored.
type DocumentValidator interface {
	Validate(name section.Name, doc []byte) error
}

// Publisher announces that a profile changed.
type Publisher interface {
	Publish(ctx context.Context, ev realtime.Event) error
}

// SettingsSection is one editor on the settings page.
type SettingsSection struct {
	Name    section.Name `json:"name"`
	Heading string       `json:"heading"`
	Kind    section.Kind `json:"kind"`
	State   any          `json:"state"`
}

// SaveResult is returned by every save. Message carries the username outcome
// of a personal-details save.
type SaveResult struct {
	State   any    `json:"state"`
	Message string `json:"message,omitempty"`
}

// SectionService loads, edits and saves the section editors of the session
// owner. Every save replaces the whole stored document.
type SectionService struct {
	sections  repository.SectionRepository
	profiles  repository.ProfileRepository
	users     repository.UserRepository
	usernames *UsernameService
	passwords *auth.PasswordService
	schemas   DocumentValidator
	bus       Publisher
	logger    *slog.Logger
}

func NewSectionService(
	sections repository.SectionRepository,
	profiles repository.ProfileRepository,
	users repository.UserRepository,
	usernames *UsernameService,
	passwords *auth.PasswordService,
	schemas DocumentValidator,
	bus Publisher,
	logger *slog.Logger,
) *SectionService {
	return &SectionService{
		sections:  sections,
		profiles:  profiles,
		users:     users,
		usernames: usernames,
		passwords: passwords,
		schemas:   schemas,
		bus:       bus,
		logger:    logger,
	}
}

// Editor returns the named editor loaded with the owner's stored document.
// A document that cannot be read yields the section default; the failure is
// logged, never returned.
func (s *SectionService) Editor(ctx context.Context, session auth.Session, name section.Name) (section.Editor, error) {
	owner, err := requireOwner(session)
	if err != nil {
		return nil, err
	}
	def, err := section.Parse(name.String())
	if err != nil {
		return nil, err
	}
	return s.load(ctx, owner, def), nil
}

// Settings returns every editor state in settings order.
func (s *SectionService) Settings(ctx context.Context, session auth.Session) ([]SettingsSection, error) {
	owner, err := requireOwner(session)
	if err != nil {
		return nil, err
	}

	out := make([]SettingsSection, 0, len(section.SettingsOrder))
	for _, name := range section.SettingsOrder {
		def := section.MustLookup(name)
		out = append(out, SettingsSection{
			Name:    def.Name,
			Heading: def.Heading,
			Kind:    def.Kind,
			State:   s.load(ctx, owner, def).State(),
		})
	}
	return out, nil
}

// Replace validates doc and stores it as the whole section.
func (s *SectionService) Replace(ctx context.Context, session auth.Session, name section.Name, doc []byte) (*SaveResult, error) {
	owner, err := requireOwner(session)
	if err != nil {
		return nil, err
	}
	def, err := section.Parse(name.String())
	if err != nil {
		return nil, err
	}

	if err := s.schemas.Validate(def.Name, doc); err != nil {
		return nil, err
	}
	e := def.NewEditor()
	if err := e.Load(doc); err != nil {
		return nil, apperror.ValidationFailed("document", err.Error())
	}
	return s.save(ctx, owner, e)
}

// Edit applies ops to the loaded editor in order and saves the result. The
// first failing op aborts the edit and nothing is written.
func (s *SectionService) Edit(ctx context.Context, session auth.Session, name section.Name, ops []section.Op) (*SaveResult, error) {
	e, err := s.Editor(ctx, session, name)
	if err != nil {
		return nil, err
	}
	if err := section.ApplyAll(e, ops); err != nil {
		return nil, err
	}
	return s.save(ctx, session.OwnerID(), e)
}

func (s *SectionService) load(ctx context.Context, owner string, def section.Definition) section.Editor {
	e := def.NewEditor()

	if p, ok := e.(*protectionEditor); ok {
		profile, err := s.profiles.GetProfile(ctx, owner)
		if err != nil {
			s.logger.Warn("loading protection failed", slog.String("ownerID", owner), slog.Any("error", err))
			return e
		}
		p.Replace(section.ProtectionRecord{
			Enabled:     profile.IsPasswordProtected,
			PasswordSet: profile.PasswordHash != "",
		})
		return e
	}

	doc, err := s.sections.GetSection(ctx, owner, def.Name)
	switch {
	case errors.Is(err, apperror.ErrNotFound):
	case err != nil:
		s.logger.Warn("loading section failed",
			slog.String("ownerID", owner),
			slog.String("section", def.Name.String()),
			slog.Any("error", err),
		)
	default:
		if err := e.Load(doc); err != nil {
			s.logger.Warn("stored section unreadable, using default",
				slog.String("ownerID", owner),
				slog.String("section", def.Name.String()),
				slog.Any("error", err),
			)
		}
	}

	if pd, ok := e.(*personalDetailsEditor); ok {
		if profile, err := s.profiles.GetProfile(ctx, owner); err == nil {
			_ = pd.Set(section.PersonalUsername, profile.Username)
		}
	}
	return e
}

func (s *SectionService) save(ctx context.Context, owner string, e section.Editor) (*SaveResult, error) {
	switch v := e.(type) {
	case *protectionEditor:
		return s.saveProtection(ctx, owner, v)
	case *personalDetailsEditor:
		return s.savePersonalDetails(ctx, owner, v)
	}

	doc, err := s.document(e)
	if err != nil {
		return nil, err
	}
	if err := s.sections.ReplaceSection(ctx, owner, e.Name(), doc); err != nil {
		return nil, fmt.Errorf("service/section: saving %s for %s: %w", e.Name(), owner, err)
	}
	s.publish(ctx, owner, e.Name())
	return &SaveResult{State: e.State()}, nil
}

// document renders the persisted form and checks it against the schema.
func (s *SectionService) document(e section.Editor) ([]byte, error) {
	doc, err := e.Document()
	if err != nil {
		return nil, fmt.Errorf("service/section: encoding %s: %w", e.Name(), err)
	}
	if err := s.schemas.Validate(e.Name(), doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// savePersonalDetails writes the document and the owner-level avatar URL
// concurrently, then reserves the username. A badly formed username stops
// the save before any write. A failed step does not undo the ones before it.
//
// When the username is taken or locked the other writes have already
// landed; the result then comes back alongside the error so the caller can
// show the saved state with the username message inline.
func (s *SectionService) savePersonalDetails(ctx context.Context, owner string, e *personalDetailsEditor) (*SaveResult, error) {
	rec := e.Value()
	username := strings.TrimSpace(rec.Username)
	if username != "" {
		if _, err := ValidateUsername(username); err != nil {
			return nil, err
		}
	}

	doc, err := s.document(e)
	if err != nil {
		return nil, err
	}

	var g errgroup.Group
	g.Go(func() error {
		return s.sections.ReplaceSection(ctx, owner, section.PersonalDetails, doc)
	})
	g.Go(func() error {
		return s.users.UpdateAvatar(ctx, owner, strings.TrimSpace(rec.Avatar))
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("service/section: saving personal details for %s: %w", owner, err)
	}
	s.publish(ctx, owner, section.PersonalDetails)

	result := &SaveResult{}
	var changeErr error
	if username != "" {
		result.Message, changeErr = s.usernames.Change(ctx, owner, username)
	}

	result.State = s.load(ctx, owner, section.MustLookup(section.PersonalDetails)).State()
	if changeErr != nil {
		if errors.Is(changeErr, apperror.ErrConflict) || errors.Is(changeErr, apperror.ErrForbidden) {
			return result, changeErr
		}
		return nil, changeErr
	}
	return result, nil
}

// saveProtection stores the gate flag and a hash of the secret on the
// profile. The plaintext is never written anywhere.
func (s *SectionService) saveProtection(ctx context.Context, owner string, e *protectionEditor) (*SaveResult, error) {
	rec := e.Value()

	profile, err := s.profiles.GetProfile(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("service/section: loading profile %s: %w", owner, err)
	}
	if err := rec.Validate(profile.PasswordHash != ""); err != nil {
		return nil, err
	}

	p := model.Protection{Enabled: rec.Enabled}
	if rec.Enabled {
		p.PasswordHash = profile.PasswordHash
		if strings.TrimSpace(rec.Password) != "" {
			hash, err := s.passwords.Hash(rec.Password)
			if err != nil {
				return nil, apperror.ValidationFailed(string(section.ProtectionPassword), err.Error())
			}
			p.PasswordHash = hash
		}
	}

	if err := s.profiles.SetProtection(ctx, owner, p); err != nil {
		return nil, fmt.Errorf("service/section: saving protection for %s: %w", owner, err)
	}
	s.publish(ctx, owner, section.PasswordProtection)

	state := section.NewObject[section.ProtectionField, section.ProtectionRecord](section.PasswordProtection)
	state.Replace(section.ProtectionRecord{Enabled: p.Enabled, PasswordSet: p.PasswordHash != ""})
	return &SaveResult{State: state.State()}, nil
}

// PatchMedia sets the media URL of one stored list row. It reports false,
// writing nothing, when that row was never saved.
func (s *SectionService) PatchMedia(ctx context.Context, owner string, name section.Name, index int, url string) (bool, error) {
	def, err := section.Parse(name.String())
	if err != nil {
		return false, err
	}

	doc, err := s.sections.GetSection(ctx, owner, def.Name)
	if errors.Is(err, apperror.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("service/section: loading %s for %s: %w", def.Name, owner, err)
	}

	e := def.NewEditor()
	if err := e.Load(doc); err != nil {
		return false, fmt.Errorf("service/section: %w", err)
	}
	if err := e.SetMedia(index, url); err != nil {
		if errors.Is(err, apperror.ErrValidation) {
			return false, nil
		}
		return false, err
	}

	doc, err = s.document(e)
	if err != nil {
		return false, err
	}
	if err := s.sections.ReplaceSection(ctx, owner, def.Name, doc); err != nil {
		return false, fmt.Errorf("service/section: patching %s media for %s: %w", def.Name, owner, err)
	}
	s.publish(ctx, owner, def.Name)
	return true, nil
}

// PatchAvatar sets the avatar in personal details and on the user.
func (s *SectionService) PatchAvatar(ctx context.Context, owner, url string) error {
	e := s.load(ctx, owner, section.MustLookup(section.PersonalDetails)).(*personalDetailsEditor)
	if err := e.SetMedia(0, url); err != nil {
		return err
	}

	doc, err := s.document(e)
	if err != nil {
		return err
	}

	var g errgroup.Group
	g.Go(func() error {
		return s.sections.ReplaceSection(ctx, owner, section.PersonalDetails, doc)
	})
	g.Go(func() error {
		return s.users.UpdateAvatar(ctx, owner, url)
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("service/section: patching avatar for %s: %w", owner, err)
	}
	s.publish(ctx, owner, section.PersonalDetails)
	return nil
}

func (s *SectionService) publish(ctx context.Context, owner string, name section.Name) {
	if s.bus == nil {
		return
	}
	profile, err := s.profiles.GetProfile(ctx, owner)
	if err != nil {
		s.logger.Warn("publish skipped", slog.String("ownerID", owner), slog.Any("error", err))
		return
	}

	ev := realtime.Event{Section: name, Username: profile.Username, At: time.Now().UTC()}
	if err := s.bus.Publish(ctx, ev); err != nil {
		s.logger.Warn("publish failed",
			slog.String("username", profile.Username),
			slog.String("section", name.String()),
			slog.Any("error", err),
		)
	}
}
