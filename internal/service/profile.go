package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/refolio/refolio/internal/auth"
	"github.com/refolio/refolio/internal/github"
	"github.com/refolio/refolio/internal/model"
	"github.com/refolio/refolio/internal/repository"
	"github.com/refolio/refolio/internal/section"
)

// DirectoryLimit caps the published-profiles listing.
const DirectoryLimit = 20

// PinnedSource looks up the pinned repositories of a GitHub account.
type PinnedSource interface {
	Pinned(ctx context.Context, login string) ([]github.Repository, error)
}

// VisibleSection is one section of a rendered profile.
type VisibleSection struct {
	Name    section.Name `json:"name"`
	Heading string       `json:"heading"`
	Content any          `json:"content"`
}

// GitHubContent is the display form of the GitHub section.
type GitHubContent struct {
	Username     string              `json:"username"`
	Repositories []github.Repository `json:"repositories"`
}

// ProfilePage is a profile as a visitor sees it.
type ProfilePage struct {
	OwnerID   string           `json:"-"`
	Username  string           `json:"username"`
	Name      string           `json:"name"`
	Protected bool             `json:"protected"`
	Sections  []VisibleSection `json:"sections"`

	// PassKey is the gate-pass key of the current secret.
	PassKey string `json:"-"`
}

// Section returns the named visible section, if present.
func (p *ProfilePage) Section(name section.Name) (VisibleSection, bool) {
	for _, s := range p.Sections {
		if s.Name == name {
			return s, true
		}
	}
	return VisibleSection{}, false
}

// ProfileService renders public profiles. All reads are keyed by username.
type ProfileService struct {
	profiles repository.ProfileRepository
	sections repository.SectionRepository
	github   PinnedSource
	logger   *slog.Logger
}

func NewProfileService(
	profiles repository.ProfileRepository,
	sections repository.SectionRepository,
	gh PinnedSource,
	logger *slog.Logger,
) *ProfileService {
	return &ProfileService{profiles: profiles, sections: sections, github: gh, logger: logger}
}

// Lookup resolves a username to its profile header without rendering any
// section.
func (s *ProfileService) Lookup(ctx context.Context, username string) (*ProfilePage, error) {
	username = strings.ToLower(strings.TrimSpace(username))

	profile, err := s.profiles.GetProfileByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("service/profile: %w", err)
	}
	return &ProfilePage{
		OwnerID:   profile.OwnerID,
		Username:  profile.Username,
		Name:      profile.Name,
		Protected: profile.IsPasswordProtected && profile.PasswordHash != "",
		Sections:  []VisibleSection{},
		PassKey:   auth.GatePassKey(profile.PasswordHash),
	}, nil
}

// Page returns the visible sections of a profile in public order. A section
// that fails its display predicate is left out entirely.
func (s *ProfileService) Page(ctx context.Context, username string) (*ProfilePage, error) {
	page, err := s.Lookup(ctx, username)
	if err != nil {
		return nil, err
	}
	username = page.Username

	docs, err := s.sections.ListSectionsByUsername(ctx, username)
	if err != nil {
		s.logger.Warn("loading sections failed", slog.String("username", username), slog.Any("error", err))
		docs = nil
	}

	for _, name := range section.PublicOrder {
		def := section.MustLookup(name)
		e := def.NewEditor()
		if err := e.Load(docs[name]); err != nil {
			s.logger.Warn("stored section unreadable, hiding it",
				slog.String("username", username),
				slog.String("section", name.String()),
				slog.Any("error", err),
			)
			continue
		}

		var content any
		if name == section.GitHub {
			gh, ok := s.pinned(ctx, e)
			if !ok {
				continue
			}
			content = gh
		} else {
			if !e.Visible() {
				continue
			}
			content = e.Public()
		}

		page.Sections = append(page.Sections, VisibleSection{Name: name, Heading: def.Heading, Content: content})
	}

	return page, nil
}

// pinned resolves the GitHub section. It is visible only when the account has
// pinned repositories.
func (s *ProfileService) pinned(ctx context.Context, e section.Editor) (*GitHubContent, bool) {
	obj, ok := e.(*section.Object[section.GitHubField, section.GitHubRecord])
	if !ok || s.github == nil {
		return nil, false
	}
	login := obj.Value().Normalized().Username
	if login == "" {
		return nil, false
	}

	repos, err := s.github.Pinned(ctx, login)
	if err != nil {
		if !errors.Is(err, github.ErrNoToken) {
			s.logger.Warn("fetching pinned repositories failed", slog.String("login", login), slog.Any("error", err))
		}
		return nil, false
	}
	if len(repos) == 0 {
		return nil, false
	}
	return &GitHubContent{Username: login, Repositories: repos}, true
}

// Directory lists published profiles that have an avatar, newest first.
func (s *ProfileService) Directory(ctx context.Context) ([]model.PublishedProfile, error) {
	out, err := s.profiles.ListPublished(ctx, DirectoryLimit)
	if err != nil {
		return nil, fmt.Errorf("service/profile: listing published: %w", err)
	}
	return out, nil
}

// SetPublished toggles directory listing. It does not affect direct access.
func (s *ProfileService) SetPublished(ctx context.Context, session auth.Session, published bool) error {
	owner, err := requireOwner(session)
	if err != nil {
		return err
	}
	if err := s.profiles.SetPublished(ctx, owner, published); err != nil {
		return fmt.Errorf("service/profile: publishing %s: %w", owner, err)
	}
	return nil
}

// Me returns the profile of the session owner.
func (s *ProfileService) Me(ctx context.Context, session auth.Session) (*model.Profile, error) {
	owner, err := requireOwner(session)
	if err != nil {
		return nil, err
	}
	p, err := s.profiles.GetProfile(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("service/profile: %w", err)
	}
	return p, nil
}
