// Package repository declares the storage contracts the service layer depends
// on. The sqlite subpackage is the only implementation; services take these
// interfaces so tests can substitute in-memory fakes.
package repository

import (
	"context"

	"github.com/refolio/refolio/internal/model"
	"github.com/refolio/refolio/internal/section"
)

type UserRepository interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	// CreateAccount inserts the user and its profile row together.
	CreateAccount(ctx context.Context, user *model.User, profile *model.Profile) error
	UpdateAvatar(ctx context.Context, ownerID, avatarURL string) error
}

type ProfileRepository interface {
	GetProfile(ctx context.Context, ownerID string) (*model.Profile, error)
	GetProfileByUsername(ctx context.Context, username string) (*model.Profile, error)
	// ListUsernames returns every (username, owner) pair.
	ListUsernames(ctx context.Context) ([]model.UsernameClaim, error)
	// UpdateUsername writes the username and consumes the one-time change.
	UpdateUsername(ctx context.Context, ownerID, username string) error
	SetPublished(ctx context.Context, ownerID string, published bool) error
	SetProtection(ctx context.Context, ownerID string, p model.Protection) error
	GetProtection(ctx context.Context, username string) (model.Protection, error)
	ListPublished(ctx context.Context, limit int) ([]model.PublishedProfile, error)
}

// SectionRepository stores one JSON document per (owner, section).
//
// There is no patch mode: ReplaceSection overwrites the whole document and
// the last write wins.
type SectionRepository interface {
	ReplaceSection(ctx context.Context, ownerID string, name section.Name, doc []byte) error
	// GetSection returns apperror.ErrNotFound when nothing was ever saved.
	GetSection(ctx context.Context, ownerID string, name section.Name) ([]byte, error)
	GetSectionByUsername(ctx context.Context, username string, name section.Name) ([]byte, error)
	// ListSectionsByUsername returns every stored document of a profile.
	ListSectionsByUsername(ctx context.Context, username string) (map[section.Name][]byte, error)
}
