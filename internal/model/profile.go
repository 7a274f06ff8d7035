package model

import "time"

// Profile is the per-owner row that section documents hang off.
//
// Username is the public slug; editors never key on it, display reads always
// do. CanChangeUsername starts true and is cleared by the one permitted change.
// PasswordHash is never serialised.
type Profile struct {
	OwnerID             string    `json:"ownerId"`
	Username            string    `json:"username"`
	Name                string    `json:"name"`
	Email               string    `json:"email"`
	CanChangeUsername   bool      `json:"canChangeUsername"`
	IsPublished         bool      `json:"isPublished"`
	IsPasswordProtected bool      `json:"isPasswordProtected"`
	PasswordHash        string    `json:"-"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// UsernameClaim pairs a username with the owner holding it.
type UsernameClaim struct {
	Username string
	OwnerID  string
}

// Protection is the gate configuration of a profile.
type Protection struct {
	Enabled      bool
	PasswordHash string
}

// PublishedProfile is one entry of the public directory.
type PublishedProfile struct {
	Username  string `json:"username"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
}
