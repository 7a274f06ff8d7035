// Package model defines the entities persisted by re-folio.
package model

import "time"

// User is an account created on first sign-in.
//
// ID is the owner identifier used everywhere an editor reads or writes: it is
// generated by us (xid) and carried as the JWT subject. Email is the identity
// key shared by the Google and magic-link flows, so both sign-in methods land
// on the same account.
type User struct {
	ID        string    `json:"id"        db:"id"`
	Email     string    `json:"email"     db:"email"`
	Username  string    `json:"username"  db:"username"`
	AvatarURL string    `json:"avatarUrl" db:"avatar_url"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Identity is what a sign-in flow yields before we know the owner ID.
type Identity struct {
	Email     string
	Name      string
	AvatarURL string
}
