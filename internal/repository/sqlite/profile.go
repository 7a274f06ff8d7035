package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/refolio/refolio/internal/apperror"
	"github.com/refolio/refolio/internal/model"
	"github.com/refolio/refolio/internal/repository"
)

var _ repository.ProfileRepository = (*DB)(nil)

const profileColumns = `owner_id, username, name, email, can_change_username, is_published,
	is_password_protected, COALESCE(password_hash, ''), created_at, updated_at`

// byUsername resolves a username to a single owner. Usernames are not unique
// in the schema, so the oldest claim wins.
const byUsername = `(SELECT owner_id FROM profiles WHERE username = ? ORDER BY created_at, owner_id LIMIT 1)`

func scanProfile(row interface{ Scan(...any) error }) (*model.Profile, error) {
	var p model.Profile
	err := row.Scan(
		&p.OwnerID,
		&p.Username,
		&p.Name,
		&p.Email,
		&p.CanChangeUsername,
		&p.IsPublished,
		&p.IsPasswordProtected,
		&p.PasswordHash,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (db *DB) GetProfile(ctx context.Context, ownerID string) (*model.Profile, error) {
	p, err := scanProfile(db.conn.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE owner_id = ?`, ownerID,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("profile", ownerID)
		}
		return nil, fmt.Errorf("sqlite: getting profile %s: %w", ownerID, err)
	}
	return p, nil
}

func (db *DB) GetProfileByUsername(ctx context.Context, username string) (*model.Profile, error) {
	p, err := scanProfile(db.conn.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE owner_id = `+byUsername, username,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("profile", username)
		}
		return nil, fmt.Errorf("sqlite: getting profile by username %s: %w", username, err)
	}
	return p, nil
}

func (db *DB) ListUsernames(ctx context.Context) ([]model.UsernameClaim, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT username, owner_id FROM profiles`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing usernames: %w", err)
	}
	defer rows.Close()

	var claims []model.UsernameClaim
	for rows.Next() {
		var c model.UsernameClaim
		if err := rows.Scan(&c.Username, &c.OwnerID); err != nil {
			return nil, fmt.Errorf("sqlite: scanning username: %w", err)
		}
		claims = append(claims, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating usernames: %w", err)
	}
	return claims, nil
}

// UpdateUsername writes the username and clears can_change_username in one
// statement. It does not re-check availability.
func (db *DB) UpdateUsername(ctx context.Context, ownerID, username string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE profiles SET username = ?, can_change_username = 0, updated_at = ?
		 WHERE owner_id = ?`,
		username, time.Now().UTC(), ownerID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating username for %s: %w", ownerID, err)
	}
	return expectOneRow(res, "profile", ownerID)
}

func (db *DB) SetPublished(ctx context.Context, ownerID string, published bool) error {
	now := time.Now().UTC()
	var publishedAt any
	if published {
		publishedAt = now
	}

	res, err := db.conn.ExecContext(ctx,
		`UPDATE profiles SET is_published = ?, published_at = ?, updated_at = ? WHERE owner_id = ?`,
		published, publishedAt, now, ownerID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting published for %s: %w", ownerID, err)
	}
	return expectOneRow(res, "profile", ownerID)
}

// SetProtection stores the gate flag and secret hash. A disabled gate stores
// NULL as the hash.
func (db *DB) SetProtection(ctx context.Context, ownerID string, p model.Protection) error {
	var hash any
	if p.Enabled {
		hash = p.PasswordHash
	}

	res, err := db.conn.ExecContext(ctx,
		`UPDATE profiles SET is_password_protected = ?, password_hash = ?, updated_at = ?
		 WHERE owner_id = ?`,
		p.Enabled, hash, time.Now().UTC(), ownerID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting protection for %s: %w", ownerID, err)
	}
	return expectOneRow(res, "profile", ownerID)
}

func (db *DB) GetProtection(ctx context.Context, username string) (model.Protection, error) {
	var p model.Protection
	err := db.conn.QueryRowContext(ctx,
		`SELECT is_password_protected, COALESCE(password_hash, '')
		 FROM profiles WHERE owner_id = `+byUsername,
		username,
	).Scan(&p.Enabled, &p.PasswordHash)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.Protection{}, apperror.NotFound("profile", username)
		}
		return model.Protection{}, fmt.Errorf("sqlite: getting protection for %s: %w", username, err)
	}
	return p, nil
}

// ListPublished returns up to limit published profiles that have an avatar,
// most recently published first.
func (db *DB) ListPublished(ctx context.Context, limit int) ([]model.PublishedProfile, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT p.username, p.name, u.avatar_url
		 FROM profiles p JOIN users u ON u.id = p.owner_id
		 WHERE p.is_published = 1 AND u.avatar_url != ''
		 ORDER BY p.published_at DESC, p.owner_id
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing published profiles: %w", err)
	}
	defer rows.Close()

	out := make([]model.PublishedProfile, 0, limit)
	for rows.Next() {
		var p model.PublishedProfile
		if err := rows.Scan(&p.Username, &p.Name, &p.AvatarURL); err != nil {
			return nil, fmt.Errorf("sqlite: scanning published profile: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating published profiles: %w", err)
	}
	return out, nil
}
