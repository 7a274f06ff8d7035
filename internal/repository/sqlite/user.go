package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/refolio/refolio/internal/apperror"
	"github.com/refolio/refolio/internal/model"
	"github.com/refolio/refolio/internal/repository"
)

var _ repository.UserRepository = (*DB)(nil)

// userColumns selects a user with the username of its profile (empty when the
// profile row is missing).
const userColumns = `u.id, u.email, COALESCE(p.username, ''), u.avatar_url, u.created_at, u.updated_at`

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByID returns apperror.ErrNotFound when no user has that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+`
		 FROM users u LEFT JOIN profiles p ON p.owner_id = u.id
		 WHERE u.id = ?`,
		id,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return u, nil
}

// GetUserByEmail matches case-insensitively; emails are stored lower-cased.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+`
		 FROM users u LEFT JOIN profiles p ON p.owner_id = u.id
		 WHERE u.email = ?`,
		email,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlite: getting user by email: %w", err)
	}
	return u, nil
}

// CreateAccount inserts a user and its profile in one transaction. The user ID
// is generated here and copied to profile.OwnerID.
func (db *DB) CreateAccount(ctx context.Context, user *model.User, profile *model.Profile) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	user.Username = profile.Username
	user.CreatedAt = now
	user.UpdatedAt = now

	profile.OwnerID = user.ID
	profile.CanChangeUsername = true
	profile.CreatedAt = now
	profile.UpdatedAt = now

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning account transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, email, avatar_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.AvatarURL, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("email", "An account with this email already exists.")
		}
		return fmt.Errorf("sqlite: inserting user: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO profiles (owner_id, username, name, email, can_change_username, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 1, ?, ?)`,
		profile.OwnerID, profile.Username, profile.Name, profile.Email, profile.CreatedAt, profile.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting profile for %s: %w", user.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing account %s: %w", user.ID, err)
	}
	return nil
}

// UpdateAvatar sets the owner-level avatar URL shown in the directory.
func (db *DB) UpdateAvatar(ctx context.Context, ownerID, avatarURL string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET avatar_url = ?, updated_at = ? WHERE id = ?`,
		avatarURL, time.Now().UTC(), ownerID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating avatar for %s: %w", ownerID, err)
	}
	return expectOneRow(res, "user", ownerID)
}

func expectOneRow(res sql.Result, resource, key string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(resource, key)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
