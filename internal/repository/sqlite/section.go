package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/refolio/refolio/internal/apperror"
	"github.com/refolio/refolio/internal/repository"
	"github.com/refolio/refolio/internal/section"
)

var _ repository.SectionRepository = (*DB)(nil)

// ReplaceSection overwrites the stored document of one section.
func (db *DB) ReplaceSection(ctx context.Context, ownerID string, name section.Name, doc []byte) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO profile_sections (owner_id, name, document, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (owner_id, name) DO UPDATE SET
			document = excluded.document,
			updated_at = excluded.updated_at`,
		ownerID, string(name), string(doc), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: replacing %s for %s: %w", name, ownerID, err)
	}
	return nil
}

func (db *DB) GetSection(ctx context.Context, ownerID string, name section.Name) ([]byte, error) {
	var doc string
	err := db.conn.QueryRowContext(ctx,
		`SELECT document FROM profile_sections WHERE owner_id = ? AND name = ?`,
		ownerID, string(name),
	).Scan(&doc)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("section", string(name))
		}
		return nil, fmt.Errorf("sqlite: getting %s for %s: %w", name, ownerID, err)
	}
	return []byte(doc), nil
}

func (db *DB) GetSectionByUsername(ctx context.Context, username string, name section.Name) ([]byte, error) {
	var doc string
	err := db.conn.QueryRowContext(ctx,
		`SELECT document FROM profile_sections WHERE owner_id = `+byUsername+` AND name = ?`,
		username, string(name),
	).Scan(&doc)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("section", string(name))
		}
		return nil, fmt.Errorf("sqlite: getting %s for @%s: %w", name, username, err)
	}
	return []byte(doc), nil
}

func (db *DB) ListSectionsByUsername(ctx context.Context, username string) (map[section.Name][]byte, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT name, document FROM profile_sections WHERE owner_id = `+byUsername,
		username,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing sections for @%s: %w", username, err)
	}
	defer rows.Close()

	docs := make(map[section.Name][]byte)
	for rows.Next() {
		var name, doc string
		if err := rows.Scan(&name, &doc); err != nil {
			return nil, fmt.Errorf("sqlite: scanning section: %w", err)
		}
		docs[section.Name(name)] = []byte(doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating sections: %w", err)
	}
	return docs, nil
}
