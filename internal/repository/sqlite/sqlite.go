// Package sqlite implements the repository interfaces on SQLite.
//
// WHY SQLITE?
// re-folio runs as one process, and its data is a few rows per owner plus one
// JSON document per section. An embedded database means no server to run and
// backups that are a file copy.
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite, so the server builds without CGo and
// cross-compiles anywhere Go does. Tests open ":memory:" databases and run
// against the real schema instead of a mock.
//
// DATABASE/SQL IN ONE PARAGRAPH:
// sql.DB is a connection pool, not a connection. QueryRowContext returns one
// row whose error surfaces at Scan; QueryContext returns rows that must be
// closed; BeginTx opens a transaction that must end in Commit or Rollback.
// Every method here takes the caller's context so a dropped request stops
// its query.
//
// STORAGE SHAPE:
//
//	users             one row per account, keyed by xid
//	profiles          username, publish flag, gate hash, one-shot rename flag
//	profile_sections  (owner_id, name) → JSON text
//
// Each section document is stored verbatim; the database never looks inside
// it. Shape is checked in the service layer before anything is written.
package sqlite

import (
	"database/sql"
	"fmt"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps the connection pool and implements UserRepository,
// ProfileRepository and SectionRepository.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
// Use ":memory:" for a throwaway database.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// An in-memory database lives and dies with its connection, so the pool
	// must never open a second one.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets profile reads proceed while an editor save is writing.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. CREATE ... IF NOT EXISTS keeps it idempotent,
// and later columns are added with addColumnIfNotExists.
//
// profiles.username carries a plain index, not a UNIQUE one: uniqueness is a
// check-then-write in UsernameService and two concurrent claims can both win.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			email      TEXT NOT NULL UNIQUE,
			avatar_url TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS profiles (
			owner_id              TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			username              TEXT NOT NULL,
			name                  TEXT NOT NULL DEFAULT '',
			email                 TEXT NOT NULL DEFAULT '',
			can_change_username   INTEGER NOT NULL DEFAULT 1,
			is_published          INTEGER NOT NULL DEFAULT 0,
			is_password_protected INTEGER NOT NULL DEFAULT 0,
			password_hash         TEXT,
			created_at            DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at            DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_profiles_username ON profiles(username);
	`)
	if err != nil {
		return fmt.Errorf("creating profiles table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS profile_sections (
			owner_id   TEXT NOT NULL REFERENCES profiles(owner_id) ON DELETE CASCADE,
			name       TEXT NOT NULL,
			document   TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (owner_id, name)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating profile_sections table: %w", err)
	}

	// Published profiles are listed newest first on the landing page.
	if err := db.addColumnIfNotExists("profiles", "published_at", "DATETIME"); err != nil {
		return fmt.Errorf("adding published_at to profiles: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
// It makes ALTER TABLE migrations idempotent.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil // column already exists
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}
