// Package store provides SQLite database storage for trained shape models,
// captured training samples, committed calibrations and the contact log.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Store represents a SQLite database connection for the touch-surface data.
type Store struct {
	db   *sqlx.DB
	path string
}

// pragmas are applied to the single connection when the store opens.
var pragmas = []string{
	"PRAGMA foreign_keys = ON",
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 5000",
}

// New opens the database at dbPath, creating its directory when needed, and
// runs migrations.
func New(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dbPath != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite pragmas are per connection; a single connection keeps them in force.
	db.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// Stats counts the rows of each user-facing table.
type Stats struct {
	Models       int `db:"models" json:"models"`
	Samples      int `db:"samples" json:"samples"`
	Calibrations int `db:"calibrations" json:"calibrations"`
	Contacts     int `db:"contacts" json:"contacts"`
	Bindings     int `db:"bindings" json:"bindings"`
}

// Stats returns row counts for the health endpoint.
func (s *Store) Stats() (Stats, error) {
	var st Stats
	err := s.db.Get(&st, `SELECT
		(SELECT COUNT(*) FROM models) AS models,
		(SELECT COUNT(*) FROM shape_samples) AS samples,
		(SELECT COUNT(*) FROM calibrations) AS calibrations,
		(SELECT COUNT(*) FROM contact_events) AS contacts,
		(SELECT COUNT(*) FROM bindings) AS bindings`)
	return st, err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *Store) DB() *sql.DB {
	return s.db.DB
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
