package library

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"depot/internal/config"
	"depot/internal/sqlutil"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. The library database is
// rebuilt by a rescan, so a mismatch asks the user to delete the file.
const schemaVersion = 1

// Store manages library persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the library database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.LibraryDBPath()
	db, err := sqlutil.Open(dbPath)
	if err != nil {
		return nil, err
	}

	store := &Store{db: db, path: dbPath}
	if err := sqlutil.InitSchema(context.Background(), db, dbPath, schemaSQL, schemaVersion); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the library database location.
func (s *Store) Path() string {
	return s.path
}

// CheckHealth returns diagnostic information about the library database.
func (s *Store) CheckHealth(ctx context.Context) (sqlutil.Health, error) {
	return sqlutil.CheckHealth(ctx, s.db, s.path, "library_files")
}
