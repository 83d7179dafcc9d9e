package downloads

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

const schemaVersion = 1

// Store persists download queue items in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens the downloads database, creating it if needed.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	path := cfg.DownloadsDBPath()
	db, err := sqlutil.Open(path)
	if err != nil {
		return nil, err
	}
	if err := sqlutil.InitSchema(context.Background(), db, path, schemaSQL, schemaVersion); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// CheckHealth verifies the downloads database is present and intact.
func (s *Store) CheckHealth(ctx context.Context) (sqlutil.Health, error) {
	return sqlutil.CheckHealth(ctx, s.db, s.path, "downloads")
}
