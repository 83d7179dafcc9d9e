package library

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"depot/internal/archive"
	"depot/internal/sqlutil"
)

const fileColumns = "id, path, size, mod_time_ns, title_id, alt_ids_json, display_name, version, kind, extension, scanned_at_ns, updated_at"

const upsertFileSQL = `INSERT INTO library_files (
        path, size, mod_time_ns, title_id, alt_ids_json, display_name,
        version, kind, extension, scanned_at_ns, updated_at
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    ON CONFLICT(path) DO UPDATE SET
        size = excluded.size,
        mod_time_ns = excluded.mod_time_ns,
        title_id = excluded.title_id,
        alt_ids_json = excluded.alt_ids_json,
        display_name = excluded.display_name,
        version = excluded.version,
        kind = excluded.kind,
        extension = excluded.extension,
        scanned_at_ns = excluded.scanned_at_ns,
        updated_at = excluded.updated_at
    RETURNING id`

func scanFile(scanner interface{ Scan(dest ...any) error }) (*File, error) {
	var (
		id          int64
		path        string
		size        sql.NullInt64
		modTimeNS   sql.NullInt64
		titleID     sql.NullString
		altIDs      sql.NullString
		displayName sql.NullString
		version     sql.NullInt64
		kind        sql.NullString
		extension   sql.NullString
		scannedNS   sql.NullInt64
		updatedRaw  sql.NullString
	)

	if err := scanner.Scan(
		&id, &path, &size, &modTimeNS, &titleID, &altIDs, &displayName,
		&version, &kind, &extension, &scannedNS, &updatedRaw,
	); err != nil {
		return nil, err
	}

	file := &File{
		ID:          id,
		Path:        path,
		Size:        size.Int64,
		TitleID:     titleID.String,
		DisplayName: displayName.String,
		Version:     int(version.Int64),
		Kind:        archive.Kind(kind.String),
		Extension:   extension.String,
	}
	if altIDs.Valid && altIDs.String != "" {
		var values []string
		if err := json.Unmarshal([]byte(altIDs.String), &values); err == nil {
			file.AltIDs = values
		}
	}
	if modTimeNS.Valid && modTimeNS.Int64 != 0 {
		file.ModTime = time.Unix(0, modTimeNS.Int64).UTC()
	}
	if scannedNS.Valid && scannedNS.Int64 != 0 {
		file.ScannedAt = time.Unix(0, scannedNS.Int64).UTC()
	}
	if updated, err := sqlutil.ParseTime(updatedRaw.String); err == nil {
		file.UpdatedAt = updated
	}
	return file, nil
}

func encodeAltIDs(values []string) any {
	if len(values) == 0 {
		return nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil
	}
	return string(data)
}

// Upsert inserts or refreshes the row for a path, keeping the row ID
// stable so download URLs survive rescans. Alternate IDs are rewritten.
func (s *Store) Upsert(ctx context.Context, file *File) (*File, error) {
	if file == nil {
		return nil, errors.New("file is nil")
	}
	if strings.TrimSpace(file.Path) == "" {
		return nil, errors.New("file path is empty")
	}
	ctx = sqlutil.EnsureContext(ctx)

	now := time.Now().UTC()
	file.UpdatedAt = now
	if file.ScannedAt.IsZero() {
		file.ScannedAt = now
	}
	file.TitleID = strings.ToUpper(strings.TrimSpace(file.TitleID))
	if file.Kind == "" {
		file.Kind = archive.KindBase
	}

	var rowID int64
	err := sqlutil.RetryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if err := tx.QueryRowContext(ctx, upsertFileSQL,
			file.Path,
			file.Size,
			file.ModTime.UnixNano(),
			sqlutil.NullableString(file.TitleID),
			encodeAltIDs(file.AltIDs),
			sqlutil.NullableString(file.DisplayName),
			file.Version,
			string(file.Kind),
			sqlutil.NullableString(file.Extension),
			file.ScannedAt.UnixNano(),
			sqlutil.FormatTime(file.UpdatedAt),
		).Scan(&rowID); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM library_alt_ids WHERE file_id = ?`, rowID); err != nil {
			return err
		}
		for _, alt := range file.AltIDs {
			alt = strings.ToUpper(strings.TrimSpace(alt))
			if alt == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO library_alt_ids (file_id, alt_id) VALUES (?, ?)`, rowID, alt); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, fmt.Errorf("upsert library file: %w", err)
	}

	file.ID = rowID
	return file, nil
}

// TouchScanned refreshes the scan stamp for an unchanged file so the
// post-scan sweep keeps it.
func (s *Store) TouchScanned(ctx context.Context, id int64, at time.Time) error {
	if err := sqlutil.ExecNoResult(ctx, s.db,
		`UPDATE library_files SET scanned_at_ns = ? WHERE id = ?`,
		at.UnixNano(), id,
	); err != nil {
		return fmt.Errorf("touch scanned: %w", err)
	}
	return nil
}

// GetByID fetches a library file by row ID, or nil when absent.
func (s *Store) GetByID(ctx context.Context, id int64) (*File, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM library_files WHERE id = ?`, id)
	file, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get library file: %w", err)
	}
	return file, nil
}

// GetByPath fetches a library file by absolute path, or nil when absent.
func (s *Store) GetByPath(ctx context.Context, path string) (*File, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM library_files WHERE path = ?`, path)
	file, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get library file by path: %w", err)
	}
	return file, nil
}

// List returns every indexed file ordered for display.
func (s *Store) List(ctx context.Context) ([]*File, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM library_files ORDER BY display_name COLLATE NOCASE, path`,
	)
	if err != nil {
		return nil, fmt.Errorf("list library files: %w", err)
	}
	defer rows.Close()
	return collectFiles(rows)
}

// FilesByTitleID returns the files indexed under an exact title ID.
func (s *Store) FilesByTitleID(ctx context.Context, titleID string) ([]*File, error) {
	id := strings.ToUpper(strings.TrimSpace(titleID))
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM library_files WHERE title_id = ? ORDER BY version DESC, path`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("files by title id: %w", err)
	}
	defer rows.Close()
	return collectFiles(rows)
}

// FilesByAltID returns files whose alternate ID list contains the ID.
func (s *Store) FilesByAltID(ctx context.Context, titleID string) ([]*File, error) {
	id := strings.ToUpper(strings.TrimSpace(titleID))
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM library_files
         WHERE id IN (SELECT file_id FROM library_alt_ids WHERE alt_id = ?)
         ORDER BY version DESC, path`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("files by alternate id: %w", err)
	}
	defer rows.Close()
	return collectFiles(rows)
}

// SearchByName matches display names case-insensitively.
func (s *Store) SearchByName(ctx context.Context, query string, limit int) ([]*File, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + escapeLike(query) + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM library_files
         WHERE display_name LIKE ? ESCAPE '\'
         ORDER BY display_name COLLATE NOCASE
         LIMIT ?`,
		pattern, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search library files: %w", err)
	}
	defer rows.Close()
	return collectFiles(rows)
}

func escapeLike(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	value = strings.ReplaceAll(value, `%`, `\%`)
	return strings.ReplaceAll(value, `_`, `\_`)
}

func collectFiles(rows *sql.Rows) ([]*File, error) {
	var files []*File
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

// RemoveByPath deletes the row for a path, reporting whether one existed.
func (s *Store) RemoveByPath(ctx context.Context, path string) (bool, error) {
	res, err := sqlutil.Exec(ctx, s.db, `DELETE FROM library_files WHERE path = ?`, path)
	if err != nil {
		return false, fmt.Errorf("remove library file: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// RemoveScannedBefore sweeps rows whose files were not seen by the scan
// that started at cutoff. Rows touched later (for example by the watcher
// mid-scan) are kept.
func (s *Store) RemoveScannedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := sqlutil.Exec(ctx, s.db,
		`DELETE FROM library_files WHERE scanned_at_ns < ?`,
		cutoff.UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("sweep missing files: %w", err)
	}
	return res.RowsAffected()
}

// Stats aggregates the library for status output.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{ByKind: make(map[string]int)}

	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1),
                COALESCE(SUM(size), 0),
                COALESCE(SUM(CASE WHEN title_id IS NULL THEN 0 ELSE 1 END), 0)
         FROM library_files`,
	)
	if err := row.Scan(&stats.TotalFiles, &stats.TotalBytes, &stats.Identified); err != nil {
		return stats, fmt.Errorf("library stats: %w", err)
	}
	stats.Unidentified = stats.TotalFiles - stats.Identified

	rows, err := s.db.QueryContext(ctx, `SELECT kind, COUNT(1) FROM library_files GROUP BY kind`)
	if err != nil {
		return stats, fmt.Errorf("library kind stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return stats, err
		}
		stats.ByKind[kind] = count
	}
	return stats, rows.Err()
}
