package downloads

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"depot/internal/errs"
	"depot/internal/sqlutil"
)

const itemColumns = "id, url, source, filename, target_path, status, bytes_received, total_bytes, error_message, resume_requested, created_at, updated_at, started_at, completed_at"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		item        Item
		status      string
		errMsg      sql.NullString
		resumeFlag  int64
		createdAt   string
		updatedAt   string
		startedAt   sql.NullString
		completedAt sql.NullString
	)
	if err := scanner.Scan(
		&item.ID,
		&item.URL,
		&item.Source,
		&item.Filename,
		&item.TargetPath,
		&status,
		&item.BytesReceived,
		&item.TotalBytes,
		&errMsg,
		&resumeFlag,
		&createdAt,
		&updatedAt,
		&startedAt,
		&completedAt,
	); err != nil {
		return nil, err
	}
	item.Status = Status(status)
	item.ErrorMessage = errMsg.String
	item.ResumeRequested = resumeFlag != 0

	var err error
	if item.CreatedAt, err = sqlutil.ParseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse download row %s: %w", item.ID, err)
	}
	if item.UpdatedAt, err = sqlutil.ParseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse download row %s: %w", item.ID, err)
	}
	if startedAt.Valid && startedAt.String != "" {
		at, err := sqlutil.ParseTime(startedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse download row %s: %w", item.ID, err)
		}
		item.StartedAt = &at
	}
	if completedAt.Valid && completedAt.String != "" {
		at, err := sqlutil.ParseTime(completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse download row %s: %w", item.ID, err)
		}
		item.CompletedAt = &at
	}
	return &item, nil
}

// Add enqueues a new download for the given URL. Source labels where
// the request came from, such as "api" or an import provider.
func (s *Store) Add(ctx context.Context, rawURL, source string) (*Item, error) {
	return s.Enqueue(ctx, Request{URL: rawURL}, source)
}

// Enqueue inserts a download request. The request's display name and
// size seed the queue row so listings are readable before the transfer
// starts; the response headers overwrite both once it does.
func (s *Store) Enqueue(ctx context.Context, req Request, source string) (*Item, error) {
	rawURL := strings.TrimSpace(req.URL)
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, errs.NewDecode(rawURL, "parse download url", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, errs.NewDecode(rawURL, "download url must be http or https", nil)
	}

	item := &Item{
		ID:        uuid.NewString(),
		URL:       rawURL,
		Source:    strings.TrimSpace(source),
		Filename:  strings.TrimSpace(req.DisplayName),
		Status:    StatusQueued,
		CreatedAt: time.Now().UTC(),
	}
	if req.Size > 0 {
		item.TotalBytes = req.Size
	}
	item.UpdatedAt = item.CreatedAt

	stamp := sqlutil.FormatTime(item.CreatedAt)
	_, err = sqlutil.Exec(ctx, s.db,
		`INSERT INTO downloads (id, url, source, filename, total_bytes, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.URL, item.Source, item.Filename, item.TotalBytes, string(item.Status), stamp, stamp)
	if err != nil {
		return nil, fmt.Errorf("insert download: %w", err)
	}
	return item, nil
}

// GetByID returns a download by ID, or nil when it does not exist.
func (s *Store) GetByID(ctx context.Context, id string) (*Item, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM downloads WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get download %s: %w", id, err)
	}
	return item, nil
}

// List returns downloads newest first, optionally filtered by status.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Item, error) {
	query := `SELECT ` + itemColumns + ` FROM downloads`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + sqlutil.Placeholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, string(status))
		}
	}
	query += ` ORDER BY rowid DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list downloads: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("list downloads: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list downloads: %w", err)
	}
	return items, nil
}

// ClaimNext atomically claims the oldest runnable download for a
// worker. Runnable means queued, or paused with a pending resume
// request. Returns nil when the queue is empty.
func (s *Store) ClaimNext(ctx context.Context) (*Item, error) {
	for {
		row := s.db.QueryRowContext(ctx,
			`SELECT id, status FROM downloads
			 WHERE status = ? OR (status = ? AND resume_requested = 1)
			 ORDER BY rowid LIMIT 1`,
			string(StatusQueued), string(StatusPaused))
		var id, current string
		if err := row.Scan(&id, &current); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}
			return nil, fmt.Errorf("select next download: %w", err)
		}

		now := sqlutil.FormatTime(time.Now().UTC())
		res, err := sqlutil.Exec(ctx, s.db,
			`UPDATE downloads
			 SET status = ?, resume_requested = 0, error_message = NULL,
			     updated_at = ?, started_at = COALESCE(started_at, ?)
			 WHERE id = ? AND status = ?`,
			string(StatusDownloading), now, now, id, current)
		if err != nil {
			return nil, fmt.Errorf("claim download %s: %w", id, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("claim download %s: %w", id, err)
		}
		if affected > 0 {
			return s.GetByID(ctx, id)
		}
		// Another worker won the row; look again.
	}
}

// SetFilename records the filename learned from response headers while
// the item is still downloading.
func (s *Store) SetFilename(ctx context.Context, id, filename string) error {
	_, err := sqlutil.Exec(ctx, s.db,
		`UPDATE downloads SET filename = ?, updated_at = ? WHERE id = ? AND status = ?`,
		filename, sqlutil.FormatTime(time.Now().UTC()), id, string(StatusDownloading))
	if err != nil {
		return fmt.Errorf("set download filename %s: %w", id, err)
	}
	return nil
}

// UpdateProgress flushes transfer counters for an active download. The
// status guard keeps late flushes from touching rows that were paused
// or cancelled meanwhile.
func (s *Store) UpdateProgress(ctx context.Context, id string, received, total int64) error {
	_, err := sqlutil.Exec(ctx, s.db,
		`UPDATE downloads SET bytes_received = ?, total_bytes = ?, updated_at = ? WHERE id = ? AND status = ?`,
		received, total, sqlutil.FormatTime(time.Now().UTC()), id, string(StatusDownloading))
	if err != nil {
		return fmt.Errorf("update download progress %s: %w", id, err)
	}
	return nil
}

// MarkPaused moves an active download to paused, keeping its partial
// file for a later resume.
func (s *Store) MarkPaused(ctx context.Context, id string, received int64) (bool, error) {
	return s.transition(ctx, id,
		`UPDATE downloads SET status = ?, bytes_received = ?, resume_requested = 0, updated_at = ? WHERE id = ? AND status = ?`,
		string(StatusPaused), received, sqlutil.FormatTime(time.Now().UTC()), id, string(StatusDownloading))
}

// PauseQueued moves a not-yet-started download to paused.
func (s *Store) PauseQueued(ctx context.Context, id string) (bool, error) {
	return s.transition(ctx, id,
		`UPDATE downloads SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(StatusPaused), sqlutil.FormatTime(time.Now().UTC()), id, string(StatusQueued))
}

// RequestResume flags a paused download so a worker claims it again.
func (s *Store) RequestResume(ctx context.Context, id string) (bool, error) {
	return s.transition(ctx, id,
		`UPDATE downloads SET resume_requested = 1, updated_at = ? WHERE id = ? AND status = ?`,
		sqlutil.FormatTime(time.Now().UTC()), id, string(StatusPaused))
}

// MarkCompleted finishes a download that moved into the library.
func (s *Store) MarkCompleted(ctx context.Context, id, filename, targetPath string, bytes int64) (bool, error) {
	now := sqlutil.FormatTime(time.Now().UTC())
	return s.transition(ctx, id,
		`UPDATE downloads
		 SET status = ?, filename = ?, target_path = ?, bytes_received = ?, total_bytes = ?,
		     error_message = NULL, updated_at = ?, completed_at = ?
		 WHERE id = ? AND status = ?`,
		string(StatusCompleted), filename, targetPath, bytes, bytes, now, now, id, string(StatusDownloading))
}

// MarkFailed records a transfer error. Failed downloads are not
// retried automatically; re-queue the URL to try again.
func (s *Store) MarkFailed(ctx context.Context, id, message string) (bool, error) {
	now := sqlutil.FormatTime(time.Now().UTC())
	return s.transition(ctx, id,
		`UPDATE downloads SET status = ?, error_message = ?, updated_at = ?, completed_at = ? WHERE id = ? AND status = ?`,
		string(StatusFailed), message, now, now, id, string(StatusDownloading))
}

// MarkCancelled cancels a download from any non-terminal state.
func (s *Store) MarkCancelled(ctx context.Context, id string) (bool, error) {
	now := sqlutil.FormatTime(time.Now().UTC())
	return s.transition(ctx, id,
		`UPDATE downloads SET status = ?, resume_requested = 0, updated_at = ?, completed_at = ? WHERE id = ? AND status IN (?, ?, ?)`,
		string(StatusCancelled), now, now, id,
		string(StatusQueued), string(StatusPaused), string(StatusDownloading))
}

func (s *Store) transition(ctx context.Context, id, query string, args ...any) (bool, error) {
	res, err := sqlutil.Exec(ctx, s.db, query, args...)
	if err != nil {
		return false, fmt.Errorf("transition download %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition download %s: %w", id, err)
	}
	return affected > 0, nil
}

// Remove deletes a terminal download row. It refuses rows that are
// still queued, paused, or running.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	res, err := sqlutil.Exec(ctx, s.db,
		`DELETE FROM downloads WHERE id = ? AND status IN (?, ?, ?)`,
		id, string(StatusCompleted), string(StatusFailed), string(StatusCancelled))
	if err != nil {
		return false, fmt.Errorf("remove download %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove download %s: %w", id, err)
	}
	return affected > 0, nil
}

// Cleanup deletes every terminal download row and reports how many
// were removed. Paused rows survive because they still own partial
// files.
func (s *Store) Cleanup(ctx context.Context) (int64, error) {
	res, err := sqlutil.Exec(ctx, s.db,
		`DELETE FROM downloads WHERE status IN (?, ?, ?)`,
		string(StatusCompleted), string(StatusFailed), string(StatusCancelled))
	if err != nil {
		return 0, fmt.Errorf("cleanup downloads: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleanup downloads: %w", err)
	}
	return removed, nil
}

// ReconcileInterrupted fails rows left in downloading by a previous
// process. Called once at daemon startup before workers start.
func (s *Store) ReconcileInterrupted(ctx context.Context) (int64, error) {
	now := sqlutil.FormatTime(time.Now().UTC())
	res, err := sqlutil.Exec(ctx, s.db,
		`UPDATE downloads SET status = ?, error_message = ?, updated_at = ?, completed_at = ? WHERE status = ?`,
		string(StatusFailed), InterruptedMessage, now, now, string(StatusDownloading))
	if err != nil {
		return 0, fmt.Errorf("reconcile interrupted downloads: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reconcile interrupted downloads: %w", err)
	}
	return affected, nil
}

// Stats summarizes queue composition and completed transfer volume.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{ByStatus: make(map[Status]int, len(allStatuses))}
	for _, status := range allStatuses {
		stats.ByStatus[status] = 0
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM downloads GROUP BY status`)
	if err != nil {
		return Stats{}, fmt.Errorf("download stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, fmt.Errorf("download stats: %w", err)
		}
		stats.ByStatus[Status(status)] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("download stats: %w", err)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(bytes_received), 0) FROM downloads WHERE status = ?`,
		string(StatusCompleted))
	if err := row.Scan(&stats.CompletedBytes); err != nil {
		return Stats{}, fmt.Errorf("download stats: %w", err)
	}
	return stats, nil
}
