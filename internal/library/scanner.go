package library

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"depot/internal/archive"
	"depot/internal/config"
	"depot/internal/logging"
)

// ErrScanInProgress is returned when a scan is requested while one runs.
var ErrScanInProgress = errors.New("library scan already in progress")

// Scanner walks the rom directory and keeps the library store in sync
// with what is on disk.
type Scanner struct {
	store       *Store
	inspector   *archive.Inspector
	romDir      string
	extensions  map[string]struct{}
	parallelism int
	logger      *slog.Logger

	running atomic.Bool
	mu      sync.Mutex
	last    *ScanSummary
}

// NewScanner builds a Scanner from configuration. A nil inspector gets
// the default one.
func NewScanner(store *Store, cfg *config.Config, inspector *archive.Inspector, logger *slog.Logger) *Scanner {
	extensions := make(map[string]struct{}, len(cfg.Scanner.Extensions))
	for _, ext := range cfg.Scanner.Extensions {
		extensions[strings.ToLower(ext)] = struct{}{}
	}
	parallelism := cfg.Scanner.Parallelism
	if parallelism <= 0 {
		parallelism = 1
	}
	if inspector == nil {
		inspector = archive.NewInspector()
	}
	return &Scanner{
		store:       store,
		inspector:   inspector,
		romDir:      cfg.Paths.RomDir,
		extensions:  extensions,
		parallelism: parallelism,
		logger:      logging.NewComponentLogger(logger, "scanner"),
	}
}

// Running reports whether a scan is active.
func (s *Scanner) Running() bool {
	return s.running.Load()
}

// LastScan returns a copy of the most recent scan summary, or nil before
// the first scan.
func (s *Scanner) LastScan() *ScanSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	summary := *s.last
	return &summary
}

type scanOutcome int

const (
	outcomeUnchanged scanOutcome = iota
	outcomeAdded
	outcomeUpdated
)

// Scan walks the rom directory once. Only one scan runs at a time;
// concurrent requests get ErrScanInProgress. Files whose size and mtime
// match the indexed row are skipped unless force is set. Files that fail
// inspection are reported in the summary but do not abort the scan.
func (s *Scanner) Scan(ctx context.Context, force bool) (*ScanSummary, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrScanInProgress
	}
	defer s.running.Store(false)

	start := time.Now().UTC()
	candidates, err := s.collectCandidates()
	if err != nil {
		return nil, err
	}

	var (
		added, updated, unchanged, failed atomic.Int64
		failuresMu                        sync.Mutex
		failures                          []ScanFailure
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for _, path := range candidates {
		path := path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcome, err := s.scanOne(gctx, path, start, force)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				failed.Add(1)
				failuresMu.Lock()
				failures = append(failures, ScanFailure{Path: path, Reason: err.Error()})
				failuresMu.Unlock()
				s.logger.Warn("file not indexed",
					logging.String("path", path),
					logging.Error(err))
				return nil
			}
			switch outcome {
			case outcomeAdded:
				added.Add(1)
			case outcomeUpdated:
				updated.Add(1)
			case outcomeUnchanged:
				unchanged.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	removed, err := s.store.RemoveScannedBefore(ctx, start)
	if err != nil {
		return nil, err
	}

	summary := &ScanSummary{
		StartedAt: start,
		Duration:  time.Since(start),
		Scanned:   len(candidates),
		Added:     int(added.Load()),
		Updated:   int(updated.Load()),
		Unchanged: int(unchanged.Load()),
		Removed:   int(removed),
		Failed:    int(failed.Load()),
		Failures:  failures,
	}

	s.mu.Lock()
	s.last = summary
	s.mu.Unlock()

	s.logger.Info("library scan complete",
		logging.String(logging.FieldEventType, "library_scan_complete"),
		logging.Int("scanned", summary.Scanned),
		logging.Int("added", summary.Added),
		logging.Int("updated", summary.Updated),
		logging.Int("unchanged", summary.Unchanged),
		logging.Int("removed", summary.Removed),
		logging.Int("failed", summary.Failed),
		logging.Duration("duration", summary.Duration))
	return summary, nil
}

func (s *Scanner) collectCandidates() ([]string, error) {
	var candidates []string
	err := filepath.WalkDir(s.romDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == s.romDir {
				return walkErr
			}
			s.logger.Warn("skipping unreadable entry",
				logging.String("path", path),
				logging.Error(walkErr))
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if path != s.romDir && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}
		if _, ok := s.extensions[strings.ToLower(filepath.Ext(name))]; ok {
			candidates = append(candidates, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk rom directory: %w", err)
	}
	return candidates, nil
}

func (s *Scanner) scanOne(ctx context.Context, path string, stamp time.Time, force bool) (scanOutcome, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}

	existing, err := s.store.GetByPath(ctx, path)
	if err != nil {
		return 0, err
	}
	if !force && existing != nil && existing.Size == info.Size() && existing.ModTime.Equal(info.ModTime().UTC()) {
		if err := s.store.TouchScanned(ctx, existing.ID, stamp); err != nil {
			return 0, err
		}
		return outcomeUnchanged, nil
	}

	parsed, err := s.inspector.Inspect(ctx, path)
	if err != nil {
		return 0, err
	}

	file := &File{
		Path:        path,
		Size:        parsed.Size,
		ModTime:     info.ModTime().UTC(),
		TitleID:     parsed.TitleID,
		AltIDs:      parsed.AltIDs,
		DisplayName: parsed.DisplayName,
		Version:     parsed.Version,
		Kind:        parsed.Kind,
		Extension:   strings.ToLower(filepath.Ext(path)),
		ScannedAt:   stamp,
	}
	if _, err := s.store.Upsert(ctx, file); err != nil {
		return 0, err
	}
	if existing == nil {
		return outcomeAdded, nil
	}
	return outcomeUpdated, nil
}
