package api

import (
	"context"
	"errors"

	"depot/internal/downloads"
)

// addedBySource tags queue entries created through the HTTP API.
const addedBySource = "api"

// DownloadStore abstracts queue persistence interactions needed for API
// operations.
type DownloadStore interface {
	List(ctx context.Context, statuses ...downloads.Status) ([]*downloads.Item, error)
	GetByID(ctx context.Context, id string) (*downloads.Item, error)
	Stats(ctx context.Context) (downloads.Stats, error)
	Enqueue(ctx context.Context, req downloads.Request, source string) (*downloads.Item, error)
	Cleanup(ctx context.Context) (int64, error)
}

// DownloadController captures the transfer actions the worker pool
// exposes.
type DownloadController interface {
	Pause(ctx context.Context, id string) error
	Resume(ctx context.Context, id string) error
	Cancel(ctx context.Context, id string) error
}

// ImportRunner resolves an import reference into queued downloads.
type ImportRunner interface {
	Import(ctx context.Context, provider, ref string) ([]*downloads.Item, error)
}

// DownloadService exposes download queue operations returning API DTOs.
type DownloadService struct {
	store   DownloadStore
	control DownloadController
	imports ImportRunner
}

// NewDownloadService constructs a DownloadService around the store. The
// controller and import runner are optional; operations that need a
// missing one report an error.
func NewDownloadService(store DownloadStore, control DownloadController, imports ImportRunner) *DownloadService {
	if store == nil {
		return nil
	}
	return &DownloadService{store: store, control: control, imports: imports}
}

// List returns downloads filtered by status, newest first.
func (s *DownloadService) List(ctx context.Context, statuses ...downloads.Status) ([]DownloadItem, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	items, err := s.store.List(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	return FromDownloadItems(items), nil
}

// Describe fetches a single download, or nil when it does not exist.
func (s *DownloadService) Describe(ctx context.Context, id string) (*DownloadItem, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	item, err := s.store.GetByID(ctx, id)
	if err != nil || item == nil {
		return nil, err
	}
	dto := FromDownloadItem(item)
	return &dto, nil
}

// Stats returns queue summary counts keyed by status string.
func (s *DownloadService) Stats(ctx context.Context) (DownloadStats, error) {
	if s == nil || s.store == nil {
		return DownloadStats{}, nil
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return DownloadStats{}, err
	}
	return FromDownloadStats(stats), nil
}

// Add enqueues a direct URL.
func (s *DownloadService) Add(ctx context.Context, rawURL string) (*DownloadItem, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	item, err := s.store.Enqueue(ctx, downloads.Request{URL: rawURL}, addedBySource)
	if err != nil {
		return nil, err
	}
	dto := FromDownloadItem(item)
	return &dto, nil
}

// Import resolves a reference through the named provider and enqueues
// every download it yields.
func (s *DownloadService) Import(ctx context.Context, provider, ref string) ([]DownloadItem, error) {
	if s == nil {
		return nil, nil
	}
	if s.imports == nil {
		return nil, errors.New("import providers are not configured")
	}
	items, err := s.imports.Import(ctx, provider, ref)
	if err != nil {
		return nil, err
	}
	return FromDownloadItems(items), nil
}

// Pause suspends a download and returns its refreshed state.
func (s *DownloadService) Pause(ctx context.Context, id string) (*DownloadItem, error) {
	return s.act(ctx, id, func(control DownloadController) error {
		return control.Pause(ctx, id)
	})
}

// Resume requests that a paused download continue.
func (s *DownloadService) Resume(ctx context.Context, id string) (*DownloadItem, error) {
	return s.act(ctx, id, func(control DownloadController) error {
		return control.Resume(ctx, id)
	})
}

// Cancel aborts a download.
func (s *DownloadService) Cancel(ctx context.Context, id string) (*DownloadItem, error) {
	return s.act(ctx, id, func(control DownloadController) error {
		return control.Cancel(ctx, id)
	})
}

func (s *DownloadService) act(ctx context.Context, id string, action func(DownloadController) error) (*DownloadItem, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	if s.control == nil {
		return nil, errors.New("download pool is not running")
	}
	if err := action(s.control); err != nil {
		return nil, err
	}
	return s.Describe(ctx, id)
}

// Cleanup removes terminal downloads and reports how many went away.
func (s *DownloadService) Cleanup(ctx context.Context) (int64, error) {
	if s == nil || s.store == nil {
		return 0, nil
	}
	return s.store.Cleanup(ctx)
}
