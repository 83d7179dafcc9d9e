package downloads

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"depot/internal/config"
	"depot/internal/errs"
	"depot/internal/logging"
)

// errPauseRequested and errCancelRequested are cancellation causes
// used to tell a worker why its transfer was interrupted.
var (
	errPauseRequested  = errors.New("pause requested")
	errCancelRequested = errors.New("cancel requested")
)

// Pool runs download workers that drain the queue. Pause and cancel
// requests for in-flight transfers are delivered by cancelling the
// worker's context with a cause.
type Pool struct {
	store        *Store
	fetcher      *Fetcher
	logger       *slog.Logger
	workers      int
	pollInterval time.Duration

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	controls map[string]context.CancelCauseFunc
}

// NewPool builds a worker pool over the given store and fetcher.
func NewPool(store *Store, fetcher *Fetcher, cfg *config.Config, logger *slog.Logger) *Pool {
	workers := cfg.Downloads.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		store:        store,
		fetcher:      fetcher,
		logger:       logging.NewComponentLogger(logger, "downloads"),
		workers:      workers,
		pollInterval: time.Duration(cfg.Downloads.QueuePollInterval) * time.Second,
		controls:     make(map[string]context.CancelCauseFunc),
	}
}

// Start begins background processing.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New("download pool already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true
	p.wg.Add(p.workers)
	p.mu.Unlock()

	for i := 0; i < p.workers; i++ {
		go p.runWorker(runCtx, i)
	}
	p.logger.Info("download pool started", logging.Int("workers", p.workers))
	return nil
}

// Stop terminates background processing and waits for workers to
// finish. In-flight transfers are interrupted and left in downloading;
// ReconcileInterrupted repairs them on the next start.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	p.running = false
	p.cancel = nil
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
}

// Running reports whether workers are active.
func (p *Pool) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Pool) runWorker(ctx context.Context, index int) {
	defer p.wg.Done()
	logger := p.logger.With(logging.Int("worker", index))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		item, err := p.store.ClaimNext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("failed to claim next download",
				logging.Error(err),
				logging.String(logging.FieldEventType, "download_claim_failed"),
				logging.String(logging.FieldErrorHint, "check downloads database access"),
			)
			p.waitForItemOrShutdown(ctx)
			continue
		}
		if item == nil {
			p.waitForItemOrShutdown(ctx)
			continue
		}

		p.process(ctx, logger, item)
	}
}

func (p *Pool) waitForItemOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(p.pollInterval):
	}
}

func (p *Pool) process(ctx context.Context, logger *slog.Logger, item *Item) {
	itemCtx, cancel := context.WithCancelCause(ctx)
	p.register(item.ID, cancel)
	defer func() {
		p.unregister(item.ID)
		cancel(nil)
	}()

	logger.Info("download started",
		logging.String("id", item.ID),
		logging.String("url", item.URL),
		logging.String(logging.FieldEventType, "download_started"),
	)

	onFilename := func(name string) {
		if err := p.store.SetFilename(ctx, item.ID, name); err != nil {
			logger.Warn("failed to record download filename", logging.Error(err))
		}
	}
	onProgress := func(received, total int64) {
		if err := p.store.UpdateProgress(ctx, item.ID, received, total); err != nil {
			logger.Warn("failed to record download progress", logging.Error(err))
		}
	}

	result, err := p.fetcher.Fetch(itemCtx, item, onFilename, onProgress)
	if err != nil {
		p.finishInterrupted(ctx, logger, item, itemCtx, err)
		return
	}

	ok, err := p.store.MarkCompleted(ctx, item.ID, result.Filename, result.Path, result.Bytes)
	if err != nil {
		logger.Error("failed to mark download completed", logging.Error(err))
		return
	}
	if !ok {
		// The row left downloading while the file was being finalized;
		// the file is already in the library and the scanner will pick
		// it up.
		logger.Warn("download finished but queue row was no longer active",
			logging.String("id", item.ID))
		return
	}
	logger.Info("download completed",
		logging.String("id", item.ID),
		logging.String("filename", result.Filename),
		logging.Int64("bytes", result.Bytes),
		logging.String(logging.FieldEventType, "download_complete"),
	)
}

// finishInterrupted settles the queue row after Fetch returned an
// error, distinguishing pause and cancel signals from real failures.
func (p *Pool) finishInterrupted(ctx context.Context, logger *slog.Logger, item *Item, itemCtx context.Context, fetchErr error) {
	cause := context.Cause(itemCtx)
	switch {
	case errors.Is(cause, errPauseRequested):
		received := p.partSize(item.ID)
		if _, err := p.store.MarkPaused(ctx, item.ID, received); err != nil {
			logger.Error("failed to mark download paused", logging.Error(err))
			return
		}
		logger.Info("download paused",
			logging.String("id", item.ID),
			logging.Int64("bytes", received),
			logging.String(logging.FieldEventType, "download_paused"),
		)
	case errors.Is(cause, errCancelRequested):
		p.removePart(item.ID, logger)
		if _, err := p.store.MarkCancelled(ctx, item.ID); err != nil {
			logger.Error("failed to mark download cancelled", logging.Error(err))
			return
		}
		logger.Info("download cancelled",
			logging.String("id", item.ID),
			logging.String(logging.FieldEventType, "download_cancelled"),
		)
	case ctx.Err() != nil:
		// Daemon shutdown. Leave the row in downloading; the next
		// start reconciles it.
	default:
		p.removePart(item.ID, logger)
		if _, err := p.store.MarkFailed(ctx, item.ID, fetchErr.Error()); err != nil {
			logger.Error("failed to mark download failed", logging.Error(err))
			return
		}
		logger.Warn("download failed",
			logging.String("id", item.ID),
			logging.String("url", item.URL),
			logging.Error(fetchErr),
			logging.String(logging.FieldEventType, "download_failed"),
		)
	}
}

// Pause stops a download. Queued items move straight to paused; active
// transfers are interrupted and keep their partial file.
func (p *Pool) Pause(ctx context.Context, id string) error {
	item, err := p.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if item == nil {
		return errs.NewNotFound("download", id)
	}
	switch item.Status {
	case StatusPaused:
		return nil
	case StatusQueued:
		ok, err := p.store.PauseQueued(ctx, id)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		// A worker claimed the row in between; interrupt it instead.
		return p.signalPause(id)
	case StatusDownloading:
		return p.signalPause(id)
	default:
		return errs.NewConflict("pause download", id)
	}
}

// Resume re-queues a paused download. A worker claims it and continues
// from the partial file.
func (p *Pool) Resume(ctx context.Context, id string) error {
	item, err := p.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if item == nil {
		return errs.NewNotFound("download", id)
	}
	switch item.Status {
	case StatusQueued, StatusDownloading:
		return nil
	case StatusPaused:
		ok, err := p.store.RequestResume(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return errs.NewConflict("resume download", id)
		}
		return nil
	default:
		return errs.NewConflict("resume download", id)
	}
}

// Cancel aborts a download and discards its partial file.
func (p *Pool) Cancel(ctx context.Context, id string) error {
	item, err := p.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if item == nil {
		return errs.NewNotFound("download", id)
	}
	switch item.Status {
	case StatusCancelled:
		return nil
	case StatusQueued, StatusPaused:
		ok, err := p.store.MarkCancelled(ctx, id)
		if err != nil {
			return err
		}
		if ok {
			p.removePart(id, p.logger)
			return nil
		}
		return p.signalCancel(ctx, id)
	case StatusDownloading:
		return p.signalCancel(ctx, id)
	default:
		return errs.NewConflict("cancel download", id)
	}
}

func (p *Pool) signalPause(id string) error {
	if p.cancelWith(id, errPauseRequested) {
		return nil
	}
	return errs.NewConflict("pause download", id)
}

func (p *Pool) signalCancel(ctx context.Context, id string) error {
	if p.cancelWith(id, errCancelRequested) {
		return nil
	}
	// No worker owns the row in this process; settle it directly.
	ok, err := p.store.MarkCancelled(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return errs.NewConflict("cancel download", id)
	}
	p.removePart(id, p.logger)
	return nil
}

func (p *Pool) register(id string, cancel context.CancelCauseFunc) {
	p.mu.Lock()
	p.controls[id] = cancel
	p.mu.Unlock()
}

func (p *Pool) unregister(id string) {
	p.mu.Lock()
	delete(p.controls, id)
	p.mu.Unlock()
}

func (p *Pool) cancelWith(id string, cause error) bool {
	p.mu.Lock()
	cancel, ok := p.controls[id]
	p.mu.Unlock()
	if !ok {
		return false
	}
	cancel(cause)
	return true
}

func (p *Pool) partSize(id string) int64 {
	info, err := os.Stat(p.fetcher.PartPath(id))
	if err != nil {
		return 0
	}
	return info.Size()
}

func (p *Pool) removePart(id string, logger *slog.Logger) {
	if err := os.Remove(p.fetcher.PartPath(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to remove partial file",
			logging.String("id", id),
			logging.Error(err))
	}
}

// SweepStaging removes partial files whose queue rows are gone or
// terminal. Called at startup after ReconcileInterrupted.
func (p *Pool) SweepStaging(ctx context.Context) (int, error) {
	keep := make(map[string]struct{})
	items, err := p.store.List(ctx, StatusPaused, StatusDownloading)
	if err != nil {
		return 0, err
	}
	for _, item := range items {
		keep[item.ID] = struct{}{}
	}

	entries, err := os.ReadDir(p.fetcher.stagingDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		id, ok := strings.CutSuffix(entry.Name(), ".part")
		if !ok {
			continue
		}
		if _, live := keep[id]; live {
			continue
		}
		p.removePart(id, p.logger)
		removed++
	}
	if removed > 0 {
		p.logger.Info("swept stale partial files", logging.Int("removed", removed))
	}
	return removed, nil
}
