package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"depot/internal/api"
	"depot/internal/catalog"
	"depot/internal/config"
	"depot/internal/downloads"
	"depot/internal/errs"
	"depot/internal/importer"
	"depot/internal/library"
	"depot/internal/logging"
	"depot/internal/preflight"
	"depot/internal/resolve"
	"depot/internal/shop"
	"depot/internal/upstream"
)

// Components bundles the subsystems the daemon coordinates. The stores,
// resolver, and scanner are required; the rest may be nil, which
// disables the matching feature.
type Components struct {
	Catalog   *catalog.Store
	Library   *library.Store
	Downloads *downloads.Store
	Resolver  *resolve.Resolver
	Scanner   *library.Scanner
	Watcher   *library.Watcher
	Pool      *downloads.Pool
	Refresher *catalog.Refresher
	Upstream  *upstream.Manager
	Imports   *importer.Service
}

// Daemon owns the background services and enforces single-instance
// execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	catalog   *catalog.Store
	library   *library.Store
	downloads *downloads.Store
	resolver  *resolve.Resolver
	scanner   *library.Scanner
	watcher   *library.Watcher
	pool      *downloads.Pool
	refresher *catalog.Refresher
	upstream  *upstream.Manager

	downloadSvc *api.DownloadService
	librarySvc  *api.LibraryService
	catalogSvc  *api.CatalogService
	builder     *shop.Builder
	server      *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu        sync.Mutex
	startedAt time.Time
	checks    []preflight.Result
}

// New constructs a daemon around already-opened components.
func New(cfg *config.Config, logger *slog.Logger, comps Components) (*Daemon, error) {
	if cfg == nil || logger == nil {
		return nil, errors.New("daemon requires config and logger")
	}
	if comps.Catalog == nil || comps.Library == nil || comps.Downloads == nil {
		return nil, errors.New("daemon requires the catalog, library, and download stores")
	}
	if comps.Resolver == nil || comps.Scanner == nil {
		return nil, errors.New("daemon requires a resolver and a scanner")
	}

	d := &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		catalog:   comps.Catalog,
		library:   comps.Library,
		downloads: comps.Downloads,
		resolver:  comps.Resolver,
		scanner:   comps.Scanner,
		watcher:   comps.Watcher,
		pool:      comps.Pool,
		refresher: comps.Refresher,
		upstream:  comps.Upstream,
		lockPath:  filepath.Join(cfg.Paths.DataDir, "depotd.lock"),
	}
	d.lock = flock.New(d.lockPath)

	var control api.DownloadController
	if comps.Pool != nil {
		control = comps.Pool
	}
	var imports api.ImportRunner
	if comps.Imports != nil {
		imports = comps.Imports
	}
	d.downloadSvc = api.NewDownloadService(comps.Downloads, control, imports)
	d.librarySvc = api.NewLibraryService(comps.Library, comps.Resolver)
	d.catalogSvc = api.NewCatalogService(comps.Catalog)

	var foreign func() []shop.FileEntry
	if comps.Upstream != nil {
		foreign = comps.Upstream.Entries
	}
	d.builder = shop.NewBuilder(comps.Library, comps.Resolver, foreign, logger)

	server, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.server = server
	return d, nil
}

// Start acquires the daemon lock, runs the startup checks, and launches
// the background services. An initial library scan runs in the
// background once everything is up.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another depot daemon instance is already running")
	}

	checks := preflight.RunAll(ctx, d.cfg, d.catalog)
	for _, check := range checks {
		if check.OK {
			continue
		}
		d.logger.Warn("preflight check failed",
			logging.String("check", check.Name),
			logging.String("detail", check.Detail),
			logging.Bool("fatal", check.Fatal))
	}
	if fatal := preflight.FatalFailures(checks); len(fatal) > 0 {
		_ = d.lock.Unlock()
		names := make([]string, len(fatal))
		for i, check := range fatal {
			names[i] = check.Name
		}
		return fmt.Errorf("preflight failed: %s", strings.Join(names, ", "))
	}

	d.mu.Lock()
	d.checks = checks
	d.startedAt = time.Now().UTC()
	d.mu.Unlock()

	d.ctx, d.cancel = context.WithCancel(ctx)

	reconciled, err := d.downloads.ReconcileInterrupted(d.ctx)
	if err != nil {
		d.shutdown()
		_ = d.lock.Unlock()
		return fmt.Errorf("reconcile interrupted downloads: %w", err)
	}
	if reconciled > 0 {
		d.logger.Info("marked interrupted downloads failed",
			logging.Int64("count", reconciled))
	}

	if d.pool != nil {
		if _, err := d.pool.SweepStaging(d.ctx); err != nil {
			d.logger.Warn("staging sweep failed", logging.Error(err))
		}
		if err := d.pool.Start(d.ctx); err != nil {
			d.shutdown()
			_ = d.lock.Unlock()
			return fmt.Errorf("start download pool: %w", err)
		}
	}

	// The watcher is best effort; a full scan still reconciles the
	// library when inotify is unavailable.
	if d.watcher != nil {
		if err := d.watcher.Start(d.ctx); err != nil {
			d.logger.Warn("library watcher unavailable", logging.Error(err))
		}
	}

	if d.upstream != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.upstream.Run(d.ctx)
		}()
	}
	if d.refresher != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.refresher.Run(d.ctx)
		}()
	}

	if d.server != nil {
		if err := d.server.start(d.ctx); err != nil {
			d.shutdown()
			_ = d.lock.Unlock()
			return fmt.Errorf("start api server: %w", err)
		}
	}

	d.running.Store(true)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if _, err := d.scanner.Scan(d.ctx, false); err != nil &&
			!errors.Is(err, library.ErrScanInProgress) && !errors.Is(err, context.Canceled) {
			d.logger.Warn("startup scan failed", logging.Error(err))
		}
	}()

	d.logger.Info("depot daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("pid", os.Getpid()))
	return nil
}

// Stop tears down the background services and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.CompareAndSwap(true, false) {
		return
	}
	d.shutdown()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.logger.Info("depot daemon stopped")
}

func (d *Daemon) shutdown() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.server.stop()
	if d.watcher != nil {
		d.watcher.Stop()
	}
	if d.pool != nil {
		d.pool.Stop()
	}
	d.wg.Wait()
}

// Addr reports the API server's bound address, or "" when the server
// is disabled or not yet started.
func (d *Daemon) Addr() string {
	return d.server.addr()
}

// Close stops the daemon and closes the stores.
func (d *Daemon) Close() error {
	d.Stop()
	var closeErrs []error
	if d.downloads != nil {
		if err := d.downloads.Close(); err != nil {
			closeErrs = append(closeErrs, fmt.Errorf("close download store: %w", err))
		}
	}
	if d.library != nil {
		if err := d.library.Close(); err != nil {
			closeErrs = append(closeErrs, fmt.Errorf("close library store: %w", err))
		}
	}
	if d.catalog != nil {
		if err := d.catalog.Close(); err != nil {
			closeErrs = append(closeErrs, fmt.Errorf("close catalog store: %w", err))
		}
	}
	return errors.Join(closeErrs...)
}

// TriggerScan starts a library scan in the background. It reports
// library.ErrScanInProgress when one is already running.
func (d *Daemon) TriggerScan(force bool) error {
	if !d.running.Load() {
		return errors.New("daemon is not running")
	}
	if d.scanner.Running() {
		return library.ErrScanInProgress
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if _, err := d.scanner.Scan(d.ctx, force); err != nil &&
			!errors.Is(err, library.ErrScanInProgress) && !errors.Is(err, context.Canceled) {
			d.logger.Warn("library scan failed", logging.Error(err))
		}
	}()
	return nil
}

// TriggerCatalogRefresh refreshes catalog metadata in the background.
// With a locale only that locale is refreshed; otherwise the whole
// configured set goes through the scheduler, which coalesces repeats.
func (d *Daemon) TriggerCatalogRefresh(locale string) error {
	if d.refresher == nil {
		return errs.NewConflict("catalog refresh", "not configured")
	}
	if !d.running.Load() {
		return errors.New("daemon is not running")
	}
	locale = strings.TrimSpace(locale)
	if locale == "" {
		d.refresher.TriggerRefresh()
		return nil
	}
	if _, err := catalog.LocaleFile(locale); err != nil {
		return errs.NewDecode(locale, "unsupported locale", err)
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.refresher.RefreshLocale(d.ctx, locale)
	}()
	return nil
}

// TriggerUpstreamSync asks the sync scheduler for an immediate round.
func (d *Daemon) TriggerUpstreamSync() error {
	if d.upstream == nil || len(d.upstream.Sources()) == 0 {
		return errs.NewConflict("upstream sync", "no sources configured")
	}
	if !d.running.Load() {
		return errors.New("daemon is not running")
	}
	d.upstream.TriggerSync()
	return nil
}

// Status aggregates runtime state across the subsystems. Sections whose
// lookup fails are left empty; the daemon keeps answering with what it
// has.
func (d *Daemon) Status(ctx context.Context) api.StatusReport {
	report := api.StatusReport{
		Running:  d.running.Load(),
		PID:      os.Getpid(),
		Scanning: d.scanner.Running(),
	}

	d.mu.Lock()
	report.StartedAt = api.FormatTime(d.startedAt)
	report.Checks = checksToAPI(d.checks)
	d.mu.Unlock()

	if stats, err := d.librarySvc.Stats(ctx); err != nil {
		d.logger.Warn("library stats unavailable", logging.Error(err))
	} else {
		report.Library = stats
	}
	report.LastScan = api.FromScanSummary(d.scanner.LastScan())

	if stats, err := d.downloadSvc.Stats(ctx); err != nil {
		d.logger.Warn("download stats unavailable", logging.Error(err))
	} else {
		report.Downloads = stats
	}

	if status, err := d.catalogSvc.Status(ctx); err != nil {
		d.logger.Warn("catalog status unavailable", logging.Error(err))
	} else {
		report.Catalog = status
	}

	if d.upstream != nil {
		report.Upstream = api.FromSourceStatuses(d.upstream.Status())
	}
	return report
}

func checksToAPI(results []preflight.Result) []api.HealthCheck {
	if len(results) == 0 {
		return nil
	}
	out := make([]api.HealthCheck, len(results))
	for i, result := range results {
		out[i] = api.HealthCheck{
			Name:   result.Name,
			OK:     result.OK,
			Detail: result.Detail,
			Fatal:  result.Fatal,
		}
	}
	return out
}
