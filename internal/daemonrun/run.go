// Package daemonrun boots the depot daemon process: per-run log files,
// PID file, store handles, component wiring, and signal-driven shutdown.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"depot/internal/archive"
	"depot/internal/catalog"
	"depot/internal/config"
	"depot/internal/daemon"
	"depot/internal/downloads"
	"depot/internal/importer"
	"depot/internal/library"
	"depot/internal/logging"
	"depot/internal/resolve"
	"depot/internal/upstream"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the depot daemon runtime loop and blocks until the context is
// cancelled or a termination signal arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("depot-%s.log", runID))

	logger, err := logging.New(logging.Options{
		Level:            opts.LogLevel,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update depot.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "depot-*.log", Exclude: []string{logPath}},
	)
	pidPath := filepath.Join(cfg.Paths.LogDir, "depot.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	catalogStore, err := catalog.Open(cfg)
	if err != nil {
		logger.Error("open catalog store", logging.Error(err))
		return err
	}
	libraryStore, err := library.Open(cfg)
	if err != nil {
		catalogStore.Close()
		logger.Error("open library store", logging.Error(err))
		return err
	}
	downloadStore, err := downloads.Open(cfg)
	if err != nil {
		libraryStore.Close()
		catalogStore.Close()
		logger.Error("open download store", logging.Error(err))
		return err
	}

	inspector := buildInspector(cfg, logger)
	logStartupSnapshot(logger, cfg, inspector)

	var watcher *library.Watcher
	if cfg.Scanner.Watch {
		watcher = library.NewWatcher(libraryStore, cfg, inspector, logger)
	}

	registry := importer.DefaultRegistry(cfg, logger)

	d, err := daemon.New(cfg, logger, daemon.Components{
		Catalog:   catalogStore,
		Library:   libraryStore,
		Downloads: downloadStore,
		Resolver:  resolve.NewResolver(catalogStore, libraryStore, cfg),
		Scanner:   library.NewScanner(libraryStore, cfg, inspector, logger),
		Watcher:   watcher,
		Pool:      downloads.NewPool(downloadStore, downloads.NewFetcher(cfg, logger), cfg, logger),
		Refresher: catalog.NewRefresher(catalogStore, cfg, logger),
		Upstream:  upstream.NewManager(cfg, logger),
		Imports:   importer.NewService(registry, downloadStore, logger),
	})
	if err != nil {
		downloadStore.Close()
		libraryStore.Close()
		catalogStore.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	<-signalCtx.Done()
	logger.Info("depot daemon shutting down")
	return nil
}

// buildInspector loads console keys when configured. Missing or malformed
// key material degrades to filename-based classification rather than
// failing the daemon.
func buildInspector(cfg *config.Config, logger *slog.Logger) *archive.Inspector {
	opts := []archive.Option{
		archive.WithSuffixes(cfg.Catalog.UpdateSuffix, cfg.Catalog.BaseSuffix),
	}
	keysFile := strings.TrimSpace(cfg.Paths.KeysFile)
	if keysFile != "" {
		keys, err := archive.LoadKeys(keysFile)
		if err != nil {
			logger.Warn("console keys unavailable",
				logging.String("keys_file", keysFile),
				logging.Error(err),
			)
		} else {
			opts = append(opts, archive.WithKeys(keys))
		}
	}
	return archive.NewInspector(opts...)
}

func logStartupSnapshot(logger *slog.Logger, cfg *config.Config, inspector *archive.Inspector) {
	if logger == nil || cfg == nil {
		return
	}
	locales := 1 + len(cfg.Catalog.SecondaryLocales)
	logger.Info("startup snapshot",
		logging.String("rom_dir", cfg.Paths.RomDir),
		logging.String("data_dir", cfg.Paths.DataDir),
		logging.String("bind", cfg.Server.Bind),
		logging.Bool("keys_present", inspector != nil && inspector.HasKeys()),
		logging.Bool("watch_enabled", cfg.Scanner.Watch),
		logging.Int("catalog_locales", locales),
		logging.Int("upstream_sources", len(cfg.Upstream.Sources)),
		logging.Int("download_workers", cfg.Downloads.Workers),
	)
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "depot.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
