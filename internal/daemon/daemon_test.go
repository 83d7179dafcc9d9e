package daemon_test

import (
	"context"
	"testing"

	"depot/internal/config"
	"depot/internal/daemon"
	"depot/internal/downloads"
	"depot/internal/library"
	"depot/internal/logging"
	"depot/internal/resolve"
	"depot/internal/testsupport"
	"depot/internal/upstream"
)

// newDaemon wires a daemon with real stores. The catalog refresher is
// left out so tests never reach for the titledb mirror.
func newDaemon(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()

	catalogStore := testsupport.MustOpenCatalog(t, cfg)
	libraryStore := testsupport.MustOpenLibrary(t, cfg)
	downloadStore := testsupport.MustOpenDownloads(t, cfg)

	logger := logging.NewNop()
	pool := downloads.NewPool(downloadStore, downloads.NewFetcher(cfg, logger), cfg, logger)

	d, err := daemon.New(cfg, logger, daemon.Components{
		Catalog:   catalogStore,
		Library:   libraryStore,
		Downloads: downloadStore,
		Resolver:  resolve.NewResolver(catalogStore, libraryStore, cfg),
		Scanner:   library.NewScanner(libraryStore, cfg, nil, logger),
		Pool:      pool,
		Upstream:  upstream.NewManager(cfg, logger),
	})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(d.Stop)

	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.StartedAt == "" {
		t.Fatal("expected a start timestamp")
	}
	if len(status.Checks) == 0 {
		t.Fatal("expected preflight checks in status")
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	status = d.Status(ctx)
	if status.Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonSingleInstanceLock(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first := newDaemon(t, cfg)
	second := newDaemon(t, cfg)

	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	t.Cleanup(first.Stop)

	if err := second.Start(ctx); err == nil {
		second.Stop()
		t.Fatal("expected second instance to fail the lock")
	}
}

func TestDaemonStartReconcilesInterruptedDownloads(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx := context.Background()

	seedStore := testsupport.MustOpenDownloads(t, cfg)
	item, err := seedStore.Enqueue(ctx, downloads.Request{URL: "https://mirror.example/pkg.nsp"}, "test")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	claimed, err := seedStore.ClaimNext(ctx)
	if err != nil || claimed == nil {
		t.Fatalf("claim: %v / %v", claimed, err)
	}

	d := newDaemon(t, cfg)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(d.Stop)

	got, err := seedStore.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != downloads.StatusFailed {
		t.Fatalf("expected interrupted download to be failed, got %s", got.Status)
	}
}
