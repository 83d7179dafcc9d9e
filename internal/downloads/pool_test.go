package downloads_test

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"depot/internal/config"
	"depot/internal/downloads"
	"depot/internal/testsupport"
)

type poolFixture struct {
	cfg     *config.Config
	store   *downloads.Store
	fetcher *downloads.Fetcher
	pool    *downloads.Pool
}

func newPoolFixture(t *testing.T) *poolFixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Downloads.ProgressIntervalMS = 10
	store, err := downloads.Open(cfg)
	if err != nil {
		t.Fatalf("open downloads store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	fetcher := downloads.NewFetcher(cfg, nil)
	return &poolFixture{
		cfg:     cfg,
		store:   store,
		fetcher: fetcher,
		pool:    downloads.NewPool(store, fetcher, cfg, nil),
	}
}

func (f *poolFixture) start(t *testing.T) {
	t.Helper()
	if err := f.pool.Start(context.Background()); err != nil {
		t.Fatalf("start pool: %v", err)
	}
	t.Cleanup(f.pool.Stop)
}

func waitForItem(t *testing.T, store *downloads.Store, id, what string, cond func(*downloads.Item) bool) *downloads.Item {
	t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		item, err := store.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("get download %s: %v", id, err)
		}
		if item != nil && cond(item) {
			return item
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for download %s to be %s", id, what)
	return nil
}

func waitForStatus(t *testing.T, store *downloads.Store, id string, want downloads.Status) *downloads.Item {
	t.Helper()
	return waitForItem(t, store, id, string(want), func(item *downloads.Item) bool {
		return item.Status == want
	})
}

// slowPayloadHandler streams payload in small flushed chunks and
// honors Range requests, so tests can interrupt a transfer midway.
func slowPayloadHandler(payload []byte, chunk int, delay time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offset := 0
		if rangeHeader := r.Header.Get("Range"); rangeHeader != "" {
			if _, err := fmt.Sscanf(rangeHeader, "bytes=%d-", &offset); err != nil || offset < 0 || offset >= len(payload) {
				http.Error(w, "bad range", http.StatusRequestedRangeNotSatisfiable)
				return
			}
			w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, len(payload)-1, len(payload)))
			w.Header().Set("Content-Length", strconv.Itoa(len(payload)-offset))
			w.WriteHeader(http.StatusPartialContent)
		} else {
			w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		}
		flusher, canFlush := w.(http.Flusher)
		for i := offset; i < len(payload); i += chunk {
			end := i + chunk
			if end > len(payload) {
				end = len(payload)
			}
			if _, err := w.Write(payload[i:end]); err != nil {
				return
			}
			if canFlush {
				flusher.Flush()
			}
			select {
			case <-r.Context().Done():
				return
			case <-time.After(delay):
			}
		}
	}
}

func TestPoolDrainsQueue(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/one.nsp", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "first payload")
	})
	mux.HandleFunc("/two.nsp", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "second payload")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	fixture := newPoolFixture(t)
	ctx := context.Background()
	one, err := fixture.store.Add(ctx, server.URL+"/one.nsp", "api")
	if err != nil {
		t.Fatalf("add one: %v", err)
	}
	two, err := fixture.store.Add(ctx, server.URL+"/two.nsp", "api")
	if err != nil {
		t.Fatalf("add two: %v", err)
	}
	fixture.start(t)

	oneDone := waitForStatus(t, fixture.store, one.ID, downloads.StatusCompleted)
	twoDone := waitForStatus(t, fixture.store, two.ID, downloads.StatusCompleted)

	if oneDone.Filename != "one.nsp" || twoDone.Filename != "two.nsp" {
		t.Fatalf("unexpected filenames %q %q", oneDone.Filename, twoDone.Filename)
	}
	if got := readFile(t, oneDone.TargetPath); got != "first payload" {
		t.Fatalf("unexpected library content %q", got)
	}
	if oneDone.BytesReceived != int64(len("first payload")) {
		t.Fatalf("unexpected byte count %d", oneDone.BytesReceived)
	}
}

func TestPoolPauseAndResume(t *testing.T) {
	payload := bytes.Repeat([]byte("depot-pause-resume-"), 512)
	server := httptest.NewServer(slowPayloadHandler(payload, 256, 20*time.Millisecond))
	defer server.Close()

	fixture := newPoolFixture(t)
	ctx := context.Background()
	item, err := fixture.store.Add(ctx, server.URL+"/big.nsp", "api")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	fixture.start(t)

	waitForItem(t, fixture.store, item.ID, "partway through a transfer", func(it *downloads.Item) bool {
		return it.Status == downloads.StatusDownloading && it.BytesReceived > 0
	})
	if err := fixture.pool.Pause(ctx, item.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}
	paused := waitForStatus(t, fixture.store, item.ID, downloads.StatusPaused)
	if paused.BytesReceived <= 0 || paused.BytesReceived >= int64(len(payload)) {
		t.Fatalf("expected a partial byte count, got %d of %d", paused.BytesReceived, len(payload))
	}
	partInfo, err := os.Stat(fixture.fetcher.PartPath(item.ID))
	if err != nil {
		t.Fatalf("expected partial file to survive a pause: %v", err)
	}
	if partInfo.Size() != paused.BytesReceived {
		t.Fatalf("paused byte count %d does not match partial file size %d", paused.BytesReceived, partInfo.Size())
	}

	if err := fixture.pool.Resume(ctx, item.ID); err != nil {
		t.Fatalf("resume: %v", err)
	}
	done := waitForStatus(t, fixture.store, item.ID, downloads.StatusCompleted)
	if got := readFile(t, done.TargetPath); got != string(payload) {
		t.Fatalf("resumed file is corrupt: %d bytes vs %d expected", len(got), len(payload))
	}
	if done.BytesReceived != int64(len(payload)) {
		t.Fatalf("unexpected final byte count %d", done.BytesReceived)
	}
}

func TestPoolCancelDiscardsPartialData(t *testing.T) {
	payload := bytes.Repeat([]byte("depot-cancel-"), 1024)
	server := httptest.NewServer(slowPayloadHandler(payload, 256, 20*time.Millisecond))
	defer server.Close()

	fixture := newPoolFixture(t)
	ctx := context.Background()
	item, err := fixture.store.Add(ctx, server.URL+"/doomed.nsp", "api")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	fixture.start(t)

	waitForItem(t, fixture.store, item.ID, "partway through a transfer", func(it *downloads.Item) bool {
		return it.Status == downloads.StatusDownloading && it.BytesReceived > 0
	})
	if err := fixture.pool.Cancel(ctx, item.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	waitForStatus(t, fixture.store, item.ID, downloads.StatusCancelled)

	// The partial file is discarded and nothing reaches the library.
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Stat(fixture.fetcher.PartPath(item.ID)); os.IsNotExist(err) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("partial file was not removed after cancel")
		}
		time.Sleep(25 * time.Millisecond)
	}
	entries, err := os.ReadDir(fixture.cfg.Paths.RomDir)
	if err != nil {
		t.Fatalf("read library dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("cancelled download must not reach the library, found %d entries", len(entries))
	}

	// Cancelling again is a no-op, resuming is refused.
	if err := fixture.pool.Cancel(ctx, item.ID); err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	if err := fixture.pool.Resume(ctx, item.ID); err == nil {
		t.Fatal("expected resume of a cancelled download to fail")
	}
}

func TestPoolRecordsFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	fixture := newPoolFixture(t)
	ctx := context.Background()
	item, err := fixture.store.Add(ctx, server.URL+"/gone.nsp", "api")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	fixture.start(t)

	failed := waitForStatus(t, fixture.store, item.ID, downloads.StatusFailed)
	if !strings.Contains(failed.ErrorMessage, "unexpected status 404") {
		t.Fatalf("unexpected error message %q", failed.ErrorMessage)
	}
}

func TestSweepStagingKeepsLivePartialFiles(t *testing.T) {
	fixture := newPoolFixture(t)
	ctx := context.Background()

	// One row is left in downloading, as after a crash.
	crashed, err := fixture.store.Add(ctx, "https://mirror.example/crashed.nsp", "api")
	if err != nil {
		t.Fatalf("add crashed: %v", err)
	}
	if _, err := fixture.store.ClaimNext(ctx); err != nil {
		t.Fatalf("claim crashed: %v", err)
	}
	// Another row is legitimately paused.
	pausedItem, err := fixture.store.Add(ctx, "https://mirror.example/paused.nsp", "api")
	if err != nil {
		t.Fatalf("add paused: %v", err)
	}
	if _, err := fixture.store.ClaimNext(ctx); err != nil {
		t.Fatalf("claim paused: %v", err)
	}
	if ok, err := fixture.store.MarkPaused(ctx, pausedItem.ID, 4); err != nil || !ok {
		t.Fatalf("pause: ok=%v err=%v", ok, err)
	}

	for _, id := range []string{crashed.ID, pausedItem.ID, "orphan"} {
		if err := os.WriteFile(fixture.fetcher.PartPath(id), []byte("data"), 0o644); err != nil {
			t.Fatalf("seed part %s: %v", id, err)
		}
	}

	if recovered, err := fixture.store.ReconcileInterrupted(ctx); err != nil || recovered != 1 {
		t.Fatalf("reconcile: recovered=%d err=%v", recovered, err)
	}
	removed, err := fixture.pool.SweepStaging(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 stale parts removed, got %d", removed)
	}
	if _, err := os.Stat(fixture.fetcher.PartPath(pausedItem.ID)); err != nil {
		t.Fatalf("paused partial file must survive the sweep: %v", err)
	}
	for _, id := range []string{crashed.ID, "orphan"} {
		if _, err := os.Stat(fixture.fetcher.PartPath(id)); !os.IsNotExist(err) {
			t.Fatalf("expected part %s to be removed, err=%v", id, err)
		}
	}
}
