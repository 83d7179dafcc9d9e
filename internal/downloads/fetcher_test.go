package downloads_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"depot/internal/downloads"
	"depot/internal/errs"
	"depot/internal/testsupport"
)

func newFetchItem(id, url string) *downloads.Item {
	return &downloads.Item{ID: id, URL: url, Status: downloads.StatusDownloading}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func TestFetchMovesCompletedFileIntoLibrary(t *testing.T) {
	const payload = "PFS0 payload bytes"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="Sample Quest [0100ABCD00000000][v0].nsp"`)
		fmt.Fprint(w, payload)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	fetcher := downloads.NewFetcher(cfg, nil)

	var namedAs string
	var finalReceived, finalTotal int64
	result, err := fetcher.Fetch(context.Background(), newFetchItem("item-1", server.URL+"/remote"),
		func(name string) { namedAs = name },
		func(received, total int64) {
			finalReceived = received
			finalTotal = total
		})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if result.Filename != "Sample Quest [0100ABCD00000000][v0].nsp" {
		t.Fatalf("unexpected filename %q", result.Filename)
	}
	if namedAs != result.Filename {
		t.Fatalf("filename callback got %q", namedAs)
	}
	if result.Bytes != int64(len(payload)) {
		t.Fatalf("unexpected byte count %d", result.Bytes)
	}
	if result.Resumed {
		t.Fatal("fresh fetch should not report a resume")
	}
	wantPath := filepath.Join(cfg.Paths.RomDir, result.Filename)
	if result.Path != wantPath {
		t.Fatalf("unexpected destination %q", result.Path)
	}
	if got := readFile(t, result.Path); got != payload {
		t.Fatalf("unexpected file content %q", got)
	}
	if finalReceived != int64(len(payload)) || finalTotal != int64(len(payload)) {
		t.Fatalf("expected final progress flush %d/%d, got %d/%d",
			len(payload), len(payload), finalReceived, finalTotal)
	}
	if _, err := os.Stat(fetcher.PartPath("item-1")); !os.IsNotExist(err) {
		t.Fatalf("expected partial file to be gone, stat err=%v", err)
	}

	// A second fetch of the same name must not clobber the first file.
	again, err := fetcher.Fetch(context.Background(), newFetchItem("item-2", server.URL+"/remote"), nil, nil)
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if again.Path == result.Path {
		t.Fatalf("expected a deduplicated destination, got %q twice", again.Path)
	}
	if !strings.HasSuffix(again.Filename, "-1.nsp") {
		t.Fatalf("unexpected dedupe name %q", again.Filename)
	}
}

func TestFetchDecodesExtendedFilenameParameter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", "attachment; filename*=UTF-8''Sample%20Quest%20%5B0100ABCD00000000%5D%5Bv65536%5D.nsz")
		fmt.Fprint(w, "data")
	}))
	defer server.Close()

	fetcher := downloads.NewFetcher(testsupport.NewConfig(t), nil)
	result, err := fetcher.Fetch(context.Background(), newFetchItem("item-ext", server.URL+"/x"), nil, nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if result.Filename != "Sample Quest [0100ABCD00000000][v65536].nsz" {
		t.Fatalf("unexpected decoded filename %q", result.Filename)
	}
}

func TestFetchSanitizesFilenameTraversal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="../../evil.nsp"`)
		fmt.Fprint(w, "data")
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	fetcher := downloads.NewFetcher(cfg, nil)
	result, err := fetcher.Fetch(context.Background(), newFetchItem("item-evil", server.URL+"/x"), nil, nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if result.Filename != "evil.nsp" {
		t.Fatalf("unexpected sanitized filename %q", result.Filename)
	}
	if filepath.Dir(result.Path) != cfg.Paths.RomDir {
		t.Fatalf("file escaped the library directory: %q", result.Path)
	}
}

func TestFetchResumesFromPartialFile(t *testing.T) {
	const payload = "0123456789abcdef"
	var sawRange atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rangeHeader := r.Header.Get("Range")
		sawRange.Store(rangeHeader)
		var offset int
		if _, err := fmt.Sscanf(rangeHeader, "bytes=%d-", &offset); err != nil || offset <= 0 || offset >= len(payload) {
			t.Errorf("unexpected range header %q", rangeHeader)
			http.Error(w, "bad range", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, len(payload)-1, len(payload)))
		w.WriteHeader(http.StatusPartialContent)
		fmt.Fprint(w, payload[offset:])
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	fetcher := downloads.NewFetcher(cfg, nil)
	partPath := fetcher.PartPath("item-resume")
	if err := os.WriteFile(partPath, []byte(payload[:6]), 0o644); err != nil {
		t.Fatalf("seed partial file: %v", err)
	}

	result, err := fetcher.Fetch(context.Background(), newFetchItem("item-resume", server.URL+"/big.nsp"), nil, nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !result.Resumed {
		t.Fatal("expected a resumed transfer")
	}
	if sawRange.Load() != "bytes=6-" {
		t.Fatalf("unexpected range header %q", sawRange.Load())
	}
	if result.Bytes != int64(len(payload)) {
		t.Fatalf("unexpected byte count %d", result.Bytes)
	}
	if got := readFile(t, result.Path); got != payload {
		t.Fatalf("resumed content mismatch: %q", got)
	}
	if result.Filename != "big.nsp" {
		t.Fatalf("expected URL-derived filename, got %q", result.Filename)
	}
}

func TestFetchRestartsWhenServerIgnoresRange(t *testing.T) {
	const payload = "fresh full body"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// No Range support: always the full body with a 200.
		fmt.Fprint(w, payload)
	}))
	defer server.Close()

	fetcher := downloads.NewFetcher(testsupport.NewConfig(t), nil)
	if err := os.WriteFile(fetcher.PartPath("item-restart"), []byte("stale prefix "), 0o644); err != nil {
		t.Fatalf("seed partial file: %v", err)
	}

	result, err := fetcher.Fetch(context.Background(), newFetchItem("item-restart", server.URL+"/file.xci"), nil, nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if result.Resumed {
		t.Fatal("a full response must not count as a resume")
	}
	if got := readFile(t, result.Path); got != payload {
		t.Fatalf("stale partial data leaked into the result: %q", got)
	}
}

func TestFetchDiscardsPartWhenRangeNotSatisfiable(t *testing.T) {
	const payload = "tiny"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Range") != "" {
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		fmt.Fprint(w, payload)
	}))
	defer server.Close()

	fetcher := downloads.NewFetcher(testsupport.NewConfig(t), nil)
	if err := os.WriteFile(fetcher.PartPath("item-416"), []byte("way longer than the remote file"), 0o644); err != nil {
		t.Fatalf("seed partial file: %v", err)
	}

	result, err := fetcher.Fetch(context.Background(), newFetchItem("item-416", server.URL+"/f.nsp"), nil, nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got := readFile(t, result.Path); got != payload {
		t.Fatalf("expected a clean restart, got %q", got)
	}
}

func TestFetchFollowsRedirectsWithinLimit(t *testing.T) {
	const payload = "routed body"
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/hop", http.StatusFound)
	})
	mux.HandleFunc("/hop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final/routed.nsp", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/final/routed.nsp", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, payload)
	})

	fetcher := downloads.NewFetcher(testsupport.NewConfig(t), nil)
	result, err := fetcher.Fetch(context.Background(), newFetchItem("item-redir", server.URL+"/start"), nil, nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	// The filename comes from the final URL, not the one that was queued.
	if result.Filename != "routed.nsp" {
		t.Fatalf("unexpected filename %q", result.Filename)
	}
	if got := readFile(t, result.Path); got != payload {
		t.Fatalf("unexpected content %q", got)
	}
}

func TestFetchStopsAfterTooManyRedirects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/again", http.StatusFound)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Downloads.MaxRedirects = 3
	fetcher := downloads.NewFetcher(cfg, nil)

	_, err := fetcher.Fetch(context.Background(), newFetchItem("item-loop", server.URL+"/again"), nil, nil)
	if err == nil || !strings.Contains(err.Error(), "redirects") {
		t.Fatalf("expected redirect limit error, got %v", err)
	}
}

func TestFetchFailsOnUnexpectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	fetcher := downloads.NewFetcher(testsupport.NewConfig(t), nil)
	_, err := fetcher.Fetch(context.Background(), newFetchItem("item-404", server.URL+"/missing.nsp"), nil, nil)
	if err == nil || !strings.Contains(err.Error(), "unexpected status 404") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestFetchAbortsStalledTransfers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "4096")
		fmt.Fprint(w, "a head of bytes")
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}
		// Then go silent until the client gives up.
		<-r.Context().Done()
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Downloads.IdleTimeoutSeconds = 1
	fetcher := downloads.NewFetcher(cfg, nil)

	start := time.Now()
	_, err := fetcher.Fetch(context.Background(), newFetchItem("item-stall", server.URL+"/slow.nsp"), nil, nil)
	if err == nil || !strings.Contains(err.Error(), "stalled") {
		t.Fatalf("expected a stall error, got %v", err)
	}
	if !errs.IsTransientIO(err) {
		t.Fatalf("expected a transient IO classification, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("stall detection took %v", elapsed)
	}
	// Fetch leaves the partial file alone; settling it is the caller's
	// decision.
	if _, statErr := os.Stat(fetcher.PartPath("item-stall")); statErr != nil {
		t.Fatalf("expected partial file to survive a stall: %v", statErr)
	}
}

func TestFetchKeepsPartialFileOnTruncatedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		fmt.Fprint(w, "only a little")
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	fetcher := downloads.NewFetcher(cfg, nil)
	_, err := fetcher.Fetch(context.Background(), newFetchItem("item-short", server.URL+"/f.nsp"), nil, nil)
	if err == nil {
		t.Fatal("expected an error for the truncated body")
	}
	if !errs.IsTransientIO(err) {
		t.Fatalf("expected a transient IO error, got %v", err)
	}
	if _, statErr := os.Stat(fetcher.PartPath("item-short")); statErr != nil {
		t.Fatalf("expected partial file to remain after a truncated body: %v", statErr)
	}
	entries, err := os.ReadDir(cfg.Paths.RomDir)
	if err != nil {
		t.Fatalf("read library dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("truncated download must not reach the library, found %d entries", len(entries))
	}
}
