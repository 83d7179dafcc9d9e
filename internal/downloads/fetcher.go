package downloads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"depot/internal/config"
	"depot/internal/errs"
	"depot/internal/fileutil"
	"depot/internal/logging"
)

// Progress receives transfer counters while a fetch is running. Total
// is zero when the server did not report a size.
type Progress func(received, total int64)

// Result describes a transfer that finished and moved into the
// library directory.
type Result struct {
	Filename string
	Path     string
	Bytes    int64
	Resumed  bool
}

// errReadStalled is the cancellation cause set by the stall watchdog
// when a transfer stops producing bytes for the idle timeout.
var errReadStalled = errors.New("no data received within idle timeout")

// Fetcher streams remote files into the staging directory and moves
// completed transfers into the library. Redirects are followed
// manually so the hop limit is enforced and the final URL is known
// when naming the file.
type Fetcher struct {
	stagingDir       string
	romDir           string
	client           *http.Client
	maxRedirects     int
	idleTimeout      time.Duration
	progressInterval time.Duration
	logger           *slog.Logger
}

// NewFetcher builds a fetcher from the downloads configuration.
func NewFetcher(cfg *config.Config, logger *slog.Logger) *Fetcher {
	connectTimeout := time.Duration(cfg.Downloads.ConnectTimeoutSeconds) * time.Second
	idleTimeout := time.Duration(cfg.Downloads.IdleTimeoutSeconds) * time.Second

	return &Fetcher{
		stagingDir: cfg.Paths.StagingDir,
		romDir:     cfg.Paths.RomDir,
		client: &http.Client{
			// Redirects are walked by openStream so the hop count and
			// the final URL stay under our control.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
			Transport: &http.Transport{
				DialContext:           (&net.Dialer{Timeout: connectTimeout}).DialContext,
				TLSHandshakeTimeout:   connectTimeout,
				ResponseHeaderTimeout: connectTimeout,
				IdleConnTimeout:       idleTimeout,
			},
		},
		maxRedirects:     cfg.Downloads.MaxRedirects,
		idleTimeout:      idleTimeout,
		progressInterval: time.Duration(cfg.Downloads.ProgressIntervalMS) * time.Millisecond,
		logger:           logging.NewComponentLogger(logger, "fetcher"),
	}
}

// PartPath returns the staging path holding partial data for an item.
func (f *Fetcher) PartPath(id string) string {
	return filepath.Join(f.stagingDir, id+".part")
}

// Fetch downloads the item's URL. Partial data from an earlier attempt
// is resumed with a Range request when the server cooperates. The
// onFilename callback fires once the final name is known; onProgress
// fires periodically with byte counters. On success the finished file
// has been moved into the library directory.
func (f *Fetcher) Fetch(ctx context.Context, item *Item, onFilename func(string), onProgress Progress) (*Result, error) {
	if err := os.MkdirAll(f.stagingDir, 0o755); err != nil {
		return nil, errs.NewTransientIO("create staging directory", err)
	}
	partPath := f.PartPath(item.ID)

	// The confirmed-byte checkpoint is the partial file itself: its
	// size on disk decides the resume offset, independent of whatever
	// progress counter was last flushed to the queue row.
	var offset int64
	if info, err := os.Stat(partPath); err == nil {
		offset = info.Size()
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, errs.NewTransientIO("stat partial file", err)
	}

	// readCtx lets the stall watchdog abort a transfer that stops
	// producing bytes without cancelling the caller's context.
	readCtx, cancelRead := context.WithCancelCause(ctx)
	defer cancelRead(nil)

	resp, finalURL, err := f.openStream(readCtx, item.URL, offset)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusRequestedRangeNotSatisfiable && offset > 0 {
		// The partial file no longer lines up with the remote object.
		// Throw it away and start over.
		resp.Body.Close()
		if err := os.Remove(partPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, errs.NewTransientIO("discard stale partial file", err)
		}
		offset = 0
		resp, finalURL, err = f.openStream(readCtx, item.URL, 0)
		if err != nil {
			return nil, err
		}
	}
	defer resp.Body.Close()

	resumed := false
	switch resp.StatusCode {
	case http.StatusOK:
		// Full body; any partial data is obsolete.
		offset = 0
	case http.StatusPartialContent:
		resumed = offset > 0
	default:
		return nil, fmt.Errorf("download %s: unexpected status %d", finalURL, resp.StatusCode)
	}

	total := totalSize(resp, offset)
	filename := ResponseFilename(resp, finalURL)
	if filename == "" {
		filename = fmt.Sprintf("download_%d.bin", time.Now().Unix())
	}
	if onFilename != nil {
		onFilename(filename)
	}

	flags := os.O_CREATE | os.O_WRONLY
	if resp.StatusCode == http.StatusPartialContent {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	out, err := os.OpenFile(partPath, flags, 0o644)
	if err != nil {
		return nil, errs.NewTransientIO("open partial file", err)
	}

	received, copyErr := f.copyBody(readCtx, cancelRead, out, resp.Body, offset, total, onProgress)
	if copyErr != nil {
		out.Close()
		return nil, copyErr
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return nil, errs.NewTransientIO("sync partial file", err)
	}
	if err := out.Close(); err != nil {
		return nil, errs.NewTransientIO("close partial file", err)
	}
	if total > 0 && received != total {
		return nil, errs.NewTransientIO("download "+finalURL,
			fmt.Errorf("truncated transfer: got %d of %d bytes", received, total))
	}
	if onProgress != nil {
		onProgress(received, received)
	}

	stem, ext := splitFilename(filename)
	destPath, err := fileutil.UniquePath(f.romDir, stem, ext)
	if err != nil {
		return nil, errs.NewTransientIO("pick destination path", err)
	}
	if err := fileutil.MoveFile(partPath, destPath); err != nil {
		return nil, errs.NewTransientIO("move into library", err)
	}

	f.logger.Info("download finished",
		logging.String("url", item.URL),
		logging.String("path", destPath),
		logging.String("size", humanize.IBytes(uint64(received))),
		logging.Bool("resumed", resumed))
	return &Result{
		Filename: filepath.Base(destPath),
		Path:     destPath,
		Bytes:    received,
		Resumed:  resumed,
	}, nil
}

// copyBody streams the response body to the partial file, reporting
// progress at the configured interval. A watchdog timer aborts the
// read when no bytes arrive within the idle timeout.
func (f *Fetcher) copyBody(readCtx context.Context, cancelRead context.CancelCauseFunc, out *os.File, body io.Reader, offset, total int64, onProgress Progress) (int64, error) {
	var watchdog *time.Timer
	if f.idleTimeout > 0 {
		watchdog = time.AfterFunc(f.idleTimeout, func() { cancelRead(errReadStalled) })
		defer watchdog.Stop()
	}

	buf := make([]byte, 128*1024)
	received := offset
	lastFlush := time.Now()
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if watchdog != nil {
				watchdog.Reset(f.idleTimeout)
			}
			if _, err := out.Write(buf[:n]); err != nil {
				return received, errs.NewTransientIO("write partial file", err)
			}
			received += int64(n)
			if onProgress != nil && time.Since(lastFlush) >= f.progressInterval {
				onProgress(received, total)
				lastFlush = time.Now()
			}
		}
		if readErr == io.EOF {
			return received, nil
		}
		if readErr != nil {
			if errors.Is(context.Cause(readCtx), errReadStalled) {
				return received, errs.NewTransientIO("download stalled", errReadStalled)
			}
			if readCtx.Err() != nil {
				return received, readCtx.Err()
			}
			return received, errs.NewTransientIO("read download stream", readErr)
		}
	}
}

func (f *Fetcher) openStream(ctx context.Context, rawURL string, offset int64) (*http.Response, string, error) {
	current := rawURL
	for hop := 0; ; hop++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, current, nil)
		if err != nil {
			return nil, "", fmt.Errorf("build download request: %w", err)
		}
		if offset > 0 {
			req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
		}
		resp, err := f.client.Do(req)
		if err != nil {
			return nil, "", errs.NewTransientIO("fetch "+current, err)
		}
		if !isRedirect(resp.StatusCode) {
			return resp, current, nil
		}
		location := resp.Header.Get("Location")
		resp.Body.Close()
		if location == "" {
			return nil, "", fmt.Errorf("redirect from %s missing location header", current)
		}
		if hop >= f.maxRedirects {
			return nil, "", fmt.Errorf("download %s: stopped after %d redirects", rawURL, f.maxRedirects)
		}
		next, err := resp.Request.URL.Parse(location)
		if err != nil {
			return nil, "", fmt.Errorf("parse redirect target %q: %w", location, err)
		}
		current = next.String()
	}
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently,
		http.StatusFound,
		http.StatusSeeOther,
		http.StatusTemporaryRedirect,
		http.StatusPermanentRedirect:
		return true
	}
	return false
}

// totalSize derives the expected final size from response headers.
// Returns zero when the server did not say.
func totalSize(resp *http.Response, offset int64) int64 {
	if resp.StatusCode == http.StatusPartialContent {
		if total, ok := contentRangeTotal(resp.Header.Get("Content-Range")); ok {
			return total
		}
		if resp.ContentLength >= 0 {
			return offset + resp.ContentLength
		}
		return 0
	}
	if resp.ContentLength >= 0 {
		return resp.ContentLength
	}
	return 0
}

// contentRangeTotal parses the complete length out of a Content-Range
// header such as "bytes 100-999/4096".
func contentRangeTotal(header string) (int64, bool) {
	_, totalPart, ok := strings.Cut(header, "/")
	if !ok {
		return 0, false
	}
	totalPart = strings.TrimSpace(totalPart)
	if totalPart == "" || totalPart == "*" {
		return 0, false
	}
	total, err := strconv.ParseInt(totalPart, 10, 64)
	if err != nil || total < 0 {
		return 0, false
	}
	return total, true
}

// ResponseFilename picks a filename from the Content-Disposition
// header, falling back to the final URL path. Returns empty when
// neither yields a usable name. Import providers use the same
// derivation when probing a URL ahead of the transfer.
func ResponseFilename(resp *http.Response, finalURL string) string {
	if header := resp.Header.Get("Content-Disposition"); header != "" {
		if _, params, err := mime.ParseMediaType(header); err == nil {
			if name := sanitizeFilename(params["filename"]); name != "" {
				return name
			}
		}
	}
	if parsed, err := url.Parse(finalURL); err == nil {
		if name := sanitizeFilename(path.Base(parsed.Path)); name != "" {
			return name
		}
	}
	return ""
}

// sanitizeFilename strips directory components and rejects names that
// cannot be used as a single path element.
func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	switch name {
	case "", ".", "..", "/":
		return ""
	}
	return name
}

func splitFilename(name string) (stem, ext string) {
	ext = filepath.Ext(name)
	if ext == name {
		// Dotfile such as ".part"; treat the whole thing as the stem.
		return name, ""
	}
	return strings.TrimSuffix(name, ext), ext
}
