package importer

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"depot/internal/config"
	"depot/internal/downloads"
	"depot/internal/errs"
	"depot/internal/logging"
)

// URLProvider accepts a direct download URL, possibly percent-encoded
// as a whole (the form clients use when the URL travels inside a path
// segment). It probes the target with a HEAD request for a display
// name and size; the probe is best effort and never fails the import.
type URLProvider struct {
	client *http.Client
	logger *slog.Logger
}

// NewURLProvider builds the direct-URL provider.
func NewURLProvider(cfg *config.Config, logger *slog.Logger) *URLProvider {
	timeout := time.Duration(cfg.Import.RequestTimeoutSeconds) * time.Second
	return &URLProvider{
		client: &http.Client{Timeout: timeout},
		logger: logging.NewComponentLogger(logger, "importer"),
	}
}

func (p *URLProvider) Name() string { return "url" }

// Resolve validates the reference and returns a single download
// request for it.
func (p *URLProvider) Resolve(ctx context.Context, ref string) ([]downloads.Request, error) {
	target, err := decodeURLRef(ref)
	if err != nil {
		return nil, err
	}

	request := downloads.Request{URL: target}
	if name, size, ok := p.probe(ctx, target); ok {
		request.DisplayName = name
		request.Size = size
	}
	return []downloads.Request{request}, nil
}

// decodeURLRef accepts the URL as given, or percent-decodes it once
// when the raw form does not parse as an http(s) URL. Decoding only on
// demand keeps URLs that legitimately contain %-escapes intact.
func decodeURLRef(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", errs.NewDecode("", "import url is empty", nil)
	}
	if isHTTPURL(ref) {
		return ref, nil
	}
	decoded, err := url.QueryUnescape(ref)
	if err == nil && isHTTPURL(decoded) {
		return decoded, nil
	}
	return "", errs.NewDecode(ref, "import reference is not an http or https url", nil)
}

func isHTTPURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}

// probe issues a HEAD request for display hints. Any failure just
// means the queue row starts without them.
func (p *URLProvider) probe(ctx context.Context, target string) (name string, size int64, ok bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return "", 0, false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug("url probe failed",
			logging.String("url", target),
			logging.Error(err))
		return "", 0, false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		p.logger.Debug("url probe rejected",
			logging.String("url", target),
			logging.Int("status", resp.StatusCode))
		return "", 0, false
	}

	name = downloads.ResponseFilename(resp, target)
	if resp.ContentLength > 0 {
		size = resp.ContentLength
	}
	return name, size, true
}
