// Package client provides a typed HTTP client for the depot daemon API.
// The CLI uses it for every command that talks to a running daemon.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"depot/internal/api"
)

// HTTPDoer describes the HTTP client used to reach the daemon.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client issues typed requests against a running depot daemon.
type Client struct {
	baseURL string
	client  HTTPDoer
}

// Option adjusts client construction.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) {
		if doer != nil {
			c.client = doer
		}
	}
}

// New builds a client for the daemon at baseURL, for example
// "http://127.0.0.1:3000".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx daemon response with its decoded message.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
}

// Status fetches the daemon status report.
func (c *Client) Status(ctx context.Context) (*api.StatusReport, error) {
	var out api.StatusReport
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health runs the daemon's live checks. A report is returned even when
// the daemon answers 503 because a fatal check failed.
func (c *Client) Health(ctx context.Context) (*api.HealthReport, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reach daemon at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return nil, decodeAPIError(resp)
	}
	var report api.HealthReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("decode health report: %w", err)
	}
	return &report, nil
}

// Scan asks the daemon to start a library scan.
func (c *Client) Scan(ctx context.Context, force bool) (*api.AcceptedResponse, error) {
	query := url.Values{}
	if force {
		query.Set("force", "1")
	}
	var out api.AcceptedResponse
	if err := c.do(ctx, http.MethodPost, "/api/scan", query, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Library lists indexed files with their resolved metadata.
func (c *Client) Library(ctx context.Context, locale string) (*api.LibraryListResponse, error) {
	query := url.Values{}
	if locale != "" {
		query.Set("locale", locale)
	}
	var out api.LibraryListResponse
	if err := c.do(ctx, http.MethodGet, "/api/library", query, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Title fetches catalog metadata and local files for one title ID.
func (c *Client) Title(ctx context.Context, titleID string) (*api.TitleDetail, error) {
	var out api.TitleDetail
	path := "/api/library/" + url.PathEscape(strings.TrimSpace(titleID))
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Search queries the library or catalog. Scope, locale, and limit are
// optional and fall back to daemon defaults when empty or zero.
func (c *Client) Search(ctx context.Context, queryText, scope, locale string, limit int) (*api.SearchResponse, error) {
	query := url.Values{}
	query.Set("q", queryText)
	if scope != "" {
		query.Set("scope", scope)
	}
	if locale != "" {
		query.Set("locale", locale)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var out api.SearchResponse
	if err := c.do(ctx, http.MethodGet, "/api/search", query, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Downloads lists queue entries, optionally filtered by statuses.
func (c *Client) Downloads(ctx context.Context, statuses []string) (*api.DownloadListResponse, error) {
	query := url.Values{}
	for _, status := range statuses {
		if trimmed := strings.TrimSpace(status); trimmed != "" {
			query.Add("status", trimmed)
		}
	}
	var out api.DownloadListResponse
	if err := c.do(ctx, http.MethodGet, "/api/downloads", query, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AddDownload queues a direct URL.
func (c *Client) AddDownload(ctx context.Context, rawURL string) (*api.DownloadItemResponse, error) {
	var out api.DownloadItemResponse
	body := api.DownloadRequest{URL: rawURL}
	if err := c.do(ctx, http.MethodPost, "/api/downloads", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ImportDownloads resolves a provider reference into queued downloads.
func (c *Client) ImportDownloads(ctx context.Context, provider, ref string) (*api.DownloadListResponse, error) {
	var out api.DownloadListResponse
	body := api.DownloadRequest{Provider: provider, Ref: ref}
	if err := c.do(ctx, http.MethodPost, "/api/downloads", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Download fetches a single queue entry.
func (c *Client) Download(ctx context.Context, id string) (*api.DownloadItemResponse, error) {
	var out api.DownloadItemResponse
	if err := c.do(ctx, http.MethodGet, "/api/downloads/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelDownload cancels a queued or active download.
func (c *Client) CancelDownload(ctx context.Context, id string) (*api.DownloadItemResponse, error) {
	return c.downloadAction(ctx, id, "cancel")
}

// PauseDownload pauses a queued or active download.
func (c *Client) PauseDownload(ctx context.Context, id string) (*api.DownloadItemResponse, error) {
	return c.downloadAction(ctx, id, "pause")
}

// ResumeDownload requeues a paused or failed download.
func (c *Client) ResumeDownload(ctx context.Context, id string) (*api.DownloadItemResponse, error) {
	return c.downloadAction(ctx, id, "resume")
}

func (c *Client) downloadAction(ctx context.Context, id, action string) (*api.DownloadItemResponse, error) {
	var out api.DownloadItemResponse
	path := "/api/downloads/" + url.PathEscape(id) + "/" + action
	if err := c.do(ctx, http.MethodPost, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DownloadStats summarizes the queue by status.
func (c *Client) DownloadStats(ctx context.Context) (*api.DownloadStats, error) {
	var out api.DownloadStats
	if err := c.do(ctx, http.MethodGet, "/api/downloads/stats", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CleanupDownloads removes terminal queue entries.
func (c *Client) CleanupDownloads(ctx context.Context) (*api.CleanupResponse, error) {
	var out api.CleanupResponse
	if err := c.do(ctx, http.MethodPost, "/api/downloads/cleanup", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CatalogStatus summarizes imported catalog locales.
func (c *Client) CatalogStatus(ctx context.Context) (*api.CatalogStatus, error) {
	var out api.CatalogStatus
	if err := c.do(ctx, http.MethodGet, "/api/catalog", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RefreshCatalog schedules a catalog refresh, optionally for one locale.
func (c *Client) RefreshCatalog(ctx context.Context, locale string) (*api.AcceptedResponse, error) {
	query := url.Values{}
	if locale != "" {
		query.Set("locale", locale)
	}
	var out api.AcceptedResponse
	if err := c.do(ctx, http.MethodPost, "/api/catalog/refresh", query, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpstreamStatus reports the mirror state of configured upstream shops.
func (c *Client) UpstreamStatus(ctx context.Context) (*api.UpstreamListResponse, error) {
	var out api.UpstreamListResponse
	if err := c.do(ctx, http.MethodGet, "/api/upstream", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SyncUpstream schedules an upstream index sync.
func (c *Client) SyncUpstream(ctx context.Context) (*api.AcceptedResponse, error) {
	var out api.AcceptedResponse
	if err := c.do(ctx, http.MethodPost, "/api/upstream/sync", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("reach daemon at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode daemon response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		return &APIError{StatusCode: resp.StatusCode, Message: payload.Error}
	}
	return &APIError{StatusCode: resp.StatusCode}
}
