// Package upstream mirrors the published indexes of other repository
// servers. Each configured source is fetched on a schedule; its entries
// are held in memory and handed to the index builder as foreign
// entries. A failing source keeps its last good entries rather than
// vanishing from the merged index.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"depot/internal/config"
	"depot/internal/logging"
	"depot/internal/shop"
)

// sourceState is the last known outcome for one source.
type sourceState struct {
	entries   []shop.FileEntry
	fetchedAt time.Time
	lastErr   string
}

// Manager fetches and caches upstream shop indexes.
type Manager struct {
	sources  []string
	interval time.Duration
	timeout  time.Duration
	client   *http.Client
	logger   *slog.Logger

	mu     sync.RWMutex
	states map[string]*sourceState

	trigger chan struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(m *Manager) {
		if client != nil {
			m.client = client
		}
	}
}

// NewManager builds a Manager over the configured sources.
func NewManager(cfg *config.Config, logger *slog.Logger, opts ...Option) *Manager {
	timeout := time.Duration(cfg.Upstream.RequestTimeoutSeconds) * time.Second
	manager := &Manager{
		sources:  append([]string(nil), cfg.Upstream.Sources...),
		interval: time.Duration(cfg.Upstream.SyncIntervalHours) * time.Hour,
		timeout:  timeout,
		client:   &http.Client{Timeout: timeout},
		logger:   logging.NewComponentLogger(logger, "upstream"),
		states:   make(map[string]*sourceState),
		trigger:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(manager)
	}
	return manager
}

// Sources returns the configured source URLs.
func (m *Manager) Sources() []string {
	return append([]string(nil), m.sources...)
}

// SourceResult reports the outcome of one source fetch.
type SourceResult struct {
	Source  string
	Entries int
	Err     error
}

// SyncSummary aggregates the per-source outcomes of one sync run.
type SyncSummary struct {
	Results []SourceResult
}

// Failed counts sources whose fetch did not complete.
func (s SyncSummary) Failed() int {
	failed := 0
	for _, result := range s.Results {
		if result.Err != nil {
			failed++
		}
	}
	return failed
}

// Sync fetches every configured source. Sources fail independently: a
// failing source logs, keeps its previous entries, and never blocks the
// others. An error is returned only when every source failed.
func (m *Manager) Sync(ctx context.Context) (SyncSummary, error) {
	summary := SyncSummary{Results: make([]SourceResult, len(m.sources))}
	if len(m.sources) == 0 {
		return summary, nil
	}

	var group errgroup.Group
	for i, source := range m.sources {
		i, source := i, source
		group.Go(func() error {
			summary.Results[i] = m.syncSource(ctx, source)
			return nil
		})
	}
	_ = group.Wait()

	if summary.Failed() == len(summary.Results) {
		return summary, errors.New("upstream sync failed for every source")
	}
	return summary, nil
}

func (m *Manager) syncSource(ctx context.Context, source string) SourceResult {
	result := SourceResult{Source: source}

	fetchCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	entries, err := m.fetchIndex(fetchCtx, source)
	if err != nil {
		result.Err = err
		m.recordFailure(source, err)
		m.logger.Warn("upstream sync failed",
			logging.String("source", source),
			logging.Error(err))
		return result
	}

	m.recordSuccess(source, entries)
	result.Entries = len(entries)
	m.logger.Info("upstream synced",
		logging.String("source", source),
		logging.Int("entries", len(entries)))
	return result
}

func (m *Manager) fetchIndex(ctx context.Context, source string) ([]shop.FileEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch index: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch index: status %d", resp.StatusCode)
	}

	var index shop.Index
	if err := json.NewDecoder(resp.Body).Decode(&index); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}

	base, err := url.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("parse source url: %w", err)
	}

	entries := make([]shop.FileEntry, 0, len(index.Files))
	for _, entry := range index.Files {
		if entry.URL == "" {
			continue
		}
		// Some shops publish paths relative to the index.
		ref, err := url.Parse(entry.URL)
		if err != nil {
			continue
		}
		entry.URL = base.ResolveReference(ref).String()
		entries = append(entries, entry)
	}
	return entries, nil
}

func (m *Manager) recordSuccess(source string, entries []shop.FileEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[source] = &sourceState{entries: entries, fetchedAt: time.Now().UTC()}
}

// recordFailure keeps the source's previous entries: stale entries beat
// an empty listing.
func (m *Manager) recordFailure(source string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[source]
	if !ok {
		state = &sourceState{}
		m.states[source] = state
	}
	state.lastErr = err.Error()
}

// Entries returns a snapshot of every mirrored entry, in configured
// source order.
func (m *Manager) Entries() []shop.FileEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var entries []shop.FileEntry
	for _, source := range m.sources {
		if state, ok := m.states[source]; ok {
			entries = append(entries, state.entries...)
		}
	}
	return entries
}

// SourceStatus is the reported state of one source.
type SourceStatus struct {
	Source    string     `json:"source"`
	Entries   int        `json:"entries"`
	FetchedAt *time.Time `json:"fetched_at,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

// Status reports every source in configured order.
func (m *Manager) Status() []SourceStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	statuses := make([]SourceStatus, 0, len(m.sources))
	for _, source := range m.sources {
		status := SourceStatus{Source: source}
		if state, ok := m.states[source]; ok {
			status.Entries = len(state.entries)
			status.LastError = state.lastErr
			if !state.fetchedAt.IsZero() {
				at := state.fetchedAt
				status.FetchedAt = &at
			}
		}
		statuses = append(statuses, status)
	}
	return statuses
}
