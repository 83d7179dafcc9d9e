package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/language"

	"depot/internal/config"
	"depot/internal/logging"
)

// Refresher downloads titledb locale files and imports them into the Store.
type Refresher struct {
	store    *Store
	baseURL  string
	locales  []string
	primary  string
	interval time.Duration
	client   *http.Client
	logger   *slog.Logger
	trigger  chan struct{}
}

// RefresherOption configures a Refresher.
type RefresherOption func(*Refresher)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) RefresherOption {
	return func(r *Refresher) {
		if client != nil {
			r.client = client
		}
	}
}

// NewRefresher builds a Refresher for the configured locales.
func NewRefresher(store *Store, cfg *config.Config, logger *slog.Logger, opts ...RefresherOption) *Refresher {
	timeout := time.Duration(cfg.Catalog.RequestTimeoutSeconds) * time.Second
	interval := time.Duration(cfg.Catalog.RefreshIntervalHours) * time.Hour
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	refresher := &Refresher{
		store:    store,
		baseURL:  strings.TrimRight(cfg.Catalog.BaseURL, "/"),
		locales:  cfg.Locales(),
		primary:  cfg.Catalog.PrimaryLocale,
		interval: interval,
		client:   &http.Client{Timeout: timeout},
		logger:   logging.NewComponentLogger(logger, "catalog"),
		trigger:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(refresher)
	}
	return refresher
}

// LocaleResult reports the outcome of one locale refresh.
type LocaleResult struct {
	Locale   string
	File     string
	Imported int
	Skipped  int
	Err      error
}

// RefreshSummary aggregates the per-locale outcomes of one refresh run.
type RefreshSummary struct {
	Results []LocaleResult
}

// Failed counts locales whose refresh did not complete.
func (s RefreshSummary) Failed() int {
	failed := 0
	for _, result := range s.Results {
		if result.Err != nil {
			failed++
		}
	}
	return failed
}

// Refresh downloads and imports every configured locale. Locales fail
// independently; previously imported data for a failing locale stays in
// place. An error is returned only when no locale could be refreshed.
func (r *Refresher) Refresh(ctx context.Context) (RefreshSummary, error) {
	summary := RefreshSummary{}
	for _, locale := range r.locales {
		summary.Results = append(summary.Results, r.RefreshLocale(ctx, locale))
	}

	if len(summary.Results) > 0 && summary.Failed() == len(summary.Results) {
		return summary, errors.New("catalog refresh failed for every locale")
	}
	return summary, nil
}

// RefreshLocale refreshes a single locale on demand. The locale does not
// have to be in the configured set.
func (r *Refresher) RefreshLocale(ctx context.Context, locale string) LocaleResult {
	result := r.refreshLocale(ctx, locale)
	if result.Err != nil {
		r.logger.Warn("locale refresh failed",
			logging.String("locale", locale),
			logging.Error(result.Err))
		return result
	}
	r.logger.Info("locale refreshed",
		logging.String("locale", locale),
		logging.String("file", result.File),
		logging.Int("imported", result.Imported),
		logging.Int("skipped", result.Skipped))
	return result
}

func (r *Refresher) refreshLocale(ctx context.Context, locale string) LocaleResult {
	result := LocaleResult{Locale: locale}

	file, err := LocaleFile(locale)
	if err != nil {
		result.Err = err
		return result
	}
	result.File = file

	sourceURL := r.baseURL + "/" + file
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		result.Err = fmt.Errorf("build request: %w", err)
		return result
	}

	resp, err := r.client.Do(req)
	if err != nil {
		result.Err = fmt.Errorf("fetch %s: %w", file, err)
		return result
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		result.Err = fmt.Errorf("fetch %s: status %d", file, resp.StatusCode)
		return result
	}

	stats, err := r.store.ImportLocale(ctx, locale, sourceURL, resp.Body)
	if err != nil {
		result.Err = fmt.Errorf("import %s: %w", file, err)
		return result
	}
	result.Imported = stats.Imported
	result.Skipped = stats.Skipped
	return result
}

// LocaleFile maps a BCP 47 locale to the titledb file that covers it:
// "en-US" becomes "US.en.json". Locales without an explicit region use
// the most likely one for the language.
func LocaleFile(locale string) (string, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return "", fmt.Errorf("parse locale %q: %w", locale, err)
	}
	region, _ := tag.Region()
	if region.String() == "ZZ" {
		return "", fmt.Errorf("locale %q has no usable region", locale)
	}
	base, _ := tag.Base()
	return strings.ToUpper(region.String()) + "." + strings.ToLower(base.String()) + ".json", nil
}
