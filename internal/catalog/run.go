package catalog

import (
	"context"
	"time"

	"depot/internal/logging"
)

// TriggerRefresh requests an out-of-schedule refresh of every configured
// locale. Requests arriving while a refresh is already running collapse
// into a single follow-up run.
func (r *Refresher) TriggerRefresh() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Run refreshes on a fixed interval and on demand until ctx is cancelled.
// An empty catalog is populated right away; a populated one keeps serving
// the existing import until the first tick, so restarts do not re-download
// the locale files.
func (r *Refresher) Run(ctx context.Context) {
	if r.baseURL == "" {
		r.logger.Debug("no catalog base url configured")
		return
	}

	r.logger.Info("catalog refresh scheduler started",
		logging.Int("locales", len(r.locales)),
		logging.Duration("interval", r.interval))

	counts, err := r.store.CountByLocale(ctx)
	switch {
	case err != nil:
		r.logger.Warn("catalog count failed", logging.Error(err))
	case counts[r.primary] == 0:
		r.runOnce(ctx)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-r.trigger:
		}
		r.runOnce(ctx)
	}
}

func (r *Refresher) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := r.Refresh(ctx); err != nil {
		r.logger.Warn("catalog refresh round failed", logging.Error(err))
	}
}
