package upstream

import (
	"context"
	"time"

	"depot/internal/logging"
)

// TriggerSync requests an out-of-schedule sync. Requests arriving while
// a sync is already running collapse into a single follow-up run.
func (m *Manager) TriggerSync() {
	select {
	case m.trigger <- struct{}{}:
	default:
	}
}

// Run syncs on a fixed interval and on demand until ctx is cancelled.
// It returns immediately when no sources are configured.
func (m *Manager) Run(ctx context.Context) {
	if len(m.sources) == 0 {
		m.logger.Debug("no upstream sources configured")
		return
	}

	m.logger.Info("upstream sync scheduler started",
		logging.Int("sources", len(m.sources)),
		logging.Duration("interval", m.interval))

	// First sync happens right away so the index has foreign entries
	// before the first tick.
	m.runOnce(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-m.trigger:
		}
		m.runOnce(ctx)
	}
}

func (m *Manager) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := m.Sync(ctx); err != nil {
		m.logger.Warn("upstream sync round failed", logging.Error(err))
	}
}
