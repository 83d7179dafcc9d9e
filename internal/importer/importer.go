// Package importer resolves acquisition references into download
// requests. A provider turns a provider-specific reference (a direct
// URL, a shop title ID) into one or more concrete URLs; the service
// feeds those to the download queue, which treats every source the
// same way.
package importer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"depot/internal/config"
	"depot/internal/downloads"
	"depot/internal/errs"
	"depot/internal/logging"
)

// Provider resolves a reference into download requests.
type Provider interface {
	// Name is the identifier callers use to select this provider.
	Name() string
	// Resolve maps ref to the downloads it stands for.
	Resolve(ctx context.Context, ref string) ([]downloads.Request, error)
}

// Registry holds the configured providers by name.
type Registry struct {
	providers map[string]Provider
	order     []string
}

// NewRegistry builds a registry over the given providers. Later
// providers with a repeated name replace earlier ones.
func NewRegistry(providers ...Provider) *Registry {
	registry := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, provider := range providers {
		name := strings.ToLower(provider.Name())
		if _, exists := registry.providers[name]; !exists {
			registry.order = append(registry.order, name)
		}
		registry.providers[name] = provider
	}
	return registry
}

// DefaultRegistry wires the standard provider set: the direct URL
// provider, plus the shop provider when an endpoint is configured.
func DefaultRegistry(cfg *config.Config, logger *slog.Logger) *Registry {
	providers := []Provider{NewURLProvider(cfg, logger)}
	if cfg.Import.ShopURL != "" {
		providers = append(providers, NewShopProvider(cfg, logger))
	}
	return NewRegistry(providers...)
}

// Get returns the named provider.
func (r *Registry) Get(name string) (Provider, error) {
	provider, ok := r.providers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, errs.NewNotFound("import provider", name)
	}
	return provider, nil
}

// Names lists the registered providers in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Service resolves references through the registry and enqueues the
// resulting downloads.
type Service struct {
	registry *Registry
	store    *downloads.Store
	logger   *slog.Logger
}

// NewService wires the import service.
func NewService(registry *Registry, store *downloads.Store, logger *slog.Logger) *Service {
	return &Service{
		registry: registry,
		store:    store,
		logger:   logging.NewComponentLogger(logger, "importer"),
	}
}

// Import resolves ref with the named provider and enqueues every
// resulting download. Items queued before a failing insert stay queued.
func (s *Service) Import(ctx context.Context, provider, ref string) ([]*downloads.Item, error) {
	resolved, err := s.registry.Get(provider)
	if err != nil {
		return nil, err
	}

	requests, err := resolved.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	if len(requests) == 0 {
		return nil, errs.NewNotFound("downloadable content", ref)
	}

	source := "import:" + resolved.Name()
	items := make([]*downloads.Item, 0, len(requests))
	for _, request := range requests {
		item, err := s.store.Enqueue(ctx, request, source)
		if err != nil {
			return items, fmt.Errorf("enqueue %s: %w", request.URL, err)
		}
		items = append(items, item)
	}

	s.logger.Info("import resolved",
		logging.String("provider", resolved.Name()),
		logging.String("ref", ref),
		logging.Int("downloads", len(items)))
	return items, nil
}
