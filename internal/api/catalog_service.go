package api

import (
	"context"
	"slices"

	"depot/internal/catalog"
)

// CatalogService exposes catalog summaries returning API DTOs.
type CatalogService struct {
	store *catalog.Store
}

// NewCatalogService constructs a CatalogService around the store.
func NewCatalogService(store *catalog.Store) *CatalogService {
	if store == nil {
		return nil
	}
	return &CatalogService{store: store}
}

// Status reports per-locale title counts and import provenance in a
// deterministic order.
func (s *CatalogService) Status(ctx context.Context) (CatalogStatus, error) {
	if s == nil || s.store == nil {
		return CatalogStatus{}, nil
	}
	counts, err := s.store.CountByLocale(ctx)
	if err != nil {
		return CatalogStatus{}, err
	}
	records, err := s.store.ImportRecords(ctx)
	if err != nil {
		return CatalogStatus{}, err
	}

	byLocale := make(map[string]catalog.ImportRecord, len(records))
	for _, record := range records {
		byLocale[record.Locale] = record
	}

	locales := make([]string, 0, len(counts))
	for locale := range counts {
		locales = append(locales, locale)
	}
	for locale := range byLocale {
		if _, ok := counts[locale]; !ok {
			locales = append(locales, locale)
		}
	}
	slices.Sort(locales)

	status := CatalogStatus{}
	for _, locale := range locales {
		entry := CatalogLocale{Locale: locale, Titles: counts[locale]}
		if record, ok := byLocale[locale]; ok {
			entry.ImportedAt = FormatTime(record.ImportedAt)
			entry.SourceURL = record.SourceURL
		}
		status.Titles += entry.Titles
		status.Locales = append(status.Locales, entry)
	}
	return status, nil
}

// Describe fetches one catalog title in one locale, or nil when the
// locale does not carry it.
func (s *CatalogService) Describe(ctx context.Context, locale, titleID string) (*TitleInfo, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	title, err := s.store.GetByTitleID(ctx, locale, titleID)
	if err != nil || title == nil {
		return nil, err
	}
	info := FromTitle(*title)
	return &info, nil
}
