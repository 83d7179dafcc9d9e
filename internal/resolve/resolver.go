package resolve

import (
	"context"
	"strings"

	"depot/internal/catalog"
	"depot/internal/config"
	"depot/internal/library"
)

// MatchKind records which rule produced a resolution.
type MatchKind string

const (
	MatchExact        MatchKind = "exact"
	MatchAlternate    MatchKind = "alternate"
	MatchBaseOfUpdate MatchKind = "base_of_update"
	MatchCatalogID    MatchKind = "catalog_id"
)

// updateNameSuffix is appended when an update ID resolves via its base
// title, whose catalog name describes the base game.
const updateNameSuffix = " (Update)"

// Resolution is a catalog match for a title ID, with provenance.
type Resolution struct {
	Title         catalog.Title
	MatchedLocale string
	MatchedBy     MatchKind
}

// ResolvedFile pairs a library file with its catalog match, if any.
type ResolvedFile struct {
	File          *library.File
	Title         *catalog.Title
	MatchedLocale string
	MatchedBy     MatchKind
	DisplayName   string
}

// Resolver looks up catalog metadata for title IDs across locales.
type Resolver struct {
	catalog      *catalog.Store
	library      *library.Store
	locales      []string
	updateSuffix string
	baseSuffix   string
	normalizeIDs bool
}

// NewResolver builds a Resolver over the two stores using the catalog
// configuration for locale order and update ID normalization.
func NewResolver(catalogStore *catalog.Store, libraryStore *library.Store, cfg *config.Config) *Resolver {
	return &Resolver{
		catalog:      catalogStore,
		library:      libraryStore,
		locales:      cfg.Locales(),
		updateSuffix: strings.ToUpper(cfg.Catalog.UpdateSuffix),
		baseSuffix:   strings.ToUpper(cfg.Catalog.BaseSuffix),
		normalizeIDs: cfg.Catalog.NormalizeUpdateIDs,
	}
}

// Resolve finds catalog metadata for a title ID, trying each configured
// locale in order. It returns nil without error when nothing matches.
func (r *Resolver) Resolve(ctx context.Context, titleID string) (*Resolution, error) {
	id := strings.ToUpper(strings.TrimSpace(titleID))
	if id == "" {
		return nil, nil
	}
	for _, locale := range r.locales {
		resolution, err := r.resolveInLocale(ctx, locale, id)
		if err != nil {
			return nil, err
		}
		if resolution != nil {
			return resolution, nil
		}
	}
	return nil, nil
}

// ResolveCatalogID finds catalog metadata for a numeric catalog ID,
// trying each configured locale in order.
func (r *Resolver) ResolveCatalogID(ctx context.Context, catalogID int64) (*Resolution, error) {
	if catalogID <= 0 {
		return nil, nil
	}
	for _, locale := range r.locales {
		title, err := r.catalog.GetByCatalogID(ctx, locale, catalogID)
		if err != nil {
			return nil, err
		}
		if title != nil {
			return &Resolution{Title: *title, MatchedLocale: locale, MatchedBy: MatchCatalogID}, nil
		}
	}
	return nil, nil
}

func (r *Resolver) resolveInLocale(ctx context.Context, locale, id string) (*Resolution, error) {
	title, err := r.catalog.GetByTitleID(ctx, locale, id)
	if err != nil {
		return nil, err
	}
	if title != nil {
		return &Resolution{Title: *title, MatchedLocale: locale, MatchedBy: MatchExact}, nil
	}

	title, err = r.catalog.GetByAlternateID(ctx, locale, id)
	if err != nil {
		return nil, err
	}
	if title != nil {
		return &Resolution{Title: *title, MatchedLocale: locale, MatchedBy: MatchAlternate}, nil
	}

	baseID, ok := r.baseIDFor(id)
	if !ok {
		return nil, nil
	}
	title, err = r.catalog.GetByTitleID(ctx, locale, baseID)
	if err != nil {
		return nil, err
	}
	if title == nil {
		title, err = r.catalog.GetByAlternateID(ctx, locale, baseID)
		if err != nil {
			return nil, err
		}
	}
	if title == nil {
		return nil, nil
	}

	resolution := &Resolution{Title: *title, MatchedLocale: locale, MatchedBy: MatchBaseOfUpdate}
	if resolution.Title.Name != "" && !strings.HasSuffix(resolution.Title.Name, updateNameSuffix) {
		resolution.Title.Name += updateNameSuffix
	}
	return resolution, nil
}

// baseIDFor maps an update ID to its base title ID.
func (r *Resolver) baseIDFor(id string) (string, bool) {
	if !r.normalizeIDs {
		return "", false
	}
	if len(id) <= len(r.updateSuffix) || !strings.HasSuffix(id, r.updateSuffix) {
		return "", false
	}
	return id[:len(id)-len(r.updateSuffix)] + r.baseSuffix, true
}

// ResolveFile resolves a library file through its title ID, falling back
// to its alternate IDs. The display name prefers the catalog name and
// falls back to the name derived from the file itself.
func (r *Resolver) ResolveFile(ctx context.Context, file *library.File) (*ResolvedFile, error) {
	return r.resolveFileWith(ctx, file, r.Resolve)
}

// ResolveFileIn matches like ResolveFile but reads metadata from a single
// locale instead of the configured chain.
func (r *Resolver) ResolveFileIn(ctx context.Context, locale string, file *library.File) (*ResolvedFile, error) {
	return r.resolveFileWith(ctx, file, func(ctx context.Context, titleID string) (*Resolution, error) {
		id := strings.ToUpper(strings.TrimSpace(titleID))
		if id == "" {
			return nil, nil
		}
		return r.resolveInLocale(ctx, locale, id)
	})
}

func (r *Resolver) resolveFileWith(ctx context.Context, file *library.File, lookup func(context.Context, string) (*Resolution, error)) (*ResolvedFile, error) {
	resolved := &ResolvedFile{File: file, DisplayName: file.DisplayName}

	candidates := make([]string, 0, 1+len(file.AltIDs))
	if file.TitleID != "" {
		candidates = append(candidates, file.TitleID)
	}
	candidates = append(candidates, file.AltIDs...)

	for _, id := range candidates {
		resolution, err := lookup(ctx, id)
		if err != nil {
			return nil, err
		}
		if resolution == nil {
			continue
		}
		title := resolution.Title
		resolved.Title = &title
		resolved.MatchedLocale = resolution.MatchedLocale
		resolved.MatchedBy = resolution.MatchedBy
		if title.Name != "" {
			resolved.DisplayName = title.Name
		}
		break
	}
	return resolved, nil
}
