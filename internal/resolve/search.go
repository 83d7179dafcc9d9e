package resolve

import (
	"context"

	"depot/internal/catalog"
	"depot/internal/library"
)

// LibraryHit is one search result over the local library. Catalog-ranked
// matches carry the FTS rank; files matched only by their own name have
// no rank and sort after them.
type LibraryHit struct {
	File        *library.File
	Title       *catalog.Title
	Rank        float64
	DisplayName string
}

// CatalogHit is one catalog search result annotated with whether the
// library already holds a file for it.
type CatalogHit struct {
	catalog.SearchHit
	InLibrary bool
}

// SearchLibrary finds local files matching a query: catalog metadata
// search first (ranked), then a name match over files the catalog does
// not know. Results are deduplicated by file.
func (r *Resolver) SearchLibrary(ctx context.Context, query string, limit int) ([]LibraryHit, error) {
	return r.SearchLibraryIn(ctx, "", query, limit)
}

// SearchLibraryIn runs SearchLibrary against a specific catalog locale.
// An empty locale means the primary one.
func (r *Resolver) SearchLibraryIn(ctx context.Context, locale, query string, limit int) ([]LibraryHit, error) {
	if limit <= 0 {
		limit = 50
	}
	if locale == "" {
		locale = r.primaryLocale()
	}

	catalogHits, err := r.catalog.Search(ctx, locale, query, limit)
	if err != nil {
		return nil, err
	}

	var (
		hits []LibraryHit
		seen = make(map[int64]struct{})
	)
	for _, hit := range catalogHits {
		files, err := r.localFilesFor(ctx, hit.Title)
		if err != nil {
			return nil, err
		}
		for _, file := range files {
			if _, dup := seen[file.ID]; dup {
				continue
			}
			seen[file.ID] = struct{}{}
			title := hit.Title
			name := title.Name
			if name == "" {
				name = file.DisplayName
			}
			hits = append(hits, LibraryHit{File: file, Title: &title, Rank: hit.Rank, DisplayName: name})
			if len(hits) >= limit {
				return hits, nil
			}
		}
	}

	nameHits, err := r.library.SearchByName(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	for _, file := range nameHits {
		if _, dup := seen[file.ID]; dup {
			continue
		}
		seen[file.ID] = struct{}{}
		hits = append(hits, LibraryHit{File: file, DisplayName: file.DisplayName})
		if len(hits) >= limit {
			break
		}
	}
	return hits, nil
}

// localFilesFor gathers library files claimed by a catalog title: files
// indexed under its ID, its alternate IDs, or carrying its ID as an
// alternate.
func (r *Resolver) localFilesFor(ctx context.Context, title catalog.Title) ([]*library.File, error) {
	var (
		files []*library.File
		seen  = make(map[int64]struct{})
	)
	appendFiles := func(found []*library.File) {
		for _, file := range found {
			if _, dup := seen[file.ID]; dup {
				continue
			}
			seen[file.ID] = struct{}{}
			files = append(files, file)
		}
	}

	ids := append([]string{title.TitleID}, title.AltIDs...)
	for _, id := range ids {
		byTitle, err := r.library.FilesByTitleID(ctx, id)
		if err != nil {
			return nil, err
		}
		appendFiles(byTitle)

		byAlt, err := r.library.FilesByAltID(ctx, id)
		if err != nil {
			return nil, err
		}
		appendFiles(byAlt)
	}
	return files, nil
}

// SearchCatalog runs a ranked catalog search on the primary locale and
// marks which results the library already holds.
func (r *Resolver) SearchCatalog(ctx context.Context, query string, limit int) ([]CatalogHit, error) {
	return r.SearchCatalogIn(ctx, "", query, limit)
}

// SearchCatalogIn runs SearchCatalog against a specific catalog locale.
// An empty locale means the primary one.
func (r *Resolver) SearchCatalogIn(ctx context.Context, locale, query string, limit int) ([]CatalogHit, error) {
	if locale == "" {
		locale = r.primaryLocale()
	}
	hits, err := r.catalog.Search(ctx, locale, query, limit)
	if err != nil {
		return nil, err
	}

	results := make([]CatalogHit, 0, len(hits))
	for _, hit := range hits {
		files, err := r.localFilesFor(ctx, hit.Title)
		if err != nil {
			return nil, err
		}
		results = append(results, CatalogHit{SearchHit: hit, InLibrary: len(files) > 0})
	}
	return results, nil
}

func (r *Resolver) primaryLocale() string {
	if len(r.locales) == 0 {
		return "en-US"
	}
	return r.locales[0]
}
