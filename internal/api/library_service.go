package api

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"depot/internal/errs"
	"depot/internal/library"
	"depot/internal/resolve"
)

// MinQueryLength is the shortest search query the API accepts.
const MinQueryLength = 2

// ErrQueryTooShort rejects searches below MinQueryLength.
var ErrQueryTooShort = fmt.Errorf("search query must be at least %d characters", MinQueryLength)

// SearchScope selects which corpus a search runs against.
type SearchScope string

const (
	ScopeLibrary SearchScope = "library"
	ScopeCatalog SearchScope = "catalog"
)

// ParseSearchScope validates a user-supplied scope string. The empty
// string means the library.
func ParseSearchScope(value string) (SearchScope, error) {
	switch SearchScope(strings.ToLower(strings.TrimSpace(value))) {
	case "", ScopeLibrary:
		return ScopeLibrary, nil
	case ScopeCatalog:
		return ScopeCatalog, nil
	}
	return "", fmt.Errorf("unknown search scope %q (want library or catalog)", value)
}

// SearchRequest describes one search call.
type SearchRequest struct {
	Query  string
	Scope  SearchScope
	Locale string
	Limit  int
}

// LibraryService exposes library queries returning API DTOs.
type LibraryService struct {
	files    *library.Store
	resolver *resolve.Resolver
}

// NewLibraryService constructs a LibraryService around the store and
// resolver.
func NewLibraryService(files *library.Store, resolver *resolve.Resolver) *LibraryService {
	if files == nil || resolver == nil {
		return nil
	}
	return &LibraryService{files: files, resolver: resolver}
}

// List returns every indexed file with resolved metadata. A non-empty
// locale pins the metadata lookup to that locale instead of the
// configured chain.
func (s *LibraryService) List(ctx context.Context, locale string) ([]LibraryEntry, error) {
	if s == nil {
		return nil, nil
	}
	files, err := s.files.List(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]LibraryEntry, 0, len(files))
	for _, file := range files {
		var resolved *resolve.ResolvedFile
		if locale == "" {
			resolved, err = s.resolver.ResolveFile(ctx, file)
		} else {
			resolved, err = s.resolver.ResolveFileIn(ctx, locale, file)
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, FromResolvedFile(resolved))
	}
	return entries, nil
}

// Stats aggregates library contents.
func (s *LibraryService) Stats(ctx context.Context) (LibraryStats, error) {
	if s == nil {
		return LibraryStats{}, nil
	}
	stats, err := s.files.Stats(ctx)
	if err != nil {
		return LibraryStats{}, err
	}
	return FromLibraryStats(stats), nil
}

// Describe returns catalog metadata for a title ID or numeric catalog ID
// plus the local files that carry it. Unknown IDs with no local files
// yield a not-found error; files without catalog metadata still get a
// minimal detail.
func (s *LibraryService) Describe(ctx context.Context, titleID string) (*TitleDetail, error) {
	if s == nil {
		return nil, nil
	}
	id := strings.ToUpper(strings.TrimSpace(titleID))
	if id == "" {
		return nil, errs.NewNotFound("title", titleID)
	}

	var (
		resolution *resolve.Resolution
		err        error
	)
	if catalogID, ok := parseCatalogID(id); ok {
		resolution, err = s.resolver.ResolveCatalogID(ctx, catalogID)
		if err != nil {
			return nil, err
		}
		if resolution == nil {
			return nil, errs.NewNotFound("title", id)
		}
		id = strings.ToUpper(resolution.Title.TitleID)
	} else {
		resolution, err = s.resolver.Resolve(ctx, id)
		if err != nil {
			return nil, err
		}
	}

	var entries []LibraryEntry
	if id != "" {
		direct, err := s.files.FilesByTitleID(ctx, id)
		if err != nil {
			return nil, err
		}
		alternates, err := s.files.FilesByAltID(ctx, id)
		if err != nil {
			return nil, err
		}

		seen := make(map[int64]struct{}, len(direct)+len(alternates))
		entries = make([]LibraryEntry, 0, len(direct)+len(alternates))
		for _, file := range append(direct, alternates...) {
			if _, dup := seen[file.ID]; dup {
				continue
			}
			seen[file.ID] = struct{}{}
			entries = append(entries, FromLibraryFile(file))
		}
	}

	if resolution == nil && len(entries) == 0 {
		return nil, errs.NewNotFound("title", id)
	}

	detail := &TitleDetail{InLibrary: len(entries) > 0, Files: entries}
	if resolution != nil {
		detail.Title = FromTitle(resolution.Title)
		detail.MatchedLocale = resolution.MatchedLocale
		detail.MatchedBy = string(resolution.MatchedBy)
	} else {
		detail.Title = TitleInfo{TitleID: id, Name: entries[0].Name}
	}
	return detail, nil
}

// parseCatalogID recognizes an all-digit reference as a numeric catalog
// ID. Title IDs are exactly sixteen hex characters, so digit strings of
// any other length cannot be one.
func parseCatalogID(id string) (int64, bool) {
	if len(id) == 16 {
		return 0, false
	}
	value, err := strconv.ParseInt(id, 10, 64)
	if err != nil || value <= 0 {
		return 0, false
	}
	return value, true
}

// Search runs a query against the requested scope.
func (s *LibraryService) Search(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	if s == nil {
		return SearchResponse{}, nil
	}
	query := strings.TrimSpace(req.Query)
	if len(query) < MinQueryLength {
		return SearchResponse{}, ErrQueryTooShort
	}
	scope := req.Scope
	if scope == "" {
		scope = ScopeLibrary
	}

	response := SearchResponse{Query: query, Scope: string(scope)}
	switch scope {
	case ScopeLibrary:
		hits, err := s.resolver.SearchLibraryIn(ctx, req.Locale, query, req.Limit)
		if err != nil {
			return SearchResponse{}, err
		}
		response.Results = FromLibraryHits(hits)
	case ScopeCatalog:
		hits, err := s.resolver.SearchCatalogIn(ctx, req.Locale, query, req.Limit)
		if err != nil {
			return SearchResponse{}, err
		}
		response.Results = FromCatalogHits(hits)
	default:
		return SearchResponse{}, errors.New("unknown search scope " + string(scope))
	}
	return response, nil
}
