package shop

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"depot/internal/library"
	"depot/internal/logging"
	"depot/internal/resolve"
)

// Builder assembles the published index from the local library and the
// mirrored upstream entries.
type Builder struct {
	library  *library.Store
	resolver *resolve.Resolver
	foreign  func() []FileEntry
	logger   *slog.Logger
}

// NewBuilder wires an index builder. foreign supplies mirrored upstream
// entries and may be nil when no upstream sources are configured.
func NewBuilder(libraryStore *library.Store, resolver *resolve.Resolver, foreign func() []FileEntry, logger *slog.Logger) *Builder {
	return &Builder{
		library:  libraryStore,
		resolver: resolver,
		foreign:  foreign,
		logger:   logging.NewComponentLogger(logger, "shop"),
	}
}

// Build renders the index for clients reaching the server at baseURL.
// Local entries come first; upstream entries follow, minus any title
// the library already has.
func (b *Builder) Build(ctx context.Context, baseURL string) (*Index, error) {
	files, err := b.library.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}

	index := &Index{Files: []FileEntry{}, Directories: []string{}}
	claimed := make(map[string]struct{})
	seenURLs := make(map[string]struct{})

	for _, file := range files {
		resolved, err := b.resolver.ResolveFile(ctx, file)
		if err != nil {
			return nil, fmt.Errorf("build index: %w", err)
		}
		name := FormatEntryName(resolved.DisplayName, file.TitleID, file.Version, file.Extension)
		entryURL, err := EntryURL(baseURL, file.ID, name)
		if err != nil {
			return nil, fmt.Errorf("build index: %w", err)
		}
		index.Files = append(index.Files, FileEntry{URL: entryURL, Size: file.Size})
		if file.TitleID != "" {
			claimed[file.TitleID] = struct{}{}
		}
		for _, alt := range file.AltIDs {
			claimed[alt] = struct{}{}
		}
		// The catalog match claims its whole ID set, so upstream copies
		// listed under an alternate ID are filtered too.
		if resolved.Title != nil {
			claimed[resolved.Title.TitleID] = struct{}{}
			for _, alt := range resolved.Title.AltIDs {
				claimed[alt] = struct{}{}
			}
		}
	}
	sortEntries(index.Files)
	localCount := len(index.Files)

	var foreign []FileEntry
	if b.foreign != nil {
		foreign = b.foreign()
	}
	mirrored := make([]FileEntry, 0, len(foreign))
	for _, entry := range foreign {
		if entry.URL == "" {
			continue
		}
		if _, ok := seenURLs[entry.URL]; ok {
			continue
		}
		seenURLs[entry.URL] = struct{}{}
		if id := entry.TitleID(); id != "" {
			if _, ok := claimed[id]; ok {
				continue
			}
			claimed[id] = struct{}{}
		}
		mirrored = append(mirrored, entry)
	}
	sortEntries(mirrored)
	index.Files = append(index.Files, mirrored...)

	index.Success = fmt.Sprintf("Serving %d titles (%d local, %d upstream)",
		len(index.Files), localCount, len(mirrored))
	b.logger.Debug("index built",
		logging.Int("local", localCount),
		logging.Int("upstream", len(mirrored)))
	return index, nil
}

// sortEntries orders entries by display name, then URL for stability.
func sortEntries(entries []FileEntry) {
	sort.Slice(entries, func(i, j int) bool {
		left := strings.ToLower(entries[i].DisplayName())
		right := strings.ToLower(entries[j].DisplayName())
		if left != right {
			return left < right
		}
		return entries[i].URL < entries[j].URL
	})
}
