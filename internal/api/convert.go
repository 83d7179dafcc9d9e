package api

import (
	"time"

	"depot/internal/catalog"
	"depot/internal/downloads"
	"depot/internal/library"
	"depot/internal/resolve"
	"depot/internal/upstream"
)

// FromDownloadItem converts a queue record to its API representation.
func FromDownloadItem(item *downloads.Item) DownloadItem {
	if item == nil {
		return DownloadItem{}
	}

	dto := DownloadItem{
		ID:            item.ID,
		URL:           item.URL,
		Source:        item.Source,
		Filename:      item.Filename,
		TargetPath:    item.TargetPath,
		Status:        string(item.Status),
		BytesReceived: item.BytesReceived,
		TotalBytes:    item.TotalBytes,
		Percent:       downloadPercent(item),
		ErrorMessage:  item.ErrorMessage,
		CreatedAt:     FormatTime(item.CreatedAt),
		UpdatedAt:     FormatTime(item.UpdatedAt),
	}
	if item.StartedAt != nil {
		dto.StartedAt = FormatTime(*item.StartedAt)
	}
	if item.CompletedAt != nil {
		dto.CompletedAt = FormatTime(*item.CompletedAt)
	}
	return dto
}

// FromDownloadItems converts a slice of queue records into API DTOs.
func FromDownloadItems(items []*downloads.Item) []DownloadItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]DownloadItem, 0, len(items))
	for _, item := range items {
		out = append(out, FromDownloadItem(item))
	}
	return out
}

func downloadPercent(item *downloads.Item) float64 {
	if item.Status == downloads.StatusCompleted {
		return 100
	}
	if item.TotalBytes <= 0 {
		return 0
	}
	percent := float64(item.BytesReceived) / float64(item.TotalBytes) * 100
	if percent > 100 {
		percent = 100
	}
	return percent
}

// FromDownloadStats converts queue stats to a string-keyed payload.
func FromDownloadStats(stats downloads.Stats) DownloadStats {
	counts := make(map[string]int, len(stats.ByStatus))
	for status, count := range stats.ByStatus {
		counts[string(status)] = count
	}
	return DownloadStats{
		Counts:         counts,
		Total:          stats.Total,
		CompletedBytes: stats.CompletedBytes,
	}
}

// FromResolvedFile converts a resolved library file to its API
// representation. The catalog name wins over the filename-derived one.
func FromResolvedFile(resolved *resolve.ResolvedFile) LibraryEntry {
	if resolved == nil || resolved.File == nil {
		return LibraryEntry{}
	}
	entry := FromLibraryFile(resolved.File)
	if resolved.DisplayName != "" {
		entry.Name = resolved.DisplayName
	}
	entry.MatchedLocale = resolved.MatchedLocale
	entry.MatchedBy = string(resolved.MatchedBy)
	if resolved.Title != nil {
		entry.Publisher = resolved.Title.Publisher
		entry.IconURL = resolved.Title.IconURL
	}
	return entry
}

// FromLibraryFile converts a library record without catalog metadata.
func FromLibraryFile(file *library.File) LibraryEntry {
	if file == nil {
		return LibraryEntry{}
	}
	return LibraryEntry{
		ID:        file.ID,
		Path:      file.Path,
		Name:      file.DisplayName,
		TitleID:   file.TitleID,
		AltIDs:    append([]string(nil), file.AltIDs...),
		Version:   file.Version,
		Kind:      string(file.Kind),
		Extension: file.Extension,
		Size:      file.Size,
		ScannedAt: FormatTime(file.ScannedAt),
	}
}

// FromTitle converts a catalog record to its API representation.
func FromTitle(title catalog.Title) TitleInfo {
	return TitleInfo{
		TitleID:         title.TitleID,
		Locale:          title.Locale,
		Name:            title.Name,
		Version:         title.Version,
		Region:          title.Region,
		Publisher:       title.Publisher,
		Developer:       title.Developer,
		ReleaseDate:     title.ReleaseDate,
		Size:            title.Size,
		Intro:           title.Intro,
		Description:     title.Description,
		BannerURL:       title.BannerURL,
		IconURL:         title.IconURL,
		FrontBoxArt:     title.FrontBoxArt,
		Screenshots:     append([]string(nil), title.Screenshots...),
		Categories:      append([]string(nil), title.Categories...),
		Languages:       append([]string(nil), title.Languages...),
		Rating:          title.Rating,
		RatingContent:   append([]string(nil), title.RatingContent...),
		NumberOfPlayers: title.NumberOfPlayers,
		IsDemo:          title.IsDemo,
		NsuID:           title.NsuID,
	}
}

// FromScanSummary converts a scan summary to API payload.
func FromScanSummary(summary *library.ScanSummary) *ScanSummary {
	if summary == nil {
		return nil
	}
	dto := &ScanSummary{
		StartedAt:       FormatTime(summary.StartedAt),
		DurationSeconds: summary.Duration.Seconds(),
		Scanned:         summary.Scanned,
		Added:           summary.Added,
		Updated:         summary.Updated,
		Unchanged:       summary.Unchanged,
		Removed:         summary.Removed,
		Failed:          summary.Failed,
	}
	for _, failure := range summary.Failures {
		dto.Failures = append(dto.Failures, ScanFailure{Path: failure.Path, Reason: failure.Reason})
	}
	return dto
}

// FromLibraryStats converts library stats to API payload.
func FromLibraryStats(stats library.Stats) LibraryStats {
	byKind := make(map[string]int, len(stats.ByKind))
	for kind, count := range stats.ByKind {
		byKind[kind] = count
	}
	return LibraryStats{
		TotalFiles:   stats.TotalFiles,
		TotalBytes:   stats.TotalBytes,
		Identified:   stats.Identified,
		Unidentified: stats.Unidentified,
		ByKind:       byKind,
	}
}

// FromSourceStatuses converts upstream source states to API payload.
func FromSourceStatuses(statuses []upstream.SourceStatus) []UpstreamSource {
	if len(statuses) == 0 {
		return nil
	}
	out := make([]UpstreamSource, 0, len(statuses))
	for _, status := range statuses {
		source := UpstreamSource{
			Source:    status.Source,
			Entries:   status.Entries,
			LastError: status.LastError,
		}
		if status.FetchedAt != nil {
			source.FetchedAt = FormatTime(*status.FetchedAt)
		}
		out = append(out, source)
	}
	return out
}

// FromLibraryHits converts library search hits into API DTOs.
func FromLibraryHits(hits []resolve.LibraryHit) []SearchResult {
	if len(hits) == 0 {
		return nil
	}
	out := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		result := SearchResult{
			Name:      hit.DisplayName,
			InLibrary: true,
		}
		if hit.File != nil {
			result.TitleID = hit.File.TitleID
			result.Size = hit.File.Size
			result.FileID = hit.File.ID
			result.Path = hit.File.Path
			result.Kind = string(hit.File.Kind)
		}
		if hit.Title != nil {
			result.Locale = hit.Title.Locale
			result.Publisher = hit.Title.Publisher
			if result.TitleID == "" {
				result.TitleID = hit.Title.TitleID
			}
		}
		out = append(out, result)
	}
	return out
}

// FromCatalogHits converts catalog search hits into API DTOs.
func FromCatalogHits(hits []resolve.CatalogHit) []SearchResult {
	if len(hits) == 0 {
		return nil
	}
	out := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		out = append(out, SearchResult{
			TitleID:   hit.Title.TitleID,
			Name:      hit.Title.Name,
			Locale:    hit.Title.Locale,
			Publisher: hit.Title.Publisher,
			Size:      hit.Title.Size,
			InLibrary: hit.InLibrary,
		})
	}
	return out
}

// FormatTime converts a time to RFC3339 or returns empty string.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
