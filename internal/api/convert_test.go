package api

import (
	"strings"
	"testing"
	"time"

	"depot/internal/archive"
	"depot/internal/catalog"
	"depot/internal/downloads"
	"depot/internal/library"
	"depot/internal/resolve"
	"depot/internal/upstream"
)

func TestFromDownloadItemDerivesPercent(t *testing.T) {
	cases := []struct {
		name     string
		status   downloads.Status
		received int64
		total    int64
		want     float64
	}{
		{"midway", downloads.StatusDownloading, 50, 200, 25},
		{"unknown total", downloads.StatusDownloading, 50, 0, 0},
		{"completed without total", downloads.StatusCompleted, 10, 0, 100},
		{"overshoot capped", downloads.StatusDownloading, 500, 400, 100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dto := FromDownloadItem(&downloads.Item{
				Status:        tc.status,
				BytesReceived: tc.received,
				TotalBytes:    tc.total,
			})
			if dto.Percent != tc.want {
				t.Fatalf("percent: got %v, want %v", dto.Percent, tc.want)
			}
		})
	}
}

func TestFromDownloadItemFormatsTimestamps(t *testing.T) {
	started := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	item := &downloads.Item{
		ID:        "dl-1",
		Status:    downloads.StatusDownloading,
		CreatedAt: started,
		UpdatedAt: started.Add(time.Minute),
		StartedAt: &started,
	}
	dto := FromDownloadItem(item)
	if dto.CreatedAt != "2024-03-01T12:30:00.000Z" {
		t.Fatalf("unexpected createdAt %q", dto.CreatedAt)
	}
	if dto.StartedAt == "" || dto.CompletedAt != "" {
		t.Fatalf("unexpected start/complete: %q %q", dto.StartedAt, dto.CompletedAt)
	}

	zero := FromDownloadItem(&downloads.Item{ID: "dl-2"})
	if zero.CreatedAt != "" || zero.UpdatedAt != "" {
		t.Fatalf("zero times should format empty, got %q %q", zero.CreatedAt, zero.UpdatedAt)
	}
}

func TestFromResolvedFilePrefersCatalogName(t *testing.T) {
	file := &library.File{
		ID:          3,
		Path:        "/roms/sample.nsp",
		Size:        2048,
		TitleID:     "0100ABCD00000000",
		DisplayName: "sample",
		Kind:        archive.KindBase,
	}
	title := &catalog.Title{TitleID: "0100ABCD00000000", Name: "Sample Quest", Publisher: "Example", IconURL: "https://img.example/icon.png"}
	entry := FromResolvedFile(&resolve.ResolvedFile{
		File:          file,
		Title:         title,
		MatchedLocale: "en-US",
		MatchedBy:     resolve.MatchExact,
		DisplayName:   "Sample Quest",
	})
	if entry.Name != "Sample Quest" {
		t.Fatalf("unexpected name %q", entry.Name)
	}
	if entry.MatchedLocale != "en-US" || entry.MatchedBy != "exact" {
		t.Fatalf("unexpected provenance: %q %q", entry.MatchedLocale, entry.MatchedBy)
	}
	if entry.Publisher != "Example" || entry.IconURL == "" {
		t.Fatalf("catalog fields missing: %+v", entry)
	}

	bare := FromResolvedFile(&resolve.ResolvedFile{File: file, DisplayName: "sample"})
	if bare.Name != "sample" || bare.Publisher != "" {
		t.Fatalf("unresolved entry should keep file name: %+v", bare)
	}
}

func TestFromScanSummaryCollectsFailures(t *testing.T) {
	summary := &library.ScanSummary{
		StartedAt: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
		Duration:  1500 * time.Millisecond,
		Scanned:   10,
		Added:     2,
		Failed:    1,
		Failures:  []library.ScanFailure{{Path: "/roms/bad.nsp", Reason: "decode corrupt.nsp: bad magic"}},
	}
	dto := FromScanSummary(summary)
	if dto.DurationSeconds != 1.5 {
		t.Fatalf("unexpected duration %v", dto.DurationSeconds)
	}
	if len(dto.Failures) != 1 || !strings.Contains(dto.Failures[0].Reason, "bad magic") {
		t.Fatalf("unexpected failures: %+v", dto.Failures)
	}
	if FromScanSummary(nil) != nil {
		t.Fatal("nil summary should convert to nil")
	}
}

func TestFromSourceStatuses(t *testing.T) {
	fetched := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	sources := FromSourceStatuses([]upstream.SourceStatus{
		{Source: "https://one.example/shop.json", Entries: 12, FetchedAt: &fetched},
		{Source: "https://two.example/shop.json", LastError: "status 502"},
	})
	if len(sources) != 2 {
		t.Fatalf("unexpected source count: %d", len(sources))
	}
	if sources[0].FetchedAt == "" || sources[0].LastError != "" {
		t.Fatalf("unexpected healthy source: %+v", sources[0])
	}
	if sources[1].FetchedAt != "" || sources[1].LastError != "status 502" {
		t.Fatalf("unexpected failed source: %+v", sources[1])
	}
}

func TestFormatTime(t *testing.T) {
	if got := FormatTime(time.Time{}); got != "" {
		t.Fatalf("zero time should format empty, got %q", got)
	}
	stamp := time.Date(2024, 3, 1, 12, 0, 0, 250e6, time.UTC)
	if got := FormatTime(stamp); got != "2024-03-01T12:00:00.250Z" {
		t.Fatalf("unexpected format %q", got)
	}
}
