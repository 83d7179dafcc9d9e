package library

import (
	"time"

	"depot/internal/archive"
)

// File is one indexed package in the rom directory.
type File struct {
	ID          int64
	Path        string
	Size        int64
	ModTime     time.Time
	TitleID     string
	AltIDs      []string
	DisplayName string
	Version     int
	Kind        archive.Kind
	Extension   string
	ScannedAt   time.Time
	UpdatedAt   time.Time
}

// Identified reports whether the inspector derived a title ID for the file.
func (f *File) Identified() bool {
	return f != nil && f.TitleID != ""
}

// ScanFailure records one file the scanner could not index.
type ScanFailure struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// ScanSummary reports the outcome of one library scan.
type ScanSummary struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Scanned   int           `json:"scanned"`
	Added     int           `json:"added"`
	Updated   int           `json:"updated"`
	Unchanged int           `json:"unchanged"`
	Removed   int           `json:"removed"`
	Failed    int           `json:"failed"`
	Failures  []ScanFailure `json:"failures,omitempty"`
}

// Stats aggregates library contents for status output.
type Stats struct {
	TotalFiles   int            `json:"total_files"`
	TotalBytes   int64          `json:"total_bytes"`
	Identified   int            `json:"identified"`
	Unidentified int            `json:"unidentified"`
	ByKind       map[string]int `json:"by_kind"`
}
