package catalog

import "time"

// Title is one catalog entry for a locale, carrying the metadata depot
// serves to shop clients and the web API.
type Title struct {
	RowID           int64
	Locale          string
	TitleID         string
	AltIDs          []string
	NsuID           int64
	Name            string
	Version         int64
	Region          string
	ReleaseDate     int64
	Publisher       string
	Developer       string
	Intro           string
	Description     string
	BannerURL       string
	IconURL         string
	FrontBoxArt     string
	Screenshots     []string
	Categories      []string
	Languages       []string
	Rating          int64
	RatingContent   []string
	NumberOfPlayers int64
	IsDemo          bool
	ContentKey      string
	RightsID        string
	Size            int64
}

// SearchHit pairs a title with its FTS rank. Lower ranks are better
// matches; results are returned already sorted.
type SearchHit struct {
	Title Title
	Rank  float64
}

// ImportStats summarizes one locale import.
type ImportStats struct {
	Imported int
	Skipped  int
}

// ImportRecord describes the last completed import for a locale.
type ImportRecord struct {
	Locale     string
	ImportedAt time.Time
	Entries    int
	Skipped    int
	SourceURL  string
}
