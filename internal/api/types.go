package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// DownloadItem describes a download queue entry in a transport-friendly
// format.
type DownloadItem struct {
	ID            string  `json:"id"`
	URL           string  `json:"url"`
	Source        string  `json:"source"`
	Filename      string  `json:"filename,omitempty"`
	TargetPath    string  `json:"targetPath,omitempty"`
	Status        string  `json:"status"`
	BytesReceived int64   `json:"bytesReceived"`
	TotalBytes    int64   `json:"totalBytes"`
	Percent       float64 `json:"percent"`
	ErrorMessage  string  `json:"errorMessage,omitempty"`
	CreatedAt     string  `json:"createdAt,omitempty"`
	UpdatedAt     string  `json:"updatedAt,omitempty"`
	StartedAt     string  `json:"startedAt,omitempty"`
	CompletedAt   string  `json:"completedAt,omitempty"`
}

// DownloadStats summarizes the download queue by status.
type DownloadStats struct {
	Counts         map[string]int `json:"counts"`
	Total          int            `json:"total"`
	CompletedBytes int64          `json:"completedBytes"`
}

// DownloadListResponse wraps a collection of downloads for API responses.
type DownloadListResponse struct {
	Items []DownloadItem `json:"items"`
}

// DownloadItemResponse wraps a single download.
type DownloadItemResponse struct {
	Item DownloadItem `json:"item"`
}

// DownloadRequest asks the daemon to queue a transfer, either from a
// direct URL or by resolving a reference through a named import
// provider.
type DownloadRequest struct {
	URL      string `json:"url,omitempty"`
	Provider string `json:"provider,omitempty"`
	Ref      string `json:"ref,omitempty"`
}

// CleanupResponse reports how many terminal downloads were removed.
type CleanupResponse struct {
	Removed int64 `json:"removed"`
}

// LibraryEntry is one indexed file with its resolved catalog metadata.
type LibraryEntry struct {
	ID            int64    `json:"id"`
	Path          string   `json:"path"`
	Name          string   `json:"name"`
	TitleID       string   `json:"titleId,omitempty"`
	AltIDs        []string `json:"altIds,omitempty"`
	Version       int      `json:"version"`
	Kind          string   `json:"kind"`
	Extension     string   `json:"extension,omitempty"`
	Size          int64    `json:"size"`
	MatchedLocale string   `json:"matchedLocale,omitempty"`
	MatchedBy     string   `json:"matchedBy,omitempty"`
	Publisher     string   `json:"publisher,omitempty"`
	IconURL       string   `json:"iconUrl,omitempty"`
	ScannedAt     string   `json:"scannedAt,omitempty"`
}

// LibraryListResponse wraps the library listing.
type LibraryListResponse struct {
	Entries []LibraryEntry `json:"entries"`
}

// TitleInfo carries catalog metadata for one title.
type TitleInfo struct {
	TitleID         string   `json:"titleId"`
	Locale          string   `json:"locale,omitempty"`
	Name            string   `json:"name"`
	Version         int64    `json:"version,omitempty"`
	Region          string   `json:"region,omitempty"`
	Publisher       string   `json:"publisher,omitempty"`
	Developer       string   `json:"developer,omitempty"`
	ReleaseDate     int64    `json:"releaseDate,omitempty"`
	Size            int64    `json:"size,omitempty"`
	Intro           string   `json:"intro,omitempty"`
	Description     string   `json:"description,omitempty"`
	BannerURL       string   `json:"bannerUrl,omitempty"`
	IconURL         string   `json:"iconUrl,omitempty"`
	FrontBoxArt     string   `json:"frontBoxArt,omitempty"`
	Screenshots     []string `json:"screenshots,omitempty"`
	Categories      []string `json:"categories,omitempty"`
	Languages       []string `json:"languages,omitempty"`
	Rating          int64    `json:"rating,omitempty"`
	RatingContent   []string `json:"ratingContent,omitempty"`
	NumberOfPlayers int64    `json:"numberOfPlayers,omitempty"`
	IsDemo          bool     `json:"isDemo,omitempty"`
	NsuID           int64    `json:"nsuId,omitempty"`
}

// TitleDetail pairs catalog metadata with the local files that carry it.
type TitleDetail struct {
	Title         TitleInfo      `json:"title"`
	MatchedLocale string         `json:"matchedLocale,omitempty"`
	MatchedBy     string         `json:"matchedBy,omitempty"`
	InLibrary     bool           `json:"inLibrary"`
	Files         []LibraryEntry `json:"files,omitempty"`
}

// SearchResult is one hit from either search scope.
type SearchResult struct {
	TitleID   string `json:"titleId,omitempty"`
	Name      string `json:"name"`
	Locale    string `json:"locale,omitempty"`
	Publisher string `json:"publisher,omitempty"`
	Size      int64  `json:"size,omitempty"`
	InLibrary bool   `json:"inLibrary"`
	FileID    int64  `json:"fileId,omitempty"`
	Path      string `json:"path,omitempty"`
	Kind      string `json:"kind,omitempty"`
}

// SearchResponse wraps search results with the query that produced them.
type SearchResponse struct {
	Query   string         `json:"query"`
	Scope   string         `json:"scope"`
	Results []SearchResult `json:"results"`
}

// ScanFailure records one file a scan could not index.
type ScanFailure struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// ScanSummary reports the outcome of one library scan.
type ScanSummary struct {
	StartedAt       string        `json:"startedAt,omitempty"`
	DurationSeconds float64       `json:"durationSeconds"`
	Scanned         int           `json:"scanned"`
	Added           int           `json:"added"`
	Updated         int           `json:"updated"`
	Unchanged       int           `json:"unchanged"`
	Removed         int           `json:"removed"`
	Failed          int           `json:"failed"`
	Failures        []ScanFailure `json:"failures,omitempty"`
}

// LibraryStats aggregates library contents for status output.
type LibraryStats struct {
	TotalFiles   int            `json:"totalFiles"`
	TotalBytes   int64          `json:"totalBytes"`
	Identified   int            `json:"identified"`
	Unidentified int            `json:"unidentified"`
	ByKind       map[string]int `json:"byKind,omitempty"`
}

// CatalogLocale reports one imported locale.
type CatalogLocale struct {
	Locale     string `json:"locale"`
	Titles     int    `json:"titles"`
	ImportedAt string `json:"importedAt,omitempty"`
	SourceURL  string `json:"sourceUrl,omitempty"`
}

// CatalogStatus summarizes the catalog across locales.
type CatalogStatus struct {
	Locales []CatalogLocale `json:"locales"`
	Titles  int             `json:"titles"`
}

// UpstreamSource reports the mirror state of one upstream shop.
type UpstreamSource struct {
	Source    string `json:"source"`
	Entries   int    `json:"entries"`
	FetchedAt string `json:"fetchedAt,omitempty"`
	LastError string `json:"lastError,omitempty"`
}

// UpstreamListResponse wraps the upstream source states.
type UpstreamListResponse struct {
	Sources []UpstreamSource `json:"sources"`
}

// HealthCheck mirrors one startup check result.
type HealthCheck struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
	Fatal  bool   `json:"fatal"`
}

// HealthReport carries a live round of checks; OK is false only when a
// fatal check failed.
type HealthReport struct {
	OK     bool          `json:"ok"`
	Checks []HealthCheck `json:"checks,omitempty"`
}

// AcceptedResponse acknowledges an operation that continues in the
// background.
type AcceptedResponse struct {
	Status string `json:"status"`
}

// StatusReport aggregates daemon runtime information for API consumers.
type StatusReport struct {
	Running   bool             `json:"running"`
	PID       int              `json:"pid"`
	StartedAt string           `json:"startedAt,omitempty"`
	Scanning  bool             `json:"scanning"`
	Library   LibraryStats     `json:"library"`
	LastScan  *ScanSummary     `json:"lastScan,omitempty"`
	Downloads DownloadStats    `json:"downloads"`
	Catalog   CatalogStatus    `json:"catalog"`
	Upstream  []UpstreamSource `json:"upstream,omitempty"`
	Checks    []HealthCheck    `json:"checks,omitempty"`
}
