package shop

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"depot/internal/archive"
)

// Index is the repository listing served to console clients.
type Index struct {
	Files       []FileEntry `json:"files"`
	Directories []string    `json:"directories"`
	Success     string      `json:"success,omitempty"`
}

// FileEntry is one downloadable file. The URL fragment carries the
// display name the client shows; Size is the file size in bytes.
type FileEntry struct {
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

// DisplayName returns the entry's human-readable name: the URL fragment
// when present, otherwise the last URL path segment.
func (e FileEntry) DisplayName() string {
	parsed, err := url.Parse(e.URL)
	if err != nil {
		return ""
	}
	if parsed.Fragment != "" {
		return parsed.Fragment
	}
	base := path.Base(parsed.Path)
	if base == "." || base == "/" {
		return ""
	}
	return base
}

// TitleID recovers the bracketed title ID from the entry's display
// name. Empty when the name carries no recognizable ID.
func (e FileEntry) TitleID() string {
	return archive.ParseFilename(e.DisplayName()).TitleID
}

// FormatEntryName renders the canonical index name for a package:
// "<name> [<TITLEID>][v<version>]<ext>". Files without a title ID keep
// their plain name so they still appear in the listing.
func FormatEntryName(name, titleID string, version int, ext string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Unknown Title"
	}
	if titleID == "" {
		return name + ext
	}
	return fmt.Sprintf("%s [%s][v%d]%s", name, strings.ToUpper(titleID), version, ext)
}

// EntryURL builds the download URL for a library row, with the display
// name attached as the fragment.
func EntryURL(baseURL string, id int64, displayName string) (string, error) {
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/") + fmt.Sprintf("/files/%d", id))
	if err != nil {
		return "", fmt.Errorf("build entry url: %w", err)
	}
	parsed.Fragment = displayName
	return parsed.String(), nil
}
