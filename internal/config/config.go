package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and key material locations.
type Paths struct {
	RomDir     string `toml:"rom_dir"`
	DataDir    string `toml:"data_dir"`
	StagingDir string `toml:"staging_dir"`
	LogDir     string `toml:"log_dir"`
	KeysFile   string `toml:"keys_file"`
}

// Server contains the HTTP listener configuration.
type Server struct {
	Bind        string `toml:"bind"`
	ExternalURL string `toml:"external_url"`
}

// Catalog contains configuration for the title metadata catalog.
type Catalog struct {
	PrimaryLocale         string   `toml:"primary_locale"`
	SecondaryLocales      []string `toml:"secondary_locales"`
	BaseURL               string   `toml:"base_url"`
	RefreshIntervalHours  int      `toml:"refresh_interval_hours"`
	RequestTimeoutSeconds int      `toml:"request_timeout_seconds"`
	NormalizeUpdateIDs    bool     `toml:"normalize_update_ids"`
	UpdateSuffix          string   `toml:"update_suffix"`
	BaseSuffix            string   `toml:"base_suffix"`
}

// Scanner contains configuration for the library scanner.
type Scanner struct {
	Watch       bool     `toml:"watch"`
	Extensions  []string `toml:"extensions"`
	Parallelism int      `toml:"parallelism"`
}

// Downloads contains configuration for the download queue and workers.
type Downloads struct {
	Workers               int `toml:"workers"`
	QueuePollInterval     int `toml:"queue_poll_interval"`
	ConnectTimeoutSeconds int `toml:"connect_timeout_seconds"`
	IdleTimeoutSeconds    int `toml:"idle_timeout_seconds"`
	ProgressIntervalMS    int `toml:"progress_interval_ms"`
	MaxRedirects          int `toml:"max_redirects"`
}

// Upstream contains configuration for remote shop index mirroring.
type Upstream struct {
	Sources               []string `toml:"sources"`
	SyncIntervalHours     int      `toml:"sync_interval_hours"`
	RequestTimeoutSeconds int      `toml:"request_timeout_seconds"`
}

// Import contains configuration for import-source providers.
type Import struct {
	ShopURL               string `toml:"shop_url"`
	ShopToken             string `toml:"shop_token"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for depot.
//
// Configuration sections by subsystem:
//   - Paths: rom/data/staging/log directories and console key material
//   - Server: HTTP bind address and the externally visible URL
//   - Catalog: titledb locales, mirror URL, and refresh cadence
//   - Scanner: watched extensions and walk parallelism
//   - Downloads: worker count, poll cadence, and transfer timeouts
//   - Upstream: remote shop indexes merged into the local one
//   - Import: import-source providers (shop title endpoint)
//   - Logging: log format, level, and retention
type Config struct {
	Paths     Paths     `toml:"paths"`
	Server    Server    `toml:"server"`
	Catalog   Catalog   `toml:"catalog"`
	Scanner   Scanner   `toml:"scanner"`
	Downloads Downloads `toml:"downloads"`
	Upstream  Upstream  `toml:"upstream"`
	Import    Import    `toml:"import"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/depot/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/depot/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("depot.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// RomDir is created on a best-effort basis so the daemon can run when
// external storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.StagingDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.RomDir) != "" {
		// Best-effort to avoid failing config load when storage is offline.
		_ = os.MkdirAll(c.Paths.RomDir, 0o755)
	}
	return nil
}

// CatalogDBPath returns the catalog database location under the data directory.
func (c *Config) CatalogDBPath() string {
	return filepath.Join(c.Paths.DataDir, "catalog.db")
}

// LibraryDBPath returns the library database location under the data directory.
func (c *Config) LibraryDBPath() string {
	return filepath.Join(c.Paths.DataDir, "library.db")
}

// DownloadsDBPath returns the download queue database location under the data directory.
func (c *Config) DownloadsDBPath() string {
	return filepath.Join(c.Paths.DataDir, "downloads.db")
}

// Locales returns the primary locale followed by the secondary locales,
// deduplicated, in catalog import order.
func (c *Config) Locales() []string {
	out := make([]string, 0, 1+len(c.Catalog.SecondaryLocales))
	out = append(out, c.Catalog.PrimaryLocale)
	for _, locale := range c.Catalog.SecondaryLocales {
		if locale == c.Catalog.PrimaryLocale {
			continue
		}
		out = append(out, locale)
	}
	return out
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	sample := sampleConfig

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
