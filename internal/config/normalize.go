package config

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/language"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeServer()
	if err := c.normalizeCatalog(); err != nil {
		return err
	}
	c.normalizeScanner()
	c.normalizeDownloads()
	c.normalizeUpstream()
	c.normalizeImport()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.RomDir) == "" {
		if value, ok := os.LookupEnv("DEPOT_ROM_DIR"); ok && strings.TrimSpace(value) != "" {
			c.Paths.RomDir = strings.TrimSpace(value)
		} else {
			c.Paths.RomDir = defaultRomDir
		}
	}
	if c.Paths.RomDir, err = expandPath(c.Paths.RomDir); err != nil {
		return fmt.Errorf("paths.rom_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		c.Paths.StagingDir = defaultStagingDir
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.KeysFile) == "" {
		c.Paths.KeysFile = defaultKeysFile
	}
	if c.Paths.KeysFile, err = expandPath(c.Paths.KeysFile); err != nil {
		return fmt.Errorf("paths.keys_file: %w", err)
	}
	return nil
}

func (c *Config) normalizeServer() {
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if c.Server.Bind == "" {
		c.Server.Bind = defaultServerBind
	}
	c.Server.ExternalURL = strings.TrimRight(strings.TrimSpace(c.Server.ExternalURL), "/")
}

func (c *Config) normalizeCatalog() error {
	c.Catalog.BaseURL = strings.TrimRight(strings.TrimSpace(c.Catalog.BaseURL), "/")
	if c.Catalog.BaseURL == "" {
		c.Catalog.BaseURL = defaultCatalogBaseURL
	}

	primary, err := canonicalizeLocale(c.Catalog.PrimaryLocale)
	if err != nil {
		return fmt.Errorf("catalog.primary_locale: %w", err)
	}
	if primary == "" {
		primary = defaultPrimaryLocale
	}
	c.Catalog.PrimaryLocale = primary

	if len(c.Catalog.SecondaryLocales) > 0 {
		locales := make([]string, 0, len(c.Catalog.SecondaryLocales))
		seen := map[string]struct{}{primary: {}}
		for _, raw := range c.Catalog.SecondaryLocales {
			locale, err := canonicalizeLocale(raw)
			if err != nil {
				return fmt.Errorf("catalog.secondary_locales: %w", err)
			}
			if locale == "" {
				continue
			}
			if _, exists := seen[locale]; exists {
				continue
			}
			seen[locale] = struct{}{}
			locales = append(locales, locale)
		}
		c.Catalog.SecondaryLocales = locales
	}

	c.Catalog.UpdateSuffix = strings.ToLower(strings.TrimSpace(c.Catalog.UpdateSuffix))
	if c.Catalog.UpdateSuffix == "" {
		c.Catalog.UpdateSuffix = defaultUpdateSuffix
	}
	c.Catalog.BaseSuffix = strings.ToLower(strings.TrimSpace(c.Catalog.BaseSuffix))
	if c.Catalog.BaseSuffix == "" {
		c.Catalog.BaseSuffix = defaultBaseSuffix
	}
	if c.Catalog.RefreshIntervalHours <= 0 {
		c.Catalog.RefreshIntervalHours = defaultCatalogRefreshHours
	}
	if c.Catalog.RequestTimeoutSeconds <= 0 {
		c.Catalog.RequestTimeoutSeconds = defaultCatalogTimeoutSeconds
	}
	return nil
}

func (c *Config) normalizeScanner() {
	if len(c.Scanner.Extensions) == 0 {
		c.Scanner.Extensions = defaultExtensions()
		return
	}
	exts := make([]string, 0, len(c.Scanner.Extensions))
	seen := make(map[string]struct{}, len(c.Scanner.Extensions))
	for _, ext := range c.Scanner.Extensions {
		normalized := strings.ToLower(strings.TrimSpace(ext))
		if normalized == "" {
			continue
		}
		if !strings.HasPrefix(normalized, ".") {
			normalized = "." + normalized
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		exts = append(exts, normalized)
	}
	if len(exts) == 0 {
		exts = defaultExtensions()
	}
	c.Scanner.Extensions = exts
}

func (c *Config) normalizeDownloads() {
	if c.Downloads.Workers <= 0 {
		c.Downloads.Workers = defaultDownloadWorkers
	}
	if c.Downloads.QueuePollInterval <= 0 {
		c.Downloads.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Downloads.ConnectTimeoutSeconds <= 0 {
		c.Downloads.ConnectTimeoutSeconds = defaultConnectTimeoutSeconds
	}
	if c.Downloads.IdleTimeoutSeconds <= 0 {
		c.Downloads.IdleTimeoutSeconds = defaultIdleTimeoutSeconds
	}
	if c.Downloads.ProgressIntervalMS <= 0 {
		c.Downloads.ProgressIntervalMS = defaultProgressIntervalMS
	}
	if c.Downloads.MaxRedirects <= 0 {
		c.Downloads.MaxRedirects = defaultMaxRedirects
	}
}

func (c *Config) normalizeUpstream() {
	if len(c.Upstream.Sources) > 0 {
		sources := make([]string, 0, len(c.Upstream.Sources))
		seen := make(map[string]struct{}, len(c.Upstream.Sources))
		for _, source := range c.Upstream.Sources {
			trimmed := strings.TrimSpace(source)
			if trimmed == "" {
				continue
			}
			if _, exists := seen[trimmed]; exists {
				continue
			}
			seen[trimmed] = struct{}{}
			sources = append(sources, trimmed)
		}
		c.Upstream.Sources = sources
	}
	if c.Upstream.SyncIntervalHours <= 0 {
		c.Upstream.SyncIntervalHours = defaultUpstreamSyncHours
	}
	if c.Upstream.RequestTimeoutSeconds <= 0 {
		c.Upstream.RequestTimeoutSeconds = defaultUpstreamTimeoutSeconds
	}
}

func (c *Config) normalizeImport() {
	c.Import.ShopURL = strings.TrimRight(strings.TrimSpace(c.Import.ShopURL), "/")
	c.Import.ShopToken = strings.TrimSpace(c.Import.ShopToken)
	if c.Import.RequestTimeoutSeconds <= 0 {
		c.Import.RequestTimeoutSeconds = defaultImportTimeoutSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func canonicalizeLocale(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", nil
	}
	tag, err := language.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("unknown locale %q: %w", trimmed, err)
	}
	return tag.String(), nil
}
