package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateCatalog(); err != nil {
		return err
	}
	if err := c.validateScanner(); err != nil {
		return err
	}
	if err := c.validateDownloads(); err != nil {
		return err
	}
	if err := c.validateUpstream(); err != nil {
		return err
	}
	if err := c.validateImport(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.RomDir) == "" {
		return errors.New("paths.rom_dir must be set")
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	return nil
}

func (c *Config) validateServer() error {
	host, port, err := net.SplitHostPort(c.Server.Bind)
	if err != nil {
		return fmt.Errorf("server.bind must be host:port: %w", err)
	}
	_ = host
	if strings.TrimSpace(port) == "" {
		return errors.New("server.bind must include a port")
	}
	if c.Server.ExternalURL != "" {
		parsed, err := url.Parse(c.Server.ExternalURL)
		if err != nil {
			return fmt.Errorf("server.external_url: %w", err)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return errors.New("server.external_url must use http or https")
		}
		if parsed.Host == "" {
			return errors.New("server.external_url must include a host")
		}
	}
	return nil
}

func (c *Config) validateCatalog() error {
	if c.Catalog.PrimaryLocale == "" {
		return errors.New("catalog.primary_locale must be set")
	}
	if !isHexSuffix(c.Catalog.UpdateSuffix) {
		return fmt.Errorf("catalog.update_suffix must be three hex digits, got %q", c.Catalog.UpdateSuffix)
	}
	if !isHexSuffix(c.Catalog.BaseSuffix) {
		return fmt.Errorf("catalog.base_suffix must be three hex digits, got %q", c.Catalog.BaseSuffix)
	}
	if c.Catalog.UpdateSuffix == c.Catalog.BaseSuffix {
		return errors.New("catalog.update_suffix and catalog.base_suffix must differ")
	}
	return ensurePositiveMap(map[string]int{
		"catalog.refresh_interval_hours":  c.Catalog.RefreshIntervalHours,
		"catalog.request_timeout_seconds": c.Catalog.RequestTimeoutSeconds,
	})
}

func (c *Config) validateScanner() error {
	if len(c.Scanner.Extensions) == 0 {
		return errors.New("scanner.extensions must include at least one extension")
	}
	if c.Scanner.Parallelism <= 0 {
		return errors.New("scanner.parallelism must be positive")
	}
	return nil
}

func (c *Config) validateDownloads() error {
	return ensurePositiveMap(map[string]int{
		"downloads.workers":                 c.Downloads.Workers,
		"downloads.queue_poll_interval":     c.Downloads.QueuePollInterval,
		"downloads.connect_timeout_seconds": c.Downloads.ConnectTimeoutSeconds,
		"downloads.idle_timeout_seconds":    c.Downloads.IdleTimeoutSeconds,
		"downloads.progress_interval_ms":    c.Downloads.ProgressIntervalMS,
		"downloads.max_redirects":           c.Downloads.MaxRedirects,
	})
}

func (c *Config) validateUpstream() error {
	for _, source := range c.Upstream.Sources {
		parsed, err := url.Parse(source)
		if err != nil {
			return fmt.Errorf("upstream.sources entry %q: %w", source, err)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return fmt.Errorf("upstream.sources entry %q must use http or https", source)
		}
		if parsed.Host == "" {
			return fmt.Errorf("upstream.sources entry %q must include a host", source)
		}
	}
	return ensurePositiveMap(map[string]int{
		"upstream.sync_interval_hours":     c.Upstream.SyncIntervalHours,
		"upstream.request_timeout_seconds": c.Upstream.RequestTimeoutSeconds,
	})
}

func (c *Config) validateImport() error {
	if c.Import.ShopURL != "" {
		parsed, err := url.Parse(c.Import.ShopURL)
		if err != nil {
			return fmt.Errorf("import.shop_url: %w", err)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return errors.New("import.shop_url must use http or https")
		}
		if parsed.Host == "" {
			return errors.New("import.shop_url must include a host")
		}
	}
	return ensurePositiveMap(map[string]int{
		"import.request_timeout_seconds": c.Import.RequestTimeoutSeconds,
	})
}

func isHexSuffix(value string) bool {
	if len(value) != 3 {
		return false
	}
	for _, r := range value {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		default:
			return false
		}
	}
	return true
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
