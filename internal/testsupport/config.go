package testsupport

import (
	"path/filepath"
	"testing"

	"depot/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.RomDir = filepath.Join(base, "roms")
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.StagingDir = filepath.Join(base, "staging")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.KeysFile = filepath.Join(base, "prod.keys")
	cfgVal.Server.Bind = "127.0.0.1:0"
	cfgVal.Scanner.Watch = false
	cfgVal.Downloads.QueuePollInterval = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	return builder.cfg
}

// WithWatch toggles the filesystem watcher on the test config.
func WithWatch(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Scanner.Watch = enabled
	}
}

// WithWorkers overrides the download worker count on the test config.
func WithWorkers(workers int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Downloads.Workers = workers
	}
}

// WithUpstreamSources sets the upstream shop sources on the test config.
func WithUpstreamSources(sources ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Upstream.Sources = sources
	}
}

// WithSecondaryLocales sets catalog fallback locales on the test config.
func WithSecondaryLocales(locales ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Catalog.SecondaryLocales = locales
	}
}

// WithImportShop points the shop import provider at a test endpoint.
func WithImportShop(url, token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Import.ShopURL = url
		b.cfg.Import.ShopToken = token
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
