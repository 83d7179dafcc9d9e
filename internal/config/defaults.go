package config

const (
	defaultRomDir                  = "~/games"
	defaultDataDir                 = "~/.local/share/depot"
	defaultStagingDir              = "~/.local/share/depot/staging"
	defaultLogDir                  = "~/.local/share/depot/logs"
	defaultKeysFile                = "~/.switch/prod.keys"
	defaultServerBind              = "0.0.0.0:3000"
	defaultPrimaryLocale           = "en-US"
	defaultCatalogBaseURL          = "https://github.com/blawar/titledb/raw/refs/heads/master"
	defaultCatalogRefreshHours     = 24
	defaultCatalogTimeoutSeconds   = 300
	defaultUpdateSuffix            = "800"
	defaultBaseSuffix              = "000"
	defaultScannerParallelism      = 4
	defaultDownloadWorkers         = 2
	defaultQueuePollInterval       = 2
	defaultConnectTimeoutSeconds   = 30
	defaultIdleTimeoutSeconds      = 60
	defaultProgressIntervalMS      = 500
	defaultMaxRedirects            = 10
	defaultUpstreamSyncHours       = 6
	defaultUpstreamTimeoutSeconds  = 60
	defaultImportTimeoutSeconds    = 30
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
	defaultLogRetentionDays        = 30
)

func defaultExtensions() []string {
	return []string{".nsp", ".nsz", ".xci", ".xcz", ".ncz"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		// RomDir is left empty so normalize can honor the DEPOT_ROM_DIR
		// environment fallback before applying the default.
		Paths: Paths{
			DataDir:    defaultDataDir,
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
			KeysFile:   defaultKeysFile,
		},
		Server: Server{
			Bind: defaultServerBind,
		},
		Catalog: Catalog{
			PrimaryLocale:         defaultPrimaryLocale,
			BaseURL:               defaultCatalogBaseURL,
			RefreshIntervalHours:  defaultCatalogRefreshHours,
			RequestTimeoutSeconds: defaultCatalogTimeoutSeconds,
			NormalizeUpdateIDs:    true,
			UpdateSuffix:          defaultUpdateSuffix,
			BaseSuffix:            defaultBaseSuffix,
		},
		Scanner: Scanner{
			Watch:       true,
			Extensions:  defaultExtensions(),
			Parallelism: defaultScannerParallelism,
		},
		Downloads: Downloads{
			Workers:               defaultDownloadWorkers,
			QueuePollInterval:     defaultQueuePollInterval,
			ConnectTimeoutSeconds: defaultConnectTimeoutSeconds,
			IdleTimeoutSeconds:    defaultIdleTimeoutSeconds,
			ProgressIntervalMS:    defaultProgressIntervalMS,
			MaxRedirects:          defaultMaxRedirects,
		},
		Upstream: Upstream{
			SyncIntervalHours:     defaultUpstreamSyncHours,
			RequestTimeoutSeconds: defaultUpstreamTimeoutSeconds,
		},
		Import: Import{
			RequestTimeoutSeconds: defaultImportTimeoutSeconds,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
