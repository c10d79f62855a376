package config

const (
	defaultDataDir = "~/.local/share/modvault"
	defaultModsDir = "~/.local/share/modvault/mods"
	defaultLogDir  = "~/.local/share/modvault/logs"

	defaultRequestTimeoutSeconds = 12
	defaultMaxAttempts           = 3
	defaultRetryBaseMillis       = 800
	defaultRetryMaxMillis        = 8000

	defaultCacheCapacityBytes      = 256 << 20
	defaultMemoryThresholdBytes    = 200 << 20
	defaultCleanupBatchSize        = 20
	defaultMonitorIntervalSeconds  = 30
	defaultPreloadConcurrency      = 3
	defaultWarmStartDelaySeconds   = 5
	defaultWarmBatchPauseMillis    = 750
	defaultDownloadGracePeriodSecs = 5
	defaultMinFreeMiB              = 512

	defaultCatalogBaseURL = "https://api.github.com/repos/wildflover/marketplace"

	defaultNtfyTimeoutSeconds = 10

	defaultLogLevel  = "info"
	defaultLogFormat = "console"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			ModsDir: defaultModsDir,
			LogDir:  defaultLogDir,
		},
		Transport: Transport{
			RequestTimeoutSeconds: defaultRequestTimeoutSeconds,
			MaxAttempts:           defaultMaxAttempts,
			RetryBaseMillis:       defaultRetryBaseMillis,
			RetryMaxMillis:        defaultRetryMaxMillis,
		},
		MediaCache: MediaCache{
			CapacityBytes:          defaultCacheCapacityBytes,
			MemoryThresholdBytes:   defaultMemoryThresholdBytes,
			CleanupBatchSize:       defaultCleanupBatchSize,
			MonitorIntervalSeconds: defaultMonitorIntervalSeconds,
			Concurrency:            defaultPreloadConcurrency,
			WarmStartDelaySeconds:  defaultWarmStartDelaySeconds,
			WarmBatchPauseMillis:   defaultWarmBatchPauseMillis,
		},
		Downloads: Downloads{
			GracePeriodSeconds: defaultDownloadGracePeriodSecs,
			MinFreeMiB:         defaultMinFreeMiB,
		},
		Catalog: Catalog{
			BaseURL: defaultCatalogBaseURL,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNtfyTimeoutSeconds,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
