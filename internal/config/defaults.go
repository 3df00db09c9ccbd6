package config

const (
	defaultDataDir              = "~/.local/share/reelsmith"
	defaultLogDir               = "~/.local/share/reelsmith/logs"
	defaultAPIBind              = "127.0.0.1:7603"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultLogRetentionDays     = 60
	defaultGenerationTimeout    = 120
	defaultCompositionTimeout   = 600
	defaultCatalogPath          = "~/.config/reelsmith/models.yaml"
	defaultStorageBucket        = "reelsmith"
	defaultMaxConcurrentJobs    = 3
	defaultBatchConcurrency     = 4
	defaultNotifyRequestTimeout = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Generation: Generation{
			TimeoutSeconds: defaultGenerationTimeout,
			CatalogPath:    defaultCatalogPath,
		},
		Composition: Composition{
			TimeoutSeconds: defaultCompositionTimeout,
		},
		Storage: Storage{
			Bucket: defaultStorageBucket,
		},
		Admission: Admission{
			MaxConcurrentJobs: defaultMaxConcurrentJobs,
		},
		Tasks: Tasks{
			BatchConcurrency: defaultBatchConcurrency,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Parsing:        true,
			Bible:          true,
			Scenes:         true,
			Video:          true,
			Assembly:       true,
			Errors:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
