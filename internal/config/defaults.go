package config

const (
	defaultLogDir             = "~/.local/share/squeuer/logs"
	defaultOutputDir          = "~/Videos/smoothie"
	defaultIngestDir          = "~/Videos/smoothie/ingest"
	defaultSmoothieBinary     = "smoothie-rs"
	defaultPollInterval       = 1
	defaultErrorRetryInterval = 5
	defaultIngestSettle       = 2
	defaultNtfyTimeout        = 10
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultLogRetentionDays   = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir:    defaultLogDir,
			OutputDir: defaultOutputDir,
		},
		Smoothie: Smoothie{
			Binary: defaultSmoothieBinary,
		},
		Worker: Worker{
			PollInterval:       defaultPollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
		},
		Ingest: Ingest{
			Dir:           defaultIngestDir,
			SettleSeconds: defaultIngestSettle,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyTimeout,
			TaskCompleted:  true,
			TaskFailed:     true,
			QueueDrained:   true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
