package config

const (
	defaultDataDir = "~/.local/share/hillview"
	defaultLogDir  = "~/.local/share/hillview/logs"

	defaultMaxQueueSize     = 50
	defaultMaxAttempts      = 5
	defaultRetryBaseDelayMS = 1000
	defaultRetryMaxDelayMS  = 5000
	defaultSlowIntervalMS   = 1000
	defaultFastIntervalMS   = 100
	defaultGuardWindowMS    = 2000

	defaultUploadTimeoutSeconds = 30

	defaultQueuePollInterval  = 5
	defaultErrorRetryInterval = 10

	defaultNotifyRequestTimeout = 10

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Capture: Capture{
			MaxQueueSize:     defaultMaxQueueSize,
			MaxAttempts:      defaultMaxAttempts,
			RetryBaseDelayMS: defaultRetryBaseDelayMS,
			RetryMaxDelayMS:  defaultRetryMaxDelayMS,
			SlowIntervalMS:   defaultSlowIntervalMS,
			FastIntervalMS:   defaultFastIntervalMS,
			GuardWindowMS:    defaultGuardWindowMS,
		},
		Upload: Upload{
			TimeoutSeconds: defaultUploadTimeoutSeconds,
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Queue:          true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
