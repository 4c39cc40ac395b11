package config

const (
	defaultDataDir               = "~/.local/share/digest/data"
	defaultLogDir                = "~/.local/share/digest/logs"
	defaultSMTPPort              = 587
	defaultSMTPTimeoutSeconds    = 30
	defaultSummarizerBaseURL     = "https://openrouter.ai/api/v1/chat/completions"
	defaultSummarizerModel       = "google/gemini-3-flash-preview"
	defaultSummarizerTimeout     = 60
	defaultScheduleWeekday       = "monday"
	defaultScheduleHour          = 8
	defaultWorkerCount           = 4
	defaultQueuePollInterval     = 5
	defaultErrorRetryInterval    = 10
	defaultHeartbeatInterval     = 15
	defaultHeartbeatTimeout      = 300
	defaultRetryMaxAttempts      = 4
	defaultRetryBaseDelaySeconds = 30
	defaultRetryMaxDelaySeconds  = 900
	defaultStoreTimeoutSeconds   = 10
	defaultNtfyRequestTimeout    = 10
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		SMTP: SMTP{
			Port:           defaultSMTPPort,
			StartTLS:       true,
			TimeoutSeconds: defaultSMTPTimeoutSeconds,
		},
		Summarizer: Summarizer{
			BaseURL:        defaultSummarizerBaseURL,
			Model:          defaultSummarizerModel,
			TimeoutSeconds: defaultSummarizerTimeout,
		},
		Schedule: Schedule{
			Enabled: true,
			Weekday: defaultScheduleWeekday,
			Hour:    defaultScheduleHour,
		},
		Workflow: Workflow{
			WorkerCount:           defaultWorkerCount,
			QueuePollInterval:     defaultQueuePollInterval,
			ErrorRetryInterval:    defaultErrorRetryInterval,
			HeartbeatInterval:     defaultHeartbeatInterval,
			HeartbeatTimeout:      defaultHeartbeatTimeout,
			RetryMaxAttempts:      defaultRetryMaxAttempts,
			RetryBaseDelaySeconds: defaultRetryBaseDelaySeconds,
			RetryMaxDelaySeconds:  defaultRetryMaxDelaySeconds,
			StoreTimeoutSeconds:   defaultStoreTimeoutSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyRequestTimeout,
			Dispatch:       true,
			DeadLetter:     true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
