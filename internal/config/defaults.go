package config

const (
	defaultDatasetDir = "~/.local/share/strata/datasets"
	defaultResultsDir = "~/.local/share/strata/results"
	defaultLogDir     = "~/.local/share/strata/logs"
	defaultAPIBind    = "127.0.0.1:7432"

	defaultPollInterval       = 2
	defaultErrorRetryInterval = 5
	defaultDatasetConcurrency = 1
	defaultGlobalSlots        = 4
	defaultRetryLimit         = 3
	defaultRetryBackoffBase   = 2
	defaultRetryBackoffCap    = 60
	defaultExecutionTimeout   = 30 * 60

	defaultTaskQueueBackend = "inproc"
	defaultTaskQueueWorkers = 4
	defaultNATSURL          = "nats://127.0.0.1:4222"
	defaultSubjectPrefix    = "strata.jobs"

	defaultResultRetentionDays = 30

	defaultNotifyRequestTimeout = 10

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DatasetDir: defaultDatasetDir,
			ResultsDir: defaultResultsDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Scheduler: Scheduler{
			PollInterval:       defaultPollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			DatasetConcurrency: defaultDatasetConcurrency,
			GlobalSlots:        defaultGlobalSlots,
			RetryLimit:         defaultRetryLimit,
			RetryBackoffBase:   defaultRetryBackoffBase,
			RetryBackoffCap:    defaultRetryBackoffCap,
			ExecutionTimeout:   defaultExecutionTimeout,
		},
		TaskQueue: TaskQueue{
			Backend:       defaultTaskQueueBackend,
			Workers:       defaultTaskQueueWorkers,
			NATSURL:       defaultNATSURL,
			SubjectPrefix: defaultSubjectPrefix,
		},
		Results: Results{
			RetentionDays: defaultResultRetentionDays,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			JobCompleted:   true,
			JobFailed:      true,
			QueueDrained:   true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
