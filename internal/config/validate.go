package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate reports configuration problems that would prevent the daemon from
// operating. All problems are joined so the operator sees them at once.
func (c *Config) Validate() error {
	var problems []error

	if strings.TrimSpace(c.Paths.DatasetDir) == "" {
		problems = append(problems, errors.New("paths.dataset_dir must be set"))
	}
	if strings.TrimSpace(c.Paths.ResultsDir) == "" {
		problems = append(problems, errors.New("paths.results_dir must be set"))
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		problems = append(problems, errors.New("paths.log_dir must be set"))
	}

	switch c.TaskQueue.Backend {
	case BackendInProc, BackendNATS:
	default:
		problems = append(problems, fmt.Errorf("task_queue.backend: unsupported value %q (expected inproc or nats)", c.TaskQueue.Backend))
	}
	if c.TaskQueue.Backend == BackendNATS && strings.TrimSpace(c.TaskQueue.NATSURL) == "" {
		problems = append(problems, errors.New("task_queue.nats_url must be set for the nats backend"))
	}

	if c.Scheduler.RetryBackoffCap < c.Scheduler.RetryBackoffBase {
		problems = append(problems, fmt.Errorf("scheduler.retry_backoff_cap (%d) must be >= retry_backoff_base (%d)",
			c.Scheduler.RetryBackoffCap, c.Scheduler.RetryBackoffBase))
	}

	switch c.Logging.Format {
	case "console", "json":
	default:
		problems = append(problems, fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format))
	}

	if c.Results.RetentionDays < 0 {
		problems = append(problems, errors.New("results.retention_days must not be negative"))
	}

	return errors.Join(problems...)
}
