package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeScheduler()
	c.normalizeTaskQueue()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DatasetDir) == "" {
		c.Paths.DatasetDir = defaultDatasetDir
	}
	if c.Paths.DatasetDir, err = expandPath(c.Paths.DatasetDir); err != nil {
		return fmt.Errorf("paths.dataset_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ResultsDir) == "" {
		c.Paths.ResultsDir = defaultResultsDir
	}
	if c.Paths.ResultsDir, err = expandPath(c.Paths.ResultsDir); err != nil {
		return fmt.Errorf("paths.results_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	return nil
}

func (c *Config) normalizeScheduler() {
	if c.Scheduler.PollInterval < 0 {
		c.Scheduler.PollInterval = 0
	}
	if c.Scheduler.ErrorRetryInterval <= 0 {
		c.Scheduler.ErrorRetryInterval = defaultErrorRetryInterval
	}
	if c.Scheduler.DatasetConcurrency < 0 {
		c.Scheduler.DatasetConcurrency = 0
	}
	if c.Scheduler.GlobalSlots <= 0 {
		c.Scheduler.GlobalSlots = defaultGlobalSlots
	}
	if c.Scheduler.RetryLimit < 0 {
		c.Scheduler.RetryLimit = 0
	}
	if c.Scheduler.RetryBackoffBase <= 0 {
		c.Scheduler.RetryBackoffBase = defaultRetryBackoffBase
	}
	if c.Scheduler.RetryBackoffCap < c.Scheduler.RetryBackoffBase {
		c.Scheduler.RetryBackoffCap = defaultRetryBackoffCap
	}
	if c.Scheduler.ExecutionTimeout <= 0 {
		c.Scheduler.ExecutionTimeout = defaultExecutionTimeout
	}
}

func (c *Config) normalizeTaskQueue() {
	c.TaskQueue.Backend = strings.ToLower(strings.TrimSpace(c.TaskQueue.Backend))
	if c.TaskQueue.Backend == "" {
		c.TaskQueue.Backend = defaultTaskQueueBackend
	}
	if c.TaskQueue.Workers <= 0 {
		c.TaskQueue.Workers = defaultTaskQueueWorkers
	}
	c.TaskQueue.NATSURL = strings.TrimSpace(c.TaskQueue.NATSURL)
	if c.TaskQueue.NATSURL == "" {
		c.TaskQueue.NATSURL = defaultNATSURL
	}
	c.TaskQueue.SubjectPrefix = strings.Trim(strings.TrimSpace(c.TaskQueue.SubjectPrefix), ".")
	if c.TaskQueue.SubjectPrefix == "" {
		c.TaskQueue.SubjectPrefix = defaultSubjectPrefix
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
