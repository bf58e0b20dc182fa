package testsupport

import (
	"path/filepath"
	"testing"

	"strata/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// The dispatcher tick is zeroed so tests are not paced by the poll interval.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DatasetDir = filepath.Join(base, "datasets")
	cfg.Paths.ResultsDir = filepath.Join(base, "results")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Scheduler.PollInterval = 0
	cfg.Scheduler.RetryBackoffBase = 0
	cfg.Notifications.NtfyTopic = ""

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithDatasetConcurrency overrides the per-dataset running-job limit.
func WithDatasetConcurrency(limit int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Scheduler.DatasetConcurrency = limit
	}
}

// WithRetryLimit overrides the transient-failure retry budget.
func WithRetryLimit(limit int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Scheduler.RetryLimit = limit
	}
}

// WithWorkers overrides the in-process worker pool size.
func WithWorkers(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.TaskQueue.Workers = n
	}
}
