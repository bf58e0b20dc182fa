package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DatasetDir string `toml:"dataset_dir"`
	ResultsDir string `toml:"results_dir"`
	LogDir     string `toml:"log_dir"`
	APIBind    string `toml:"api_bind"`
}

// Scheduler contains dispatcher timing, concurrency, and retry policy.
type Scheduler struct {
	// PollInterval is the dispatcher tick in seconds when no completion
	// event wakes it earlier.
	PollInterval int `toml:"poll_interval"`
	// ErrorRetryInterval is the pause in seconds after a store error.
	ErrorRetryInterval int `toml:"error_retry_interval"`
	// DatasetConcurrency caps running jobs per dataset. 0 means unlimited.
	DatasetConcurrency int `toml:"dataset_concurrency"`
	// GlobalSlots caps jobs in flight across all datasets.
	GlobalSlots int `toml:"global_slots"`
	// RetryLimit is the number of transient-failure retries per job.
	RetryLimit int `toml:"retry_limit"`
	// RetryBackoffBase and RetryBackoffCap bound the exponential backoff, in seconds.
	RetryBackoffBase int `toml:"retry_backoff_base"`
	RetryBackoffCap  int `toml:"retry_backoff_cap"`
	// ExecutionTimeout bounds a single algorithm run, in seconds.
	ExecutionTimeout int `toml:"execution_timeout"`
}

// Task queue backend names accepted in task_queue.backend.
const (
	BackendInProc = "inproc"
	BackendNATS   = "nats"
)

// TaskQueue selects and configures the work-distribution backend.
type TaskQueue struct {
	// Backend is "inproc" or "nats".
	Backend string `toml:"backend"`
	// Workers is the pool size for the in-process backend, and the
	// subscriber concurrency for the NATS worker runner.
	Workers int `toml:"workers"`
	// NATSURL is the broker address for the nats backend.
	NATSURL string `toml:"nats_url"`
	// SubjectPrefix namespaces the job subjects on the broker.
	SubjectPrefix string `toml:"subject_prefix"`
}

// Results contains artifact retention policy.
type Results struct {
	// RetentionDays controls when artifacts of terminal jobs become
	// eligible for deletion. 0 disables the sweep.
	RetentionDays int `toml:"retention_days"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	JobCompleted   bool   `toml:"job_completed"`
	JobFailed      bool   `toml:"job_failed"`
	QueueDrained   bool   `toml:"queue_drained"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for the strata daemon.
//
// Configuration sections by subsystem:
//   - Paths: dataset catalog, result artifacts, logs, API bind address
//   - Scheduler: dispatcher tick, concurrency limits, retry policy
//   - TaskQueue: in-process pool or NATS broker settings
//   - Results: artifact retention
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Scheduler     Scheduler     `toml:"scheduler"`
	TaskQueue     TaskQueue     `toml:"task_queue"`
	Results       Results       `toml:"results"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/strata/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. A .env file in the
// working directory, when present, overlays broker and bind settings
// before TOML parsing so container deployments can avoid editing files.
func Load(path string) (*Config, string, bool, error) {
	_ = godotenv.Load()

	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func (c *Config) applyEnvOverrides() {
	if v := strings.TrimSpace(os.Getenv("STRATA_NATS_URL")); v != "" {
		c.TaskQueue.NATSURL = v
	}
	if v := strings.TrimSpace(os.Getenv("STRATA_API_BIND")); v != "" {
		c.Paths.APIBind = v
	}
	if v := strings.TrimSpace(os.Getenv("STRATA_LOG_LEVEL")); v != "" {
		c.Logging.Level = v
	}
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("strata.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DatasetDir, c.Paths.ResultsDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// SampleConfig returns the embedded annotated sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// WriteSample writes the sample configuration to the given path, refusing to
// overwrite an existing file.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// ExpandPath resolves ~ prefixes and makes the path absolute. Empty input
// stays empty.
func ExpandPath(path string) (string, error) {
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if path == "~" {
			return home, nil
		}
		return filepath.Join(home, path[2:]), nil
	}
	return filepath.Abs(path)
}
