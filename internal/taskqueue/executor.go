package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"strata/internal/dataset"
	"strata/internal/logging"
	"strata/internal/registry"
	"strata/internal/results"
	"strata/internal/services"
)

// Executor runs one task end to end: validate, load, compute, persist.
// Both the in-process pool and the NATS worker drive the same executor so
// a job behaves identically regardless of where it lands.
type Executor struct {
	Registry *registry.Registry
	Datasets dataset.Provider
	Results  *results.Store
	Progress ProgressSink
	Timeout  time.Duration
	Logger   *slog.Logger
}

// Run executes a task and returns the result reference on success. Errors
// come back classified: transient failures are retryable, everything else
// terminates the job.
func (e *Executor) Run(ctx context.Context, task Task) (string, error) {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	params, err := e.Registry.Validate(task.Algorithm, task.Params)
	if err != nil {
		return "", err
	}
	spec, err := e.Registry.Resolve(task.Algorithm)
	if err != nil {
		return "", err
	}

	handle, err := e.Datasets.Open(ctx, task.DatasetID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) || services.IsFatal(err) {
			return "", err
		}
		return "", services.Wrap(services.ErrTransient, "taskqueue", "open dataset", task.DatasetID, err)
	}

	logger := e.logger().With(
		logging.FieldJobID, task.JobID,
		logging.FieldDatasetID, task.DatasetID,
		logging.FieldAlgorithm, task.Algorithm,
	)
	logger.Info("task execution started")
	started := time.Now()

	artifact, err := e.execute(ctx, spec, handle, task, params)
	if err != nil {
		err = e.classifyRunError(ctx, task, err)
		logger.Warn("task execution failed",
			logging.FieldErrorKind, services.Kind(err),
			logging.Error(err))
		return "", err
	}

	artifact.JobID = task.JobID
	if err := e.Results.Put(ctx, artifact); err != nil {
		// Result persistence failures are infrastructure trouble; the
		// computation itself is sound, so let the retry loop have it.
		return "", services.Wrap(services.ErrTransient, "taskqueue", "persist result", task.JobID, err)
	}

	logger.Info("task execution finished",
		"duration", time.Since(started).Round(time.Millisecond).String())
	return task.JobID, nil
}

// execute invokes the algorithm body with panic isolation. A panicking
// algorithm fails its job fatally instead of taking the worker down.
func (e *Executor) execute(ctx context.Context, spec registry.AlgorithmSpec, handle *dataset.Handle, task Task, params registry.Params) (artifact *results.Artifact, err error) {
	defer func() {
		if r := recover(); r != nil {
			artifact = nil
			err = services.Wrap(services.ErrFatal, "taskqueue", "execute",
				fmt.Sprintf("algorithm %s panicked: %v", task.Algorithm, r), nil)
		}
	}()

	progress := registry.ProgressFunc(nil)
	if e.Progress != nil {
		sink := e.Progress
		jobID := task.JobID
		progress = func(fraction float64, message string) {
			sink(jobID, fraction, message)
		}
	}
	return spec.Execute(ctx, handle, params, progress)
}

// classifyRunError maps an execution error onto the retry taxonomy,
// distinguishing the watchdog deadline from an operator cancel.
func (e *Executor) classifyRunError(ctx context.Context, task Task, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return services.Wrap(services.ErrTimeout, "taskqueue", "execute",
			fmt.Sprintf("job %s exceeded the execution time limit", task.JobID), nil)
	case errors.Is(err, context.Canceled):
		return services.Wrap(services.ErrTransient, "taskqueue", "execute",
			fmt.Sprintf("job %s interrupted", task.JobID), err)
	default:
		return services.Classify(err)
	}
}

func (e *Executor) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return logging.NewNop()
}
