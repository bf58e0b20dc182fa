package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"

	"strata/internal/jobs"
	"strata/internal/services"
)

// Status is the adapter-side view of an execution. It is deliberately
// coarser than the job state machine: the dispatcher owns job states and
// only consults the adapter for in-flight executions.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Terminal reports whether an execution has finished either way.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Handle identifies one submitted execution. Handles are single-use: once
// the dispatcher has consumed the outcome it releases the handle.
type Handle string

// Task is the unit of work shipped to a worker. Parameters travel raw and
// are re-validated on the worker so a stale or foreign producer cannot
// push unchecked input into an algorithm body.
type Task struct {
	JobID     string         `json:"job_id"`
	DatasetID string         `json:"dataset_id"`
	Algorithm string         `json:"algorithm"`
	Params    map[string]any `json:"params"`
}

// TaskFromJob builds the wire task for a persisted job.
func TaskFromJob(job *jobs.Job) (Task, error) {
	task := Task{
		JobID:     job.ID,
		DatasetID: job.DatasetID,
		Algorithm: job.Algorithm,
	}
	if job.ParamsJSON != "" {
		if err := json.Unmarshal([]byte(job.ParamsJSON), &task.Params); err != nil {
			return Task{}, services.Wrap(services.ErrFatal, "taskqueue", "encode task",
				fmt.Sprintf("job %s carries unparseable parameters", job.ID), err)
		}
	}
	return task, nil
}

// Outcome is the terminal result of one execution: a result reference on
// success, a classified error on failure.
type Outcome struct {
	ResultRef string
	Err       error
}

// ProgressSink receives progress updates from executing tasks, keyed by
// job id. Implementations must be safe for concurrent use.
type ProgressSink func(jobID string, fraction float64, message string)

// Adapter abstracts the execution backend. The in-process pool and the
// NATS-distributed queue both satisfy it; the dispatcher never knows
// which one it is driving.
type Adapter interface {
	// Submit hands a job to the backend and returns a tracking handle.
	// A submission error means the job never reached a worker; the
	// caller keeps it queued.
	Submit(ctx context.Context, job *jobs.Job) (Handle, error)

	// Poll reports the current status of a handle. Unknown handles
	// report StatusFailed so a dispatcher restarted mid-flight converges
	// instead of waiting forever.
	Poll(handle Handle) Status

	// Outcome returns the terminal outcome for a handle. The boolean is
	// false while the execution is still in flight.
	Outcome(handle Handle) (Outcome, bool)

	// Cancel requests termination of an execution. It reports whether
	// the cancellation took effect before execution started; interrupting
	// an execution that already reached a worker is best-effort and
	// reports false.
	Cancel(handle Handle) bool

	// Release discards all tracking state for a handle.
	Release(handle Handle)

	// Close stops the backend and waits for in-flight work to unwind.
	Close() error
}
