package jobs

import (
	"context"
	"fmt"
	"time"
)

// Transition is the single writer for job lifecycle changes. It loads the
// job, validates the change against the transition table, applies the
// caller's mutation to the loaded copy, and persists the result guarded by
// the observed state. Every other component only proposes transitions
// through this method or its wrappers below.
func (s *Store) Transition(ctx context.Context, id string, to State, apply func(*Job)) (*Job, error) {
	ctx = ensureContext(ctx)

	job, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	from := job.State
	if !CanTransition(from, to) {
		if from.IsTerminal() {
			return nil, fmt.Errorf("%w: %s is %s", ErrAlreadyTerminal, id, from)
		}
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	now := time.Now().UTC()
	job.State = to
	job.UpdatedAt = now

	switch to {
	case StateRunning:
		started := now
		job.StartedAt = &started
		job.CompletedAt = nil
		job.Progress = 0
		job.ProgressMessage = ""
		job.ErrorDetail = ""
		job.NotBefore = nil
	case StateSucceeded:
		completed := now
		job.CompletedAt = &completed
		job.Progress = 1
		job.ErrorDetail = ""
	case StateFailed, StateCancelled:
		completed := now
		job.CompletedAt = &completed
	case StateQueued:
		job.CompletedAt = nil
	}

	if apply != nil {
		apply(job)
	}

	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET
            state = ?, progress = ?, progress_message = ?, error_detail = ?,
            result_ref = ?, retry_count = ?, not_before = ?, started_at = ?,
            completed_at = ?, updated_at = ?
         WHERE id = ? AND state = ?`,
		job.State,
		job.Progress,
		nullableString(job.ProgressMessage),
		nullableString(job.ErrorDetail),
		nullableString(job.ResultRef),
		job.RetryCount,
		formatOptionalTime(job.NotBefore),
		formatOptionalTime(job.StartedAt),
		formatOptionalTime(job.CompletedAt),
		job.UpdatedAt.Format(time.RFC3339Nano),
		id,
		from,
	)
	if err != nil {
		return nil, fmt.Errorf("persist transition %s -> %s: %w", from, to, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		// Lost a race with a concurrent transition. Report what won.
		current, loadErr := s.GetByID(ctx, id)
		if loadErr == nil && current != nil && current.State.IsTerminal() {
			return nil, fmt.Errorf("%w: %s is %s", ErrAlreadyTerminal, id, current.State)
		}
		return nil, fmt.Errorf("%w: %s", ErrStateConflict, id)
	}

	return job, nil
}

// MarkValidated advances a pending job whose parameters passed validation.
func (s *Store) MarkValidated(ctx context.Context, id string) (*Job, error) {
	return s.Transition(ctx, id, StateValidated, nil)
}

// MarkQueued hands a validated job to the scheduler.
func (s *Store) MarkQueued(ctx context.Context, id string) (*Job, error) {
	return s.Transition(ctx, id, StateQueued, nil)
}

// MarkRunning records adapter acceptance of a queued job.
func (s *Store) MarkRunning(ctx context.Context, id string) (*Job, error) {
	return s.Transition(ctx, id, StateRunning, nil)
}

// MarkSucceeded finishes a running job with its artifact reference.
func (s *Store) MarkSucceeded(ctx context.Context, id, resultRef string) (*Job, error) {
	return s.Transition(ctx, id, StateSucceeded, func(job *Job) {
		job.ResultRef = resultRef
		job.ProgressMessage = "completed"
	})
}

// MarkFailed terminates a running job with a non-empty error detail.
func (s *Store) MarkFailed(ctx context.Context, id, detail string) (*Job, error) {
	if detail == "" {
		detail = "failed without error detail"
	}
	return s.Transition(ctx, id, StateFailed, func(job *Job) {
		job.ErrorDetail = detail
		job.Progress = 0
		job.ProgressMessage = detail
	})
}

// RequeueForRetry loops a failed job back to queued, consuming retry budget
// and scheduling it after the backoff window.
func (s *Store) RequeueForRetry(ctx context.Context, id string, retryCount int, notBefore time.Time) (*Job, error) {
	return s.Transition(ctx, id, StateQueued, func(job *Job) {
		job.RetryCount = retryCount
		nb := notBefore.UTC()
		job.NotBefore = &nb
		job.Progress = 0
		job.ProgressMessage = fmt.Sprintf("retry %d scheduled", retryCount)
	})
}

// Requeue returns a running job to the queue without consuming retry budget.
// Used when the daemon stops or the adapter never actually accepted the job.
func (s *Store) Requeue(ctx context.Context, id, reason string) (*Job, error) {
	return s.Transition(ctx, id, StateQueued, func(job *Job) {
		job.Progress = 0
		job.ProgressMessage = reason
		job.StartedAt = nil
	})
}

// MarkCancelled terminates a job on user request.
func (s *Store) MarkCancelled(ctx context.Context, id, reason string) (*Job, error) {
	if reason == "" {
		reason = "cancelled by user"
	}
	return s.Transition(ctx, id, StateCancelled, func(job *Job) {
		job.ErrorDetail = reason
		job.ProgressMessage = reason
	})
}
