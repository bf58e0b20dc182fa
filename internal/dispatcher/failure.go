package dispatcher

import (
	"context"
	"errors"
	"time"

	"strata/internal/jobs"
	"strata/internal/logging"
	"strata/internal/services"
)

// failJob applies the retry policy to a terminal worker error. Transient
// failures consume retry budget and loop back to queued behind an
// exponential backoff; everything else fails the job for good.
func (m *Manager) failJob(ctx context.Context, entry inflightJob, cause error) {
	detail := services.Detail(cause)
	job, err := m.store.MarkFailed(ctx, entry.jobID, detail)
	if err != nil {
		if errors.Is(err, jobs.ErrAlreadyTerminal) {
			return
		}
		m.logger.Error("persist failure failed",
			logging.FieldJobID, entry.jobID,
			logging.Error(err))
		m.setLastError(err)
		return
	}

	if services.IsTransient(cause) && job.RetryCount < m.cfg.Scheduler.RetryLimit {
		retryCount := job.RetryCount + 1
		notBefore := time.Now().UTC().Add(m.backoff(retryCount))
		retried, err := m.store.RequeueForRetry(ctx, entry.jobID, retryCount, notBefore)
		if err != nil {
			if errors.Is(err, jobs.ErrAlreadyTerminal) {
				return
			}
			m.logger.Error("requeue for retry failed",
				logging.FieldJobID, entry.jobID,
				logging.Error(err))
			m.setLastError(err)
			return
		}
		m.logger.Warn("job failed transiently, retry scheduled",
			logging.FieldJobID, retried.ID,
			logging.FieldDatasetID, retried.DatasetID,
			logging.FieldAlgorithm, retried.Algorithm,
			logging.FieldErrorKind, services.Kind(cause),
			"retry_count", retried.RetryCount,
			"not_before", notBefore.Format(time.RFC3339),
			logging.Error(cause))
		m.notifyListeners(retried)
		m.Wake()
		return
	}

	m.mu.Lock()
	m.drainFailed++
	m.mu.Unlock()

	m.logger.Error("job failed",
		logging.FieldJobID, job.ID,
		logging.FieldDatasetID, job.DatasetID,
		logging.FieldAlgorithm, job.Algorithm,
		logging.FieldErrorKind, services.Kind(cause),
		"retry_count", job.RetryCount,
		logging.Error(cause))
	m.notifyListeners(job)
	if err := m.notifier.NotifyJobFailed(ctx, job); err != nil {
		m.logger.Warn("failure notification failed", logging.Error(err))
	}
	m.Wake()
}

// backoff computes the delay before retry attempt n, doubling from the
// configured base up to the cap.
func (m *Manager) backoff(retryCount int) time.Duration {
	base := time.Duration(m.cfg.Scheduler.RetryBackoffBase) * time.Second
	if base <= 0 {
		return 0
	}
	ceiling := time.Duration(m.cfg.Scheduler.RetryBackoffCap) * time.Second

	delay := base
	for i := 1; i < retryCount; i++ {
		delay *= 2
		if ceiling > 0 && delay >= ceiling {
			return ceiling
		}
	}
	if ceiling > 0 && delay > ceiling {
		return ceiling
	}
	return delay
}
