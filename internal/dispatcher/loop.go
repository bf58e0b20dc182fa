package dispatcher

import (
	"context"
	"errors"
	"time"

	"strata/internal/jobs"
	"strata/internal/logging"
	"strata/internal/services"
	"strata/internal/taskqueue"
)

// minTickInterval paces the loop when poll_interval is zero, which tests
// use to avoid waiting out whole seconds.
const minTickInterval = 10 * time.Millisecond

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()

	interval := m.pollInterval
	if interval <= 0 {
		interval = minTickInterval
	}
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		m.tick(ctx)

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(interval)

		select {
		case <-ctx.Done():
			return
		case <-m.wake:
		case <-timer.C:
		}
	}
}

func (m *Manager) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	m.observeInflight(ctx)
	m.promote(ctx)
	m.reportDrained(ctx)
}

// observeInflight folds terminal adapter outcomes back into the store.
func (m *Manager) observeInflight(ctx context.Context) {
	m.mu.RLock()
	snapshot := make([]inflightJob, 0, len(m.inflight))
	for _, entry := range m.inflight {
		snapshot = append(snapshot, entry)
	}
	m.mu.RUnlock()

	for _, entry := range snapshot {
		if ctx.Err() != nil {
			return
		}
		status := m.adapter.Poll(entry.handle)
		if !status.Terminal() {
			continue
		}

		outcome, ok := m.adapter.Outcome(entry.handle)
		if !ok && status == taskqueue.StatusFailed {
			// Unknown handle: the adapter lost track, treat as transient.
			outcome = taskqueue.Outcome{Err: services.Wrap(services.ErrTransient,
				"dispatcher", "observe", "adapter lost the execution", nil)}
		}

		m.adapter.Release(entry.handle)
		m.mu.Lock()
		delete(m.inflight, entry.jobID)
		m.mu.Unlock()

		if outcome.Err == nil {
			m.completeJob(ctx, entry, outcome.ResultRef)
		} else {
			m.failJob(ctx, entry, outcome.Err)
		}
	}
}

func (m *Manager) completeJob(ctx context.Context, entry inflightJob, resultRef string) {
	job, err := m.store.MarkSucceeded(ctx, entry.jobID, resultRef)
	if err != nil {
		if errors.Is(err, jobs.ErrAlreadyTerminal) {
			// Cancellation won the race; drop the orphaned artifact.
			if m.results != nil {
				if delErr := m.results.Delete(ctx, entry.jobID); delErr != nil {
					m.logger.Warn("orphaned artifact cleanup failed",
						logging.FieldJobID, entry.jobID,
						logging.Error(delErr))
				}
			}
			return
		}
		m.logger.Error("persist success failed",
			logging.FieldJobID, entry.jobID,
			logging.Error(err))
		m.setLastError(err)
		return
	}

	m.mu.Lock()
	m.drainSucceeded++
	m.mu.Unlock()

	m.logger.Info("job succeeded",
		logging.FieldJobID, job.ID,
		logging.FieldDatasetID, job.DatasetID,
		logging.FieldAlgorithm, job.Algorithm,
		"elapsed_seconds", job.ElapsedSeconds())
	m.notifyListeners(job)
	if err := m.notifier.NotifyJobCompleted(ctx, job); err != nil {
		m.logger.Warn("completion notification failed", logging.Error(err))
	}
	m.Wake()
}

// promote moves eligible queued jobs onto the adapter, oldest first,
// honoring the per-dataset and global concurrency limits.
func (m *Manager) promote(ctx context.Context) {
	ready, err := m.store.QueuedReady(ctx, time.Now().UTC())
	if err != nil {
		m.logger.Error("list queued jobs failed", logging.Error(err))
		m.setLastError(err)
		m.pause(ctx)
		return
	}
	if len(ready) == 0 {
		return
	}

	runningByDataset, err := m.store.RunningCountByDataset(ctx)
	if err != nil {
		m.logger.Error("count running jobs failed", logging.Error(err))
		m.setLastError(err)
		m.pause(ctx)
		return
	}

	slotsUsed := m.slotsInUse()
	// Datasets whose oldest eligible job could not start this tick. Later
	// jobs of a held dataset must wait too, or a cheap young job would
	// overtake an expensive old one and break per-dataset ordering.
	held := make(map[string]bool)
	for _, job := range ready {
		if ctx.Err() != nil {
			return
		}
		if held[job.DatasetID] {
			continue
		}

		cost := m.jobCost(ctx, job)
		if cost < 0 {
			continue
		}
		if limit := m.cfg.Scheduler.GlobalSlots; limit > 0 && slotsUsed+cost > limit {
			held[job.DatasetID] = true
			continue
		}
		if limit := m.cfg.Scheduler.DatasetConcurrency; limit > 0 && runningByDataset[job.DatasetID] >= limit {
			held[job.DatasetID] = true
			continue
		}

		if !m.submit(ctx, job, cost) {
			// Submission trouble is infrastructure-wide; retry next tick.
			return
		}
		slotsUsed += cost
		runningByDataset[job.DatasetID]++
	}
}

// jobCost resolves the scheduling weight of a job's algorithm. A negative
// return means the job was terminated instead of scheduled.
func (m *Manager) jobCost(ctx context.Context, job *jobs.Job) int {
	spec, err := m.registry.Resolve(job.Algorithm)
	if err != nil {
		// The algorithm vanished between validation and dispatch; this
		// cannot heal by waiting.
		if _, markErr := m.store.MarkFailed(ctx, job.ID, services.Detail(err)); markErr != nil && !errors.Is(markErr, jobs.ErrAlreadyTerminal) {
			m.logger.Error("persist failure failed",
				logging.FieldJobID, job.ID,
				logging.Error(markErr))
		}
		return -1
	}
	return spec.Cost
}

func (m *Manager) submit(ctx context.Context, job *jobs.Job, cost int) bool {
	handle, err := m.adapter.Submit(ctx, job)
	if err != nil {
		if services.IsFatal(err) {
			if _, markErr := m.store.MarkFailed(ctx, job.ID, services.Detail(err)); markErr != nil && !errors.Is(markErr, jobs.ErrAlreadyTerminal) {
				m.logger.Error("persist failure failed",
					logging.FieldJobID, job.ID,
					logging.Error(markErr))
			}
			return true
		}
		m.logger.Warn("submission failed, job stays queued",
			logging.FieldJobID, job.ID,
			logging.Error(err))
		m.setLastError(err)
		return false
	}

	if _, err := m.store.MarkRunning(ctx, job.ID); err != nil {
		// Cancelled while queued: withdraw the submission.
		m.adapter.Cancel(handle)
		m.adapter.Release(handle)
		if !errors.Is(err, jobs.ErrAlreadyTerminal) {
			m.logger.Error("persist running failed",
				logging.FieldJobID, job.ID,
				logging.Error(err))
			m.setLastError(err)
		}
		return true
	}

	m.mu.Lock()
	if m.queueActive.IsZero() {
		m.queueActive = time.Now().UTC()
		m.drainSucceeded = 0
		m.drainFailed = 0
	}
	m.inflight[job.ID] = inflightJob{
		handle:    handle,
		jobID:     job.ID,
		datasetID: job.DatasetID,
		cost:      cost,
	}
	m.mu.Unlock()

	m.logger.Info("job dispatched",
		logging.FieldJobID, job.ID,
		logging.FieldDatasetID, job.DatasetID,
		logging.FieldAlgorithm, job.Algorithm,
		"retry_count", job.RetryCount)
	return true
}

// reportDrained emits one notification when the last in-flight job of a
// busy period finishes and nothing is left to promote.
func (m *Manager) reportDrained(ctx context.Context) {
	m.mu.RLock()
	active := !m.queueActive.IsZero()
	inflight := len(m.inflight)
	m.mu.RUnlock()
	if !active || inflight > 0 {
		return
	}

	ready, err := m.store.List(ctx, jobs.StateQueued)
	if err != nil || len(ready) > 0 {
		return
	}

	m.mu.Lock()
	start := m.queueActive
	succeeded := m.drainSucceeded
	failed := m.drainFailed
	m.queueActive = time.Time{}
	m.mu.Unlock()

	m.logger.Info("queue drained",
		"succeeded", succeeded,
		"failed", failed,
		"duration", time.Since(start).Round(time.Second).String())
	if err := m.notifier.NotifyQueueDrained(ctx, succeeded, failed, time.Since(start)); err != nil {
		m.logger.Warn("drain notification failed", logging.Error(err))
	}
}

func (m *Manager) slotsInUse() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, entry := range m.inflight {
		total += entry.cost
	}
	return total
}

// pause backs off after a store error so a persistent fault does not spin
// the loop.
func (m *Manager) pause(ctx context.Context) {
	wait := m.errorRetryInterval
	if wait <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(wait):
	}
}
