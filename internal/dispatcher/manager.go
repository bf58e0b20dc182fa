package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"strata/internal/config"
	"strata/internal/jobs"
	"strata/internal/logging"
	"strata/internal/notifications"
	"strata/internal/registry"
	"strata/internal/results"
	"strata/internal/taskqueue"
)

// daemonStopReason is recorded on jobs requeued because the daemon shut
// down underneath them.
const daemonStopReason = "requeued: daemon stopped"

// StateListener observes committed job transitions. Listeners run on the
// dispatcher goroutine and must return quickly.
type StateListener func(job *jobs.Job)

type inflightJob struct {
	handle    taskqueue.Handle
	jobID     string
	datasetID string
	cost      int
}

// Manager promotes queued jobs onto the task queue and folds worker
// outcomes back into the job store. It is the only component that moves
// jobs between queued, running, and the terminal states.
type Manager struct {
	cfg      *config.Config
	store    *jobs.Store
	adapter  taskqueue.Adapter
	registry *registry.Registry
	results  *results.Store
	notifier notifications.Service
	logger   *slog.Logger

	pollInterval       time.Duration
	errorRetryInterval time.Duration

	wake chan struct{}

	mu        sync.RWMutex
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	inflight  map[string]inflightJob
	listeners []StateListener
	lastErr   error

	queueActive    time.Time
	drainSucceeded int
	drainFailed    int
}

// NewManager constructs a dispatcher over the given store and adapter.
func NewManager(cfg *config.Config, store *jobs.Store, adapter taskqueue.Adapter, reg *registry.Registry, resultStore *results.Store, notifier notifications.Service, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	return &Manager{
		cfg:                cfg,
		store:              store,
		adapter:            adapter,
		registry:           reg,
		results:            resultStore,
		notifier:           notifier,
		logger:             logging.NewComponentLogger(logger, "dispatcher"),
		pollInterval:       time.Duration(cfg.Scheduler.PollInterval) * time.Second,
		errorRetryInterval: time.Duration(cfg.Scheduler.ErrorRetryInterval) * time.Second,
		wake:               make(chan struct{}, 1),
		inflight:           make(map[string]inflightJob),
	}
}

// AddStateListener registers an observer for committed transitions.
func (m *Manager) AddStateListener(listener StateListener) {
	if listener == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, listener)
}

// Start begins background dispatching.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("dispatcher already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(runCtx)
	m.logger.Info("dispatcher started")
	return nil
}

// Stop halts dispatching, shuts the adapter down, and requeues jobs that
// were still in flight so a restart resumes them.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()

	if err := m.adapter.Close(); err != nil {
		m.logger.Warn("adapter close failed", logging.Error(err))
	}
	m.requeueInflight()
	m.logger.Info("dispatcher stopped")
}

// Wake nudges the dispatcher to tick ahead of its poll interval. Safe to
// call from any goroutine; extra wakes collapse into one.
func (m *Manager) Wake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Running reports whether the dispatch loop is active.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// LastError returns the most recent dispatch loop error, if any.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// InflightHandle returns the adapter handle for a running job, used by
// cancellation to reach the executing worker.
func (m *Manager) InflightHandle(jobID string) (taskqueue.Handle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.inflight[jobID]
	return entry.handle, ok
}

// CancelRunning asks the adapter to interrupt a running job's execution
// and reports whether there was an execution to interrupt. The job row
// transitions when the interrupted worker reports back; the interruption
// itself stays best-effort.
func (m *Manager) CancelRunning(jobID string) bool {
	handle, ok := m.InflightHandle(jobID)
	if !ok {
		return false
	}
	m.adapter.Cancel(handle)
	m.Wake()
	return true
}

// requeueInflight returns still-running jobs to the queue without
// consuming retry budget. Runs after the adapter has shut down.
func (m *Manager) requeueInflight() {
	ctx, cancelCtx := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelCtx()

	m.mu.Lock()
	pending := make([]inflightJob, 0, len(m.inflight))
	for _, entry := range m.inflight {
		pending = append(pending, entry)
	}
	m.inflight = make(map[string]inflightJob)
	m.mu.Unlock()

	for _, entry := range pending {
		m.adapter.Release(entry.handle)
		if _, err := m.store.Requeue(ctx, entry.jobID, daemonStopReason); err != nil {
			if errors.Is(err, jobs.ErrAlreadyTerminal) {
				continue
			}
			m.logger.Warn("requeue on shutdown failed",
				logging.FieldJobID, entry.jobID,
				logging.Error(err))
			continue
		}
		m.logger.Info("job requeued for restart", logging.FieldJobID, entry.jobID)
	}
}

func (m *Manager) notifyListeners(job *jobs.Job) {
	if job == nil {
		return
	}
	m.mu.RLock()
	listeners := append([]StateListener(nil), m.listeners...)
	m.mu.RUnlock()
	for _, listener := range listeners {
		listener(job)
	}
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}
