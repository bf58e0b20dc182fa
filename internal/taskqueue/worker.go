package taskqueue

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"strata/internal/logging"
	"strata/internal/services"
)

// Worker consumes tasks from the broker and executes them with a local
// executor. Multiple worker processes share the queue group, so each task
// lands on exactly one of them.
type Worker struct {
	conn     *nats.Conn
	exec     *Executor
	prefix   string
	parallel int
	logger   *slog.Logger

	mu       sync.Mutex
	inflight map[Handle]context.CancelFunc
	byJob    map[string]Handle
}

// NewWorker builds a broker-driven worker. parallel bounds concurrent
// executions within this process.
func NewWorker(conn *nats.Conn, exec *Executor, subjectPrefix string, parallel int, logger *slog.Logger) *Worker {
	if parallel < 1 {
		parallel = 1
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Worker{
		conn:     conn,
		exec:     exec,
		prefix:   subjectPrefix,
		parallel: parallel,
		logger:   logging.NewComponentLogger(logger, "worker"),
		inflight: make(map[Handle]context.CancelFunc),
		byJob:    make(map[string]Handle),
	}
}

// Run subscribes and blocks until the context ends, then waits for
// in-flight executions to finish or get cancelled.
func (w *Worker) Run(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(w.parallel)

	// Progress from algorithm bodies flows back as running-status events.
	w.exec.Progress = func(jobID string, fraction float64, message string) {
		w.mu.Lock()
		handle, ok := w.byJob[jobID]
		w.mu.Unlock()
		if !ok {
			return
		}
		w.publish(statusEvent{
			Handle:   string(handle),
			JobID:    jobID,
			Status:   StatusRunning,
			Fraction: fraction,
			Message:  message,
		})
	}

	taskSub, err := w.conn.QueueSubscribe(w.prefix+taskSubjectSuffix, workerQueueGroup, func(msg *nats.Msg) {
		var env envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			w.logger.Warn("discarding malformed task", logging.Error(err))
			return
		}
		group.Go(func() error {
			w.execute(groupCtx, env)
			return nil
		})
	})
	if err != nil {
		return services.Wrap(services.ErrFatal, "worker", "subscribe tasks", w.prefix, err)
	}
	defer func() { _ = taskSub.Unsubscribe() }()

	cancelSub, err := w.conn.Subscribe(w.prefix+cancelSubjectSuffix, func(msg *nats.Msg) {
		var event cancelEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			return
		}
		w.mu.Lock()
		cancel, ok := w.inflight[Handle(event.Handle)]
		w.mu.Unlock()
		if ok {
			cancel()
		}
	})
	if err != nil {
		return services.Wrap(services.ErrFatal, "worker", "subscribe cancels", w.prefix, err)
	}
	defer func() { _ = cancelSub.Unsubscribe() }()

	w.logger.Info("worker listening",
		"subject", w.prefix+taskSubjectSuffix,
		"queue", workerQueueGroup,
		"parallel", w.parallel)

	<-ctx.Done()
	return group.Wait()
}

func (w *Worker) execute(ctx context.Context, env envelope) {
	handle := Handle(env.Handle)
	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	w.mu.Lock()
	w.inflight[handle] = cancel
	w.byJob[env.Task.JobID] = handle
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		delete(w.inflight, handle)
		delete(w.byJob, env.Task.JobID)
		w.mu.Unlock()
	}()

	w.publish(statusEvent{Handle: env.Handle, JobID: env.Task.JobID, Status: StatusRunning})

	ref, err := w.exec.Run(taskCtx, env.Task)
	if err != nil {
		w.publish(statusEvent{
			Handle:      env.Handle,
			JobID:       env.Task.JobID,
			Status:      StatusFailed,
			ErrorKind:   services.Kind(err),
			ErrorDetail: services.Detail(err),
		})
		return
	}
	w.publish(statusEvent{
		Handle:    env.Handle,
		JobID:     env.Task.JobID,
		Status:    StatusDone,
		ResultRef: ref,
	})
}

func (w *Worker) publish(event statusEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := w.conn.Publish(w.prefix+statusSubjectSuffix, payload); err != nil {
		w.logger.Warn("status publish failed",
			logging.FieldJobID, event.JobID,
			logging.Error(err))
	}
}
