package taskqueue

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"strata/internal/jobs"
	"strata/internal/services"
)

// submissionBuffer bounds how many accepted-but-unstarted tasks the pool
// holds. The dispatcher's slot accounting keeps submissions well under
// this; hitting the bound is backpressure, not an error state.
const submissionBuffer = 256

type inprocItem struct {
	handle Handle
	task   Task
	ctx    context.Context
}

type execution struct {
	status  Status
	outcome Outcome
	cancel  context.CancelFunc
}

// InProc executes tasks on a fixed worker pool inside the daemon process.
// This is the default backend: no broker, no network, results land on the
// local result store.
type InProc struct {
	exec      *Executor
	items     chan inprocItem
	group     *errgroup.Group
	cancelAll context.CancelFunc

	mu         sync.Mutex
	executions map[Handle]*execution
	closed     bool
}

// NewInProc starts an in-process pool with the given worker count.
func NewInProc(exec *Executor, workers int) *InProc {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	group, groupCtx := errgroup.WithContext(ctx)

	q := &InProc{
		exec:       exec,
		items:      make(chan inprocItem, submissionBuffer),
		group:      group,
		cancelAll:  cancel,
		executions: make(map[Handle]*execution),
	}
	for i := 0; i < workers; i++ {
		group.Go(func() error {
			q.worker(groupCtx)
			return nil
		})
	}
	return q
}

func (q *InProc) Submit(ctx context.Context, job *jobs.Job) (Handle, error) {
	task, err := TaskFromJob(job)
	if err != nil {
		return "", err
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return "", services.Wrap(services.ErrTransient, "taskqueue", "submit", "worker pool is shut down", nil)
	}
	handle := Handle(uuid.NewString())
	taskCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	q.executions[handle] = &execution{status: StatusPending, cancel: cancel}
	q.mu.Unlock()

	select {
	case q.items <- inprocItem{handle: handle, task: task, ctx: taskCtx}:
		return handle, nil
	default:
		q.mu.Lock()
		delete(q.executions, handle)
		q.mu.Unlock()
		cancel()
		return "", services.Wrap(services.ErrTransient, "taskqueue", "submit", "worker pool backlog is full", nil)
	}
}

func (q *InProc) Poll(handle Handle) Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	exec, ok := q.executions[handle]
	if !ok {
		return StatusFailed
	}
	return exec.status
}

func (q *InProc) Outcome(handle Handle) (Outcome, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	exec, ok := q.executions[handle]
	if !ok || !exec.status.Terminal() {
		return Outcome{}, false
	}
	return exec.outcome, true
}

func (q *InProc) Cancel(handle Handle) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	exec, ok := q.executions[handle]
	if !ok || exec.status.Terminal() || exec.cancel == nil {
		return false
	}
	withdrawn := exec.status == StatusPending
	exec.cancel()
	return withdrawn
}

func (q *InProc) Release(handle Handle) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if exec, ok := q.executions[handle]; ok && exec.cancel != nil {
		exec.cancel()
	}
	delete(q.executions, handle)
}

// Close refuses further submissions, interrupts in-flight executions, and
// waits for the workers to unwind. The dispatcher requeues anything it
// had marked running.
func (q *InProc) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	q.cancelAll()
	return q.group.Wait()
}

func (q *InProc) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-q.items:
			q.run(ctx, item)
		}
	}
}

func (q *InProc) run(poolCtx context.Context, item inprocItem) {
	q.mu.Lock()
	exec, ok := q.executions[item.handle]
	if !ok {
		// Released before a worker picked it up.
		q.mu.Unlock()
		return
	}
	if err := item.ctx.Err(); err != nil {
		// Withdrawn while still waiting for a worker.
		exec.status = StatusFailed
		exec.outcome = Outcome{Err: services.Wrap(services.ErrTransient, "taskqueue", "execute", "task withdrawn before execution", err)}
		q.mu.Unlock()
		return
	}
	exec.status = StatusRunning
	q.mu.Unlock()

	// Pool shutdown interrupts the task alongside its own cancel.
	runCtx, stop := context.WithCancel(item.ctx)
	defer stop()
	go func() {
		select {
		case <-poolCtx.Done():
			stop()
		case <-runCtx.Done():
		}
	}()

	ref, err := q.exec.Run(runCtx, item.task)

	q.mu.Lock()
	defer q.mu.Unlock()
	exec, ok = q.executions[item.handle]
	if !ok {
		return
	}
	if err != nil {
		exec.status = StatusFailed
		exec.outcome = Outcome{Err: err}
		return
	}
	exec.status = StatusDone
	exec.outcome = Outcome{ResultRef: ref}
}
