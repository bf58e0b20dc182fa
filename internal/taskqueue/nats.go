package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"strata/internal/jobs"
	"strata/internal/logging"
	"strata/internal/services"
)

const (
	taskSubjectSuffix   = ".tasks"
	statusSubjectSuffix = ".status"
	cancelSubjectSuffix = ".cancel"
	workerQueueGroup    = "strata-workers"
)

// envelope carries a task plus its tracking handle over the broker.
type envelope struct {
	Handle string `json:"handle"`
	Task   Task   `json:"task"`
}

// statusEvent is published by workers as an execution progresses. Terminal
// events carry either a result reference or a classified error.
type statusEvent struct {
	Handle      string  `json:"handle"`
	JobID       string  `json:"job_id"`
	Status      Status  `json:"status"`
	ResultRef   string  `json:"result_ref,omitempty"`
	ErrorKind   string  `json:"error_kind,omitempty"`
	ErrorDetail string  `json:"error_detail,omitempty"`
	Fraction    float64 `json:"fraction,omitempty"`
	Message     string  `json:"message,omitempty"`
}

type cancelEvent struct {
	Handle string `json:"handle"`
}

// DialNATS connects to a NATS broker with the reconnect posture suited to
// a long-lived daemon.
func DialNATS(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
}

// NATSAdapter publishes tasks to a broker subject and tracks executions
// from the status events workers send back. Workers share the result
// directory with the daemon; terminal events carry only the reference.
type NATSAdapter struct {
	conn     *nats.Conn
	prefix   string
	progress ProgressSink
	logger   *slog.Logger
	sub      *nats.Subscription

	mu         sync.Mutex
	executions map[Handle]*execution
}

// NewNATSAdapter wires an adapter over an established connection and
// subscribes to the worker status stream.
func NewNATSAdapter(conn *nats.Conn, subjectPrefix string, progress ProgressSink, logger *slog.Logger) (*NATSAdapter, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	a := &NATSAdapter{
		conn:       conn,
		prefix:     subjectPrefix,
		progress:   progress,
		logger:     logging.NewComponentLogger(logger, "taskqueue"),
		executions: make(map[Handle]*execution),
	}
	sub, err := conn.Subscribe(subjectPrefix+statusSubjectSuffix, a.onStatus)
	if err != nil {
		return nil, services.Wrap(services.ErrFatal, "taskqueue", "subscribe status", subjectPrefix, err)
	}
	a.sub = sub
	return a, nil
}

func (a *NATSAdapter) Submit(ctx context.Context, job *jobs.Job) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return "", services.Wrap(services.ErrTransient, "taskqueue", "submit", job.ID, err)
	}
	task, err := TaskFromJob(job)
	if err != nil {
		return "", err
	}

	handle := Handle(uuid.NewString())
	payload, err := json.Marshal(envelope{Handle: string(handle), Task: task})
	if err != nil {
		return "", services.Wrap(services.ErrFatal, "taskqueue", "submit", "encode task envelope", err)
	}

	a.mu.Lock()
	a.executions[handle] = &execution{status: StatusPending}
	a.mu.Unlock()

	if err := a.conn.Publish(a.prefix+taskSubjectSuffix, payload); err != nil {
		a.mu.Lock()
		delete(a.executions, handle)
		a.mu.Unlock()
		return "", services.Wrap(services.ErrTransient, "taskqueue", "submit", "publish task", err)
	}
	return handle, nil
}

func (a *NATSAdapter) Poll(handle Handle) Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	exec, ok := a.executions[handle]
	if !ok {
		return StatusFailed
	}
	return exec.status
}

func (a *NATSAdapter) Outcome(handle Handle) (Outcome, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	exec, ok := a.executions[handle]
	if !ok || !exec.status.Terminal() {
		return Outcome{}, false
	}
	return exec.outcome, true
}

func (a *NATSAdapter) Cancel(handle Handle) bool {
	a.mu.Lock()
	exec, ok := a.executions[handle]
	if !ok || exec.status.Terminal() {
		a.mu.Unlock()
		return false
	}
	withdrawn := exec.status == StatusPending
	a.mu.Unlock()

	payload, err := json.Marshal(cancelEvent{Handle: string(handle)})
	if err != nil {
		return false
	}
	if err := a.conn.Publish(a.prefix+cancelSubjectSuffix, payload); err != nil {
		a.logger.Warn("cancel publish failed", logging.Error(err))
		return false
	}
	return withdrawn
}

func (a *NATSAdapter) Release(handle Handle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.executions, handle)
}

func (a *NATSAdapter) Close() error {
	if a.sub != nil {
		_ = a.sub.Unsubscribe()
	}
	return a.conn.Drain()
}

func (a *NATSAdapter) onStatus(msg *nats.Msg) {
	var event statusEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		a.logger.Warn("discarding malformed status event", logging.Error(err))
		return
	}

	if event.Status == StatusRunning && a.progress != nil && event.JobID != "" {
		a.progress(event.JobID, event.Fraction, event.Message)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	exec, ok := a.executions[Handle(event.Handle)]
	if !ok || exec.status.Terminal() {
		return
	}
	exec.status = event.Status
	switch event.Status {
	case StatusDone:
		exec.outcome = Outcome{ResultRef: event.ResultRef}
	case StatusFailed:
		exec.outcome = Outcome{Err: errorFromEvent(event)}
	}
}

// errorFromEvent rebuilds a classified error from its wire form so the
// dispatcher's retry policy works identically across backends.
func errorFromEvent(event statusEvent) error {
	detail := event.ErrorDetail
	if detail == "" {
		detail = "worker reported failure without detail"
	}
	var marker error
	switch event.ErrorKind {
	case "transient":
		marker = services.ErrTransient
	case "timeout":
		marker = services.ErrTimeout
	case "validation":
		marker = services.ErrValidation
	case "unknown_algorithm":
		marker = services.ErrUnknownAlgorithm
	case "not_found":
		marker = services.ErrNotFound
	default:
		marker = services.ErrFatal
	}
	return fmt.Errorf("%w: %s", marker, detail)
}
