package jobs

import (
	"strings"
	"time"
)

// State represents the lifecycle of an analysis job.
type State string

const (
	StatePending   State = "pending"
	StateValidated State = "validated"
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// DaemonStopReason is the error detail set when running jobs are requeued due
// to daemon shutdown.
const DaemonStopReason = "daemon stopped"

var allStates = []State{
	StatePending,
	StateValidated,
	StateQueued,
	StateRunning,
	StateSucceeded,
	StateFailed,
	StateCancelled,
}

var stateSet = func() map[State]struct{} {
	set := make(map[State]struct{}, len(allStates))
	for _, state := range allStates {
		set[state] = struct{}{}
	}
	return set
}()

// allowedTransitions is the single authority over lifecycle changes.
// failed -> queued is the retry edge, queued -> failed covers jobs the
// dispatcher terminates before submission; everything else out of a
// terminal state is rejected.
var allowedTransitions = map[State][]State{
	StatePending:   {StateValidated, StateCancelled},
	StateValidated: {StateQueued, StateCancelled},
	StateQueued:    {StateRunning, StateFailed, StateCancelled},
	StateRunning:   {StateSucceeded, StateFailed, StateCancelled, StateQueued},
	StateFailed:    {StateQueued},
}

// CanTransition reports whether the lifecycle permits moving between states.
func CanTransition(from, to State) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a state ends the lifecycle. failed is terminal
// in the write-once sense once the retry budget is exhausted; the retry edge
// is still expressed through the transition table.
func (s State) IsTerminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// AllStates returns the ordered list of known states.
func AllStates() []State {
	cp := make([]State, len(allStates))
	copy(cp, allStates)
	return cp
}

// ParseState converts a string into a known State.
func ParseState(value string) (State, bool) {
	normalized := State(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := stateSet[normalized]
	return normalized, ok
}

// HealthSummary describes aggregated job counts per key lifecycle states.
type HealthSummary struct {
	Total     int
	Waiting   int
	Running   int
	Succeeded int
	Failed    int
	Cancelled int
}

// Job is the mutable lifecycle record wrapping an immutable descriptor.
// Descriptor fields (ID through SubmittedAt) never change after insertion;
// the remainder is owned by the state machine and the dispatcher.
type Job struct {
	// Descriptor.
	ID         string
	Seq        int64
	DatasetID  string
	Algorithm  string
	ParamsJSON string
	Requester  string
	CreatedAt  time.Time

	// Lifecycle.
	State           State
	Progress        float64
	ProgressMessage string
	ErrorDetail     string
	ResultRef       string
	RetryCount      int
	NotBefore       *time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	UpdatedAt       time.Time
}

// IsInFlight reports whether the job occupies a dispatcher slot.
func (j *Job) IsInFlight() bool {
	return j != nil && j.State == StateRunning
}

// ElapsedSeconds returns the wall-clock processing time for a finished run.
func (j *Job) ElapsedSeconds() float64 {
	if j == nil || j.StartedAt == nil || j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(*j.StartedAt).Seconds()
}

// Eligible reports whether a queued job's backoff window has passed.
func (j *Job) Eligible(now time.Time) bool {
	if j == nil || j.State != StateQueued {
		return false
	}
	return j.NotBefore == nil || !now.Before(*j.NotBefore)
}
