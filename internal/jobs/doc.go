// Package jobs persists analysis jobs in SQLite and owns the job state
// machine. The transition table lives here and Store.Transition is the
// only code path that mutates a job's state; the dispatcher, the task
// queue adapter, and the API layer propose transitions and handle
// rejection when a proposal loses a race against a terminal state.
package jobs
