package jobs

import "errors"

var (
	// ErrNotFound indicates the requested job does not exist.
	ErrNotFound = errors.New("job not found")
	// ErrInvalidTransition indicates a lifecycle change the transition table forbids.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrAlreadyTerminal indicates a proposal against a write-once terminal state.
	// Callers racing a completion against a cancellation discard this.
	ErrAlreadyTerminal = errors.New("job already terminal")
	// ErrStateConflict indicates the job moved between read and write; the
	// proposal lost the race and should be discarded or re-proposed.
	ErrStateConflict = errors.New("job state changed concurrently")
)
