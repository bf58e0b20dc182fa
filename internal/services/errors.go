package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation         = errors.New("validation error")
	ErrUnknownAlgorithm   = errors.New("unknown algorithm")
	ErrDuplicateAlgorithm = errors.New("duplicate algorithm")
	ErrTransient          = errors.New("transient failure")
	ErrFatal              = errors.New("fatal failure")
	ErrNotFound           = errors.New("not found")
	ErrJobNotTerminal     = errors.New("job not terminal")
	ErrTimeout            = errors.New("timeout")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsTransient reports whether an error should be absorbed by the retry loop.
// Timeouts count as transient per the watchdog policy.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrTimeout)
}

// IsFatal reports whether an error terminates a job with no retry.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal) || errors.Is(err, ErrValidation)
}

// Classify normalizes an arbitrary error crossing the worker boundary.
// Errors already tagged keep their marker; anything untagged defaults to
// fatal so a misbehaving algorithm cannot spin the retry loop.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if IsTransient(err) || IsFatal(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrFatal, err)
}

// Detail extracts a human-readable message with sentinel prefixes stripped,
// suitable for persisting as a job's error detail.
func Detail(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, sentinel := range []error{
		ErrValidation, ErrUnknownAlgorithm, ErrDuplicateAlgorithm,
		ErrTransient, ErrFatal, ErrNotFound, ErrJobNotTerminal, ErrTimeout,
	} {
		prefix := sentinel.Error() + ": "
		if strings.HasPrefix(msg, prefix) && len(msg) > len(prefix) {
			return strings.TrimSpace(msg[len(prefix):])
		}
	}
	return strings.TrimSpace(msg)
}

// Kind returns a short classification label used in structured log fields.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrUnknownAlgorithm):
		return "unknown_algorithm"
	case errors.Is(err, ErrDuplicateAlgorithm):
		return "duplicate_algorithm"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrTransient):
		return "transient"
	case errors.Is(err, ErrFatal):
		return "fatal"
	case errors.Is(err, ErrJobNotTerminal):
		return "job_not_terminal"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "unclassified"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
