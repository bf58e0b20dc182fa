package results

import (
	"context"
	"log/slog"
	"time"

	"strata/internal/logging"
)

// Sweep deletes artifacts of terminal jobs whose completion predates the
// retention window. Returns the number of artifacts removed. A zero or
// negative retention disables the sweep.
func (s *Store) Sweep(ctx context.Context, retention time.Duration, logger *slog.Logger) (int, error) {
	if retention <= 0 || s.jobs == nil {
		return 0, nil
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	cutoff := time.Now().Add(-retention)
	expired, err := s.jobs.TerminalBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, job := range expired {
		if !s.Exists(job.ID) {
			continue
		}
		if err := s.Delete(ctx, job.ID); err != nil {
			logger.Warn("retention sweep could not delete artifact",
				logging.String(logging.FieldJobID, job.ID),
				logging.Error(err),
			)
			continue
		}
		removed++
	}
	if removed > 0 {
		logger.Info("retention sweep removed expired artifacts", logging.Int("count", removed))
	}
	return removed, nil
}
