package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const jobColumns = `seq, id, dataset_id, algorithm, params_json, requester, state,
    progress, progress_message, error_detail, result_ref, retry_count,
    not_before, started_at, completed_at, created_at, updated_at`

// NewJob inserts a pending job for the given descriptor fields and returns it.
// The job id is generated here; descriptor fields are immutable afterwards.
func (s *Store) NewJob(ctx context.Context, datasetID, algorithm, paramsJSON, requester string) (*Job, error) {
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	id := uuid.NewString()

	if strings.TrimSpace(paramsJSON) == "" {
		paramsJSON = "{}"
	}

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO jobs (
            id, dataset_id, algorithm, params_json, requester, state,
            progress, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		datasetID,
		algorithm,
		paramsJSON,
		nullableString(requester),
		StatePending,
		0.0,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a job by identifier. Returns (nil, nil) when absent.
func (s *Store) GetByID(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListByDataset returns a dataset's jobs in insertion order.
func (s *Store) ListByDataset(ctx context.Context, datasetID string) ([]*Job, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE dataset_id = ? ORDER BY seq`,
		datasetID,
	)
	if err != nil {
		return nil, fmt.Errorf("list jobs by dataset: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// List returns jobs matching any of the provided states in insertion order.
// With no states it returns every job.
func (s *Store) List(ctx context.Context, states ...State) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := make([]any, 0, len(states))
	if len(states) > 0 {
		query += ` WHERE state IN (` + makePlaceholders(len(states)) + `)`
		for _, state := range states {
			args = append(args, state)
		}
	}
	query += ` ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// QueuedReady returns queued jobs whose backoff window has passed, oldest
// first. The dispatcher walks this list applying per-dataset slots.
func (s *Store) QueuedReady(ctx context.Context, now time.Time) ([]*Job, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs
         WHERE state = ? AND (not_before IS NULL OR not_before <= ?)
         ORDER BY seq`,
		StateQueued,
		now.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("list ready jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// RunningCountByDataset returns the number of running jobs per dataset.
func (s *Store) RunningCountByDataset(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT dataset_id, COUNT(1) FROM jobs WHERE state = ? GROUP BY dataset_id`,
		StateRunning,
	)
	if err != nil {
		return nil, fmt.Errorf("count running jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var dataset string
		var count int
		if err := rows.Scan(&dataset, &count); err != nil {
			return nil, fmt.Errorf("scan running count: %w", err)
		}
		counts[dataset] = count
	}
	return counts, rows.Err()
}

// UpdateProgress persists worker-reported progress for an in-flight job.
// State is untouched; only the state machine moves it.
func (s *Store) UpdateProgress(ctx context.Context, id string, fraction float64, message string) error {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	_, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET progress = ?, progress_message = ?, updated_at = ? WHERE id = ? AND state = ?`,
		fraction,
		nullableString(message),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StateRunning,
	)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// Health reports aggregated queue statistics.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(1) FROM jobs GROUP BY state`)
	if err != nil {
		return HealthSummary{}, fmt.Errorf("aggregate jobs: %w", err)
	}
	defer rows.Close()

	var summary HealthSummary
	for rows.Next() {
		var state State
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return HealthSummary{}, fmt.Errorf("scan aggregate: %w", err)
		}
		summary.Total += count
		switch state {
		case StatePending, StateValidated, StateQueued:
			summary.Waiting += count
		case StateRunning:
			summary.Running += count
		case StateSucceeded:
			summary.Succeeded += count
		case StateFailed:
			summary.Failed += count
		case StateCancelled:
			summary.Cancelled += count
		}
	}
	return summary, rows.Err()
}

// Delete removes a job row. Used by retention together with the result store.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// TerminalBefore returns terminal jobs whose completion predates the cutoff.
func (s *Store) TerminalBefore(ctx context.Context, cutoff time.Time) ([]*Job, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs
         WHERE state IN (?, ?, ?) AND completed_at IS NOT NULL AND completed_at < ?
         ORDER BY seq`,
		StateSucceeded,
		StateFailed,
		StateCancelled,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("list terminal jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

func collectJobs(rows *sql.Rows) ([]*Job, error) {
	var items []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		items = append(items, job)
	}
	return items, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		job             Job
		requester       sql.NullString
		progressMessage sql.NullString
		errorDetail     sql.NullString
		resultRef       sql.NullString
		notBefore       sql.NullString
		startedAt       sql.NullString
		completedAt     sql.NullString
		createdAt       string
		updatedAt       string
	)

	if err := row.Scan(
		&job.Seq,
		&job.ID,
		&job.DatasetID,
		&job.Algorithm,
		&job.ParamsJSON,
		&requester,
		&job.State,
		&job.Progress,
		&progressMessage,
		&errorDetail,
		&resultRef,
		&job.RetryCount,
		&notBefore,
		&startedAt,
		&completedAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	job.Requester = requester.String
	job.ProgressMessage = progressMessage.String
	job.ErrorDetail = errorDetail.String
	job.ResultRef = resultRef.String

	var err error
	if job.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if job.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if job.NotBefore, err = parseOptionalTimestamp(notBefore); err != nil {
		return nil, fmt.Errorf("parse not_before: %w", err)
	}
	if job.StartedAt, err = parseOptionalTimestamp(startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if job.CompletedAt, err = parseOptionalTimestamp(completedAt); err != nil {
		return nil, fmt.Errorf("parse completed_at: %w", err)
	}

	return &job, nil
}

func parseTimestamp(value string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, value)
}

func parseOptionalTimestamp(value sql.NullString) (*time.Time, error) {
	if !value.Valid || strings.TrimSpace(value.String) == "" {
		return nil, nil
	}
	ts, err := parseTimestamp(value.String)
	if err != nil {
		return nil, err
	}
	return &ts, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func formatOptionalTime(ts *time.Time) any {
	if ts == nil {
		return nil
	}
	return ts.UTC().Format(time.RFC3339Nano)
}

func makePlaceholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
