package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"strata/internal/dataset"
	"strata/internal/dispatcher"
	"strata/internal/jobs"
	"strata/internal/logging"
	"strata/internal/registry"
	"strata/internal/results"
	"strata/internal/services"
)

// Service is the submission and query facade shared by the HTTP API and
// the CLI's IPC surface. All request validation happens here, before any
// job row exists.
type Service struct {
	store      *jobs.Store
	registry   *registry.Registry
	datasets   dataset.Provider
	results    *results.Store
	dispatcher *dispatcher.Manager
	logger     *slog.Logger
}

// NewService wires the facade. The dispatcher may be nil in tooling
// contexts; submission then leaves jobs queued for the next daemon run.
func NewService(store *jobs.Store, reg *registry.Registry, datasets dataset.Provider, resultStore *results.Store, disp *dispatcher.Manager, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		store:      store,
		registry:   reg,
		datasets:   datasets,
		results:    resultStore,
		dispatcher: disp,
		logger:     logging.NewComponentLogger(logger, "api"),
	}
}

// SubmitRequest carries one analysis submission.
type SubmitRequest struct {
	DatasetID string         `json:"dataset_id"`
	Algorithm string         `json:"algorithm"`
	Params    map[string]any `json:"params"`
	Requester string         `json:"requester,omitempty"`
}

// SubmitJob validates a request and persists the job through validated
// into queued. Rejected submissions leave no job row behind.
func (s *Service) SubmitJob(ctx context.Context, req SubmitRequest) (*JobView, error) {
	datasetID := strings.TrimSpace(req.DatasetID)
	if datasetID == "" {
		return nil, services.Wrap(services.ErrValidation, "api", "submit", "dataset_id is required", nil)
	}
	if _, err := s.datasets.Stat(ctx, datasetID); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return nil, services.Wrap(services.ErrValidation, "api", "submit",
				fmt.Sprintf("dataset %s is not registered", datasetID), nil)
		}
		return nil, err
	}

	algorithm := strings.TrimSpace(req.Algorithm)
	params, err := s.registry.Validate(algorithm, req.Params)
	if err != nil {
		return nil, err
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode parameters: %w", err)
	}

	job, err := s.store.NewJob(ctx, datasetID, algorithm, string(paramsJSON), strings.TrimSpace(req.Requester))
	if err != nil {
		return nil, err
	}
	if _, err := s.store.MarkValidated(ctx, job.ID); err != nil {
		return nil, err
	}
	queued, err := s.store.MarkQueued(ctx, job.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("job accepted",
		logging.FieldJobID, queued.ID,
		logging.FieldDatasetID, queued.DatasetID,
		logging.FieldAlgorithm, queued.Algorithm)
	if s.dispatcher != nil {
		s.dispatcher.Wake()
	}
	return NewJobView(queued), nil
}

// GetJob returns one job by id.
func (s *Service) GetJob(ctx context.Context, jobID string) (*JobView, error) {
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return NewJobView(job), nil
}

// ListJobs returns jobs in insertion order, optionally restricted to one
// dataset.
func (s *Service) ListJobs(ctx context.Context, datasetID string) ([]*JobView, error) {
	var (
		list []*jobs.Job
		err  error
	)
	if datasetID = strings.TrimSpace(datasetID); datasetID != "" {
		list, err = s.store.ListByDataset(ctx, datasetID)
	} else {
		list, err = s.store.List(ctx)
	}
	if err != nil {
		return nil, err
	}
	views := make([]*JobView, 0, len(list))
	for _, job := range list {
		views = append(views, NewJobView(job))
	}
	return views, nil
}

// CancelJob cancels a job. Jobs that have not reached a worker cancel
// immediately; running jobs transition now and have their execution
// interrupted best-effort. Terminal jobs refuse.
func (s *Service) CancelJob(ctx context.Context, jobID, reason string) (*JobView, error) {
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	wasRunning := job.State == jobs.StateRunning

	cancelled, err := s.store.MarkCancelled(ctx, jobID, reason)
	if err != nil {
		return nil, err
	}
	if wasRunning && s.dispatcher != nil {
		if !s.dispatcher.CancelRunning(jobID) {
			s.logger.Warn("running job cancelled but no execution to interrupt",
				logging.FieldJobID, jobID)
		}
	}

	s.logger.Info("job cancelled",
		logging.FieldJobID, cancelled.ID,
		logging.FieldDatasetID, cancelled.DatasetID)
	return NewJobView(cancelled), nil
}

// GetResult loads the artifact of a succeeded job. Jobs still in flight
// report not-terminal; failed and cancelled jobs report their fate.
func (s *Service) GetResult(ctx context.Context, jobID string) (*results.Artifact, error) {
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	switch job.State {
	case jobs.StateSucceeded:
		return s.results.Get(ctx, jobID)
	case jobs.StateFailed:
		return nil, services.Wrap(services.ErrNotFound, "api", "result",
			fmt.Sprintf("job %s failed: %s", jobID, job.ErrorDetail), nil)
	case jobs.StateCancelled:
		return nil, services.Wrap(services.ErrNotFound, "api", "result",
			fmt.Sprintf("job %s was cancelled", jobID), nil)
	default:
		return nil, services.Wrap(services.ErrJobNotTerminal, "api", "result",
			fmt.Sprintf("job %s is %s", jobID, job.State), nil)
	}
}

// ListAlgorithms describes the registered algorithm catalog.
func (s *Service) ListAlgorithms() []AlgorithmView {
	specs := s.registry.Specs()
	views := make([]AlgorithmView, 0, len(specs))
	for _, spec := range specs {
		views = append(views, NewAlgorithmView(spec))
	}
	return views
}

// ListDatasets enumerates the dataset catalog.
func (s *Service) ListDatasets(ctx context.Context) ([]dataset.Info, error) {
	return s.datasets.List(ctx)
}

// Status reports dispatcher and queue health.
func (s *Service) Status(ctx context.Context) (dispatcher.Snapshot, error) {
	if s.dispatcher == nil {
		health, err := s.store.Health(ctx)
		if err != nil {
			return dispatcher.Snapshot{}, err
		}
		return dispatcher.Snapshot{Queue: health}, nil
	}
	return s.dispatcher.Status(ctx)
}

func (s *Service) loadJob(ctx context.Context, jobID string) (*jobs.Job, error) {
	job, err := s.store.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, services.Wrap(services.ErrNotFound, "api", "lookup",
			fmt.Sprintf("job %s does not exist", jobID), nil)
	}
	return job, nil
}
