package ipc

import (
	"strata/internal/api"
	"strata/internal/dataset"
	"strata/internal/results"
)

// StartRequest triggers daemon startup.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops the daemon.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon and dispatcher status.
type StatusResponse struct {
	Running    bool           `json:"running"`
	Inflight   int            `json:"inflight"`
	SlotsUsed  int            `json:"slots_used"`
	QueueStats map[string]int `json:"queue_stats"`
	LastError  string         `json:"last_error"`
	JobDBPath  string         `json:"job_db_path"`
	LockPath   string         `json:"lock_path"`
	APIBind    string         `json:"api_bind"`
	PID        int            `json:"pid"`
}

// SubmitRequest enqueues a new analysis job.
type SubmitRequest struct {
	DatasetID string         `json:"dataset_id"`
	Algorithm string         `json:"algorithm"`
	Params    map[string]any `json:"params"`
	Requester string         `json:"requester"`
}

// SubmitResponse carries the accepted job.
type SubmitResponse struct {
	Job *api.JobView `json:"job"`
}

// JobListRequest filters job listing by dataset. Empty means all datasets.
type JobListRequest struct {
	DatasetID string `json:"dataset_id"`
}

// JobListResponse contains job entries in submission order.
type JobListResponse struct {
	Jobs []*api.JobView `json:"jobs"`
}

// JobGetRequest fetches a single job by id.
type JobGetRequest struct {
	JobID string `json:"job_id"`
}

// JobGetResponse contains a single job entry.
type JobGetResponse struct {
	Job *api.JobView `json:"job"`
}

// CancelRequest cancels a job by id.
type CancelRequest struct {
	JobID  string `json:"job_id"`
	Reason string `json:"reason"`
}

// CancelResponse carries the job after cancellation.
type CancelResponse struct {
	Job *api.JobView `json:"job"`
}

// ResultRequest fetches result metadata for a completed job.
type ResultRequest struct {
	JobID string `json:"job_id"`
}

// ResultResponse carries result metadata and the summary statistics.
// Volume samples stay on disk; clients read them through the result store.
type ResultResponse struct {
	Artifact *results.Artifact `json:"artifact"`
}

// AlgorithmsRequest fetches the algorithm catalog.
type AlgorithmsRequest struct{}

// AlgorithmsResponse lists registered algorithms with their parameter schemas.
type AlgorithmsResponse struct {
	Algorithms []api.AlgorithmView `json:"algorithms"`
}

// DatasetsRequest lists available datasets.
type DatasetsRequest struct{}

// DatasetsResponse contains dataset descriptors.
type DatasetsResponse struct {
	Datasets []dataset.Info `json:"datasets"`
}

// TestNotificationRequest triggers a notification delivery test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
