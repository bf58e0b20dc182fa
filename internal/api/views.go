package api

import (
	"encoding/json"
	"time"

	"strata/internal/jobs"
	"strata/internal/registry"
)

// JobView is the externally visible shape of a job.
type JobView struct {
	ID              string          `json:"id"`
	DatasetID       string          `json:"dataset_id"`
	Algorithm       string          `json:"algorithm"`
	Params          json.RawMessage `json:"params,omitempty"`
	Requester       string          `json:"requester,omitempty"`
	State           string          `json:"state"`
	Progress        float64         `json:"progress"`
	ProgressMessage string          `json:"progress_message,omitempty"`
	ErrorDetail     string          `json:"error_detail,omitempty"`
	ResultRef       string          `json:"result_ref,omitempty"`
	RetryCount      int             `json:"retry_count"`
	CreatedAt       time.Time       `json:"created_at"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	ElapsedSeconds  float64         `json:"elapsed_seconds,omitempty"`
}

// NewJobView projects a stored job into its API shape.
func NewJobView(job *jobs.Job) *JobView {
	if job == nil {
		return nil
	}
	view := &JobView{
		ID:              job.ID,
		DatasetID:       job.DatasetID,
		Algorithm:       job.Algorithm,
		Requester:       job.Requester,
		State:           string(job.State),
		Progress:        job.Progress,
		ProgressMessage: job.ProgressMessage,
		ErrorDetail:     job.ErrorDetail,
		ResultRef:       job.ResultRef,
		RetryCount:      job.RetryCount,
		CreatedAt:       job.CreatedAt,
		StartedAt:       job.StartedAt,
		CompletedAt:     job.CompletedAt,
		ElapsedSeconds:  job.ElapsedSeconds(),
	}
	if job.ParamsJSON != "" {
		view.Params = json.RawMessage(job.ParamsJSON)
	}
	return view
}

// ParamView describes one parameter of an algorithm schema.
type ParamView struct {
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Required bool     `json:"required"`
	Default  any      `json:"default,omitempty"`
	Min      *float64 `json:"min,omitempty"`
	Max      *float64 `json:"max,omitempty"`
	OneOf    []string `json:"one_of,omitempty"`
}

// AlgorithmView describes one registered algorithm.
type AlgorithmView struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Cost        int         `json:"cost"`
	Params      []ParamView `json:"params,omitempty"`
}

// NewAlgorithmView projects a registry spec into its API shape.
func NewAlgorithmView(spec registry.AlgorithmSpec) AlgorithmView {
	view := AlgorithmView{
		Name:        spec.Name,
		Description: spec.Description,
		Cost:        spec.Cost,
	}
	for _, field := range spec.Schema.Fields {
		view.Params = append(view.Params, ParamView{
			Name:     field.Name,
			Type:     string(field.Type),
			Required: field.Required,
			Default:  field.Default,
			Min:      field.Min,
			Max:      field.Max,
			OneOf:    field.OneOf,
		})
	}
	return view
}
