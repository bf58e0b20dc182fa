package api_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"strata/internal/algorithms"
	"strata/internal/api"
	"strata/internal/dataset"
	"strata/internal/jobs"
	"strata/internal/registry"
	"strata/internal/results"
	"strata/internal/services"
	"strata/internal/testsupport"
)

func newService(t *testing.T) (*api.Service, *jobs.Store, *results.Store) {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	info := dataset.Info{
		ID:           "survey-7",
		Name:         "Survey 7 stack",
		Format:       "f32",
		Inlines:      2,
		Crosslines:   2,
		Samples:      16,
		SampleRateMs: 4,
	}
	data := make([]float32, info.TraceCount()*info.Samples)
	if err := dataset.Write(cfg.Paths.DatasetDir, info, data); err != nil {
		t.Fatalf("write dataset: %v", err)
	}

	reg := registry.New()
	if err := algorithms.RegisterBuiltins(reg); err != nil {
		t.Fatalf("register builtins: %v", err)
	}

	resultStore := results.NewStore(cfg.Paths.ResultsDir, store)
	svc := api.NewService(store, reg, dataset.NewDirProvider(cfg.Paths.DatasetDir), resultStore, nil, nil)
	return svc, store, resultStore
}

func TestSubmitJobQueuesValidRequest(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	view, err := svc.SubmitJob(ctx, api.SubmitRequest{
		DatasetID: "survey-7",
		Algorithm: "noise_reduction",
		Params: map[string]any{
			"low_frequency":  5.0,
			"high_frequency": 50.0,
		},
		Requester: "interp-team",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if view.State != string(jobs.StateQueued) {
		t.Fatalf("submitted job state = %s, want queued", view.State)
	}

	// Defaults fill in alongside the supplied values.
	if !strings.Contains(string(view.Params), `"sample_rate":4`) {
		t.Fatalf("normalized params = %s", view.Params)
	}

	stored, err := store.GetByID(ctx, view.ID)
	if err != nil {
		t.Fatalf("load stored job: %v", err)
	}
	if stored == nil || stored.State != jobs.StateQueued {
		t.Fatalf("stored job = %+v", stored)
	}
}

func TestSubmitJobRejectsInvalidBandWithoutJobRow(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	_, err := svc.SubmitJob(ctx, api.SubmitRequest{
		DatasetID: "survey-7",
		Algorithm: "noise_reduction",
		Params: map[string]any{
			"low_frequency":  60.0,
			"high_frequency": 50.0,
		},
	})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	views, err := svc.ListJobs(ctx, "")
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	if len(views) != 0 {
		t.Fatalf("rejected submission left %d job rows", len(views))
	}
}

func TestSubmitJobRejectsUnknownAlgorithm(t *testing.T) {
	svc, _, _ := newService(t)

	_, err := svc.SubmitJob(context.Background(), api.SubmitRequest{
		DatasetID: "survey-7",
		Algorithm: "spectral_decomposition",
	})
	if !errors.Is(err, services.ErrUnknownAlgorithm) {
		t.Fatalf("expected unknown algorithm, got %v", err)
	}
}

func TestSubmitJobRejectsUnknownDataset(t *testing.T) {
	svc, _, _ := newService(t)

	_, err := svc.SubmitJob(context.Background(), api.SubmitRequest{
		DatasetID: "survey-404",
		Algorithm: "agc",
	})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for missing dataset, got %v", err)
	}
}

func TestListJobsKeepsInsertionOrder(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		view, err := svc.SubmitJob(ctx, api.SubmitRequest{
			DatasetID: "survey-7",
			Algorithm: "agc",
		})
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		ids = append(ids, view.ID)
	}

	views, err := svc.ListJobs(ctx, "survey-7")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(views) != 3 {
		t.Fatalf("listed %d jobs", len(views))
	}
	for i, view := range views {
		if view.ID != ids[i] {
			t.Fatalf("position %d holds %s, want %s", i, view.ID, ids[i])
		}
	}
}

func TestCancelQueuedJob(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	view, err := svc.SubmitJob(ctx, api.SubmitRequest{DatasetID: "survey-7", Algorithm: "agc"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	cancelled, err := svc.CancelJob(ctx, view.ID, "changed my mind")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.State != string(jobs.StateCancelled) {
		t.Fatalf("state = %s, want cancelled", cancelled.State)
	}

	if _, err := svc.CancelJob(ctx, view.ID, "again"); !errors.Is(err, jobs.ErrAlreadyTerminal) {
		t.Fatalf("second cancel should report terminal, got %v", err)
	}
}

func TestCancelMissingJob(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.CancelJob(context.Background(), "no-such-job", "")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGetResultLifecycle(t *testing.T) {
	svc, store, resultStore := newService(t)
	ctx := context.Background()

	view, err := svc.SubmitJob(ctx, api.SubmitRequest{DatasetID: "survey-7", Algorithm: "agc"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Queued: not terminal yet.
	if _, err := svc.GetResult(ctx, view.ID); !errors.Is(err, services.ErrJobNotTerminal) {
		t.Fatalf("queued job result err = %v", err)
	}

	// Walk to succeeded with an artifact in place.
	if _, err := store.MarkRunning(ctx, view.ID); err != nil {
		t.Fatalf("mark running: %v", err)
	}
	artifact := &results.Artifact{
		JobID:     view.ID,
		DatasetID: "survey-7",
		Algorithm: "agc",
		Dims:      [3]int{2, 2, 16},
		Data:      make([]float32, 64),
	}
	if err := resultStore.Put(ctx, artifact); err != nil {
		t.Fatalf("put artifact: %v", err)
	}
	if _, err := store.MarkSucceeded(ctx, view.ID, view.ID); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	got, err := svc.GetResult(ctx, view.ID)
	if err != nil {
		t.Fatalf("get result: %v", err)
	}
	if got.Dims != [3]int{2, 2, 16} {
		t.Fatalf("artifact dims = %v", got.Dims)
	}

	if _, err := svc.GetResult(ctx, "no-such-job"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("missing job result err = %v", err)
	}
}

func TestGetResultOfFailedJobExplainsFailure(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	view, err := svc.SubmitJob(ctx, api.SubmitRequest{DatasetID: "survey-7", Algorithm: "agc"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := store.MarkRunning(ctx, view.ID); err != nil {
		t.Fatalf("mark running: %v", err)
	}
	if _, err := store.MarkFailed(ctx, view.ID, "dataset volume unreadable"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	_, err = svc.GetResult(ctx, view.ID)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("failed job result err = %v", err)
	}
	if !strings.Contains(err.Error(), "dataset volume unreadable") {
		t.Fatalf("failure detail missing from %v", err)
	}
}

func TestListAlgorithmsDescribesSchemas(t *testing.T) {
	svc, _, _ := newService(t)

	views := svc.ListAlgorithms()
	if len(views) != 4 {
		t.Fatalf("listed %d algorithms", len(views))
	}

	var noiseReduction *api.AlgorithmView
	for i := range views {
		if views[i].Name == "noise_reduction" {
			noiseReduction = &views[i]
		}
	}
	if noiseReduction == nil {
		t.Fatal("noise_reduction missing from catalog")
	}
	if len(noiseReduction.Params) != 4 {
		t.Fatalf("noise_reduction params = %+v", noiseReduction.Params)
	}
}
