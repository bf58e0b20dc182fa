package results_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"strata/internal/jobs"
	"strata/internal/results"
	"strata/internal/services"
	"strata/internal/testsupport"
)

func openStores(t *testing.T) (*jobs.Store, *results.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	jobStore := testsupport.MustOpenStore(t, cfg)
	return jobStore, results.NewStore(cfg.Paths.ResultsDir, jobStore)
}

func terminalJob(t *testing.T, store *jobs.Store, datasetID string) *jobs.Job {
	t.Helper()
	ctx := context.Background()
	job := testsupport.NewJob(t, store, datasetID, "agc", "{}")
	for _, step := range []func() (*jobs.Job, error){
		func() (*jobs.Job, error) { return store.MarkValidated(ctx, job.ID) },
		func() (*jobs.Job, error) { return store.MarkQueued(ctx, job.ID) },
		func() (*jobs.Job, error) { return store.MarkRunning(ctx, job.ID) },
		func() (*jobs.Job, error) { return store.MarkSucceeded(ctx, job.ID, "results/"+job.ID) },
	} {
		if _, err := step(); err != nil {
			t.Fatalf("transition: %v", err)
		}
	}
	return job
}

func TestPutGetRoundTrip(t *testing.T) {
	jobStore, store := openStores(t)
	job := terminalJob(t, jobStore, "survey-1")

	data := []float32{1, 2, 3, 4, 5, 6}
	artifact := &results.Artifact{
		JobID:     job.ID,
		DatasetID: "survey-1",
		Algorithm: "agc",
		Dims:      [3]int{1, 2, 3},
		Summary:   results.Summarize(data),
		Data:      data,
	}
	if err := store.Put(context.Background(), artifact); err != nil {
		t.Fatalf("Put: %v", err)
	}

	loaded, err := store.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if loaded.Algorithm != "agc" || loaded.Dims != [3]int{1, 2, 3} {
		t.Fatalf("metadata = %+v", loaded)
	}
	if len(loaded.Data) != len(data) || loaded.Data[5] != 6 {
		t.Fatalf("data = %v", loaded.Data)
	}
	if loaded.Summary.Max != 6 || loaded.Summary.Min != 1 {
		t.Fatalf("summary = %+v", loaded.Summary)
	}
}

func TestPutOverwritesOnRetry(t *testing.T) {
	jobStore, store := openStores(t)
	job := terminalJob(t, jobStore, "survey-1")
	ctx := context.Background()

	for _, value := range []float32{1, 2} {
		artifact := &results.Artifact{
			JobID: job.ID,
			Dims:  [3]int{1, 1, 1},
			Data:  []float32{value},
		}
		if err := store.Put(ctx, artifact); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	loaded, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(loaded.Data) != 1 || loaded.Data[0] != 2 {
		t.Fatalf("expected overwrite to win, data = %v", loaded.Data)
	}
}

func TestGetMissingArtifact(t *testing.T) {
	_, store := openStores(t)
	_, err := store.Get(context.Background(), "no-such-job")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestDeleteRefusesNonTerminalJob(t *testing.T) {
	jobStore, store := openStores(t)
	job := testsupport.NewJob(t, jobStore, "survey-1", "agc", "{}")

	err := store.Delete(context.Background(), job.ID)
	if !errors.Is(err, services.ErrJobNotTerminal) {
		t.Fatalf("expected job-not-terminal, got %v", err)
	}
}

func TestSweepRemovesExpiredArtifacts(t *testing.T) {
	jobStore, store := openStores(t)
	job := terminalJob(t, jobStore, "survey-1")
	ctx := context.Background()

	artifact := &results.Artifact{JobID: job.ID, Dims: [3]int{1, 1, 1}, Data: []float32{1}}
	if err := store.Put(ctx, artifact); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Retention window of a nanosecond: everything terminal is expired once
	// a little real time passes.
	time.Sleep(5 * time.Millisecond)
	removed, err := store.Sweep(ctx, time.Nanosecond, nil)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if store.Exists(job.ID) {
		t.Fatal("artifact should be gone")
	}
}

func TestSweepDisabledByZeroRetention(t *testing.T) {
	jobStore, store := openStores(t)
	job := terminalJob(t, jobStore, "survey-1")
	ctx := context.Background()
	if err := store.Put(ctx, &results.Artifact{JobID: job.ID, Dims: [3]int{1, 1, 1}, Data: []float32{1}}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	removed, err := store.Sweep(ctx, 0, nil)
	if err != nil || removed != 0 {
		t.Fatalf("Sweep = %d, %v; want 0, nil", removed, err)
	}
	if !store.Exists(job.ID) {
		t.Fatal("artifact should remain")
	}
}
