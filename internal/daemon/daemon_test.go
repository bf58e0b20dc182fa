package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"strata/internal/algorithms"
	"strata/internal/api"
	"strata/internal/config"
	"strata/internal/daemon"
	"strata/internal/dataset"
	"strata/internal/dispatcher"
	"strata/internal/jobs"
	"strata/internal/notifications"
	"strata/internal/registry"
	"strata/internal/results"
	"strata/internal/taskqueue"
	"strata/internal/testsupport"
)

func newDaemon(t *testing.T) (*daemon.Daemon, *config.Config) {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	info := dataset.Info{
		ID:           "survey-1",
		Name:         "Survey 1",
		Format:       "f32",
		Inlines:      2,
		Crosslines:   2,
		Samples:      16,
		SampleRateMs: 4,
	}
	data := make([]float32, info.TraceCount()*info.Samples)
	for i := range data {
		data[i] = float32(i % 7)
	}
	if err := dataset.Write(cfg.Paths.DatasetDir, info, data); err != nil {
		t.Fatalf("write dataset: %v", err)
	}

	reg := registry.New()
	if err := algorithms.RegisterBuiltins(reg); err != nil {
		t.Fatalf("register builtins: %v", err)
	}

	resultStore := results.NewStore(cfg.Paths.ResultsDir, store)
	provider := dataset.NewDirProvider(cfg.Paths.DatasetDir)
	exec := &taskqueue.Executor{
		Registry: reg,
		Datasets: provider,
		Results:  resultStore,
		Progress: func(jobID string, fraction float64, message string) {
			_ = store.UpdateProgress(context.Background(), jobID, fraction, message)
		},
		Timeout: time.Duration(cfg.Scheduler.ExecutionTimeout) * time.Second,
	}
	adapter := taskqueue.NewInProc(exec, cfg.TaskQueue.Workers)
	disp := dispatcher.NewManager(cfg, store, adapter, reg, resultStore, notifications.NewService(cfg), nil)
	svc := api.NewService(store, reg, provider, resultStore, disp, nil)

	d, err := daemon.New(cfg, store, disp, svc, resultStore, nil)
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	return d, cfg
}

func startDaemon(t *testing.T, d *daemon.Daemon) {
	t.Helper()
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start daemon: %v", err)
	}
	t.Cleanup(d.Stop)
}

func apiURL(t *testing.T, d *daemon.Daemon, path string) string {
	t.Helper()
	addr := d.APIAddr()
	if addr == "" {
		t.Fatal("api server has no address")
	}
	return "http://" + addr + path
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestDaemonStartStop(t *testing.T) {
	d, _ := newDaemon(t)
	startDaemon(t, d)

	if !d.Running() {
		t.Fatal("daemon not running after start")
	}
	status := d.Status(context.Background())
	if !status.Running || !status.Dispatcher.Running {
		t.Fatalf("status = %+v", status)
	}

	d.Stop()
	if d.Running() {
		t.Fatal("daemon still running after stop")
	}
}

func TestDaemonLockExcludesSecondInstance(t *testing.T) {
	d, _ := newDaemon(t)
	startDaemon(t, d)

	if err := d.Start(context.Background()); err == nil {
		t.Fatal("second start of the same daemon should fail")
	}
}

func TestHTTPSubmitAndTrackJob(t *testing.T) {
	d, _ := newDaemon(t)
	startDaemon(t, d)

	body, _ := json.Marshal(api.SubmitRequest{
		DatasetID: "survey-1",
		Algorithm: "agc",
		Params:    map[string]any{"window_length": 8},
	})
	resp, err := http.Post(apiURL(t, d, "/api/jobs"), "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	var view api.JobView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatalf("decode submit response: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("submit status = %d", resp.StatusCode)
	}

	jobURL := apiURL(t, d, "/api/jobs/"+view.ID)
	deadline := time.Now().Add(10 * time.Second)
	for {
		var current api.JobView
		if code := getJSON(t, jobURL, &current); code != http.StatusOK {
			t.Fatalf("job fetch status = %d", code)
		}
		if current.State == string(jobs.StateSucceeded) {
			break
		}
		if current.State == string(jobs.StateFailed) {
			t.Fatalf("job failed: %s", current.ErrorDetail)
		}
		if time.Now().After(deadline) {
			t.Fatalf("job stuck in %s", current.State)
		}
		time.Sleep(10 * time.Millisecond)
	}

	var artifact results.Artifact
	if code := getJSON(t, jobURL+"/result", &artifact); code != http.StatusOK {
		t.Fatalf("result status = %d", code)
	}
	if artifact.Dims != [3]int{2, 2, 16} {
		t.Fatalf("artifact dims = %v", artifact.Dims)
	}
}

func TestHTTPValidationErrors(t *testing.T) {
	d, _ := newDaemon(t)
	startDaemon(t, d)

	body, _ := json.Marshal(api.SubmitRequest{
		DatasetID: "survey-1",
		Algorithm: "noise_reduction",
		Params: map[string]any{
			"low_frequency":  60.0,
			"high_frequency": 50.0,
		},
	})
	resp, err := http.Post(apiURL(t, d, "/api/jobs"), "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid band status = %d, want 400", resp.StatusCode)
	}

	if code := getJSON(t, apiURL(t, d, "/api/jobs/no-such-job"), nil); code != http.StatusNotFound {
		t.Fatalf("missing job status = %d, want 404", code)
	}
}

func TestHTTPCatalogEndpoints(t *testing.T) {
	d, _ := newDaemon(t)
	startDaemon(t, d)

	var algorithmsResp struct {
		Algorithms []api.AlgorithmView `json:"algorithms"`
	}
	if code := getJSON(t, apiURL(t, d, "/api/algorithms"), &algorithmsResp); code != http.StatusOK {
		t.Fatalf("algorithms status = %d", code)
	}
	if len(algorithmsResp.Algorithms) != 4 {
		t.Fatalf("algorithm catalog size = %d", len(algorithmsResp.Algorithms))
	}

	var datasetsResp struct {
		Datasets []dataset.Info `json:"datasets"`
	}
	if code := getJSON(t, apiURL(t, d, "/api/datasets"), &datasetsResp); code != http.StatusOK {
		t.Fatalf("datasets status = %d", code)
	}
	if len(datasetsResp.Datasets) != 1 || datasetsResp.Datasets[0].ID != "survey-1" {
		t.Fatalf("dataset catalog = %+v", datasetsResp.Datasets)
	}

	var status daemon.Status
	if code := getJSON(t, apiURL(t, d, "/api/status"), &status); code != http.StatusOK {
		t.Fatalf("status endpoint = %d", code)
	}
	if !status.Running {
		t.Fatal("status reports daemon not running")
	}
}
