package dispatcher_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"strata/internal/config"
	"strata/internal/dataset"
	"strata/internal/dispatcher"
	"strata/internal/jobs"
	"strata/internal/registry"
	"strata/internal/results"
	"strata/internal/services"
	"strata/internal/taskqueue"
	"strata/internal/testsupport"
)

type fakeNotifier struct {
	mu        sync.Mutex
	completed []string
	failed    []string
	drained   int
}

func (f *fakeNotifier) NotifyJobCompleted(_ context.Context, job *jobs.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, job.ID)
	return nil
}

func (f *fakeNotifier) NotifyJobFailed(_ context.Context, job *jobs.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, job.ID)
	return nil
}

func (f *fakeNotifier) NotifyQueueDrained(context.Context, int, int, time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drained++
	return nil
}

func (f *fakeNotifier) TestNotification(context.Context) error { return nil }

func (f *fakeNotifier) completedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.completed)
}

func (f *fakeNotifier) failedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.failed)
}

func (f *fakeNotifier) drainedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.drained
}

type testEnv struct {
	cfg      *config.Config
	store    *jobs.Store
	registry *registry.Registry
	results  *results.Store
	notifier *fakeNotifier
	manager  *dispatcher.Manager

	release chan struct{}

	mu            sync.Mutex
	transientLeft map[string]int
}

func newTestEnv(t *testing.T, opts ...testsupport.ConfigOption) *testEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)

	for _, id := range []string{"vol-a", "vol-b"} {
		info := dataset.Info{
			ID:           id,
			Name:         id,
			Format:       "f32",
			Inlines:      2,
			Crosslines:   2,
			Samples:      4,
			SampleRateMs: 4,
		}
		data := make([]float32, info.TraceCount()*info.Samples)
		for i := range data {
			data[i] = 1
		}
		if err := dataset.Write(cfg.Paths.DatasetDir, info, data); err != nil {
			t.Fatalf("write dataset %s: %v", id, err)
		}
	}

	env := &testEnv{
		cfg:           cfg,
		store:         store,
		registry:      registry.New(),
		notifier:      &fakeNotifier{},
		release:       make(chan struct{}),
		transientLeft: make(map[string]int),
	}
	env.results = results.NewStore(cfg.Paths.ResultsDir, store)

	passthrough := func(h *dataset.Handle) *results.Artifact {
		il, xl, s := h.Dims()
		out := append([]float32(nil), h.Data()...)
		return &results.Artifact{
			DatasetID: h.Info().ID,
			Algorithm: "test",
			Dims:      [3]int{il, xl, s},
			Summary:   results.Summarize(out),
			Data:      out,
		}
	}

	mustRegister := func(spec registry.AlgorithmSpec) {
		t.Helper()
		if err := env.registry.Register(spec); err != nil {
			t.Fatalf("register %s: %v", spec.Name, err)
		}
	}
	mustRegister(registry.AlgorithmSpec{
		Name: "instant",
		Execute: func(_ context.Context, h *dataset.Handle, _ registry.Params, _ registry.ProgressFunc) (*results.Artifact, error) {
			return passthrough(h), nil
		},
	})
	mustRegister(registry.AlgorithmSpec{
		Name: "block",
		Execute: func(ctx context.Context, h *dataset.Handle, _ registry.Params, _ registry.ProgressFunc) (*results.Artifact, error) {
			select {
			case <-env.release:
				return passthrough(h), nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	})
	mustRegister(registry.AlgorithmSpec{
		Name: "heavy",
		Cost: 2,
		Execute: func(ctx context.Context, h *dataset.Handle, _ registry.Params, _ registry.ProgressFunc) (*results.Artifact, error) {
			select {
			case <-env.release:
				return passthrough(h), nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	})
	mustRegister(registry.AlgorithmSpec{
		Name: "flaky",
		Execute: func(_ context.Context, h *dataset.Handle, p registry.Params, _ registry.ProgressFunc) (*results.Artifact, error) {
			env.mu.Lock()
			left := env.transientLeft["flaky"]
			if left != 0 {
				env.transientLeft["flaky"] = left - 1
				env.mu.Unlock()
				return nil, services.Wrap(services.ErrTransient, "test", "flaky", "simulated infrastructure fault", nil)
			}
			env.mu.Unlock()
			return passthrough(h), nil
		},
	})
	mustRegister(registry.AlgorithmSpec{
		Name: "broken",
		Execute: func(context.Context, *dataset.Handle, registry.Params, registry.ProgressFunc) (*results.Artifact, error) {
			return nil, services.Wrap(services.ErrFatal, "test", "broken", "algorithm defect", nil)
		},
	})

	exec := &taskqueue.Executor{
		Registry: env.registry,
		Datasets: dataset.NewDirProvider(cfg.Paths.DatasetDir),
		Results:  env.results,
		Progress: func(jobID string, fraction float64, message string) {
			_ = store.UpdateProgress(context.Background(), jobID, fraction, message)
		},
		Timeout: time.Duration(cfg.Scheduler.ExecutionTimeout) * time.Second,
	}
	adapter := taskqueue.NewInProc(exec, cfg.TaskQueue.Workers)
	env.manager = dispatcher.NewManager(cfg, store, adapter, env.registry, env.results, env.notifier, nil)
	return env
}

func (env *testEnv) start(t *testing.T) {
	t.Helper()
	if err := env.manager.Start(context.Background()); err != nil {
		t.Fatalf("start dispatcher: %v", err)
	}
	t.Cleanup(env.manager.Stop)
}

func (env *testEnv) queueJob(t *testing.T, datasetID, algorithm string) *jobs.Job {
	t.Helper()
	ctx := context.Background()
	job := testsupport.NewJob(t, env.store, datasetID, algorithm, "{}")
	if _, err := env.store.MarkValidated(ctx, job.ID); err != nil {
		t.Fatalf("mark validated: %v", err)
	}
	queued, err := env.store.MarkQueued(ctx, job.ID)
	if err != nil {
		t.Fatalf("mark queued: %v", err)
	}
	env.manager.Wake()
	return queued
}

func (env *testEnv) setTransientFailures(n int) {
	env.mu.Lock()
	defer env.mu.Unlock()
	env.transientLeft["flaky"] = n
}

func waitForState(t *testing.T, store *jobs.Store, jobID string, want jobs.State) *jobs.Job {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	var last *jobs.Job
	for time.Now().Before(deadline) {
		job, err := store.GetByID(context.Background(), jobID)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if job != nil {
			last = job
			if job.State == want {
				return job
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	if last != nil {
		t.Fatalf("job %s stuck in %s (want %s), detail: %s", jobID, last.State, want, last.ErrorDetail)
	}
	t.Fatalf("job %s never appeared", jobID)
	return nil
}

func waitFor(t *testing.T, what string, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestManagerRunsJobToCompletion(t *testing.T) {
	env := newTestEnv(t)

	var transitions []jobs.State
	var transitionsMu sync.Mutex
	env.manager.AddStateListener(func(job *jobs.Job) {
		transitionsMu.Lock()
		transitions = append(transitions, job.State)
		transitionsMu.Unlock()
	})
	env.start(t)

	job := env.queueJob(t, "vol-a", "instant")
	done := waitForState(t, env.store, job.ID, jobs.StateSucceeded)

	if done.ResultRef != job.ID {
		t.Fatalf("result ref = %q, want job id", done.ResultRef)
	}
	if done.Progress != 1 {
		t.Fatalf("progress = %v, want 1", done.Progress)
	}
	if !env.results.Exists(job.ID) {
		t.Fatal("artifact missing after success")
	}
	waitFor(t, "completion notification", func() bool { return env.notifier.completedCount() == 1 })

	transitionsMu.Lock()
	defer transitionsMu.Unlock()
	if len(transitions) == 0 || transitions[len(transitions)-1] != jobs.StateSucceeded {
		t.Fatalf("listener transitions = %v", transitions)
	}
}

func TestPerDatasetConcurrencyHoldsSecondJob(t *testing.T) {
	env := newTestEnv(t, testsupport.WithDatasetConcurrency(1), testsupport.WithWorkers(4))
	env.start(t)

	first := env.queueJob(t, "vol-a", "block")
	second := env.queueJob(t, "vol-a", "block")

	waitForState(t, env.store, first.ID, jobs.StateRunning)

	// The second job must wait for the dataset slot even though workers
	// are idle.
	time.Sleep(100 * time.Millisecond)
	held, err := env.store.GetByID(context.Background(), second.ID)
	if err != nil {
		t.Fatalf("get second job: %v", err)
	}
	if held.State != jobs.StateQueued {
		t.Fatalf("second job is %s, want queued while dataset is busy", held.State)
	}

	close(env.release)
	waitForState(t, env.store, first.ID, jobs.StateSucceeded)
	waitForState(t, env.store, second.ID, jobs.StateSucceeded)
}

func TestJobsOnDistinctDatasetsRunConcurrently(t *testing.T) {
	env := newTestEnv(t, testsupport.WithDatasetConcurrency(1), testsupport.WithWorkers(4))
	env.start(t)

	first := env.queueJob(t, "vol-a", "block")
	second := env.queueJob(t, "vol-b", "block")

	waitForState(t, env.store, first.ID, jobs.StateRunning)
	waitForState(t, env.store, second.ID, jobs.StateRunning)

	close(env.release)
	waitForState(t, env.store, first.ID, jobs.StateSucceeded)
	waitForState(t, env.store, second.ID, jobs.StateSucceeded)
}

func TestGlobalSlotsRespectAlgorithmCost(t *testing.T) {
	env := newTestEnv(t, testsupport.WithWorkers(4))
	env.cfg.Scheduler.GlobalSlots = 3
	env.start(t)

	first := env.queueJob(t, "vol-a", "heavy")
	second := env.queueJob(t, "vol-b", "heavy")

	waitForState(t, env.store, first.ID, jobs.StateRunning)

	// Two cost-2 jobs exceed 3 slots; the second waits.
	time.Sleep(100 * time.Millisecond)
	held, err := env.store.GetByID(context.Background(), second.ID)
	if err != nil {
		t.Fatalf("get second job: %v", err)
	}
	if held.State != jobs.StateQueued {
		t.Fatalf("second heavy job is %s, want queued", held.State)
	}

	close(env.release)
	waitForState(t, env.store, first.ID, jobs.StateSucceeded)
	waitForState(t, env.store, second.ID, jobs.StateSucceeded)
}

func TestGlobalSlotPressureKeepsDatasetOrder(t *testing.T) {
	env := newTestEnv(t, testsupport.WithWorkers(4))
	env.cfg.Scheduler.GlobalSlots = 3
	env.start(t)

	blocker := env.queueJob(t, "vol-a", "heavy")
	waitForState(t, env.store, blocker.ID, jobs.StateRunning)

	older := env.queueJob(t, "vol-b", "heavy")
	younger := env.queueJob(t, "vol-b", "instant")

	// The free slot fits the younger job but not the older one. The
	// younger job must still wait behind its dataset's queue head.
	time.Sleep(100 * time.Millisecond)
	held, err := env.store.GetByID(context.Background(), younger.ID)
	if err != nil {
		t.Fatalf("get younger job: %v", err)
	}
	if held.State != jobs.StateQueued {
		t.Fatalf("younger job is %s, want queued behind the older one", held.State)
	}

	close(env.release)
	waitForState(t, env.store, blocker.ID, jobs.StateSucceeded)
	waitForState(t, env.store, older.ID, jobs.StateSucceeded)
	waitForState(t, env.store, younger.ID, jobs.StateSucceeded)
}

func TestTransientFailuresRetryThenSucceed(t *testing.T) {
	env := newTestEnv(t)
	env.setTransientFailures(2)
	env.start(t)

	job := env.queueJob(t, "vol-a", "flaky")
	done := waitForState(t, env.store, job.ID, jobs.StateSucceeded)

	if done.RetryCount != 2 {
		t.Fatalf("retry count = %d, want 2", done.RetryCount)
	}
	if env.notifier.failedCount() != 0 {
		t.Fatal("transient retries should not notify failure")
	}

	// The retried run must leave exactly the artifact a clean first run
	// would have left, nothing stale from the failed attempts.
	entries, err := os.ReadDir(env.cfg.Paths.ResultsDir)
	if err != nil {
		t.Fatalf("read results dir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != job.ID {
		names := make([]string, 0, len(entries))
		for _, entry := range entries {
			names = append(names, entry.Name())
		}
		t.Fatalf("results dir contains %v, want only %s", names, job.ID)
	}
	artifact, err := env.results.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get artifact: %v", err)
	}
	if len(artifact.Data) != 2*2*4 {
		t.Fatalf("artifact length = %d, want %d", len(artifact.Data), 2*2*4)
	}
	for i, v := range artifact.Data {
		if v != 1 {
			t.Fatalf("artifact sample %d = %v, want the input passed through", i, v)
		}
	}
}

func TestRetryBudgetExhaustionFailsJob(t *testing.T) {
	env := newTestEnv(t, testsupport.WithRetryLimit(3))
	env.setTransientFailures(10)
	env.start(t)

	job := env.queueJob(t, "vol-a", "flaky")
	done := waitForState(t, env.store, job.ID, jobs.StateFailed)

	if done.RetryCount != 3 {
		t.Fatalf("retry count = %d, want the full budget of 3", done.RetryCount)
	}
	if done.ErrorDetail == "" {
		t.Fatal("terminal failure lost its error detail")
	}
	waitFor(t, "failure notification", func() bool { return env.notifier.failedCount() == 1 })
}

func TestFatalFailureSkipsRetry(t *testing.T) {
	env := newTestEnv(t)
	env.start(t)

	job := env.queueJob(t, "vol-a", "broken")
	done := waitForState(t, env.store, job.ID, jobs.StateFailed)

	if done.RetryCount != 0 {
		t.Fatalf("fatal failure consumed retries: %d", done.RetryCount)
	}
	if done.ErrorDetail != "test: broken: algorithm defect" {
		t.Fatalf("error detail = %q", done.ErrorDetail)
	}
}

func TestCancelledQueuedJobNeverRuns(t *testing.T) {
	env := newTestEnv(t, testsupport.WithDatasetConcurrency(1))
	env.start(t)

	blocker := env.queueJob(t, "vol-a", "block")
	waiting := env.queueJob(t, "vol-a", "instant")
	waitForState(t, env.store, blocker.ID, jobs.StateRunning)

	if _, err := env.store.MarkCancelled(context.Background(), waiting.ID, "operator cancel"); err != nil {
		t.Fatalf("cancel queued job: %v", err)
	}

	close(env.release)
	waitForState(t, env.store, blocker.ID, jobs.StateSucceeded)

	// Give the dispatcher time to misbehave before asserting.
	time.Sleep(100 * time.Millisecond)
	final, err := env.store.GetByID(context.Background(), waiting.ID)
	if err != nil {
		t.Fatalf("get cancelled job: %v", err)
	}
	if final.State != jobs.StateCancelled {
		t.Fatalf("cancelled job ended up %s", final.State)
	}
	if env.results.Exists(waiting.ID) {
		t.Fatal("cancelled job produced an artifact")
	}
}

func TestCancelRunningJobInterruptsWorker(t *testing.T) {
	env := newTestEnv(t)
	env.start(t)

	job := env.queueJob(t, "vol-a", "block")
	waitForState(t, env.store, job.ID, jobs.StateRunning)

	if _, err := env.store.MarkCancelled(context.Background(), job.ID, "operator cancel"); err != nil {
		t.Fatalf("mark cancelled: %v", err)
	}
	if !env.manager.CancelRunning(job.ID) {
		t.Fatal("cancel signal not delivered to the worker")
	}

	// The interrupted worker reports a transient failure; the dispatcher
	// must not resurrect a job that is already terminal.
	waitFor(t, "inflight drained", func() bool {
		_, inflight := env.manager.InflightHandle(job.ID)
		return !inflight
	})
	final, err := env.store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if final.State != jobs.StateCancelled {
		t.Fatalf("job state = %s, want cancelled", final.State)
	}
}

func TestCompletionAfterCancelDiscardsArtifact(t *testing.T) {
	env := newTestEnv(t)
	env.start(t)

	job := env.queueJob(t, "vol-a", "block")
	waitForState(t, env.store, job.ID, jobs.StateRunning)

	// Cancel the row but leave the worker alone, then let it finish: the
	// completion reaches the dispatcher after the job is already terminal
	// and its output must not survive.
	if _, err := env.store.MarkCancelled(context.Background(), job.ID, "operator cancel"); err != nil {
		t.Fatalf("mark cancelled: %v", err)
	}
	close(env.release)

	waitFor(t, "inflight drained", func() bool {
		_, inflight := env.manager.InflightHandle(job.ID)
		return !inflight
	})
	final, err := env.store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if final.State != jobs.StateCancelled {
		t.Fatalf("job state = %s, want cancelled", final.State)
	}
	waitFor(t, "orphaned artifact removal", func() bool {
		return !env.results.Exists(job.ID)
	})
}

func TestStopRequeuesRunningJobs(t *testing.T) {
	env := newTestEnv(t)
	env.start(t)

	job := env.queueJob(t, "vol-a", "block")
	waitForState(t, env.store, job.ID, jobs.StateRunning)

	env.manager.Stop()

	requeued, err := env.store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if requeued.State != jobs.StateQueued {
		t.Fatalf("job state after stop = %s, want queued", requeued.State)
	}
	if requeued.RetryCount != 0 {
		t.Fatalf("shutdown requeue consumed retry budget: %d", requeued.RetryCount)
	}
}

func TestQueueDrainedNotificationFiresOnce(t *testing.T) {
	env := newTestEnv(t)
	env.start(t)

	first := env.queueJob(t, "vol-a", "instant")
	second := env.queueJob(t, "vol-b", "instant")
	waitForState(t, env.store, first.ID, jobs.StateSucceeded)
	waitForState(t, env.store, second.ID, jobs.StateSucceeded)

	waitFor(t, "drain notification", func() bool { return env.notifier.drainedCount() == 1 })
	time.Sleep(100 * time.Millisecond)
	if env.notifier.drainedCount() != 1 {
		t.Fatalf("drained notified %d times", env.notifier.drainedCount())
	}
}

func TestVanishedAlgorithmFailsInsteadOfDispatching(t *testing.T) {
	env := newTestEnv(t)
	env.start(t)

	ctx := context.Background()
	job, err := env.store.NewJob(ctx, "vol-a", "retired_algorithm", "{}", "test")
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if _, err := env.store.MarkValidated(ctx, job.ID); err != nil {
		t.Fatalf("mark validated: %v", err)
	}
	if _, err := env.store.MarkQueued(ctx, job.ID); err != nil {
		t.Fatalf("mark queued: %v", err)
	}
	env.manager.Wake()

	done := waitForState(t, env.store, job.ID, jobs.StateFailed)
	if done.RetryCount != 0 {
		t.Fatalf("unknown algorithm consumed retries: %d", done.RetryCount)
	}
}

func TestStartTwiceFails(t *testing.T) {
	env := newTestEnv(t)
	env.start(t)
	if err := env.manager.Start(context.Background()); err == nil {
		t.Fatal("second start should fail")
	}
}
