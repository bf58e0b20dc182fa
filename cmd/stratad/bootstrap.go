package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"log/slog"

	"strata/internal/algorithms"
	"strata/internal/api"
	"strata/internal/config"
	"strata/internal/daemon"
	"strata/internal/dataset"
	"strata/internal/dispatcher"
	"strata/internal/ipc"
	"strata/internal/jobs"
	"strata/internal/logging"
	"strata/internal/notifications"
	"strata/internal/registry"
	"strata/internal/results"
	"strata/internal/taskqueue"
)

func runDaemon(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, err := jobs.Open(cfg)
	if err != nil {
		return fmt.Errorf("open job store: %w", err)
	}
	defer store.Close()

	reg := registry.New()
	if err := algorithms.RegisterBuiltins(reg); err != nil {
		return fmt.Errorf("register algorithms: %w", err)
	}

	provider := dataset.NewDirProvider(cfg.Paths.DatasetDir)
	resultStore := results.NewStore(cfg.Paths.ResultsDir, store)
	exec := newExecutor(cfg, reg, provider, resultStore, store)

	adapter, err := buildAdapter(cfg, exec, store, logger)
	if err != nil {
		return fmt.Errorf("build task queue: %w", err)
	}

	notifier := notifications.NewService(cfg)
	disp := dispatcher.NewManager(cfg, store, adapter, reg, resultStore, notifier, logger)
	svc := api.NewService(store, reg, provider, resultStore, disp, logger)

	d, err := daemon.New(cfg, store, disp, svc, resultStore, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(ctx, buildSocketPath(cfg), d, notifier, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(ctx); err != nil {
		logger.Warn("daemon start", logging.Error(err))
	}

	<-ctx.Done()
	logger.Info("stratad shutting down")
	return nil
}

// runWorker attaches an execution pool to the NATS task queue. Workers keep
// no job state of their own; they share the dataset and results directories
// with the daemon and report progress over the status subject, so they
// never touch the job database.
func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.TaskQueue.Backend != config.BackendNATS {
		return fmt.Errorf("worker mode requires task_queue.backend = %q, have %q", config.BackendNATS, cfg.TaskQueue.Backend)
	}

	reg := registry.New()
	if err := algorithms.RegisterBuiltins(reg); err != nil {
		return fmt.Errorf("register algorithms: %w", err)
	}

	// No job store here: the worker's progress sink is installed by
	// Worker.Run, and the delete guard on artifacts lives daemon-side.
	exec := &taskqueue.Executor{
		Registry: reg,
		Datasets: dataset.NewDirProvider(cfg.Paths.DatasetDir),
		Results:  results.NewStore(cfg.Paths.ResultsDir, nil),
		Timeout:  time.Duration(cfg.Scheduler.ExecutionTimeout) * time.Second,
	}

	conn, err := taskqueue.DialNATS(cfg.TaskQueue.NATSURL)
	if err != nil {
		return fmt.Errorf("connect to nats: %w", err)
	}
	defer conn.Close()

	worker := taskqueue.NewWorker(conn, exec, cfg.TaskQueue.SubjectPrefix, cfg.TaskQueue.Workers, logger)
	logger.Info("worker attached to task queue",
		logging.String("subject_prefix", cfg.TaskQueue.SubjectPrefix),
		logging.Int("parallel", cfg.TaskQueue.Workers))
	return worker.Run(ctx)
}

func newExecutor(cfg *config.Config, reg *registry.Registry, provider dataset.Provider, resultStore *results.Store, store *jobs.Store) *taskqueue.Executor {
	return &taskqueue.Executor{
		Registry: reg,
		Datasets: provider,
		Results:  resultStore,
		Progress: func(jobID string, fraction float64, message string) {
			_ = store.UpdateProgress(context.Background(), jobID, fraction, message)
		},
		Timeout: time.Duration(cfg.Scheduler.ExecutionTimeout) * time.Second,
	}
}

func buildAdapter(cfg *config.Config, exec *taskqueue.Executor, store *jobs.Store, logger *slog.Logger) (taskqueue.Adapter, error) {
	switch cfg.TaskQueue.Backend {
	case config.BackendInProc:
		return taskqueue.NewInProc(exec, cfg.TaskQueue.Workers), nil
	case config.BackendNATS:
		conn, err := taskqueue.DialNATS(cfg.TaskQueue.NATSURL)
		if err != nil {
			return nil, fmt.Errorf("connect to nats: %w", err)
		}
		progress := func(jobID string, fraction float64, message string) {
			_ = store.UpdateProgress(context.Background(), jobID, fraction, message)
		}
		return taskqueue.NewNATSAdapter(conn, cfg.TaskQueue.SubjectPrefix, progress, logger)
	default:
		return nil, fmt.Errorf("unknown task queue backend %q", cfg.TaskQueue.Backend)
	}
}

func buildSocketPath(cfg *config.Config) string {
	if cfg == nil {
		return filepath.Join("", "strata.sock")
	}
	return filepath.Join(cfg.Paths.LogDir, "strata.sock")
}
