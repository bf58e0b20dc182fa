package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"strata/internal/api"
	"strata/internal/config"
	"strata/internal/dispatcher"
	"strata/internal/jobs"
	"strata/internal/logging"
	"strata/internal/results"
)

// retentionSweepInterval paces the artifact retention sweep while the
// daemon runs. The policy itself comes from results.retention_days.
const retentionSweepInterval = time.Hour

// Daemon coordinates the dispatcher, the HTTP API, and the retention
// sweep, and enforces single-instance execution via a lock file.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *jobs.Store
	dispatcher *dispatcher.Manager
	service    *api.Service
	results    *results.Store

	lockPath string
	lock     *flock.Flock

	apiServer *apiServer

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool                `json:"running"`
	Dispatcher   dispatcher.Snapshot `json:"dispatcher"`
	JobDBPath    string              `json:"job_db_path"`
	LockFilePath string              `json:"lock_file_path"`
	APIBind      string              `json:"api_bind,omitempty"`
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *jobs.Store, disp *dispatcher.Manager, svc *api.Service, resultStore *results.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || disp == nil || svc == nil {
		return nil, errors.New("daemon requires config, store, dispatcher, and api service")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "stratad.lock")
	d := &Daemon{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		store:      store,
		dispatcher: disp,
		service:    svc,
		results:    resultStore,
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}

	server, err := newAPIServer(cfg, svc, d, logger)
	if err != nil {
		return nil, err
	}
	d.apiServer = server
	return d, nil
}

// Start launches the dispatcher, the API server, and the retention sweep,
// after acquiring the daemon lock.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another strata daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.dispatcher.Start(runCtx); err != nil {
		cancel()
		d.cancel = nil
		_ = d.lock.Unlock()
		return fmt.Errorf("start dispatcher: %w", err)
	}
	if err := d.apiServer.start(runCtx); err != nil {
		d.dispatcher.Stop()
		cancel()
		d.cancel = nil
		_ = d.lock.Unlock()
		return err
	}

	d.wg.Add(1)
	go d.runRetentionSweep(runCtx)

	d.running.Store(true)
	d.logger.Info("strata daemon started", "lock", d.lockPath)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.apiServer.stop()
	d.dispatcher.Stop()
	d.wg.Wait()

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("strata daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether the daemon is active.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Status assembles daemon runtime information.
func (d *Daemon) Status(ctx context.Context) Status {
	snapshot, err := d.service.Status(ctx)
	if err != nil {
		d.logger.Warn("status snapshot failed", logging.Error(err))
	}
	status := Status{
		Running:      d.running.Load(),
		Dispatcher:   snapshot,
		LockFilePath: d.lockPath,
		APIBind:      d.cfg.Paths.APIBind,
	}
	if d.store != nil {
		status.JobDBPath = d.store.Path()
	}
	return status
}

// Service exposes the request facade for IPC handlers.
func (d *Daemon) Service() *api.Service {
	return d.service
}

// APIAddr returns the bound HTTP listen address, or empty when the API is
// disabled or not started.
func (d *Daemon) APIAddr() string {
	return d.apiServer.addr()
}

// runRetentionSweep periodically removes artifacts of old terminal jobs.
// One sweep runs at startup so a daemon that is rarely restarted and one
// restarted daily behave the same.
func (d *Daemon) runRetentionSweep(ctx context.Context) {
	defer d.wg.Done()

	retention := time.Duration(d.cfg.Results.RetentionDays) * 24 * time.Hour
	if retention <= 0 || d.results == nil {
		return
	}

	ticker := time.NewTicker(retentionSweepInterval)
	defer ticker.Stop()

	for {
		removed, err := d.results.Sweep(ctx, retention, d.logger)
		if err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Warn("retention sweep failed", logging.Error(err))
		} else if removed > 0 {
			d.logger.Info("retention sweep removed artifacts", "count", removed)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
