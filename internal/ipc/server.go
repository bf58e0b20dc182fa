package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"log/slog"

	"strata/internal/api"
	"strata/internal/daemon"
	"strata/internal/logging"
	"strata/internal/notifications"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path. The
// notifier may be nil when notifications are disabled.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, notifier notifications.Service, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, notifier: notifier, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Strata", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed", logging.Error(err), logging.String("socket", s.path))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket", logging.String("socket", s.path), logging.Error(err))
	}
}

type service struct {
	daemon   *daemon.Daemon
	notifier notifications.Service
	logger   *slog.Logger
	ctx      context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String(logging.FieldComponent, "ipc"))
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	s.log().Debug("daemon start requested")
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "daemon started"
	s.log().Info("daemon started via IPC")
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.log().Info("daemon stopped via IPC")
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.Inflight = status.Dispatcher.Inflight
	resp.SlotsUsed = status.Dispatcher.SlotsUsed
	resp.LastError = status.Dispatcher.LastError
	resp.JobDBPath = status.JobDBPath
	resp.LockPath = status.LockFilePath
	resp.APIBind = status.APIBind
	resp.PID = os.Getpid()
	resp.QueueStats = map[string]int{
		"total":     status.Dispatcher.Queue.Total,
		"waiting":   status.Dispatcher.Queue.Waiting,
		"running":   status.Dispatcher.Queue.Running,
		"succeeded": status.Dispatcher.Queue.Succeeded,
		"failed":    status.Dispatcher.Queue.Failed,
		"cancelled": status.Dispatcher.Queue.Cancelled,
	}
	return nil
}

func (s *service) Submit(req SubmitRequest, resp *SubmitResponse) error {
	job, err := s.daemon.Service().SubmitJob(s.ctx, api.SubmitRequest{
		DatasetID: req.DatasetID,
		Algorithm: req.Algorithm,
		Params:    req.Params,
		Requester: req.Requester,
	})
	if err != nil {
		return err
	}
	resp.Job = job
	return nil
}

func (s *service) JobList(req JobListRequest, resp *JobListResponse) error {
	jobs, err := s.daemon.Service().ListJobs(s.ctx, req.DatasetID)
	if err != nil {
		return err
	}
	resp.Jobs = jobs
	return nil
}

func (s *service) JobGet(req JobGetRequest, resp *JobGetResponse) error {
	job, err := s.daemon.Service().GetJob(s.ctx, req.JobID)
	if err != nil {
		return err
	}
	resp.Job = job
	return nil
}

func (s *service) Cancel(req CancelRequest, resp *CancelResponse) error {
	job, err := s.daemon.Service().CancelJob(s.ctx, req.JobID, req.Reason)
	if err != nil {
		return err
	}
	resp.Job = job
	return nil
}

func (s *service) Result(req ResultRequest, resp *ResultResponse) error {
	artifact, err := s.daemon.Service().GetResult(s.ctx, req.JobID)
	if err != nil {
		return err
	}
	resp.Artifact = artifact
	return nil
}

func (s *service) Algorithms(_ AlgorithmsRequest, resp *AlgorithmsResponse) error {
	resp.Algorithms = s.daemon.Service().ListAlgorithms()
	return nil
}

func (s *service) Datasets(_ DatasetsRequest, resp *DatasetsResponse) error {
	datasets, err := s.daemon.Service().ListDatasets(s.ctx)
	if err != nil {
		return err
	}
	resp.Datasets = datasets
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	if s.notifier == nil {
		resp.Sent = false
		resp.Message = "notifications are not configured"
		return nil
	}
	if err := s.notifier.TestNotification(s.ctx); err != nil {
		resp.Sent = false
		resp.Message = err.Error()
		return nil
	}
	resp.Sent = true
	resp.Message = "test notification sent"
	return nil
}
