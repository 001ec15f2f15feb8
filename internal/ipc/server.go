package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"github.com/haikalllp/smoothie-rs-queuer/internal/daemon"
	"github.com/haikalllp/smoothie-rs-queuer/internal/logging"
	"github.com/haikalllp/smoothie-rs-queuer/internal/queue"
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

// NewServer configures the IPC server at the given socket path. shutdown,
// when non-nil, is invoked by the Stop RPC to end the daemon process.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger, shutdown func()) (*Server, error) {
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
	svc := &service{daemon: d, logger: logger, ctx: ctx, shutdown: shutdown}
	if err := rpcServer.RegisterName("Queuer", svc); err != nil {
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
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
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
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually or rerun squeuer stop"))
	}
}

type service struct {
	daemon   *daemon.Daemon
	logger   *slog.Logger
	ctx      context.Context
	shutdown func()
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
	s.log().Info("daemon started via IPC",
		logging.String(logging.FieldEventType, "daemon_start"))
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.log().Info("daemon stopped via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	if s.shutdown != nil {
		s.shutdown()
	}
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status()
	resp.Running = status.Running
	resp.Paused = status.Paused
	resp.LockPath = status.LockFilePath
	resp.HistoryDBPath = status.HistoryDBPath
	resp.PID = os.Getpid()
	resp.QueueStats = make(map[string]int, len(status.Worker.QueueStats))
	for k, v := range status.Worker.QueueStats {
		resp.QueueStats[string(k)] = v
	}
	resp.LastError = status.Worker.LastError
	if status.Worker.LastTask != nil {
		task := fromTask(*status.Worker.LastTask)
		resp.LastTask = &task
	}
	return nil
}

func (s *service) QueueAdd(req QueueAddRequest, resp *QueueAddResponse) error {
	task, err := s.daemon.AddTask(req.SourcePath, req.OutputDir, req.Recipe)
	if err != nil {
		return err
	}
	resp.Task = fromTask(task)
	s.log().Info("task queued via IPC",
		logging.String(logging.FieldEventType, "queue_add"),
		logging.Int64(logging.FieldTaskID, task.ID))
	return nil
}

func (s *service) QueueList(_ QueueListRequest, resp *QueueListResponse) error {
	tasks := s.daemon.ListTasks()
	resp.Tasks = make([]Task, 0, len(tasks))
	for _, task := range tasks {
		resp.Tasks = append(resp.Tasks, fromTask(task))
	}
	return nil
}

func (s *service) QueueRemove(req QueueRemoveRequest, resp *QueueRemoveResponse) error {
	if req.ID <= 0 {
		return fmt.Errorf("invalid task id %d", req.ID)
	}
	if err := s.daemon.RemoveTask(req.ID); err != nil {
		if errors.Is(err, queue.ErrTaskBusy) {
			return fmt.Errorf("task %d is running; use `squeuer cancel` first", req.ID)
		}
		return err
	}
	resp.Removed = true
	s.log().Info("task removed via IPC",
		logging.String(logging.FieldEventType, "queue_remove"),
		logging.Int64(logging.FieldTaskID, req.ID))
	return nil
}

func (s *service) QueueClear(_ QueueClearRequest, resp *QueueClearResponse) error {
	resp.Removed = s.daemon.ClearTasks()
	s.log().Info("queue cleared via IPC",
		logging.String(logging.FieldEventType, "queue_clear"),
		logging.Int("removed_count", resp.Removed))
	return nil
}

func (s *service) Pause(req PauseRequest, resp *PauseResponse) error {
	s.daemon.Pause(req.Paused)
	resp.Paused = req.Paused
	return nil
}

func (s *service) StopCurrent(_ StopCurrentRequest, resp *StopCurrentResponse) error {
	s.daemon.StopCurrent()
	resp.Requested = true
	return nil
}

func (s *service) SetRecipe(req SetRecipeRequest, resp *SetRecipeResponse) error {
	updated, err := s.daemon.SetRecipe(req.Recipe)
	if err != nil {
		return err
	}
	resp.Updated = updated
	s.log().Info("recipe updated via IPC",
		logging.String(logging.FieldEventType, "recipe_set"),
		logging.Int("updated_count", updated))
	return nil
}

func (s *service) SetOutputDir(req SetOutputDirRequest, resp *SetOutputDirResponse) error {
	updated, err := s.daemon.SetOutputDir(req.OutputDir)
	if err != nil {
		return err
	}
	resp.Updated = updated
	s.log().Info("output directory updated via IPC",
		logging.String(logging.FieldEventType, "output_set"),
		logging.Int("updated_count", updated))
	return nil
}

func (s *service) Events(_ EventsRequest, resp *EventsResponse) error {
	recent := s.daemon.RecentEvents()
	resp.Events = make([]Event, 0, len(recent))
	for _, ev := range recent {
		resp.Events = append(resp.Events, fromEvent(ev))
	}
	return nil
}

func (s *service) HistoryList(req HistoryListRequest, resp *HistoryListResponse) error {
	entries, err := s.daemon.HistoryList(s.ctx, req.Limit)
	if err != nil {
		return err
	}
	resp.Entries = make([]HistoryEntry, 0, len(entries))
	for _, entry := range entries {
		if entry == nil {
			continue
		}
		resp.Entries = append(resp.Entries, fromHistoryEntry(entry))
	}
	return nil
}

func (s *service) HistoryClear(_ HistoryClearRequest, resp *HistoryClearResponse) error {
	removed, err := s.daemon.HistoryClear(s.ctx)
	if err != nil {
		return err
	}
	resp.Removed = removed
	s.log().Info("history cleared via IPC",
		logging.String(logging.FieldEventType, "history_clear"),
		logging.Int64("removed_count", removed))
	return nil
}
