// Package daemonrun hosts the squeuerd process runtime: logging, PID and
// lock files, the IPC server, and the daemon lifecycle.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/haikalllp/smoothie-rs-queuer/internal/config"
	"github.com/haikalllp/smoothie-rs-queuer/internal/daemon"
	"github.com/haikalllp/smoothie-rs-queuer/internal/events"
	"github.com/haikalllp/smoothie-rs-queuer/internal/history"
	"github.com/haikalllp/smoothie-rs-queuer/internal/ingest"
	"github.com/haikalllp/smoothie-rs-queuer/internal/ipc"
	"github.com/haikalllp/smoothie-rs-queuer/internal/logging"
	"github.com/haikalllp/smoothie-rs-queuer/internal/notifications"
	"github.com/haikalllp/smoothie-rs-queuer/internal/queue"
	"github.com/haikalllp/smoothie-rs-queuer/internal/smoothie"
	"github.com/haikalllp/smoothie-rs-queuer/internal/worker"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the squeuer daemon runtime loop and blocks until shutdown.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("squeuer-%s.log", runID))
	logger, err := logging.New(logging.Options{
		Level:            opts.LogLevel,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(logger, cfg)
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update squeuer.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "squeuer-*.log", Exclude: []string{logPath}},
	)
	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	journal, err := history.Open(cfg)
	if err != nil {
		logger.Error("open history journal", logging.Error(err))
		return err
	}

	client, err := buildSmoothieClient(cfg, logger)
	if err != nil {
		return err
	}

	store := queue.NewStore()
	bus := events.NewBus()
	notifier := notifications.NewService(cfg)
	workerManager := worker.NewManager(cfg, store, bus, client, logger,
		worker.WithJournal(journal))

	d, err := daemon.New(cfg, store, bus, workerManager, journal, notifier, logger)
	if err != nil {
		_ = journal.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if cfg.Ingest.Enabled {
		watcher, err := ingest.NewWatcher(cfg, func(path string) error {
			_, addErr := d.AddTask(path, "", "")
			return addErr
		}, logger)
		if err != nil {
			return fmt.Errorf("create ingest watcher: %w", err)
		}
		if err := watcher.Start(signalCtx); err != nil {
			return fmt.Errorf("start ingest watcher: %w", err)
		}
		defer watcher.Stop()
	}

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, logger, cancel)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		logger.Warn("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check configuration and lock file access"),
			logging.String(logging.FieldImpact, "daemon may not process queued renders"),
		)
	}

	<-signalCtx.Done()
	logger.Info("squeuer daemon shutting down")
	return nil
}

func buildSmoothieClient(cfg *config.Config, logger *slog.Logger) (smoothie.Client, error) {
	binary, err := smoothie.FindExecutable(cfg.Smoothie.Binary, cfg.Smoothie.InstallDir)
	if err != nil {
		// The daemon still comes up so the queue can be managed; renders
		// will fail with a clear message until the binary appears.
		logger.Warn("smoothie-rs not found",
			logging.Error(err),
			logging.String(logging.FieldEventType, "smoothie_missing"),
			logging.String(logging.FieldErrorHint, "install smoothie-rs or set smoothie.install_dir"),
			logging.String(logging.FieldImpact, "queued renders will fail until resolved"),
		)
		binary = cfg.Smoothie.Binary
	}
	return smoothie.New(binary)
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "squeuer.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	binary, err := smoothie.FindExecutable(cfg.Smoothie.Binary, cfg.Smoothie.InstallDir)
	available := err == nil
	if !available {
		binary = cfg.Smoothie.Binary
	}
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("smoothie_available", available),
		logging.String("smoothie_binary", binary),
		logging.Bool("recipe_configured", strings.TrimSpace(cfg.Smoothie.Recipe) != ""),
		logging.Bool("ingest_enabled", cfg.Ingest.Enabled),
		logging.Bool("ntfy_configured", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
	)
}
