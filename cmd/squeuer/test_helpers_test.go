package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"github.com/haikalllp/smoothie-rs-queuer/internal/config"
	"github.com/haikalllp/smoothie-rs-queuer/internal/daemon"
	"github.com/haikalllp/smoothie-rs-queuer/internal/events"
	"github.com/haikalllp/smoothie-rs-queuer/internal/history"
	"github.com/haikalllp/smoothie-rs-queuer/internal/ipc"
	"github.com/haikalllp/smoothie-rs-queuer/internal/logging"
	"github.com/haikalllp/smoothie-rs-queuer/internal/queue"
	"github.com/haikalllp/smoothie-rs-queuer/internal/smoothie"
	"github.com/haikalllp/smoothie-rs-queuer/internal/testsupport"
	"github.com/haikalllp/smoothie-rs-queuer/internal/worker"
)

type stubRenderClient struct{}

func (stubRenderClient) Render(context.Context, smoothie.Job, func(string)) error { return nil }

type cliTestEnv struct {
	cfg        *config.Config
	store      *queue.Store
	journal    *history.Store
	daemon     *daemon.Daemon
	server     *ipc.Server
	socketPath string
	configPath string
	cancel     context.CancelFunc
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	store := queue.NewStore()
	bus := events.NewBus()
	logger := logging.NewNop()

	journal, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}

	wk := worker.NewManager(cfg, store, bus, stubRenderClient{}, logger)
	d, err := daemon.New(cfg, store, bus, wk, journal, nil, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	socketPath := filepath.Join(cfg.Paths.LogDir, "cli.sock")
	srv, err := ipc.NewServer(ctx, socketPath, d, logger, nil)
	if err != nil {
		cancel()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	env := &cliTestEnv{
		cfg:        cfg,
		store:      store,
		journal:    journal,
		daemon:     d,
		server:     srv,
		socketPath: socketPath,
		configPath: configPath,
		cancel:     cancel,
	}

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Close()
	})

	return env
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	encoded, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func sourceFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("frames"), 0o644); err != nil {
		t.Fatalf("write source file: %v", err)
	}
	return path
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
