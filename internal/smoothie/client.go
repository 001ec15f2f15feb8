package smoothie

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// Job describes a single render request.
type Job struct {
	Input     string
	OutputDir string
	Recipe    string
}

// Client defines the behaviour required by the worker loop.
type Client interface {
	Render(ctx context.Context, job Job, onOutput func(string)) error
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onStdout func(string)) error
}

// Option configures the client.
type Option func(*CLI)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *CLI) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// CLI wraps smoothie-rs command-line interactions.
type CLI struct {
	binary string
	exec   Executor
}

// New constructs a smoothie-rs client.
func New(binary string, opts ...Option) (*CLI, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("smoothie binary required")
	}
	client := &CLI{
		binary: binary,
		exec:   commandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Render runs smoothie-rs synchronously for job, forwarding output lines
// to onOutput. Cancelling ctx kills the child's entire process group.
func (c *CLI) Render(ctx context.Context, job Job, onOutput func(string)) error {
	if strings.TrimSpace(job.Input) == "" {
		return errors.New("input path required")
	}
	if strings.TrimSpace(job.OutputDir) == "" {
		return errors.New("output directory required")
	}
	recipe := strings.TrimSpace(job.Recipe)
	if recipe == "" {
		return errors.New("recipe path required")
	}
	if _, err := os.Stat(recipe); err != nil {
		return fmt.Errorf("recipe file: %w", err)
	}
	if err := os.MkdirAll(job.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	args := []string{
		"--recipe", recipe,
		"--input", job.Input,
		"--outdir", job.OutputDir,
	}
	if err := c.exec.Run(ctx, c.binary, args, onOutput); err != nil {
		return fmt.Errorf("run smoothie-rs: %w", err)
	}
	return nil
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onStdout func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	// smoothie-rs may spawn helpers (ffmpeg, vapoursynth); own process
	// group so a forced stop takes the whole tree down.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	var wg sync.WaitGroup
	var scanErr error
	var once sync.Once

	scan := func(r io.Reader, forward func(string)) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			forward(scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			once.Do(func() {
				scanErr = err
			})
		}
	}

	forward := func(line string) {
		if onStdout != nil {
			onStdout(line)
			return
		}
		fmt.Fprintln(os.Stderr, line)
	}

	wg.Add(2)
	go scan(stdout, forward)
	go scan(stderr, forward)

	wg.Wait()
	if scanErr != nil {
		_ = cmd.Cancel()
		return fmt.Errorf("scan output: %w", scanErr)
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("wait command: %w", ctx.Err())
		}
		return fmt.Errorf("wait command: %w", err)
	}
	return nil
}
