package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/haikalllp/smoothie-rs-queuer/internal/config"
	"github.com/haikalllp/smoothie-rs-queuer/internal/daemonctl"
	"github.com/haikalllp/smoothie-rs-queuer/internal/ipc"
	"github.com/haikalllp/smoothie-rs-queuer/internal/smoothie"
)

const daemonBinaryName = "squeuerd"

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the squeuer daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.EnsureStarted(
				ctx.socketPath(),
				exe,
				daemonLaunchOptions(ctx),
				10*time.Second,
			)
			if err != nil {
				return err
			}

			if result.Launched {
				fmt.Fprintln(stdout, "Daemon not running, launching...")
			}

			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintln(stdout, "Daemon started")
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon already running")
			case daemonctl.StartStateRequested:
				if strings.TrimSpace(result.Message) != "" {
					fmt.Fprintln(stdout, result.Message)
					return nil
				}
				fmt.Fprintln(stdout, "Start request sent")
			}
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the squeuer daemon (terminates the process)",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), ctx.configValue(), 5*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if !result.StopAcknowledged {
				fmt.Fprintln(stdout, "Stop request sent")
			}
			if result.ForcedKill && result.PID > 0 {
				fmt.Fprintf(stdout, "Stopping daemon process (pid %d)...\n", result.PID)
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the squeuer daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.Restart(
				ctx.socketPath(),
				ctx.configValue(),
				exe,
				daemonLaunchOptions(ctx),
				5*time.Second,
				10*time.Second,
			)
			if err != nil {
				return err
			}

			if result.WasRunning {
				if result.Stop.ForcedKill && result.Stop.PID > 0 {
					fmt.Fprintf(stdout, "Stopping daemon process (pid %d)...\n", result.Stop.PID)
				}
				fmt.Fprintln(stdout, "Daemon stopped")
			}

			switch result.Start.State {
			case daemonctl.StartStateStarted, daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon restarted")
			case daemonctl.StartStateRequested:
				if strings.TrimSpace(result.Start.Message) != "" {
					fmt.Fprintln(stdout, result.Start.Message)
					return nil
				}
				fmt.Fprintln(stdout, "Start request sent")
			}
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, dependency, and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			var statusResp *ipc.StatusResponse
			if client, err := ctx.dialClient(); err == nil {
				statusResp, _ = client.Status()
				client.Close()
			}

			for _, line := range renderSectionHeader("Daemon", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, line := range daemonLines(statusResp, ctx.socketPath(), colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Dependencies", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, line := range dependencyLines(cfg, colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Queue Status", colorize) {
				fmt.Fprintln(stdout, line)
			}
			if statusResp == nil {
				fmt.Fprintln(stdout, "Queue unavailable while the daemon is stopped")
				return nil
			}
			rows := buildQueueStatusRows(statusResp.QueueStats)
			if len(rows) == 0 {
				fmt.Fprintln(stdout, "Queue is empty")
				return nil
			}
			table := renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
			fmt.Fprintln(stdout, table)
			return nil
		},
	}

	return []*cobra.Command{startCmd, stopCmd, restartCmd, statusCmd}
}

func daemonLines(status *ipc.StatusResponse, socket string, colorize bool) []string {
	if status == nil {
		return []string{
			renderStatusLine("Daemon", statusWarn, "Not running", colorize),
			renderStatusLine("Socket", statusInfo, socket, colorize),
		}
	}

	lines := []string{
		renderStatusLine("Daemon", statusOK, fmt.Sprintf("Running (pid %d)", status.PID), colorize),
		renderStatusLine("Socket", statusInfo, socket, colorize),
		renderStatusLine("Paused", pausedKind(status.Paused), yesNo(status.Paused), colorize),
	}
	if !status.Running {
		lines[0] = renderStatusLine("Daemon", statusWarn, fmt.Sprintf("Idle (pid %d)", status.PID), colorize)
	}
	if status.LastTask != nil {
		detail := fmt.Sprintf("#%d %s (%s)", status.LastTask.ID, filepath.Base(status.LastTask.SourcePath), displayStatus(*status.LastTask))
		lines = append(lines, renderStatusLine("Last task", statusInfo, detail, colorize))
	}
	if strings.TrimSpace(status.LastError) != "" {
		lines = append(lines, renderStatusLine("Last error", statusError, status.LastError, colorize))
	}
	return lines
}

func pausedKind(paused bool) statusKind {
	if paused {
		return statusWarn
	}
	return statusOK
}

func dependencyLines(cfg *config.Config, colorize bool) []string {
	if cfg == nil {
		return []string{renderStatusLine("smoothie-rs", statusInfo, "Unknown", colorize)}
	}

	lines := make([]string, 0, 3)
	exe, err := smoothie.FindExecutable(cfg.Smoothie.Binary, cfg.Smoothie.InstallDir)
	if err != nil {
		lines = append(lines, renderStatusLine("smoothie-rs", statusError, "Not found (renders will fail)", colorize))
	} else {
		lines = append(lines, renderStatusLine("smoothie-rs", statusOK, fmt.Sprintf("Ready (command: %s)", exe), colorize))
	}

	recipe := strings.TrimSpace(cfg.Smoothie.Recipe)
	if recipe == "" && err == nil {
		recipe = smoothie.DefaultRecipe(smoothie.InstallRootFromExecutable(exe))
	}
	switch {
	case recipe == "":
		lines = append(lines, renderStatusLine("Recipe", statusWarn, "Not configured", colorize))
	default:
		if expanded, expandErr := config.ExpandPath(recipe); expandErr == nil {
			recipe = expanded
		}
		if _, statErr := os.Stat(recipe); statErr != nil {
			lines = append(lines, renderStatusLine("Recipe", statusWarn, fmt.Sprintf("Missing (%s)", recipe), colorize))
		} else {
			lines = append(lines, renderStatusLine("Recipe", statusOK, recipe, colorize))
		}
	}

	if strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
		lines = append(lines, renderStatusLine("Notifications", statusInfo, "Disabled", colorize))
	} else {
		lines = append(lines, renderStatusLine("Notifications", statusOK, "ntfy configured", colorize))
	}
	return lines
}

var queueStatusOrder = map[string]int{
	"pending":   0,
	"running":   1,
	"completed": 2,
	"failed":    3,
}

func buildQueueStatusRows(stats map[string]int) [][]string {
	keys := make([]string, 0, len(stats))
	for key, count := range stats {
		if count == 0 {
			continue
		}
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		oi, oki := queueStatusOrder[keys[i]]
		oj, okj := queueStatusOrder[keys[j]]
		if oki && okj {
			return oi < oj
		}
		if oki != okj {
			return oki
		}
		return keys[i] < keys[j]
	})

	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, []string{titleCase(key), fmt.Sprintf("%d", stats[key])})
	}
	return rows
}

func titleCase(value string) string {
	if value == "" {
		return value
	}
	return strings.ToUpper(value[:1]) + value[1:]
}

// daemonExecutable resolves the squeuerd binary, preferring one installed
// next to the CLI.
func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err == nil {
		sibling := filepath.Join(filepath.Dir(exe), daemonBinaryName)
		if info, statErr := os.Stat(sibling); statErr == nil && !info.IsDir() {
			return sibling, nil
		}
	}
	path, err := exec.LookPath(daemonBinaryName)
	if err != nil {
		return "", fmt.Errorf("resolve %s executable: %w", daemonBinaryName, err)
	}
	return path, nil
}

func daemonLaunchOptions(ctx *commandContext) daemonctl.LaunchOptions {
	opts := daemonctl.LaunchOptions{}
	if ctx.configFlag != nil {
		if config := strings.TrimSpace(*ctx.configFlag); config != "" {
			opts.ConfigPath = config
		}
	}
	return opts
}
