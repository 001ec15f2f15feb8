package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	LogDir    string `toml:"log_dir"`
	OutputDir string `toml:"output_dir"`
}

// Smoothie contains configuration for the smoothie-rs executable.
type Smoothie struct {
	Binary     string `toml:"binary"`
	InstallDir string `toml:"install_dir"`
	Recipe     string `toml:"recipe"`
}

// Worker contains configuration for queue processing timing.
type Worker struct {
	PollInterval       int `toml:"poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
}

// Ingest contains configuration for watch-directory ingestion.
type Ingest struct {
	Enabled       bool   `toml:"enabled"`
	Dir           string `toml:"dir"`
	SettleSeconds int    `toml:"settle_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	TaskCompleted  bool   `toml:"task_completed"`
	TaskFailed     bool   `toml:"task_failed"`
	QueueDrained   bool   `toml:"queue_drained"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config is the root configuration document.
type Config struct {
	Paths         Paths         `toml:"paths"`
	Smoothie      Smoothie      `toml:"smoothie"`
	Worker        Worker        `toml:"worker"`
	Ingest        Ingest        `toml:"ingest"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the per-user configuration file location.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "squeuer", "config.toml"), nil
}

// Load reads the configuration at path (or the default location when path is
// empty), applies defaults, normalizes, and validates. It returns the config,
// the resolved path, and whether a config file was actually found; a missing
// file is not an error and yields the defaults.
func Load(path string) (*Config, string, bool, error) {
	resolved := strings.TrimSpace(path)
	if resolved == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return nil, "", false, err
		}
		resolved = defaultPath
	}
	expanded, err := ExpandPath(resolved)
	if err != nil {
		return nil, "", false, fmt.Errorf("config path: %w", err)
	}
	resolved = expanded

	cfg := Default()
	found := false
	data, err := os.ReadFile(resolved)
	switch {
	case err == nil:
		found = true
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, resolved, true, fmt.Errorf("parse config %s: %w", resolved, err)
		}
	case errors.Is(err, fs.ErrNotExist):
		// Defaults apply.
	default:
		return nil, resolved, false, fmt.Errorf("read config %s: %w", resolved, err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, resolved, found, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, resolved, found, err
	}
	return &cfg, resolved, found, nil
}

// EnsureDirectories creates the directories the daemon writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.LogDir, c.Paths.OutputDir}
	if c.Ingest.Enabled {
		dirs = append(dirs, c.Ingest.Dir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// SocketPath returns the daemon IPC socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.LogDir, "squeuer.sock")
}

// PIDPath returns the daemon PID file location.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.LogDir, "squeuer.pid")
}

// CreateSample writes the embedded sample configuration to path, refusing to
// overwrite an existing file.
func CreateSample(path string) error {
	expanded, err := ExpandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat config path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// ExpandPath expands a leading ~ to the user's home directory and returns an
// absolute path.
func ExpandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path: %w", err)
	}
	return abs, nil
}
