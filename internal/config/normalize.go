package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeSmoothie(); err != nil {
		return err
	}
	if err := c.normalizeIngest(); err != nil {
		return err
	}
	c.normalizeWorker()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = ExpandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = ExpandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeSmoothie() error {
	c.Smoothie.Binary = strings.TrimSpace(c.Smoothie.Binary)
	if c.Smoothie.Binary == "" {
		if value, ok := os.LookupEnv("SMOOTHIE_BINARY"); ok {
			c.Smoothie.Binary = strings.TrimSpace(value)
		}
	}
	if c.Smoothie.Binary == "" {
		c.Smoothie.Binary = defaultSmoothieBinary
	}

	var err error
	if c.Smoothie.InstallDir != "" {
		if c.Smoothie.InstallDir, err = ExpandPath(c.Smoothie.InstallDir); err != nil {
			return fmt.Errorf("smoothie.install_dir: %w", err)
		}
	}
	if c.Smoothie.Recipe != "" {
		if c.Smoothie.Recipe, err = ExpandPath(c.Smoothie.Recipe); err != nil {
			return fmt.Errorf("smoothie.recipe: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeIngest() error {
	if strings.TrimSpace(c.Ingest.Dir) == "" {
		c.Ingest.Dir = defaultIngestDir
	}
	var err error
	if c.Ingest.Dir, err = ExpandPath(c.Ingest.Dir); err != nil {
		return fmt.Errorf("ingest.dir: %w", err)
	}
	if c.Ingest.SettleSeconds <= 0 {
		c.Ingest.SettleSeconds = defaultIngestSettle
	}
	return nil
}

func (c *Config) normalizeWorker() {
	if c.Worker.PollInterval <= 0 {
		c.Worker.PollInterval = defaultPollInterval
	}
	if c.Worker.ErrorRetryInterval <= 0 {
		c.Worker.ErrorRetryInterval = defaultErrorRetryInterval
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNtfyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
