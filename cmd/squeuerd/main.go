package main

import (
	"context"
	"flag"
	"log"
	"strings"

	"github.com/haikalllp/smoothie-rs-queuer/internal/config"
	"github.com/haikalllp/smoothie-rs-queuer/internal/daemonrun"
)

func main() {
	configPath := flag.String("config", "", "configuration file path")
	logLevel := flag.String("log-level", "", "override the configured log level")
	flag.Parse()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	level := cfg.Logging.Level
	if override := strings.TrimSpace(*logLevel); override != "" {
		level = override
	}

	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{LogLevel: level}); err != nil {
		log.Fatalf("run daemon: %v", err)
	}
}
