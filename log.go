package main

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
)

// logEnv holds logging overrides read from the environment, so debug
// output can be captured without touching flags or the config file.
type logEnv struct {
	Debug   bool   `env:"SAMPLEBANK_DEBUG"`
	LogFile string `env:"SAMPLEBANK_LOG_FILE"`
}

// setupLog configures the default logger and returns a closer for any
// log file it opened.
func setupLog() (func() error, error) {
	cfg, err := env.ParseAs[logEnv]()
	if err != nil {
		return nil, fmt.Errorf("error parsing log environment: %w", err)
	}

	log.SetOutput(os.Stderr)
	log.SetReportTimestamp(false)
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.WarnLevel)
	}

	if cfg.LogFile == "" {
		return func() error { return nil }, nil
	}

	f, err := os.OpenFile(expandPath(cfg.LogFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("error opening log file: %w", err)
	}
	log.SetOutput(f)
	log.SetReportTimestamp(true)
	return f.Close, nil
}
