package main

import (
	"github.com/chronoline/cadence/internal/marker"
)

const (
	defaultLogsRoot     = "logs"
	defaultFormat       = "text"
	defaultMaxWorkers   = 4
	defaultHistoryLimit = 5
	defaultLogLevel     = "warn"
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	LogsRoot          string   `mapstructure:"logs-root"`
	ToolPathPrefix    string   `mapstructure:"tool-path-prefix"`
	CLIAnnouncePrefix string   `mapstructure:"cli-announce-prefix"`
	KnownCommands     []string `mapstructure:"known-commands"`
	Legacy            bool     `mapstructure:"legacy"`
	Format            string   `mapstructure:"format"`
	MaxWorkers        int      `mapstructure:"max-workers"`
	HistoryPath       string   `mapstructure:"history-path"`
	HistoryLimit      int      `mapstructure:"history-limit"`
	LogLevel          string   `mapstructure:"log-level"`
	ConfigPath        string   `mapstructure:"-"` // not from config file
}

func defaultKnownCommands() []string {
	vocab := marker.DefaultVocabulary()
	names := make([]string, len(vocab))
	for i, kind := range vocab {
		names[i] = string(kind)
	}
	return names
}
