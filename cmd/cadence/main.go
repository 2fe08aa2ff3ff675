package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/chronoline/cadence/internal/extract"
	"github.com/chronoline/cadence/internal/history"
	"github.com/chronoline/cadence/internal/marker"
	"github.com/chronoline/cadence/internal/model"
	"github.com/chronoline/cadence/internal/report"
	"github.com/chronoline/cadence/internal/runner"
)

// Build variables - set by ldflags during build.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var configPath string
	var showVersion bool
	var legacy bool
	var format string

	flag.StringVar(&configPath, "config", "", "config file (default is $HOME/.config/cadence/config.yml)")
	flag.BoolVar(&showVersion, "version", false, "print version information")
	flag.BoolVar(&legacy, "legacy", false, "parse the original log marker shape")
	flag.StringVar(&format, "format", "", "report format: text or yaml")
	flag.Usage = usage
	flag.Parse()

	if showVersion {
		fmt.Printf("Cadence - CI Job Log Timing Analyzer\n")
		fmt.Printf("  Version: %s\n", version)
		fmt.Printf("  Commit:  %s\n", commit)
		return
	}

	if flag.NArg() != 2 {
		usage()
		os.Exit(2)
	}
	repo, runID := flag.Arg(0), flag.Arg(1)

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if legacy {
		cfg.Legacy = true
	}
	if format != "" {
		cfg.Format = format
	}

	if err := analyze(cfg, repo, runID); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: cadence [flags] <repo_name> <run_id>\n\n")
	fmt.Fprintf(os.Stderr, "Analyzes the downloaded CI logs under <logs-root>/<repo_name>/<run_id>/.\n\n")
	fmt.Fprintf(os.Stderr, "Flags:\n")
	flag.PrintDefaults()
}

func loadConfig(configPath string) (appConfig, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("CADENCE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("logs-root", defaultLogsRoot)
	v.SetDefault("tool-path-prefix", marker.DefaultToolPathPrefix)
	v.SetDefault("cli-announce-prefix", marker.DefaultCLIAnnouncePrefix)
	v.SetDefault("known-commands", defaultKnownCommands())
	v.SetDefault("legacy", false)
	v.SetDefault("format", defaultFormat)
	v.SetDefault("max-workers", defaultMaxWorkers)
	v.SetDefault("history-path", "")
	v.SetDefault("history-limit", defaultHistoryLimit)
	v.SetDefault("log-level", defaultLogLevel)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "cadence", "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	cfg.ConfigPath = v.ConfigFileUsed()

	if cfg.Format != "text" && cfg.Format != "yaml" {
		return cfg, fmt.Errorf("invalid format: %q", cfg.Format)
	}
	if len(cfg.KnownCommands) == 0 {
		return cfg, errors.New("known-commands must not be empty")
	}
	return cfg, nil
}

func analyze(cfg appConfig, repo, runID string) error {
	logger, err := buildLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	vocab := make([]model.CommandKind, len(cfg.KnownCommands))
	for i, name := range cfg.KnownCommands {
		vocab[i] = model.CommandKind(name)
	}
	rec := marker.NewRecognizer(marker.Config{
		ToolPathPrefix:    cfg.ToolPathPrefix,
		CLIAnnouncePrefix: cfg.CLIAnnouncePrefix,
		Vocabulary:        vocab,
		Legacy:            cfg.Legacy,
	})

	ctx := context.Background()
	r := runner.New(extract.New(rec, logger), cfg.LogsRoot, cfg.MaxWorkers, logger)
	run, err := r.Run(ctx, repo, runID)
	if err != nil {
		return err
	}

	var prior []history.RunRecord
	if cfg.HistoryPath != "" {
		store, err := history.NewStore(cfg.HistoryPath, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		if prior, err = store.RecentRuns(ctx, repo, cfg.HistoryLimit); err != nil {
			return err
		}
		if err := store.RecordRun(ctx, run); err != nil {
			return err
		}
	}

	if cfg.Format == "yaml" {
		return report.WriteYAML(os.Stdout, run)
	}
	report.WriteText(os.Stdout, run, prior)
	return nil
}

func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log-level %q: %w", level, err)
	}
	zcfg := zap.NewDevelopmentConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.OutputPaths = []string{"stderr"}
	return zcfg.Build()
}
