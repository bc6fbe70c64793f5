package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/raaihank/relay-scrubber/internal/config"
	"github.com/raaihank/relay-scrubber/internal/datascrubbing"
	"github.com/raaihank/relay-scrubber/internal/logger"
	"github.com/raaihank/relay-scrubber/internal/scrubber"
)

// app holds what every command shares once the persistent flags are parsed
type app struct {
	configPath string
	logLevel   string

	cfg *config.Config
	log *logger.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "scrubber",
		Short: "Scrub PII from event payloads",
		Long: `scrubber applies PII configs and legacy data scrubbing settings to
JSON events and prints the scrubbed events together with their metadata.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to configuration file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides logging.level")

	root.AddCommand(
		newScrubCmd(a),
		newSelectorsCmd(a),
		newValidateCmd(),
		newConvertCmd(a),
		newVersionCmd(),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}

	log, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	a.cfg = cfg
	a.log = log
	log.Debug("Configuration loaded",
		zap.String("legacy_mode", cfg.Processing.LegacyMode),
		zap.Int("workers", cfg.Processing.Workers),
		zap.Bool("redis", cfg.Redis.Enabled))
	return nil
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		}
	}
	return logger.New(loggerConfig)
}

// serviceOptions maps the processing section onto scrubber options
func serviceOptions(cfg *config.Config) (scrubber.Options, error) {
	mode, err := datascrubbing.ParseMode(cfg.Processing.LegacyMode)
	if err != nil {
		return scrubber.Options{}, err
	}
	return scrubber.Options{
		Mode:          mode,
		MaxDepth:      cfg.Processing.MaxDepth,
		Workers:       cfg.Processing.Workers,
		Normalize:     cfg.Processing.Normalize,
		MaxEventBytes: cfg.Processing.MaxEventBytes,
		CacheSize:     cfg.Processing.CacheSize,
	}, nil
}

// readInput reads a whole file, or stdin for "-"
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}
