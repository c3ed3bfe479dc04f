// Package main implements the weaver CLI, a terminal front end for co-authoring
// illustrated, narrated stories with a generative backend.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"storyweaver/internal/config"
	"storyweaver/internal/logging"
)

var (
	// Global flags
	verbose    bool
	configPath string
	dbPath     string
	timeout    time.Duration
	storyID    string

	// Loaded per invocation
	cfg    *config.Config
	logger *zap.Logger

	timeNow = time.Now
)

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "weaver",
		Short: "Story Weaver - co-author illustrated, narrated stories",
		Long: `Story Weaver keeps a library of stories built from ordered turns of text,
images, video and audio. Each generation streams new turns from the model into
the current story; generated media is also kept in a reusable asset library.

The current story is the most recently updated one unless --story is given.`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
			logging.CloseAll()
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath(), "Config file path")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (overrides config and STORYWEAVER_DB)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Operation timeout (default: backend.timeout from config)")
	rootCmd.PersistentFlags().StringVarP(&storyID, "story", "s", "", "Story id to act on (default: most recently updated)")

	rootCmd.AddCommand(
		newStoryCmds()...,
	)
	rootCmd.AddCommand(
		newGenerateCmd(),
		newRegenerateCmd(),
		newSpeakCmd(),
		newVideoCmd(),
		newPlayCmd(),
		newAssetsCmd(),
		newScriptCmd(),
		newExportCmd(),
		newImportCmd(),
		newSettingsCmd(),
	)
	return rootCmd
}

// setup loads .env, the process config and the loggers.
func setup(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	zcfg := zap.NewProductionConfig()
	if verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}
	var err error
	logger, err = zcfg.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}
	if dbPath != "" {
		cfg.Storage.DatabasePath = dbPath
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := logging.Initialize(cfg.DataDir(), cfg.ToLogging()); err != nil {
		logger.Warn("File logging disabled", zap.Error(err))
	}
	logger.Debug("Config loaded",
		zap.String("config", configPath),
		zap.String("database", cfg.Storage.DatabasePath))
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
