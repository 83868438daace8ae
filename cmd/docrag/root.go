package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/docrag/internal/config"
	"github.com/dshills/docrag/internal/logging"
)

const skipConfigAnnotation = "docrag/skip-config"

var (
	configFile  string
	environment string
	logLevel    string

	cfg    *config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "docrag",
	Short: "Retrieval-augmented chat over your reference documents",
	Long: `docrag ingests PDF, Markdown and plain text files into a vector store and
answers questions with the most relevant excerpts injected into the prompt.

Settings come from environment variables, an optional .env.<env> file and an
optional TOML file given with --config.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadSettings,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "TOML configuration file")
	rootCmd.PersistentFlags().StringVar(&environment, "env", "local", "environment selecting the .env.<env> file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")
}

func loadSettings(cmd *cobra.Command, _ []string) error {
	if cmd.Annotations[skipConfigAnnotation] == "true" {
		return nil
	}

	loaded, err := config.Load(config.LoadOptions{Environment: environment, File: configFile})
	if err != nil {
		return err
	}
	if logLevel != "" {
		loaded.Log.Level = logLevel
	}

	l, err := logging.New(loaded.Log.Level, loaded.Log.Format)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	cfg = loaded
	logger = l.With(zap.String("env", loaded.Environment))
	return nil
}
