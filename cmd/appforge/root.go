package main

import (
	"github.com/spf13/cobra"

	"github.com/awsl-project/appforge/internal/config"
)

var dataDir string

var rootCmd = &cobra.Command{
	Use:   "appforge",
	Short: "Generate and preview React apps from a chat prompt",
	Long: `AppForge turns a natural-language request into a multi-file React +
TypeScript project using Anthropic, Google or OpenAI models, with automatic
fallback between providers and recovery of truncated responses.

Available commands:
  serve     - Run the HTTP server (SSE generation endpoint and admin API)
  generate  - Run one generation from the command line
  models    - List the available models

Settings are read from the environment and an optional .env file.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory (default $APPFORGE_DATA_DIR or ~/.config/appforge)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(modelsCmd)
}

// loadConfig reads the environment and applies global flags
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		cfg.SetDataDir(dataDir)
	}
	return cfg, nil
}
