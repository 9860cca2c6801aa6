package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kosub/subtrans/internal/config"
	"github.com/kosub/subtrans/pkg/log"
)

var version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "subtrans",
	Short: "Concurrent batch subtitle translator",
	Long: `Translates a source subtitle file into multiple languages through an
OpenAI-compatible LLM endpoint, one durable .srt file per target language.

Configuration is environment based; a .env file in the working directory is
loaded automatically. Use "subtrans translate --help" for run options.`,
	Version: version,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads .env (when present), applies LOG_LEVEL, and builds the
// validated config.
func loadConfig() (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn("Failed to load .env file: %v", err)
	}
	log.InitLogger(log.ParseLevel(os.Getenv("LOG_LEVEL")))
	return config.NewFromEnv()
}
