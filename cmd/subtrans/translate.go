package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kosub/subtrans/internal/orchestrator"
	"github.com/kosub/subtrans/internal/service"
	"github.com/kosub/subtrans/pkg/log"
)

var startIndex int

var translateCmd = &cobra.Command{
	Use:   "translate",
	Short: "Run one translation pass over the source subtitle file",
	Long: `Translates every segment of the source subtitle file into the configured
target languages and writes one .srt file per language.

Runs always start at segment 1 unless --start-index is given; to resume an
interrupted run, pass the last_index from the progress checkpoint file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		summary, err := service.RunTranslation(ctx, cfg, orchestrator.RunOptions{StartIndex: startIndex})
		if err != nil {
			return err
		}
		if summary.Failed > 0 {
			log.Warn("%d segments remain untranslated, run \"subtrans retry-failed\" to retry them", summary.Failed)
		}
		return nil
	},
}

func init() {
	translateCmd.Flags().IntVar(&startIndex, "start-index", 1, "1-based segment index to start from")
	rootCmd.AddCommand(translateCmd)
}
