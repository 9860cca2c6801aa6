package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kosub/subtrans/internal/service"
	"github.com/kosub/subtrans/pkg/log"
)

var retryFailedCmd = &cobra.Command{
	Use:   "retry-failed",
	Short: "Retry segments whose translations are missing or unchanged",
	Long: `Scans the per-language subtitle files for segments whose text is empty or
still identical to the source, then reprocesses them sequentially in a
bounded number of rounds.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		summary, err := service.RunRetryFailed(ctx, cfg)
		if err != nil {
			return err
		}
		if summary.Failed > 0 {
			log.Warn("%d segments still failed after retrying", summary.Failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(retryFailedCmd)
}
