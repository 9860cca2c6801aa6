package main

import (
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/kosub/subtrans/internal/service"
	"github.com/kosub/subtrans/pkg/log"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run translation passes on a cron schedule",
	Long: `Schedules repeated translation passes using the CRON_EXPR expression.
Overlapping triggers collapse into the run already in flight.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		c := cron.New()
		svc := service.NewTransService(cfg, c)
		if err := svc.Schedule(ctx); err != nil {
			return err
		}

		c.Start()
		log.Info("Daemon started")

		<-ctx.Done()
		log.Info("Shutting down, waiting for in-flight run")
		<-c.Stop().Done()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
