package monitor

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mverde/growmon-go/internal/conf"
	"github.com/mverde/growmon-go/internal/monitor"
)

// Command creates the monitor command, the long-running batch loop.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Run the monitoring loop",
		Long:  "Periodically check every active cultivation for anomalies and due care, until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return monitor.Run(ctx, settings)
		},
	}

	cmd.Flags().IntVar(&settings.Scheduler.IntervalMinutes, "interval",
		viper.GetInt("scheduler.intervalminutes"), "Minutes between batch passes")
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		cobra.CheckErr(err)
	}

	return cmd
}
