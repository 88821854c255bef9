package learn

import (
	"github.com/spf13/cobra"

	"github.com/mverde/growmon-go/internal/conf"
	"github.com/mverde/growmon-go/internal/monitor"
)

// Command creates the learn command, which rebuilds baselines.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "learn",
		Short: "Rebuild strain baselines",
		Long:  "Recompute per-strain, per-phase sensor baselines from completed successful cultivations.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return monitor.Learn(cmd.Context(), settings)
		},
	}
}
