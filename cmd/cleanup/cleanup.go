package cleanup

import (
	"github.com/spf13/cobra"

	"github.com/mverde/growmon-go/internal/conf"
	"github.com/mverde/growmon-go/internal/monitor"
)

// Command creates the cleanup command, the retention maintenance pass.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Purge expired records",
		Long:  "Remove dismissals past their retention window and old read notifications.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return monitor.Cleanup(cmd.Context(), settings)
		},
	}
}
