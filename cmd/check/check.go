package check

import (
	"github.com/spf13/cobra"

	"github.com/mverde/growmon-go/internal/conf"
	"github.com/mverde/growmon-go/internal/monitor"
)

// Command creates the check command, a single batch pass.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run one monitoring pass",
		Long:  "Check every active cultivation once, create any due notifications, and exit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return monitor.CheckOnce(cmd.Context(), settings)
		},
	}
}
