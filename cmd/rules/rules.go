package rules

import (
	"slices"

	"github.com/spf13/cobra"

	"github.com/mverde/growmon-go/internal/conf"
	"github.com/mverde/growmon-go/internal/monitor"
)

// Command creates the rules command, which lists the rule catalog. The
// --enable and --disable flags adjust the disabled set for this invocation;
// persistent changes go through the rules.disabled config key.
func Command(settings *conf.Settings) *cobra.Command {
	var enable, disable []string

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List notification rules",
		Long:  "Show every notification rule with its priority, cooldown, and enabled state.",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, id := range enable {
				settings.Rules.Disabled = slices.DeleteFunc(settings.Rules.Disabled,
					func(d string) bool { return d == id })
			}
			for _, id := range disable {
				if !slices.Contains(settings.Rules.Disabled, id) {
					settings.Rules.Disabled = append(settings.Rules.Disabled, id)
				}
			}
			return monitor.ListRules(settings)
		},
	}

	cmd.Flags().StringSliceVar(&enable, "enable", nil, "rule IDs to enable")
	cmd.Flags().StringSliceVar(&disable, "disable", nil, "rule IDs to disable")

	return cmd
}
