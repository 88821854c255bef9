package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mverde/growmon-go/cmd/check"
	"github.com/mverde/growmon-go/cmd/cleanup"
	"github.com/mverde/growmon-go/cmd/learn"
	"github.com/mverde/growmon-go/cmd/monitor"
	"github.com/mverde/growmon-go/cmd/rules"
	"github.com/mverde/growmon-go/internal/conf"
)

// RootCommand creates and returns the root command.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "growmon",
		Short: "Cultivation health monitoring CLI",
		Long:  "growmon watches cultivation sensor data for anomalies and raises care notifications.",
	}

	setupFlags(rootCmd, settings)

	rootCmd.AddCommand(
		monitor.Command(settings),
		check.Command(settings),
		learn.Command(settings),
		cleanup.Command(settings),
		rules.Command(settings),
	)

	return rootCmd
}

// setupFlags configures the global flags for the root command.
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		cobra.CheckErr(err)
	}
}
