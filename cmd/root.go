package cmd

import (
	"github.com/spf13/cobra"

	"github.com/botaniai/botaniai-go/cmd/cleanup"
	"github.com/botaniai/botaniai-go/cmd/predict"
	"github.com/botaniai/botaniai-go/cmd/realtime"
	"github.com/botaniai/botaniai-go/cmd/sync"
	"github.com/botaniai/botaniai-go/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "botaniai",
		Short: "BotaniAI sensor sync and plant health prediction service",
	}

	// Set up the global flags for the root command.
	setupFlags(rootCmd, settings)

	subcommands := []*cobra.Command{
		realtime.Command(settings),
		sync.Command(settings),
		predict.Command(settings),
		cleanup.Command(settings),
	}

	rootCmd.AddCommand(subcommands...)

	return rootCmd
}

// setupFlags configures persistent flags shared by every subcommand.
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", settings.Debug, "Enable debug output")
}
