package sync

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/botaniai/botaniai-go/internal/conf"
	"github.com/botaniai/botaniai-go/internal/service"
)

// Command creates the command that runs one sync cycle and exits.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one channel sync cycle",
		Long:  "Pull the latest buffered sample for every active device, store new readings and print the cycle summary.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return service.RunSync(settings)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the sync command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().Int64Var(&settings.ThingSpeak.MaxConcurrent, "maxconcurrent", viper.GetInt64("thingspeak.maxconcurrent"), "Maximum concurrent channel fetches")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}
