package realtime

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/botaniai/botaniai-go/internal/conf"
	"github.com/botaniai/botaniai-go/internal/service"
)

// Command creates the command that runs the long-lived service.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "realtime",
		Short: "Run the sync scheduler and HTTP API",
		Long:  "Start the periodic channel sync, prediction sweep and retention jobs, plus the HTTP trigger surface when the web server is enabled.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return service.Realtime(settings)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the realtime command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().BoolVar(&settings.WebServer.Enabled, "webserver", viper.GetBool("webserver.enabled"), "Enable the HTTP trigger API")
	cmd.Flags().StringVar(&settings.WebServer.Port, "port", viper.GetString("webserver.port"), "HTTP listen port")
	cmd.Flags().IntVar(&settings.ThingSpeak.SyncInterval, "syncinterval", viper.GetInt("thingspeak.syncinterval"), "Seconds between sync cycles")
	cmd.Flags().IntVar(&settings.MLService.SweepInterval, "sweepinterval", viper.GetInt("mlservice.sweepinterval"), "Minutes between prediction sweeps")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}
