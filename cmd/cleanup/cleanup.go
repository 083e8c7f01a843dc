package cleanup

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/botaniai/botaniai-go/internal/conf"
	"github.com/botaniai/botaniai-go/internal/service"
)

// Command creates the command that prunes old predictions and exits.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete predictions older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return service.RunCleanup(settings, settings.MLService.RetentionDays)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the cleanup command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().IntVar(&settings.MLService.RetentionDays, "retention", viper.GetInt("mlservice.retentiondays"), "Retention window in days")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}
