package predict

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/botaniai/botaniai-go/internal/conf"
	"github.com/botaniai/botaniai-go/internal/service"
)

// Command creates the command that runs a prediction and exits.
func Command(settings *conf.Settings) *cobra.Command {
	var assignmentID string
	var force bool

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Run a plant health prediction",
		Long:  "Run a prediction for one assignment, or sweep every active assignment when no assignment is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return service.RunPredict(settings, assignmentID, force)
		},
	}

	if err := setupFlags(cmd, &assignmentID, &force); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the predict command.
func setupFlags(cmd *cobra.Command, assignmentID *string, force *bool) error {
	cmd.Flags().StringVarP(assignmentID, "assignment", "a", "", "Assignment to predict for (empty sweeps all active assignments)")
	cmd.Flags().BoolVarP(force, "force", "f", false, "Bypass recency and data-freshness guards")
	return nil
}
