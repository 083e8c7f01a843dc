package service

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/botaniai/botaniai-go/internal/conf"
	"github.com/botaniai/botaniai-go/internal/prediction"
)

// printJSON writes a result to stdout for the one-shot commands.
func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// RunSync executes one sync cycle over all eligible devices and prints the
// summary.
func RunSync(settings *conf.Settings) error {
	comp, err := buildComponents(settings)
	if err != nil {
		return err
	}
	defer comp.close()

	ctx, cancel := interruptible()
	defer cancel()

	summary, err := comp.sync.SyncAllChannels(ctx)
	if err != nil {
		return err
	}
	return printJSON(summary)
}

// RunPredict runs a prediction for one assignment, or a sweep over all
// active assignments when assignmentID is empty.
func RunPredict(settings *conf.Settings, assignmentID string, force bool) error {
	comp, err := buildComponents(settings)
	if err != nil {
		return err
	}
	defer comp.close()

	ctx, cancel := interruptible()
	defer cancel()

	if assignmentID == "" {
		summary, err := comp.predictions.RunSweep(ctx)
		if err != nil {
			return err
		}
		return printJSON(summary)
	}

	trigger := prediction.TriggerManual
	if force {
		trigger = prediction.TriggerForced
	}
	outcome, err := comp.predictions.Predict(ctx, &prediction.Request{
		AssignmentID: assignmentID,
		Trigger:      trigger,
	})
	if err != nil {
		return err
	}
	return printJSON(outcome)
}

// RunCleanup deletes predictions older than the retention window.
func RunCleanup(settings *conf.Settings, retentionDays int) error {
	comp, err := buildComponents(settings)
	if err != nil {
		return err
	}
	defer comp.close()

	deleted, err := comp.predictions.CleanupOld(retentionDays)
	if err != nil {
		return err
	}
	fmt.Printf("deleted %d predictions\n", deleted)
	return nil
}
