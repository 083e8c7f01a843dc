package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/botaniai/botaniai-go/internal/prediction"
)

// predictRequest is the optional body for a prediction trigger. Every field
// overrides the corresponding derived feature value.
type predictRequest struct {
	HeightCm              *float64 `json:"height_cm"`
	LeafCount             *float64 `json:"leaf_count"`
	NewGrowthCount        *float64 `json:"new_growth_count"`
	WateringAmountML      *float64 `json:"watering_amount_ml"`
	WateringFrequencyDays *float64 `json:"watering_frequency_days"`
	RoomTemperatureC      *float64 `json:"room_temperature_c"`
	HumidityPercent       *float64 `json:"humidity_percent"`
	SoilMoisturePercent   *float64 `json:"soil_moisture_percent"`
}

func (r *predictRequest) overrides() prediction.Overrides {
	return prediction.Overrides{
		HeightCm:              r.HeightCm,
		LeafCount:             r.LeafCount,
		NewGrowthCount:        r.NewGrowthCount,
		WateringAmountML:      r.WateringAmountML,
		WateringFrequencyDays: r.WateringFrequencyDays,
		RoomTemperatureC:      r.RoomTemperatureC,
		HumidityPercent:       r.HumidityPercent,
		SoilMoisturePercent:   r.SoilMoisturePercent,
	}
}

// PredictAssignment runs a prediction for one assignment. The force query
// parameter marks the run as forced; both manual and forced runs bypass the
// scheduled-run guards.
func (c *Controller) PredictAssignment(ctx echo.Context) error {
	assignmentID := ctx.Param("id")

	var body predictRequest
	if err := ctx.Bind(&body); err != nil {
		return ctx.JSON(http.StatusBadRequest, Envelope{
			Success: false,
			Message: "invalid request body: " + err.Error(),
		})
	}

	trigger := prediction.TriggerManual
	if ctx.QueryParam("force") == "true" {
		trigger = prediction.TriggerForced
	}

	outcome, err := c.predictions.Predict(ctx.Request().Context(), &prediction.Request{
		AssignmentID: assignmentID,
		Overrides:    body.overrides(),
		Trigger:      trigger,
	})
	if err != nil {
		return c.HandleError(ctx, err, "prediction failed")
	}

	return c.respond(ctx, http.StatusOK, "prediction completed", outcome)
}

// RunSweep runs a scheduled-style prediction pass over all active assignments.
func (c *Controller) RunSweep(ctx echo.Context) error {
	summary, err := c.predictions.RunSweep(ctx.Request().Context())
	if err != nil {
		return c.HandleError(ctx, err, "prediction sweep failed")
	}
	return c.respond(ctx, http.StatusOK, "prediction sweep completed", summary)
}

// PredictionHistory returns the newest stored predictions for a plant.
func (c *Controller) PredictionHistory(ctx echo.Context) error {
	limit := 0
	if raw := ctx.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return ctx.JSON(http.StatusBadRequest, Envelope{
				Success: false,
				Message: "invalid limit parameter",
			})
		}
		limit = parsed
	}

	history, err := c.predictions.History(ctx.Param("id"), limit)
	if err != nil {
		return c.HandleError(ctx, err, "failed to load prediction history")
	}
	return c.respond(ctx, http.StatusOK, "", map[string]any{
		"plant_id":    ctx.Param("id"),
		"count":       len(history),
		"predictions": history,
	})
}

// PredictionStats summarizes the stored prediction corpus.
func (c *Controller) PredictionStats(ctx echo.Context) error {
	stats, err := c.predictions.GetStats()
	if err != nil {
		return c.HandleError(ctx, err, "failed to load prediction stats")
	}
	return c.respond(ctx, http.StatusOK, "", stats)
}

// CleanupPredictions deletes predictions older than the retention window.
func (c *Controller) CleanupPredictions(ctx echo.Context) error {
	retentionDays := 0
	if raw := ctx.QueryParam("retention_days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return ctx.JSON(http.StatusBadRequest, Envelope{
				Success: false,
				Message: "invalid retention_days parameter",
			})
		}
		retentionDays = parsed
	}

	deleted, err := c.predictions.CleanupOld(retentionDays)
	if err != nil {
		return c.HandleError(ctx, err, "prediction cleanup failed")
	}
	return c.respond(ctx, http.StatusOK, "cleanup completed", map[string]any{
		"deleted": deleted,
	})
}
