// Package prediction implements the plant health scoring pipeline: feature
// assembly from sensor history, the remote predictor call with rule-based
// fallback, and prediction persistence.
package prediction

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/botaniai/botaniai-go/internal/conf"
	"github.com/botaniai/botaniai-go/internal/datastore"
	"github.com/botaniai/botaniai-go/internal/errors"
	"github.com/botaniai/botaniai-go/internal/logging"
	"github.com/botaniai/botaniai-go/internal/mlservice"
)

// Package-level logger specific to the prediction service
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "prediction.log")
	serviceLevelVar.Set(slog.LevelDebug)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "prediction", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize prediction file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "prediction")
		closeLogger = func() error { return nil }
	}
}

const (
	// historyWindow bounds how far back the feature builder looks.
	historyWindow = 24 * time.Hour
	// historyLimit caps how many readings feed the feature averages.
	historyLimit = 10
	// recencyWindow is how long a stored prediction satisfies a periodic run.
	recencyWindow = 2 * time.Hour
	// defaultConfidence is assumed when the predictor omits a confidence.
	defaultConfidence = 0.85
)

// Trigger identifies what initiated a prediction run. Only scheduled runs
// honor the recency and data-freshness guards.
type Trigger int

const (
	TriggerManual Trigger = iota
	TriggerForced
	TriggerScheduled
)

// Outcome statuses.
const (
	StatusSuccess = "success"
	StatusSkipped = "skipped"
)

// Skip reasons for scheduled runs.
const (
	SkipRecentPrediction = "recent prediction exists"
	SkipNoRecentData     = "no recent sensor data"
)

// Predictor scores a feature vector. Satisfied by *mlservice.Client.
type Predictor interface {
	Predict(ctx context.Context, features *mlservice.Features, requestID string) (*mlservice.Result, error)
}

// Request describes one prediction run.
type Request struct {
	AssignmentID string
	Overrides    Overrides
	Trigger      Trigger
}

// Outcome is the result of a prediction run. Skipped runs carry only the
// status, skip reason and identifiers.
type Outcome struct {
	Status         string  `json:"status"`
	SkipReason     string  `json:"skip_reason,omitempty"`
	PredictionID   uint    `json:"prediction_id,omitempty"`
	AssignmentID   string  `json:"assignment_id"`
	PlantID        string  `json:"plant_id"`
	Class          int     `json:"class"`
	Label          string  `json:"label,omitempty"`
	Description    string  `json:"description,omitempty"`
	Recommendation string  `json:"recommendation,omitempty"`
	Confidence     float64 `json:"confidence,omitempty"`
	ModelType      string  `json:"model_type,omitempty"`
	UsingFallback  bool    `json:"using_fallback"`
	ReadingCount   int     `json:"reading_count"`
	RequestID      string  `json:"request_id,omitempty"`
}

// SweepSummary counts per-assignment outcomes of one scheduled sweep.
type SweepSummary struct {
	Assignments int `json:"assignments"`
	Succeeded   int `json:"succeeded"`
	Skipped     int `json:"skipped"`
	Errored     int `json:"errored"`
}

// Stats summarizes the stored prediction corpus.
type Stats struct {
	Total     int64            `json:"total"`
	Last24h   int64            `json:"last_24h"`
	ByClass   map[int]int64    `json:"by_class"`
	BySource  map[string]int64 `json:"by_source"`
	Retention int              `json:"retention_days"`
}

// Engine runs the prediction pipeline against the datastore and predictor.
type Engine struct {
	ds        datastore.Interface
	predictor Predictor
	settings  *conf.Settings
}

// NewEngine creates a prediction engine. The predictor may be nil when the
// ML service is disabled; every run then uses the rule-based fallback.
func NewEngine(settings *conf.Settings, ds datastore.Interface, predictor Predictor) *Engine {
	return &Engine{
		ds:        ds,
		predictor: predictor,
		settings:  settings,
	}
}

// Predict runs the full pipeline for one assignment: locate the assignment
// and plant, gather recent readings, apply the scheduled-run guards, build
// the feature vector, score it, persist and return the result.
func (e *Engine) Predict(ctx context.Context, req *Request) (*Outcome, error) {
	if req.AssignmentID == "" {
		return nil, errors.Newf("assignment id is required").
			Component("prediction").
			Category(errors.CategoryValidation).
			Build()
	}

	assignment, err := e.ds.GetAssignment(req.AssignmentID)
	if err != nil {
		return nil, err
	}

	plant, err := e.ds.GetPlant(assignment.PlantID)
	if err != nil {
		return nil, err
	}

	now := time.Now()

	if req.Trigger == TriggerScheduled {
		if outcome, err := e.applyGuards(&assignment, now); outcome != nil || err != nil {
			return outcome, err
		}
	}

	readings, err := e.ds.ReadingsForAssignment(assignment.ID, now.Add(-historyWindow), historyLimit)
	if err != nil {
		return nil, err
	}

	lastPrediction, err := e.ds.LatestPredictionForPlant(plant.ID)
	if err != nil {
		return nil, err
	}

	features := BuildFeatures(&BuildInput{
		Overrides:      req.Overrides,
		Readings:       readings,
		Species:        plant.Species,
		AgeDays:        plant.AgeDays,
		LastPrediction: lastPrediction,
		Soil:           e.soilScaleFor(assignment.DeviceID),
		Now:            now,
	})

	requestID := uuid.NewString()
	result, err := e.score(ctx, features, requestID)
	if err != nil {
		return nil, err
	}

	confidence := result.Confidence
	if confidence == 0 {
		confidence = defaultConfidence
	}

	record := &datastore.Prediction{
		AssignmentID:          assignment.ID,
		PlantID:               plant.ID,
		OwnerID:               assignment.OwnerID,
		HeightCm:              features.HeightCm,
		LeafCount:             features.LeafCount,
		NewGrowthCount:        features.NewGrowthCount,
		WateringAmountML:      features.WateringAmountML,
		WateringFrequencyDays: features.WateringFrequencyDays,
		RoomTemperatureC:      features.RoomTemperatureC,
		HumidityPercent:       features.HumidityPercent,
		SoilMoisturePercent:   features.SoilMoisturePercent,
		Class:                 result.Prediction,
		Label:                 result.PredictionLabel,
		Recommendation:        result.Recommendation,
		Confidence:            confidence,
		ReadingCount:          len(readings),
		Source:                predictionSource(req.Trigger, result.UsingFallback),
		ModelType:             result.ModelType,
		UsingFallback:         result.UsingFallback,
		RequestID:             requestID,
		CreatedAt:             now,
	}
	if len(readings) > 0 {
		record.SensorReadingID = &readings[0].ID
	}

	if err := e.ds.SavePrediction(record); err != nil {
		return nil, err
	}

	logger.Info("Prediction stored",
		"assignment_id", assignment.ID,
		"plant_id", plant.ID,
		"class", result.Prediction,
		"confidence", confidence,
		"fallback", result.UsingFallback,
		"readings", len(readings),
		"request_id", requestID)

	return &Outcome{
		Status:         StatusSuccess,
		PredictionID:   record.ID,
		AssignmentID:   assignment.ID,
		PlantID:        plant.ID,
		Class:          result.Prediction,
		Label:          result.PredictionLabel,
		Description:    DescribeClass(result.Prediction),
		Recommendation: result.Recommendation,
		Confidence:     confidence,
		ModelType:      result.ModelType,
		UsingFallback:  result.UsingFallback,
		ReadingCount:   len(readings),
		RequestID:      requestID,
	}, nil
}

// applyGuards enforces the scheduled-run skip conditions. A non-nil outcome
// means the run is satisfied without scoring.
func (e *Engine) applyGuards(assignment *datastore.DeviceAssignment, now time.Time) (*Outcome, error) {
	since := now.Add(-recencyWindow)

	existing, err := e.ds.PredictionForAssignmentSince(assignment.ID, since)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		logger.Debug("Skipping scheduled prediction, recent one exists",
			"assignment_id", assignment.ID,
			"prediction_id", existing.ID)
		return &Outcome{
			Status:       StatusSkipped,
			SkipReason:   SkipRecentPrediction,
			PredictionID: existing.ID,
			AssignmentID: assignment.ID,
			PlantID:      assignment.PlantID,
		}, nil
	}

	count, err := e.ds.CountReadingsSince(assignment.ID, since)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		logger.Debug("Skipping scheduled prediction, no recent sensor data",
			"assignment_id", assignment.ID)
		return &Outcome{
			Status:       StatusSkipped,
			SkipReason:   SkipNoRecentData,
			AssignmentID: assignment.ID,
			PlantID:      assignment.PlantID,
		}, nil
	}

	return nil, nil
}

// soilScaleFor resolves the soil conversion for a device: the device's own
// probe calibration when set, otherwise the configured global default.
func (e *Engine) soilScaleFor(deviceID string) SoilScale {
	scale := SoilScale{
		RawMin: e.settings.Soil.RawMin,
		RawMax: e.settings.Soil.RawMax,
		Invert: e.settings.Soil.Invert,
	}

	device, err := e.ds.GetDevice(deviceID)
	if err != nil {
		if !errors.IsNotFound(err) {
			logger.Warn("Failed to load device for soil calibration",
				"device_id", deviceID,
				"error", err)
		}
		return scale
	}
	if device.SoilRawMax > device.SoilRawMin {
		scale = SoilScale{
			RawMin: device.SoilRawMin,
			RawMax: device.SoilRawMax,
			Invert: device.SoilInvert,
		}
	}
	return scale
}

// score calls the remote predictor, falling back to rule-based scoring when
// the service is disabled or unavailable. Non-availability errors, such as a
// malformed predictor response, propagate to the caller.
func (e *Engine) score(ctx context.Context, features *mlservice.Features, requestID string) (*mlservice.Result, error) {
	if !e.settings.MLService.Enabled || e.predictor == nil {
		logger.Debug("Predictor disabled, using rule-based fallback", "request_id", requestID)
		return fallbackPredict(features), nil
	}

	callCtx, cancel := context.WithTimeout(ctx, e.settings.MLServiceTimeout())
	defer cancel()

	result, err := e.predictor.Predict(callCtx, features, requestID)
	if err != nil {
		if mlservice.IsUnavailable(err) {
			logger.Warn("Predictor unavailable, using rule-based fallback",
				"request_id", requestID,
				"error", err)
			return fallbackPredict(features), nil
		}
		return nil, errors.New(err).
			Component("prediction").
			Category(errors.CategoryNetwork).
			Context("request_id", requestID).
			Build()
	}
	return result, nil
}

// predictionSource maps trigger and fallback state onto the stored source tag.
func predictionSource(trigger Trigger, usedFallback bool) string {
	if usedFallback {
		return datastore.PredictionSourceFallback
	}
	if trigger == TriggerScheduled {
		return datastore.PredictionSourceScheduled
	}
	return datastore.PredictionSourceMLService
}

// RunSweep runs a scheduled prediction for every active assignment. Failures
// are contained per assignment so one bad plant cannot stall the sweep.
func (e *Engine) RunSweep(ctx context.Context) (*SweepSummary, error) {
	assignments, err := e.ds.ActiveAssignments()
	if err != nil {
		return nil, err
	}

	summary := &SweepSummary{Assignments: len(assignments)}
	for i := range assignments {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		outcome, err := e.Predict(ctx, &Request{
			AssignmentID: assignments[i].ID,
			Trigger:      TriggerScheduled,
		})
		switch {
		case err != nil:
			summary.Errored++
			logger.Error("Sweep prediction failed",
				"assignment_id", assignments[i].ID,
				"error", err)
		case outcome.Status == StatusSkipped:
			summary.Skipped++
		default:
			summary.Succeeded++
		}
	}

	logger.Info("Prediction sweep finished",
		"assignments", summary.Assignments,
		"succeeded", summary.Succeeded,
		"skipped", summary.Skipped,
		"errored", summary.Errored)

	return summary, nil
}

// History returns the newest stored predictions for a plant.
func (e *Engine) History(plantID string, limit int) ([]datastore.Prediction, error) {
	if plantID == "" {
		return nil, errors.Newf("plant id is required").
			Component("prediction").
			Category(errors.CategoryValidation).
			Build()
	}
	if limit <= 0 {
		limit = historyLimit
	}
	return e.ds.PredictionsForPlant(plantID, limit)
}

// GetStats summarizes the stored prediction corpus.
func (e *Engine) GetStats() (*Stats, error) {
	total, err := e.ds.CountPredictions()
	if err != nil {
		return nil, err
	}
	last24h, err := e.ds.CountPredictionsSince(time.Now().Add(-24 * time.Hour))
	if err != nil {
		return nil, err
	}
	byClass, err := e.ds.CountPredictionsByClass()
	if err != nil {
		return nil, err
	}
	bySource, err := e.ds.CountPredictionsBySource()
	if err != nil {
		return nil, err
	}
	return &Stats{
		Total:     total,
		Last24h:   last24h,
		ByClass:   byClass,
		BySource:  bySource,
		Retention: e.settings.MLService.RetentionDays,
	}, nil
}

// CleanupOld removes predictions older than the retention window and returns
// the number of deleted rows. Zero or negative retentionDays selects the
// configured default.
func (e *Engine) CleanupOld(retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		retentionDays = e.settings.MLService.RetentionDays
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	deleted, err := e.ds.DeletePredictionsBefore(cutoff)
	if err != nil {
		return 0, err
	}

	logger.Info("Old predictions removed",
		"retention_days", retentionDays,
		"cutoff", cutoff.Format(time.RFC3339),
		"deleted", deleted)
	return deleted, nil
}

// Close releases engine resources.
func (e *Engine) Close() {
	if closeLogger != nil {
		if err := closeLogger(); err != nil {
			log.Printf("Error closing prediction logger: %v", err)
		}
	}
}

// String makes Trigger readable in logs.
func (t Trigger) String() string {
	switch t {
	case TriggerManual:
		return "manual"
	case TriggerForced:
		return "forced"
	case TriggerScheduled:
		return "scheduled"
	default:
		return fmt.Sprintf("trigger(%d)", int(t))
	}
}
