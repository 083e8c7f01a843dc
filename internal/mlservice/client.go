// Package mlservice implements the client for the remote plant-health
// predictor. The predictor is an opaque scoring endpoint; when it is down the
// prediction engine degrades to rule-based fallback instead of failing.
package mlservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/botaniai/botaniai-go/internal/errors"
	"github.com/botaniai/botaniai-go/internal/logging"
)

// Package-level logger specific to the mlservice client
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "mlservice.log")
	serviceLevelVar.Set(slog.LevelDebug)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "mlservice", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize mlservice file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "mlservice")
		closeLogger = func() error { return nil }
	}
}

// ErrUnavailable marks the defined degraded mode: the predictor is down,
// overloaded or timing out. Callers fall back to rule-based scoring.
var ErrUnavailable = errors.NewStd("mlservice: predictor unavailable")

// Features is the fixed 8-value vector the predictor scores. The JSON keys
// are part of the predictor's contract, including the percent signs.
type Features struct {
	HeightCm              float64 `json:"Height_cm"`
	LeafCount             float64 `json:"Leaf_Count"`
	NewGrowthCount        float64 `json:"New_Growth_Count"`
	WateringAmountML      float64 `json:"Watering_Amount_ml"`
	WateringFrequencyDays float64 `json:"Watering_Frequency_days"`
	RoomTemperatureC      float64 `json:"Room_Temperature_C"`
	HumidityPercent       float64 `json:"Humidity_%"`
	SoilMoisturePercent   float64 `json:"Soil_Moisture_%"`
}

// Result is the predictor's scoring response.
type Result struct {
	Prediction      int     `json:"prediction"`
	PredictionLabel string  `json:"prediction_label"`
	Recommendation  string  `json:"recommendation"`
	Confidence      float64 `json:"confidence"`
	ModelType       string  `json:"model_type"`
	UsingFallback   bool    `json:"using_fallback"`
}

// Config holds the client configuration.
type Config struct {
	URL     string
	Timeout time.Duration
}

// Client calls the remote predictor.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a predictor client.
func NewClient(config Config) *Client {
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}

	logger.Info("ML service client initialized",
		"url", config.URL,
		"timeout", config.Timeout.String())

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Close releases client resources.
func (c *Client) Close() {
	if closeLogger != nil {
		if err := closeLogger(); err != nil {
			log.Printf("Error closing mlservice logger: %v", err)
		}
	}
}

// Predict sends the feature vector and returns the predictor's result.
// Connection refusal, timeout and overload all surface as ErrUnavailable;
// any other failure is unexpected and propagates as a real error.
func (c *Client) Predict(ctx context.Context, features *Features, requestID string) (*Result, error) {
	payload, err := json.Marshal(features)
	if err != nil {
		return nil, fmt.Errorf("marshaling features: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isConnectionError(err) {
			logger.Warn("Predictor unreachable",
				"url", c.config.URL,
				"elapsed", time.Since(start).String(),
				"error", err)
			return nil, errors.Join(ErrUnavailable, err)
		}
		return nil, errors.New(err).
			Component("mlservice").
			Category(errors.CategoryNetwork).
			Timing("predict", time.Since(start)).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusServiceUnavailable {
		logger.Warn("Predictor overloaded", "url", c.config.URL)
		return nil, ErrUnavailable
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Newf("predictor returned status %d: %s", resp.StatusCode, string(body)).
			Component("mlservice").
			Category(errors.CategoryNetwork).
			Context("status", resp.StatusCode).
			Build()
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("unmarshaling predictor response: %w", err)
	}

	logger.Debug("Prediction received",
		"class", result.Prediction,
		"label", result.PredictionLabel,
		"confidence", result.Confidence,
		"model_type", result.ModelType,
		"elapsed", time.Since(start).String())

	return &result, nil
}

// IsUnavailable reports whether err represents the defined degraded mode
// rather than an unexpected failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// isConnectionError classifies transport errors that mean "the predictor is
// not there right now": refused connections, DNS failures and timeouts.
func isConnectionError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
