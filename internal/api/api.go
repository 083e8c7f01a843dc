// Package api exposes the HTTP trigger surface for the sync and prediction
// pipelines under /api/v1.
package api

import (
	"io"
	"log"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/botaniai/botaniai-go/internal/conf"
	"github.com/botaniai/botaniai-go/internal/datastore"
	"github.com/botaniai/botaniai-go/internal/errors"
	"github.com/botaniai/botaniai-go/internal/logging"
	"github.com/botaniai/botaniai-go/internal/prediction"
	"github.com/botaniai/botaniai-go/internal/scheduler"
	"github.com/botaniai/botaniai-go/internal/telemetry"
)

// Controller manages the API routes and handlers.
type Controller struct {
	Echo     *echo.Echo
	Group    *echo.Group
	DS       datastore.Interface
	Settings *conf.Settings

	predictions *prediction.Engine
	sync        *telemetry.Engine
	scheduler   *scheduler.Scheduler

	startTime time.Time

	apiLogger      *slog.Logger
	apiLevelVar    *slog.LevelVar
	apiLoggerClose func() error
}

// Option is a functional option for configuring the Controller.
type Option func(*Controller)

// WithScheduler attaches the job scheduler so the API can start, stop and
// trigger the periodic loops.
func WithScheduler(s *scheduler.Scheduler) Option {
	return func(c *Controller) {
		c.scheduler = s
	}
}

// New creates the API controller and registers its routes on e.
func New(e *echo.Echo, ds datastore.Interface, settings *conf.Settings,
	predictions *prediction.Engine, syncEngine *telemetry.Engine, opts ...Option) *Controller {

	c := &Controller{
		Echo:        e,
		DS:          ds,
		Settings:    settings,
		predictions: predictions,
		sync:        syncEngine,
		startTime:   time.Now(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.apiLevelVar = new(slog.LevelVar)
	c.apiLevelVar.Set(slog.LevelInfo)
	logFilePath := filepath.Join("logs", "api.log")

	var err error
	c.apiLogger, c.apiLoggerClose, err = logging.NewFileLogger(logFilePath, "api", c.apiLevelVar)
	if err != nil {
		log.Printf("Failed to initialize API file logger at %s: %v. API logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: c.apiLevelVar})
		c.apiLogger = slog.New(fbHandler).With("service", "api")
		c.apiLoggerClose = func() error { return nil }
	}

	c.Group = e.Group("/api/v1")
	c.initRoutes()

	return c
}

// initRoutes registers all API endpoints.
func (c *Controller) initRoutes() {
	c.Echo.GET("/healthz", c.Healthz)

	predictions := c.Group.Group("/predictions")
	predictions.POST("/sweep", c.RunSweep)
	predictions.POST("/assignments/:id", c.PredictAssignment)
	predictions.GET("/plants/:id/history", c.PredictionHistory)
	predictions.GET("/stats", c.PredictionStats)
	predictions.POST("/cleanup", c.CleanupPredictions)

	syncGroup := c.Group.Group("/sync")
	syncGroup.POST("/start", c.StartScheduler)
	syncGroup.POST("/stop", c.StopScheduler)
	syncGroup.POST("/run", c.RunSync)
	syncGroup.POST("/channels/:channel", c.SyncChannel)
	syncGroup.GET("/status", c.SyncStatus)
}

// Close releases controller resources.
func (c *Controller) Close() {
	if c.apiLoggerClose != nil {
		if err := c.apiLoggerClose(); err != nil {
			log.Printf("Error closing API logger: %v", err)
		}
	}
}

// Envelope is the uniform JSON response shape.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// respond writes a success envelope.
func (c *Controller) respond(ctx echo.Context, code int, message string, data any) error {
	return ctx.JSON(code, Envelope{Success: true, Message: message, Data: data})
}

// HandleError maps an error onto its HTTP status and writes a failure
// envelope. Validation failures map to 422, missing resources to 404 and
// predictor outages to 503.
func (c *Controller) HandleError(ctx echo.Context, err error, message string) error {
	code := http.StatusInternalServerError
	switch {
	case errors.IsValidation(err):
		code = http.StatusUnprocessableEntity
	case errors.IsNotFound(err):
		code = http.StatusNotFound
	case errors.IsCategory(err, errors.CategoryUnavailable):
		code = http.StatusServiceUnavailable
	case errors.IsCategory(err, errors.CategoryState):
		code = http.StatusConflict
	}

	c.apiLogger.Error("API error",
		"message", message,
		"error", err.Error(),
		"code", code,
		"path", ctx.Request().URL.Path,
		"method", ctx.Request().Method,
		"ip", ctx.RealIP())

	return ctx.JSON(code, Envelope{Success: false, Message: message + ": " + err.Error()})
}

// Healthz reports process health and uptime.
func (c *Controller) Healthz(ctx echo.Context) error {
	running := false
	if c.scheduler != nil {
		running = c.scheduler.Running()
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"status":            "ok",
		"uptime":            time.Since(c.startTime).Round(time.Second).String(),
		"scheduler_running": running,
	})
}
