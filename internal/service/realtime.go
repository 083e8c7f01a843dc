// Package service wires the datastore, clients, engines and HTTP surface
// into runnable top-level operations for the CLI.
package service

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/botaniai/botaniai-go/internal/api"
	"github.com/botaniai/botaniai-go/internal/conf"
	"github.com/botaniai/botaniai-go/internal/datastore"
	"github.com/botaniai/botaniai-go/internal/errors"
	"github.com/botaniai/botaniai-go/internal/logging"
	"github.com/botaniai/botaniai-go/internal/mlservice"
	"github.com/botaniai/botaniai-go/internal/prediction"
	"github.com/botaniai/botaniai-go/internal/scheduler"
	"github.com/botaniai/botaniai-go/internal/telemetry"
	"github.com/botaniai/botaniai-go/internal/thingspeak"
)

// components holds everything the service operations build on.
type components struct {
	ds          datastore.Interface
	sync        *telemetry.Engine
	predictions *prediction.Engine
	mlClient    *mlservice.Client
	tsClient    *thingspeak.Client
}

// buildComponents opens the datastore and constructs the clients and engines.
func buildComponents(settings *conf.Settings) (*components, error) {
	ds := datastore.New(settings)
	if ds == nil {
		return nil, errors.Newf("no database output enabled").
			Component("service").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err := ds.Open(); err != nil {
		return nil, err
	}

	tsClient := thingspeak.NewClient(thingspeak.Config{
		BaseURL: settings.ThingSpeak.BaseURL,
		Timeout: settings.ThingSpeakTimeout(),
	})
	mlClient := mlservice.NewClient(mlservice.Config{
		URL:     settings.MLService.URL,
		Timeout: settings.MLServiceTimeout(),
	})

	return &components{
		ds:          ds,
		sync:        telemetry.NewEngine(settings, ds, tsClient),
		predictions: prediction.NewEngine(settings, ds, mlClient),
		mlClient:    mlClient,
		tsClient:    tsClient,
	}, nil
}

// close tears components down in reverse construction order.
func (c *components) close() {
	c.predictions.Close()
	c.sync.Close()
	c.mlClient.Close()
	c.tsClient.Close()
	if err := c.ds.Close(); err != nil {
		logging.Error("Failed to close datastore", "error", err)
	}
}

// Realtime runs the long-lived service: the job scheduler plus, when
// enabled, the HTTP trigger surface. It blocks until SIGINT or SIGTERM.
func Realtime(settings *conf.Settings) error {
	comp, err := buildComponents(settings)
	if err != nil {
		return err
	}
	defer comp.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched := scheduler.New(settings, comp.sync, comp.predictions)
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Close()

	var e *echo.Echo
	var controller *api.Controller
	serverErr := make(chan error, 1)

	if settings.WebServer.Enabled {
		e = echo.New()
		e.HideBanner = true
		e.Use(middleware.Recover())

		controller = api.New(e, comp.ds, settings, comp.predictions, comp.sync,
			api.WithScheduler(sched))
		defer controller.Close()

		go func() {
			addr := ":" + settings.WebServer.Port
			logging.Info("HTTP server listening", "addr", addr)
			if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
	}

	logging.Info("Service started",
		"name", settings.Main.Name,
		"webserver", settings.WebServer.Enabled)

	select {
	case <-ctx.Done():
		logging.Info("Shutdown signal received")
	case err := <-serverErr:
		return fmt.Errorf("http server failed: %w", err)
	}

	sched.Stop()
	if e != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			logging.Error("HTTP server shutdown failed", "error", err)
		}
	}

	return nil
}

// interruptible returns a context cancelled by SIGINT or SIGTERM, for the
// one-shot operations.
func interruptible() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
