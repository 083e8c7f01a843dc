package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/botaniai/botaniai-go/internal/errors"
)

// errNoScheduler is returned when a scheduler route is hit without one wired.
func errNoScheduler() error {
	return errors.Newf("scheduler is not configured").
		Component("api").
		Category(errors.CategoryState).
		Build()
}

// StartScheduler starts the periodic job loops.
func (c *Controller) StartScheduler(ctx echo.Context) error {
	if c.scheduler == nil {
		return c.HandleError(ctx, errNoScheduler(), "cannot start scheduler")
	}
	if err := c.scheduler.Start(); err != nil {
		return c.HandleError(ctx, err, "cannot start scheduler")
	}
	return c.respond(ctx, http.StatusOK, "scheduler started", nil)
}

// StopScheduler stops the periodic job loops.
func (c *Controller) StopScheduler(ctx echo.Context) error {
	if c.scheduler == nil {
		return c.HandleError(ctx, errNoScheduler(), "cannot stop scheduler")
	}
	c.scheduler.Stop()
	return c.respond(ctx, http.StatusOK, "scheduler stopped", nil)
}

// RunSync runs one sync cycle over all eligible devices immediately.
func (c *Controller) RunSync(ctx echo.Context) error {
	summary, err := c.sync.SyncAllChannels(ctx.Request().Context())
	if err != nil {
		return c.HandleError(ctx, err, "sync cycle failed")
	}
	return c.respond(ctx, http.StatusOK, "sync cycle completed", summary)
}

// SyncChannel syncs a single channel by its ThingSpeak channel id.
func (c *Controller) SyncChannel(ctx echo.Context) error {
	result, err := c.sync.SyncChannel(ctx.Request().Context(), ctx.Param("channel"))
	if err != nil {
		return c.HandleError(ctx, err, "channel sync failed")
	}
	return c.respond(ctx, http.StatusOK, "channel sync completed", result)
}

// SyncStatus reports scheduler state and per-channel sync ages.
func (c *Controller) SyncStatus(ctx echo.Context) error {
	running := false
	if c.scheduler != nil {
		running = c.scheduler.Running()
	}
	return c.respond(ctx, http.StatusOK, "", map[string]any{
		"running":  running,
		"channels": c.sync.Status(),
	})
}
