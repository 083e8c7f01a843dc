// Package scheduler drives the periodic jobs: channel sync cycles, the
// prediction sweep over active assignments and the retention cleanup.
package scheduler

import (
	"context"
	"io"
	"log"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/botaniai/botaniai-go/internal/conf"
	"github.com/botaniai/botaniai-go/internal/errors"
	"github.com/botaniai/botaniai-go/internal/logging"
	"github.com/botaniai/botaniai-go/internal/prediction"
	"github.com/botaniai/botaniai-go/internal/telemetry"
)

// Package-level logger specific to the scheduler service
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "scheduler.log")
	serviceLevelVar.Set(slog.LevelDebug)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "scheduler", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize scheduler file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "scheduler")
		closeLogger = func() error { return nil }
	}
}

const (
	defaultSyncInterval  = 30 * time.Second
	defaultSweepInterval = time.Hour
	retentionInterval    = 24 * time.Hour
	defaultWarmupDelay   = 15 * time.Second
)

// SyncRunner runs one channel sync cycle. Satisfied by *telemetry.Engine.
type SyncRunner interface {
	SyncAllChannels(ctx context.Context) (*telemetry.SyncSummary, error)
}

// SweepRunner runs prediction sweeps and retention cleanup. Satisfied by
// *prediction.Engine.
type SweepRunner interface {
	RunSweep(ctx context.Context) (*prediction.SweepSummary, error)
	CleanupOld(retentionDays int) (int64, error)
}

// Scheduler owns the periodic job loops. All state is instance-owned so
// tests can run schedulers side by side.
type Scheduler struct {
	settings *conf.Settings
	sync     SyncRunner
	sweep    SweepRunner

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a scheduler over the given engines.
func New(settings *conf.Settings, syncRunner SyncRunner, sweepRunner SweepRunner) *Scheduler {
	return &Scheduler{
		settings: settings,
		sync:     syncRunner,
		sweep:    sweepRunner,
	}
}

// Start launches the job loops. The first run of each loop waits out the
// warm-up delay so a restarting process does not hammer the relay. The loops
// own their run context and stop only via Stop, so a short-lived caller such
// as an HTTP handler cannot tear them down. Starting a running scheduler is
// an error.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.Newf("scheduler already running").
			Component("scheduler").
			Category(errors.CategoryState).
			Build()
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true

	warmup := s.warmupDelay()

	s.wg.Add(3)
	go s.loop(runCtx, "sync", warmup, s.syncInterval(), s.runSync)
	go s.loop(runCtx, "prediction_sweep", warmup, s.sweepInterval(), s.runSweep)
	go s.loop(runCtx, "retention", warmup, retentionInterval, s.runRetention)

	logger.Info("Scheduler started",
		"warmup", warmup.String(),
		"sync_interval", s.syncInterval().String(),
		"sweep_interval", s.sweepInterval().String())

	return nil
}

// Stop cancels the loops and waits for in-flight runs to finish. Safe to
// call on a stopped scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	logger.Info("Scheduler stopped")
}

// Running reports whether the loops are active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// TriggerSync runs one sync cycle immediately, outside the loop cadence.
func (s *Scheduler) TriggerSync(ctx context.Context) (*telemetry.SyncSummary, error) {
	return s.sync.SyncAllChannels(ctx)
}

// TriggerSweep runs one prediction sweep immediately.
func (s *Scheduler) TriggerSweep(ctx context.Context) (*prediction.SweepSummary, error) {
	return s.sweep.RunSweep(ctx)
}

// loop waits out the initial delay, then runs the job on every tick until
// the context is cancelled. The timer is re-armed only after the run
// returns, so runs of the same job never overlap; a long run delays the
// next tick instead.
func (s *Scheduler) loop(ctx context.Context, name string, initial, interval time.Duration, run func(context.Context)) {
	defer s.wg.Done()

	timer := time.NewTimer(initial)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("Job loop stopped", "job", name)
			return
		case <-timer.C:
			run(ctx)
			timer.Reset(interval)
		}
	}
}

func (s *Scheduler) runSync(ctx context.Context) {
	summary, err := s.sync.SyncAllChannels(ctx)
	if err != nil {
		logger.Error("Scheduled sync cycle failed", "error", err)
		return
	}
	logger.Debug("Scheduled sync cycle finished",
		"synced", summary.Synced,
		"skipped", summary.Skipped,
		"errored", summary.Errored)
}

func (s *Scheduler) runSweep(ctx context.Context) {
	summary, err := s.sweep.RunSweep(ctx)
	if err != nil {
		logger.Error("Scheduled prediction sweep failed", "error", err)
		return
	}
	logger.Debug("Scheduled prediction sweep finished",
		"succeeded", summary.Succeeded,
		"skipped", summary.Skipped,
		"errored", summary.Errored)
}

func (s *Scheduler) runRetention(_ context.Context) {
	deleted, err := s.sweep.CleanupOld(s.settings.MLService.RetentionDays)
	if err != nil {
		logger.Error("Scheduled retention cleanup failed", "error", err)
		return
	}
	logger.Debug("Scheduled retention cleanup finished", "deleted", deleted)
}

func (s *Scheduler) syncInterval() time.Duration {
	if s.settings.ThingSpeak.SyncInterval > 0 {
		return time.Duration(s.settings.ThingSpeak.SyncInterval) * time.Second
	}
	return defaultSyncInterval
}

func (s *Scheduler) sweepInterval() time.Duration {
	if s.settings.MLService.SweepInterval > 0 {
		return time.Duration(s.settings.MLService.SweepInterval) * time.Minute
	}
	return defaultSweepInterval
}

func (s *Scheduler) warmupDelay() time.Duration {
	if s.settings.MLService.WarmupDelay > 0 {
		return time.Duration(s.settings.MLService.WarmupDelay) * time.Second
	}
	return defaultWarmupDelay
}

// Close releases scheduler resources.
func (s *Scheduler) Close() {
	s.Stop()
	if closeLogger != nil {
		if err := closeLogger(); err != nil {
			log.Printf("Error closing scheduler logger: %v", err)
		}
	}
}
