// Package telemetry implements the ThingSpeak channel synchronization engine:
// pulling the latest buffered sample for every active device, deduplicating
// against stored readings and persisting normalized rows.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	cache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"

	"github.com/botaniai/botaniai-go/internal/conf"
	"github.com/botaniai/botaniai-go/internal/datastore"
	"github.com/botaniai/botaniai-go/internal/errors"
	"github.com/botaniai/botaniai-go/internal/logging"
	"github.com/botaniai/botaniai-go/internal/thingspeak"
)

// Package-level logger specific to the telemetry service
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "telemetry.log")
	serviceLevelVar.Set(slog.LevelDebug)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "telemetry", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize telemetry file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "telemetry")
		closeLogger = func() error { return nil }
	}
}

const (
	// dedupWindow is the timestamp tolerance used when the relay does not
	// report an entry id.
	dedupWindow = 5 * time.Minute
	// defaultMaxConcurrent bounds in-flight channel fetches per cycle.
	defaultMaxConcurrent = 5
)

// Sync result statuses.
const (
	StatusSynced  = "synced"
	StatusSkipped = "skipped"
	StatusError   = "error"
)

// Skip and error reasons surfaced in results and logs.
const (
	ReasonMissingCredentials = "missing credentials"
	ReasonCooldown           = "cooldown active"
	ReasonDuplicate          = "duplicate sample"
	ReasonInvalidCredentials = "invalid credentials"
	ReasonChannelNotFound    = "channel not found"
	ReasonRateLimited        = "rate limited"
	ReasonTransport          = "fetch failed"
)

// Fetcher pulls the latest sample for a channel. Satisfied by
// *thingspeak.Client.
type Fetcher interface {
	GetLatest(ctx context.Context, channelID, apiKey string) (*thingspeak.Sample, error)
}

// ChannelResult reports the outcome of one device's sync attempt.
type ChannelResult struct {
	DeviceID  string `json:"device_id"`
	ChannelID string `json:"channel_id"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
	EntryID   int64  `json:"entry_id,omitempty"`
	ReadingID uint   `json:"reading_id,omitempty"`
	Repaired  bool   `json:"repaired,omitempty"`
	Orphaned  bool   `json:"orphaned,omitempty"`
	Err       error  `json:"-"`
}

// SyncSummary aggregates one sync cycle.
type SyncSummary struct {
	Devices  int             `json:"devices"`
	Synced   int             `json:"synced"`
	Skipped  int             `json:"skipped"`
	Errored  int             `json:"errored"`
	Duration string          `json:"duration"`
	Results  []ChannelResult `json:"results"`
}

// ChannelStatus is the per-channel view exposed by Status.
type ChannelStatus struct {
	DeviceID   string     `json:"device_id"`
	ChannelID  string     `json:"channel_id"`
	MaskedKey  string     `json:"masked_key"`
	LastStatus string     `json:"last_status"`
	LastReason string     `json:"last_reason,omitempty"`
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
}

// Engine pulls channel telemetry into the datastore.
type Engine struct {
	ds       datastore.Interface
	fetcher  Fetcher
	settings *conf.Settings

	// cooldown suppresses repeat fetches of a (channel, key) pair after a
	// successful sync.
	cooldown *cache.Cache

	statusMu sync.RWMutex
	channels map[string]*ChannelStatus
}

// NewEngine creates a sync engine. The cooldown window comes from settings
// and defaults to ten seconds.
func NewEngine(settings *conf.Settings, ds datastore.Interface, fetcher Fetcher) *Engine {
	window := time.Duration(settings.ThingSpeak.CooldownWindow) * time.Second
	if window <= 0 {
		window = 10 * time.Second
	}
	return &Engine{
		ds:       ds,
		fetcher:  fetcher,
		settings: settings,
		cooldown: cache.New(window, 2*window),
		channels: make(map[string]*ChannelStatus),
	}
}

// SyncAllChannels runs one sync cycle over every device eligible for sync.
// Per-device failures are contained and reported in the summary; only a
// failure to list devices returns an error.
func (e *Engine) SyncAllChannels(ctx context.Context) (*SyncSummary, error) {
	started := time.Now()

	devices, err := e.ds.DevicesForSync()
	if err != nil {
		return nil, err
	}

	limit := int(e.settings.ThingSpeak.MaxConcurrent)
	if limit <= 0 {
		limit = defaultMaxConcurrent
	}

	var mu sync.Mutex
	results := make([]ChannelResult, 0, len(devices))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range devices {
		device := devices[i]
		g.Go(func() error {
			result := e.syncDevice(gctx, &device)
			mu.Lock()
			results = append(results, *result)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	summary := &SyncSummary{
		Devices:  len(devices),
		Duration: time.Since(started).Round(time.Millisecond).String(),
		Results:  results,
	}
	for i := range results {
		switch results[i].Status {
		case StatusSynced:
			summary.Synced++
		case StatusSkipped:
			summary.Skipped++
		default:
			summary.Errored++
		}
	}

	logger.Info("Sync cycle finished",
		"devices", summary.Devices,
		"synced", summary.Synced,
		"skipped", summary.Skipped,
		"errored", summary.Errored,
		"duration", summary.Duration)

	return summary, nil
}

// SyncChannel syncs the single device bound to the given channel. The
// cooldown window applies to manual runs as well.
func (e *Engine) SyncChannel(ctx context.Context, channelID string) (*ChannelResult, error) {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return nil, errors.Newf("channel id is required").
			Component("telemetry").
			Category(errors.CategoryValidation).
			Build()
	}

	devices, err := e.ds.DevicesForSync()
	if err != nil {
		return nil, err
	}
	for i := range devices {
		if strings.TrimSpace(devices[i].ThingSpeakChannelID) == channelID {
			return e.syncDevice(ctx, &devices[i]), nil
		}
	}
	return nil, errors.NotFoundError("channel", channelID)
}

// syncDevice runs the full pipeline for one device: cooldown, fetch,
// assignment resolution, dedup and persistence.
func (e *Engine) syncDevice(ctx context.Context, device *datastore.Device) *ChannelResult {
	channel := strings.TrimSpace(device.ThingSpeakChannelID)
	key := strings.TrimSpace(device.ThingSpeakWriteKey)

	result := &ChannelResult{DeviceID: device.ID, ChannelID: channel}
	defer e.recordStatus(device, channel, key, result)

	if channel == "" || key == "" {
		result.Status = StatusSkipped
		result.Reason = ReasonMissingCredentials
		return result
	}

	cooldownKey := channel + "_" + key
	if _, onCooldown := e.cooldown.Get(cooldownKey); onCooldown {
		logger.Debug("Channel on cooldown", "channel_id", channel, "device_id", device.ID)
		result.Status = StatusSkipped
		result.Reason = ReasonCooldown
		return result
	}

	fetchCtx, cancel := context.WithTimeout(ctx, e.settings.ThingSpeakTimeout())
	defer cancel()

	sample, err := e.fetcher.GetLatest(fetchCtx, channel, key)
	if err != nil {
		result.Status = StatusError
		result.Reason = classifyFetchError(err)
		result.Err = err
		logger.Warn("Channel fetch failed",
			"channel_id", channel,
			"device_id", device.ID,
			"reason", result.Reason,
			"error", err)
		return result
	}
	result.EntryID = sample.EntryID

	// resolve linkage before dedup so a missing assignment is repaired even
	// when the sample itself is already stored
	assignment, repaired, err := e.resolveAssignment(device)
	if err != nil {
		result.Status = StatusError
		result.Reason = "assignment resolution failed"
		result.Err = err
		return result
	}
	result.Repaired = repaired

	duplicate, err := e.findDuplicate(channel, sample)
	if err != nil {
		result.Status = StatusError
		result.Reason = "dedup lookup failed"
		result.Err = err
		return result
	}
	if duplicate != nil {
		logger.Debug("Sample already stored",
			"channel_id", channel,
			"entry_id", sample.EntryID,
			"reading_id", duplicate.ID)
		result.Status = StatusSkipped
		result.Reason = ReasonDuplicate
		result.ReadingID = duplicate.ID
		return result
	}

	now := time.Now()
	reading := &datastore.SensorReading{
		DeviceID:       device.ID,
		OwnerID:        device.OwnerID,
		Temperature:    ptr(sample.Temperature),
		Humidity:       ptr(sample.Humidity),
		SoilMoisture:   ptr(sample.SoilMoisture),
		LightIntensity: ptr(sample.LightIntensity),
		TakenAt:        sample.Timestamp,
		Source:         datastore.SourceThingSpeak,
		ChannelID:      channel,
		SyncedAt:       &now,
	}
	if sample.EntryID > 0 {
		entryID := sample.EntryID
		reading.EntryID = &entryID
	}
	if assignment != nil {
		reading.AssignmentID = assignment.ID
		reading.PlantID = assignment.PlantID
	} else {
		result.Orphaned = true
	}

	if err := e.ds.SaveReading(reading); err != nil {
		result.Status = StatusError
		result.Reason = "persist failed"
		result.Err = err
		return result
	}
	result.Status = StatusSynced
	result.ReadingID = reading.ID

	// the cooldown cursor marks the last successful sync, so it is armed
	// only once the reading is persisted; failed cycles retry immediately
	e.cooldown.Set(cooldownKey, now, cache.DefaultExpiration)

	if err := e.ds.UpdateDeviceLastSync(device.ID, now); err != nil {
		logger.Warn("Failed to update device sync cursor",
			"device_id", device.ID,
			"error", err)
	}

	logger.Info("Channel synced",
		"channel_id", channel,
		"device_id", device.ID,
		"entry_id", sample.EntryID,
		"reading_id", reading.ID,
		"repaired", repaired,
		"orphaned", result.Orphaned)

	return result
}

// findDuplicate checks whether the sample is already stored, by relay entry
// id when present, otherwise by timestamp proximity.
func (e *Engine) findDuplicate(channel string, sample *thingspeak.Sample) (*datastore.SensorReading, error) {
	if sample.EntryID > 0 {
		return e.ds.ReadingByChannelEntry(channel, sample.EntryID)
	}
	return e.ds.ReadingNearTimestamp(channel, sample.Timestamp, dedupWindow)
}

// resolveAssignment returns the device's active assignment, synthesizing one
// when the device is unassigned but its owner has a plant. A nil assignment
// with nil error means the reading will be stored unassigned.
func (e *Engine) resolveAssignment(device *datastore.Device) (*datastore.DeviceAssignment, bool, error) {
	assignment, err := e.ds.ActiveAssignmentForDevice(device.ID)
	if err != nil {
		return nil, false, err
	}
	if assignment != nil {
		return assignment, false, nil
	}

	plant, err := e.ds.FirstPlantForOwner(device.OwnerID)
	if err != nil {
		return nil, false, err
	}
	if plant == nil {
		logger.Warn("Device has no assignment and owner has no plants",
			"device_id", device.ID,
			"owner_id", device.OwnerID)
		return nil, false, nil
	}

	now := time.Now()
	repairedAssignment := &datastore.DeviceAssignment{
		ID:        fmt.Sprintf("temp_%s_%s", device.ID, uuid.NewString()[:8]),
		DeviceID:  device.ID,
		PlantID:   plant.ID,
		OwnerID:   device.OwnerID,
		Status:    datastore.StatusActive,
		StartedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.ds.SaveAssignment(repairedAssignment); err != nil {
		return nil, false, err
	}

	logger.Info("Synthesized assignment for unassigned device",
		"device_id", device.ID,
		"plant_id", plant.ID,
		"assignment_id", repairedAssignment.ID)

	return repairedAssignment, true, nil
}

// recordStatus updates the per-channel status map after each attempt.
func (e *Engine) recordStatus(device *datastore.Device, channel, key string, result *ChannelResult) {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()

	status, ok := e.channels[device.ID]
	if !ok {
		status = &ChannelStatus{DeviceID: device.ID}
		e.channels[device.ID] = status
	}
	status.ChannelID = channel
	status.MaskedKey = thingspeak.MaskKey(key)
	status.LastStatus = result.Status
	status.LastReason = result.Reason
	if result.Status == StatusSynced {
		now := time.Now()
		status.LastSyncAt = &now
	}
}

// Status returns the per-channel sync state, ordered by device id.
func (e *Engine) Status() []ChannelStatus {
	e.statusMu.RLock()
	defer e.statusMu.RUnlock()

	statuses := make([]ChannelStatus, 0, len(e.channels))
	for _, status := range e.channels {
		statuses = append(statuses, *status)
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].DeviceID < statuses[j].DeviceID
	})
	return statuses
}

// classifyFetchError maps client errors onto stable reason strings.
func classifyFetchError(err error) string {
	switch {
	case errors.Is(err, thingspeak.ErrInvalidCredentials):
		return ReasonInvalidCredentials
	case errors.Is(err, thingspeak.ErrChannelNotFound):
		return ReasonChannelNotFound
	case errors.Is(err, thingspeak.ErrRateLimited):
		return ReasonRateLimited
	default:
		return ReasonTransport
	}
}

// Close releases engine resources.
func (e *Engine) Close() {
	if closeLogger != nil {
		if err := closeLogger(); err != nil {
			log.Printf("Error closing telemetry logger: %v", err)
		}
	}
}

func ptr(v float64) *float64 {
	return &v
}
