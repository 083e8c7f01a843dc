package telemetry

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/botaniai/botaniai-go/internal/conf"
	"github.com/botaniai/botaniai-go/internal/datastore"
	"github.com/botaniai/botaniai-go/internal/datastore/mocks"
	"github.com/botaniai/botaniai-go/internal/errors"
	"github.com/botaniai/botaniai-go/internal/thingspeak"
)

// fakeFetcher is a canned Fetcher for sync tests.
type fakeFetcher struct {
	mu     sync.Mutex
	sample *thingspeak.Sample
	err    error
	calls  int
}

func (f *fakeFetcher) GetLatest(_ context.Context, _, _ string) (*thingspeak.Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.sample, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func syncSettings() *conf.Settings {
	settings := &conf.Settings{}
	settings.ThingSpeak.Timeout = 10
	settings.ThingSpeak.CooldownWindow = 10
	settings.ThingSpeak.MaxConcurrent = 2
	return settings
}

func testDevice() datastore.Device {
	return datastore.Device{
		ID:                  "device-1",
		OwnerID:             "owner-1",
		Status:              datastore.StatusActive,
		ThingSpeakChannelID: "12345",
		ThingSpeakWriteKey:  "WRITEKEY1234",
	}
}

func testSample(entryID int64) *thingspeak.Sample {
	return &thingspeak.Sample{
		Temperature:    22.5,
		Humidity:       55,
		SoilMoisture:   1600,
		LightIntensity: 320,
		Timestamp:      time.Now().Add(-time.Minute),
		EntryID:        entryID,
		ChannelID:      12345,
	}
}

func TestSyncAllChannelsStoresNewSample(t *testing.T) {
	t.Parallel()

	device := testDevice()
	assignment := &datastore.DeviceAssignment{
		ID:       "assign-1",
		DeviceID: device.ID,
		PlantID:  "plant-1",
		OwnerID:  device.OwnerID,
		Status:   datastore.StatusActive,
	}

	store := &mocks.StoreMock{}
	store.On("DevicesForSync").Return([]datastore.Device{device}, nil)
	store.On("ReadingByChannelEntry", "12345", int64(100)).Return(nil, nil)
	store.On("ActiveAssignmentForDevice", device.ID).Return(assignment, nil)
	store.On("SaveReading", mock.AnythingOfType("*datastore.SensorReading")).
		Run(func(args mock.Arguments) {
			args.Get(0).(*datastore.SensorReading).ID = 9
		}).
		Return(nil)
	store.On("UpdateDeviceLastSync", device.ID, mock.AnythingOfType("time.Time")).Return(nil)

	engine := NewEngine(syncSettings(), store, &fakeFetcher{sample: testSample(100)})
	summary, err := engine.SyncAllChannels(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Devices)
	assert.Equal(t, 1, summary.Synced)
	assert.Zero(t, summary.Skipped)
	assert.Zero(t, summary.Errored)

	require.Len(t, summary.Results, 1)
	result := summary.Results[0]
	assert.Equal(t, StatusSynced, result.Status)
	assert.Equal(t, uint(9), result.ReadingID)
	assert.Equal(t, int64(100), result.EntryID)
	assert.False(t, result.Repaired)

	store.AssertCalled(t, "SaveReading", mock.MatchedBy(func(r *datastore.SensorReading) bool {
		return r.AssignmentID == "assign-1" &&
			r.PlantID == "plant-1" &&
			r.Source == datastore.SourceThingSpeak &&
			r.ChannelID == "12345" &&
			r.EntryID != nil && *r.EntryID == 100 &&
			r.SyncedAt != nil
	}))
}

func TestSyncSkipsBlankCredentials(t *testing.T) {
	t.Parallel()

	device := testDevice()
	device.ThingSpeakWriteKey = "   "

	store := &mocks.StoreMock{}
	store.On("DevicesForSync").Return([]datastore.Device{device}, nil)

	fetcher := &fakeFetcher{sample: testSample(1)}
	engine := NewEngine(syncSettings(), store, fetcher)
	summary, err := engine.SyncAllChannels(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, ReasonMissingCredentials, summary.Results[0].Reason)
	assert.Zero(t, fetcher.callCount())
}

func TestSyncCooldownSuppressesRepeatFetch(t *testing.T) {
	t.Parallel()

	device := testDevice()

	store := &mocks.StoreMock{}
	store.On("DevicesForSync").Return([]datastore.Device{device}, nil)
	store.On("ReadingByChannelEntry", "12345", int64(100)).Return(nil, nil)
	store.On("ActiveAssignmentForDevice", device.ID).
		Return(&datastore.DeviceAssignment{ID: "assign-1", PlantID: "plant-1"}, nil)
	store.On("SaveReading", mock.AnythingOfType("*datastore.SensorReading")).Return(nil)
	store.On("UpdateDeviceLastSync", device.ID, mock.AnythingOfType("time.Time")).Return(nil)

	fetcher := &fakeFetcher{sample: testSample(100)}
	engine := NewEngine(syncSettings(), store, fetcher)

	first, err := engine.SyncAllChannels(context.Background())
	require.NoError(t, err)
	second, err := engine.SyncAllChannels(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, first.Synced)
	assert.Equal(t, 1, second.Skipped)
	assert.Equal(t, ReasonCooldown, second.Results[0].Reason)
	assert.Equal(t, 1, fetcher.callCount())
}

func TestSyncFetchErrorDoesNotArmCooldown(t *testing.T) {
	t.Parallel()

	device := testDevice()

	store := &mocks.StoreMock{}
	store.On("DevicesForSync").Return([]datastore.Device{device}, nil)

	fetcher := &fakeFetcher{err: errors.NewStd("connection reset")}
	engine := NewEngine(syncSettings(), store, fetcher)

	first, err := engine.SyncAllChannels(context.Background())
	require.NoError(t, err)
	second, err := engine.SyncAllChannels(context.Background())
	require.NoError(t, err)

	// a failed cycle leaves the cursor alone, so the next cycle retries
	assert.Equal(t, 1, first.Errored)
	assert.Equal(t, 1, second.Errored)
	assert.Equal(t, ReasonTransport, second.Results[0].Reason)
	assert.Equal(t, 2, fetcher.callCount())
}

func TestSyncDedupByEntryID(t *testing.T) {
	t.Parallel()

	device := testDevice()

	store := &mocks.StoreMock{}
	store.On("DevicesForSync").Return([]datastore.Device{device}, nil)
	store.On("ActiveAssignmentForDevice", device.ID).
		Return(&datastore.DeviceAssignment{ID: "assign-1", PlantID: "plant-1"}, nil)
	store.On("ReadingByChannelEntry", "12345", int64(100)).
		Return(&datastore.SensorReading{ID: 3}, nil)

	engine := NewEngine(syncSettings(), store, &fakeFetcher{sample: testSample(100)})
	summary, err := engine.SyncAllChannels(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, ReasonDuplicate, summary.Results[0].Reason)
	assert.Equal(t, uint(3), summary.Results[0].ReadingID)
	store.AssertNotCalled(t, "SaveReading", mock.Anything)
}

func TestSyncDedupByTimestampWhenEntryIDMissing(t *testing.T) {
	t.Parallel()

	device := testDevice()
	sample := testSample(0)

	store := &mocks.StoreMock{}
	store.On("DevicesForSync").Return([]datastore.Device{device}, nil)
	store.On("ActiveAssignmentForDevice", device.ID).
		Return(&datastore.DeviceAssignment{ID: "assign-1", PlantID: "plant-1"}, nil)
	store.On("ReadingNearTimestamp", "12345", sample.Timestamp, dedupWindow).
		Return(&datastore.SensorReading{ID: 5}, nil)

	engine := NewEngine(syncSettings(), store, &fakeFetcher{sample: sample})
	summary, err := engine.SyncAllChannels(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, ReasonDuplicate, summary.Results[0].Reason)
	store.AssertNotCalled(t, "ReadingByChannelEntry", mock.Anything, mock.Anything)
}

func TestSyncRepairsMissingAssignment(t *testing.T) {
	t.Parallel()

	device := testDevice()

	store := &mocks.StoreMock{}
	store.On("DevicesForSync").Return([]datastore.Device{device}, nil)
	store.On("ReadingByChannelEntry", "12345", int64(100)).Return(nil, nil)
	store.On("ActiveAssignmentForDevice", device.ID).Return(nil, nil)
	store.On("FirstPlantForOwner", device.OwnerID).
		Return(&datastore.Plant{ID: "plant-1", OwnerID: device.OwnerID}, nil)
	store.On("SaveAssignment", mock.AnythingOfType("*datastore.DeviceAssignment")).Return(nil)
	store.On("SaveReading", mock.AnythingOfType("*datastore.SensorReading")).Return(nil)
	store.On("UpdateDeviceLastSync", device.ID, mock.AnythingOfType("time.Time")).Return(nil)

	engine := NewEngine(syncSettings(), store, &fakeFetcher{sample: testSample(100)})
	summary, err := engine.SyncAllChannels(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Synced)
	assert.True(t, summary.Results[0].Repaired)

	store.AssertCalled(t, "SaveAssignment", mock.MatchedBy(func(a *datastore.DeviceAssignment) bool {
		return strings.HasPrefix(a.ID, "temp_device-1_") &&
			a.PlantID == "plant-1" &&
			a.Status == datastore.StatusActive
	}))
	store.AssertCalled(t, "SaveReading", mock.MatchedBy(func(r *datastore.SensorReading) bool {
		return strings.HasPrefix(r.AssignmentID, "temp_device-1_") && r.PlantID == "plant-1"
	}))
}

func TestSyncRepairsAssignmentForDuplicateSample(t *testing.T) {
	t.Parallel()

	device := testDevice()

	store := &mocks.StoreMock{}
	store.On("DevicesForSync").Return([]datastore.Device{device}, nil)
	store.On("ActiveAssignmentForDevice", device.ID).Return(nil, nil)
	store.On("FirstPlantForOwner", device.OwnerID).
		Return(&datastore.Plant{ID: "plant-1", OwnerID: device.OwnerID}, nil)
	store.On("SaveAssignment", mock.AnythingOfType("*datastore.DeviceAssignment")).Return(nil)
	store.On("ReadingByChannelEntry", "12345", int64(100)).
		Return(&datastore.SensorReading{ID: 3}, nil)

	engine := NewEngine(syncSettings(), store, &fakeFetcher{sample: testSample(100)})
	summary, err := engine.SyncAllChannels(context.Background())
	require.NoError(t, err)

	// linkage is repaired even though the sample itself is already stored
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, ReasonDuplicate, summary.Results[0].Reason)
	assert.True(t, summary.Results[0].Repaired)

	store.AssertCalled(t, "SaveAssignment", mock.MatchedBy(func(a *datastore.DeviceAssignment) bool {
		return strings.HasPrefix(a.ID, "temp_device-1_") && a.PlantID == "plant-1"
	}))
	store.AssertNotCalled(t, "SaveReading", mock.Anything)
}

func TestSyncStoresOrphanWhenOwnerHasNoPlants(t *testing.T) {
	t.Parallel()

	device := testDevice()

	store := &mocks.StoreMock{}
	store.On("DevicesForSync").Return([]datastore.Device{device}, nil)
	store.On("ReadingByChannelEntry", "12345", int64(100)).Return(nil, nil)
	store.On("ActiveAssignmentForDevice", device.ID).Return(nil, nil)
	store.On("FirstPlantForOwner", device.OwnerID).Return(nil, nil)
	store.On("SaveReading", mock.AnythingOfType("*datastore.SensorReading")).Return(nil)
	store.On("UpdateDeviceLastSync", device.ID, mock.AnythingOfType("time.Time")).Return(nil)

	engine := NewEngine(syncSettings(), store, &fakeFetcher{sample: testSample(100)})
	summary, err := engine.SyncAllChannels(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Synced)
	assert.True(t, summary.Results[0].Orphaned)
	store.AssertNotCalled(t, "SaveAssignment", mock.Anything)
	store.AssertCalled(t, "SaveReading", mock.MatchedBy(func(r *datastore.SensorReading) bool {
		return r.AssignmentID == "" && r.PlantID == ""
	}))
}

func TestSyncClassifiesFetchErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		reason string
	}{
		{"bad key", thingspeak.ErrInvalidCredentials, ReasonInvalidCredentials},
		{"missing channel", thingspeak.ErrChannelNotFound, ReasonChannelNotFound},
		{"throttled", thingspeak.ErrRateLimited, ReasonRateLimited},
		{"transport", errors.NewStd("connection reset"), ReasonTransport},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := &mocks.StoreMock{}
			store.On("DevicesForSync").Return([]datastore.Device{testDevice()}, nil)

			engine := NewEngine(syncSettings(), store, &fakeFetcher{err: tt.err})
			summary, err := engine.SyncAllChannels(context.Background())
			require.NoError(t, err)

			assert.Equal(t, 1, summary.Errored)
			assert.Equal(t, tt.reason, summary.Results[0].Reason)
			store.AssertNotCalled(t, "SaveReading", mock.Anything)
		})
	}
}

func TestSyncChannel(t *testing.T) {
	t.Parallel()

	device := testDevice()

	store := &mocks.StoreMock{}
	store.On("DevicesForSync").Return([]datastore.Device{device}, nil)
	store.On("ReadingByChannelEntry", "12345", int64(100)).Return(nil, nil)
	store.On("ActiveAssignmentForDevice", device.ID).
		Return(&datastore.DeviceAssignment{ID: "assign-1", PlantID: "plant-1"}, nil)
	store.On("SaveReading", mock.AnythingOfType("*datastore.SensorReading")).Return(nil)
	store.On("UpdateDeviceLastSync", device.ID, mock.AnythingOfType("time.Time")).Return(nil)

	engine := NewEngine(syncSettings(), store, &fakeFetcher{sample: testSample(100)})

	result, err := engine.SyncChannel(context.Background(), "12345")
	require.NoError(t, err)
	assert.Equal(t, StatusSynced, result.Status)

	_, err = engine.SyncChannel(context.Background(), "99999")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	_, err = engine.SyncChannel(context.Background(), "  ")
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestStatusMasksKeys(t *testing.T) {
	t.Parallel()

	device := testDevice()

	store := &mocks.StoreMock{}
	store.On("DevicesForSync").Return([]datastore.Device{device}, nil)
	store.On("ReadingByChannelEntry", "12345", int64(100)).Return(nil, nil)
	store.On("ActiveAssignmentForDevice", device.ID).
		Return(&datastore.DeviceAssignment{ID: "assign-1", PlantID: "plant-1"}, nil)
	store.On("SaveReading", mock.AnythingOfType("*datastore.SensorReading")).Return(nil)
	store.On("UpdateDeviceLastSync", device.ID, mock.AnythingOfType("time.Time")).Return(nil)

	engine := NewEngine(syncSettings(), store, &fakeFetcher{sample: testSample(100)})
	_, err := engine.SyncAllChannels(context.Background())
	require.NoError(t, err)

	statuses := engine.Status()
	require.Len(t, statuses, 1)
	assert.Equal(t, "device-1", statuses[0].DeviceID)
	assert.Equal(t, StatusSynced, statuses[0].LastStatus)
	assert.NotNil(t, statuses[0].LastSyncAt)
	assert.NotContains(t, statuses[0].MaskedKey, "WRITEKEY")
	assert.Contains(t, statuses[0].MaskedKey, "1234")
}
