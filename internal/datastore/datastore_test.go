package datastore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/botaniai/botaniai-go/internal/errors"
)

// newTestStore opens a throwaway SQLite database with migrations applied.
func newTestStore(t *testing.T) *DataStore {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: createGormLogger(false),
	})
	require.NoError(t, err)
	require.NoError(t, performAutoMigration(db, false, "SQLite", dbPath))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	return &DataStore{DB: db}
}

func seedDevice(t *testing.T, ds *DataStore, id, channel, key, status string) Device {
	t.Helper()
	device := Device{
		ID:                  id,
		OwnerID:             "owner-1",
		Name:                "probe " + id,
		Status:              status,
		ThingSpeakChannelID: channel,
		ThingSpeakWriteKey:  key,
	}
	require.NoError(t, ds.SaveDevice(&device))
	return device
}

func TestDeviceRoundTrip(t *testing.T) {
	t.Parallel()
	ds := newTestStore(t)

	seedDevice(t, ds, "device-1", "12345", "KEY", StatusActive)

	device, err := ds.GetDevice("device-1")
	require.NoError(t, err)
	assert.Equal(t, "12345", device.ThingSpeakChannelID)

	_, err = ds.GetDevice("missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestDevicesForSyncFiltering(t *testing.T) {
	t.Parallel()
	ds := newTestStore(t)

	seedDevice(t, ds, "eligible", "12345", "KEY", StatusActive)
	seedDevice(t, ds, "inactive", "22222", "KEY", StatusInactive)
	seedDevice(t, ds, "no-channel", "", "KEY", StatusActive)
	seedDevice(t, ds, "no-key", "33333", "", StatusActive)

	devices, err := ds.DevicesForSync()
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "eligible", devices[0].ID)
}

func TestUpdateDeviceLastSync(t *testing.T) {
	t.Parallel()
	ds := newTestStore(t)

	seedDevice(t, ds, "device-1", "12345", "KEY", StatusActive)

	syncedAt := time.Now().Truncate(time.Second)
	require.NoError(t, ds.UpdateDeviceLastSync("device-1", syncedAt))

	device, err := ds.GetDevice("device-1")
	require.NoError(t, err)
	require.NotNil(t, device.LastSyncAt)
	assert.WithinDuration(t, syncedAt, *device.LastSyncAt, time.Second)
}

func TestActiveAssignmentForDevice(t *testing.T) {
	t.Parallel()
	ds := newTestStore(t)

	now := time.Now()
	older := DeviceAssignment{
		ID: "assign-old", DeviceID: "device-1", PlantID: "plant-1",
		OwnerID: "owner-1", Status: StatusActive, StartedAt: now.Add(-48 * time.Hour),
	}
	newer := DeviceAssignment{
		ID: "assign-new", DeviceID: "device-1", PlantID: "plant-2",
		OwnerID: "owner-1", Status: StatusActive, StartedAt: now.Add(-time.Hour),
	}
	inactive := DeviceAssignment{
		ID: "assign-off", DeviceID: "device-1", PlantID: "plant-3",
		OwnerID: "owner-1", Status: StatusInactive, StartedAt: now,
	}
	for _, a := range []DeviceAssignment{older, newer, inactive} {
		assignment := a
		require.NoError(t, ds.SaveAssignment(&assignment))
	}

	assignment, err := ds.ActiveAssignmentForDevice("device-1")
	require.NoError(t, err)
	require.NotNil(t, assignment)
	assert.Equal(t, "assign-new", assignment.ID)

	none, err := ds.ActiveAssignmentForDevice("device-2")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestFirstPlantForOwner(t *testing.T) {
	t.Parallel()
	ds := newTestStore(t)

	require.NoError(t, ds.DB.Create(&Plant{ID: "plant-b", OwnerID: "owner-1", Species: "fern"}).Error)
	require.NoError(t, ds.DB.Create(&Plant{ID: "plant-a", OwnerID: "owner-1", Species: "monstera"}).Error)

	plant, err := ds.FirstPlantForOwner("owner-1")
	require.NoError(t, err)
	require.NotNil(t, plant)
	assert.Equal(t, "plant-a", plant.ID)

	none, err := ds.FirstPlantForOwner("owner-2")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestReadingDedupLookups(t *testing.T) {
	t.Parallel()
	ds := newTestStore(t)

	takenAt := time.Now().Add(-time.Hour).Truncate(time.Second)
	entryID := int64(100)
	reading := SensorReading{
		DeviceID:  "device-1",
		ChannelID: "12345",
		EntryID:   &entryID,
		TakenAt:   takenAt,
		Source:    SourceThingSpeak,
	}
	require.NoError(t, ds.SaveReading(&reading))

	byEntry, err := ds.ReadingByChannelEntry("12345", 100)
	require.NoError(t, err)
	require.NotNil(t, byEntry)
	assert.Equal(t, reading.ID, byEntry.ID)

	miss, err := ds.ReadingByChannelEntry("12345", 101)
	require.NoError(t, err)
	assert.Nil(t, miss)

	near, err := ds.ReadingNearTimestamp("12345", takenAt.Add(2*time.Minute), 5*time.Minute)
	require.NoError(t, err)
	require.NotNil(t, near)
	assert.Equal(t, reading.ID, near.ID)

	far, err := ds.ReadingNearTimestamp("12345", takenAt.Add(10*time.Minute), 5*time.Minute)
	require.NoError(t, err)
	assert.Nil(t, far)
}

func TestReadingsForAssignmentWindowAndLimit(t *testing.T) {
	t.Parallel()
	ds := newTestStore(t)

	now := time.Now().Truncate(time.Second)
	for i := 0; i < 15; i++ {
		reading := SensorReading{
			DeviceID:     "device-1",
			AssignmentID: "assign-1",
			TakenAt:      now.Add(-time.Duration(i) * time.Hour),
			Source:       SourceThingSpeak,
		}
		require.NoError(t, ds.SaveReading(&reading))
	}

	readings, err := ds.ReadingsForAssignment("assign-1", now.Add(-24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, readings, 10)
	// newest first
	assert.True(t, readings[0].TakenAt.After(readings[9].TakenAt))

	count, err := ds.CountReadingsSince("assign-1", now.Add(-2*time.Hour).Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestPredictionQueries(t *testing.T) {
	t.Parallel()
	ds := newTestStore(t)

	now := time.Now().Truncate(time.Second)
	rows := []Prediction{
		{AssignmentID: "assign-1", PlantID: "plant-1", Class: 4, Source: PredictionSourceMLService, CreatedAt: now.Add(-30 * time.Minute)},
		{AssignmentID: "assign-1", PlantID: "plant-1", Class: 2, Source: PredictionSourceFallback, CreatedAt: now.Add(-26 * time.Hour)},
		{AssignmentID: "assign-2", PlantID: "plant-2", Class: 4, Source: PredictionSourceScheduled, CreatedAt: now.Add(-5 * 24 * time.Hour)},
	}
	for i := range rows {
		require.NoError(t, ds.SavePrediction(&rows[i]))
	}

	latest, err := ds.LatestPredictionForPlant("plant-1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 4, latest.Class)

	recent, err := ds.PredictionForAssignmentSince("assign-1", now.Add(-2*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, recent)

	stale, err := ds.PredictionForAssignmentSince("assign-2", now.Add(-2*time.Hour))
	require.NoError(t, err)
	assert.Nil(t, stale)

	history, err := ds.PredictionsForPlant("plant-1", 10)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	total, err := ds.CountPredictions()
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	last24h, err := ds.CountPredictionsSince(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), last24h)

	byClass, err := ds.CountPredictionsByClass()
	require.NoError(t, err)
	assert.Equal(t, int64(2), byClass[4])
	assert.Equal(t, int64(1), byClass[2])

	bySource, err := ds.CountPredictionsBySource()
	require.NoError(t, err)
	assert.Equal(t, int64(1), bySource[PredictionSourceFallback])

	deleted, err := ds.DeletePredictionsBefore(now.Add(-3 * 24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	total, err = ds.CountPredictions()
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestGetPredictionNotFound(t *testing.T) {
	t.Parallel()
	ds := newTestStore(t)

	_, err := ds.GetPrediction(999)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}
