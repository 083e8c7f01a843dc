// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"fmt"
	"time"

	"github.com/botaniai/botaniai-go/internal/conf"
	"github.com/botaniai/botaniai-go/internal/errors"
	"gorm.io/gorm"
)

// Interface abstracts the underlying database implementation and defines the
// operations the sync and prediction pipelines depend on.
type Interface interface {
	Open() error
	Close() error

	// devices
	GetDevice(id string) (Device, error)
	SaveDevice(device *Device) error
	DevicesForSync() ([]Device, error)
	UpdateDeviceLastSync(id string, t time.Time) error

	// assignments
	GetAssignment(id string) (DeviceAssignment, error)
	SaveAssignment(assignment *DeviceAssignment) error
	ActiveAssignmentForDevice(deviceID string) (*DeviceAssignment, error)
	ActiveAssignments() ([]DeviceAssignment, error)

	// plants
	GetPlant(id string) (Plant, error)
	FirstPlantForOwner(ownerID string) (*Plant, error)

	// sensor readings
	SaveReading(reading *SensorReading) error
	ReadingByChannelEntry(channelID string, entryID int64) (*SensorReading, error)
	ReadingNearTimestamp(channelID string, ts time.Time, window time.Duration) (*SensorReading, error)
	ReadingsForAssignment(assignmentID string, since time.Time, limit int) ([]SensorReading, error)
	CountReadingsSince(assignmentID string, since time.Time) (int64, error)

	// predictions
	SavePrediction(prediction *Prediction) error
	GetPrediction(id uint) (Prediction, error)
	LatestPredictionForPlant(plantID string) (*Prediction, error)
	PredictionForAssignmentSince(assignmentID string, since time.Time) (*Prediction, error)
	PredictionsForPlant(plantID string, limit int) ([]Prediction, error)
	CountPredictions() (int64, error)
	CountPredictionsSince(since time.Time) (int64, error)
	CountPredictionsByClass() (map[int]int64, error)
	CountPredictionsBySource() (map[string]int64, error)
	DeletePredictionsBefore(cutoff time.Time) (int64, error)
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB // GORM database instance
}

// New creates a new datastore instance based on the provided configuration.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{Settings: settings}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{Settings: settings}
	default:
		return nil
	}
}

// GetDevice retrieves a device by its ID.
func (ds *DataStore) GetDevice(id string) (Device, error) {
	var device Device
	if err := ds.DB.First(&device, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Device{}, errors.NotFoundError("device", id)
		}
		return Device{}, dbError(err, "get_device", "id", id)
	}
	return device, nil
}

// SaveDevice inserts or updates a device record.
func (ds *DataStore) SaveDevice(device *Device) error {
	if err := ds.DB.Save(device).Error; err != nil {
		return dbError(err, "save_device", "device_id", device.ID)
	}
	return nil
}

// DevicesForSync returns active devices that have ThingSpeak credentials set.
// Blank-after-trim credentials are filtered by the sync engine, not here.
func (ds *DataStore) DevicesForSync() ([]Device, error) {
	var devices []Device
	err := ds.DB.
		Where("status = ?", StatusActive).
		Where("thing_speak_channel_id <> ''").
		Where("thing_speak_write_key <> ''").
		Find(&devices).Error
	if err != nil {
		return nil, dbError(err, "devices_for_sync")
	}
	return devices, nil
}

// UpdateDeviceLastSync records the time of the last successful channel sync.
func (ds *DataStore) UpdateDeviceLastSync(id string, t time.Time) error {
	if err := ds.DB.Model(&Device{}).Where("id = ?", id).Update("last_sync_at", t).Error; err != nil {
		return dbError(err, "update_device_last_sync", "device_id", id)
	}
	return nil
}

// GetAssignment retrieves a device assignment by its ID.
func (ds *DataStore) GetAssignment(id string) (DeviceAssignment, error) {
	var assignment DeviceAssignment
	if err := ds.DB.First(&assignment, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return DeviceAssignment{}, errors.NotFoundError("assignment", id)
		}
		return DeviceAssignment{}, dbError(err, "get_assignment", "id", id)
	}
	return assignment, nil
}

// SaveAssignment inserts or updates an assignment record.
func (ds *DataStore) SaveAssignment(assignment *DeviceAssignment) error {
	if err := ds.DB.Save(assignment).Error; err != nil {
		return dbError(err, "save_assignment", "assignment_id", assignment.ID)
	}
	return nil
}

// ActiveAssignmentForDevice returns the newest active assignment for a device,
// or nil when the device is not assigned to any plant.
func (ds *DataStore) ActiveAssignmentForDevice(deviceID string) (*DeviceAssignment, error) {
	var assignment DeviceAssignment
	err := ds.DB.
		Where("device_id = ? AND status = ?", deviceID, StatusActive).
		Order("started_at DESC").
		First(&assignment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dbError(err, "active_assignment_for_device", "device_id", deviceID)
	}
	return &assignment, nil
}

// ActiveAssignments returns every assignment with active status.
func (ds *DataStore) ActiveAssignments() ([]DeviceAssignment, error) {
	var assignments []DeviceAssignment
	if err := ds.DB.Where("status = ?", StatusActive).Find(&assignments).Error; err != nil {
		return nil, dbError(err, "active_assignments")
	}
	return assignments, nil
}

// GetPlant retrieves a plant by its ID.
func (ds *DataStore) GetPlant(id string) (Plant, error) {
	var plant Plant
	if err := ds.DB.First(&plant, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Plant{}, errors.NotFoundError("plant", id)
		}
		return Plant{}, dbError(err, "get_plant", "id", id)
	}
	return plant, nil
}

// FirstPlantForOwner returns any plant owned by the given user, or nil when
// the owner has no plants. Used by the assignment repair path during sync.
func (ds *DataStore) FirstPlantForOwner(ownerID string) (*Plant, error) {
	var plant Plant
	err := ds.DB.Where("owner_id = ?", ownerID).Order("id").First(&plant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dbError(err, "first_plant_for_owner", "owner_id", ownerID)
	}
	return &plant, nil
}

// SaveReading inserts a new sensor reading.
func (ds *DataStore) SaveReading(reading *SensorReading) error {
	if err := ds.DB.Create(reading).Error; err != nil {
		return dbError(err, "save_reading", "device_id", reading.DeviceID)
	}
	return nil
}

// ReadingByChannelEntry returns the reading recorded for a specific relay
// entry on a channel, or nil when none exists. This is the primary dedup key.
func (ds *DataStore) ReadingByChannelEntry(channelID string, entryID int64) (*SensorReading, error) {
	var reading SensorReading
	err := ds.DB.
		Where("channel_id = ? AND entry_id = ?", channelID, entryID).
		First(&reading).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dbError(err, "reading_by_channel_entry", "channel_id", channelID)
	}
	return &reading, nil
}

// ReadingNearTimestamp returns a reading for the channel whose capture time
// falls within +/- window of ts, or nil when none exists. This is the
// fallback dedup key when the relay entry id is absent.
func (ds *DataStore) ReadingNearTimestamp(channelID string, ts time.Time, window time.Duration) (*SensorReading, error) {
	var reading SensorReading
	err := ds.DB.
		Where("channel_id = ? AND taken_at BETWEEN ? AND ?", channelID, ts.Add(-window), ts.Add(window)).
		First(&reading).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dbError(err, "reading_near_timestamp", "channel_id", channelID)
	}
	return &reading, nil
}

// ReadingsForAssignment returns readings captured after since, newest first,
// capped at limit.
func (ds *DataStore) ReadingsForAssignment(assignmentID string, since time.Time, limit int) ([]SensorReading, error) {
	var readings []SensorReading
	err := ds.DB.
		Where("assignment_id = ? AND taken_at >= ?", assignmentID, since).
		Order("taken_at DESC").
		Limit(limit).
		Find(&readings).Error
	if err != nil {
		return nil, dbError(err, "readings_for_assignment", "assignment_id", assignmentID)
	}
	return readings, nil
}

// CountReadingsSince counts readings captured after since for an assignment.
func (ds *DataStore) CountReadingsSince(assignmentID string, since time.Time) (int64, error) {
	var count int64
	err := ds.DB.Model(&SensorReading{}).
		Where("assignment_id = ? AND taken_at >= ?", assignmentID, since).
		Count(&count).Error
	if err != nil {
		return 0, dbError(err, "count_readings_since", "assignment_id", assignmentID)
	}
	return count, nil
}

// SavePrediction inserts a new prediction record.
func (ds *DataStore) SavePrediction(prediction *Prediction) error {
	if err := ds.DB.Create(prediction).Error; err != nil {
		return dbError(err, "save_prediction", "assignment_id", prediction.AssignmentID)
	}
	return nil
}

// GetPrediction retrieves a prediction by its ID.
func (ds *DataStore) GetPrediction(id uint) (Prediction, error) {
	var prediction Prediction
	if err := ds.DB.First(&prediction, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Prediction{}, errors.NotFoundError("prediction", fmt.Sprintf("%d", id))
		}
		return Prediction{}, dbError(err, "get_prediction")
	}
	return prediction, nil
}

// LatestPredictionForPlant returns the most recent prediction for a plant, or
// nil when the plant has none. Used for height and leaf count continuity.
func (ds *DataStore) LatestPredictionForPlant(plantID string) (*Prediction, error) {
	var prediction Prediction
	err := ds.DB.
		Where("plant_id = ?", plantID).
		Order("created_at DESC").
		First(&prediction).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dbError(err, "latest_prediction_for_plant", "plant_id", plantID)
	}
	return &prediction, nil
}

// PredictionForAssignmentSince returns a prediction created after since for
// the assignment, or nil when none exists. This backs the recency guard.
func (ds *DataStore) PredictionForAssignmentSince(assignmentID string, since time.Time) (*Prediction, error) {
	var prediction Prediction
	err := ds.DB.
		Where("assignment_id = ? AND created_at >= ?", assignmentID, since).
		First(&prediction).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dbError(err, "prediction_for_assignment_since", "assignment_id", assignmentID)
	}
	return &prediction, nil
}

// PredictionsForPlant returns the newest predictions for a plant, capped at limit.
func (ds *DataStore) PredictionsForPlant(plantID string, limit int) ([]Prediction, error) {
	var predictions []Prediction
	err := ds.DB.
		Where("plant_id = ?", plantID).
		Order("created_at DESC").
		Limit(limit).
		Find(&predictions).Error
	if err != nil {
		return nil, dbError(err, "predictions_for_plant", "plant_id", plantID)
	}
	return predictions, nil
}

// CountPredictions returns the total number of prediction records.
func (ds *DataStore) CountPredictions() (int64, error) {
	var count int64
	if err := ds.DB.Model(&Prediction{}).Count(&count).Error; err != nil {
		return 0, dbError(err, "count_predictions")
	}
	return count, nil
}

// CountPredictionsSince counts predictions created after since.
func (ds *DataStore) CountPredictionsSince(since time.Time) (int64, error) {
	var count int64
	err := ds.DB.Model(&Prediction{}).Where("created_at >= ?", since).Count(&count).Error
	if err != nil {
		return 0, dbError(err, "count_predictions_since")
	}
	return count, nil
}

// CountPredictionsByClass returns prediction counts grouped by health class.
func (ds *DataStore) CountPredictionsByClass() (map[int]int64, error) {
	var rows []struct {
		Class int
		Count int64
	}
	err := ds.DB.Model(&Prediction{}).
		Select("class, COUNT(*) as count").
		Group("class").
		Scan(&rows).Error
	if err != nil {
		return nil, dbError(err, "count_predictions_by_class")
	}
	counts := make(map[int]int64, len(rows))
	for _, row := range rows {
		counts[row.Class] = row.Count
	}
	return counts, nil
}

// CountPredictionsBySource returns prediction counts grouped by source.
func (ds *DataStore) CountPredictionsBySource() (map[string]int64, error) {
	var rows []struct {
		Source string
		Count  int64
	}
	err := ds.DB.Model(&Prediction{}).
		Select("source, COUNT(*) as count").
		Group("source").
		Scan(&rows).Error
	if err != nil {
		return nil, dbError(err, "count_predictions_by_source")
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Source] = row.Count
	}
	return counts, nil
}

// DeletePredictionsBefore removes predictions created before cutoff and
// returns the number of deleted rows.
func (ds *DataStore) DeletePredictionsBefore(cutoff time.Time) (int64, error) {
	result := ds.DB.Where("created_at < ?", cutoff).Delete(&Prediction{})
	if result.Error != nil {
		return 0, dbError(result.Error, "delete_predictions_before")
	}
	return result.RowsAffected, nil
}

// dbError wraps a database error with component and context metadata.
func dbError(err error, operation string, kv ...any) error {
	builder := errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation)
	for i := 0; i+1 < len(kv); i += 2 {
		if key, ok := kv[i].(string); ok {
			builder = builder.Context(key, kv[i+1])
		}
	}
	return builder.Build()
}
