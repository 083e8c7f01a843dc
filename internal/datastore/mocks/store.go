// Package mocks provides a testify mock of the datastore interface shared by
// the sync, prediction, scheduler and API tests.
package mocks

import (
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/botaniai/botaniai-go/internal/datastore"
)

// StoreMock implements datastore.Interface with testify expectations.
type StoreMock struct {
	mock.Mock
}

var _ datastore.Interface = (*StoreMock)(nil)

func (m *StoreMock) Open() error {
	args := m.Called()
	return args.Error(0)
}

func (m *StoreMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *StoreMock) GetDevice(id string) (datastore.Device, error) {
	args := m.Called(id)
	return args.Get(0).(datastore.Device), args.Error(1)
}

func (m *StoreMock) SaveDevice(device *datastore.Device) error {
	args := m.Called(device)
	return args.Error(0)
}

func (m *StoreMock) DevicesForSync() ([]datastore.Device, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]datastore.Device), args.Error(1)
}

func (m *StoreMock) UpdateDeviceLastSync(id string, t time.Time) error {
	args := m.Called(id, t)
	return args.Error(0)
}

func (m *StoreMock) GetAssignment(id string) (datastore.DeviceAssignment, error) {
	args := m.Called(id)
	return args.Get(0).(datastore.DeviceAssignment), args.Error(1)
}

func (m *StoreMock) SaveAssignment(assignment *datastore.DeviceAssignment) error {
	args := m.Called(assignment)
	return args.Error(0)
}

func (m *StoreMock) ActiveAssignmentForDevice(deviceID string) (*datastore.DeviceAssignment, error) {
	args := m.Called(deviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*datastore.DeviceAssignment), args.Error(1)
}

func (m *StoreMock) ActiveAssignments() ([]datastore.DeviceAssignment, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]datastore.DeviceAssignment), args.Error(1)
}

func (m *StoreMock) GetPlant(id string) (datastore.Plant, error) {
	args := m.Called(id)
	return args.Get(0).(datastore.Plant), args.Error(1)
}

func (m *StoreMock) FirstPlantForOwner(ownerID string) (*datastore.Plant, error) {
	args := m.Called(ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*datastore.Plant), args.Error(1)
}

func (m *StoreMock) SaveReading(reading *datastore.SensorReading) error {
	args := m.Called(reading)
	return args.Error(0)
}

func (m *StoreMock) ReadingByChannelEntry(channelID string, entryID int64) (*datastore.SensorReading, error) {
	args := m.Called(channelID, entryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*datastore.SensorReading), args.Error(1)
}

func (m *StoreMock) ReadingNearTimestamp(channelID string, ts time.Time, window time.Duration) (*datastore.SensorReading, error) {
	args := m.Called(channelID, ts, window)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*datastore.SensorReading), args.Error(1)
}

func (m *StoreMock) ReadingsForAssignment(assignmentID string, since time.Time, limit int) ([]datastore.SensorReading, error) {
	args := m.Called(assignmentID, since, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]datastore.SensorReading), args.Error(1)
}

func (m *StoreMock) CountReadingsSince(assignmentID string, since time.Time) (int64, error) {
	args := m.Called(assignmentID, since)
	return args.Get(0).(int64), args.Error(1)
}

func (m *StoreMock) SavePrediction(prediction *datastore.Prediction) error {
	args := m.Called(prediction)
	return args.Error(0)
}

func (m *StoreMock) GetPrediction(id uint) (datastore.Prediction, error) {
	args := m.Called(id)
	return args.Get(0).(datastore.Prediction), args.Error(1)
}

func (m *StoreMock) LatestPredictionForPlant(plantID string) (*datastore.Prediction, error) {
	args := m.Called(plantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*datastore.Prediction), args.Error(1)
}

func (m *StoreMock) PredictionForAssignmentSince(assignmentID string, since time.Time) (*datastore.Prediction, error) {
	args := m.Called(assignmentID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*datastore.Prediction), args.Error(1)
}

func (m *StoreMock) PredictionsForPlant(plantID string, limit int) ([]datastore.Prediction, error) {
	args := m.Called(plantID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]datastore.Prediction), args.Error(1)
}

func (m *StoreMock) CountPredictions() (int64, error) {
	args := m.Called()
	return args.Get(0).(int64), args.Error(1)
}

func (m *StoreMock) CountPredictionsSince(since time.Time) (int64, error) {
	args := m.Called(since)
	return args.Get(0).(int64), args.Error(1)
}

func (m *StoreMock) CountPredictionsByClass() (map[int]int64, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int]int64), args.Error(1)
}

func (m *StoreMock) CountPredictionsBySource() (map[string]int64, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int64), args.Error(1)
}

func (m *StoreMock) DeletePredictionsBefore(cutoff time.Time) (int64, error) {
	args := m.Called(cutoff)
	return args.Get(0).(int64), args.Error(1)
}
