// model.go this code defines the data model for the application
package datastore

import "time"

// Reading sources.
const (
	SourceDirect     = "direct"
	SourceThingSpeak = "thingspeak"
	SourceManual     = "manual"
)

// Prediction sources.
const (
	PredictionSourceMLService = "ml_service"
	PredictionSourceFallback  = "fallback"
	PredictionSourceScheduled = "auto_scheduled"
)

// Assignment status values.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Device represents a physical sensing device, optionally relayed through a
// ThingSpeak channel.
type Device struct {
	ID                  string `gorm:"primaryKey"`
	OwnerID             string `gorm:"index"`
	Name                string
	Status              string `gorm:"index;type:varchar(20)"`
	ThingSpeakChannelID string
	ThingSpeakWriteKey  string
	// Raw soil moisture convention for this device's probe. When SoilRawMax
	// is zero the global defaults from configuration apply.
	SoilRawMin float64
	SoilRawMax float64
	SoilInvert bool
	LastSyncAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DeviceAssignment links one device to one plant for one owning user over a
// time interval. At most one active assignment per device is a caller
// convention, not a database constraint.
type DeviceAssignment struct {
	ID        string `gorm:"primaryKey"`
	DeviceID  string `gorm:"index"`
	PlantID   string `gorm:"index"`
	OwnerID   string `gorm:"index"`
	Status    string `gorm:"index;type:varchar(20)"`
	StartedAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Plant is the minimal plant record the prediction pipeline depends on.
type Plant struct {
	ID      string `gorm:"primaryKey"`
	OwnerID string `gorm:"index"`
	Name    string
	Species string
	AgeDays int
}

// SensorReading represents one normalized telemetry sample.
type SensorReading struct {
	ID             uint   `gorm:"primaryKey"`
	DeviceID       string `gorm:"index"`
	AssignmentID   string `gorm:"index"`
	PlantID        string
	OwnerID        string
	Temperature    *float64
	Humidity       *float64
	SoilMoisture   *float64 // raw sensor units, convention per device
	LightIntensity *float64
	TakenAt        time.Time `gorm:"index:idx_readings_channel_taken,priority:2"`
	Source         string    `gorm:"type:varchar(20)"`
	ChannelID      string    `gorm:"index:idx_readings_channel_entry,priority:1;index:idx_readings_channel_taken,priority:1"`
	EntryID        *int64    `gorm:"index:idx_readings_channel_entry,priority:2"`
	SyncedAt       *time.Time
	CreatedAt      time.Time
}

// Prediction is one scored health assessment for an assignment. Rows are
// immutable once created and removed only by the retention sweep.
type Prediction struct {
	ID                    uint   `gorm:"primaryKey"`
	AssignmentID          string `gorm:"index"`
	PlantID               string `gorm:"index"`
	OwnerID               string
	HeightCm              float64
	LeafCount             float64
	NewGrowthCount        float64
	WateringAmountML      float64
	WateringFrequencyDays float64
	RoomTemperatureC      float64
	HumidityPercent       float64
	SoilMoisturePercent   float64
	Class                 int `gorm:"index"`
	Label                 string
	Recommendation        string `gorm:"type:text"`
	Confidence            float64
	SensorReadingID       *uint
	ReadingCount          int
	Source                string `gorm:"index;type:varchar(20)"`
	ModelType             string
	UsingFallback         bool
	RequestID             string
	CreatedAt             time.Time `gorm:"index"`
}
