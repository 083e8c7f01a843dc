package prediction

import (
	"math"
	"time"

	"github.com/botaniai/botaniai-go/internal/datastore"
	"github.com/botaniai/botaniai-go/internal/mlservice"
)

// SoilScale declares how a device's raw soil moisture values map onto a
// 0-100 percentage. Two probe conventions exist in the field: resistive
// probes report 0-1000 with higher raw meaning wetter, capacitive ESP32
// probes report 1000-4095 with higher raw meaning drier. The scale is
// per-device configuration, not a global constant.
type SoilScale struct {
	RawMin float64 // raw value at the wet end
	RawMax float64 // raw value at the dry end
	Invert bool    // true when higher raw means drier
}

// Percent converts a raw probe value to a moisture percentage, clamped to
// [0,100] and rounded to one decimal.
func (s SoilScale) Percent(raw float64) float64 {
	if s.RawMax <= s.RawMin {
		return 0
	}
	clamped := math.Max(s.RawMin, math.Min(s.RawMax, raw))
	var percent float64
	if s.Invert {
		percent = (s.RawMax - clamped) / (s.RawMax - s.RawMin) * 100
	} else {
		percent = (clamped - s.RawMin) / (s.RawMax - s.RawMin) * 100
	}
	return round1(math.Max(0, math.Min(100, percent)))
}

// Overrides carries explicit caller-supplied feature values. Nil fields fall
// through to sensor history and then to plant-type defaults.
type Overrides struct {
	HeightCm              *float64
	LeafCount             *float64
	NewGrowthCount        *float64
	WateringAmountML      *float64
	WateringFrequencyDays *float64
	RoomTemperatureC      *float64
	HumidityPercent       *float64
	SoilMoisturePercent   *float64
}

// HasAny reports whether at least one override is set.
func (o *Overrides) HasAny() bool {
	return o.HeightCm != nil || o.LeafCount != nil || o.NewGrowthCount != nil ||
		o.WateringAmountML != nil || o.WateringFrequencyDays != nil ||
		o.RoomTemperatureC != nil || o.HumidityPercent != nil || o.SoilMoisturePercent != nil
}

// BuildInput bundles everything the feature builder may draw from.
type BuildInput struct {
	Overrides      Overrides
	Readings       []datastore.SensorReading
	Species        string
	AgeDays        int
	LastPrediction *datastore.Prediction // most recent prior prediction for continuity
	Soil           SoilScale
	Now            time.Time // zero means time.Now()
}

// sensorAverages holds per-field averages over the recent readings. A nil
// field means no reading carried a value for it.
type sensorAverages struct {
	temperature  *float64
	humidity     *float64
	soilMoisture *float64
	soilPercent  *float64
}

// averageReadings computes per-field averages, skipping nil fields so a
// probe that never reports humidity does not drag the average to zero.
func averageReadings(readings []datastore.SensorReading, scale SoilScale) sensorAverages {
	var avg sensorAverages
	var tempSum, humidSum, soilSum float64
	var tempCount, humidCount, soilCount int

	for i := range readings {
		r := &readings[i]
		if r.Temperature != nil {
			tempSum += *r.Temperature
			tempCount++
		}
		if r.Humidity != nil {
			humidSum += *r.Humidity
			humidCount++
		}
		if r.SoilMoisture != nil {
			soilSum += *r.SoilMoisture
			soilCount++
		}
	}

	if tempCount > 0 {
		v := tempSum / float64(tempCount)
		avg.temperature = &v
	}
	if humidCount > 0 {
		v := humidSum / float64(humidCount)
		avg.humidity = &v
	}
	if soilCount > 0 {
		v := soilSum / float64(soilCount)
		avg.soilMoisture = &v
		p := scale.Percent(v)
		avg.soilPercent = &p
	}
	return avg
}

// BuildFeatures produces the fixed feature vector for the predictor. Every
// field resolves explicit override first, then sensor history, then the
// plant-type default table; the function never fails on sparse input.
func BuildFeatures(in *BuildInput) *mlservice.Features {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	avg := averageReadings(in.Readings, in.Soil)
	defaults := plantDefaults(in.Species, in.AgeDays)

	features := &mlservice.Features{
		HeightCm:              resolve(in.Overrides.HeightCm, estimateHeight(in.LastPrediction, now), defaults.Height),
		LeafCount:             resolve(in.Overrides.LeafCount, estimateLeafCount(in.LastPrediction), defaults.LeafCount),
		NewGrowthCount:        resolve(in.Overrides.NewGrowthCount, estimateNewGrowth(in.Species, avg.temperature), defaults.NewGrowth),
		WateringAmountML:      resolve(in.Overrides.WateringAmountML, wateringAmount(in.Species, avg.soilPercent), 0),
		WateringFrequencyDays: resolve(in.Overrides.WateringFrequencyDays, wateringFrequency(in.Species, avg.temperature), 0),
		RoomTemperatureC:      resolve(in.Overrides.RoomTemperatureC, avg.temperature, defaults.Temperature),
		HumidityPercent:       resolve(in.Overrides.HumidityPercent, avg.humidity, defaults.Humidity),
		SoilMoisturePercent:   resolve(in.Overrides.SoilMoisturePercent, avg.soilPercent, defaults.SoilMoisture),
	}

	features.HeightCm = round1(features.HeightCm)
	features.LeafCount = round1(features.LeafCount)
	features.NewGrowthCount = round1(features.NewGrowthCount)
	features.WateringAmountML = round1(features.WateringAmountML)
	features.WateringFrequencyDays = round1(features.WateringFrequencyDays)
	features.RoomTemperatureC = round1(features.RoomTemperatureC)
	features.HumidityPercent = round1(features.HumidityPercent)
	features.SoilMoisturePercent = round1(features.SoilMoisturePercent)

	return features
}

// resolve picks the first available value: override, derived, then fallback.
func resolve(override, derived *float64, fallback float64) float64 {
	if override != nil {
		return *override
	}
	if derived != nil {
		return *derived
	}
	return fallback
}

// estimateHeight extrapolates from the most recent prior prediction at
// 0.1 cm growth per elapsed day. Nil when there is no prior prediction.
func estimateHeight(last *datastore.Prediction, now time.Time) *float64 {
	if last == nil {
		return nil
	}
	days := now.Sub(last.CreatedAt).Hours() / 24
	if days < 0 {
		days = 0
	}
	v := last.HeightCm + days*0.1
	return &v
}

// estimateLeafCount carries the prior prediction's leaf count forward.
func estimateLeafCount(last *datastore.Prediction) *float64 {
	if last == nil {
		return nil
	}
	v := last.LeafCount
	return &v
}

// estimateNewGrowth returns the type's baseline new-growth count, plus one
// when the average temperature sits in the growth-friendly 20-28 C band.
func estimateNewGrowth(species string, temperature *float64) *float64 {
	base := plantDefaults(species, defaultEstimateAgeDays).NewGrowth
	if temperature != nil && *temperature >= 20 && *temperature <= 28 {
		base++
	}
	return &base
}

// wateringAmount computes the recommended watering amount in ml: a per-type
// base, scaled up for dry soil and down for wet soil, rounded to 50 ml.
func wateringAmount(species string, soilPercent *float64) *float64 {
	base := 250.0
	switch normalizeSpecies(species) {
	case "succulent":
		base = 100
	case "fern":
		base = 300
	case "monstera":
		base = 200
	}

	if soilPercent != nil {
		if *soilPercent < 30 {
			base *= 1.5
		}
		if *soilPercent > 70 {
			base *= 0.5
		}
	}

	v := math.Round(base/50) * 50
	return &v
}

// wateringFrequency computes days between waterings: the per-type base,
// watered more often when hot and less often when cold.
func wateringFrequency(species string, temperature *float64) *float64 {
	frequency := plantDefaults(species, defaultEstimateAgeDays).WaterFrequency
	if temperature != nil {
		if *temperature > 28 {
			frequency *= 0.7
		}
		if *temperature < 18 {
			frequency *= 1.3
		}
	}
	v := round1(frequency)
	return &v
}

// round1 rounds to one decimal, the precision the predictor contract expects.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
