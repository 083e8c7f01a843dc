package prediction

import (
	"math"
	"strings"
)

// defaultEstimateAgeDays is the age assumed for type-level estimates that do
// not know the actual plant, such as new-growth and watering-frequency
// baselines.
const defaultEstimateAgeDays = 30

// Defaults holds age-adjusted baseline values for a plant type. All growth
// figures increase with age up to a per-type cap.
type Defaults struct {
	Height         float64
	LeafCount      float64
	NewGrowth      float64
	Temperature    float64
	Humidity       float64
	SoilMoisture   float64
	WaterFrequency float64
}

// normalizeSpecies maps a free-form species string down to one of the known
// plant types. Anything with "succulent" or "cactus" in it counts as a
// succulent; unknown species fall back to the general profile.
func normalizeSpecies(species string) string {
	s := strings.ToLower(strings.TrimSpace(species))
	switch {
	case strings.Contains(s, "succulent"), strings.Contains(s, "cactus"):
		return "succulent"
	case strings.Contains(s, "fern"):
		return "fern"
	case strings.Contains(s, "monstera"):
		return "monstera"
	default:
		return "general"
	}
}

// plantDefaults returns the baseline feature values for a species at a given
// age in days. Negative ages are treated as zero.
func plantDefaults(species string, ageDays int) Defaults {
	age := float64(ageDays)
	if age < 0 {
		age = 0
	}

	switch normalizeSpecies(species) {
	case "succulent":
		return Defaults{
			Height:         math.Min(30, 5+age*0.1),
			LeafCount:      math.Min(50, 3+age*0.15),
			NewGrowth:      math.Min(5, math.Floor(age/30)),
			Temperature:    24,
			Humidity:       40,
			SoilMoisture:   30,
			WaterFrequency: 14,
		}
	case "fern":
		return Defaults{
			Height:         math.Min(60, 10+age*0.2),
			LeafCount:      math.Min(100, 5+age*0.3),
			NewGrowth:      math.Min(10, math.Floor(age/20)),
			Temperature:    22,
			Humidity:       70,
			SoilMoisture:   60,
			WaterFrequency: 3,
		}
	case "monstera":
		return Defaults{
			Height:         math.Min(120, 15+age*0.3),
			LeafCount:      math.Min(30, 2+age*0.1),
			NewGrowth:      math.Min(8, math.Floor(age/45)),
			Temperature:    25,
			Humidity:       60,
			SoilMoisture:   50,
			WaterFrequency: 7,
		}
	default:
		return Defaults{
			Height:         math.Min(50, 8+age*0.15),
			LeafCount:      math.Min(40, 4+age*0.2),
			NewGrowth:      math.Min(6, math.Floor(age/25)),
			Temperature:    23,
			Humidity:       55,
			SoilMoisture:   45,
			WaterFrequency: 5,
		}
	}
}
