package prediction

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/botaniai/botaniai-go/internal/mlservice"
)

func TestFallbackPredict(t *testing.T) {
	t.Parallel()

	healthy := mlservice.Features{
		LeafCount:           20,
		RoomTemperatureC:    22,
		HumidityPercent:     55,
		SoilMoisturePercent: 45,
	}

	tests := []struct {
		name   string
		mutate func(*mlservice.Features)
		want   int
	}{
		{"healthy plant", func(f *mlservice.Features) {}, 4},
		{"dry soil is critical", func(f *mlservice.Features) { f.SoilMoisturePercent = 25 }, 0},
		{"waterlogged soil is poor", func(f *mlservice.Features) { f.SoilMoisturePercent = 85 }, 1},
		{"too cold", func(f *mlservice.Features) { f.RoomTemperatureC = 10 }, 2},
		{"too hot", func(f *mlservice.Features) { f.RoomTemperatureC = 35 }, 2},
		{"humidity out of band", func(f *mlservice.Features) { f.HumidityPercent = 20 }, 3},
		{"sparse foliage", func(f *mlservice.Features) { f.LeafCount = 3 }, 2},
		{"dry soil beats temperature", func(f *mlservice.Features) {
			f.SoilMoisturePercent = 25
			f.RoomTemperatureC = 35
		}, 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			features := healthy
			tt.mutate(&features)

			result := fallbackPredict(&features)
			assert.Equal(t, tt.want, result.Prediction)
			assert.True(t, result.UsingFallback)
			assert.InDelta(t, fallbackConfidence, result.Confidence, 0.001)
			assert.Equal(t, fallbackModelType, result.ModelType)
			assert.NotEmpty(t, result.Recommendation)
		})
	}
}

func TestDescribeClass(t *testing.T) {
	t.Parallel()

	assert.Contains(t, DescribeClass(0), "CRITICAL")
	assert.Contains(t, DescribeClass(5), "EXCELLENT")
	assert.Equal(t, "Health status unknown.", DescribeClass(42))
}
