package prediction

import (
	"fmt"

	"github.com/botaniai/botaniai-go/internal/mlservice"
)

// fallbackConfidence is the fixed confidence attached to rule-based results.
const fallbackConfidence = 0.7

// fallbackModelType identifies rule-based results in stored predictions.
const fallbackModelType = "rule_based_fallback"

// classDescriptions maps health classes to their human-readable summaries.
// Class 0 is worst, class 5 best.
var classDescriptions = map[int]string{
	0: "CRITICAL - Plant needs immediate attention. Check watering, light, and soil conditions.",
	1: "POOR - Plant is struggling. Review care routine and environmental conditions.",
	2: "FAIR - Plant is surviving but not thriving. Minor adjustments needed.",
	3: "AVERAGE - Plant is doing okay. Maintain current care with small improvements.",
	4: "GOOD - Plant is healthy. Keep up the current care routine.",
	5: "EXCELLENT - Plant is thriving. Perfect care conditions.",
}

// DescribeClass returns the summary text for a health class, or a generic
// line for classes outside the known range.
func DescribeClass(class int) string {
	if desc, ok := classDescriptions[class]; ok {
		return desc
	}
	return "Health status unknown."
}

// fallbackPredict classifies plant health from threshold rules when the
// predictor is unreachable. Rules are checked most severe first; a plant
// that trips none of them is considered good.
func fallbackPredict(features *mlservice.Features) *mlservice.Result {
	class := 4
	switch {
	case features.SoilMoisturePercent < 30:
		class = 0
	case features.SoilMoisturePercent > 80:
		class = 1
	case features.RoomTemperatureC < 15 || features.RoomTemperatureC > 30:
		class = 2
	case features.HumidityPercent < 30 || features.HumidityPercent > 70:
		class = 3
	case features.LeafCount < 5:
		class = 2
	}

	return &mlservice.Result{
		Prediction:      class,
		PredictionLabel: fmt.Sprintf("Class %d", class),
		Recommendation:  DescribeClass(class),
		Confidence:      fallbackConfidence,
		ModelType:       fallbackModelType,
		UsingFallback:   true,
	}
}
