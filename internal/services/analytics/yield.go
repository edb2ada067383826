package analytics

import (
	"math"

	"github.com/LeonardoBeccarini/agricult/internal/model/entities"
)

// YieldEstimate is the predicted harvest for one crop.
type YieldEstimate struct {
	PredictedYield float64 `json:"predictedYield"`
	Confidence     int     `json:"confidence"` // percent
}

// EstimateYield multiplies the crop's base yield by the four factors.
// Missing factors default to entities.DefaultFactor.
func EstimateYield(crop string, factors entities.YieldFactors) YieldEstimate {
	f := factors.Resolve()
	base := entities.BaseYield(crop)

	predicted := base * f.Weather * f.Soil * f.Irrigation * f.Fertilizer
	avg := (f.Weather + f.Soil + f.Irrigation + f.Fertilizer) / 4

	return YieldEstimate{
		PredictedYield: roundHalfUp(predicted*100) / 100,
		Confidence:     int(roundHalfUp(avg * 100)),
	}
}

// roundHalfUp rounds .5 towards +Inf, unlike math.Round which rounds away from zero.
func roundHalfUp(x float64) float64 {
	return math.Floor(x + 0.5)
}
