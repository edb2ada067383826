package entities

import (
	"errors"
	"fmt"
	"math"
)

// ErrNonFiniteReading is returned when a reading carries NaN or an infinity.
var ErrNonFiniteReading = errors.New("sensor reading must be finite")

// SensorReading is a single set of environmental values sampled on a farm.
type SensorReading struct {
	Temperature  float64 `json:"temperature"`  // °C
	Humidity     float64 `json:"humidity"`     // %
	SoilMoisture float64 `json:"soilMoisture"` // %
	PH           float64 `json:"ph"`
}

// Validate rejects values that cannot be compared against a range.
func (r SensorReading) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"temperature", r.Temperature},
		{"humidity", r.Humidity},
		{"soilMoisture", r.SoilMoisture},
		{"ph", r.PH},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%s: %w", f.name, ErrNonFiniteReading)
		}
	}
	return nil
}
