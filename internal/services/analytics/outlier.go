// Package analytics holds the farm insight rules served by the gateway and the
// monitor: static range checks on sensor readings, the multiplicative yield
// model, the disease lookup and the assistant's canned answers.
//
// Every function here is a pure function of its inputs.
package analytics

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/LeonardoBeccarini/agricult/internal/model/entities"
)

// sensorRange is an inclusive acceptable interval for one reading field.
type sensorRange struct {
	field    string
	low      float64
	high     float64
	value    func(entities.SensorReading) float64
	describe func(v string) string
}

// Order matters: reasons are reported temperature, humidity, soil moisture, pH.
var sensorRanges = []sensorRange{
	{
		field: "temperature", low: 15, high: 35,
		value:    func(r entities.SensorReading) float64 { return r.Temperature },
		describe: func(v string) string { return fmt.Sprintf("Temperature %s°C is outside normal range (15-35°C)", v) },
	},
	{
		field: "humidity", low: 40, high: 80,
		value:    func(r entities.SensorReading) float64 { return r.Humidity },
		describe: func(v string) string { return fmt.Sprintf("Humidity %s%% is outside normal range (40-80%%)", v) },
	},
	{
		field: "soilMoisture", low: 20, high: 60,
		value:    func(r entities.SensorReading) float64 { return r.SoilMoisture },
		describe: func(v string) string { return fmt.Sprintf("Soil moisture %s%% is outside normal range (20-60%%)", v) },
	},
	{
		field: "ph", low: 6.0, high: 7.5,
		value:    func(r entities.SensorReading) float64 { return r.PH },
		describe: func(v string) string { return fmt.Sprintf("pH %s is outside normal range (6.0-7.5)", v) },
	},
}

// OutlierReport lists the out-of-range fields of a reading.
type OutlierReport struct {
	Reasons []string
	Fields  []string // field names, parallel to Reasons
}

// IsOutlier is true iff at least one field is out of range.
func (r OutlierReport) IsOutlier() bool { return len(r.Reasons) > 0 }

// EvaluateOutliers compares each field of r against its fixed range.
// Bounds are inclusive.
func EvaluateOutliers(r entities.SensorReading) OutlierReport {
	rep := OutlierReport{Reasons: []string{}, Fields: []string{}}
	for _, sr := range sensorRanges {
		v := sr.value(r)
		if v < sr.low || v > sr.high {
			rep.Reasons = append(rep.Reasons, sr.describe(formatNumber(v)))
			rep.Fields = append(rep.Fields, sr.field)
		}
	}
	return rep
}

// formatNumber prints the shortest decimal that round-trips, e.g. 35.2 or 90.
// Magnitudes from 1e21 up or below 1e-6 switch to exponent form (1e+21, -1e-7),
// the same cut-over as a JavaScript number.
func formatNumber(v float64) string {
	if a := math.Abs(v); a != 0 && (a >= 1e21 || a < 1e-6) {
		return trimExponent(strconv.FormatFloat(v, 'e', -1, 64))
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// trimExponent drops Go's zero padding of the exponent: 1e-07 -> 1e-7.
func trimExponent(s string) string {
	i := strings.IndexByte(s, 'e')
	if i < 0 || i+2 >= len(s) {
		return s
	}
	mant, sign, exp := s[:i], s[i+1], strings.TrimLeft(s[i+2:], "0")
	if exp == "" {
		exp = "0"
	}
	return mant + "e" + string(sign) + exp
}
