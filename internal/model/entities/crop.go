package entities

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// DefaultBaseYield applies to crops missing from the base yield table.
const DefaultBaseYield = 20.0

// DefaultFactor is used for any yield factor the caller leaves out.
const DefaultFactor = 0.8

var ErrFactorOutOfRange = errors.New("yield factor must be within [0,1]")

var baseYields = map[string]float64{
	"rice":   30,
	"wheat":  25,
	"tomato": 40,
	"potato": 35,
	"corn":   28,
}

// NormalizeCrop lower-cases and trims a crop name for table lookups.
func NormalizeCrop(crop string) string {
	return strings.ToLower(strings.TrimSpace(crop))
}

// KnownCrop reports whether crop has its own base yield.
func KnownCrop(crop string) bool {
	_, ok := baseYields[NormalizeCrop(crop)]
	return ok
}

// BaseYield returns the nominal yield for crop, case-insensitively.
func BaseYield(crop string) float64 {
	if y, ok := baseYields[NormalizeCrop(crop)]; ok {
		return y
	}
	return DefaultBaseYield
}

// YieldFactors are normalized (0..1) scores; nil means "not supplied".
type YieldFactors struct {
	Weather    *float64 `json:"weather,omitempty"`
	Soil       *float64 `json:"soil,omitempty"`
	Irrigation *float64 `json:"irrigation,omitempty"`
	Fertilizer *float64 `json:"fertilizer,omitempty"`
}

// ResolvedFactors is YieldFactors with defaults applied.
type ResolvedFactors struct {
	Weather    float64
	Soil       float64
	Irrigation float64
	Fertilizer float64
}

// Resolve fills every missing factor with DefaultFactor.
func (f YieldFactors) Resolve() ResolvedFactors {
	return ResolvedFactors{
		Weather:    orDefault(f.Weather),
		Soil:       orDefault(f.Soil),
		Irrigation: orDefault(f.Irrigation),
		Fertilizer: orDefault(f.Fertilizer),
	}
}

// Validate checks the supplied factors only.
func (f YieldFactors) Validate() error {
	for _, c := range []struct {
		name string
		v    *float64
	}{
		{"weather", f.Weather},
		{"soil", f.Soil},
		{"irrigation", f.Irrigation},
		{"fertilizer", f.Fertilizer},
	} {
		if c.v == nil {
			continue
		}
		v := *c.v
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("%s=%v: %w", c.name, v, ErrFactorOutOfRange)
		}
	}
	return nil
}

func orDefault(v *float64) float64 {
	if v == nil {
		return DefaultFactor
	}
	return *v
}

// Factor is a small helper for building YieldFactors literals.
func Factor(v float64) *float64 { return &v }
