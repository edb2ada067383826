package sensor_simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/LeonardoBeccarini/agricult/internal/model/entities"
)

// soilGridsURL: one fetch at startup, never per tick.
const soilGridsURL = "https://rest.isric.org/soilgrids/v2.0/properties/query?lat=%f&lon=%f&property=wv0010"

// walk describes how one field drifts: it is pulled back toward center and
// kept inside the physical limits.
type walk struct {
	center, step, min, max float64
	decimals               int
}

var (
	temperatureWalk  = walk{center: 25, step: 0.6, min: -10, max: 50, decimals: 1}
	humidityWalk     = walk{center: 60, step: 1.5, min: 0, max: 100, decimals: 1}
	soilMoistureWalk = walk{center: 40, step: 1.2, min: 0, max: 100, decimals: 1}
	phWalk           = walk{center: 6.75, step: 0.05, min: 3, max: 10, decimals: 2}
)

// reversion is the share of the distance to center recovered per tick.
const reversion = 0.1

func (w walk) next(rng *rand.Rand, cur float64) float64 {
	v := cur + (w.center-cur)*reversion + rng.NormFloat64()*w.step
	return roundTo(clamp(v, w.min, w.max), w.decimals)
}

// DataGenerator produces a plausible stream of readings for one sensor.
type DataGenerator struct {
	mu          sync.Mutex
	rng         *rand.Rand
	current     entities.SensorReading
	outlierRate float64
	seeded      bool

	httpClient   *http.Client
	soilGridsURL string
}

// NewDataGenerator starts from nominal values. outlierRate in [0,1] is the
// chance that a published reading carries one out-of-range field.
func NewDataGenerator(seed int64, outlierRate float64) *DataGenerator {
	return &DataGenerator{
		rng: rand.New(rand.NewSource(seed)),
		current: entities.SensorReading{
			Temperature:  temperatureWalk.center,
			Humidity:     humidityWalk.center,
			SoilMoisture: soilMoistureWalk.center,
			PH:           phWalk.center,
		},
		outlierRate:  clamp(outlierRate, 0, 1),
		httpClient:   &http.Client{Timeout: 8 * time.Second},
		soilGridsURL: soilGridsURL,
	}
}

// SeedFromSoilGrids sets the starting soil moisture from SoilGrids. On any
// failure the nominal value is kept and the error returned for logging.
func (g *DataGenerator) SeedFromSoilGrids(ctx context.Context, lat, lon float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seeded {
		return nil
	}
	g.seeded = true

	frac, err := g.fetchSoilMoisture(ctx, lat, lon)
	if err != nil {
		return err
	}
	g.current.SoilMoisture = roundTo(frac*100, soilMoistureWalk.decimals)
	return nil
}

// Next advances the walk and returns the reading to publish.
func (g *DataGenerator) Next() entities.SensorReading {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.current = entities.SensorReading{
		Temperature:  temperatureWalk.next(g.rng, g.current.Temperature),
		Humidity:     humidityWalk.next(g.rng, g.current.Humidity),
		SoilMoisture: soilMoistureWalk.next(g.rng, g.current.SoilMoisture),
		PH:           phWalk.next(g.rng, g.current.PH),
	}
	out := g.current
	if g.outlierRate > 0 && g.rng.Float64() < g.outlierRate {
		g.spike(&out)
	}
	return out
}

// spike pushes one field out of its acceptable range. The walk state is
// left alone so the stream recovers on the next tick.
func (g *DataGenerator) spike(r *entities.SensorReading) {
	switch g.rng.Intn(4) {
	case 0:
		r.Temperature = roundTo(36+g.rng.Float64()*6, 1)
	case 1:
		r.Humidity = roundTo(81+g.rng.Float64()*15, 1)
	case 2:
		r.SoilMoisture = roundTo(5+g.rng.Float64()*14, 1)
	default:
		r.PH = roundTo(7.6+g.rng.Float64()*1.2, 2)
	}
}

// ===== SoilGrids =====

var errNoMoisture = errors.New("soilgrids: moisture field not found")

func (g *DataGenerator) fetchSoilMoisture(ctx context.Context, lat, lon float64) (float64, error) {
	url := fmt.Sprintf(g.soilGridsURL, lat, lon)

	var val float64
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", "agricult-sensor-simulator/1.0")

		resp, err := g.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return err
		}

		switch {
		case resp.StatusCode == http.StatusOK:
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("soilgrids HTTP %d", resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("soilgrids HTTP %d", resp.StatusCode))
		}

		var parsed any
		if err := json.Unmarshal(body, &parsed); err != nil {
			return backoff.Permanent(err)
		}
		m := extractMoisture(parsed)
		if m < 0 {
			return backoff.Permanent(errNoMoisture)
		}
		val = normalizeWV(m)
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 600 * time.Millisecond
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, 1), ctx)); err != nil {
		return -1, err
	}
	return val, nil
}

// extractMoisture looks for the first depth value in either
// {"properties":{"layers":[{"depths":[{"values":{...}}]}]}} or the same
// nested under "features"[0].
func extractMoisture(v any) float64 {
	m, ok := v.(map[string]any)
	if !ok {
		return -1
	}
	if feats, ok := m["features"].([]any); ok && len(feats) > 0 {
		if f0, ok := feats[0].(map[string]any); ok {
			if p, ok := f0["properties"].(map[string]any); ok {
				if x := fromProperties(p); x >= 0 {
					return x
				}
			}
		}
	}
	if p, ok := m["properties"].(map[string]any); ok {
		return fromProperties(p)
	}
	return -1
}

func fromProperties(p map[string]any) float64 {
	layers, ok := p["layers"].([]any)
	if !ok || len(layers) == 0 {
		return -1
	}
	l0, ok := layers[0].(map[string]any)
	if !ok {
		return -1
	}
	depths, ok := l0["depths"].([]any)
	if !ok || len(depths) == 0 {
		return -1
	}
	d0, ok := depths[0].(map[string]any)
	if !ok {
		return -1
	}
	vals, ok := d0["values"].(map[string]any)
	if !ok {
		return -1
	}
	for _, k := range []string{"Q0.5", "mean", "Q0.95", "Q0.05"} {
		if f, ok := vals[k].(float64); ok {
			return f
		}
	}
	return -1
}

// normalizeWV maps SoilGrids wv values to a 0..1 fraction. Values above 1.5
// are in thousandths of m3/m3 (420 => 0.420).
func normalizeWV(x float64) float64 {
	if x > 1.5 {
		x = x / 1000.0
	}
	return clamp(x, 0, 1)
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

func roundTo(x float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(x*p) / p
}
