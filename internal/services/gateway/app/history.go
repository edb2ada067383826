package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/agricult/internal/observability"
	"github.com/LeonardoBeccarini/agricult/internal/services/analytics"
)

const (
	SourceAuto   = "auto"
	SourceInflux = "influx"
	SourceDemo   = "demo"
)

var (
	ErrUnknownSource     = errors.New("unknown history source")
	ErrSourceUnavailable = errors.New("history source unavailable")
	errNoRows            = errors.New("no readings")
)

// ReadingSource returns the most recent readings of a user, newest first.
type ReadingSource interface {
	Recent(ctx context.Context, userID string, limit int) ([]StoredReading, error)
}

// ---------- demo rows ----------

// DemoSource serves the two fixed readings shown on the demo dashboard.
type DemoSource struct{ clock clockwork.Clock }

func NewDemoSource(clock clockwork.Clock) *DemoSource { return &DemoSource{clock: clock} }

func (d *DemoSource) Recent(_ context.Context, userID string, limit int) ([]StoredReading, error) {
	now := d.clock.Now().UTC()
	rows := []StoredReading{
		{ID: "1", UserID: userID, FarmID: "farm1", Temperature: 28.5, Humidity: 65, SoilMoisture: 45, PH: 6.8, Timestamp: now},
		{ID: "2", UserID: userID, FarmID: "farm1", Temperature: 35.2, Humidity: 90, SoilMoisture: 25, PH: 7.8, Timestamp: now},
	}
	for i := range rows {
		rows[i].IsOutlier = analytics.EvaluateOutliers(rows[i].Reading()).IsOutlier()
	}
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows, nil
}

// ---------- InfluxDB ----------

// InfluxSource reads sensor_reading points written by the persistence pipeline.
type InfluxSource struct {
	query   api.QueryAPI
	bucket  string
	minutes int
}

func NewInfluxSource(q api.QueryAPI, bucket string, minutes int) *InfluxSource {
	if minutes <= 0 {
		minutes = 24 * 60
	}
	return &InfluxSource{query: q, bucket: bucket, minutes: minutes}
}

func buildFlux(bucket, userID string, minutes, limit int) string {
	return fmt.Sprintf(`
from(bucket: %s)
  |> range(start: -%dm)
  |> filter(fn: (r) => r._measurement == "sensor_reading" and r.user_id == %s)
  |> filter(fn: (r) => r._field == "temperature" or r._field == "humidity" or r._field == "soil_moisture" or r._field == "ph")
  |> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")
  |> group()
  |> sort(columns: ["_time"], desc: true)
  |> limit(n: %d)
`, fluxString(bucket), minutes, fluxString(userID), limit)
}

var fluxEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	`$`, `\$`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

// fluxString quotes s as a Flux string literal. "$" is escaped so ${...}
// in user input is never interpolated.
func fluxString(s string) string {
	return `"` + fluxEscaper.Replace(s) + `"`
}

func (s *InfluxSource) Recent(ctx context.Context, userID string, limit int) ([]StoredReading, error) {
	if limit <= 0 {
		limit = 20
	}
	res, err := s.query.Query(ctx, buildFlux(s.bucket, userID, s.minutes, limit))
	if err != nil {
		return nil, fmt.Errorf("influx query: %w", err)
	}
	defer res.Close()

	out := make([]StoredReading, 0, limit)
	for res.Next() {
		rec := res.Record()
		row := StoredReading{
			UserID:       userID,
			FarmID:       stringValue(rec.ValueByKey("farm_id")),
			Temperature:  toFloat(rec.ValueByKey("temperature")),
			Humidity:     toFloat(rec.ValueByKey("humidity")),
			SoilMoisture: toFloat(rec.ValueByKey("soil_moisture")),
			PH:           toFloat(rec.ValueByKey("ph")),
			Timestamp:    rec.Time().UTC(),
		}
		row.ID = strconv.FormatInt(row.Timestamp.UnixMilli(), 10)
		if sid := stringValue(rec.ValueByKey("sensor_id")); sid != "" {
			row.ID = sid + "-" + row.ID
		}
		row.IsOutlier = analytics.EvaluateOutliers(row.Reading()).IsOutlier()
		out = append(out, row)
	}
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("influx iterate: %w", err)
	}
	return out, nil
}

func toFloat(v interface{}) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int64:
		return float64(x)
	case uint64:
		return float64(x)
	case int:
		return float64(x)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
			return f
		}
	}
	return 0
}

func stringValue(v interface{}) string {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// ---------- source selection ----------

type BreakerSettings struct {
	Failures int
	OpenFor  time.Duration
	Interval time.Duration
}

// History picks a source per request. "auto" goes through a circuit breaker
// around Influx and falls back to demo rows.
type History struct {
	influx  ReadingSource // nil when Influx is not configured
	demo    ReadingSource
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
	logger  *zap.Logger
	metrics *observability.Metrics
}

func NewHistory(influx, demo ReadingSource, bs BreakerSettings, timeout time.Duration, logger *zap.Logger, metrics *observability.Metrics) *History {
	if bs.Failures < 1 {
		bs.Failures = 3
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "influx-history",
		Interval: bs.Interval,
		Timeout:  bs.OpenFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= uint32(bs.Failures)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errNoRows)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name), zap.Stringer("from", from), zap.Stringer("to", to))
		},
	})
	return &History{influx: influx, demo: demo, cb: cb, timeout: timeout, logger: logger, metrics: metrics}
}

func (h *History) BreakerState() gobreaker.State { return h.cb.State() }

// Recent returns the readings and the name of the source that served them.
func (h *History) Recent(ctx context.Context, source, userID string, limit int) ([]StoredReading, string, error) {
	switch strings.ToLower(strings.TrimSpace(source)) {
	case SourceDemo:
		return h.serve(ctx, h.demo, SourceDemo, userID, limit)
	case SourceInflux:
		rows, err := h.fromInflux(ctx, userID, limit)
		if err != nil && !errors.Is(err, errNoRows) {
			return nil, SourceInflux, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
		}
		h.metrics.HistorySource.WithLabelValues(SourceInflux).Inc()
		return nonNil(rows), SourceInflux, nil
	case SourceAuto, "":
		if h.influx == nil {
			return h.serve(ctx, h.demo, SourceDemo, userID, limit)
		}
		rows, err := h.fromInflux(ctx, userID, limit)
		if err == nil {
			h.metrics.HistorySource.WithLabelValues(SourceInflux).Inc()
			return rows, SourceInflux, nil
		}
		if !errors.Is(err, errNoRows) {
			h.logger.Warn("history: influx unavailable, serving demo rows", zap.Error(err))
		}
		return h.serve(ctx, h.demo, SourceDemo, userID, limit)
	default:
		return nil, "", fmt.Errorf("%w %q", ErrUnknownSource, source)
	}
}

func (h *History) serve(ctx context.Context, src ReadingSource, name, userID string, limit int) ([]StoredReading, string, error) {
	rows, err := src.Recent(ctx, userID, limit)
	if err != nil {
		return nil, name, err
	}
	h.metrics.HistorySource.WithLabelValues(name).Inc()
	return nonNil(rows), name, nil
}

func (h *History) fromInflux(ctx context.Context, userID string, limit int) ([]StoredReading, error) {
	if h.influx == nil {
		return nil, errors.New("influx not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	res, err := h.cb.Execute(func() (interface{}, error) {
		rows, err := h.influx.Recent(ctx, userID, limit)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, errNoRows
		}
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	return res.([]StoredReading), nil
}

func nonNil(rows []StoredReading) []StoredReading {
	if rows == nil {
		return []StoredReading{}
	}
	return rows
}
