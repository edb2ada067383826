package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/agricult/internal/model"
	"github.com/LeonardoBeccarini/agricult/internal/observability"
)

type fakeSink struct {
	alerts []model.OutlierAlertEvent
	err    error
}

func (s *fakeSink) Publish(_ context.Context, evt model.OutlierAlertEvent) error {
	s.alerts = append(s.alerts, evt)
	return s.err
}

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	svc     *Service
	sink    *fakeSink
	metrics *observability.Metrics
}

func newHarness() *harness {
	h := &harness{sink: &fakeSink{}, metrics: observability.NewMetricsForTesting()}
	h.svc = NewService(Config{
		Alerts:  h.sink,
		Clock:   clockwork.NewFakeClockAt(now),
		Logger:  zap.NewNop(),
		Metrics: h.metrics,
	})
	return h
}

const (
	normal  = `{"user_id":"u1","farm_id":"farm1","sensor_id":"s1","reading":{"temperature":28.5,"humidity":65,"soilMoisture":45,"ph":6.8},"timestamp":"2024-06-01T11:59:00Z"}`
	flagged = `{"user_id":"u1","farm_id":"farm1","sensor_id":"s2","reading":{"temperature":35.2,"humidity":90,"soilMoisture":25,"ph":7.8}}`
)

func TestProcess_InRangeRaisesNothing(t *testing.T) {
	h := newHarness()
	require.NoError(t, h.svc.Process(context.Background(), "sensor/reading/farm1/s1", []byte(normal)))

	assert.Empty(t, h.sink.alerts)
	assert.Equal(t, 0.0, testutil.ToFloat64(h.metrics.AlertsPublished.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ReadingsTotal.WithLabelValues("monitor")))
}

func TestProcess_OutlierRaisesAlert(t *testing.T) {
	h := newHarness()
	require.NoError(t, h.svc.Process(context.Background(), "sensor/reading/farm1/s2", []byte(flagged)))

	require.Len(t, h.sink.alerts, 1)
	alert := h.sink.alerts[0]
	assert.Equal(t, "monitor", alert.Source)
	assert.Equal(t, "s2", alert.SensorID)
	assert.Len(t, alert.Reasons, 3)
	assert.Equal(t, now, alert.Timestamp)
	assert.Equal(t, 90.0, alert.Reading.Humidity)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Outliers.WithLabelValues("humidity", "monitor")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.AlertsPublished.WithLabelValues("ok")))
}

func TestProcess_DropsRedelivery(t *testing.T) {
	h := newHarness()
	for i := 0; i < 3; i++ {
		require.NoError(t, h.svc.Process(context.Background(), "sensor/reading/farm1/s2", []byte(flagged)))
	}
	assert.Len(t, h.sink.alerts, 1)
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.DuplicatesDrop))
}

func TestProcess_DropsInvalidEvents(t *testing.T) {
	h := newHarness()
	for _, p := range []string{
		`not json`,
		`{"farm_id":"farm1"}`,
		`{"reading":{"temperature":"hot"}}`,
	} {
		require.NoError(t, h.svc.Process(context.Background(), "sensor/reading/farm1/s1", []byte(p)))
	}
	assert.Empty(t, h.sink.alerts)
	assert.Equal(t, 0.0, testutil.ToFloat64(h.metrics.ReadingsTotal.WithLabelValues("monitor")))
}

func TestProcess_IDsFromTopic(t *testing.T) {
	h := newHarness()
	p := `{"reading":{"temperature":10,"humidity":50,"soilMoisture":30,"ph":7}}`
	require.NoError(t, h.svc.Process(context.Background(), "sensor/reading/farmX/sensorY", []byte(p)))

	require.Len(t, h.sink.alerts, 1)
	assert.Equal(t, "farmX", h.sink.alerts[0].FarmID)
	assert.Equal(t, "sensorY", h.sink.alerts[0].SensorID)
}

func TestProcess_ReturnsPublishErrors(t *testing.T) {
	h := newHarness()
	h.sink.err = errors.New("broker down")

	err := h.svc.Process(context.Background(), "sensor/reading/farm1/s2", []byte(flagged))
	require.ErrorIs(t, err, h.sink.err)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.AlertsPublished.WithLabelValues("error")))
}

func TestProcess_NoSinkStillCounts(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	svc := NewService(Config{Metrics: metrics})
	require.NoError(t, svc.Process(context.Background(), "sensor/reading/farm1/s2", []byte(flagged)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Outliers.WithLabelValues("ph", "monitor")))
}

func TestDecodeEvent(t *testing.T) {
	evt, err := decodeEvent("sensor/reading/farm1/s1", []byte(normal))
	require.NoError(t, err)
	assert.Equal(t, "u1", evt.UserID)
	assert.Equal(t, time.Date(2024, 6, 1, 11, 59, 0, 0, time.UTC), evt.Timestamp)
	assert.Equal(t, 6.8, evt.Reading.PH)

	_, err = decodeEvent("", []byte(`{"farm_id":"farm1"}`))
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestTopicIDs(t *testing.T) {
	f, s := topicIDs("sensor/reading/farm1/s1")
	assert.Equal(t, "farm1", f)
	assert.Equal(t, "s1", s)

	f, s = topicIDs("sensor/data")
	assert.Empty(t, f)
	assert.Empty(t, s)
}
