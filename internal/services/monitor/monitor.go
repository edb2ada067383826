// Package monitor evaluates the live sensor stream: every reading received on
// MQTT is checked against the acceptable ranges and turned into an outlier
// alert when needed. Nothing is stored.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/agricult/internal/model"
	"github.com/LeonardoBeccarini/agricult/internal/observability"
	"github.com/LeonardoBeccarini/agricult/internal/services/alerting"
	"github.com/LeonardoBeccarini/agricult/internal/services/analytics"
	"github.com/LeonardoBeccarini/agricult/pkg/dedup"
	"github.com/LeonardoBeccarini/agricult/pkg/rabbitmq"
)

const DefaultTopic = "sensor/reading/#"

var ErrInvalidEvent = errors.New("invalid sensor reading event")

type Config struct {
	Consumer rabbitmq.IConsumer
	Deduper  *dedup.Deduper
	Alerts   alerting.Sink // optional

	Clock   clockwork.Clock
	Logger  *zap.Logger
	Metrics *observability.Metrics
}

type Service struct {
	consumer rabbitmq.IConsumer
	deduper  *dedup.Deduper
	alerts   alerting.Sink
	clock    clockwork.Clock
	logger   *zap.Logger
	metrics  *observability.Metrics
}

func NewService(cfg Config) *Service {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NewMetricsForTesting()
	}
	if cfg.Deduper == nil {
		cfg.Deduper = dedup.NewWithClock(0, 0, cfg.Clock)
	}
	return &Service{
		consumer: cfg.Consumer,
		deduper:  cfg.Deduper,
		alerts:   cfg.Alerts,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
}

// Start subscribes and blocks until ctx is done.
func (s *Service) Start(ctx context.Context) error {
	s.consumer.SetHandler(func(topic string, msg mqtt.Message) error {
		return s.Process(ctx, msg.Topic(), msg.Payload())
	})
	return s.consumer.ConsumeMessage(ctx)
}

// Process handles one payload. Malformed events are logged and dropped;
// publish errors are returned.
func (s *Service) Process(ctx context.Context, topic string, payload []byte) error {
	if !s.deduper.ShouldProcessPayload(payload) {
		s.metrics.DuplicatesDrop.Inc()
		return nil
	}

	evt, err := decodeEvent(topic, payload)
	if err != nil {
		s.logger.Warn("monitor: dropping event", zap.String("topic", topic), zap.Error(err))
		return nil
	}
	rep := analytics.EvaluateOutliers(evt.Reading)
	s.metrics.ObserveOutliers("monitor", rep.Fields)

	s.logger.Debug("monitor: reading",
		zap.String("farm_id", evt.FarmID),
		zap.String("sensor_id", evt.SensorID),
		zap.Bool("outlier", rep.IsOutlier()))
	if !rep.IsOutlier() {
		return nil
	}
	return s.raise(ctx, evt, rep)
}

func (s *Service) raise(ctx context.Context, evt model.SensorReadingEvent, rep analytics.OutlierReport) error {
	alert, err := alerting.NewAlert(s.clock, alerting.Source{
		Name: "monitor", UserID: evt.UserID, FarmID: evt.FarmID, SensorID: evt.SensorID,
	}, evt.Reading, rep)
	if err != nil {
		return err
	}
	s.logger.Info("monitor: outlier",
		zap.String("farm_id", evt.FarmID),
		zap.String("sensor_id", evt.SensorID),
		zap.Strings("reasons", rep.Reasons))

	if s.alerts == nil {
		return nil
	}
	if err := s.alerts.Publish(ctx, alert); err != nil {
		s.metrics.AlertsPublished.WithLabelValues("error").Inc()
		return fmt.Errorf("publish alert %s: %w", alert.AlertID, err)
	}
	s.metrics.AlertsPublished.WithLabelValues("ok").Inc()
	return nil
}

// decodeEvent parses a SensorReadingEvent. Farm and sensor default to the
// topic levels of sensor/reading/{farm}/{sensor}.
func decodeEvent(topic string, payload []byte) (model.SensorReadingEvent, error) {
	var wire struct {
		model.SensorReadingEvent
		Reading *model.SensorReading `json:"reading"`
	}
	if err := json.Unmarshal(payload, &wire); err != nil {
		return model.SensorReadingEvent{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if wire.Reading == nil {
		return model.SensorReadingEvent{}, fmt.Errorf("%w: missing reading", ErrInvalidEvent)
	}
	evt := wire.SensorReadingEvent
	evt.Reading = *wire.Reading
	if err := evt.Reading.Validate(); err != nil {
		return evt, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	farm, sensor := topicIDs(topic)
	if evt.FarmID == "" {
		evt.FarmID = farm
	}
	if evt.SensorID == "" {
		evt.SensorID = sensor
	}
	return evt, nil
}

func topicIDs(topic string) (farm, sensor string) {
	parts := strings.Split(strings.Trim(topic, "/"), "/")
	if len(parts) >= 4 && parts[0] == "sensor" && parts[1] == "reading" {
		return parts[2], parts[3]
	}
	return "", ""
}
