package sensor_simulator

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/agricult/internal/model"
	"github.com/LeonardoBeccarini/agricult/pkg/rabbitmq"
)

// Sensor identifies the simulated device.
type Sensor struct {
	UserID   string
	FarmID   string
	SensorID string
}

// Topic is where this sensor publishes: sensor/reading/{farm}/{sensor}.
func (s Sensor) Topic() string {
	return fmt.Sprintf("sensor/reading/%s/%s", s.FarmID, s.SensorID)
}

type SensorSimulator struct {
	sensor    Sensor
	generator *DataGenerator
	publisher rabbitmq.IPublisher
	clock     clockwork.Clock
	logger    *zap.Logger
}

func NewSensorSimulator(publisher rabbitmq.IPublisher, gen *DataGenerator, sensor Sensor,
	clock clockwork.Clock, logger *zap.Logger) *SensorSimulator {
	return &SensorSimulator{
		sensor:    sensor,
		generator: gen,
		publisher: publisher,
		clock:     clock,
		logger:    logger,
	}
}

// Start publishes one reading per interval until ctx is done.
func (s *SensorSimulator) Start(ctx context.Context, interval time.Duration) {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.publisher.Close()
			return
		case <-ticker.Chan():
			if err := s.PublishOnce(); err != nil {
				s.logger.Warn("publish error", zap.String("sensor_id", s.sensor.SensorID), zap.Error(err))
			}
		}
	}
}

// PublishOnce sends the next reading at QoS 1.
func (s *SensorSimulator) PublishOnce() error {
	evt := model.SensorReadingEvent{
		UserID:    s.sensor.UserID,
		FarmID:    s.sensor.FarmID,
		SensorID:  s.sensor.SensorID,
		Reading:   s.generator.Next(),
		Timestamp: s.clock.Now().UTC(),
	}
	s.logger.Debug("sensor: pub",
		zap.String("farm_id", evt.FarmID),
		zap.String("sensor_id", evt.SensorID),
		zap.Float64("temperature", evt.Reading.Temperature),
		zap.Float64("humidity", evt.Reading.Humidity),
		zap.Float64("soil_moisture", evt.Reading.SoilMoisture),
		zap.Float64("ph", evt.Reading.PH))
	return s.publisher.PublishMessageQos(1, false, evt)
}
