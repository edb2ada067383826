package messages

import (
	"time"

	"github.com/LeonardoBeccarini/agricult/internal/model/entities"
)

// SensorReadingEvent is published by field sensors on sensor/reading/{farm}/{sensor}.
type SensorReadingEvent struct {
	UserID    string                 `json:"user_id,omitempty"`
	FarmID    string                 `json:"farm_id"`
	SensorID  string                 `json:"sensor_id"`
	Reading   entities.SensorReading `json:"reading"`
	Timestamp time.Time              `json:"timestamp"`
}
