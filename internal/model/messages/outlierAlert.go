package messages

import (
	"time"

	"github.com/LeonardoBeccarini/agricult/internal/model/entities"
)

// OutlierAlertEvent is published on event/outlier/{farm}/{sensor} whenever a
// reading falls outside the acceptable ranges.
type OutlierAlertEvent struct {
	AlertID   string                 `json:"alert_id"`
	UserID    string                 `json:"user_id,omitempty"`
	FarmID    string                 `json:"farm_id"`
	SensorID  string                 `json:"sensor_id"`
	Reading   entities.SensorReading `json:"reading"`
	Reasons   []string               `json:"reasons"`
	Source    string                 `json:"source"` // "gateway" | "monitor"
	Timestamp time.Time              `json:"timestamp"`
}
