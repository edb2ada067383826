// Package alerting turns outlier reports into OutlierAlertEvents and
// publishes them on MQTT.
package alerting

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/LeonardoBeccarini/agricult/internal/model/entities"
	"github.com/LeonardoBeccarini/agricult/internal/model/messages"
	"github.com/LeonardoBeccarini/agricult/internal/services/analytics"
	"github.com/LeonardoBeccarini/agricult/pkg/rabbitmq"
)

const DefaultTopicTemplate = "event/outlier/{farm}/{sensor}"

// ErrNotOutlier is returned when asked to alert on an in-range reading.
var ErrNotOutlier = errors.New("reading is within range")

// Sink receives outlier alerts.
type Sink interface {
	Publish(ctx context.Context, evt messages.OutlierAlertEvent) error
}

// Source identifies who raised an alert.
type Source struct {
	Name     string // "gateway" | "monitor"
	UserID   string
	FarmID   string
	SensorID string
}

// NewAlert builds the event for an outlier report.
func NewAlert(clock clockwork.Clock, src Source, r entities.SensorReading, rep analytics.OutlierReport) (messages.OutlierAlertEvent, error) {
	if !rep.IsOutlier() {
		return messages.OutlierAlertEvent{}, ErrNotOutlier
	}
	reasons := make([]string, len(rep.Reasons))
	copy(reasons, rep.Reasons)

	return messages.OutlierAlertEvent{
		AlertID:   uuid.NewString(),
		UserID:    src.UserID,
		FarmID:    src.FarmID,
		SensorID:  src.SensorID,
		Reading:   r,
		Reasons:   reasons,
		Source:    src.Name,
		Timestamp: clock.Now().UTC(),
	}, nil
}

// MQTTPublisher publishes alerts at QoS 1 on a per farm/sensor topic.
type MQTTPublisher struct {
	factory   rabbitmq.PublisherFactory
	topicTmpl string
}

func NewMQTTPublisher(factory rabbitmq.PublisherFactory, topicTmpl string) *MQTTPublisher {
	if strings.TrimSpace(topicTmpl) == "" {
		topicTmpl = DefaultTopicTemplate
	}
	return &MQTTPublisher{factory: factory, topicTmpl: topicTmpl}
}

// Publish returns once the broker acks or ctx is done, whichever comes first.
func (p *MQTTPublisher) Publish(ctx context.Context, evt messages.OutlierAlertEvent) error {
	topic := FormatTopic(p.topicTmpl, evt.FarmID, evt.SensorID)
	return p.factory(topic).PublishMessageContext(ctx, 1, false, evt)
}

// FormatTopic fills {farm} and {sensor}; blanks become "unknown" so the topic
// never has empty levels.
func FormatTopic(tmpl, farmID, sensorID string) string {
	return strings.NewReplacer(
		"{farm}", orUnknown(farmID),
		"{sensor}", orUnknown(sensorID),
	).Replace(tmpl)
}

func orUnknown(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	// MQTT wildcards and separators are not allowed inside a topic level.
	return strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(s)
}
