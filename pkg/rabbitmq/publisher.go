package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// IPublisher publishes payloads on a single topic.
type IPublisher interface {
	PublishMessage(message interface{}) error
	PublishMessageQos(qos byte, retained bool, message interface{}) error
	PublishMessageContext(ctx context.Context, qos byte, retained bool, message interface{}) error
	Close()
}

// PublisherFactory builds a publisher for a topic computed at publish time,
// e.g. event/outlier/{farm}/{sensor}.
type PublisherFactory func(topic string) IPublisher

// Publisher holds the client and topic for publishing messages
type Publisher struct {
	client mqtt.Client
	topic  string
	logger *zap.Logger
}

func NewPublisher(client mqtt.Client, topic string, logger *zap.Logger) *Publisher {
	return &Publisher{client: client, topic: topic, logger: logger}
}

// NewPublisherFactory shares one client across per-topic publishers.
func NewPublisherFactory(client mqtt.Client, logger *zap.Logger) PublisherFactory {
	return func(topic string) IPublisher {
		return NewPublisher(client, topic, logger)
	}
}

// PublishMessage publishes at QoS 0.
func (p *Publisher) PublishMessage(message interface{}) error {
	return p.PublishMessageQos(0, false, message)
}

// PublishMessageQos accepts a string, a byte slice, or any JSON-encodable value.
func (p *Publisher) PublishMessageQos(qos byte, retained bool, message interface{}) error {
	return p.PublishMessageContext(context.Background(), qos, retained, message)
}

// PublishMessageContext stops waiting for the broker ack when ctx is done.
// The message may still be delivered later by the client.
func (p *Publisher) PublishMessageContext(ctx context.Context, qos byte, retained bool, message interface{}) error {
	payload, err := encode(message)
	if err != nil {
		return err
	}

	token := p.client.Publish(p.topic, qos, retained, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("publish to %s: %w", p.topic, ctx.Err())
	}
	if token.Error() != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, token.Error())
	}

	p.logger.Debug("message published", zap.String("topic", p.topic), zap.Int("bytes", len(payload)))
	return nil
}

// Close disconnects the shared client; only the owner of the client should call it.
func (p *Publisher) Close() {
	CloseRabbitMQConn(p.client, p.logger)
}

func encode(message interface{}) ([]byte, error) {
	switch m := message.(type) {
	case string:
		return []byte(m), nil
	case []byte:
		return m, nil
	default:
		b, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("encode message: %w", err)
		}
		return b, nil
	}
}
