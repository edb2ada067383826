package rabbitmq

import (
	"context"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MessageHandler processes one message received on a subscription.
type MessageHandler func(topic string, message mqtt.Message) error

// IConsumer subscribes and dispatches to an injected handler.
type IConsumer interface {
	ConsumeMessage(ctx context.Context) error
	SetHandler(handler MessageHandler)
}

// Consumer holds the client and topic filter for one subscription
type Consumer struct {
	client  mqtt.Client
	handler MessageHandler
	topic   string
	logger  *zap.Logger
}

func NewConsumer(client mqtt.Client, topic string, handler MessageHandler, logger *zap.Logger) *Consumer {
	return &Consumer{client: client, topic: topic, handler: handler, logger: logger}
}

func (c *Consumer) SetHandler(handler MessageHandler) {
	c.handler = handler
}

// QosFor returns 1 for topics whose messages must not be lost.
func QosFor(topic string) byte {
	t := strings.TrimSpace(topic)
	if strings.HasPrefix(t, "sensor/reading") || strings.HasPrefix(t, "event/outlier") {
		return 1
	}
	return 0
}

// ConsumeMessage subscribes and blocks until ctx is cancelled.
func (c *Consumer) ConsumeMessage(ctx context.Context) error {
	token := c.client.Subscribe(c.topic, QosFor(c.topic), func(_ mqtt.Client, message mqtt.Message) {
		if c.handler == nil {
			c.logger.Warn("no handler set", zap.String("topic", c.topic))
			return
		}
		if err := c.handler(c.topic, message); err != nil {
			c.logger.Error("handle message", zap.String("topic", message.Topic()), zap.Error(err))
		}
	})
	if token.Wait() && token.Error() != nil {
		return token.Error()
	}
	c.logger.Info("subscribed", zap.String("topic", c.topic))

	<-ctx.Done()

	c.client.Unsubscribe(c.topic).Wait()
	return nil
}
