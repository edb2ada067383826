package main

import (
	"time"

	"github.com/LeonardoBeccarini/agricult/internal/config"
	"github.com/LeonardoBeccarini/agricult/internal/services/alerting"
	"github.com/LeonardoBeccarini/agricult/internal/services/monitor"
	"github.com/LeonardoBeccarini/agricult/pkg/rabbitmq"
)

type Config struct {
	Rabbit rabbitmq.RabbitMQConfig
	Topic  string
	Alerts string

	DedupTTL time.Duration
	DedupMax int

	HTTPPort  int
	LogLevel  string
	LogFormat string
}

func loadConfig() Config {
	return Config{
		Rabbit: rabbitmq.RabbitMQConfig{
			Host:     config.String("RABBITMQ_HOST", "localhost"),
			Port:     config.Int("RABBITMQ_PORT", 1883),
			User:     config.String("RABBITMQ_USER", "guest"),
			Password: config.String("RABBITMQ_PASSWORD", "guest"),
			ClientID: config.String("HOSTNAME", "agricult-monitor"),
		},
		Topic:  config.String("SENSOR_TOPIC", monitor.DefaultTopic),
		Alerts: config.String("ALERT_TOPIC_TMPL", alerting.DefaultTopicTemplate),

		DedupTTL: time.Duration(config.Int("DEDUP_TTL_SEC", 600)) * time.Second,
		DedupMax: config.Int("DEDUP_MAX", 20000),

		HTTPPort:  config.Int("HTTP_PORT", 8080),
		LogLevel:  config.String("LOG_LEVEL", "info"),
		LogFormat: config.String("LOG_FORMAT", "json"),
	}
}
