package main

import (
	"time"

	"github.com/LeonardoBeccarini/agricult/internal/config"
)

type Config struct {
	Port            string
	GRPCPort        string
	LogLevel        string
	LogFormat       string
	TimeoutMs       int
	ShutdownTimeout time.Duration
	HistoryLimit    int

	// InfluxDB (history); empty URL disables it
	InfluxURL     string
	InfluxToken   string
	InfluxOrg     string
	InfluxBucket  string
	InfluxMinutes int

	// RabbitMQ MQTT plugin (alerts); empty host disables it
	RabbitHost     string
	RabbitPort     int
	RabbitUser     string
	RabbitPassword string
	ClientID       string
	AlertTopicTmpl string

	// circuit breaker on the Influx history query
	CBFails      int
	CBOpenMs     int
	CBIntervalMs int
}

func loadConfig() Config {
	return Config{
		Port:            config.String("PORT", "5009"),
		GRPCPort:        config.String("GRPC_PORT", "5010"),
		LogLevel:        config.String("LOG_LEVEL", "info"),
		LogFormat:       config.String("LOG_FORMAT", "json"),
		TimeoutMs:       config.Int("TIMEOUT_MS", 3000),
		ShutdownTimeout: config.Duration("SHUTDOWN_TIMEOUT", 10*time.Second),
		HistoryLimit:    config.Int("HISTORY_LIMIT", 20),

		InfluxURL:     config.String("INFLUX_URL", ""),
		InfluxToken:   config.String("INFLUX_TOKEN", ""),
		InfluxOrg:     config.String("INFLUX_ORG", "agricult"),
		InfluxBucket:  config.String("INFLUX_BUCKET", "sensors"),
		InfluxMinutes: config.Int("INFLUX_RANGE_MINUTES", 24*60),

		RabbitHost:     config.String("RABBITMQ_HOST", ""),
		RabbitPort:     config.Int("RABBITMQ_PORT", 1883),
		RabbitUser:     config.String("RABBITMQ_USER", "guest"),
		RabbitPassword: config.String("RABBITMQ_PASSWORD", "guest"),
		ClientID:       config.String("HOSTNAME", "agricult-gateway"),
		AlertTopicTmpl: config.String("ALERT_TOPIC_TMPL", "event/outlier/{farm}/{sensor}"),

		CBFails:      config.Int("CB_FAILS", 3),
		CBOpenMs:     config.Int("CB_OPEN_MS", 30000),
		CBIntervalMs: config.Int("CB_INTERVAL_MS", 60000),
	}
}

func (c Config) timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}
