package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "INFLUX_URL", "RABBITMQ_HOST", "TIMEOUT_MS", "SHUTDOWN_TIMEOUT"} {
		t.Setenv(k, "")
	}
	// t.Setenv leaves the variable set but empty; an explicit empty value disables the dependency
	cfg := loadConfig()
	assert.Equal(t, "", cfg.InfluxURL)
	assert.Equal(t, "", cfg.RabbitHost)
	assert.Equal(t, 3*time.Second, cfg.timeout())
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "event/outlier/{farm}/{sensor}", cfg.AlertTopicTmpl)
	assert.Equal(t, 3, cfg.CBFails)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("TIMEOUT_MS", "1500")
	t.Setenv("SHUTDOWN_TIMEOUT", "2s")
	t.Setenv("INFLUX_URL", "http://influxdb:8086")
	t.Setenv("CB_FAILS", "not-a-number")

	cfg := loadConfig()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 1500*time.Millisecond, cfg.timeout())
	assert.Equal(t, 2*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "http://influxdb:8086", cfg.InfluxURL)
	assert.Equal(t, 3, cfg.CBFails)
}
