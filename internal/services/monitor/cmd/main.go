package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/agricult/internal/observability"
	"github.com/LeonardoBeccarini/agricult/internal/services/alerting"
	"github.com/LeonardoBeccarini/agricult/internal/services/health"
	"github.com/LeonardoBeccarini/agricult/internal/services/monitor"
	"github.com/LeonardoBeccarini/agricult/pkg/dedup"
	"github.com/LeonardoBeccarini/agricult/pkg/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "monitor: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := loadConfig()

	logger, err := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()
	metrics := observability.NewMetrics()

	// === MQTT (required) ===
	client, err := rabbitmq.NewRabbitMQConn(ctx, &cfg.Rabbit, logger)
	if err != nil {
		return fmt.Errorf("mqtt connection: %w", err)
	}
	defer rabbitmq.CloseRabbitMQConn(client, logger)
	checks := []health.Check{health.MQTTCheck(client, true)}

	svc := monitor.NewService(monitor.Config{
		Consumer: rabbitmq.NewConsumer(client, cfg.Topic, nil, logger),
		Deduper:  dedup.NewWithClock(cfg.DedupTTL, cfg.DedupMax, clock),
		Alerts:   alerting.NewMQTTPublisher(rabbitmq.NewPublisherFactory(client, logger), cfg.Alerts),
		Clock:    clock,
		Logger:   logger,
		Metrics:  metrics,
	})

	// === HTTP ===
	reporter := health.NewReporter(logger, checks...)
	mux := http.NewServeMux()
	mux.Handle("GET /healthz", reporter.HealthzHandler())
	mux.Handle("GET /readyz", reporter.ReadyzHandler())
	mux.Handle("GET /metrics", promhttp.Handler())

	hs := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("monitor: HTTP listening", zap.Int("port", cfg.HTTPPort))
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	// === Consumer (blocks until signal) ===
	logger.Info("monitor: consuming", zap.String("topic", cfg.Topic))
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("consume %s: %w", cfg.Topic, err)
	}

	logger.Info("monitor: shutting down")
	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return hs.Shutdown(shCtx)
}
