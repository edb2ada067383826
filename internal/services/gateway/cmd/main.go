package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/LeonardoBeccarini/agricult/internal/observability"
	"github.com/LeonardoBeccarini/agricult/internal/services/alerting"
	"github.com/LeonardoBeccarini/agricult/internal/services/gateway/app"
	"github.com/LeonardoBeccarini/agricult/internal/services/health"
	"github.com/LeonardoBeccarini/agricult/pkg/rabbitmq"
)

const grpcServiceName = "agricult.Gateway"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gateway: %v\n", err)
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
	var checks []health.Check

	// === InfluxDB (history) ===
	var influxSrc app.ReadingSource
	if cfg.InfluxURL != "" {
		influx := influxdb2.NewClient(cfg.InfluxURL, cfg.InfluxToken)
		defer influx.Close()
		influxSrc = app.NewInfluxSource(influx.QueryAPI(cfg.InfluxOrg), cfg.InfluxBucket, cfg.InfluxMinutes)
		checks = append(checks, health.InfluxCheck(influx, false))
		logger.Info("history: influx enabled", zap.String("url", cfg.InfluxURL), zap.String("bucket", cfg.InfluxBucket))
	} else {
		logger.Info("history: INFLUX_URL empty, serving demo rows")
	}

	// === MQTT (alerts) ===
	var alerts alerting.Sink
	if cfg.RabbitHost != "" {
		client, err := rabbitmq.NewRabbitMQConn(ctx, &rabbitmq.RabbitMQConfig{
			Host:           cfg.RabbitHost,
			Port:           cfg.RabbitPort,
			User:           cfg.RabbitUser,
			Password:       cfg.RabbitPassword,
			ClientID:       cfg.ClientID,
			ConnectTimeout: cfg.timeout() * 3,
		}, logger)
		if err != nil {
			// alerts are best effort: the API still works without a broker
			logger.Warn("mqtt unavailable, outlier alerts disabled", zap.Error(err))
		} else {
			defer rabbitmq.CloseRabbitMQConn(client, logger)
			alerts = alerting.NewMQTTPublisher(rabbitmq.NewPublisherFactory(client, logger), cfg.AlertTopicTmpl)
			checks = append(checks, health.MQTTCheck(client, false))
		}
	}

	reporter := health.NewReporter(logger, checks...)
	history := app.NewHistory(influxSrc, app.NewDemoSource(clock), app.BreakerSettings{
		Failures: cfg.CBFails,
		OpenFor:  time.Duration(cfg.CBOpenMs) * time.Millisecond,
		Interval: time.Duration(cfg.CBIntervalMs) * time.Millisecond,
	}, cfg.timeout(), logger, metrics)

	gw := app.NewGateway(app.Config{
		HTTPTimeout:  cfg.timeout(),
		HistoryLimit: cfg.HistoryLimit,
		History:      history,
		Alerts:       alerts,
		Health:       reporter,
		Clock:        clock,
		Logger:       logger,
		Metrics:      metrics,
	})

	// === gRPC health ===
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	grpcServer := grpc.NewServer()
	hs := reporter.NewGRPCServer(ctx, grpcServiceName)
	healthpb.RegisterHealthServer(grpcServer, hs)

	// === HTTP ===
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		reporter.Watch(gctx, hs, grpcServiceName, 10*time.Second)
		return nil
	})
	g.Go(func() error {
		logger.Info("gateway: gRPC health listening", zap.String("addr", lis.Addr().String()))
		if err := grpcServer.Serve(lis); err != nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("gateway: HTTP listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("gateway: shutting down")
		shCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		grpcServer.GracefulStop()
		if err := srv.Shutdown(shCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}
