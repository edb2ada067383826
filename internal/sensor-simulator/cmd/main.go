package main

import (
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/agricult/internal/observability"
	sensorSimulator "github.com/LeonardoBeccarini/agricult/internal/sensor-simulator"
	"github.com/LeonardoBeccarini/agricult/pkg/rabbitmq"
)

type options struct {
	userID, farmID, sensorID string
	clientID                 string
	host                     string
	port                     int
	user, password           string
	interval                 time.Duration
	outlierRate              float64
	seed                     int64
	lat, lon                 float64
	soilGrids                bool
	logLevel                 string
}

func newRootCmd() *cobra.Command {
	opts := options{}
	cmd := &cobra.Command{
		Use:   "sensor-sim",
		Short: "Publish simulated field sensor readings on MQTT",
		Long: `sensor-sim publishes one SensorReadingEvent per interval on
sensor/reading/{farm}/{sensor}, occasionally out of range so the monitor
has something to flag.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.userID, "user-id", "demo-user", "owner of the simulated sensor")
	f.StringVar(&opts.farmID, "farm-id", "farm1", "farm identifier")
	f.StringVar(&opts.sensorID, "sensor-id", "sensor1", "unique sensor identifier")
	f.StringVar(&opts.clientID, "client-id", "sensorPublisher1", "MQTT client ID")
	f.StringVar(&opts.host, "broker-host", "localhost", "RabbitMQ MQTT host")
	f.IntVar(&opts.port, "broker-port", 1883, "RabbitMQ MQTT port")
	f.StringVar(&opts.user, "broker-user", "guest", "broker user")
	f.StringVar(&opts.password, "broker-password", "guest", "broker password")
	f.DurationVar(&opts.interval, "interval", 10*time.Second, "publish interval")
	f.Float64Var(&opts.outlierRate, "outlier-rate", 0.05, "chance [0,1] of an out-of-range reading")
	f.Int64Var(&opts.seed, "seed", time.Now().UnixNano(), "random seed")
	f.Float64Var(&opts.lat, "lat", 41.51109, "latitude for the SoilGrids seed")
	f.Float64Var(&opts.lon, "lon", 12.37007, "longitude for the SoilGrids seed")
	f.BoolVar(&opts.soilGrids, "soilgrids", false, "seed soil moisture from SoilGrids at startup")
	f.StringVar(&opts.logLevel, "log-level", "info", "log level")
	return cmd
}

func run(cmd *cobra.Command, opts options) error {
	if opts.interval <= 0 {
		return fmt.Errorf("--interval must be positive, got %s", opts.interval)
	}
	if opts.outlierRate < 0 || opts.outlierRate > 1 || math.IsNaN(opts.outlierRate) {
		return fmt.Errorf("--outlier-rate must be in [0,1], got %g", opts.outlierRate)
	}
	logger, err := observability.NewLogger(opts.logLevel, "console")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := rabbitmq.NewRabbitMQConn(ctx, &rabbitmq.RabbitMQConfig{
		Host:     opts.host,
		Port:     opts.port,
		User:     opts.user,
		Password: opts.password,
		ClientID: opts.clientID,
	}, logger)
	if err != nil {
		return fmt.Errorf("mqtt connection: %w", err)
	}
	defer rabbitmq.CloseRabbitMQConn(client, logger)

	generator := sensorSimulator.NewDataGenerator(opts.seed, opts.outlierRate)
	if opts.soilGrids {
		if err := generator.SeedFromSoilGrids(ctx, opts.lat, opts.lon); err != nil {
			logger.Warn("soilgrids seed failed, using nominal soil moisture", zap.Error(err))
		}
	}

	sensor := sensorSimulator.Sensor{UserID: opts.userID, FarmID: opts.farmID, SensorID: opts.sensorID}
	publisher := rabbitmq.NewPublisher(client, sensor.Topic(), logger)
	sim := sensorSimulator.NewSensorSimulator(publisher, generator, sensor, clockwork.NewRealClock(), logger)

	logger.Info("sensor simulator running", zap.String("topic", sensor.Topic()), zap.Duration("interval", opts.interval))
	sim.Start(ctx, opts.interval)
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
