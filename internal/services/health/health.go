// Package health reports the state of optional runtime dependencies (MQTT
// broker, InfluxDB) over HTTP (/healthz, /readyz) and the gRPC health protocol.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

var ErrDisconnected = errors.New("not connected")

// Check probes one dependency. Required checks gate readiness.
type Check struct {
	Name     string
	Required bool
	Probe    func(ctx context.Context) error
}

// MQTTCheck reports the client's connection state.
func MQTTCheck(client mqtt.Client, required bool) Check {
	return Check{Name: "mqtt", Required: required, Probe: func(context.Context) error {
		if client == nil || !client.IsConnectionOpen() {
			return ErrDisconnected
		}
		return nil
	}}
}

// InfluxCheck pings the InfluxDB server.
func InfluxCheck(client influxdb2.Client, required bool) Check {
	return Check{Name: "influx", Required: required, Probe: func(ctx context.Context) error {
		if client == nil {
			return ErrDisconnected
		}
		ok, err := client.Ping(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return ErrDisconnected
		}
		return nil
	}}
}

type Reporter struct {
	checks  []Check
	timeout time.Duration
	logger  *zap.Logger
}

func NewReporter(logger *zap.Logger, checks ...Check) *Reporter {
	return &Reporter{checks: checks, timeout: 2 * time.Second, logger: logger}
}

// Result is the outcome of running every check once.
type Result struct {
	Status string            `json:"status"` // ok | degraded | down
	Ready  bool              `json:"ready"`
	Deps   map[string]string `json:"dependencies,omitempty"`
}

func (r *Reporter) Run(ctx context.Context) Result {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res := Result{Status: "ok", Ready: true, Deps: map[string]string{}}
	failed := 0
	for _, c := range r.checks {
		if err := c.Probe(ctx); err != nil {
			failed++
			res.Deps[c.Name] = err.Error()
			if c.Required {
				res.Ready = false
			}
			continue
		}
		res.Deps[c.Name] = "ok"
	}

	switch {
	case failed == 0:
	case failed == len(r.checks):
		res.Status = "down"
	default:
		res.Status = "degraded"
	}
	return res
}

// HealthzHandler always answers 200; the body says how degraded we are.
func (r *Reporter) HealthzHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, r.Run(req.Context()))
	})
}

// ReadyzHandler answers 503 when a required dependency is failing.
func (r *Reporter) ReadyzHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		res := r.Run(req.Context())
		status := http.StatusOK
		if !res.Ready {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, res)
	})
}

// NewGRPCServer returns a gRPC health server seeded with the current state.
func (r *Reporter) NewGRPCServer(ctx context.Context, service string) *health.Server {
	hs := health.NewServer()
	r.Publish(ctx, hs, service)
	return hs
}

// Publish runs the checks and mirrors them into hs: the overall service plus
// one entry per dependency named "<service>.<dep>".
func (r *Reporter) Publish(ctx context.Context, hs *health.Server, service string) {
	res := r.Run(ctx)

	overall := healthpb.HealthCheckResponse_SERVING
	if !res.Ready {
		overall = healthpb.HealthCheckResponse_NOT_SERVING
	}
	hs.SetServingStatus("", overall)
	hs.SetServingStatus(service, overall)

	names := make([]string, 0, len(res.Deps))
	for n := range res.Deps {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		st := healthpb.HealthCheckResponse_SERVING
		if res.Deps[n] != "ok" {
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
		hs.SetServingStatus(service+"."+n, st)
	}
}

// Watch refreshes hs every interval until ctx is done, then shuts it down.
func (r *Reporter) Watch(ctx context.Context, hs *health.Server, service string, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C:
			r.Publish(ctx, hs, service)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
