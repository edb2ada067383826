package app

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/agricult/internal/observability"
	"github.com/LeonardoBeccarini/agricult/internal/services/alerting"
	"github.com/LeonardoBeccarini/agricult/internal/services/health"
)

type Config struct {
	HTTPTimeout  time.Duration
	MaxBodyBytes int64
	HistoryLimit int

	History *History
	Alerts  alerting.Sink // nil when MQTT is not configured
	Health  *health.Reporter

	Clock   clockwork.Clock
	Logger  *zap.Logger
	Metrics *observability.Metrics

	// MetricsHandler overrides the default promhttp handler (tests use a private registry).
	MetricsHandler http.Handler
}

type Gateway struct {
	cfg      Config
	validate *validator.Validate
}

func NewGateway(cfg Config) *Gateway {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NewMetricsForTesting()
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 3 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 20
	}
	if cfg.History == nil {
		cfg.History = NewHistory(nil, NewDemoSource(cfg.Clock), BreakerSettings{}, cfg.HTTPTimeout, cfg.Logger, cfg.Metrics)
	}
	if cfg.Health == nil {
		cfg.Health = health.NewReporter(cfg.Logger)
	}
	if cfg.MetricsHandler == nil {
		cfg.MetricsHandler = promhttp.Handler()
	}
	return &Gateway{cfg: cfg, validate: validator.New()}
}

// Handler returns the gateway routes wrapped with request metrics and logging.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/sensor-data", g.HandleSensorData)
	mux.HandleFunc("GET /api/sensor-data", g.HandleSensorHistory)
	mux.HandleFunc("POST /api/yield-prediction", g.HandleYieldPrediction)
	mux.HandleFunc("POST /api/disease-detection", g.HandleDiseaseDetection)
	mux.HandleFunc("POST /api/chatbot/query", g.HandleChatbotQuery)
	mux.HandleFunc("POST /api/auth/login", g.HandleLogin)
	mux.HandleFunc("POST /api/auth/register", g.HandleRegister)

	mux.Handle("GET /healthz", g.cfg.Health.HealthzHandler())
	mux.Handle("GET /readyz", g.cfg.Health.ReadyzHandler())
	mux.Handle("GET /metrics", g.cfg.MetricsHandler)

	return g.instrument(mux)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (g *Gateway) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := g.cfg.Clock.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		g.cfg.Metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		g.cfg.Logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", g.cfg.Clock.Since(start)))
	})
}
