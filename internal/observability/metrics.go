package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "agricult"

// Metrics holds the Prometheus collectors shared by the gateway and the monitor.
type Metrics struct {
	HTTPRequests *prometheus.CounterVec // labels: route, status

	// Outliers counts out-of-range fields. labels: field, source={gateway,monitor}
	Outliers       *prometheus.CounterVec
	ReadingsTotal  *prometheus.CounterVec // labels: source
	PredictedYield *prometheus.HistogramVec

	AlertsPublished *prometheus.CounterVec // labels: outcome={ok,error}
	HistorySource   *prometheus.CounterVec // labels: source={influx,demo}
	DuplicatesDrop  prometheus.Counter
}

func newMetrics() *Metrics {
	return &Metrics{
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "status"}),
		Outliers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_outliers_total",
			Help:      "Out-of-range sensor fields detected.",
		}, []string{"field", "source"}),
		ReadingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_readings_total",
			Help:      "Sensor readings evaluated.",
		}, []string{"source"}),
		PredictedYield: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "predicted_yield",
			Help:      "Predicted yield per request, by crop.",
			Buckets:   []float64{1, 2.5, 5, 10, 15, 20, 25, 30, 40},
		}, []string{"crop"}),
		AlertsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outlier_alerts_published_total",
			Help:      "Outlier alerts published to MQTT by outcome.",
		}, []string{"outcome"}),
		HistorySource: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_source_total",
			Help:      "Readings history responses by the source that served them.",
		}, []string{"source"}),
		DuplicatesDrop: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mqtt_duplicates_dropped_total",
			Help:      "Redelivered MQTT payloads dropped by the deduper.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.HTTPRequests, m.Outliers, m.ReadingsTotal, m.PredictedYield,
		m.AlertsPublished, m.HistorySource, m.DuplicatesDrop,
	}
}

// NewMetrics creates and registers all metrics with the default registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting returns unregistered metrics so tests can build many.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

// ObserveOutliers counts one evaluated reading and each flagged field.
func (m *Metrics) ObserveOutliers(source string, fields []string) {
	m.ReadingsTotal.WithLabelValues(source).Inc()
	for _, f := range fields {
		m.Outliers.WithLabelValues(f, source).Inc()
	}
}
