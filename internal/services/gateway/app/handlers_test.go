package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/agricult/internal/model/entities"
	"github.com/LeonardoBeccarini/agricult/internal/model/messages"
	"github.com/LeonardoBeccarini/agricult/internal/observability"
	"github.com/LeonardoBeccarini/agricult/internal/services/alerting"
	"github.com/LeonardoBeccarini/agricult/internal/services/analytics"
)

type fakeSink struct {
	events []messages.OutlierAlertEvent
	err    error
}

func (s *fakeSink) Publish(_ context.Context, evt messages.OutlierAlertEvent) error {
	s.events = append(s.events, evt)
	return s.err
}

// stallingSink never acks; it returns only when ctx is done.
type stallingSink struct{}

func (stallingSink) Publish(ctx context.Context, _ messages.OutlierAlertEvent) error {
	<-ctx.Done()
	return ctx.Err()
}

type testGateway struct {
	handler http.Handler
	sink    *fakeSink
	metrics *observability.Metrics
}

func newTestGateway(t *testing.T, influx ReadingSource) *testGateway {
	t.Helper()
	clk := clockwork.NewFakeClockAt(time.UnixMilli(1717243200000).UTC())
	m := observability.NewMetricsForTesting()
	sink := &fakeSink{}
	g := NewGateway(Config{
		History:        NewHistory(influx, NewDemoSource(clk), BreakerSettings{}, time.Second, zap.NewNop(), m),
		Alerts:         sink,
		Clock:          clk,
		Logger:         zap.NewNop(),
		Metrics:        m,
		MetricsHandler: http.NotFoundHandler(),
	})
	return &testGateway{handler: g.Handler(), sink: sink, metrics: m}
}

func (tg *testGateway) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	tg.handler.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func TestSensorData_InRange(t *testing.T) {
	tg := newTestGateway(t, nil)
	rec, out := tg.do(t, http.MethodPost, "/api/sensor-data",
		`{"userId":"u1","farmId":"farm1","temperature":20,"humidity":50,"soilMoisture":30,"ph":7}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "mock-data-1717243200000", out["dataId"])
	assert.Equal(t, false, out["isOutlier"])
	assert.Equal(t, []any{}, out["outlierReasons"])
	assert.Empty(t, tg.sink.events)
}

func TestSensorData_OutlierPublishesAlert(t *testing.T) {
	tg := newTestGateway(t, nil)
	rec, out := tg.do(t, http.MethodPost, "/api/sensor-data",
		`{"userId":"u1","farmId":"farm1","sensorId":"s1","temperature":35.2,"humidity":90,"soilMoisture":25,"ph":7.8}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["isOutlier"])
	assert.Equal(t, []any{
		"Temperature 35.2°C is outside normal range (15-35°C)",
		"Humidity 90% is outside normal range (40-80%)",
		"pH 7.8 is outside normal range (6.0-7.5)",
	}, out["outlierReasons"])

	require.Len(t, tg.sink.events, 1)
	evt := tg.sink.events[0]
	assert.Equal(t, "gateway", evt.Source)
	assert.Equal(t, "farm1", evt.FarmID)
	assert.Equal(t, "s1", evt.SensorID)
	assert.Len(t, evt.Reasons, 3)
	assert.Equal(t, 1.0, testutil.ToFloat64(tg.metrics.AlertsPublished.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(tg.metrics.Outliers.WithLabelValues("ph", "gateway")))
}

func TestSensorData_PublishFailureDoesNotFailRequest(t *testing.T) {
	tg := newTestGateway(t, nil)
	tg.sink.err = errors.New("broker down")

	rec, out := tg.do(t, http.MethodPost, "/api/sensor-data",
		`{"temperature":40,"humidity":50,"soilMoisture":30,"ph":7}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["isOutlier"])
	assert.Equal(t, 1.0, testutil.ToFloat64(tg.metrics.AlertsPublished.WithLabelValues("error")))
}

func TestSensorData_StalledBrokerDoesNotHangRequest(t *testing.T) {
	m := observability.NewMetricsForTesting()
	g := NewGateway(Config{
		HTTPTimeout:    50 * time.Millisecond,
		Alerts:         stallingSink{},
		Clock:          clockwork.NewFakeClock(),
		Metrics:        m,
		MetricsHandler: http.NotFoundHandler(),
	})

	req := httptest.NewRequest(http.MethodPost, "/api/sensor-data",
		strings.NewReader(`{"temperature":40,"humidity":50,"soilMoisture":30,"ph":7}`))
	rec := httptest.NewRecorder()
	start := time.Now()
	g.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AlertsPublished.WithLabelValues("error")))
}

func TestPublishAlert_InRangeReportIsCounted(t *testing.T) {
	sink := &fakeSink{}
	m := observability.NewMetricsForTesting()
	g := NewGateway(Config{Alerts: sink, Metrics: m, MetricsHandler: http.NotFoundHandler()})

	r := entities.SensorReading{Temperature: 20, Humidity: 50, SoilMoisture: 30, PH: 7}
	g.publishAlert(context.Background(), alerting.Source{Name: "gateway"}, r, analytics.EvaluateOutliers(r))

	assert.Empty(t, sink.events)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AlertsPublished.WithLabelValues("error")))
}

func TestSensorData_NumericStrings(t *testing.T) {
	tg := newTestGateway(t, nil)
	rec, out := tg.do(t, http.MethodPost, "/api/sensor-data",
		`{"temperature":"28.5","humidity":"65","soilMoisture":"45","ph":"6.8"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, out["isOutlier"])
}

func TestSensorData_BadInput(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"malformed", `{"temperature":`, "invalid JSON body"},
		{"missing field", `{"temperature":20,"humidity":50,"soilMoisture":30}`, "PH is required"},
		{"not a number", `{"temperature":"hot","humidity":50,"soilMoisture":30,"ph":7}`, "not a number"},
		{"boolean", `{"temperature":true,"humidity":50,"soilMoisture":30,"ph":7}`, "not a number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tg := newTestGateway(t, nil)
			rec, out := tg.do(t, http.MethodPost, "/api/sensor-data", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, false, out["success"])
			assert.Contains(t, out["message"], tt.want)
		})
	}
}

func TestSensorHistory(t *testing.T) {
	tg := newTestGateway(t, nil)

	rec, out := tg.do(t, http.MethodGet, "/api/sensor-data", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "User ID is required", out["message"])

	rec, out = tg.do(t, http.MethodGet, "/api/sensor-data?userId=u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, SourceDemo, rec.Header().Get("X-Data-Source"))
	data := out["data"].([]any)
	require.Len(t, data, 2)
	second := data[1].(map[string]any)
	assert.Equal(t, 35.2, second["temperature"])
	assert.Equal(t, true, second["isOutlier"])

	rec, _ = tg.do(t, http.MethodGet, "/api/sensor-data?userId=u1&source=redis", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = tg.do(t, http.MethodGet, "/api/sensor-data?userId=u1&limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = tg.do(t, http.MethodGet, "/api/sensor-data?userId=u1&source=influx", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSensorHistory_FromInflux(t *testing.T) {
	tg := newTestGateway(t, &fakeSource{rows: []StoredReading{{ID: "s1-1", UserID: "u1", Temperature: 21}}})
	rec, out := tg.do(t, http.MethodGet, "/api/sensor-data?userId=u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, SourceInflux, rec.Header().Get("X-Data-Source"))
	assert.Len(t, out["data"], 1)
}

func TestYieldPrediction(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		yield      float64
		confidence float64
	}{
		{"defaults", `{"cropType":"rice"}`, 12.29, 80},
		{"unknown crop", `{"cropType":"quinoa","factors":{}}`, 8.19, 80},
		{"all ones", `{"cropType":"Tomato","factors":{"weather":1,"soil":1,"irrigation":1,"fertilizer":1}}`, 40, 100},
		{"explicit zero", `{"cropType":"corn","factors":{"soil":0}}`, 0, 60},
		{"string factor", `{"cropType":"wheat","factors":{"weather":"0.5"}}`, 6.4, 73},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tg := newTestGateway(t, nil)
			rec, out := tg.do(t, http.MethodPost, "/api/yield-prediction", tt.body)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, "mock-prediction-1717243200000", out["predictionId"])
			pred := out["prediction"].(map[string]any)
			assert.Equal(t, tt.yield, pred["predictedYield"])
			assert.Equal(t, tt.confidence, pred["confidence"])
		})
	}
}

func TestYieldPrediction_Rejects(t *testing.T) {
	tg := newTestGateway(t, nil)

	rec, out := tg.do(t, http.MethodPost, "/api/yield-prediction", `{"factors":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, out["message"], "CropType is required")

	rec, out = tg.do(t, http.MethodPost, "/api/yield-prediction", `{"cropType":"rice","factors":{"soil":1.5}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, out["message"], "within [0,1]")
}

func TestDiseaseDetection(t *testing.T) {
	tg := newTestGateway(t, nil)
	rec, out := tg.do(t, http.MethodPost, "/api/disease-detection",
		`{"cropType":"rice","symptoms":["spots","wilting"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "mock-disease-1717243200000", out["diseaseId"])
	det := out["detection"].(map[string]any)
	assert.Equal(t, "blast", det["diseaseType"])
	assert.Equal(t, "medium", det["severity"])
	assert.Len(t, det["recommendations"], 3)

	rec, out = tg.do(t, http.MethodPost, "/api/disease-detection", `{"cropType":"banana","symptoms":"spots"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	det = out["detection"].(map[string]any)
	assert.Equal(t, "unknown_disease", det["diseaseType"])
	assert.Equal(t, "low", det["severity"])
	assert.Equal(t, []any{"Consult agricultural expert"}, det["recommendations"])

	rec, _ = tg.do(t, http.MethodPost, "/api/disease-detection", `{"cropType":"rice","imageUrl":"not a url"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatbotQuery(t *testing.T) {
	tg := newTestGateway(t, nil)
	rec, out := tg.do(t, http.MethodPost, "/api/chatbot/query", `{"query":"Will it rain next week?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "weather", out["category"])
	assert.Equal(t, "en", out["language"])
	assert.Contains(t, out["response"], "moderate rainfall")
	assert.Equal(t, "mock-query-1717243200000", out["queryId"])

	_, out = tg.do(t, http.MethodPost, "/api/chatbot/query", `{"query":"hello","category":"soil","language":"hi"}`)
	assert.Equal(t, "soil", out["category"])
	assert.Equal(t, "hi", out["language"])
}

func TestLogin(t *testing.T) {
	tg := newTestGateway(t, nil)
	rec, out := tg.do(t, http.MethodPost, "/api/auth/login", `{"email":"a@b.c","password":"x"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Login successful", out["message"])
	user := out["user"].(map[string]any)
	assert.Equal(t, "demo-user", user["id"])
	assert.Equal(t, "a@b.c", user["email"])

	rec, _ = tg.do(t, http.MethodPost, "/api/auth/login", `{"email":"a@b.c"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = tg.do(t, http.MethodPost, "/api/auth/login", `nope`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegister(t *testing.T) {
	tg := newTestGateway(t, nil)
	rec, out := tg.do(t, http.MethodPost, "/api/auth/register",
		`{"email":"a@b.c","password":"x","name":"A","farmDetails":{"size":3}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "User registered successfully", out["message"])
	assert.Equal(t, "demo-user-1717243200000", out["userId"])

	rec, _ = tg.do(t, http.MethodPost, "/api/auth/register", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRoutingAndMetrics(t *testing.T) {
	tg := newTestGateway(t, nil)

	rec, _ := tg.do(t, http.MethodGet, "/api/yield-prediction", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec, _ = tg.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	tg.do(t, http.MethodPost, "/api/chatbot/query", `{"query":"soil"}`)
	assert.Equal(t, 1.0, testutil.ToFloat64(
		tg.metrics.HTTPRequests.WithLabelValues("POST /api/chatbot/query", "200")))
}
