package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/agricult/internal/model/entities"
	"github.com/LeonardoBeccarini/agricult/internal/services/alerting"
	"github.com/LeonardoBeccarini/agricult/internal/services/analytics"
)

// RequestError marks a client mistake; handlers answer 400 with its message.
type RequestError struct {
	Msg string
	Err error
}

func (e *RequestError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *RequestError) Unwrap() error { return e.Err }

func badRequest(msg string, err error) error { return &RequestError{Msg: msg, Err: err} }

// decodeJSON reads one JSON object into dst and runs struct validation.
func (g *Gateway) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, g.cfg.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return badRequest("invalid JSON body", err)
	}
	if err := g.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return badRequest("invalid request", describe(verrs))
		}
		return badRequest("invalid request", err)
	}
	return nil
}

func describe(verrs validator.ValidationErrors) error {
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fmt.Sprintf("%s is required", fe.Field()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return errors.New(strings.Join(parts, ", "))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (g *Gateway) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Success: false, Message: reqErr.Error()})
		return
	}
	g.cfg.Logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Success: false, Message: "internal server error"})
}

func (g *Gateway) mockID(prefix string) string {
	return prefix + strconv.FormatInt(g.cfg.Clock.Now().UnixMilli(), 10)
}

// ---------- sensor data ----------

func (g *Gateway) HandleSensorData(w http.ResponseWriter, r *http.Request) {
	var req SensorDataRequest
	if err := g.decodeJSON(w, r, &req); err != nil {
		g.writeError(w, r, err)
		return
	}
	reading := req.Reading()
	if err := reading.Validate(); err != nil {
		g.writeError(w, r, badRequest("invalid reading", err))
		return
	}

	report := analytics.EvaluateOutliers(reading)
	g.cfg.Metrics.ObserveOutliers("gateway", report.Fields)

	if report.IsOutlier() {
		g.publishAlert(r.Context(), alerting.Source{
			Name: "gateway", UserID: req.UserID, FarmID: req.FarmID, SensorID: req.SensorID,
		}, reading, report)
	}

	writeJSON(w, http.StatusOK, SensorDataResponse{
		Success:        true,
		DataID:         g.mockID("mock-data-"),
		IsOutlier:      report.IsOutlier(),
		OutlierReasons: report.Reasons,
	})
}

// publishAlert never fails the request: without MQTT, or on error, it only logs.
func (g *Gateway) publishAlert(ctx context.Context, src alerting.Source, reading entities.SensorReading, report analytics.OutlierReport) {
	if g.cfg.Alerts == nil {
		return
	}
	evt, err := alerting.NewAlert(g.cfg.Clock, src, reading, report)
	if err != nil {
		g.cfg.Metrics.AlertsPublished.WithLabelValues("error").Inc()
		g.cfg.Logger.Error("outlier alert not built",
			zap.String("farm_id", src.FarmID), zap.String("sensor_id", src.SensorID), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(ctx, g.cfg.HTTPTimeout)
	defer cancel()
	if err := g.cfg.Alerts.Publish(ctx, evt); err != nil {
		g.cfg.Metrics.AlertsPublished.WithLabelValues("error").Inc()
		g.cfg.Logger.Warn("outlier alert not published",
			zap.String("alert_id", evt.AlertID), zap.String("farm_id", evt.FarmID), zap.Error(err))
		return
	}
	g.cfg.Metrics.AlertsPublished.WithLabelValues("ok").Inc()
	g.cfg.Logger.Info("outlier alert published",
		zap.String("alert_id", evt.AlertID), zap.Strings("reasons", evt.Reasons))
}

func (g *Gateway) HandleSensorHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := strings.TrimSpace(q.Get("userId"))
	if userID == "" {
		g.writeError(w, r, badRequest("User ID is required", nil))
		return
	}
	limit := g.cfg.HistoryLimit
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			g.writeError(w, r, badRequest("limit must be a positive integer", err))
			return
		}
		limit = n
	}

	rows, source, err := g.cfg.History.Recent(r.Context(), q.Get("source"), userID, limit)
	switch {
	case errors.Is(err, ErrUnknownSource):
		g.writeError(w, r, badRequest("invalid source", err))
		return
	case err != nil:
		g.writeError(w, r, err)
		return
	}
	w.Header().Set("X-Data-Source", source)
	writeJSON(w, http.StatusOK, SensorHistoryResponse{Success: true, Data: rows})
}

// ---------- predictions ----------

func (g *Gateway) HandleYieldPrediction(w http.ResponseWriter, r *http.Request) {
	var req YieldPredictionRequest
	if err := g.decodeJSON(w, r, &req); err != nil {
		g.writeError(w, r, err)
		return
	}
	factors := req.YieldFactors()
	if err := factors.Validate(); err != nil {
		g.writeError(w, r, badRequest("invalid factors", err))
		return
	}

	est := analytics.EstimateYield(req.CropType, factors)
	crop := "other"
	if entities.KnownCrop(req.CropType) {
		crop = entities.NormalizeCrop(req.CropType)
	}
	g.cfg.Metrics.PredictedYield.WithLabelValues(crop).Observe(est.PredictedYield)

	writeJSON(w, http.StatusOK, YieldPredictionResponse{
		Success:      true,
		PredictionID: g.mockID("mock-prediction-"),
		Prediction:   est,
	})
}

func (g *Gateway) HandleDiseaseDetection(w http.ResponseWriter, r *http.Request) {
	var req DiseaseDetectionRequest
	if err := g.decodeJSON(w, r, &req); err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DiseaseDetectionResponse{
		Success:   true,
		DiseaseID: g.mockID("mock-disease-"),
		Detection: analytics.DetectDisease(req.CropType, req.Symptoms),
	})
}

func (g *Gateway) HandleChatbotQuery(w http.ResponseWriter, r *http.Request) {
	var req ChatbotQueryRequest
	if err := g.decodeJSON(w, r, &req); err != nil {
		g.writeError(w, r, err)
		return
	}
	lang := strings.TrimSpace(req.Language)
	if lang == "" {
		lang = analytics.DefaultLanguage
	}
	category := analytics.ResolveCategory(req.Query, req.Category)

	writeJSON(w, http.StatusOK, ChatbotQueryResponse{
		Success:  true,
		Response: analytics.Answer(req.Query, lang, category),
		Language: lang,
		Category: category,
		QueryID:  g.mockID("mock-query-"),
	})
}

// ---------- mock accounts ----------

func (g *Gateway) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, g.cfg.MaxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Success: false, Message: "Invalid credentials"})
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Success: false, Message: "Invalid credentials"})
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{
		Success: true,
		Message: "Login successful",
		User:    DemoUser{ID: "demo-user", Email: req.Email, Name: "Demo User"},
	})
}

func (g *Gateway) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := g.decodeJSON(w, r, &req); err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RegisterResponse{
		Success: true,
		Message: "User registered successfully",
		UserID:  g.mockID("demo-user-"),
	})
}
