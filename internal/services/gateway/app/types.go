package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/LeonardoBeccarini/agricult/internal/model/entities"
	"github.com/LeonardoBeccarini/agricult/internal/services/analytics"
)

// ---------- Request payloads ----------

var errNotNumber = errors.New("not a number")

// Number accepts a JSON number or a numeric string ("28.5"): the demo UI
// posts raw form values.
type Number float64

func (n *Number) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case float64:
		*n = Number(x)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return fmt.Errorf("%q: %w", x, errNotNumber)
		}
		*n = Number(f)
	default:
		return fmt.Errorf("%s: %w", string(b), errNotNumber)
	}
	return nil
}

func (n *Number) ptr() *float64 {
	if n == nil {
		return nil
	}
	f := float64(*n)
	return &f
}

type SensorDataRequest struct {
	UserID       string  `json:"userId"`
	FarmID       string  `json:"farmId"`
	SensorID     string  `json:"sensorId"`
	Temperature  *Number `json:"temperature" validate:"required"`
	Humidity     *Number `json:"humidity" validate:"required"`
	SoilMoisture *Number `json:"soilMoisture" validate:"required"`
	PH           *Number `json:"ph" validate:"required"`
}

// Reading is only meaningful after validation.
func (r SensorDataRequest) Reading() entities.SensorReading {
	return entities.SensorReading{
		Temperature:  float64(*r.Temperature),
		Humidity:     float64(*r.Humidity),
		SoilMoisture: float64(*r.SoilMoisture),
		PH:           float64(*r.PH),
	}
}

type FactorsPayload struct {
	Weather    *Number `json:"weather"`
	Soil       *Number `json:"soil"`
	Irrigation *Number `json:"irrigation"`
	Fertilizer *Number `json:"fertilizer"`
}

type YieldPredictionRequest struct {
	UserID              string          `json:"userId"`
	CropType            string          `json:"cropType" validate:"required"`
	PlantingDate        string          `json:"plantingDate"`
	ExpectedHarvestDate string          `json:"expectedHarvestDate"`
	Factors             *FactorsPayload `json:"factors"`
}

// YieldFactors leaves absent factors nil; a missing factors object means all defaults.
func (r YieldPredictionRequest) YieldFactors() entities.YieldFactors {
	if r.Factors == nil {
		return entities.YieldFactors{}
	}
	return entities.YieldFactors{
		Weather:    r.Factors.Weather.ptr(),
		Soil:       r.Factors.Soil.ptr(),
		Irrigation: r.Factors.Irrigation.ptr(),
		Fertilizer: r.Factors.Fertilizer.ptr(),
	}
}

// Symptoms accepts a JSON array or a single comma separated string.
type Symptoms []string

func (s *Symptoms) UnmarshalJSON(b []byte) error {
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		*s = cleanSymptoms(list)
		return nil
	}
	var one string
	if err := json.Unmarshal(b, &one); err != nil {
		return errors.New("symptoms must be a string or a list of strings")
	}
	*s = cleanSymptoms(strings.Split(one, ","))
	return nil
}

func cleanSymptoms(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

type DiseaseDetectionRequest struct {
	UserID   string   `json:"userId"`
	CropType string   `json:"cropType" validate:"required"`
	Symptoms Symptoms `json:"symptoms"`
	ImageURL string   `json:"imageUrl" validate:"omitempty,url"`
}

type ChatbotQueryRequest struct {
	UserID   string `json:"userId"`
	Query    string `json:"query" validate:"max=4000"`
	Language string `json:"language"`
	Category string `json:"category"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email       string         `json:"email"`
	Password    string         `json:"password"`
	Name        string         `json:"name"`
	Phone       string         `json:"phone"`
	Location    string         `json:"location"`
	FarmDetails map[string]any `json:"farmDetails"`
}

// ---------- Responses ----------

type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type SensorDataResponse struct {
	Success        bool     `json:"success"`
	DataID         string   `json:"dataId"`
	IsOutlier      bool     `json:"isOutlier"`
	OutlierReasons []string `json:"outlierReasons"`
}

type SensorHistoryResponse struct {
	Success bool            `json:"success"`
	Data    []StoredReading `json:"data"`
}

// StoredReading is one historical reading as shown on the dashboard.
type StoredReading struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	FarmID       string    `json:"farmId"`
	Temperature  float64   `json:"temperature"`
	Humidity     float64   `json:"humidity"`
	SoilMoisture float64   `json:"soilMoisture"`
	PH           float64   `json:"ph"`
	IsOutlier    bool      `json:"isOutlier"`
	Timestamp    time.Time `json:"timestamp"`
}

func (s StoredReading) Reading() entities.SensorReading {
	return entities.SensorReading{Temperature: s.Temperature, Humidity: s.Humidity, SoilMoisture: s.SoilMoisture, PH: s.PH}
}

type YieldPredictionResponse struct {
	Success      bool                    `json:"success"`
	PredictionID string                  `json:"predictionId"`
	Prediction   analytics.YieldEstimate `json:"prediction"`
}

type DiseaseDetectionResponse struct {
	Success   bool                       `json:"success"`
	DiseaseID string                     `json:"diseaseId"`
	Detection analytics.DiseaseDetection `json:"detection"`
}

type ChatbotQueryResponse struct {
	Success  bool   `json:"success"`
	Response string `json:"response"`
	Language string `json:"language"`
	Category string `json:"category"`
	QueryID  string `json:"queryId"`
}

type DemoUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type LoginResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	User    DemoUser `json:"user"`
}

type RegisterResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	UserID  string `json:"userId"`
}
