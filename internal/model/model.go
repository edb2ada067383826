package model

import (
	"github.com/LeonardoBeccarini/agricult/internal/model/entities"
	"github.com/LeonardoBeccarini/agricult/internal/model/messages"
)

// Alias per esporre tipi comuni ai servizi

type (
	SensorReading      = entities.SensorReading
	YieldFactors       = entities.YieldFactors
	SensorReadingEvent = messages.SensorReadingEvent
	OutlierAlertEvent  = messages.OutlierAlertEvent
)
