// Package grow defines the cultivation domain entities and the store
// contract the monitoring engine reads them through.
package grow

import (
	"math"
	"time"
)

// Cultivation statuses used for batch scheduling.
const (
	StatusActive     = "active"
	StatusVegetative = "vegetative"
	StatusFlowering  = "flowering"
	StatusCompleted  = "completed"
)

// Event types the rule engine and detector care about. Free-form types are
// allowed; matching falls back to description keywords.
const (
	EventWatering  = "watering"
	EventNutrition = "nutrition"
	EventGrowth    = "growth"
	EventSensor    = "sensor"
)

// User owns cultivations and receives notifications.
type User struct {
	ID    string `gorm:"primaryKey" json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Cultivation is a single grow cycle.
type Cultivation struct {
	ID                string    `gorm:"primaryKey" json:"id"`
	Name              string    `json:"name"`
	UserID            string    `gorm:"index" json:"userId"`
	SeedStrain        string    `json:"seedStrain"`
	StartDate         time.Time `json:"startDate"`
	Status            string    `gorm:"index" json:"status"`
	YieldGrams        float64   `json:"yield_g"`
	ProfitBRL         float64   `json:"profit_brl"`
	HasSevereProblems bool      `json:"hasSevereProblems"`
	UpdatedAt         time.Time `json:"updatedAt"`

	User   User    `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Events []Event `gorm:"foreignKey:CultivationID" json:"events,omitempty"`
}

// DaysSinceStart returns whole days elapsed since the cultivation started.
func (c *Cultivation) DaysSinceStart(now time.Time) int {
	return int(now.Sub(c.StartDate).Hours() / 24)
}

// Successful reports whether this cultivation qualifies as a baseline
// learning source: it produced both yield and profit.
func (c *Cultivation) Successful() bool {
	return c.YieldGrams > 0 && c.ProfitBRL > 0
}

// Event is a logged occurrence in a cultivation: a care action, an
// observation, or a sensor sample. Sensor values are nullable; an event
// carrying at least one of them is treated as a sensor sample.
type Event struct {
	ID            string    `gorm:"primaryKey" json:"id"`
	CultivationID string    `gorm:"index" json:"cultivationId"`
	Date          time.Time `gorm:"index" json:"date"`
	Type          string    `json:"type"`
	Description   string    `json:"description"`

	PH           *float64 `json:"ph,omitempty"`
	EC           *float64 `json:"ec,omitempty"`
	TemperatureC *float64 `json:"temperatura,omitempty"`
	HumidityPct  *float64 `json:"umidade,omitempty"`
}

// IsSensorSample reports whether the event carries at least one sensor value.
func (e *Event) IsSensorSample() bool {
	return e.PH != nil || e.EC != nil || e.TemperatureC != nil || e.HumidityPct != nil
}

// SensorValue returns the value for a catalog parameter key, or NaN if the
// event does not carry that reading. NaN readings are skipped per parameter
// rather than rejecting the sample.
func (e *Event) SensorValue(key ParameterKey) float64 {
	var v *float64
	switch key {
	case ParamPH:
		v = e.PH
	case ParamEC:
		v = e.EC
	case ParamTemperature:
		v = e.TemperatureC
	case ParamHumidity:
		v = e.HumidityPct
	}
	if v == nil {
		return math.NaN()
	}
	return *v
}

// ParameterKey identifies a monitored sensor parameter.
type ParameterKey string

const (
	ParamPH          ParameterKey = "ph"
	ParamEC          ParameterKey = "ec"
	ParamTemperature ParameterKey = "temperature_c"
	ParamHumidity    ParameterKey = "humidity_percent"
)
