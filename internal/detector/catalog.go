// Package detector analyzes incoming sensor samples against learned
// per-strain baselines and static parameter ranges, producing anomalies
// for readings that drift outside the expected envelope.
package detector

import (
	"github.com/mverde/growmon-go/internal/grow"
)

// Phase is the cultivation lifecycle phase as seen by the detector.
type Phase string

const (
	PhaseVegetative Phase = "vegetative"
	PhaseFlowering  Phase = "flowering"
	PhaseCuring     Phase = "curing"
)

// DeterminePhase maps cultivation age in days to a detection phase.
func DeterminePhase(daysSinceStart int) Phase {
	switch {
	case daysSinceStart <= 60:
		return PhaseVegetative
	case daysSinceStart <= 130:
		return PhaseFlowering
	default:
		return PhaseCuring
	}
}

// MonitoringParameter describes the acceptable envelope for one sensor
// parameter and the deviation thresholds that escalate a reading.
type MonitoringParameter struct {
	Key  grow.ParameterKey
	Name string
	Unit string

	OptimalMin float64
	OptimalMax float64

	// Deviation percentages relative to the expected value.
	WarningThreshold  float64
	CriticalThreshold float64
}

// Midpoint returns the center of the optimal range, used as the
// expected value when no learned baseline is available.
func (p MonitoringParameter) Midpoint() float64 {
	return (p.OptimalMin + p.OptimalMax) / 2
}

var baseParameters = []MonitoringParameter{
	{
		Key:               grow.ParamPH,
		Name:              "pH",
		Unit:              "",
		OptimalMin:        5.8,
		OptimalMax:        6.2,
		WarningThreshold:  20,
		CriticalThreshold: 20,
	},
	{
		Key:               grow.ParamEC,
		Name:              "Electrical Conductivity (EC)",
		Unit:              "mS/cm",
		OptimalMin:        1.0,
		OptimalMax:        1.6,
		WarningThreshold:  15,
		CriticalThreshold: 20,
	},
	{
		Key:               grow.ParamTemperature,
		Name:              "Temperature",
		Unit:              "°C",
		OptimalMin:        24,
		OptimalMax:        30,
		WarningThreshold:  20,
		CriticalThreshold: 20,
	},
	{
		Key:               grow.ParamHumidity,
		Name:              "Humidity",
		Unit:              "%",
		OptimalMin:        60,
		OptimalMax:        70,
		WarningThreshold:  15,
		CriticalThreshold: 25,
	},
}

// phaseOverrides adjusts optimal ranges for phases whose needs differ
// from the base envelope. Flowering plants want drier air and a
// stronger nutrient solution.
var phaseOverrides = map[Phase]map[grow.ParameterKey]struct{ min, max float64 }{
	PhaseFlowering: {
		grow.ParamHumidity: {min: 40, max: 50},
		grow.ParamEC:       {min: 1.6, max: 2.2},
	},
}

// PhaseParameters returns the monitoring catalog with any per-phase
// range overrides applied. The returned slice is a copy.
func PhaseParameters(phase Phase) []MonitoringParameter {
	params := make([]MonitoringParameter, len(baseParameters))
	copy(params, baseParameters)

	overrides, ok := phaseOverrides[phase]
	if !ok {
		return params
	}
	for i := range params {
		if o, ok := overrides[params[i].Key]; ok {
			params[i].OptimalMin = o.min
			params[i].OptimalMax = o.max
		}
	}
	return params
}

// ParameterByKey looks up a catalog entry for the given phase.
func ParameterByKey(phase Phase, key grow.ParameterKey) (MonitoringParameter, bool) {
	for _, p := range PhaseParameters(phase) {
		if p.Key == key {
			return p, true
		}
	}
	return MonitoringParameter{}, false
}
