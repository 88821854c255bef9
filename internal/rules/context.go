// Package rules evaluates the notification rule catalog against a
// cultivation's recent history, creating notifications through the
// notify service while respecting per-rule cooldowns.
package rules

import (
	"time"

	"github.com/mverde/growmon-go/internal/grow"
)

// NeverSentinel marks "no matching event in history" for the
// days-since counters, chosen to exceed any plausible real gap.
const NeverSentinel = 999

// LifecyclePhase is the coarse phase split the rules reason about.
// It is deliberately coarser than the detector's phase model.
type LifecyclePhase string

const (
	LifecycleSeedling   LifecyclePhase = "seedling"
	LifecycleVegetative LifecyclePhase = "vegetative"
	LifecycleFlowering  LifecyclePhase = "flowering"
	LifecycleHarvest    LifecyclePhase = "harvest"
)

const (
	seedlingMaxDays   = 14
	vegetativeMaxDays = 60
)

// EnvConditions is the latest sensed environment, when available.
type EnvConditions struct {
	TemperatureC *float64
	HumidityPct  *float64
	PH           *float64
	EC           *float64
	SampledAt    time.Time
}

// RuleContext is everything a rule condition may inspect.
type RuleContext struct {
	Cultivation *grow.Cultivation
	User        *grow.User
	Now         time.Time

	DaysSinceStart         int
	DaysSinceLastWatering  int
	DaysSinceLastNutrition int
	Phase                  LifecyclePhase
	DaysSincePhaseChange   int
	AverageGrowthRate      float64
	EventCount             int
	Env                    *EnvConditions
}

// BuildContext derives the rule context from a cultivation and its
// recent events (newest first, as the store returns them).
func BuildContext(cultivation *grow.Cultivation, now time.Time) *RuleContext {
	rc := &RuleContext{
		Cultivation:            cultivation,
		User:                   &cultivation.User,
		Now:                    now,
		DaysSinceStart:         cultivation.DaysSinceStart(now),
		DaysSinceLastWatering:  NeverSentinel,
		DaysSinceLastNutrition: NeverSentinel,
		EventCount:             len(cultivation.Events),
	}

	rc.Phase, rc.DaysSincePhaseChange = lifecyclePhase(cultivation, rc.DaysSinceStart)
	rc.AverageGrowthRate = growthRate(cultivation.Events)

	var lastWatering, lastNutrition, lastSensor *grow.Event
	for i := range cultivation.Events {
		ev := &cultivation.Events[i]
		switch ev.Type {
		case grow.EventWatering:
			if lastWatering == nil || ev.Date.After(lastWatering.Date) {
				lastWatering = ev
			}
		case grow.EventNutrition:
			if lastNutrition == nil || ev.Date.After(lastNutrition.Date) {
				lastNutrition = ev
			}
		}
		if ev.IsSensorSample() && (lastSensor == nil || ev.Date.After(lastSensor.Date)) {
			lastSensor = ev
		}
	}

	if lastWatering != nil {
		rc.DaysSinceLastWatering = daysBetween(lastWatering.Date, now)
	}
	if lastNutrition != nil {
		rc.DaysSinceLastNutrition = daysBetween(lastNutrition.Date, now)
	}
	if lastSensor != nil {
		rc.Env = &EnvConditions{
			TemperatureC: lastSensor.TemperatureC,
			HumidityPct:  lastSensor.HumidityPct,
			PH:           lastSensor.PH,
			EC:           lastSensor.EC,
			SampledAt:    lastSensor.Date,
		}
	}
	return rc
}

// lifecyclePhase maps elapsed days to the coarse phase and the days
// elapsed since the last phase boundary was crossed.
func lifecyclePhase(c *grow.Cultivation, daysSinceStart int) (LifecyclePhase, int) {
	if c.Status == grow.StatusCompleted {
		return LifecycleHarvest, 0
	}
	switch {
	case daysSinceStart <= seedlingMaxDays:
		return LifecycleSeedling, daysSinceStart
	case daysSinceStart <= vegetativeMaxDays:
		return LifecycleVegetative, daysSinceStart - seedlingMaxDays
	default:
		return LifecycleFlowering, daysSinceStart - vegetativeMaxDays
	}
}

// growthRate is a crude heuristic: growth-tagged events over ten,
// capped at 1.0. Under two such events there is not enough signal, so
// a neutral 0.5 is assumed.
func growthRate(events []grow.Event) float64 {
	count := 0
	for i := range events {
		if events[i].Type == grow.EventGrowth {
			count++
		}
	}
	if count < 2 {
		return 0.5
	}
	rate := float64(count) / 10
	if rate > 1 {
		rate = 1
	}
	return rate
}

func daysBetween(from, to time.Time) int {
	d := int(to.Sub(from).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}
