package rules

import (
	"context"
	"fmt"

	"github.com/mverde/growmon-go/internal/gemini"
	"github.com/mverde/growmon-go/internal/grow"
	"github.com/mverde/growmon-go/internal/notify"
)

// Rule is a catalog entry. Conditions and actions live in named
// evaluators so the catalog itself is plain data that can be listed,
// toggled, and audited without touching code.
type Rule struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Enabled         bool            `json:"enabled"`
	Priority        notify.Priority `json:"priority"`
	CooldownMinutes int             `json:"cooldownMinutes"`
	Evaluator       string          `json:"evaluator"`
}

// Action is what a fired rule wants to tell the user.
type Action struct {
	Type     notify.Type
	Priority notify.Priority
	Title    string
	Message  string
	Metadata map[string]any
}

// Evaluator implements a rule's condition and action.
type Evaluator interface {
	Condition(ctx context.Context, rc *RuleContext) bool
	Action(ctx context.Context, rc *RuleContext) (*Action, error)
}

// Analyzer is the external AI collaborator used by the analysis rule.
type Analyzer interface {
	AnalyzeCultivation(ctx context.Context, req gemini.AnalysisRequest) (*gemini.AnalysisResponse, error)
}

const (
	RuleWateringOverdue     = "watering-overdue"
	RuleNutritionReminder   = "nutrition-reminder"
	RulePhaseChangeDetected = "phase-change-detected"
	RuleGrowthStagnation    = "growth-stagnation"
	RuleEnvironmentalAlert  = "environmental-alert"
	RuleAIAnalysisAlert     = "ai-analysis-alert"
)

// DefaultCatalog returns the built-in rules in evaluation order.
func DefaultCatalog() []Rule {
	return []Rule{
		{
			ID:              RuleWateringOverdue,
			Name:            "Watering overdue",
			Description:     "The cultivation has gone more than three days without a watering event.",
			Enabled:         true,
			Priority:        notify.PriorityHigh,
			CooldownMinutes: 60,
			Evaluator:       RuleWateringOverdue,
		},
		{
			ID:              RuleNutritionReminder,
			Name:            "Nutrition reminder",
			Description:     "Feeding is due, based on the phase-specific feeding interval.",
			Enabled:         true,
			Priority:        notify.PriorityMedium,
			CooldownMinutes: 120,
			Evaluator:       RuleNutritionReminder,
		},
		{
			ID:              RulePhaseChangeDetected,
			Name:            "Phase change detected",
			Description:     "The cultivation crossed a lifecycle phase boundary today.",
			Enabled:         true,
			Priority:        notify.PriorityMedium,
			CooldownMinutes: 1440,
			Evaluator:       RulePhaseChangeDetected,
		},
		{
			ID:              RuleGrowthStagnation,
			Name:            "Growth stagnation",
			Description:     "Little growth activity has been logged well into the current phase.",
			Enabled:         true,
			Priority:        notify.PriorityHigh,
			CooldownMinutes: 720,
			Evaluator:       RuleGrowthStagnation,
		},
		{
			ID:              RuleEnvironmentalAlert,
			Name:            "Environmental alert",
			Description:     "The latest sensed temperature or humidity is outside safe bounds.",
			Enabled:         true,
			Priority:        notify.PriorityHigh,
			CooldownMinutes: 180,
			Evaluator:       RuleEnvironmentalAlert,
		},
		{
			ID:              RuleAIAnalysisAlert,
			Name:            "AI analysis",
			Description:     "Periodic AI review of recent sensor history and care events.",
			Enabled:         true,
			Priority:        notify.PriorityMedium,
			CooldownMinutes: 360,
			Evaluator:       RuleAIAnalysisAlert,
		},
	}
}

// newRegistry binds evaluator names to implementations.
func newRegistry(analyzer Analyzer) map[string]Evaluator {
	return map[string]Evaluator{
		RuleWateringOverdue:     wateringOverdueEvaluator{},
		RuleNutritionReminder:   nutritionReminderEvaluator{},
		RulePhaseChangeDetected: phaseChangeEvaluator{},
		RuleGrowthStagnation:    growthStagnationEvaluator{},
		RuleEnvironmentalAlert:  environmentalAlertEvaluator{},
		RuleAIAnalysisAlert:     aiAnalysisEvaluator{analyzer: analyzer},
	}
}

const wateringOverdueDays = 3

type wateringOverdueEvaluator struct{}

func (wateringOverdueEvaluator) Condition(_ context.Context, rc *RuleContext) bool {
	return rc.DaysSinceLastWatering > wateringOverdueDays
}

func (wateringOverdueEvaluator) Action(_ context.Context, rc *RuleContext) (*Action, error) {
	message := fmt.Sprintf("%q has not been watered in %d days. Check the medium and water if dry.",
		rc.Cultivation.Name, rc.DaysSinceLastWatering)
	if rc.DaysSinceLastWatering == NeverSentinel {
		message = fmt.Sprintf("%q has no watering recorded yet. Log the first watering to start tracking.",
			rc.Cultivation.Name)
	}
	return &Action{
		Type:    notify.TypeReminder,
		Title:   "Watering overdue",
		Message: message,
		Metadata: map[string]any{
			"daysSinceLastWatering": rc.DaysSinceLastWatering,
		},
	}, nil
}

const (
	nutritionIntervalVegetative = 7
	nutritionIntervalFlowering  = 5
)

type nutritionReminderEvaluator struct{}

func (nutritionReminderEvaluator) Condition(_ context.Context, rc *RuleContext) bool {
	interval := nutritionIntervalVegetative
	if rc.Phase == LifecycleFlowering {
		interval = nutritionIntervalFlowering
	}
	return rc.DaysSinceLastNutrition > interval
}

func (nutritionReminderEvaluator) Action(_ context.Context, rc *RuleContext) (*Action, error) {
	return &Action{
		Type:  notify.TypeReminder,
		Title: "Feeding due",
		Message: fmt.Sprintf("%q is due for nutrients in the %s phase. Last feeding was %d days ago.",
			rc.Cultivation.Name, rc.Phase, rc.DaysSinceLastNutrition),
		Metadata: map[string]any{
			"phase":                  string(rc.Phase),
			"daysSinceLastNutrition": rc.DaysSinceLastNutrition,
		},
	}, nil
}

type phaseChangeEvaluator struct{}

func (phaseChangeEvaluator) Condition(_ context.Context, rc *RuleContext) bool {
	return rc.DaysSincePhaseChange == 0
}

func (phaseChangeEvaluator) Action(_ context.Context, rc *RuleContext) (*Action, error) {
	return &Action{
		Type:  notify.TypeSystem,
		Title: "New phase reached",
		Message: fmt.Sprintf("%q entered the %s phase today (day %d). Adjust light, feeding, and environment accordingly.",
			rc.Cultivation.Name, rc.Phase, rc.DaysSinceStart),
		Metadata: map[string]any{
			"phase": string(rc.Phase),
			"day":   rc.DaysSinceStart,
		},
	}, nil
}

const (
	stagnationMinDaysInPhase = 14
	stagnationMaxGrowthRate  = 0.1
)

type growthStagnationEvaluator struct{}

func (growthStagnationEvaluator) Condition(_ context.Context, rc *RuleContext) bool {
	return rc.DaysSincePhaseChange > stagnationMinDaysInPhase &&
		rc.AverageGrowthRate < stagnationMaxGrowthRate
}

func (growthStagnationEvaluator) Action(_ context.Context, rc *RuleContext) (*Action, error) {
	return &Action{
		Type:  notify.TypeAlert,
		Title: "Growth stagnation",
		Message: fmt.Sprintf("%q has shown little growth for %d days into the %s phase. Check roots, light distance, and feeding.",
			rc.Cultivation.Name, rc.DaysSincePhaseChange, rc.Phase),
		Metadata: map[string]any{
			"daysSincePhaseChange": rc.DaysSincePhaseChange,
			"growthRate":           rc.AverageGrowthRate,
		},
	}, nil
}

const (
	envMinTempC       = 18.0
	envMaxTempC       = 30.0
	envMinHumidityPct = 30.0
	envMaxHumidityPct = 80.0
)

type environmentalAlertEvaluator struct{}

func (environmentalAlertEvaluator) Condition(_ context.Context, rc *RuleContext) bool {
	if rc.Env == nil {
		return false
	}
	if t := rc.Env.TemperatureC; t != nil && (*t < envMinTempC || *t > envMaxTempC) {
		return true
	}
	if h := rc.Env.HumidityPct; h != nil && (*h < envMinHumidityPct || *h > envMaxHumidityPct) {
		return true
	}
	return false
}

func (environmentalAlertEvaluator) Action(_ context.Context, rc *RuleContext) (*Action, error) {
	var problems []string
	metadata := map[string]any{}
	if t := rc.Env.TemperatureC; t != nil && (*t < envMinTempC || *t > envMaxTempC) {
		problems = append(problems, fmt.Sprintf("temperature at %.1f°C (safe range %.0f-%.0f°C)", *t, envMinTempC, envMaxTempC))
		metadata["temperatureC"] = *t
	}
	if h := rc.Env.HumidityPct; h != nil && (*h < envMinHumidityPct || *h > envMaxHumidityPct) {
		problems = append(problems, fmt.Sprintf("humidity at %.0f%% (safe range %.0f-%.0f%%)", *h, envMinHumidityPct, envMaxHumidityPct))
		metadata["humidityPct"] = *h
	}

	message := fmt.Sprintf("%q needs attention: %s.", rc.Cultivation.Name, problems[0])
	if len(problems) > 1 {
		message = fmt.Sprintf("%q needs attention: %s and %s.", rc.Cultivation.Name, problems[0], problems[1])
	}
	return &Action{
		Type:     notify.TypeAlert,
		Title:    "Environment out of range",
		Message:  message,
		Metadata: metadata,
	}, nil
}

const (
	aiMinEvents              = 3
	aiMaxDaysWithoutWatering = 7
)

type aiAnalysisEvaluator struct {
	analyzer Analyzer
}

func (e aiAnalysisEvaluator) Condition(_ context.Context, rc *RuleContext) bool {
	if e.analyzer == nil {
		return false
	}
	return rc.EventCount >= aiMinEvents && rc.DaysSinceLastWatering <= aiMaxDaysWithoutWatering
}

// Action delegates to the AI collaborator. Any failure, and any answer
// without a critical or high finding, degrades to a generic check-in
// payload so the rule never fails the batch.
func (e aiAnalysisEvaluator) Action(ctx context.Context, rc *RuleContext) (*Action, error) {
	req := buildAnalysisRequest(rc)

	resp, err := e.analyzer.AnalyzeCultivation(ctx, req)
	var severe []gemini.AnalysisAnomaly
	if err == nil && resp != nil {
		severe = resp.SevereAnomalies()
	}
	if len(severe) == 0 {
		return &Action{
			Type:  notify.TypeReminder,
			Title: "Verification recommended",
			Message: fmt.Sprintf("A routine check of %q is recommended. Review recent readings and the plants' overall condition.",
				rc.Cultivation.Name),
			Metadata: map[string]any{"fallback": true},
		}, nil
	}

	main := severe[0]
	priority := notify.PriorityHigh
	if main.Severity == "critical" {
		priority = notify.PriorityCritical
	}
	return &Action{
		Type:     notify.TypeAlert,
		Priority: priority,
		Title:    fmt.Sprintf("AI analysis: %s issue", main.Parameter),
		Message:  fmt.Sprintf("%s %s", main.Description, main.Recommendation),
		Metadata: map[string]any{
			"parameter": main.Parameter,
			"severity":  main.Severity,
			"analysis":  resp.Analysis,
		},
	}, nil
}

func buildAnalysisRequest(rc *RuleContext) gemini.AnalysisRequest {
	req := gemini.AnalysisRequest{
		CultivationInfo: gemini.CultivationInfo{
			Strain:         rc.Cultivation.SeedStrain,
			Phase:          string(rc.Phase),
			DaysSinceStart: rc.DaysSinceStart,
			NumPlants:      1,
		},
		IncludeRecommendations: true,
	}
	for i := range rc.Cultivation.Events {
		ev := &rc.Cultivation.Events[i]
		if !ev.IsSensorSample() {
			continue
		}
		for _, reading := range sensorReadings(ev) {
			req.SensorData = append(req.SensorData, reading)
		}
	}
	return req
}

func sensorReadings(ev *grow.Event) []gemini.SensorReading {
	var out []gemini.SensorReading
	if ev.TemperatureC != nil {
		out = append(out, gemini.SensorReading{SensorType: "temperature", Value: *ev.TemperatureC, Unit: "°C", Timestamp: ev.Date})
	}
	if ev.HumidityPct != nil {
		out = append(out, gemini.SensorReading{SensorType: "humidity", Value: *ev.HumidityPct, Unit: "%", Timestamp: ev.Date})
	}
	if ev.PH != nil {
		out = append(out, gemini.SensorReading{SensorType: "ph", Value: *ev.PH, Unit: "", Timestamp: ev.Date})
	}
	if ev.EC != nil {
		out = append(out, gemini.SensorReading{SensorType: "ec", Value: *ev.EC, Unit: "mS/cm", Timestamp: ev.Date})
	}
	return out
}
