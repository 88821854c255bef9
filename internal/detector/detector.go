package detector

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/mverde/growmon-go/internal/dismissal"
	"github.com/mverde/growmon-go/internal/errors"
	"github.com/mverde/growmon-go/internal/grow"
	"github.com/mverde/growmon-go/internal/logging"
	"github.com/mverde/growmon-go/internal/observability/metrics"
)

// Package-level logger specific to anomaly detection
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "detector.log")
	serviceLevelVar.Set(slog.LevelInfo)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "detector", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize detector file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "detector")
		closeLogger = func() error { return nil }
	}
}

// Severity classifies how far a reading has drifted.
type Severity string

const (
	SeverityMedium   Severity = "medium"
	SeverityCritical Severity = "critical"
)

// Anomaly is one out-of-range sensor reading.
type Anomaly struct {
	ID                string            `json:"id"`
	CultivationID     string            `json:"cultivationId"`
	Parameter         grow.ParameterKey `json:"parameter"`
	ParameterName     string            `json:"parameterName"`
	Phase             Phase             `json:"phase"`
	CurrentValue      float64           `json:"currentValue"`
	ExpectedValue     float64           `json:"expectedValue"`
	DeviationPercent  float64           `json:"deviationPercent"`
	Severity          Severity          `json:"severity"`
	Message           string            `json:"message"`
	CorrectiveActions []string          `json:"correctiveActions"`
	Timestamp         time.Time         `json:"timestamp"`
	Baseline          bool              `json:"baseline"`
}

// Detector compares the most recent sensor sample of a cultivation
// against learned baselines, falling back to the static catalog when
// no pattern has enough evidence.
type Detector struct {
	learner *Learner
	ledger  *dismissal.Ledger
	metrics *metrics.MonitoringMetrics
}

func NewDetector(learner *Learner, ledger *dismissal.Ledger) *Detector {
	return &Detector{
		learner: learner,
		ledger:  ledger,
	}
}

// SetMetrics attaches metric collectors; a nil-metrics detector
// simply skips recording.
func (d *Detector) SetMetrics(m *metrics.MonitoringMetrics) {
	d.metrics = m
}

// Detect evaluates the samples newer than the cultivation's processed
// watermark. Only the most recent sample is scored; the watermark is
// advanced to it whether or not anomalies were found, so a sample is
// never scored twice.
func (d *Detector) Detect(ctx context.Context, cultivation *grow.Cultivation, samples []grow.Event) ([]Anomaly, error) {
	if cultivation == nil {
		return nil, errors.Newf("nil cultivation").
			Component("detector").
			Category(errors.CategoryValidation).
			Build()
	}

	fresh := d.filterNew(ctx, cultivation.ID, samples)
	if len(fresh) == 0 {
		return nil, nil
	}
	latest := latestSample(fresh)

	phase := DeterminePhase(cultivation.DaysSinceStart(latest.Date))
	pattern, err := d.learner.Pattern(ctx, cultivation.SeedStrain, phase)
	if err != nil {
		logger.Warn("pattern lookup failed, using general ranges",
			"cultivation_id", cultivation.ID,
			"strain", cultivation.SeedStrain,
			"error", err)
		pattern = nil
	}
	useBaseline := pattern != nil

	var anomalies []Anomaly
	for _, param := range PhaseParameters(phase) {
		value := latest.SensorValue(param.Key)
		if math.IsNaN(value) {
			continue
		}

		expected := param.Midpoint()
		fromBaseline := false
		if useBaseline {
			if baseline, ok := pattern.Baselines[param.Key]; ok && baseline.Mean != 0 {
				expected = baseline.Mean
				fromBaseline = true
			}
		}
		if expected == 0 {
			continue
		}

		deviation := math.Abs(value-expected) / expected * 100
		if deviation < param.WarningThreshold {
			continue
		}

		severity := SeverityMedium
		if deviation >= param.CriticalThreshold {
			severity = SeverityCritical
		}

		anomaly := Anomaly{
			ID:               uuid.New().String(),
			CultivationID:    cultivation.ID,
			Parameter:        param.Key,
			ParameterName:    param.Name,
			Phase:            phase,
			CurrentValue:     value,
			ExpectedValue:    expected,
			DeviationPercent: deviation,
			Severity:         severity,
			Timestamp:        latest.Date,
			Baseline:         fromBaseline,
		}
		anomaly.Message = describeAnomaly(&anomaly, param)
		anomaly.CorrectiveActions = correctiveActions(&anomaly, param)
		anomalies = append(anomalies, anomaly)
	}

	kept := anomalies[:0]
	for _, a := range anomalies {
		if d.ledger.IsDismissed(ctx, a.CultivationID, string(a.Parameter), a.Timestamp) {
			logger.Debug("anomaly suppressed by dismissal",
				"cultivation_id", a.CultivationID,
				"parameter", a.Parameter)
			if d.metrics != nil {
				d.metrics.AnomaliesSuppressed.Inc()
			}
			continue
		}
		if d.metrics != nil {
			d.metrics.RecordAnomaly(string(a.Severity))
		}
		kept = append(kept, a)
	}
	anomalies = kept

	if err := d.ledger.AdvanceProcessed(ctx, cultivation.ID, latest.Date); err != nil {
		logger.Error("failed to advance processed watermark",
			"cultivation_id", cultivation.ID,
			"error", err)
	}

	if len(anomalies) == 0 {
		return nil, nil
	}
	return anomalies, nil
}

// Close releases the detector's log file.
func (d *Detector) Close() error {
	if closeLogger != nil {
		return closeLogger()
	}
	return nil
}

// HasEnoughData reports whether baseline-driven detection applies to
// the cultivation's strain in its current phase.
func (d *Detector) HasEnoughData(ctx context.Context, cultivation *grow.Cultivation, now time.Time) bool {
	phase := DeterminePhase(cultivation.DaysSinceStart(now))
	return d.learner.HasEnoughData(ctx, cultivation.SeedStrain, phase)
}

func (d *Detector) filterNew(ctx context.Context, cultivationID string, samples []grow.Event) []grow.Event {
	watermark := d.ledger.LastProcessed(ctx, cultivationID)
	var fresh []grow.Event
	for _, s := range samples {
		if !s.IsSensorSample() {
			continue
		}
		if watermark.IsZero() || s.Date.After(watermark) {
			fresh = append(fresh, s)
		}
	}
	return fresh
}

func latestSample(samples []grow.Event) grow.Event {
	latest := samples[0]
	for _, s := range samples[1:] {
		if s.Date.After(latest.Date) {
			latest = s
		}
	}
	return latest
}

func describeAnomaly(a *Anomaly, param MonitoringParameter) string {
	direction := "above"
	if a.CurrentValue < a.ExpectedValue {
		direction = "below"
	}
	unit := param.Unit
	if unit != "" {
		unit = " " + unit
	}
	return fmt.Sprintf("%s is %.1f%% %s the expected value (reading %.2f%s, expected %.2f%s)",
		param.Name, a.DeviationPercent, direction, a.CurrentValue, unit, a.ExpectedValue, unit)
}

const (
	urgentHighTempC = 31.0
	urgentLowTempC  = 15.5
	moldHumidityPct = 70.0
)

func correctiveActions(a *Anomaly, param MonitoringParameter) []string {
	switch param.Key {
	case grow.ParamPH:
		if a.CurrentValue > param.OptimalMax {
			return []string{
				"Add pH down solution gradually until the reading returns to 5.8-6.2",
				"Re-check pH 30 minutes after each adjustment",
			}
		}
		return []string{
			"Add pH up solution gradually until the reading returns to 5.8-6.2",
			"Re-check pH 30 minutes after each adjustment",
		}

	case grow.ParamEC:
		if a.CurrentValue > param.OptimalMax {
			return []string{
				fmt.Sprintf("Dilute the nutrient solution toward %.1f-%.1f mS/cm", param.OptimalMin, param.OptimalMax),
				"Flush the medium with plain water if leaf tips show burn",
			}
		}
		return []string{
			fmt.Sprintf("Increase nutrient concentration toward %.1f-%.1f mS/cm", param.OptimalMin, param.OptimalMax),
			"Verify the feeding schedule matches the current phase",
		}

	case grow.ParamTemperature:
		if a.CurrentValue > urgentHighTempC {
			return []string{
				"URGENT: temperatures above 31°C degrade potency, increase exhaust and airflow immediately",
				"Dim or raise lights until the canopy cools",
			}
		}
		if a.CurrentValue < urgentLowTempC {
			return []string{
				"URGENT: temperatures below 15.5°C stall growth and degrade potency, add heating now",
				"Insulate the grow space and check for cold drafts",
			}
		}
		if a.CurrentValue > param.OptimalMax {
			return []string{"Increase ventilation or exhaust capacity to bring temperature down to 24-30°C"}
		}
		return []string{"Raise ambient temperature toward 24-30°C"}

	case grow.ParamHumidity:
		if a.Phase == PhaseFlowering && a.CurrentValue > moldHumidityPct {
			return []string{
				"CRITICAL: humidity above 70% during flowering invites bud rot and mold, dehumidify immediately",
				"Increase air circulation around dense colas and inspect for early mold",
			}
		}
		if a.CurrentValue > param.OptimalMax {
			return []string{fmt.Sprintf("Run a dehumidifier to bring humidity down to %.0f-%.0f%%", param.OptimalMin, param.OptimalMax)}
		}
		return []string{fmt.Sprintf("Add humidification to reach %.0f-%.0f%%", param.OptimalMin, param.OptimalMax)}
	}
	return nil
}
