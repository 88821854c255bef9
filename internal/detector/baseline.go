package detector

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/mverde/growmon-go/internal/errors"
	"github.com/mverde/growmon-go/internal/grow"
)

// ParameterBaseline is the learned statistical profile of one sensor
// parameter across the successful runs of a strain in a given phase.
type ParameterBaseline struct {
	Mean              float64 `json:"mean"`
	StandardDeviation float64 `json:"standardDeviation"`
	Min               float64 `json:"min"`
	Max               float64 `json:"max"`
	OptimalLow        float64 `json:"optimalLow"`
	OptimalHigh       float64 `json:"optimalHigh"`
	SampleCount       int     `json:"sampleCount"`
}

// CultivationPattern groups the learned baselines for one strain in
// one phase, together with how much evidence backs them.
type CultivationPattern struct {
	Key         string                                  `json:"key"`
	SeedStrain  string                                  `json:"seedStrain"`
	Phase       Phase                                   `json:"phase"`
	Baselines   map[grow.ParameterKey]ParameterBaseline `json:"baselines"`
	SampleSize  int                                     `json:"sampleSize"`
	SuccessRate float64                                 `json:"successRate"`
	UpdatedAt   time.Time                               `json:"updatedAt"`
}

// PatternKey builds the lookup key for a strain/phase combination.
func PatternKey(strain string, phase Phase) string {
	return fmt.Sprintf("%s_%s", strain, phase)
}

// PatternStore persists learned patterns.
type PatternStore interface {
	Get(ctx context.Context, key string) (*CultivationPattern, error)
	Put(ctx context.Context, pattern *CultivationPattern) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]CultivationPattern, error)
}

// MinPatternSamples is the default evidence floor below which a
// pattern is not trusted for baseline-driven detection.
const MinPatternSamples = 5

const (
	// Normalization anchors for the success score of a completed run.
	referenceYieldGrams = 500.0
	referenceProfitBRL  = 15000.0
)

// Learner rebuilds strain/phase patterns from completed cultivations.
type Learner struct {
	store      grow.Store
	patterns   PatternStore
	minSamples int
}

// NewLearner wires a learner to its data sources. minSamples <= 0
// falls back to MinPatternSamples.
func NewLearner(store grow.Store, patterns PatternStore, minSamples int) *Learner {
	if minSamples <= 0 {
		minSamples = MinPatternSamples
	}
	return &Learner{store: store, patterns: patterns, minSamples: minSamples}
}

type patternAccumulator struct {
	strain  string
	phase   Phase
	values  map[grow.ParameterKey][]float64
	scores  []float64
	counted map[string]bool
}

// Learn rebuilds every pattern from scratch. Only completed
// cultivations with a positive yield and profit contribute; each
// sensor sample is bucketed by the phase the cultivation was in on the
// sample date. Existing patterns for a rebuilt key are fully replaced.
func (l *Learner) Learn(ctx context.Context) (int, error) {
	cultivations, err := l.store.ListCompletedCultivations(ctx)
	if err != nil {
		return 0, errors.New(err).
			Component("detector").
			Category(errors.CategoryBaseline).
			Context("operation", "learn").
			Build()
	}

	accumulators := map[string]*patternAccumulator{}
	for i := range cultivations {
		c := &cultivations[i]
		if !c.Successful() {
			continue
		}
		score := successScore(c)

		for j := range c.Events {
			ev := &c.Events[j]
			if !ev.IsSensorSample() {
				continue
			}
			days := int(ev.Date.Sub(c.StartDate).Hours() / 24)
			if days < 0 {
				continue
			}
			phase := DeterminePhase(days)
			key := PatternKey(c.SeedStrain, phase)

			acc, ok := accumulators[key]
			if !ok {
				acc = &patternAccumulator{
					strain:  c.SeedStrain,
					phase:   phase,
					values:  map[grow.ParameterKey][]float64{},
					counted: map[string]bool{},
				}
				accumulators[key] = acc
			}
			if !acc.counted[c.ID] {
				acc.counted[c.ID] = true
				acc.scores = append(acc.scores, score)
			}
			for _, param := range baseParameters {
				v := ev.SensorValue(param.Key)
				if math.IsNaN(v) {
					continue
				}
				acc.values[param.Key] = append(acc.values[param.Key], v)
			}
		}
	}

	learned := 0
	now := time.Now()
	for key, acc := range accumulators {
		pattern := &CultivationPattern{
			Key:         key,
			SeedStrain:  acc.strain,
			Phase:       acc.phase,
			Baselines:   map[grow.ParameterKey]ParameterBaseline{},
			SuccessRate: average(acc.scores),
			UpdatedAt:   now,
		}
		for paramKey, values := range acc.values {
			baseline, ok := computeBaseline(values)
			if !ok {
				continue
			}
			pattern.Baselines[paramKey] = baseline
			if baseline.SampleCount > pattern.SampleSize {
				pattern.SampleSize = baseline.SampleCount
			}
		}
		if len(pattern.Baselines) == 0 {
			continue
		}
		if err := l.patterns.Put(ctx, pattern); err != nil {
			return learned, errors.New(err).
				Component("detector").
				Category(errors.CategoryBaseline).
				Context("pattern_key", key).
				Build()
		}
		learned++
	}
	return learned, nil
}

// Pattern returns the learned pattern for a strain/phase pair, or nil
// when none has been learned yet.
func (l *Learner) Pattern(ctx context.Context, strain string, phase Phase) (*CultivationPattern, error) {
	return l.patterns.Get(ctx, PatternKey(strain, phase))
}

// HasEnoughData reports whether a pattern exists and carries at least
// the configured minimum number of samples.
func (l *Learner) HasEnoughData(ctx context.Context, strain string, phase Phase) bool {
	pattern, err := l.patterns.Get(ctx, PatternKey(strain, phase))
	if err != nil || pattern == nil {
		return false
	}
	return pattern.SampleSize >= l.minSamples
}

func computeBaseline(values []float64) (ParameterBaseline, bool) {
	if len(values) == 0 {
		return ParameterBaseline{}, false
	}
	mean, err := stats.Mean(values)
	if err != nil {
		return ParameterBaseline{}, false
	}
	variance, err := stats.PopulationVariance(values)
	if err != nil {
		return ParameterBaseline{}, false
	}
	minVal, err := stats.Min(values)
	if err != nil {
		return ParameterBaseline{}, false
	}
	maxVal, err := stats.Max(values)
	if err != nil {
		return ParameterBaseline{}, false
	}
	sigma := math.Sqrt(variance)
	return ParameterBaseline{
		Mean:              mean,
		StandardDeviation: sigma,
		Min:               minVal,
		Max:               maxVal,
		OptimalLow:        mean - sigma,
		OptimalHigh:       mean + sigma,
		SampleCount:       len(values),
	}, true
}

// successScore normalizes a completed run's outcome into [0,1].
func successScore(c *grow.Cultivation) float64 {
	yieldScore := math.Min(c.YieldGrams/referenceYieldGrams, 1)
	profitScore := math.Min(c.ProfitBRL/referenceProfitBRL, 1)
	return (yieldScore + profitScore) / 2
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
