package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mverde/growmon-go/internal/grow"
)

func TestLifecyclePhase(t *testing.T) {
	t.Parallel()

	now := time.Now()
	tests := []struct {
		name          string
		daysSince     int
		status        string
		wantPhase     LifecyclePhase
		wantSinceFlip int
	}{
		{"day zero", 0, grow.StatusActive, LifecycleSeedling, 0},
		{"last seedling day", 14, grow.StatusActive, LifecycleSeedling, 14},
		{"first vegetative day", 15, grow.StatusActive, LifecycleVegetative, 1},
		{"last vegetative day", 60, grow.StatusActive, LifecycleVegetative, 46},
		{"first flowering day", 61, grow.StatusActive, LifecycleFlowering, 1},
		{"completed is harvest", 120, grow.StatusCompleted, LifecycleHarvest, 0},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			c := &grow.Cultivation{
				StartDate: now.AddDate(0, 0, -tc.daysSince),
				Status:    tc.status,
			}
			rc := BuildContext(c, now)
			assert.Equal(t, tc.wantPhase, rc.Phase)
			assert.Equal(t, tc.wantSinceFlip, rc.DaysSincePhaseChange)
		})
	}
}

func TestGrowthRate(t *testing.T) {
	t.Parallel()

	growthEvents := func(n int) []grow.Event {
		out := make([]grow.Event, n)
		for i := range out {
			out[i] = grow.Event{Type: grow.EventGrowth}
		}
		return out
	}

	assert.Equal(t, 0.5, growthRate(nil), "no signal defaults to neutral")
	assert.Equal(t, 0.5, growthRate(growthEvents(1)))
	assert.Equal(t, 0.2, growthRate(growthEvents(2)))
	assert.Equal(t, 0.7, growthRate(growthEvents(7)))
	assert.Equal(t, 1.0, growthRate(growthEvents(15)), "capped at 1.0")
}

func TestBuildContext_SentinelsAndLatestSample(t *testing.T) {
	t.Parallel()

	now := time.Now()
	c := &grow.Cultivation{
		ID:        "c1",
		StartDate: now.AddDate(0, 0, -30),
		Status:    grow.StatusActive,
		Events: []grow.Event{
			{ID: "s-old", Date: now.Add(-3 * time.Hour), Type: grow.EventSensor, TemperatureC: fptr(20)},
			{ID: "s-new", Date: now.Add(-time.Hour), Type: grow.EventSensor, TemperatureC: fptr(26)},
			{ID: "n1", Date: now.AddDate(0, 0, -6), Type: grow.EventNutrition},
		},
	}

	rc := BuildContext(c, now)
	assert.Equal(t, NeverSentinel, rc.DaysSinceLastWatering)
	assert.Equal(t, 6, rc.DaysSinceLastNutrition)
	assert.Equal(t, 3, rc.EventCount)

	// Environment comes from the newest sensor sample
	if assert.NotNil(t, rc.Env) && assert.NotNil(t, rc.Env.TemperatureC) {
		assert.Equal(t, 26.0, *rc.Env.TemperatureC)
	}
}
