package rules

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mverde/growmon-go/internal/conf"
	"github.com/mverde/growmon-go/internal/gemini"
	"github.com/mverde/growmon-go/internal/grow"
	"github.com/mverde/growmon-go/internal/notify"
)

func fptr(v float64) *float64 { return &v }

// recordingNotifier captures created notifications.
type recordingNotifier struct {
	mu      sync.Mutex
	created []notify.CreateRequest
	err     error
}

func (n *recordingNotifier) Create(_ context.Context, req notify.CreateRequest) (*notify.Notification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return nil, n.err
	}
	n.created = append(n.created, req)
	return &notify.Notification{ID: "n", UserID: req.UserID}, nil
}

func (n *recordingNotifier) byRule(ruleID string) []notify.CreateRequest {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notify.CreateRequest
	for _, req := range n.created {
		if req.Metadata["ruleId"] == ruleID {
			out = append(out, req)
		}
	}
	return out
}

type stubAnalyzer struct {
	resp *gemini.AnalysisResponse
	err  error
}

func (a stubAnalyzer) AnalyzeCultivation(context.Context, gemini.AnalysisRequest) (*gemini.AnalysisResponse, error) {
	return a.resp, a.err
}

func seedCultivation(store *grow.MemStore, daysSinceStart int, events ...grow.Event) *grow.Cultivation {
	c := grow.Cultivation{
		ID:         "c1",
		Name:       "Tent A",
		UserID:     "u1",
		SeedStrain: "Northern Lights",
		StartDate:  time.Now().AddDate(0, 0, -daysSinceStart),
		Status:     grow.StatusActive,
	}
	store.AddUser(grow.User{ID: "u1", Email: "grower@example.com", Name: "Grower"})
	store.AddCultivation(c)
	for _, ev := range events {
		ev.CultivationID = c.ID
		store.AddEvent(ev)
	}
	return &c
}

func newTestEngine(store *grow.MemStore, analyzer Analyzer, scope string) (*Engine, *recordingNotifier, *CooldownManager) {
	notifier := &recordingNotifier{}
	cooldowns := NewCooldownManager(scope)
	engine := NewEngine(store, notifier, cooldowns, analyzer, nil)
	return engine, notifier, cooldowns
}

// No watering event in history: the sentinel counts as overdue.
func TestWateringOverdue_FiresOnNeverWatered(t *testing.T) {
	t.Parallel()

	store := grow.NewMemStore()
	seedCultivation(store, 30)
	engine, notifier, _ := newTestEngine(store, nil, conf.CooldownScopeUser)

	rc := BuildContext(mustGet(t, store, "c1"), time.Now())
	assert.Equal(t, NeverSentinel, rc.DaysSinceLastWatering)

	_, err := engine.Evaluate(context.Background(), "c1")
	require.NoError(t, err)
	assert.Len(t, notifier.byRule(RuleWateringOverdue), 1)
}

func TestWateringOverdue_QuietWhenRecentlyWatered(t *testing.T) {
	t.Parallel()

	store := grow.NewMemStore()
	seedCultivation(store, 30, grow.Event{
		ID:   "w1",
		Date: time.Now().Add(-24 * time.Hour),
		Type: grow.EventWatering,
	})
	engine, notifier, _ := newTestEngine(store, nil, conf.CooldownScopeUser)

	_, err := engine.Evaluate(context.Background(), "c1")
	require.NoError(t, err)
	assert.Empty(t, notifier.byRule(RuleWateringOverdue))
}

// Two evaluations inside the window fire once; after expiry, again.
func TestCooldown_SuppressesSecondFire(t *testing.T) {
	t.Parallel()

	store := grow.NewMemStore()
	seedCultivation(store, 30)
	engine, notifier, cooldowns := newTestEngine(store, nil, conf.CooldownScopeUser)

	clock := time.Now()
	cooldowns.now = func() time.Time { return clock }

	ctx := context.Background()
	_, err := engine.Evaluate(ctx, "c1")
	require.NoError(t, err)
	_, err = engine.Evaluate(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, notifier.byRule(RuleWateringOverdue), 1)

	// Past the 60-minute window the rule may fire again
	clock = clock.Add(61 * time.Minute)
	_, err = engine.Evaluate(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, notifier.byRule(RuleWateringOverdue), 2)
}

func TestCooldown_UserScopeSpansCultivations(t *testing.T) {
	t.Parallel()

	cooldowns := NewCooldownManager(conf.CooldownScopeUser)
	cooldowns.Set("r1", "u1", "c1", time.Hour)

	assert.True(t, cooldowns.IsActive("r1", "u1", "c2"), "user scope ignores the cultivation")
	assert.False(t, cooldowns.IsActive("r1", "u2", "c1"))
}

func TestCooldown_CultivationScopeIsolates(t *testing.T) {
	t.Parallel()

	cooldowns := NewCooldownManager(conf.CooldownScopeCultivation)
	cooldowns.Set("r1", "u1", "c1", time.Hour)

	assert.True(t, cooldowns.IsActive("r1", "u1", "c1"))
	assert.False(t, cooldowns.IsActive("r1", "u1", "c2"))
}

func TestCooldown_FloorApplied(t *testing.T) {
	t.Parallel()

	cooldowns := NewCooldownManager(conf.CooldownScopeUser)
	clock := time.Now()
	cooldowns.now = func() time.Time { return clock }

	cooldowns.Set("r1", "u1", "c1", time.Second)

	clock = clock.Add(2 * time.Minute)
	assert.True(t, cooldowns.IsActive("r1", "u1", "c1"), "floor keeps the window open")

	clock = clock.Add(4 * time.Minute)
	assert.False(t, cooldowns.IsActive("r1", "u1", "c1"))
}

func TestEnvironmentalAlert_FromLatestSample(t *testing.T) {
	t.Parallel()

	store := grow.NewMemStore()
	seedCultivation(store, 30,
		grow.Event{ID: "w1", Date: time.Now().Add(-2 * time.Hour), Type: grow.EventWatering},
		grow.Event{ID: "s1", Date: time.Now().Add(-time.Hour), Type: grow.EventSensor, TemperatureC: fptr(33)},
	)
	engine, notifier, _ := newTestEngine(store, nil, conf.CooldownScopeUser)

	_, err := engine.Evaluate(context.Background(), "c1")
	require.NoError(t, err)

	fired := notifier.byRule(RuleEnvironmentalAlert)
	require.Len(t, fired, 1)
	assert.Equal(t, notify.TypeAlert, fired[0].Type)
	assert.Contains(t, fired[0].Message, "temperature")
}

func TestEnvironmentalAlert_NoSensorDataStaysQuiet(t *testing.T) {
	t.Parallel()

	store := grow.NewMemStore()
	seedCultivation(store, 30,
		grow.Event{ID: "w1", Date: time.Now().Add(-time.Hour), Type: grow.EventWatering},
	)
	engine, notifier, _ := newTestEngine(store, nil, conf.CooldownScopeUser)

	_, err := engine.Evaluate(context.Background(), "c1")
	require.NoError(t, err)
	assert.Empty(t, notifier.byRule(RuleEnvironmentalAlert))
}

// A cultivation created today counts as a phase boundary, so the
// phase-change rule announces the seedling phase on day zero.
func TestPhaseChange_FiresOnCreationDay(t *testing.T) {
	t.Parallel()

	store := grow.NewMemStore()
	seedCultivation(store, 0)
	engine, notifier, _ := newTestEngine(store, nil, conf.CooldownScopeUser)

	_, err := engine.Evaluate(context.Background(), "c1")
	require.NoError(t, err)

	fired := notifier.byRule(RulePhaseChangeDetected)
	require.Len(t, fired, 1)
	assert.Contains(t, fired[0].Message, "seedling")
}

func TestAIAnalysis_FallbackOnCollaboratorError(t *testing.T) {
	t.Parallel()

	store := grow.NewMemStore()
	now := time.Now()
	seedCultivation(store, 30,
		grow.Event{ID: "w1", Date: now.Add(-24 * time.Hour), Type: grow.EventWatering},
		grow.Event{ID: "s1", Date: now.Add(-2 * time.Hour), Type: grow.EventSensor, PH: fptr(6.0)},
		grow.Event{ID: "s2", Date: now.Add(-time.Hour), Type: grow.EventSensor, PH: fptr(6.1)},
	)
	engine, notifier, _ := newTestEngine(store, stubAnalyzer{err: assert.AnError}, conf.CooldownScopeUser)

	_, err := engine.Evaluate(context.Background(), "c1")
	require.NoError(t, err, "collaborator failure must not abort the batch")

	fired := notifier.byRule(RuleAIAnalysisAlert)
	require.Len(t, fired, 1)
	assert.Equal(t, "Verification recommended", fired[0].Title)
	assert.Equal(t, true, fired[0].Metadata["fallback"])
}

func TestAIAnalysis_CriticalFindingBecomesAlert(t *testing.T) {
	t.Parallel()

	store := grow.NewMemStore()
	now := time.Now()
	seedCultivation(store, 30,
		grow.Event{ID: "w1", Date: now.Add(-24 * time.Hour), Type: grow.EventWatering},
		grow.Event{ID: "s1", Date: now.Add(-2 * time.Hour), Type: grow.EventSensor, TemperatureC: fptr(29)},
		grow.Event{ID: "s2", Date: now.Add(-time.Hour), Type: grow.EventSensor, TemperatureC: fptr(29.5)},
	)
	analyzer := stubAnalyzer{resp: &gemini.AnalysisResponse{
		Analysis: "Sustained heat stress detected.",
		Anomalies: []gemini.AnalysisAnomaly{
			{Parameter: "temperature", Severity: "critical", Description: "Heat stress.", Recommendation: "Improve exhaust."},
		},
	}}
	engine, notifier, _ := newTestEngine(store, analyzer, conf.CooldownScopeUser)

	_, err := engine.Evaluate(context.Background(), "c1")
	require.NoError(t, err)

	fired := notifier.byRule(RuleAIAnalysisAlert)
	require.Len(t, fired, 1)
	assert.Equal(t, notify.TypeAlert, fired[0].Type)
	assert.Equal(t, notify.PriorityCritical, fired[0].Priority)
	assert.Contains(t, fired[0].Title, "temperature")
}

func TestAIAnalysis_HighFindingBecomesAlert(t *testing.T) {
	t.Parallel()

	store := grow.NewMemStore()
	now := time.Now()
	seedCultivation(store, 30,
		grow.Event{ID: "w1", Date: now.Add(-24 * time.Hour), Type: grow.EventWatering},
		grow.Event{ID: "s1", Date: now.Add(-2 * time.Hour), Type: grow.EventSensor, EC: fptr(1.4)},
		grow.Event{ID: "s2", Date: now.Add(-time.Hour), Type: grow.EventSensor, EC: fptr(1.5)},
	)
	analyzer := stubAnalyzer{resp: &gemini.AnalysisResponse{
		Analysis: "Nutrient concentration trending up.",
		Anomalies: []gemini.AnalysisAnomaly{
			{Parameter: "ec", Severity: "high", Description: "EC climbing.", Recommendation: "Dilute the solution."},
		},
	}}
	engine, notifier, _ := newTestEngine(store, analyzer, conf.CooldownScopeUser)

	_, err := engine.Evaluate(context.Background(), "c1")
	require.NoError(t, err)

	fired := notifier.byRule(RuleAIAnalysisAlert)
	require.Len(t, fired, 1)
	assert.Equal(t, notify.TypeAlert, fired[0].Type)
	assert.Equal(t, notify.PriorityHigh, fired[0].Priority)
	assert.Contains(t, fired[0].Title, "ec")
}

func TestAIAnalysis_LowFindingsFallBackToReminder(t *testing.T) {
	t.Parallel()

	store := grow.NewMemStore()
	now := time.Now()
	seedCultivation(store, 30,
		grow.Event{ID: "w1", Date: now.Add(-24 * time.Hour), Type: grow.EventWatering},
		grow.Event{ID: "s1", Date: now.Add(-2 * time.Hour), Type: grow.EventSensor, PH: fptr(6.0)},
		grow.Event{ID: "s2", Date: now.Add(-time.Hour), Type: grow.EventSensor, PH: fptr(6.1)},
	)
	analyzer := stubAnalyzer{resp: &gemini.AnalysisResponse{
		Analysis: "Minor drift only.",
		Anomalies: []gemini.AnalysisAnomaly{
			{Parameter: "ph", Severity: "medium", Description: "Slight drift.", Recommendation: "Keep observing."},
		},
	}}
	engine, notifier, _ := newTestEngine(store, analyzer, conf.CooldownScopeUser)

	_, err := engine.Evaluate(context.Background(), "c1")
	require.NoError(t, err)

	fired := notifier.byRule(RuleAIAnalysisAlert)
	require.Len(t, fired, 1)
	assert.Equal(t, notify.TypeReminder, fired[0].Type)
	assert.Equal(t, "Verification recommended", fired[0].Title)
	assert.Equal(t, true, fired[0].Metadata["fallback"])
}

func TestEvaluate_NotifierFailureDoesNotAbort(t *testing.T) {
	t.Parallel()

	store := grow.NewMemStore()
	seedCultivation(store, 30)
	notifier := &recordingNotifier{err: assert.AnError}
	engine := NewEngine(store, notifier, NewCooldownManager(conf.CooldownScopeUser), nil, nil)

	created, err := engine.Evaluate(context.Background(), "c1")
	require.NoError(t, err)
	assert.Zero(t, created)
}

func TestSetEnabledAndDisabledFromSettings(t *testing.T) {
	t.Parallel()

	store := grow.NewMemStore()
	seedCultivation(store, 30)
	notifier := &recordingNotifier{}
	engine := NewEngine(store, notifier, NewCooldownManager(conf.CooldownScopeUser), nil,
		&conf.RulesSettings{Disabled: []string{RuleWateringOverdue}})

	_, err := engine.Evaluate(context.Background(), "c1")
	require.NoError(t, err)
	assert.Empty(t, notifier.byRule(RuleWateringOverdue))

	require.True(t, engine.SetEnabled(RuleWateringOverdue, true))
	_, err = engine.Evaluate(context.Background(), "c1")
	require.NoError(t, err)
	assert.Len(t, notifier.byRule(RuleWateringOverdue), 1)

	assert.False(t, engine.SetEnabled("no-such-rule", true))
}

func mustGet(t *testing.T, store *grow.MemStore, id string) *grow.Cultivation {
	t.Helper()
	c, err := store.GetCultivation(context.Background(), id)
	require.NoError(t, err)
	return c
}
