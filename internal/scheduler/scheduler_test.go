package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mverde/growmon-go/internal/conf"
	"github.com/mverde/growmon-go/internal/detector"
	"github.com/mverde/growmon-go/internal/dismissal"
	"github.com/mverde/growmon-go/internal/gemini"
	"github.com/mverde/growmon-go/internal/grow"
	"github.com/mverde/growmon-go/internal/notify"
	"github.com/mverde/growmon-go/internal/rules"
)

func fptr(v float64) *float64 { return &v }

type fixture struct {
	store     *grow.MemStore
	scheduler *Scheduler
	notifyMem *notify.MemoryStore
	ledger    *dismissal.Ledger
	svc       *notify.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := grow.NewMemStore()
	ledger := dismissal.NewLedger(dismissal.NewMemoryStore())
	learner := detector.NewLearner(store, detector.NewMemoryPatternStore(), detector.MinPatternSamples)
	det := detector.NewDetector(learner, ledger)

	notifyMem := notify.NewMemoryStore()
	svc := notify.NewService(notifyMem, &conf.NotificationSettings{
		RateLimitPerMinute: 120,
		RateLimitBurst:     50,
	})

	cooldowns := rules.NewCooldownManager(conf.CooldownScopeUser)
	engine := rules.NewEngine(store, svc, cooldowns, nil, nil)

	settings := &conf.Settings{}
	settings.Monitor.DismissalRetentionDays = 30
	settings.Notification.RetentionDays = 30

	sched := New(store, det, engine, ledger, svc, cooldowns, nil, settings)
	return &fixture{store: store, scheduler: sched, notifyMem: notifyMem, ledger: ledger, svc: svc}
}

func (f *fixture) seed(id string, daysSinceStart int, events ...grow.Event) {
	c := grow.Cultivation{
		ID:         id,
		Name:       "Tent " + id,
		UserID:     "u1",
		SeedStrain: "Northern Lights",
		StartDate:  time.Now().AddDate(0, 0, -daysSinceStart),
		Status:     grow.StatusActive,
	}
	f.store.AddUser(grow.User{ID: "u1", Email: "grower@example.com", Name: "Grower"})
	f.store.AddCultivation(c)
	for _, ev := range events {
		ev.CultivationID = id
		f.store.AddEvent(ev)
	}
}

func TestCheckCultivations_DetectsAndNotifies(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	now := time.Now()
	f.seed("c1", 90,
		grow.Event{ID: "w1", Date: now.Add(-24 * time.Hour), Type: grow.EventWatering},
		grow.Event{ID: "s1", Date: now.Add(-time.Hour), Type: grow.EventSensor, HumidityPct: fptr(75)},
	)

	stats, err := f.scheduler.CheckCultivations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.CultivationsChecked)
	assert.Equal(t, 1, stats.AnomaliesDetected)
	assert.Zero(t, stats.Errors)

	// The humidity anomaly lands in the user's inbox as an alert
	list, err := f.svc.List(context.Background(), "u1", notify.ListFilter{})
	require.NoError(t, err)
	found := false
	for _, n := range list {
		if n.Type == notify.TypeAlert && n.Title == "Humidity out of range" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestCheckCultivations_RejectsConcurrentRun(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.scheduler.isRunning.Store(true)

	_, err := f.scheduler.CheckCultivations(context.Background())
	require.Error(t, err)
}

func TestCheckCultivations_SecondPassIsQuiet(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	now := time.Now()
	f.seed("c1", 90,
		grow.Event{ID: "s1", Date: now.Add(-time.Hour), Type: grow.EventSensor, HumidityPct: fptr(75)},
	)
	ctx := context.Background()

	first, err := f.scheduler.CheckCultivations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.AnomaliesDetected)

	// The watermark now covers the sample, so nothing new is found
	second, err := f.scheduler.CheckCultivations(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.AnomaliesDetected)
}

func TestRunMaintenance_PurgesOldRecords(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.notifyMem.Save(ctx, &notify.Notification{
		ID:        "old-read",
		UserID:    "u1",
		IsRead:    true,
		CreatedAt: time.Now().Add(-60 * 24 * time.Hour),
	}))

	require.NoError(t, f.scheduler.RunMaintenance(ctx))

	list, err := f.svc.List(ctx, "u1", notify.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

type countingAnalyzer struct {
	mu    sync.Mutex
	calls int
}

func (a *countingAnalyzer) AnalyzeCultivation(context.Context, gemini.AnalysisRequest) (*gemini.AnalysisResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	return &gemini.AnalysisResponse{Analysis: "ok"}, nil
}

func TestPacedAnalyzer_BurstThenBlocks(t *testing.T) {
	t.Parallel()

	inner := &countingAnalyzer{}
	paced := NewPacedAnalyzer(inner, 60, 2)

	clock := time.Now()
	paced.now = func() time.Time { return clock }

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := paced.AnalyzeCultivation(ctx, gemini.AnalysisRequest{})
		require.NoError(t, err)
	}

	// Bucket empty: a canceled context aborts the wait
	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err := paced.AnalyzeCultivation(canceled, gemini.AnalysisRequest{})
	require.Error(t, err)
	assert.Equal(t, 2, inner.calls)

	// A minute later a token has accrued
	clock = clock.Add(time.Minute)
	_, err = paced.AnalyzeCultivation(ctx, gemini.AnalysisRequest{})
	require.NoError(t, err)
	assert.Equal(t, 3, inner.calls)
}

func TestStats_ReflectLastRun(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seed("c1", 30)

	_, err := f.scheduler.CheckCultivations(context.Background())
	require.NoError(t, err)

	stats := f.scheduler.Stats()
	assert.Equal(t, 1, stats.CultivationsChecked)
	assert.False(t, stats.LastRun.IsZero())
}
