package dismissal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	return NewLedger(NewMemoryStore())
}

func TestIsDismissed_TimestampOrdering(t *testing.T) {
	t.Parallel()

	ledger := newTestLedger(t)
	ctx := context.Background()
	dataTS := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, ledger.RecordDismissal(ctx, "c1", "pH", dataTS, ReasonCorrected))

	// Reflexive: an anomaly at exactly the dismissed data timestamp is suppressed
	assert.True(t, ledger.IsDismissed(ctx, "c1", "pH", dataTS))

	// Earlier readings are suppressed too
	assert.True(t, ledger.IsDismissed(ctx, "c1", "pH", dataTS.Add(-time.Hour)))

	// A strictly newer reading re-triggers
	assert.False(t, ledger.IsDismissed(ctx, "c1", "pH", dataTS.Add(time.Second)))
}

func TestIsDismissed_NoDataTimestampSuppressesForever(t *testing.T) {
	t.Parallel()

	ledger := newTestLedger(t)
	ctx := context.Background()

	// Zero data timestamp produces an open-ended dismissal
	require.NoError(t, ledger.RecordDismissal(ctx, "c1", "pH", time.Time{}, ReasonAcknowledged))

	farFuture := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.True(t, ledger.IsDismissed(ctx, "c1", "pH", farFuture))
	assert.True(t, ledger.IsDismissed(ctx, "c1", "pH", time.Time{}))
}

func TestIsDismissed_ScopedToCultivationAndParameter(t *testing.T) {
	t.Parallel()

	ledger := newTestLedger(t)
	ctx := context.Background()
	ts := time.Now()

	require.NoError(t, ledger.RecordDismissal(ctx, "c1", "pH", ts, ReasonCorrected))

	assert.False(t, ledger.IsDismissed(ctx, "c2", "pH", ts), "different cultivation")
	assert.False(t, ledger.IsDismissed(ctx, "c1", "Humidity", ts), "different parameter")
}

func TestAdvanceProcessed_Monotonic(t *testing.T) {
	t.Parallel()

	ledger := newTestLedger(t)
	ctx := context.Background()

	t1 := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	require.NoError(t, ledger.AdvanceProcessed(ctx, "c1", t1))
	assert.Equal(t, t1, ledger.LastProcessed(ctx, "c1"))

	require.NoError(t, ledger.AdvanceProcessed(ctx, "c1", t2))
	assert.Equal(t, t2, ledger.LastProcessed(ctx, "c1"))

	// A regression is ignored, not an error
	require.NoError(t, ledger.AdvanceProcessed(ctx, "c1", t1))
	assert.Equal(t, t2, ledger.LastProcessed(ctx, "c1"))
}

func TestLastProcessed_UnknownCultivationIsZero(t *testing.T) {
	t.Parallel()

	ledger := newTestLedger(t)
	assert.True(t, ledger.LastProcessed(context.Background(), "never-seen").IsZero())
}

func TestPurgeOlderThan(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ledger := NewLedger(store)
	ctx := context.Background()

	old := DismissedAnomaly{
		ID:            "old",
		CultivationID: "c1",
		Parameter:     "pH",
		DismissedAt:   time.Now().Add(-45 * 24 * time.Hour),
		Reason:        ReasonCorrected,
	}
	recent := DismissedAnomaly{
		ID:            "recent",
		CultivationID: "c1",
		Parameter:     "EC",
		DismissedAt:   time.Now().Add(-time.Hour),
		Reason:        ReasonAcknowledged,
	}
	require.NoError(t, store.SaveDismissal(ctx, &old))
	require.NoError(t, store.SaveDismissal(ctx, &recent))

	removed, err := ledger.PurgeOlderThan(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	stats, err := ledger.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Total)
	assert.EqualValues(t, 1, stats.ByReason[ReasonAcknowledged])
}

func TestIsDismissed_FailsOpenOnStoreError(t *testing.T) {
	t.Parallel()

	ledger := NewLedger(failingStore{})
	assert.False(t, ledger.IsDismissed(context.Background(), "c1", "pH", time.Now()))
}

// failingStore simulates a broken persistence backend.
type failingStore struct{}

func (failingStore) SaveDismissal(context.Context, *DismissedAnomaly) error {
	return assert.AnError
}

func (failingStore) ListDismissals(context.Context, string, string) ([]DismissedAnomaly, error) {
	return nil, assert.AnError
}

func (failingStore) DeleteDismissalsBefore(context.Context, time.Time) (int64, error) {
	return 0, assert.AnError
}

func (failingStore) GetProcessingState(context.Context, string) (*ProcessingState, error) {
	return nil, assert.AnError
}

func (failingStore) SaveProcessingState(context.Context, *ProcessingState) error {
	return assert.AnError
}

func (failingStore) CountDismissals(context.Context) (int64, map[Reason]int64, error) {
	return 0, nil, assert.AnError
}
