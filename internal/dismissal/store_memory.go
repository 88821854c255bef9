package dismissal

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a thread-safe in-memory Store used as a test double.
type MemoryStore struct {
	mu         sync.RWMutex
	dismissals []DismissedAnomaly
	states     map[string]ProcessingState
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states: make(map[string]ProcessingState),
	}
}

// SaveDismissal appends a dismissal entry.
func (ms *MemoryStore) SaveDismissal(_ context.Context, d *DismissedAnomaly) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.dismissals = append(ms.dismissals, *d)
	return nil
}

// ListDismissals returns entries matching (cultivationID, parameter).
func (ms *MemoryStore) ListDismissals(_ context.Context, cultivationID, parameter string) ([]DismissedAnomaly, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var matches []DismissedAnomaly
	for i := range ms.dismissals {
		d := &ms.dismissals[i]
		if d.CultivationID == cultivationID && d.Parameter == parameter {
			matches = append(matches, *d)
		}
	}
	return matches, nil
}

// DeleteDismissalsBefore removes entries dismissed before the cutoff.
func (ms *MemoryStore) DeleteDismissalsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	kept := ms.dismissals[:0]
	var removed int64
	for i := range ms.dismissals {
		if ms.dismissals[i].DismissedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, ms.dismissals[i])
	}
	ms.dismissals = kept
	return removed, nil
}

// GetProcessingState returns the state for a cultivation, or nil if absent.
func (ms *MemoryStore) GetProcessingState(_ context.Context, cultivationID string) (*ProcessingState, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	state, ok := ms.states[cultivationID]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

// SaveProcessingState upserts the state for a cultivation.
func (ms *MemoryStore) SaveProcessingState(_ context.Context, state *ProcessingState) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.states[state.CultivationID] = *state
	return nil
}

// CountDismissals returns total and per-reason counts.
func (ms *MemoryStore) CountDismissals(_ context.Context) (int64, map[Reason]int64, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	byReason := make(map[Reason]int64)
	for i := range ms.dismissals {
		byReason[ms.dismissals[i].Reason]++
	}
	return int64(len(ms.dismissals)), byReason, nil
}
