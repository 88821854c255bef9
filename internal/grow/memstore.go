package grow

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/mverde/growmon-go/internal/errors"
)

// MemStore is an in-memory Store implementation used as a test double and
// for ephemeral runs without a database.
type MemStore struct {
	mu           sync.RWMutex
	users        map[string]User
	cultivations map[string]Cultivation
	events       map[string][]Event // keyed by cultivation id
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		users:        make(map[string]User),
		cultivations: make(map[string]Cultivation),
		events:       make(map[string][]Event),
	}
}

// AddUser inserts or replaces a user.
func (ms *MemStore) AddUser(user User) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.users[user.ID] = user
}

// AddCultivation inserts or replaces a cultivation.
func (ms *MemStore) AddCultivation(cultivation Cultivation) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.cultivations[cultivation.ID] = cultivation
}

// AddEvent appends an event to a cultivation's history.
func (ms *MemStore) AddEvent(event Event) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.events[event.CultivationID] = append(ms.events[event.CultivationID], event)
}

// GetCultivation fetches a cultivation with user and recent events.
func (ms *MemStore) GetCultivation(_ context.Context, id string) (*Cultivation, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	cultivation, ok := ms.cultivations[id]
	if !ok {
		return nil, errors.Newf("cultivation not found: %s", id).
			Component("growstore").
			Category(errors.CategoryNotFound).
			Build()
	}

	cultivation.User = ms.users[cultivation.UserID]

	events := slices.Clone(ms.events[id])
	sort.Slice(events, func(i, j int) bool {
		return events[i].Date.After(events[j].Date)
	})
	if len(events) > RecentEventLimit {
		events = events[:RecentEventLimit]
	}
	cultivation.Events = events

	return &cultivation, nil
}

// ListActiveCultivations returns cultivations in an active growing status.
func (ms *MemStore) ListActiveCultivations(_ context.Context) ([]Cultivation, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var result []Cultivation
	for _, c := range ms.cultivations {
		switch c.Status {
		case StatusActive, StatusVegetative, StatusFlowering:
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// ListCompletedCultivations returns finished cultivations with full history.
func (ms *MemStore) ListCompletedCultivations(_ context.Context) ([]Cultivation, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var result []Cultivation
	for _, c := range ms.cultivations {
		if c.Status != StatusCompleted {
			continue
		}
		events := slices.Clone(ms.events[c.ID])
		sort.Slice(events, func(i, j int) bool {
			return events[i].Date.Before(events[j].Date)
		})
		c.Events = events
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// EventsSince returns sensor-bearing events after since in ascending date order.
func (ms *MemStore) EventsSince(_ context.Context, cultivationID string, since time.Time) ([]Event, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var samples []Event
	for _, e := range ms.events[cultivationID] {
		if e.IsSensorSample() && (since.IsZero() || e.Date.After(since)) {
			samples = append(samples, e)
		}
	}
	sort.Slice(samples, func(i, j int) bool {
		return samples[i].Date.Before(samples[j].Date)
	})
	return samples, nil
}

// Close is a no-op for the in-memory store.
func (ms *MemStore) Close() error {
	return nil
}
