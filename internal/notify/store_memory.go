package notify

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mverde/growmon-go/internal/errors"
)

// MemoryStore is an in-memory Store for tests and ephemeral runs.
type MemoryStore struct {
	mu            sync.RWMutex
	notifications map[string]Notification
	preferences   map[string]Preferences
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		notifications: map[string]Notification{},
		preferences:   map[string]Preferences{},
	}
}

func (s *MemoryStore) Save(_ context.Context, n *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications[n.ID] = *n
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notifications[id]
	if !ok {
		return nil, errors.Newf("notification not found: %s", id).
			Component("notify").
			Category(errors.CategoryNotFound).
			Build()
	}
	return &n, nil
}

func (s *MemoryStore) List(_ context.Context, userID string, filter ListFilter) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Notification
	for _, n := range s.notifications {
		if n.UserID != userID {
			continue
		}
		if filter.UnreadOnly && n.IsRead {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) MarkRead(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return errors.Newf("notification not found: %s", id).
			Component("notify").
			Category(errors.CategoryNotFound).
			Build()
	}
	n.IsRead = true
	n.ReadAt = &at
	s.notifications[id] = n
	return nil
}

func (s *MemoryStore) MarkAllRead(_ context.Context, userID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for id, n := range s.notifications {
		if n.UserID != userID || n.IsRead {
			continue
		}
		n.IsRead = true
		n.ReadAt = &at
		s.notifications[id] = n
		count++
	}
	return count, nil
}

func (s *MemoryStore) UnreadCount(_ context.Context, userID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int64
	for _, n := range s.notifications {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.notifications, id)
	return nil
}

func (s *MemoryStore) DeleteOlderThan(_ context.Context, cutoff time.Time, readOnly bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for id, n := range s.notifications {
		if !n.CreatedAt.Before(cutoff) {
			continue
		}
		if readOnly && !n.IsRead {
			continue
		}
		delete(s.notifications, id)
		count++
	}
	return count, nil
}

func (s *MemoryStore) GetPreferences(_ context.Context, userID string) (*Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prefs, ok := s.preferences[userID]
	if !ok {
		defaults := DefaultPreferences(userID)
		return &defaults, nil
	}
	return &prefs, nil
}

func (s *MemoryStore) SavePreferences(_ context.Context, prefs *Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preferences[prefs.UserID] = *prefs
	return nil
}
