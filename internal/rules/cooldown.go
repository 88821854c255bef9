package rules

import (
	"fmt"
	"sync"
	"time"

	"github.com/mverde/growmon-go/internal/conf"
)

// MinCooldown is the floor applied even when a rule asks for less.
const MinCooldown = 5 * time.Minute

// CooldownManager suppresses repeat firings of a rule. The suppression
// key is (rule, user) by default; with the cultivation scope each
// cultivation gets its own window. Expiry is checked by timestamp
// comparison on access, no timers are scheduled.
type CooldownManager struct {
	mu    sync.Mutex
	scope string
	until map[string]time.Time
	now   func() time.Time
}

func NewCooldownManager(scope string) *CooldownManager {
	if scope != conf.CooldownScopeCultivation {
		scope = conf.CooldownScopeUser
	}
	return &CooldownManager{
		scope: scope,
		until: map[string]time.Time{},
		now:   time.Now,
	}
}

func (m *CooldownManager) key(ruleID, userID, cultivationID string) string {
	if m.scope == conf.CooldownScopeCultivation {
		return fmt.Sprintf("%s|%s|%s", ruleID, userID, cultivationID)
	}
	return fmt.Sprintf("%s|%s", ruleID, userID)
}

// IsActive reports whether the rule is still inside its window.
func (m *CooldownManager) IsActive(ruleID, userID, cultivationID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	until, ok := m.until[m.key(ruleID, userID, cultivationID)]
	if !ok {
		return false
	}
	return m.now().Before(until)
}

// Set starts a cooldown window, applying the minimum floor.
func (m *CooldownManager) Set(ruleID, userID, cultivationID string, d time.Duration) {
	if d < MinCooldown {
		d = MinCooldown
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.until[m.key(ruleID, userID, cultivationID)] = m.now().Add(d)
}

// Prune drops expired entries so the map does not grow unbounded.
func (m *CooldownManager) Prune() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	removed := 0
	for k, until := range m.until {
		if !now.Before(until) {
			delete(m.until, k)
			removed++
		}
	}
	return removed
}

// Active returns the number of live windows, for stats.
func (m *CooldownManager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	count := 0
	for _, until := range m.until {
		if now.Before(until) {
			count++
		}
	}
	return count
}
