// Package notify delivers and stores user notifications raised by the
// monitoring pipeline, honoring per-user preferences and quiet hours.
package notify

import (
	"time"
)

// Type categorizes a notification.
type Type string

const (
	TypeReminder    Type = "reminder"
	TypeAlert       Type = "alert"
	TypeAchievement Type = "achievement"
	TypeSystem      Type = "system"
	TypeMarketing   Type = "marketing"
)

// Priority orders notifications for display and delivery.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Channel is a delivery surface.
type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelPush  Channel = "push"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Notification is a stored message for one user.
type Notification struct {
	ID        string     `gorm:"primaryKey" json:"id"`
	UserID    string     `gorm:"index:idx_notification_user_read" json:"userId"`
	Type      Type       `json:"type"`
	Priority  Priority   `json:"priority"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Channels  string     `json:"channels"` // comma-separated Channel values
	Metadata  string     `gorm:"type:text" json:"metadata,omitempty"`
	ActionURL string     `json:"actionUrl,omitempty"`
	IsRead    bool       `gorm:"index:idx_notification_user_read" json:"isRead"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
	CreatedAt time.Time  `gorm:"index" json:"createdAt"`
}

// Preferences controls which notifications a user receives and where.
type Preferences struct {
	UserID string `gorm:"primaryKey" json:"userId"`

	RemindersEnabled    bool `json:"remindersEnabled"`
	AlertsEnabled       bool `json:"alertsEnabled"`
	AchievementsEnabled bool `json:"achievementsEnabled"`
	MarketingEnabled    bool `json:"marketingEnabled"`

	PushEnabled  bool `json:"pushEnabled"`
	EmailEnabled bool `json:"emailEnabled"`

	// Hours in [0,24); nil disables quiet hours. A start after the end
	// wraps past midnight.
	QuietHoursStart *int `json:"quietHoursStart,omitempty"`
	QuietHoursEnd   *int `json:"quietHoursEnd,omitempty"`
}

// DefaultPreferences is what a user gets before saving any choices.
func DefaultPreferences(userID string) Preferences {
	return Preferences{
		UserID:              userID,
		RemindersEnabled:    true,
		AlertsEnabled:       true,
		AchievementsEnabled: true,
		MarketingEnabled:    false,
		PushEnabled:         true,
		EmailEnabled:        true,
	}
}

// allows reports whether the preferences permit this notification type.
// System notifications are always allowed.
func (p *Preferences) allows(t Type) bool {
	switch t {
	case TypeReminder:
		return p.RemindersEnabled
	case TypeAlert:
		return p.AlertsEnabled
	case TypeAchievement:
		return p.AchievementsEnabled
	case TypeMarketing:
		return p.MarketingEnabled
	case TypeSystem:
		return true
	}
	return true
}
