package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mverde/growmon-go/internal/conf"
	"github.com/mverde/growmon-go/internal/errors"
	"github.com/mverde/growmon-go/internal/logging"
)

var (
	serviceLogger      *slog.Logger
	serviceLevelVar    = new(slog.LevelVar)
	closeServiceLogger func() error
)

func init() {
	var err error
	serviceLogger, closeServiceLogger, err = logging.NewFileLogger(
		"logs/notifications.log", "notify", serviceLevelVar)
	if err != nil || serviceLogger == nil {
		serviceLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))
		closeServiceLogger = func() error { return nil }
	}
}

// CreateRequest describes a notification to be raised.
type CreateRequest struct {
	UserID    string
	Type      Type
	Priority  Priority
	Title     string
	Message   string
	Channels  []Channel
	Metadata  map[string]any
	ActionURL string
}

// Service creates and manages notifications, enforcing per-user rate
// limits and delivery preferences.
type Service struct {
	store   Store
	limiter *rateLimiter
	now     func() time.Time
}

func NewService(store Store, settings *conf.NotificationSettings) *Service {
	ratePerMinute, burst := 0, 0
	if settings != nil {
		ratePerMinute = settings.RateLimitPerMinute
		burst = settings.RateLimitBurst
	}
	return &Service{
		store:   store,
		limiter: newRateLimiter(ratePerMinute, burst),
		now:     time.Now,
	}
}

// Create stores a new notification. Requests over the user's rate
// limit are rejected with a limit error so callers can decide whether
// to retry or drop.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Notification, error) {
	if req.UserID == "" || req.Title == "" {
		return nil, errors.Newf("notification requires a user and a title").
			Component("notify").
			Category(errors.CategoryValidation).
			Build()
	}
	now := s.now()
	if !s.limiter.allow(req.UserID, now) {
		serviceLogger.Warn("notification rate limit exceeded",
			"user_id", req.UserID, "type", req.Type)
		return nil, errors.Newf("notification rate limit exceeded for user %s", req.UserID).
			Component("notify").
			Category(errors.CategoryLimit).
			Context("user_id", req.UserID).
			Build()
	}

	if req.Type == "" {
		req.Type = TypeSystem
	}
	if req.Priority == "" {
		req.Priority = PriorityMedium
	}
	if len(req.Channels) == 0 {
		req.Channels = []Channel{ChannelInApp}
	}

	var metadata string
	if len(req.Metadata) > 0 {
		raw, err := json.Marshal(req.Metadata)
		if err != nil {
			return nil, errors.New(err).
				Component("notify").
				Category(errors.CategoryValidation).
				Context("user_id", req.UserID).
				Build()
		}
		metadata = string(raw)
	}

	n := &Notification{
		ID:        uuid.New().String(),
		UserID:    req.UserID,
		Type:      req.Type,
		Priority:  req.Priority,
		Title:     req.Title,
		Message:   req.Message,
		Channels:  joinChannels(req.Channels),
		Metadata:  metadata,
		ActionURL: req.ActionURL,
		CreatedAt: now,
	}
	if err := s.store.Save(ctx, n); err != nil {
		return nil, err
	}

	serviceLogger.Info("notification created",
		"id", n.ID,
		"user_id", n.UserID,
		"type", n.Type,
		"priority", n.Priority,
		"title", n.Title)
	return n, nil
}

// CreateAlert raises an alert notification over in-app and push.
func (s *Service) CreateAlert(ctx context.Context, userID, title, message string, priority Priority, metadata map[string]any) (*Notification, error) {
	return s.Create(ctx, CreateRequest{
		UserID:   userID,
		Type:     TypeAlert,
		Priority: priority,
		Title:    title,
		Message:  message,
		Channels: []Channel{ChannelInApp, ChannelPush},
		Metadata: metadata,
	})
}

// CreateReminder raises a reminder notification.
func (s *Service) CreateReminder(ctx context.Context, userID, title, message string, metadata map[string]any) (*Notification, error) {
	return s.Create(ctx, CreateRequest{
		UserID:   userID,
		Type:     TypeReminder,
		Priority: PriorityMedium,
		Title:    title,
		Message:  message,
		Channels: []Channel{ChannelInApp, ChannelPush},
		Metadata: metadata,
	})
}

// CreateAchievement raises an achievement notification.
func (s *Service) CreateAchievement(ctx context.Context, userID, title, message string, metadata map[string]any) (*Notification, error) {
	return s.Create(ctx, CreateRequest{
		UserID:   userID,
		Type:     TypeAchievement,
		Priority: PriorityLow,
		Title:    title,
		Message:  message,
		Channels: []Channel{ChannelInApp},
		Metadata: metadata,
	})
}

func (s *Service) List(ctx context.Context, userID string, filter ListFilter) ([]Notification, error) {
	return s.store.List(ctx, userID, filter)
}

func (s *Service) MarkAsRead(ctx context.Context, id string) error {
	return s.store.MarkRead(ctx, id, s.now())
}

func (s *Service) MarkAllAsRead(ctx context.Context, userID string) (int64, error) {
	return s.store.MarkAllRead(ctx, userID, s.now())
}

func (s *Service) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return s.store.UnreadCount(ctx, userID)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

// CleanupOld removes read notifications older than the retention
// window. Unread notifications are kept regardless of age.
func (s *Service) CleanupOld(ctx context.Context, retention time.Duration) (int64, error) {
	removed, err := s.store.DeleteOlderThan(ctx, s.now().Add(-retention), true)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		serviceLogger.Info("old notifications removed", "count", removed)
	}
	return removed, nil
}

// ShouldSend decides whether a notification of the given type may go
// out on a channel right now. Preference lookups fail open so a store
// outage never silences the system.
func (s *Service) ShouldSend(ctx context.Context, userID string, t Type, channel Channel) bool {
	prefs, err := s.store.GetPreferences(ctx, userID)
	if err != nil || prefs == nil {
		serviceLogger.Warn("preference lookup failed, sending anyway",
			"user_id", userID, "error", err)
		return true
	}

	if t != TypeSystem && !prefs.allows(t) {
		return false
	}

	switch channel {
	case ChannelInApp:
		return true
	case ChannelSMS:
		return false
	case ChannelEmail:
		return prefs.EmailEnabled
	case ChannelPush:
		if !prefs.PushEnabled {
			return false
		}
		return !s.inQuietHours(prefs)
	}
	return true
}

// inQuietHours checks the current hour against the user's quiet window,
// handling windows that wrap past midnight (e.g. 22 to 7).
func (s *Service) inQuietHours(prefs *Preferences) bool {
	if prefs.QuietHoursStart == nil || prefs.QuietHoursEnd == nil {
		return false
	}
	start, end := *prefs.QuietHoursStart, *prefs.QuietHoursEnd
	if start == end {
		return false
	}
	hour := s.now().Hour()
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

// Close flushes the service log file.
func (s *Service) Close() error {
	return closeServiceLogger()
}

func joinChannels(channels []Channel) string {
	parts := make([]string, len(channels))
	for i, c := range channels {
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}
