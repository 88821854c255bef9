package notify

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mverde/growmon-go/internal/errors"
)

// ListFilter narrows a notification listing.
type ListFilter struct {
	Limit      int
	Offset     int
	UnreadOnly bool
}

// Store persists notifications and user preferences.
type Store interface {
	Save(ctx context.Context, n *Notification) error
	Get(ctx context.Context, id string) (*Notification, error)
	List(ctx context.Context, userID string, filter ListFilter) ([]Notification, error)
	MarkRead(ctx context.Context, id string, at time.Time) error
	MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
	Delete(ctx context.Context, id string) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time, readOnly bool) (int64, error)
	GetPreferences(ctx context.Context, userID string) (*Preferences, error)
	SavePreferences(ctx context.Context, prefs *Preferences) error
}

// GormStore is the relational Store implementation.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&Notification{}, &Preferences{}); err != nil {
		return nil, errors.New(err).
			Component("notify").
			Category(errors.CategoryDatabase).
			Context("operation", "migrate").
			Build()
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Save(ctx context.Context, n *Notification) error {
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return dbErr(err, "save", n.ID)
	}
	return nil
}

func (s *GormStore) Get(ctx context.Context, id string) (*Notification, error) {
	var n Notification
	err := s.db.WithContext(ctx).First(&n, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Newf("notification not found: %s", id).
				Component("notify").
				Category(errors.CategoryNotFound).
				Build()
		}
		return nil, dbErr(err, "get", id)
	}
	return &n, nil
}

func (s *GormStore) List(ctx context.Context, userID string, filter ListFilter) ([]Notification, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at desc")
	if filter.UnreadOnly {
		q = q.Where("is_read = ?", false)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	var out []Notification
	if err := q.Find(&out).Error; err != nil {
		return nil, dbErr(err, "list", userID)
	}
	return out, nil
}

func (s *GormStore) MarkRead(ctx context.Context, id string, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&Notification{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_read": true, "read_at": at})
	if res.Error != nil {
		return dbErr(res.Error, "mark_read", id)
	}
	if res.RowsAffected == 0 {
		return errors.Newf("notification not found: %s", id).
			Component("notify").
			Category(errors.CategoryNotFound).
			Build()
	}
	return nil
}

func (s *GormStore) MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]any{"is_read": true, "read_at": at})
	if res.Error != nil {
		return 0, dbErr(res.Error, "mark_all_read", userID)
	}
	return res.RowsAffected, nil
}

func (s *GormStore) UnreadCount(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	if err != nil {
		return 0, dbErr(err, "unread_count", userID)
	}
	return count, nil
}

func (s *GormStore) Delete(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&Notification{}, "id = ?", id).Error; err != nil {
		return dbErr(err, "delete", id)
	}
	return nil
}

func (s *GormStore) DeleteOlderThan(ctx context.Context, cutoff time.Time, readOnly bool) (int64, error) {
	q := s.db.WithContext(ctx).Where("created_at < ?", cutoff)
	if readOnly {
		q = q.Where("is_read = ?", true)
	}
	res := q.Delete(&Notification{})
	if res.Error != nil {
		return 0, dbErr(res.Error, "delete_older_than", "")
	}
	return res.RowsAffected, nil
}

func (s *GormStore) GetPreferences(ctx context.Context, userID string) (*Preferences, error) {
	var prefs Preferences
	err := s.db.WithContext(ctx).First(&prefs, "user_id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			defaults := DefaultPreferences(userID)
			return &defaults, nil
		}
		return nil, dbErr(err, "get_preferences", userID)
	}
	return &prefs, nil
}

func (s *GormStore) SavePreferences(ctx context.Context, prefs *Preferences) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, UpdateAll: true}).
		Create(prefs).Error
	if err != nil {
		return dbErr(err, "save_preferences", prefs.UserID)
	}
	return nil
}

func dbErr(err error, operation, subject string) error {
	return errors.New(err).
		Component("notify").
		Category(errors.CategoryDatabase).
		Context("operation", operation).
		Context("subject", subject).
		Build()
}
