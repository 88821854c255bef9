package dismissal

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mverde/growmon-go/internal/errors"
)

// GormStore persists the ledger in the shared GORM database. The
// dismissedAt index supports the periodic retention purge.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore migrates the ledger schema and returns a store.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&DismissedAnomaly{}, &ProcessingState{}); err != nil {
		return nil, errors.New(err).
			Component("dismissal").
			Category(errors.CategoryDatabase).
			Context("operation", "migrate").
			Build()
	}
	return &GormStore{db: db}, nil
}

// SaveDismissal appends a dismissal entry.
func (gs *GormStore) SaveDismissal(ctx context.Context, d *DismissedAnomaly) error {
	if err := gs.db.WithContext(ctx).Create(d).Error; err != nil {
		return errors.New(err).
			Component("dismissal").
			Category(errors.CategoryDatabase).
			Context("operation", "save_dismissal").
			Build()
	}
	return nil
}

// ListDismissals returns entries matching (cultivationID, parameter).
func (gs *GormStore) ListDismissals(ctx context.Context, cultivationID, parameter string) ([]DismissedAnomaly, error) {
	var entries []DismissedAnomaly
	err := gs.db.WithContext(ctx).
		Where("cultivation_id = ? AND parameter = ?", cultivationID, parameter).
		Find(&entries).Error
	if err != nil {
		return nil, errors.New(err).
			Component("dismissal").
			Category(errors.CategoryDatabase).
			Context("operation", "list_dismissals").
			Build()
	}
	return entries, nil
}

// DeleteDismissalsBefore removes entries dismissed before the cutoff.
func (gs *GormStore) DeleteDismissalsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := gs.db.WithContext(ctx).
		Where("dismissed_at < ?", cutoff).
		Delete(&DismissedAnomaly{})
	if result.Error != nil {
		return 0, errors.New(result.Error).
			Component("dismissal").
			Category(errors.CategoryDatabase).
			Context("operation", "purge").
			Build()
	}
	return result.RowsAffected, nil
}

// GetProcessingState returns the state for a cultivation, or nil if absent.
func (gs *GormStore) GetProcessingState(ctx context.Context, cultivationID string) (*ProcessingState, error) {
	var state ProcessingState
	err := gs.db.WithContext(ctx).First(&state, "cultivation_id = ?", cultivationID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.New(err).
			Component("dismissal").
			Category(errors.CategoryDatabase).
			Context("operation", "get_state").
			Build()
	}
	return &state, nil
}

// SaveProcessingState upserts the state for a cultivation.
func (gs *GormStore) SaveProcessingState(ctx context.Context, state *ProcessingState) error {
	err := gs.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "cultivation_id"}},
			UpdateAll: true,
		}).
		Create(state).Error
	if err != nil {
		return errors.New(err).
			Component("dismissal").
			Category(errors.CategoryDatabase).
			Context("operation", "save_state").
			Build()
	}
	return nil
}

// CountDismissals returns total and per-reason counts.
func (gs *GormStore) CountDismissals(ctx context.Context) (int64, map[Reason]int64, error) {
	var total int64
	if err := gs.db.WithContext(ctx).Model(&DismissedAnomaly{}).Count(&total).Error; err != nil {
		return 0, nil, errors.New(err).
			Component("dismissal").
			Category(errors.CategoryDatabase).
			Context("operation", "count").
			Build()
	}

	type reasonCount struct {
		Reason Reason
		Count  int64
	}
	var rows []reasonCount
	err := gs.db.WithContext(ctx).Model(&DismissedAnomaly{}).
		Select("reason, count(*) as count").
		Group("reason").
		Scan(&rows).Error
	if err != nil {
		return 0, nil, errors.New(err).
			Component("dismissal").
			Category(errors.CategoryDatabase).
			Context("operation", "count_by_reason").
			Build()
	}

	byReason := make(map[Reason]int64, len(rows))
	for _, row := range rows {
		byReason[row.Reason] = row.Count
	}
	return total, byReason, nil
}
