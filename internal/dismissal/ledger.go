// Package dismissal tracks which anomalies were already surfaced or resolved
// and the last processed sensor timestamp per cultivation. It gives the
// detector at-most-once surfacing semantics: a dismissed anomaly stays
// silent until strictly newer sensor data re-triggers it.
package dismissal

import (
	"context"
	"io"
	"log"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/mverde/growmon-go/internal/logging"
)

// Package-level logger specific to the dismissal ledger
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "dismissal.log")
	serviceLevelVar.Set(slog.LevelInfo)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "dismissal", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize dismissal file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "dismissal")
		closeLogger = func() error { return nil }
	}
}

// Reason records why an anomaly was dismissed.
type Reason string

const (
	// ReasonCorrected means the grower fixed the underlying condition.
	ReasonCorrected Reason = "corrected"
	// ReasonAcknowledged means the grower saw the anomaly and chose to ignore it.
	ReasonAcknowledged Reason = "acknowledged"
)

// DismissedAnomaly is one append-only ledger entry.
type DismissedAnomaly struct {
	ID            string     `gorm:"primaryKey" json:"id"`
	CultivationID string     `gorm:"index:idx_dismissal_cultivation_param" json:"cultivationId"`
	Parameter     string     `gorm:"index:idx_dismissal_cultivation_param" json:"parameter"`
	DismissedAt   time.Time  `gorm:"index" json:"dismissedAt"`
	Reason        Reason     `json:"reason"`
	DataTimestamp *time.Time `json:"dataTimestamp,omitempty"`
}

// ProcessingState tracks per-cultivation progress through the sensor stream.
// LastProcessedTimestamp is monotonically non-decreasing.
type ProcessingState struct {
	CultivationID          string    `gorm:"primaryKey" json:"cultivationId"`
	LastProcessedTimestamp time.Time `json:"lastProcessedTimestamp"`
	LastCheckTimestamp     time.Time `json:"lastCheckTimestamp"`
}

// Store persists dismissals and processing state.
type Store interface {
	SaveDismissal(ctx context.Context, d *DismissedAnomaly) error
	ListDismissals(ctx context.Context, cultivationID, parameter string) ([]DismissedAnomaly, error)
	DeleteDismissalsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	GetProcessingState(ctx context.Context, cultivationID string) (*ProcessingState, error)
	SaveProcessingState(ctx context.Context, state *ProcessingState) error
	CountDismissals(ctx context.Context) (total int64, byReason map[Reason]int64, err error)
}

// Ledger provides dismissal and processing-state semantics over a Store.
// Reads fail open: a store error is logged and treated as "not dismissed"
// so anomaly surfacing degrades to noisy rather than silent.
type Ledger struct {
	store Store
}

// NewLedger creates a ledger backed by the given store.
func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// RecordDismissal appends a dismissal entry. The anomaly's own data
// timestamp becomes the ledger's DataTimestamp so only readings at or before
// that point stay suppressed.
func (l *Ledger) RecordDismissal(ctx context.Context, cultivationID, parameter string, dataTimestamp time.Time, reason Reason) error {
	entry := &DismissedAnomaly{
		ID:            uuid.New().String(),
		CultivationID: cultivationID,
		Parameter:     parameter,
		DismissedAt:   time.Now(),
		Reason:        reason,
	}
	if !dataTimestamp.IsZero() {
		ts := dataTimestamp
		entry.DataTimestamp = &ts
	}

	if err := l.store.SaveDismissal(ctx, entry); err != nil {
		logger.Error("failed to save dismissal",
			"cultivation_id", cultivationID,
			"parameter", parameter,
			"error", err)
		return err
	}

	logger.Info("anomaly dismissed",
		"cultivation_id", cultivationID,
		"parameter", parameter,
		"reason", reason)
	return nil
}

// IsDismissed reports whether an anomaly for (cultivationID, parameter) at
// the given data timestamp is suppressed. A dismissal without a data
// timestamp silences the parameter indefinitely; one with a timestamp
// silences only anomalies at or before that reading.
func (l *Ledger) IsDismissed(ctx context.Context, cultivationID, parameter string, anomalyTimestamp time.Time) bool {
	entries, err := l.store.ListDismissals(ctx, cultivationID, parameter)
	if err != nil {
		// Fail open on read errors
		logger.Error("failed to load dismissals, treating as not dismissed",
			"cultivation_id", cultivationID,
			"parameter", parameter,
			"error", err)
		return false
	}

	for i := range entries {
		d := &entries[i]
		if d.DataTimestamp == nil || anomalyTimestamp.IsZero() {
			return true
		}
		if !anomalyTimestamp.After(*d.DataTimestamp) {
			return true
		}
	}
	return false
}

// LastProcessed returns the last processed sensor timestamp for a
// cultivation, or the zero time if it was never processed.
func (l *Ledger) LastProcessed(ctx context.Context, cultivationID string) time.Time {
	state, err := l.store.GetProcessingState(ctx, cultivationID)
	if err != nil {
		logger.Error("failed to load processing state",
			"cultivation_id", cultivationID,
			"error", err)
		return time.Time{}
	}
	if state == nil {
		return time.Time{}
	}
	return state.LastProcessedTimestamp
}

// AdvanceProcessed moves the last processed timestamp forward. Regressions
// are ignored to keep the timestamp monotonically non-decreasing.
func (l *Ledger) AdvanceProcessed(ctx context.Context, cultivationID string, timestamp time.Time) error {
	current := l.LastProcessed(ctx, cultivationID)
	if timestamp.Before(current) {
		logger.Warn("ignoring processed-timestamp regression",
			"cultivation_id", cultivationID,
			"current", current,
			"proposed", timestamp)
		return nil
	}

	state := &ProcessingState{
		CultivationID:          cultivationID,
		LastProcessedTimestamp: timestamp,
		LastCheckTimestamp:     time.Now(),
	}
	if err := l.store.SaveProcessingState(ctx, state); err != nil {
		logger.Error("failed to save processing state",
			"cultivation_id", cultivationID,
			"error", err)
		return err
	}
	return nil
}

// PurgeOlderThan removes dismissals recorded before now minus retention.
// This is invoked by the scheduler's maintenance job, never per detection
// call.
func (l *Ledger) PurgeOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	removed, err := l.store.DeleteDismissalsBefore(ctx, cutoff)
	if err != nil {
		logger.Error("dismissal purge failed", "error", err)
		return 0, err
	}
	if removed > 0 {
		logger.Info("purged old dismissals", "removed", removed, "cutoff", cutoff)
	}
	return removed, nil
}

// Stats summarizes the ledger for the CLI.
type Stats struct {
	Total    int64            `json:"total"`
	ByReason map[Reason]int64 `json:"byReason"`
}

// Stats returns dismissal counts.
func (l *Ledger) Stats(ctx context.Context) (Stats, error) {
	total, byReason, err := l.store.CountDismissals(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Total: total, ByReason: byReason}, nil
}

// Close releases the ledger's log file.
func (l *Ledger) Close() error {
	if closeLogger != nil {
		return closeLogger()
	}
	return nil
}
