// Package scheduler drives the periodic monitoring batch: anomaly
// detection and rule evaluation across all active cultivations, plus
// retention maintenance.
package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mverde/growmon-go/internal/conf"
	"github.com/mverde/growmon-go/internal/detector"
	"github.com/mverde/growmon-go/internal/dismissal"
	"github.com/mverde/growmon-go/internal/errors"
	"github.com/mverde/growmon-go/internal/grow"
	"github.com/mverde/growmon-go/internal/logging"
	"github.com/mverde/growmon-go/internal/notify"
	"github.com/mverde/growmon-go/internal/observability"
	"github.com/mverde/growmon-go/internal/rules"
)

var (
	jobLogger      *slog.Logger
	jobLevelVar    = new(slog.LevelVar)
	closeJobLogger func() error
)

func init() {
	var err error
	jobLogger, closeJobLogger, err = logging.NewFileLogger(
		"logs/scheduler.log", "scheduler", jobLevelVar)
	if err != nil || jobLogger == nil {
		jobLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))
		closeJobLogger = func() error { return nil }
	}
}

// JobStats summarizes the most recent batch pass.
type JobStats struct {
	LastRun              time.Time     `json:"lastRun"`
	Duration             time.Duration `json:"duration"`
	CultivationsChecked  int           `json:"cultivationsChecked"`
	AnomaliesDetected    int           `json:"anomaliesDetected"`
	NotificationsCreated int           `json:"notificationsCreated"`
	Errors               int           `json:"errors"`
}

// Scheduler owns the batch loop.
type Scheduler struct {
	store     grow.Store
	detector  *detector.Detector
	engine    *rules.Engine
	ledger    *dismissal.Ledger
	notifySvc *notify.Service
	cooldowns *rules.CooldownManager
	metrics   *observability.Metrics
	settings  *conf.Settings

	isRunning atomic.Bool
	statsMu   sync.RWMutex
	stats     JobStats
}

func New(store grow.Store, det *detector.Detector, engine *rules.Engine, ledger *dismissal.Ledger, notifySvc *notify.Service, cooldowns *rules.CooldownManager, metrics *observability.Metrics, settings *conf.Settings) *Scheduler {
	return &Scheduler{
		store:     store,
		detector:  det,
		engine:    engine,
		ledger:    ledger,
		notifySvc: notifySvc,
		cooldowns: cooldowns,
		metrics:   metrics,
		settings:  settings,
	}
}

// CheckCultivations runs one batch pass over every active cultivation.
// Concurrent invocations are rejected; per-cultivation failures are
// counted and the pass continues.
func (s *Scheduler) CheckCultivations(ctx context.Context) (JobStats, error) {
	if !s.isRunning.CompareAndSwap(false, true) {
		return JobStats{}, errors.Newf("a check is already in progress").
			Component("scheduler").
			Category(errors.CategoryState).
			Build()
	}
	defer s.isRunning.Store(false)

	start := time.Now()
	stats := JobStats{LastRun: start}

	cultivations, err := s.store.ListActiveCultivations(ctx)
	if err != nil {
		return stats, errors.New(err).
			Component("scheduler").
			Category(errors.CategoryScheduler).
			Context("operation", "list_active").
			Build()
	}

	for i := range cultivations {
		if ctx.Err() != nil {
			break
		}
		c := &cultivations[i]
		evalStart := time.Now()

		anomalies, notifications, err := s.checkOne(ctx, c)
		stats.CultivationsChecked++
		stats.AnomaliesDetected += anomalies
		stats.NotificationsCreated += notifications
		if err != nil {
			stats.Errors++
			jobLogger.Error("cultivation check failed",
				"cultivation_id", c.ID,
				"error", err)
		}
		if s.metrics != nil {
			s.metrics.Monitoring.RecordEvaluation(time.Since(evalStart), err)
		}
	}

	stats.Duration = time.Since(start)
	s.statsMu.Lock()
	s.stats = stats
	s.statsMu.Unlock()

	jobLogger.Info("batch pass finished",
		"cultivations", stats.CultivationsChecked,
		"anomalies", stats.AnomaliesDetected,
		"notifications", stats.NotificationsCreated,
		"errors", stats.Errors,
		"duration", stats.Duration)

	return stats, nil
}

// checkOne runs detection then rule evaluation for one cultivation.
func (s *Scheduler) checkOne(ctx context.Context, c *grow.Cultivation) (anomalies, notifications int, err error) {
	samples, err := s.store.EventsSince(ctx, c.ID, s.ledger.LastProcessed(ctx, c.ID))
	if err != nil {
		return 0, 0, err
	}

	detected, err := s.detector.Detect(ctx, c, samples)
	if err != nil {
		return 0, 0, err
	}
	anomalies = len(detected)

	for i := range detected {
		a := &detected[i]
		priority := notify.PriorityMedium
		if a.Severity == detector.SeverityCritical {
			priority = notify.PriorityCritical
		}
		_, createErr := s.notifySvc.CreateAlert(ctx, c.UserID,
			a.ParameterName+" out of range",
			a.Message,
			priority,
			map[string]any{
				"cultivationId":     c.ID,
				"parameter":         string(a.Parameter),
				"currentValue":      a.CurrentValue,
				"expectedValue":     a.ExpectedValue,
				"deviationPercent":  a.DeviationPercent,
				"correctiveActions": a.CorrectiveActions,
				"dataTimestamp":     a.Timestamp,
			})
		if createErr != nil {
			jobLogger.Warn("failed to create anomaly notification",
				"cultivation_id", c.ID,
				"parameter", a.Parameter,
				"error", createErr)
			if s.metrics != nil {
				s.metrics.Monitoring.NotificationsDropped.Inc()
			}
			continue
		}
		notifications++
		if s.metrics != nil {
			s.metrics.Monitoring.RecordNotification(string(notify.TypeAlert))
		}
	}

	fired, err := s.engine.Evaluate(ctx, c.ID)
	if err != nil {
		return anomalies, notifications, err
	}
	notifications += fired
	return anomalies, notifications, nil
}

// RunMaintenance purges expired dismissals and old read notifications
// and prunes dead cooldown entries.
func (s *Scheduler) RunMaintenance(ctx context.Context) error {
	dismissalRetention := 30 * 24 * time.Hour
	notificationRetention := 30 * 24 * time.Hour
	if s.settings != nil {
		if d := s.settings.Monitor.DismissalRetentionDays; d > 0 {
			dismissalRetention = time.Duration(d) * 24 * time.Hour
		}
		if d := s.settings.Notification.RetentionDays; d > 0 {
			notificationRetention = time.Duration(d) * 24 * time.Hour
		}
	}

	purged, err := s.ledger.PurgeOlderThan(ctx, dismissalRetention)
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.Monitoring.DismissalsPurgedTotal.Add(float64(purged))
	}

	removed, err := s.notifySvc.CleanupOld(ctx, notificationRetention)
	if err != nil {
		return err
	}

	pruned := 0
	if s.cooldowns != nil {
		pruned = s.cooldowns.Prune()
	}
	if s.metrics != nil {
		s.metrics.Monitoring.MaintenanceRunsTotal.Inc()
	}

	jobLogger.Info("maintenance finished",
		"dismissals_purged", purged,
		"notifications_removed", removed,
		"cooldowns_pruned", pruned)
	return nil
}

// Run executes the batch loop until the context is canceled. A first
// pass runs immediately; maintenance runs once a day.
func (s *Scheduler) Run(ctx context.Context) error {
	interval := time.Hour
	if s.settings != nil && s.settings.Scheduler.IntervalMinutes > 0 {
		interval = time.Duration(s.settings.Scheduler.IntervalMinutes) * time.Minute
	}

	jobLogger.Info("scheduler started", "interval", interval)

	if _, err := s.CheckCultivations(ctx); err != nil {
		jobLogger.Error("initial batch pass failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	maintenance := time.NewTicker(24 * time.Hour)
	defer maintenance.Stop()

	for {
		select {
		case <-ctx.Done():
			jobLogger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.CheckCultivations(ctx); err != nil {
				jobLogger.Error("batch pass failed", "error", err)
			}
		case <-maintenance.C:
			if err := s.RunMaintenance(ctx); err != nil {
				jobLogger.Error("maintenance failed", "error", err)
			}
		}
	}
}

// Stats returns the most recent batch summary.
func (s *Scheduler) Stats() JobStats {
	s.statsMu.RLock()
	defer s.statsMu.RUnlock()
	return s.stats
}

// Close flushes the scheduler log file.
func (s *Scheduler) Close() error {
	return closeJobLogger()
}
