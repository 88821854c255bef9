// Package monitor wires the monitoring pipeline together and exposes
// the entry points the CLI commands run.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/mverde/growmon-go/internal/conf"
	"github.com/mverde/growmon-go/internal/detector"
	"github.com/mverde/growmon-go/internal/dismissal"
	"github.com/mverde/growmon-go/internal/errors"
	"github.com/mverde/growmon-go/internal/gemini"
	"github.com/mverde/growmon-go/internal/grow"
	"github.com/mverde/growmon-go/internal/logging"
	"github.com/mverde/growmon-go/internal/notify"
	"github.com/mverde/growmon-go/internal/observability"
	"github.com/mverde/growmon-go/internal/rules"
	"github.com/mverde/growmon-go/internal/scheduler"
)

// Pipeline is the fully wired monitoring stack.
type Pipeline struct {
	Store     grow.Store
	Ledger    *dismissal.Ledger
	Learner   *detector.Learner
	Detector  *detector.Detector
	Notify    *notify.Service
	Engine    *rules.Engine
	Cooldowns *rules.CooldownManager
	Scheduler *scheduler.Scheduler
	Metrics   *observability.Metrics

	gemini *gemini.Client
}

// Build constructs the pipeline from settings. Every store runs on the
// configured database backend.
func Build(settings *conf.Settings) (*Pipeline, error) {
	store, err := grow.NewDataStore(settings)
	if err != nil {
		return nil, err
	}

	dismissalStore, err := dismissal.NewGormStore(store.DB)
	if err != nil {
		return nil, err
	}
	ledger := dismissal.NewLedger(dismissalStore)

	patternStore, err := detector.NewGormPatternStore(store.DB)
	if err != nil {
		return nil, err
	}
	learner := detector.NewLearner(store, patternStore, settings.Monitor.MinPatternSamples)
	det := detector.NewDetector(learner, ledger)

	notifyStore, err := notify.NewGormStore(store.DB)
	if err != nil {
		return nil, err
	}
	notifySvc := notify.NewService(notifyStore, &settings.Notification)

	metrics, err := observability.NewMetrics()
	if err != nil {
		return nil, errors.New(err).
			Component("scheduler").
			Category(errors.CategoryConfiguration).
			Context("operation", "init_metrics").
			Build()
	}

	p := &Pipeline{
		Store:    store,
		Ledger:   ledger,
		Learner:  learner,
		Detector: det,
		Notify:   notifySvc,
		Metrics:  metrics,
	}

	var analyzer rules.Analyzer
	if settings.Gemini.Enabled {
		client, err := gemini.NewClient(gemini.ConfigFromSettings(&settings.Gemini))
		if err != nil {
			return nil, err
		}
		p.gemini = client
		paced := scheduler.NewPacedAnalyzer(client,
			settings.Scheduler.AIRequestsPerMinute,
			settings.Scheduler.AIBurstSize)
		paced.SetMetrics(metrics.Monitoring)
		analyzer = paced
	}

	p.Cooldowns = rules.NewCooldownManager(settings.Rules.CooldownScope)
	p.Engine = rules.NewEngine(store, notifySvc, p.Cooldowns, analyzer, &settings.Rules)
	det.SetMetrics(metrics.Monitoring)
	p.Engine.SetMetrics(metrics.Monitoring)
	p.Scheduler = scheduler.New(store, det, p.Engine, ledger, notifySvc, p.Cooldowns, metrics, settings)

	return p, nil
}

// Close releases every pipeline resource.
func (p *Pipeline) Close() {
	if p.gemini != nil {
		p.gemini.Close()
	}
	if err := p.Scheduler.Close(); err != nil {
		logging.Warn("failed to close scheduler logger", "error", err)
	}
	if err := p.Engine.Close(); err != nil {
		logging.Warn("failed to close rules logger", "error", err)
	}
	if err := p.Notify.Close(); err != nil {
		logging.Warn("failed to close notify logger", "error", err)
	}
	if err := p.Detector.Close(); err != nil {
		logging.Warn("failed to close detector logger", "error", err)
	}
	if err := p.Ledger.Close(); err != nil {
		logging.Warn("failed to close dismissal logger", "error", err)
	}
	if err := p.Store.Close(); err != nil {
		logging.Warn("failed to close data store", "error", err)
	}
}

// Run starts the scheduler loop and blocks until ctx is canceled.
func Run(ctx context.Context, settings *conf.Settings) error {
	p, err := Build(settings)
	if err != nil {
		return err
	}
	defer p.Close()

	logging.Info("monitoring started",
		"interval_minutes", settings.Scheduler.IntervalMinutes,
		"cooldown_scope", settings.Rules.CooldownScope,
		"ai_enabled", settings.Gemini.Enabled)

	err = p.Scheduler.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// CheckOnce runs a single batch pass and prints the summary.
func CheckOnce(ctx context.Context, settings *conf.Settings) error {
	p, err := Build(settings)
	if err != nil {
		return err
	}
	defer p.Close()

	stats, err := p.Scheduler.CheckCultivations(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Checked %d cultivation(s) in %s: %d anomalie(s), %d notification(s), %d error(s)\n",
		stats.CultivationsChecked, stats.Duration.Round(time.Millisecond),
		stats.AnomaliesDetected, stats.NotificationsCreated, stats.Errors)
	return nil
}

// Learn rebuilds the strain/phase baselines from completed runs.
func Learn(ctx context.Context, settings *conf.Settings) error {
	p, err := Build(settings)
	if err != nil {
		return err
	}
	defer p.Close()

	learned, err := p.Learner.Learn(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Learned %d pattern(s) from completed cultivations\n", learned)
	return nil
}

// Cleanup runs the retention maintenance pass.
func Cleanup(ctx context.Context, settings *conf.Settings) error {
	p, err := Build(settings)
	if err != nil {
		return err
	}
	defer p.Close()

	if err := p.Scheduler.RunMaintenance(ctx); err != nil {
		return err
	}

	stats, err := p.Ledger.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Maintenance done, %d dismissal(s) retained\n", stats.Total)
	return nil
}

// ListRules prints the rule catalog.
func ListRules(settings *conf.Settings) error {
	p, err := Build(settings)
	if err != nil {
		return err
	}
	defer p.Close()

	for _, r := range p.Engine.Rules() {
		state := "enabled"
		if !r.Enabled {
			state = "disabled"
		}
		fmt.Printf("%-24s %-8s %-9s cooldown %4dm  %s\n",
			r.ID, r.Priority, state, r.CooldownMinutes, r.Description)
	}
	return nil
}
