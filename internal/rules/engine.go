package rules

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/mverde/growmon-go/internal/conf"
	"github.com/mverde/growmon-go/internal/errors"
	"github.com/mverde/growmon-go/internal/grow"
	"github.com/mverde/growmon-go/internal/logging"
	"github.com/mverde/growmon-go/internal/notify"
	"github.com/mverde/growmon-go/internal/observability/metrics"
)

var (
	engineLogger      *slog.Logger
	engineLevelVar    = new(slog.LevelVar)
	closeEngineLogger func() error
)

func init() {
	var err error
	engineLogger, closeEngineLogger, err = logging.NewFileLogger(
		"logs/rules.log", "rules", engineLevelVar)
	if err != nil || engineLogger == nil {
		engineLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))
		closeEngineLogger = func() error { return nil }
	}
}

// Notifier is the slice of the notification service the engine needs.
type Notifier interface {
	Create(ctx context.Context, req notify.CreateRequest) (*notify.Notification, error)
}

// Engine walks the rule catalog for one cultivation at a time.
type Engine struct {
	store     grow.Store
	notifier  Notifier
	cooldowns *CooldownManager
	catalog   []Rule
	registry  map[string]Evaluator
	metrics   *metrics.MonitoringMetrics
	now       func() time.Time
}

// NewEngine builds an engine with the default catalog. Rules listed in
// settings.Disabled start out disabled. A nil analyzer leaves the AI
// rule in the catalog but permanently quiet.
func NewEngine(store grow.Store, notifier Notifier, cooldowns *CooldownManager, analyzer Analyzer, settings *conf.RulesSettings) *Engine {
	catalog := DefaultCatalog()
	if settings != nil {
		for _, id := range settings.Disabled {
			for i := range catalog {
				if catalog[i].ID == id {
					catalog[i].Enabled = false
				}
			}
		}
	}
	return &Engine{
		store:     store,
		notifier:  notifier,
		cooldowns: cooldowns,
		catalog:   catalog,
		registry:  newRegistry(analyzer),
		now:       time.Now,
	}
}

// SetMetrics attaches metric collectors.
func (e *Engine) SetMetrics(m *metrics.MonitoringMetrics) {
	e.metrics = m
}

// Rules returns a copy of the catalog for listing.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.catalog))
	copy(out, e.catalog)
	return out
}

// SetEnabled toggles a rule at runtime.
func (e *Engine) SetEnabled(ruleID string, enabled bool) bool {
	for i := range e.catalog {
		if e.catalog[i].ID == ruleID {
			e.catalog[i].Enabled = enabled
			return true
		}
	}
	return false
}

// Evaluate runs every enabled rule against one cultivation and returns
// the number of notifications created. Per-rule failures are logged
// and skipped so one broken rule cannot silence the rest.
func (e *Engine) Evaluate(ctx context.Context, cultivationID string) (int, error) {
	cultivation, err := e.store.GetCultivation(ctx, cultivationID)
	if err != nil {
		return 0, errors.New(err).
			Component("rules").
			Category(errors.CategoryRuleEval).
			Context("cultivation_id", cultivationID).
			Build()
	}

	rc := BuildContext(cultivation, e.now())
	created := 0

	for _, rule := range e.catalog {
		if !rule.Enabled {
			continue
		}
		if e.cooldowns.IsActive(rule.ID, cultivation.UserID, cultivation.ID) {
			engineLogger.Debug("rule on cooldown",
				"rule_id", rule.ID,
				"user_id", cultivation.UserID,
				"cultivation_id", cultivation.ID)
			continue
		}

		evaluator, ok := e.registry[rule.Evaluator]
		if !ok {
			engineLogger.Error("rule references unknown evaluator",
				"rule_id", rule.ID,
				"evaluator", rule.Evaluator)
			continue
		}
		if !evaluator.Condition(ctx, rc) {
			continue
		}

		action, err := evaluator.Action(ctx, rc)
		if err != nil || action == nil {
			engineLogger.Error("rule action failed",
				"rule_id", rule.ID,
				"cultivation_id", cultivation.ID,
				"error", err)
			continue
		}

		priority := action.Priority
		if priority == "" {
			priority = rule.Priority
		}
		metadata := action.Metadata
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata["ruleId"] = rule.ID
		metadata["cultivationId"] = cultivation.ID

		_, err = e.notifier.Create(ctx, notify.CreateRequest{
			UserID:   cultivation.UserID,
			Type:     action.Type,
			Priority: priority,
			Title:    action.Title,
			Message:  action.Message,
			Channels: []notify.Channel{notify.ChannelInApp, notify.ChannelPush},
			Metadata: metadata,
		})
		if err != nil {
			engineLogger.Error("failed to persist rule notification",
				"rule_id", rule.ID,
				"cultivation_id", cultivation.ID,
				"error", err)
			if e.metrics != nil {
				e.metrics.NotificationsDropped.Inc()
			}
			continue
		}

		e.cooldowns.Set(rule.ID, cultivation.UserID, cultivation.ID,
			time.Duration(rule.CooldownMinutes)*time.Minute)
		created++
		if e.metrics != nil {
			e.metrics.RecordRuleFired(rule.ID)
			e.metrics.RecordNotification(string(action.Type))
		}

		engineLogger.Info("rule fired",
			"rule_id", rule.ID,
			"cultivation_id", cultivation.ID,
			"user_id", cultivation.UserID,
			"title", action.Title)
	}
	return created, nil
}

// Close flushes the engine log file.
func (e *Engine) Close() error {
	return closeEngineLogger()
}
