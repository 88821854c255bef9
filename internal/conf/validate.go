package conf

import (
	"fmt"
	"slices"
)

// ValidateSettings checks the loaded settings for inconsistencies that would
// misbehave at runtime. It normalizes a few values in place.
func ValidateSettings(settings *Settings) error {
	if err := validateDatabase(&settings.Database); err != nil {
		return err
	}
	if err := validateRules(&settings.Rules); err != nil {
		return err
	}
	if err := validateGemini(&settings.Gemini); err != nil {
		return err
	}
	return validateScheduler(&settings.Scheduler)
}

func validateDatabase(db *DatabaseSettings) error {
	if db.SQLite.Enabled && db.MySQL.Enabled {
		return fmt.Errorf("only one database backend may be enabled, got both sqlite and mysql")
	}
	if !db.SQLite.Enabled && !db.MySQL.Enabled {
		return fmt.Errorf("no database backend enabled")
	}
	if db.SQLite.Enabled && db.SQLite.Path == "" {
		return fmt.Errorf("sqlite enabled but path is empty")
	}
	if db.MySQL.Enabled {
		if db.MySQL.Host == "" || db.MySQL.Database == "" {
			return fmt.Errorf("mysql enabled but host or database is empty")
		}
	}
	return nil
}

var knownRuleIDs = []string{
	"watering-overdue",
	"nutrition-reminder",
	"phase-change-detected",
	"growth-stagnation",
	"environmental-alert",
	"ai-analysis-alert",
}

func validateRules(rules *RulesSettings) error {
	switch rules.CooldownScope {
	case CooldownScopeUser, CooldownScopeCultivation:
	case "":
		rules.CooldownScope = CooldownScopeUser
	default:
		return fmt.Errorf("invalid rules.cooldownscope %q, expected %q or %q",
			rules.CooldownScope, CooldownScopeUser, CooldownScopeCultivation)
	}

	for _, id := range rules.Disabled {
		if !slices.Contains(knownRuleIDs, id) {
			return fmt.Errorf("unknown rule ID in rules.disabled: %q", id)
		}
	}
	return nil
}

func validateGemini(g *GeminiSettings) error {
	if !g.Enabled {
		return nil
	}
	if g.APIKey == "" {
		return fmt.Errorf("gemini enabled but apikey is empty")
	}
	if g.TimeoutSeconds <= 0 {
		return fmt.Errorf("gemini.timeoutseconds must be positive, got %d", g.TimeoutSeconds)
	}
	return nil
}

func validateScheduler(s *SchedulerSettings) error {
	if s.IntervalMinutes <= 0 {
		return fmt.Errorf("scheduler.intervalminutes must be positive, got %d", s.IntervalMinutes)
	}
	if s.AIRequestsPerMinute <= 0 {
		return fmt.Errorf("scheduler.airequestsperminute must be positive, got %d", s.AIRequestsPerMinute)
	}
	return nil
}
