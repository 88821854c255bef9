package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings() *Settings {
	return &Settings{
		Database: DatabaseSettings{
			SQLite: SQLiteSettings{Enabled: true, Path: "growmon.db"},
		},
		Monitor: MonitorSettings{MinPatternSamples: 5, DismissalRetentionDays: 30},
		Rules:   RulesSettings{CooldownScope: CooldownScopeUser},
		Gemini: GeminiSettings{
			Enabled:        true,
			APIKey:         "test-key",
			TimeoutSeconds: 30,
		},
		Scheduler: SchedulerSettings{IntervalMinutes: 60, AIRequestsPerMinute: 30},
	}
}

func TestValidateSettings_Valid(t *testing.T) {
	t.Parallel()

	require.NoError(t, ValidateSettings(validSettings()))
}

func TestValidateSettings_Database(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"both backends enabled", func(s *Settings) { s.Database.MySQL.Enabled = true }},
		{"no backend enabled", func(s *Settings) { s.Database.SQLite.Enabled = false }},
		{"sqlite without path", func(s *Settings) { s.Database.SQLite.Path = "" }},
		{"mysql without host", func(s *Settings) {
			s.Database.SQLite.Enabled = false
			s.Database.MySQL.Enabled = true
			s.Database.MySQL.Database = "growmon"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := validSettings()
			tt.mutate(s)
			assert.Error(t, ValidateSettings(s))
		})
	}
}

func TestValidateSettings_CooldownScope(t *testing.T) {
	t.Parallel()

	s := validSettings()
	s.Rules.CooldownScope = "plant"
	assert.Error(t, ValidateSettings(s))

	s = validSettings()
	s.Rules.CooldownScope = ""
	require.NoError(t, ValidateSettings(s))
	assert.Equal(t, CooldownScopeUser, s.Rules.CooldownScope, "empty scope normalizes to user")

	s = validSettings()
	s.Rules.CooldownScope = CooldownScopeCultivation
	assert.NoError(t, ValidateSettings(s))
}

func TestValidateSettings_DisabledRules(t *testing.T) {
	t.Parallel()

	s := validSettings()
	s.Rules.Disabled = []string{"watering-overdue", "ai-analysis-alert"}
	require.NoError(t, ValidateSettings(s))

	s.Rules.Disabled = []string{"no-such-rule"}
	assert.Error(t, ValidateSettings(s))
}

func TestValidateSettings_Gemini(t *testing.T) {
	t.Parallel()

	s := validSettings()
	s.Gemini.APIKey = ""
	assert.Error(t, ValidateSettings(s))

	// Disabled gemini does not require a key
	s = validSettings()
	s.Gemini.Enabled = false
	s.Gemini.APIKey = ""
	assert.NoError(t, ValidateSettings(s))
}
