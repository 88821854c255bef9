// Package conf handles loading and validation of GrowMon configuration.
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

// Settings is the root configuration structure.
type Settings struct {
	Debug bool `yaml:"debug"` // true to enable debug logging

	Main         MainSettings         `yaml:"main"`
	Database     DatabaseSettings     `yaml:"database"`
	Monitor      MonitorSettings      `yaml:"monitor"`
	Rules        RulesSettings        `yaml:"rules"`
	Notification NotificationSettings `yaml:"notification"`
	Gemini       GeminiSettings       `yaml:"gemini"`
	Scheduler    SchedulerSettings    `yaml:"scheduler"`
}

// MainSettings holds application-wide settings.
type MainSettings struct {
	Name string    `yaml:"name"` // name of this node, used in log identification
	Log  LogConfig `yaml:"log"`  // main log settings
}

// LogConfig holds settings for application logging.
type LogConfig struct {
	Enabled bool   `yaml:"enabled"` // true to enable file logging
	Path    string `yaml:"path"`    // path to log file
}

// DatabaseSettings selects and configures the persistence backend.
type DatabaseSettings struct {
	SQLite SQLiteSettings `yaml:"sqlite"`
	MySQL  MySQLSettings  `yaml:"mysql"`
}

// SQLiteSettings configures the SQLite backend.
type SQLiteSettings struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// MySQLSettings configures the MySQL backend.
type MySQLSettings struct {
	Enabled  bool   `yaml:"enabled"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
}

// MonitorSettings configures the anomaly detection engine.
type MonitorSettings struct {
	MinPatternSamples      int `yaml:"minpatternsamples"`      // samples required before a learned pattern is trusted
	DismissalRetentionDays int `yaml:"dismissalretentiondays"` // dismissals older than this are purged
}

// Cooldown scope values for RulesSettings.CooldownScope.
const (
	CooldownScopeUser        = "user"
	CooldownScopeCultivation = "cultivation"
)

// RulesSettings configures the notification rule engine.
type RulesSettings struct {
	CooldownScope string   `yaml:"cooldownscope"` // "user" or "cultivation"
	Disabled      []string `yaml:"disabled"`      // rule IDs disabled at startup
}

// NotificationSettings configures the notification service.
type NotificationSettings struct {
	RetentionDays      int `yaml:"retentiondays"`      // read notifications older than this are purged
	RateLimitPerMinute int `yaml:"ratelimitperminute"` // max notifications created per minute
	RateLimitBurst     int `yaml:"ratelimitburst"`     // burst capacity for notification creation
}

// GeminiSettings configures the AI analysis collaborator.
type GeminiSettings struct {
	Enabled         bool   `yaml:"enabled"`
	APIKey          string `yaml:"apikey"`
	BaseURL         string `yaml:"baseurl"`
	Model           string `yaml:"model"`
	TimeoutSeconds  int    `yaml:"timeoutseconds"`
	CacheTTLMinutes int    `yaml:"cachettlminutes"`
	RateLimitMS     int    `yaml:"ratelimitms"`
}

// SchedulerSettings configures the periodic evaluation batch job.
type SchedulerSettings struct {
	IntervalMinutes     int `yaml:"intervalminutes"`     // how often CheckCultivations runs
	AIRequestsPerMinute int `yaml:"airequestsperminute"` // token bucket rate for AI-backed rules
	AIBurstSize         int `yaml:"aiburstsize"`
}

// settingsInstance is the current settings instance
var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into Settings.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}

	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	// Environment variables override file values, e.g. GROWMON_GEMINI_APIKEY
	viper.SetEnvPrefix("growmon")
	viper.AutomaticEnv()

	// Set default values for each configuration parameter
	// function defined in defaults.go
	setDefaultConfig()

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// Config file not found, run on defaults
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// GetDefaultConfigPaths returns the directories searched for config.yaml.
func GetDefaultConfigPaths() ([]string, error) {
	paths := []string{"."}

	if configDir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(configDir, "growmon"))
	}

	homeDir, err := os.UserHomeDir()
	if err == nil {
		paths = append(paths, filepath.Join(homeDir, ".config", "growmon"))
	}

	return paths, nil
}

// Setting returns the current settings instance, or nil if Load has not run.
func Setting() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// GetSettings is an alias for Setting kept for call-site readability.
func GetSettings() *Settings {
	return Setting()
}

// SetSettings replaces the settings instance, used by tests.
func SetSettings(settings *Settings) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()
	settingsInstance = settings
}
