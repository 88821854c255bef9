// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "GrowMon")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "growmon.log")

	viper.SetDefault("database.sqlite.enabled", true)
	viper.SetDefault("database.sqlite.path", "growmon.db")
	viper.SetDefault("database.mysql.enabled", false)
	viper.SetDefault("database.mysql.username", "growmon")
	viper.SetDefault("database.mysql.password", "")
	viper.SetDefault("database.mysql.database", "growmon")
	viper.SetDefault("database.mysql.host", "localhost")
	viper.SetDefault("database.mysql.port", "3306")

	viper.SetDefault("monitor.minpatternsamples", 5)
	viper.SetDefault("monitor.dismissalretentiondays", 30)

	viper.SetDefault("rules.cooldownscope", CooldownScopeUser)
	viper.SetDefault("rules.disabled", []string{})

	viper.SetDefault("notification.retentiondays", 30)
	viper.SetDefault("notification.ratelimitperminute", 60)
	viper.SetDefault("notification.ratelimitburst", 10)

	viper.SetDefault("gemini.enabled", false)
	viper.SetDefault("gemini.apikey", "")
	viper.SetDefault("gemini.baseurl", "https://generativelanguage.googleapis.com/v1beta/models")
	viper.SetDefault("gemini.model", "gemini-1.5-flash")
	viper.SetDefault("gemini.timeoutseconds", 30)
	viper.SetDefault("gemini.cachettlminutes", 15)
	viper.SetDefault("gemini.ratelimitms", 500)

	viper.SetDefault("scheduler.intervalminutes", 60)
	viper.SetDefault("scheduler.airequestsperminute", 30)
	viper.SetDefault("scheduler.aiburstsize", 5)
}
