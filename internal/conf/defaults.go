// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "BotaniAI-Go")

	viper.SetDefault("thingspeak.baseurl", "https://api.thingspeak.com")
	viper.SetDefault("thingspeak.timeout", 10)
	viper.SetDefault("thingspeak.syncinterval", 30)
	viper.SetDefault("thingspeak.cooldownwindow", 10)
	viper.SetDefault("thingspeak.maxconcurrent", 5)

	viper.SetDefault("mlservice.enabled", true)
	viper.SetDefault("mlservice.url", "http://localhost:8000/predict")
	viper.SetDefault("mlservice.timeout", 15)
	viper.SetDefault("mlservice.sweepinterval", 60)
	viper.SetDefault("mlservice.retentiondays", 3)
	viper.SetDefault("mlservice.warmupdelay", 15)

	// ESP32 capacitive probe scale, higher raw means drier soil
	viper.SetDefault("soil.rawmin", 1000.0)
	viper.SetDefault("soil.rawmax", 4095.0)
	viper.SetDefault("soil.invert", true)

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.port", "8080")

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "botaniai.db")

	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "botaniai")
	viper.SetDefault("output.mysql.password", "secret")
	viper.SetDefault("output.mysql.database", "botaniai")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")
}
