package conf

import "fmt"

// ValidateSettings checks the loaded configuration for values that would make
// the process misbehave at runtime rather than fail fast at startup.
func ValidateSettings(settings *Settings) error {
	if settings.ThingSpeak.Timeout <= 0 {
		return fmt.Errorf("thingspeak.timeout must be positive, got %d", settings.ThingSpeak.Timeout)
	}
	if settings.ThingSpeak.SyncInterval <= 0 {
		return fmt.Errorf("thingspeak.syncinterval must be positive, got %d", settings.ThingSpeak.SyncInterval)
	}
	if settings.ThingSpeak.MaxConcurrent <= 0 {
		return fmt.Errorf("thingspeak.maxconcurrent must be positive, got %d", settings.ThingSpeak.MaxConcurrent)
	}
	if settings.MLService.Enabled && settings.MLService.URL == "" {
		return fmt.Errorf("mlservice.url must be set when mlservice.enabled is true")
	}
	if settings.MLService.Timeout <= 0 {
		return fmt.Errorf("mlservice.timeout must be positive, got %d", settings.MLService.Timeout)
	}
	if settings.MLService.RetentionDays <= 0 {
		return fmt.Errorf("mlservice.retentiondays must be positive, got %d", settings.MLService.RetentionDays)
	}
	if settings.Soil.RawMax <= settings.Soil.RawMin {
		return fmt.Errorf("soil.rawmax (%.0f) must be greater than soil.rawmin (%.0f)",
			settings.Soil.RawMax, settings.Soil.RawMin)
	}
	if !settings.Output.SQLite.Enabled && !settings.Output.MySQL.Enabled {
		return fmt.Errorf("no database output enabled, enable output.sqlite or output.mysql")
	}
	return nil
}
