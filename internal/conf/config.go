// Package conf loads and holds the application configuration.
package conf

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Settings is the root configuration structure, populated from config.yaml,
// environment variables and command line flags.
type Settings struct {
	Debug bool // true to enable debug level logging

	Main struct {
		Name string // node name, used to identify the instance
	}

	ThingSpeak struct {
		BaseURL        string  // ThingSpeak API base URL
		Timeout        int     // request timeout in seconds
		SyncInterval   int     // seconds between sync cycles
		CooldownWindow int     // seconds a channel is skipped after a successful sync
		MaxConcurrent  int64   // maximum concurrent channel fetches per cycle
	}

	MLService struct {
		Enabled       bool   // false routes every prediction through fallback rules
		URL           string // predictor endpoint
		Timeout       int    // request timeout in seconds
		SweepInterval int    // minutes between periodic prediction sweeps
		RetentionDays int    // prediction retention window for the cleanup job
		WarmupDelay   int    // seconds to wait after startup before first scheduled run
	}

	Soil struct {
		RawMin float64 // raw sensor value at the wet end of the scale
		RawMax float64 // raw sensor value at the dry end of the scale
		Invert bool    // true when higher raw readings mean drier soil
	}

	WebServer struct {
		Enabled bool
		Port    string
	}

	Output struct {
		SQLite struct {
			Enabled bool
			Path    string
		}
		MySQL struct {
			Enabled  bool
			Username string
			Password string
			Database string
			Host     string
			Port     string
		}
	}
}

// ThingSpeakTimeout returns the ThingSpeak request timeout as a duration.
func (s *Settings) ThingSpeakTimeout() time.Duration {
	return time.Duration(s.ThingSpeak.Timeout) * time.Second
}

// MLServiceTimeout returns the predictor request timeout as a duration.
func (s *Settings) MLServiceTimeout() time.Duration {
	return time.Duration(s.MLService.Timeout) * time.Second
}

var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into a new
// Settings instance and stores it as the process-wide instance.
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

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// No config file is fine, defaults plus flags apply
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// GetDefaultConfigPaths returns the directories searched for config.yaml,
// in priority order: working directory, then the user config directory.
func GetDefaultConfigPaths() ([]string, error) {
	paths := []string{"."}

	configDir, err := os.UserConfigDir()
	if err == nil {
		paths = append(paths, filepath.Join(configDir, "botaniai-go"))
	}

	return paths, nil
}

// Setting returns the current settings instance, initializing it if necessary
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			if _, err := Load(); err != nil {
				log.Fatalf("Error loading settings: %v", err)
			}
		}
	})
	return GetSettings()
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}
