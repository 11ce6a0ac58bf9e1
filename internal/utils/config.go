package utils

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/greenloop/ewaste-monitor/pkg/file"
)

// Config represents the structure of the configuration file. Every value
// has a default, the YAML file overlays it, and EWM_* environment
// variables override both.
type Config struct {
	Backend struct {
		URL      string        `yaml:"url"`      // Base URL of the tracking backend REST API
		Timeout  time.Duration `yaml:"timeout"`  // End-to-end budget for a single REST request
		Username string        `yaml:"username"` // Backend login username
		Password string        `yaml:"password"` // Backend login password
	} `yaml:"backend"`

	Stream struct {
		URL            string        `yaml:"url"`             // WebSocket endpoint of the live event feed
		ReconnectDelay time.Duration `yaml:"reconnect_delay"` // Fixed pause between reconnect attempts
	} `yaml:"stream"`

	Services struct {
		Snapshot struct {
			Enabled  bool          `yaml:"enabled"`  // Enable/disable the snapshot refresh loop
			Interval time.Duration `yaml:"interval"` // Pause between refresh cycles
			Timeout  time.Duration `yaml:"timeout"`  // Budget for one refresh cycle end to end
		} `yaml:"snapshot"`

		Stream struct {
			Enabled bool `yaml:"enabled"` // Enable/disable the live event subscription
		} `yaml:"stream"`
	} `yaml:"services"`

	HTTP struct {
		Addr            string        `yaml:"addr"`             // Listen address of the view API
		ReadTimeout     time.Duration `yaml:"read_timeout"`     // Server read timeout
		WriteTimeout    time.Duration `yaml:"write_timeout"`    // Server write timeout
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // Grace period for in-flight requests on shutdown
	} `yaml:"http"`

	Logging struct {
		Level string `yaml:"level"` // Log level: trace, debug, info, warn, error
	} `yaml:"logging"`
}

// DefaultConfig returns a config pointed at a local backend, matching the
// development stack's defaults.
func DefaultConfig() *Config {
	var config Config

	config.Backend.URL = "http://localhost:8000"
	config.Backend.Timeout = 10 * time.Second
	config.Backend.Username = "admin"
	config.Backend.Password = "hackathon2024"

	config.Stream.URL = "ws://localhost:8000/ws"
	config.Stream.ReconnectDelay = 3 * time.Second

	config.Services.Snapshot.Enabled = true
	config.Services.Snapshot.Interval = 15 * time.Second
	config.Services.Snapshot.Timeout = 10 * time.Second
	config.Services.Stream.Enabled = true

	config.HTTP.Addr = ":8090"
	config.HTTP.ReadTimeout = 15 * time.Second
	config.HTTP.WriteTimeout = 15 * time.Second
	config.HTTP.ShutdownTimeout = 10 * time.Second

	config.Logging.Level = "info"

	return &config
}

// LoadConfig builds the effective configuration: defaults, overlaid by the
// YAML file when it exists, overridden by environment variables. A missing
// file is not an error; the monitor runs on defaults and environment
// alone.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	config := DefaultConfig()

	if filename != "" {
		exists, err := fileClient.IsFileExists(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to check config file %s: %w", filename, err)
		}
		if exists {
			if err := fileClient.ReadYamlFile(filename, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", filename, err)
			}
		}
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// applyEnvOverrides lets EWM_* variables override file and default values.
func applyEnvOverrides(config *Config) error {
	config.Backend.URL = getEnvString("EWM_BACKEND_URL", config.Backend.URL)
	config.Backend.Username = getEnvString("EWM_USERNAME", config.Backend.Username)
	config.Backend.Password = getEnvString("EWM_PASSWORD", config.Backend.Password)
	config.Stream.URL = getEnvString("EWM_STREAM_URL", config.Stream.URL)
	config.HTTP.Addr = getEnvString("EWM_HTTP_ADDR", config.HTTP.Addr)
	config.Logging.Level = getEnvString("EWM_LOG_LEVEL", config.Logging.Level)

	var err error
	if config.Backend.Timeout, err = getEnvDuration("EWM_BACKEND_TIMEOUT", config.Backend.Timeout); err != nil {
		return err
	}
	if config.Stream.ReconnectDelay, err = getEnvDuration("EWM_RECONNECT_DELAY", config.Stream.ReconnectDelay); err != nil {
		return err
	}
	if config.Services.Snapshot.Interval, err = getEnvDuration("EWM_SNAPSHOT_INTERVAL", config.Services.Snapshot.Interval); err != nil {
		return err
	}
	if config.Services.Snapshot.Timeout, err = getEnvDuration("EWM_SNAPSHOT_TIMEOUT", config.Services.Snapshot.Timeout); err != nil {
		return err
	}
	if config.Services.Snapshot.Enabled, err = getEnvBool("EWM_SNAPSHOT_ENABLED", config.Services.Snapshot.Enabled); err != nil {
		return err
	}
	if config.Services.Stream.Enabled, err = getEnvBool("EWM_STREAM_ENABLED", config.Services.Stream.Enabled); err != nil {
		return err
	}
	return nil
}

// Validate rejects configurations the monitor cannot run with.
func (c *Config) Validate() error {
	if c.Backend.URL == "" {
		return errors.New("backend url must not be empty")
	}
	if c.Backend.Username == "" || c.Backend.Password == "" {
		return errors.New("backend credentials must not be empty")
	}
	if c.Backend.Timeout <= 0 {
		return errors.New("backend timeout must be positive")
	}
	if !c.Services.Snapshot.Enabled && !c.Services.Stream.Enabled {
		return errors.New("at least one of the snapshot and stream services must be enabled")
	}
	if c.Services.Snapshot.Enabled {
		if c.Services.Snapshot.Interval <= 0 {
			return errors.New("snapshot interval must be positive")
		}
		if c.Services.Snapshot.Timeout <= 0 {
			return errors.New("snapshot timeout must be positive")
		}
	}
	if c.Services.Stream.Enabled {
		if c.Stream.URL == "" {
			return errors.New("stream url must not be empty")
		}
		if c.Stream.ReconnectDelay <= 0 {
			return errors.New("stream reconnect delay must be positive")
		}
	}
	if c.HTTP.Addr == "" {
		return errors.New("http addr must not be empty")
	}
	return nil
}

func getEnvString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration in %s: %w", key, err)
	}
	return parsed, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid boolean in %s: %w", key, err)
	}
	return parsed, nil
}
