// Package config loads the interaction-sim configuration file.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Swind/go-interaction-manager/core"
)

// Config is the root of the YAML document.
type Config struct {
	Manager  ManagerConfig  `yaml:"manager"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Scenario ScenarioConfig `yaml:"scenario"`
}

// ManagerConfig configures the InteractionManager.
type ManagerConfig struct {
	Name            string `yaml:"name"`
	HistoryCapacity int    `yaml:"history_capacity"`
}

// LogConfig selects the zerolog output.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`
	// Format is "console" or "json".
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus exporter.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
	// Listen is the /metrics address, e.g. ":9464". Empty disables the server
	// while still recording into the registry.
	Listen       string        `yaml:"listen,omitempty"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// ScenarioConfig describes the gesture replay.
type ScenarioConfig struct {
	Gestures        int           `yaml:"gestures"`
	TasksPerGesture int           `yaml:"tasks_per_gesture"`
	Hold            time.Duration `yaml:"hold"`
	Gap             time.Duration `yaml:"gap"`
	// FailEvery makes every Nth deferred task return an error. 0 disables.
	FailEvery int `yaml:"fail_every,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Manager: ManagerConfig{
			Name:            "interaction-sim",
			HistoryCapacity: 100,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			Namespace:    "interactions",
			PollInterval: time.Second,
		},
		Scenario: ScenarioConfig{
			Gestures:        3,
			TasksPerGesture: 2,
			Hold:            150 * time.Millisecond,
			Gap:             50 * time.Millisecond,
		},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML document over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error

	if c.Manager.Name == "" {
		errs = append(errs, errors.New("manager.name is required"))
	}
	if c.Manager.HistoryCapacity < 0 {
		errs = append(errs, fmt.Errorf("manager.history_capacity must be >= 0, got %d", c.Manager.HistoryCapacity))
	}

	if _, err := core.ParseLogLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be console or json, got %q", c.Log.Format))
	}

	if c.Metrics.Listen != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Listen); err != nil {
			errs = append(errs, fmt.Errorf("metrics.listen: %w", err))
		}
	}
	if c.Metrics.PollInterval < 0 {
		errs = append(errs, errors.New("metrics.poll_interval must not be negative"))
	}

	s := c.Scenario
	if s.Gestures < 0 || s.TasksPerGesture < 0 || s.FailEvery < 0 {
		errs = append(errs, errors.New("scenario counts must not be negative"))
	}
	if s.Hold < 0 || s.Gap < 0 {
		errs = append(errs, errors.New("scenario durations must not be negative"))
	}

	return errors.Join(errs...)
}

// LogLevel returns the parsed log level. Call after Validate.
func (c *Config) LogLevel() core.LogLevel {
	level, _ := core.ParseLogLevel(c.Log.Level)
	return level
}

// ManagerOptions builds a core.ManagerConfig; the caller supplies the handlers.
func (c *Config) ManagerOptions(logger core.Logger, metrics core.Metrics) *core.ManagerConfig {
	return &core.ManagerConfig{
		Name:            c.Manager.Name,
		Logger:          logger,
		Metrics:         metrics,
		HistoryCapacity: c.Manager.HistoryCapacity,
	}
}
