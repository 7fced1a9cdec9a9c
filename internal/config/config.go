// Package config loads the orchestration kernel's configuration surface
// (spec §6) from YAML, applying defaults and refusing to start
// on invalid values (spec §7, "Configuration error").
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the flat set of tunables recognized by the core, with defaults
// matching spec §6.
type Config struct {
	HeartbeatIntervalSeconds     int     `yaml:"heartbeat_interval_seconds"`
	PollIntervalSeconds          int     `yaml:"poll_interval_seconds"`
	StaleThresholdSeconds        int     `yaml:"stale_threshold_seconds"`
	StuckThresholdSeconds        int     `yaml:"stuck_threshold_seconds"`
	HealthCheckIntervalSeconds   int     `yaml:"health_check_interval_seconds"`
	MaxConcurrentAgents          int     `yaml:"max_concurrent_agents"`
	ContextTokenLimit            int     `yaml:"context_token_limit"`
	BusMaxQueueSize              int     `yaml:"bus_max_queue_size"`
	ConsolidationWindowHours     int     `yaml:"consolidation_window_hours"`
	ConsolidationMinConfidence   float64 `yaml:"consolidation_min_confidence"`
	SurpriseThreshold            float64 `yaml:"surprise_threshold"`
	MaxTimeGapMinutes            int     `yaml:"max_time_gap_minutes"`
	SaturationThreshold          float64 `yaml:"saturation_threshold"`
	CriticalThreshold            float64 `yaml:"critical_threshold"`
	AlertHorizonHours            int     `yaml:"alert_horizon_hours"`
}

// Default returns a Config populated with the defaults stated in spec §6.
func Default() Config {
	return Config{
		HeartbeatIntervalSeconds:   30,
		PollIntervalSeconds:        5,
		StaleThresholdSeconds:      60,
		StuckThresholdSeconds:      300,
		HealthCheckIntervalSeconds: 10,
		MaxConcurrentAgents:        4,
		ContextTokenLimit:          200_000,
		BusMaxQueueSize:            1000,
		ConsolidationWindowHours:   24,
		ConsolidationMinConfidence: 0.7,
		SurpriseThreshold:          3.5,
		MaxTimeGapMinutes:          60,
		SaturationThreshold:        0.85,
		CriticalThreshold:          0.95,
		AlertHorizonHours:          4,
	}
}

// Load reads a YAML file at path, overlaying it on top of Default(), and
// validates the result. A missing file is not an error: defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, cfg.Validate()
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate returns a configuration error (spec §7) if any tunable is out of
// its legal range. The process must refuse to start when this fails.
func (c Config) Validate() error {
	switch {
	case c.HeartbeatIntervalSeconds <= 0:
		return fmt.Errorf("config: heartbeat_interval_seconds must be positive")
	case c.PollIntervalSeconds <= 0:
		return fmt.Errorf("config: poll_interval_seconds must be positive")
	case c.StaleThresholdSeconds <= 0:
		return fmt.Errorf("config: stale_threshold_seconds must be positive")
	case c.StuckThresholdSeconds <= 0:
		return fmt.Errorf("config: stuck_threshold_seconds must be positive")
	case c.HealthCheckIntervalSeconds <= 0:
		return fmt.Errorf("config: health_check_interval_seconds must be positive")
	case c.MaxConcurrentAgents <= 0:
		return fmt.Errorf("config: max_concurrent_agents must be positive")
	case c.ContextTokenLimit <= 0:
		return fmt.Errorf("config: context_token_limit must be positive")
	case c.BusMaxQueueSize <= 0:
		return fmt.Errorf("config: bus_max_queue_size must be positive")
	case c.ConsolidationMinConfidence < 0 || c.ConsolidationMinConfidence > 1:
		return fmt.Errorf("config: consolidation_min_confidence must be in [0,1]")
	case c.SaturationThreshold <= 0 || c.SaturationThreshold > 1:
		return fmt.Errorf("config: saturation_threshold must be in (0,1]")
	case c.CriticalThreshold <= 0 || c.CriticalThreshold > 1:
		return fmt.Errorf("config: critical_threshold must be in (0,1]")
	case c.CriticalThreshold < c.SaturationThreshold:
		return fmt.Errorf("config: critical_threshold must be >= saturation_threshold")
	}
	return nil
}

func (c Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalSeconds) * time.Second
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c Config) StaleThreshold() time.Duration {
	return time.Duration(c.StaleThresholdSeconds) * time.Second
}

func (c Config) StuckThreshold() time.Duration {
	return time.Duration(c.StuckThresholdSeconds) * time.Second
}

func (c Config) HealthCheckInterval() time.Duration {
	return time.Duration(c.HealthCheckIntervalSeconds) * time.Second
}

func (c Config) ConsolidationWindow() time.Duration {
	return time.Duration(c.ConsolidationWindowHours) * time.Hour
}

func (c Config) MaxTimeGap() time.Duration {
	return time.Duration(c.MaxTimeGapMinutes) * time.Minute
}

func (c Config) AlertHorizon() time.Duration {
	return time.Duration(c.AlertHorizonHours) * time.Hour
}
