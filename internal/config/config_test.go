package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shawkridge/athena-sub007/internal/config"
)

func TestDefaultMatchesSpecDefaults(t *testing.T) {
	d := config.Default()
	assert.Equal(t, 30, d.HeartbeatIntervalSeconds)
	assert.Equal(t, 5, d.PollIntervalSeconds)
	assert.Equal(t, 60, d.StaleThresholdSeconds)
	assert.Equal(t, 300, d.StuckThresholdSeconds)
	assert.Equal(t, 4, d.MaxConcurrentAgents)
	assert.Equal(t, 200_000, d.ContextTokenLimit)
	assert.Equal(t, 0.7, d.ConsolidationMinConfidence)
	assert.Equal(t, 3.5, d.SurpriseThreshold)
	assert.Equal(t, 0.85, d.SaturationThreshold)
	assert.Equal(t, 0.95, d.CriticalThreshold)
	require.NoError(t, d.Validate())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoadOverlaysYAMLOnDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orchestratord.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_concurrent_agents: 8\nsaturation_threshold: 0.9\n"), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.MaxConcurrentAgents)
	assert.Equal(t, 0.9, cfg.SaturationThreshold)
	assert.Equal(t, 30, cfg.HeartbeatIntervalSeconds, "unset fields keep their default")
}

func TestValidateRejectsOutOfRangeValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"zero heartbeat", func(c *config.Config) { c.HeartbeatIntervalSeconds = 0 }},
		{"negative poll", func(c *config.Config) { c.PollIntervalSeconds = -1 }},
		{"zero concurrency", func(c *config.Config) { c.MaxConcurrentAgents = 0 }},
		{"confidence above 1", func(c *config.Config) { c.ConsolidationMinConfidence = 1.5 }},
		{"saturation above 1", func(c *config.Config) { c.SaturationThreshold = 1.1 }},
		{"critical below saturation", func(c *config.Config) {
			c.SaturationThreshold = 0.9
			c.CriticalThreshold = 0.8
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_concurrent_agents: [this is not an int]\n"), 0o600))
	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestDurationHelpersConvertSeconds(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, "30s", cfg.HeartbeatInterval().String())
	assert.Equal(t, "1m0s", cfg.StaleThreshold().String())
	assert.Equal(t, "5m0s", cfg.StuckThreshold().String())
	assert.Equal(t, "24h0m0s", cfg.ConsolidationWindow().String())
	assert.Equal(t, "4h0m0s", cfg.AlertHorizon().String())
}
