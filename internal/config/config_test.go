package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 505.0, cfg.Game.MaxPaddleY())
	assert.Equal(t, 1500.0, cfg.Game.ServeSpeed())
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"PONG_WIN_SCORE":     "3",
		"PONG_TICK_INTERVAL": "20ms",
		"PONG_STORE":         "redis",
		"PONG_MIN_DIR":       "0.6",
		"PONG_SEEDING":       "ranked",
	}
	cfg := Default()
	err := cfg.applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Game.WinScore)
	assert.Equal(t, 20*time.Millisecond, cfg.Game.TickInterval)
	assert.Equal(t, StoreRedis, cfg.Store)
	assert.Equal(t, 0.6, cfg.Game.MinDir)
	assert.Equal(t, SeedRanked, cfg.Seeding)
}

func TestApplyEnvReportsBadValues(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(func(k string) (string, bool) {
		if k == "PONG_WIN_SCORE" {
			return "ten", true
		}
		return "", false
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PONG_WIN_SCORE")
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"paddle taller than court", func(c *Config) { c.Game.PaddleHalfHeight = 900 }},
		{"zero win score", func(c *Config) { c.Game.WinScore = 0 }},
		{"min dir out of range", func(c *Config) { c.Game.MinDir = 1.2 }},
		{"bracket size", func(c *Config) { c.TournamentSize = 8 }},
		{"unknown store", func(c *Config) { c.Store = "mongo" }},
		{"zero tick", func(c *Config) { c.Game.TickInterval = 0 }},
		{"negative move tolerance", func(c *Config) { c.Game.MoveTolerance = -0.5 }},
		{"unknown seeding", func(c *Config) { c.Seeding = "elo" }},
		{"no connections", func(c *Config) { c.MaxTotalConns = 0 }},
		{"zero retention", func(c *Config) { c.BracketRetention = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("PONG_ADDR=:9999\n"), 0o644))
	t.Setenv("PONG_ADDR", "")
	os.Unsetenv("PONG_ADDR")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Addr)
}

func TestLoadMissingEnvFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.env"))
	assert.NoError(t, err)
}
