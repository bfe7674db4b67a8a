package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/nutribot/internal/config"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := config.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, 30*time.Minute, cfg.Session.IdleWindow)
	assert.Equal(t, 10, cfg.Session.HistoryLimit)
	assert.Equal(t, 5*time.Minute, cfg.Session.PendingTTL)
	assert.Equal(t, 3*time.Second, cfg.Classifier.Timeout)
	assert.InDelta(t, 0.75, cfg.Resolver.FoodThreshold, 1e-9)
	assert.InDelta(t, 0.70, cfg.Resolver.ExerciseThreshold, 1e-9)
	assert.Equal(t, 5, cfg.Resolver.ShortQueryLength)
	assert.Equal(t, "America/Sao_Paulo", cfg.Tracking.Timezone)
	assert.True(t, cfg.Scheduler.Tasks["summary_repair"].Enabled)
	assert.NotEmpty(t, cfg.Messages.Fallback)
	assert.Empty(t, cfg.Gemini.APIKey)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
logger:
  level: debug
session:
  idle_window: 45m
tracking:
  timezone: Europe/Lisbon
resolver:
  food_threshold: 0.8
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("NUTRIBOT_GEMINI_API_KEY", "secret")
	t.Setenv("NUTRIBOT_SESSION_HISTORY_LIMIT", "20")

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, 45*time.Minute, cfg.Session.IdleWindow)
	assert.Equal(t, "Europe/Lisbon", cfg.Tracking.Timezone)
	assert.InDelta(t, 0.8, cfg.Resolver.FoodThreshold, 1e-9)
	assert.Equal(t, "secret", cfg.Gemini.APIKey)
	assert.Equal(t, 20, cfg.Session.HistoryLimit)
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "Invalid log level",
			content: "logger:\n  level: verbose\n",
		},
		{
			name:    "Threshold above one",
			content: "resolver:\n  exercise_threshold: 1.5\n",
		},
		{
			name:    "Zero short query length",
			content: "resolver:\n  short_query_length: 0\n",
		},
		{
			name:    "Unknown timezone",
			content: "tracking:\n  timezone: Mars/Olympus\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			_, err := config.LoadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logger: [unterminated"), 0o600))

	_, err := config.LoadConfig(path)
	assert.Error(t, err)
}
