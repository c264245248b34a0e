package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValidReplayConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Replay.Date = "2026-03-14"

	require.NoError(t, cfg.Validate())

	date, err := cfg.Replay.ParseDate()
	require.NoError(t, err)
	assert.Equal(t, 2026, date.Year())
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = ModeCapture
	cfg.Capture.HistoryDir = ""
	cfg.Capture.Markets = nil
	cfg.Venue.WsURL = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capture.history_dir")
	assert.Contains(t, err.Error(), "capture.markets")
	assert.Contains(t, err.Error(), "venue.ws_url")
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "backtest"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `mode "backtest"`)
}

func TestValidateRejectsBadReplayDate(t *testing.T) {
	cfg := Defaults()
	cfg.Replay.Date = "14-03-2026"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "replay.date")
}

func TestValidateLiveModeRequiresMarkets(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = ModeLive
	cfg.Venue.WsURL = "wss://stream.example.com/v1"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "venue.markets")

	cfg.Venue.Markets = []string{"1.234"}
	require.NoError(t, cfg.Validate())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BETSIM_MODE", "capture")
	t.Setenv("BETSIM_CAPTURE_MARKETS", "1.111, 1.222")
	t.Setenv("BETSIM_REDIS_ENABLED", "true")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	assert.Equal(t, ModeCapture, cfg.Mode)
	assert.Equal(t, []string{"1.111", "1.222"}, cfg.Capture.Markets)
	assert.True(t, cfg.Redis.Enabled)
}

func TestRedactedConfigMasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "hunter2"
	cfg.Redis.Password = "hunter2"
	cfg.S3.SecretKey = "hunter2"

	red := RedactedConfig(&cfg)

	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Redis.Password)
	assert.Equal(t, "***", red.S3.SecretKey)
	assert.Empty(t, red.Postgres.DSN)
	// Original is untouched.
	assert.Equal(t, "hunter2", cfg.Postgres.Password)
}
