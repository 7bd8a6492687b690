package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://localhost/studio
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, "postgres://localhost/studio", cfg.Database.URL)
	assert.Equal(t, 30, cfg.Engine.SweepIntervalMinutes)
	assert.Equal(t, 60, cfg.Engine.ToleranceMinutes)
	assert.Equal(t, 5, cfg.Engine.DispatchWorkers)
	assert.Equal(t, 15*time.Second, cfg.Engine.DispatchTimeout())
	assert.Equal(t, 30, cfg.Email.TimeoutSeconds)
}

func TestLoadClampsSweepInterval(t *testing.T) {
	path := writeConfig(t, `
engine:
  sweep_interval_minutes: 300
  tolerance_minutes: 60
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	// Interval above 2x tolerance would allow missed reminders.
	assert.Equal(t, 120, cfg.Engine.SweepIntervalMinutes)
}

func TestLoadClampsDispatchWorkers(t *testing.T) {
	path := writeConfig(t, `
engine:
  dispatch_workers: 64
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Engine.DispatchWorkers)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://localhost/studio
email:
  region: us-west-2
`)

	t.Setenv("DATABASE_URL", "postgres://prod-host/studio")
	t.Setenv("AWS_SES_REGION", "eu-west-1")
	t.Setenv("SMS_API_KEY", "sk-test")
	t.Setenv("SWEEP_INTERVAL_MINUTES", "15")

	cfg, err := LoadFromEnv(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://prod-host/studio", cfg.Database.URL)
	assert.Equal(t, "eu-west-1", cfg.Email.Region)
	assert.Equal(t, "sk-test", cfg.SMS.APIKey)
	assert.Equal(t, 15, cfg.Engine.SweepIntervalMinutes)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
