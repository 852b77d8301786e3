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

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8080
database:
  dsn: "file:test.db"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Tracker.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.Tracker.AutoActionTimeout)
	assert.Equal(t, time.Second, cfg.Tracker.EvaluationCooldown)
	assert.Equal(t, 10, cfg.Tracker.EntryDelayMinutes)
	assert.Equal(t, 10, cfg.Tracker.ExitBackdateOption1Mins)
	assert.Equal(t, 30, cfg.Tracker.ExitBackdateOption2Mins)
	assert.Equal(t, 100.0, cfg.Tracker.MinAccuracyMeters)
	assert.Equal(t, "UTC", cfg.Tracker.Timezone)
	assert.Equal(t, "05:00", cfg.Tracker.WorkHoursStart)
	assert.Equal(t, "22:00", cfg.Tracker.WorkHoursEnd)
	assert.Equal(t, 3600, cfg.Push.TTL)
	assert.Equal(t, 1, cfg.WorkerPool.Size)
}

func TestLoad_ExplicitValues(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
  rate_limit_per_sec: 20
tracker:
  poll_interval_seconds: 15
  auto_action_timeout_seconds: 45
  timezone: "Europe/Madrid"
  work_hours_start: "07:30"
  work_hours_end: "20:00"
  allow_outside_hours: true
  position_source_url: "http://localhost:9100/position"
  position_source_headers:
    X-Api-Key: "secret"
worker_pool:
  size: 4
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 15*time.Second, cfg.Tracker.PollInterval)
	assert.Equal(t, 45*time.Second, cfg.Tracker.AutoActionTimeout)
	assert.Equal(t, "Europe/Madrid", cfg.Tracker.Timezone)
	assert.Equal(t, "07:30", cfg.Tracker.WorkHoursStart)
	assert.True(t, cfg.Tracker.AllowOutsideHours)
	assert.Equal(t, "secret", cfg.Tracker.PositionSourceHeaders["X-Api-Key"])
	assert.Equal(t, 4, cfg.WorkerPool.Size)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
