package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Fetch.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Fetch.BaseDelay)
	assert.Equal(t, 15, cfg.Agent.MaxTurns)
	assert.Equal(t, 5, cfg.Tariff.TopN)
	assert.Equal(t, 5*time.Minute, cfg.Runs.ListenerTimeout)
	assert.Equal(t, "wn-smartmeter", cfg.Portal.ClientID)
	assert.InDelta(t, 1.2, cfg.Tariff.GrossVAT, 1e-9)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("FETCH_MAX_ATTEMPTS", "5")
	t.Setenv("FETCH_BASE_DELAY", "10ms")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")
	t.Setenv("INFLUXDB_ENABLED", "true")
	t.Setenv("AGENT_MAX_TURNS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Fetch.MaxAttempts)
	assert.Equal(t, 10*time.Millisecond, cfg.Fetch.BaseDelay)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.InfluxDB.Enabled)
	assert.Equal(t, 15, cfg.Agent.MaxTurns, "invalid values fall back to the default")
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("PORTAL_EMAIL=me@example.org\n"), 0o600))
	t.Setenv("PORTAL_EMAIL", "")

	loaded := LoadEnv()
	assert.Equal(t, []string{".env"}, loaded)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "me@example.org", cfg.Portal.Email)
}
