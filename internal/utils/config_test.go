package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenloop/ewaste-monitor/pkg/file"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	config, err := LoadConfig("", file.NewFileService())
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", config.Backend.URL)
	assert.Equal(t, "ws://localhost:8000/ws", config.Stream.URL)
	assert.Equal(t, 3*time.Second, config.Stream.ReconnectDelay)
	assert.Equal(t, 15*time.Second, config.Services.Snapshot.Interval)
	assert.True(t, config.Services.Snapshot.Enabled)
	assert.True(t, config.Services.Stream.Enabled)
	assert.Equal(t, ":8090", config.HTTP.Addr)
	assert.Equal(t, "info", config.Logging.Level)
}

func TestLoadConfigMissingFileFallsBackToDefaults(t *testing.T) {
	config, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"), file.NewFileService())
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000", config.Backend.URL)
}

func TestLoadConfigFileOverlay(t *testing.T) {
	path := writeConfigFile(t, `
backend:
  url: https://tracking.greenloop.io
  username: auditor
  password: audit456
stream:
  url: wss://tracking.greenloop.io/ws
  reconnect_delay: 5s
services:
  snapshot:
    interval: 30s
logging:
  level: debug
`)

	config, err := LoadConfig(path, file.NewFileService())
	require.NoError(t, err)

	assert.Equal(t, "https://tracking.greenloop.io", config.Backend.URL)
	assert.Equal(t, "auditor", config.Backend.Username)
	assert.Equal(t, 5*time.Second, config.Stream.ReconnectDelay)
	assert.Equal(t, 30*time.Second, config.Services.Snapshot.Interval)
	assert.Equal(t, "debug", config.Logging.Level)
	// Values absent from the file keep their defaults.
	assert.Equal(t, 10*time.Second, config.Services.Snapshot.Timeout)
	assert.True(t, config.Services.Snapshot.Enabled)
	assert.Equal(t, ":8090", config.HTTP.Addr)
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
backend:
  url: https://file.greenloop.io
`)
	t.Setenv("EWM_BACKEND_URL", "https://env.greenloop.io")
	t.Setenv("EWM_SNAPSHOT_INTERVAL", "45s")
	t.Setenv("EWM_STREAM_ENABLED", "false")

	config, err := LoadConfig(path, file.NewFileService())
	require.NoError(t, err)

	assert.Equal(t, "https://env.greenloop.io", config.Backend.URL)
	assert.Equal(t, 45*time.Second, config.Services.Snapshot.Interval)
	assert.False(t, config.Services.Stream.Enabled)
}

func TestLoadConfigRejectsBadEnvDuration(t *testing.T) {
	t.Setenv("EWM_SNAPSHOT_INTERVAL", "every-so-often")

	_, err := LoadConfig("", file.NewFileService())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EWM_SNAPSHOT_INTERVAL")
}

func TestLoadConfigRejectsMalformedYaml(t *testing.T) {
	path := writeConfigFile(t, "backend: [not: valid")

	_, err := LoadConfig(path, file.NewFileService())
	require.Error(t, err)
}

func TestValidateRejectsAllServicesDisabled(t *testing.T) {
	config := DefaultConfig()
	config.Services.Snapshot.Enabled = false
	config.Services.Stream.Enabled = false

	require.Error(t, config.Validate())
}

func TestValidateRejectsMissingCredentials(t *testing.T) {
	config := DefaultConfig()
	config.Backend.Password = ""

	require.Error(t, config.Validate())
}

func TestValidateRejectsNonPositiveInterval(t *testing.T) {
	config := DefaultConfig()
	config.Services.Snapshot.Interval = 0

	require.Error(t, config.Validate())
}

func TestValidateAllowsDisabledSnapshotWithoutInterval(t *testing.T) {
	config := DefaultConfig()
	config.Services.Snapshot.Enabled = false
	config.Services.Snapshot.Interval = 0

	require.NoError(t, config.Validate())
}
