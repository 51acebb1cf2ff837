package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ensureFiles(t *testing.T, rootDir string, files ...string) {
	t.Helper()
	for _, f := range files {
		p := rootify(f, rootDir)
		_, err := os.Stat(p)
		assert.NoError(t, err, p)
	}
}

func TestEnsureRoot(t *testing.T) {
	tmpDir := t.TempDir()

	require.NoError(t, EnsureRoot(tmpDir))
	require.NoError(t, WriteDefaultConfigFileIfNone(tmpDir))

	ensureFiles(t, tmpDir, "config", defaultConfigFilePath)

	// an existing file is not overwritten
	path := filepath.Join(tmpDir, defaultConfigFilePath)
	require.NoError(t, os.WriteFile(path, []byte("log-level = \"error\"\n"), 0600))
	require.NoError(t, WriteDefaultConfigFileIfNone(tmpDir))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "log-level = \"error\"\n", string(data))
}

func TestConfigTemplateIsValidTOML(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, EnsureRoot(tmpDir))

	cfg := DefaultConfig()
	cfg.Timer.StrictDurations = true
	cfg.Wake.Backend = WakeBackendWallclock
	require.NoError(t, WriteConfigFile(tmpDir, cfg))

	var doc map[string]interface{}
	_, err := toml.DecodeFile(filepath.Join(tmpDir, defaultConfigFilePath), &doc)
	require.NoError(t, err)

	require.Equal(t, "info", doc["log-level"])

	timer, ok := doc["timer"].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, true, timer["strict-durations"])
	require.Equal(t, "1s", timer["fallback-grace"])

	wake, ok := doc["wake"].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, WakeBackendWallclock, wake["backend"])
	require.EqualValues(t, 64, wake["max-registrations"])
}

func TestConfigRoundTripsThroughViper(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, EnsureRoot(tmpDir))

	want := DefaultConfig()
	want.Timer.FallbackGrace = 250 * time.Millisecond
	want.Wake.MaxRegistrations = 8
	want.Wake.WallclockCheckInterval = 5 * time.Second
	want.Instrumentation.Prometheus = true
	require.NoError(t, WriteConfigFile(tmpDir, want))

	v := viper.New()
	v.SetConfigFile(filepath.Join(tmpDir, defaultConfigFilePath))
	require.NoError(t, v.ReadInConfig())

	got := DefaultConfig()
	require.NoError(t, v.Unmarshal(got))
	require.NoError(t, got.ValidateBasic())

	assert.Equal(t, want.Timer, got.Timer)
	assert.Equal(t, want.Wake, got.Wake)
	assert.Equal(t, want.Instrumentation, got.Instrumentation)
	assert.Equal(t, want.LogFormat, got.LogFormat)
}
