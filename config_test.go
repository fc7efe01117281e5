package instactl

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfiguration_File(t *testing.T) {
	path := writeConfig(t, `{
		"username": "alice",
		"password": "secret",
		"session_file": "alice.session",
		"proxy": null,
		"delay_range": [1, 4],
		"max_retries": 5,
		"accounts": []
	}`)

	cfg, found, err := LoadConfiguration(path)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "alice", cfg.Username)
	assert.Equal(t, "secret", cfg.Password)
	assert.Equal(t, "alice.session", cfg.SessionFile)
	assert.Empty(t, cfg.Proxy)
	assert.Equal(t, DelayRange{1, 4}, cfg.DelayRange)
	assert.Equal(t, time.Second, cfg.DelayRange.Min())
	assert.Equal(t, 4*time.Second, cfg.DelayRange.Max())
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, "posted_media.json", cfg.MediaLog)
}

func TestLoadConfiguration_DefaultsForMissingKeys(t *testing.T) {
	path := writeConfig(t, `{"username": "bob"}`)

	cfg, _, err := LoadConfiguration(path)
	require.NoError(t, err)
	assert.Equal(t, "session.json", cfg.SessionFile)
	assert.Equal(t, DelayRange{2, 5}, cfg.DelayRange)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, "instactl.log", cfg.LogFile)
}

func TestLoadConfiguration_ExplicitZeroRetriesKept(t *testing.T) {
	path := writeConfig(t, `{"max_retries": 0, "delay_range": [0, 0]}`)

	cfg, _, err := LoadConfiguration(path)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.MaxRetries)
	assert.Equal(t, DelayRange{0, 0}, cfg.DelayRange)
}

func TestLoadConfiguration_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `{"username": "file-user", "max_retries": 2}`)
	t.Setenv("INSTACTL_USERNAME", "env-user")
	t.Setenv("INSTACTL_MAX_RETRIES", "9")
	t.Setenv("INSTACTL_DELAY_RANGE", "0.5, 1.5")

	cfg, _, err := LoadConfiguration(path)
	require.NoError(t, err)
	assert.Equal(t, "env-user", cfg.Username)
	assert.Equal(t, 9, cfg.MaxRetries)
	assert.Equal(t, DelayRange{0.5, 1.5}, cfg.DelayRange)
}

func TestLoadConfiguration_MissingFileFallsBackToEnv(t *testing.T) {
	t.Setenv("INSTACTL_USERNAME", "env-only")

	cfg, found, err := LoadConfiguration(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, "env-only", cfg.Username)
	assert.Equal(t, 3, cfg.MaxRetries)
}

func TestLoadConfiguration_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"negative retries", `{"max_retries": -1}`},
		{"inverted delay", `{"delay_range": [5, 2]}`},
		{"negative delay", `{"delay_range": [-1, 2]}`},
		{"relative proxy", `{"proxy": "not a url"}`},
		{"broken json", `{"username": `},
		{"unknown backend", `{"backend": "selenium"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := LoadConfiguration(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfiguration_Backend(t *testing.T) {
	cfg, _, err := LoadConfiguration(writeConfig(t, `{"backend": "goinsta-v2"}`))
	require.NoError(t, err)
	assert.Equal(t, BackendGoinstaV2, cfg.Backend)
}

func TestDelayRange_SetValue(t *testing.T) {
	var d DelayRange
	require.NoError(t, d.SetValue("2,5"))
	assert.Equal(t, DelayRange{2, 5}, d)

	assert.Error(t, d.SetValue("2"))
	assert.Error(t, d.SetValue("a,b"))
}

func TestWriteSampleConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, WriteSampleConfig(path, false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "your_username", raw["username"])
	assert.Equal(t, []any{2.0, 5.0}, raw["delay_range"])
	assert.EqualValues(t, 3, raw["max_retries"])

	assert.Error(t, WriteSampleConfig(path, false), "existing file must not be clobbered")
	assert.NoError(t, WriteSampleConfig(path, true))

	cfg, found, err := LoadConfiguration(path)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, SampleConfig(), cfg)
}
