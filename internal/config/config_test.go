package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	home := t.TempDir()
	cfg, err := loadFrom(home)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".config", "slopwatch", "slopwatch.db"), cfg.DBPath)
	assert.Equal(t, "https://www.linkedin.com/feed/", cfg.FeedURL)
	assert.Equal(t, ".feed-shared-update-v2", cfg.PostSelector)
	assert.Equal(t, "gpt-3.5-turbo", cfg.Model)
	assert.Equal(t, 10, cfg.MaxTokens)
	assert.Zero(t, cfg.MaxInFlight)
}

func TestFileAndEnvOverrides(t *testing.T) {
	home := t.TempDir()
	dir := filepath.Join(home, ".config", "slopwatch")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(`
db_path = "~/data/keys.db"
model = "gpt-4o-mini"
max_in_flight = 4

[browser]
headless = true
debugger_url = "ws://file"
`), 0o644))

	t.Setenv("SLOPWATCH_MODEL", "env-model")
	t.Setenv("SLOPWATCH_DEBUGGER_URL", "ws://env")

	cfg, err := loadFrom(home)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "data", "keys.db"), cfg.DBPath)
	assert.Equal(t, "env-model", cfg.Model)
	assert.Equal(t, 4, cfg.MaxInFlight)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, "ws://env", cfg.Browser.DebuggerURL)
}

func TestBadConfigFile(t *testing.T) {
	home := t.TempDir()
	dir := filepath.Join(home, ".config", "slopwatch")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("model = ["), 0o644))

	_, err := loadFrom(home)
	assert.Error(t, err)
}
