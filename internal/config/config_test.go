package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettings_MissingFileUsesDefaults(t *testing.T) {
	settings, err := LoadSettings(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), settings)
}

func TestLoadSettingsFile_PartialKeepsDefaults(t *testing.T) {
	settings := DefaultSettings()
	err := LoadSettingsFile(strings.NewReader("api_key: sk-test\nlower_case_titles: true\n"), &settings)
	require.NoError(t, err)

	assert.Equal(t, "sk-test", settings.APIKey)
	assert.True(t, settings.LowerCaseTitles)
	assert.Equal(t, DefaultBaseURL, settings.BaseURL)
	assert.Equal(t, DefaultModel, settings.Model)
}

func TestLoadSettingsFile_Empty(t *testing.T) {
	settings := DefaultSettings()
	require.NoError(t, LoadSettingsFile(strings.NewReader(""), &settings))
	assert.Equal(t, DefaultSettings(), settings)
}

func TestSaveSettings_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	want := Settings{
		APIKey:          "sk-abc",
		BaseURL:         "https://api.example.com/v1",
		Model:           "gpt-4o",
		LowerCaseTitles: true,
	}

	require.NoError(t, SaveSettings(path, want))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSettingsSet(t *testing.T) {
	s := DefaultSettings()

	require.NoError(t, s.Set("model", " gpt-4o "))
	require.NoError(t, s.Set("lower_case_titles", "true"))
	assert.Equal(t, "gpt-4o", s.Model)
	assert.True(t, s.LowerCaseTitles)

	assert.Error(t, s.Set("lower_case_titles", "maybe"))
	assert.Error(t, s.Set("colour", "blue"))
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SCHEDULE_PATTERN", "")
	t.Setenv("REQUEST_TIMEOUT", "5s")
	t.Setenv("JOURNAL_PATH", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, path, cfg.SettingsPath)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, filepath.Join(dir, "journal.db"), cfg.JournalPath)
	assert.Equal(t, DefaultSchedulePattern, cfg.SchedulePattern)
}

func TestLoadConfig_IgnoresMalformedSettingsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("base_url: [unclosed\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, path, cfg.SettingsPath)

	_, err = ResolveSettings(path, nil)
	assert.Error(t, err)
}

func TestResolveSettings_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, SaveSettings(path, Settings{
		APIKey:  "file-key",
		BaseURL: "https://file.example.com/v1",
		Model:   "file-model",
	}))

	t.Setenv("TITLEGEN_API_KEY", "")
	t.Setenv("TITLEGEN_BASE_URL", "")
	t.Setenv("TITLEGEN_MODEL", "env-model")
	t.Setenv("TITLEGEN_LOWER_CASE_TITLES", "true")

	settings, err := ResolveSettings(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "file-key", settings.APIKey)
	assert.Equal(t, "https://file.example.com/v1", settings.BaseURL)
	assert.Equal(t, "env-model", settings.Model)
	assert.True(t, settings.LowerCaseTitles)
}

func TestResolveSettings_APIKeyFallback(t *testing.T) {
	t.Setenv("TITLEGEN_API_KEY", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, SaveSettings(path, Settings{Model: "gpt-4o"}))

	calls := 0
	fallback := func() (string, error) {
		calls++
		return "sk-from-keyring", nil
	}

	settings, err := ResolveSettings(path, fallback)
	require.NoError(t, err)
	assert.Equal(t, "sk-from-keyring", settings.APIKey)
	assert.Equal(t, "gpt-4o", settings.Model)
	assert.Equal(t, DefaultBaseURL, settings.BaseURL)
	assert.Equal(t, 1, calls)

	require.NoError(t, SaveSettings(path, Settings{APIKey: "sk-file"}))
	settings, err = ResolveSettings(path, fallback)
	require.NoError(t, err)
	assert.Equal(t, "sk-file", settings.APIKey)
	assert.Equal(t, 1, calls, "fallback is only used without a configured key")
}

func TestFileSource_ReadsEveryCall(t *testing.T) {
	t.Setenv("TITLEGEN_MODEL", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	source := FileSource(path, nil)

	settings, err := source(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, settings.Model)

	require.NoError(t, SaveSettings(path, Settings{Model: "llama3"}))
	settings, err = source(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "llama3", settings.Model)
}
