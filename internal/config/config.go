package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-3.5-turbo"

	DefaultSchedulePattern = "**/Untitled*.md"
	DefaultRequestTimeout  = 60 * time.Second
)

// Settings is the persisted record the user edits: where to send text and how
// to shape the returned title.
type Settings struct {
	APIKey          string `yaml:"api_key"`
	BaseURL         string `yaml:"base_url"`
	Model           string `yaml:"model"`
	LowerCaseTitles bool   `yaml:"lower_case_titles"`
}

// DefaultSettings returns the settings used when nothing was saved yet.
func DefaultSettings() Settings {
	return Settings{
		BaseURL: DefaultBaseURL,
		Model:   DefaultModel,
	}
}

type Config struct {
	// Settings file, read per command through ResolveSettings or FileSource
	SettingsPath string

	// Vault
	VaultDir string

	// HTTP client
	RequestTimeout time.Duration

	// Server
	Port                         string
	GinMode                      string
	APIToken                     string
	ServerShutdownTimeoutSeconds int

	// Journal
	JournalPath string

	// Scheduled runs
	Schedule        string
	SchedulePattern string

	// Logging
	LogLevel  string
	LogFormat string
}

// LoadConfig reads .env and the environment. It only locates the settings
// file; the file itself is read by the commands that need it.
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env file", slog.String("error", err.Error()))
	}

	settingsPath := getEnvOrDefault("CONFIG_FILE", "")
	if settingsPath == "" {
		path, err := DefaultSettingsPath()
		if err != nil {
			return nil, err
		}
		settingsPath = path
	}

	cfg := &Config{
		SettingsPath: settingsPath,

		VaultDir: getEnvOrDefault("VAULT_DIR", "."),

		RequestTimeout: getEnvAsDuration("REQUEST_TIMEOUT", DefaultRequestTimeout),

		Port:                         getEnvOrDefault("PORT", "8080"),
		GinMode:                      getEnvOrDefault("GIN_MODE", "release"),
		APIToken:                     strings.TrimSpace(getEnvOrDefault("API_TOKEN", "")),
		ServerShutdownTimeoutSeconds: getEnvAsInt("SERVER_SHUTDOWN_TIMEOUT_SECONDS", 30),

		JournalPath: getEnvOrDefault("JOURNAL_PATH", filepath.Join(filepath.Dir(settingsPath), "journal.db")),

		Schedule:        getEnvOrDefault("SCHEDULE", ""),
		SchedulePattern: getEnvOrDefault("SCHEDULE_PATTERN", DefaultSchedulePattern),

		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "text"),
	}

	return cfg, nil
}

// DefaultSettingsPath returns <user config dir>/titlegen/config.yaml.
func DefaultSettingsPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(dir, "titlegen", "config.yaml"), nil
}

// LoadSettings reads the settings file at path on top of DefaultSettings.
// A missing file is not an error.
func LoadSettings(path string) (Settings, error) {
	settings := DefaultSettings()

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return settings, nil
	}
	if err != nil {
		return settings, fmt.Errorf("open settings file: %w", err)
	}
	defer f.Close()

	if err := LoadSettingsFile(f, &settings); err != nil {
		return settings, fmt.Errorf("decode settings file %s: %w", path, err)
	}

	// Blank values in the file fall back to defaults.
	if strings.TrimSpace(settings.BaseURL) == "" {
		settings.BaseURL = DefaultBaseURL
	}
	if strings.TrimSpace(settings.Model) == "" {
		settings.Model = DefaultModel
	}

	return settings, nil
}

// LoadSettingsFile decodes YAML settings from reader into settings. Keys that
// are absent keep their current values.
func LoadSettingsFile(reader io.Reader, settings *Settings) error {
	decoder := yaml.NewDecoder(reader)

	if err := decoder.Decode(settings); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}

	return nil
}

// SaveSettings writes settings to path, creating parent directories.
func SaveSettings(path string, settings Settings) error {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}

	// The file may hold the API key.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write settings file: %w", err)
	}
	return nil
}

// Set updates a single settings field by its YAML key.
func (s *Settings) Set(key, value string) error {
	switch key {
	case "api_key":
		s.APIKey = strings.TrimSpace(value)
	case "base_url":
		s.BaseURL = strings.TrimSpace(value)
	case "model":
		s.Model = strings.TrimSpace(value)
	case "lower_case_titles":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("lower_case_titles must be true or false: %w", err)
		}
		s.LowerCaseTitles = b
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return nil
}

// SettingsSource returns the settings for the next generation. Long-running
// commands call it once per request or run so edits apply without a restart.
type SettingsSource func(ctx context.Context) (Settings, error)

// StaticSource always returns s.
func StaticSource(s Settings) SettingsSource {
	return func(context.Context) (Settings, error) {
		return s, nil
	}
}

// FileSource re-reads the settings file at path on every call and applies
// environment overrides. When no API key is configured, apiKey (typically the
// OS keyring) is consulted; it may be nil.
func FileSource(path string, apiKey func() (string, error)) SettingsSource {
	return func(ctx context.Context) (Settings, error) {
		if err := ctx.Err(); err != nil {
			return Settings{}, err
		}
		return ResolveSettings(path, apiKey)
	}
}

// ResolveSettings loads the settings file at path, applies environment
// overrides and falls back to apiKey for a missing credential.
func ResolveSettings(path string, apiKey func() (string, error)) (Settings, error) {
	settings, err := LoadSettings(path)
	if err != nil {
		return Settings{}, err
	}
	settings = applyEnv(settings)

	if settings.APIKey == "" && apiKey != nil {
		key, err := apiKey()
		if err != nil {
			slog.Warn("failed to read API key from credential store", slog.String("error", err.Error()))
		} else {
			settings.APIKey = key
		}
	}
	return settings, nil
}

func applyEnv(s Settings) Settings {
	if v := os.Getenv("TITLEGEN_API_KEY"); v != "" {
		s.APIKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("TITLEGEN_BASE_URL"); v != "" {
		s.BaseURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("TITLEGEN_MODEL"); v != "" {
		s.Model = strings.TrimSpace(v)
	}
	if v := os.Getenv("TITLEGEN_LOWER_CASE_TITLES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			s.LowerCaseTitles = b
		} else {
			slog.Warn("ignoring invalid TITLEGEN_LOWER_CASE_TITLES", slog.String("value", v))
		}
	}
	return s
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		} else {
			slog.Warn("failed to parse duration, using default",
				slog.String("key", key),
				slog.String("value", value),
				slog.Duration("default", defaultValue),
				slog.String("error", err.Error()))
		}
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		} else {
			slog.Warn("failed to parse int, using default",
				slog.String("key", key),
				slog.String("value", value),
				slog.Int("default", defaultValue),
				slog.String("error", err.Error()))
		}
	}
	return defaultValue
}
