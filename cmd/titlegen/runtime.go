package main

import (
	"log/slog"
	"net/http"

	"github.com/eternisai/titlegen/internal/config"
	"github.com/eternisai/titlegen/internal/credentials"
	"github.com/eternisai/titlegen/internal/logger"
	"github.com/eternisai/titlegen/internal/metrics"
	"github.com/eternisai/titlegen/internal/storage/journal"
	"github.com/eternisai/titlegen/internal/title_generation"
	"github.com/eternisai/titlegen/internal/ui"
	"github.com/eternisai/titlegen/internal/vault"
	"github.com/urfave/cli/v2"
)

// runtime holds what every command needs once flags and config are loaded.
type runtime struct {
	cfg      *config.Config
	logger   *logger.Logger
	keyring  *credentials.Store
	terminal *ui.Terminal
	journal  *journal.Journal
}

func (rt *runtime) setup(c *cli.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	if c.IsSet("vault") {
		cfg.VaultDir = c.String("vault")
	}
	if c.IsSet("config") {
		cfg.SettingsPath = c.String("config")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.LogFormat = c.String("log-format")
	}

	logCfg := logger.FromConfig(cfg.LogLevel, cfg.LogFormat)
	logCfg.Output = c.App.ErrWriter
	rt.logger = logger.New(logCfg)
	rt.cfg = cfg
	rt.keyring = credentials.NewStore()
	rt.terminal = ui.NewTerminal(c.App.ErrWriter)
	return nil
}

func (rt *runtime) close(*cli.Context) error {
	if rt.journal != nil {
		return rt.journal.Close()
	}
	return nil
}

// settings resolves the settings file, environment and keyring.
func (rt *runtime) settings() (config.Settings, error) {
	return config.ResolveSettings(rt.cfg.SettingsPath, rt.keyring.APIKey)
}

func (rt *runtime) settingsSource() config.SettingsSource {
	return config.FileSource(rt.cfg.SettingsPath, rt.keyring.APIKey)
}

func (rt *runtime) openVault() (*vault.FileSystem, error) {
	return vault.NewFileSystem(rt.cfg.VaultDir)
}

// openJournal opens the rename journal. A journal that cannot be opened only
// disables history; titling still works.
func (rt *runtime) openJournal() *journal.Journal {
	if rt.journal != nil {
		return rt.journal
	}

	j, err := journal.Open(rt.cfg.JournalPath)
	if err != nil {
		rt.logger.Warn("rename journal unavailable",
			slog.String("path", rt.cfg.JournalPath),
			slog.String("error", err.Error()))
		return nil
	}
	rt.journal = j
	return j
}

func (rt *runtime) newService(storage *vault.FileSystem, workspace *vault.Workspace, m *metrics.Metrics) *title_generation.Service {
	deps := title_generation.Dependencies{
		Storage:    storage,
		Status:     rt.terminal,
		Notifier:   rt.terminal,
		Metrics:    m,
		HTTPClient: &http.Client{Timeout: rt.cfg.RequestTimeout},
		Logger:     rt.logger,
	}
	if workspace != nil {
		deps.Workspace = workspace
	}
	if j := rt.openJournal(); j != nil {
		deps.Journal = j
	}
	return title_generation.NewService(deps)
}
