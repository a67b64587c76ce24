package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/eternisai/titlegen/internal/config"
	"github.com/eternisai/titlegen/internal/metrics"
	"github.com/eternisai/titlegen/internal/scheduler"
	"github.com/eternisai/titlegen/internal/server"
	"github.com/eternisai/titlegen/internal/storage/journal"
	"github.com/eternisai/titlegen/internal/title_generation"
	"github.com/eternisai/titlegen/internal/ui"
	"github.com/eternisai/titlegen/internal/vault"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-yaml"
	"github.com/urfave/cli/v2"
)

// errFailed signals failed documents. They were already reported, so there
// is nothing more to print.
var errFailed = cli.Exit("", 1)

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func (rt *runtime) generate(c *cli.Context) error {
	active := c.Bool("active") || c.IsSet("active-file")
	if active == (c.NArg() == 1) {
		return cli.Exit("generate needs exactly one of <path> or --active", 2)
	}

	fs, err := rt.openVault()
	if err != nil {
		return err
	}
	settings, err := rt.settings()
	if err != nil {
		return err
	}

	ctx, stop := signalContext(c.Context)
	defer stop()

	var out title_generation.Outcome
	if active {
		service := rt.newService(fs, vault.NewWorkspace(fs, c.String("active-file")), nil)
		out = service.GenerateActive(ctx, settings)
	} else {
		doc, err := fs.Document(c.Args().First())
		if err != nil {
			return err
		}
		out = rt.newService(fs, nil, nil).Generate(ctx, settings, doc)
	}

	if out.Err != nil {
		return errFailed
	}
	ui.Renamed(c.App.Writer, out.Document.Path, out.NewPath)
	return nil
}

func (rt *runtime) batch(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("batch needs at least one glob pattern", 2)
	}

	fs, err := rt.openVault()
	if err != nil {
		return err
	}
	docs, err := fs.Select(c.Args().Slice()...)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Fprintln(c.App.Writer, "no documents match")
		return nil
	}

	settings, err := rt.settings()
	if err != nil {
		return err
	}

	ctx, stop := signalContext(c.Context)
	defer stop()

	outcomes := rt.newService(fs, nil, nil).GenerateAll(ctx, settings, docs)

	var failed, skipped int
	for _, out := range outcomes {
		switch {
		case out.Skipped:
			skipped++
		case out.Err != nil:
			failed++
		default:
			ui.Renamed(c.App.Writer, out.Document.Path, out.NewPath)
		}
	}

	fmt.Fprintf(c.App.Writer, "%d renamed, %d failed, %d skipped\n", len(outcomes)-failed-skipped, failed, skipped)
	if failed > 0 || skipped > 0 {
		return errFailed
	}
	return nil
}

func (rt *runtime) history(c *cli.Context) error {
	j := rt.openJournal()
	if j == nil {
		return cli.Exit("rename journal is unavailable", 1)
	}

	var entries []journal.Entry
	err := rt.logger.LogOperation(c.Context, "list_history", func() (err error) {
		entries, err = j.List(c.Context, c.Int("limit"))
		return err
	})
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Fprintln(c.App.Writer, "no renames yet")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(c.App.Writer, "%s  %s → %s\n", e.CreatedAt.Local().Format(time.DateTime), e.OldPath, e.NewPath)
	}
	return nil
}

func (rt *runtime) serve(c *cli.Context) error {
	fs, err := rt.openVault()
	if err != nil {
		return err
	}

	gin.SetMode(rt.cfg.GinMode)

	m := metrics.New()
	service := rt.newService(fs, vault.NewWorkspace(fs, c.String("active-file")), m)
	source := rt.settingsSource()
	log := rt.logger.WithComponent("serve")

	var history server.History
	if j := rt.openJournal(); j != nil {
		history = j
	}

	router := server.NewRouter(server.Options{
		Handler:  server.NewHandler(service, fs, history, source, rt.logger),
		Metrics:  m,
		APIToken: rt.cfg.APIToken,
		Logger:   rt.logger,
	})

	ctx, stop := signalContext(c.Context)
	defer stop()

	var sched *scheduler.Scheduler
	if rt.cfg.Schedule != "" {
		sched, err = scheduler.New(rt.cfg.Schedule, rt.cfg.SchedulePattern, fs, service, source, rt.logger)
		if err != nil {
			return err
		}
		sched.Start()
	}

	shutdownTimeout := time.Duration(rt.cfg.ServerShutdownTimeoutSeconds) * time.Second
	log.Info("serving vault",
		slog.String("vault", fs.Root()),
		slog.String("schedule", rt.cfg.Schedule),
		slog.Bool("auth", rt.cfg.APIToken != ""))

	serveErr := server.Serve(ctx, ":"+rt.cfg.Port, router, shutdownTimeout, rt.logger)

	if sched != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := sched.Stop(stopCtx); err != nil {
			log.Warn("scheduler stop", slog.String("error", err.Error()))
		}
	}

	return serveErr
}

// maskedSettings is what `config show` prints: the key is never shown.
type maskedSettings struct {
	APIKey          string `yaml:"api_key"`
	BaseURL         string `yaml:"base_url"`
	Model           string `yaml:"model"`
	LowerCaseTitles bool   `yaml:"lower_case_titles"`
}

func maskKey(key string) string {
	switch {
	case key == "":
		return "(not set)"
	case len(key) <= 8:
		return "****"
	default:
		return key[:3] + "..." + key[len(key)-4:]
	}
}

func (rt *runtime) configShow(c *cli.Context) error {
	settings, err := rt.settings()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(maskedSettings{
		APIKey:          maskKey(settings.APIKey),
		BaseURL:         settings.BaseURL,
		Model:           settings.Model,
		LowerCaseTitles: settings.LowerCaseTitles,
	})
	if err != nil {
		return err
	}
	_, err = c.App.Writer.Write(data)
	return err
}

func (rt *runtime) configPath(c *cli.Context) error {
	fmt.Fprintln(c.App.Writer, rt.cfg.SettingsPath)
	return nil
}

func (rt *runtime) configSet(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.Exit("config set needs <key> <value>", 2)
	}

	// Only the file is edited; environment overrides are not persisted.
	settings, err := config.LoadSettings(rt.cfg.SettingsPath)
	if err != nil {
		return err
	}
	if err := settings.Set(c.Args().Get(0), c.Args().Get(1)); err != nil {
		return cli.Exit(err.Error(), 2)
	}
	if err := config.SaveSettings(rt.cfg.SettingsPath, settings); err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "saved %s to %s\n", c.Args().Get(0), rt.cfg.SettingsPath)
	return nil
}

func (rt *runtime) login(c *cli.Context) error {
	key := c.String("key")
	if key == "" {
		fmt.Fprint(c.App.ErrWriter, "API key: ")
		line, err := bufio.NewReader(c.App.Reader).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read API key: %w", err)
		}
		key = strings.TrimSpace(line)
	}

	if err := rt.keyring.SetAPIKey(key); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, "API key stored in the OS keyring")
	return nil
}

func (rt *runtime) logout(c *cli.Context) error {
	if err := rt.keyring.DeleteAPIKey(); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, "API key removed from the OS keyring")
	return nil
}
