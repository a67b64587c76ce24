package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/eternisai/titlegen/internal/config"
	"github.com/eternisai/titlegen/internal/logger"
	"github.com/eternisai/titlegen/internal/title_generation"
	"github.com/eternisai/titlegen/internal/vault"
	"github.com/robfig/cron/v3"
)

// Selector finds the documents due for a title.
type Selector interface {
	Select(patterns ...string) ([]vault.Document, error)
}

// Generator titles documents in order.
type Generator interface {
	GenerateAll(ctx context.Context, settings config.Settings, docs []vault.Document) []title_generation.Outcome
}

// Scheduler periodically titles every document matching a glob pattern.
// Runs never overlap; a tick that fires while the previous run is still busy
// is skipped.
type Scheduler struct {
	cron      *cron.Cron
	selector  Selector
	generator Generator
	settings  config.SettingsSource
	pattern   string
	logger    *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a scheduler that runs on schedule, a standard five-field cron
// expression or a descriptor such as "@every 5m" or "@hourly".
func New(schedule, pattern string, selector Selector, generator Generator, settings config.SettingsSource, log *logger.Logger) (*Scheduler, error) {
	if log == nil {
		log = logger.Discard()
	}
	log = log.WithComponent("scheduler")
	cronLog := cronLogger{log: log}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		selector:  selector,
		generator: generator,
		settings:  settings,
		pattern:   pattern,
		logger:    log,
		ctx:       ctx,
		cancel:    cancel,
	}

	if _, err := s.cron.AddFunc(schedule, s.tick); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	return s, nil
}

// Start runs the schedule in the background.
func (s *Scheduler) Start() {
	s.logger.Info("scheduler started", slog.String("pattern", s.pattern))
	s.cron.Start()
}

// Stop stops scheduling, keeps documents of the current run from starting and
// waits for the running document to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()

	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler did not stop in time: %w", ctx.Err())
	}
}

// RunOnce selects matching documents and titles them.
func (s *Scheduler) RunOnce(ctx context.Context) ([]title_generation.Outcome, error) {
	docs, err := s.selector.Select(s.pattern)
	if err != nil {
		return nil, fmt.Errorf("select documents: %w", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}

	settings, err := s.settings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	return s.generator.GenerateAll(ctx, settings, docs), nil
}

func (s *Scheduler) tick() {
	ctx := logger.WithRequestID(s.ctx, logger.GenerateRequestID())
	ctx = logger.WithOperation(ctx, "scheduled_run")
	log := s.logger.WithContext(ctx)
	start := time.Now()

	outcomes, err := s.RunOnce(ctx)
	if err != nil {
		log.Error("scheduled run failed", slog.String("error", err.Error()))
		return
	}
	if len(outcomes) == 0 {
		log.Debug("no documents to title", slog.String("pattern", s.pattern))
		return
	}

	var failed, skipped int
	for _, out := range outcomes {
		switch {
		case out.Skipped:
			skipped++
		case out.Err != nil:
			failed++
		}
	}

	log.Info("scheduled run finished",
		slog.Int("documents", len(outcomes)),
		slog.Int("failed", failed),
		slog.Int("skipped", skipped),
		slog.Duration("duration", time.Since(start)))
}

// cronLogger sends cron's own logging to slog.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(keysAndValues, slog.String("error", err.Error()))...)
}
