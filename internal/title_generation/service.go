package title_generation

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/eternisai/titlegen/internal/config"
	"github.com/eternisai/titlegen/internal/logger"
	"github.com/eternisai/titlegen/internal/metrics"
	"github.com/eternisai/titlegen/internal/storage/journal"
	"github.com/eternisai/titlegen/internal/vault"
	"github.com/google/uuid"
	"github.com/pandodao/tokenizer-go"
)

const (
	StatusText     = "Generating title..."
	noticePrefix   = "Unable to generate title:\n\nError: "
	defaultTimeout = 60 * time.Second
)

// Storage reads and renames documents.
type Storage interface {
	ReadText(ctx context.Context, doc vault.Document) (string, error)
	Rename(ctx context.Context, doc vault.Document, newPath string) error
}

// Workspace knows which document is currently open.
type Workspace interface {
	ActiveDocument(ctx context.Context) (vault.Document, error)
}

// StatusIndicator shows that work is in progress until release is called.
type StatusIndicator interface {
	Start(text string) (release func())
}

// Notifier shows a message to the user.
type Notifier interface {
	Notify(message string)
}

// Journal records successful renames.
type Journal interface {
	Record(ctx context.Context, e journal.Entry) error
}

// Dependencies are the collaborators of a Service. Workspace, Journal and
// Metrics are optional.
type Dependencies struct {
	Storage    Storage
	Workspace  Workspace
	Status     StatusIndicator
	Notifier   Notifier
	Journal    Journal
	Metrics    *metrics.Metrics
	HTTPClient *http.Client
	Logger     *logger.Logger
}

// Service titles documents one at a time. All entry points of one Service
// share a single slot, so no two documents are ever in flight together, no
// matter how many goroutines call it.
type Service struct {
	storage    Storage
	workspace  Workspace
	status     StatusIndicator
	notifier   Notifier
	journal    Journal
	metrics    *metrics.Metrics
	httpClient *http.Client
	logger     *logger.Logger
	slot       chan struct{}
}

func NewService(deps Dependencies) *Service {
	s := &Service{
		storage:    deps.Storage,
		workspace:  deps.Workspace,
		status:     deps.Status,
		notifier:   deps.Notifier,
		journal:    deps.Journal,
		metrics:    deps.Metrics,
		httpClient: deps.HTTPClient,
		logger:     deps.Logger,
		slot:       make(chan struct{}, 1),
	}

	if s.httpClient == nil {
		s.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if s.logger == nil {
		s.logger = logger.Discard()
	}
	return s
}

// Generate titles and renames a single document. Failures are logged and
// reported through the Notifier, never returned to the caller as a panic or
// error return; the Outcome describes what happened.
//
// Once the document has started it runs to completion even if ctx is
// cancelled. If ctx is done before the slot is free, the document is skipped.
func (s *Service) Generate(ctx context.Context, settings config.Settings, doc vault.Document) Outcome {
	if err := s.acquire(ctx); err != nil {
		return Outcome{Document: doc, Skipped: true, Err: err}
	}
	defer s.release()

	return s.run(context.WithoutCancel(ctx), settings, doc)
}

// GenerateAll processes docs strictly in order, one at a time. A failing
// document does not stop the ones after it. Cancelling ctx stops documents
// that have not started yet.
func (s *Service) GenerateAll(ctx context.Context, settings config.Settings, docs []vault.Document) []Outcome {
	outcomes := make([]Outcome, 0, len(docs))
	for _, doc := range docs {
		outcomes = append(outcomes, s.Generate(ctx, settings, doc))
	}
	return outcomes
}

// GenerateActive titles the document currently open in the workspace. With
// no open document the user is told so and nothing is generated.
func (s *Service) GenerateActive(ctx context.Context, settings config.Settings) Outcome {
	if s.workspace == nil {
		return s.reportUnstarted(ctx, newError(KindNoActiveDocument, vault.ErrNoActiveDocument))
	}

	doc, err := s.workspace.ActiveDocument(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Outcome{Skipped: true, Err: ctxErr}
		}
		return s.reportUnstarted(ctx, newError(KindNoActiveDocument, err))
	}

	return s.Generate(ctx, settings, doc)
}

func (s *Service) acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case s.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) release() {
	<-s.slot
}

// run owns one document from Idle to Done or Failed.
func (s *Service) run(ctx context.Context, settings config.Settings, doc vault.Document) (out Outcome) {
	runID := uuid.New().String()
	ctx = logger.WithRunID(ctx, runID)
	ctx = logger.WithDocument(ctx, doc.Path)
	ctx = logger.WithOperation(ctx, "generate_title")
	log := s.logger.WithContext(ctx).WithComponent("title-generation")

	out = Outcome{Document: doc, RunID: runID}
	start := time.Now()

	release := func() {}
	if s.status != nil {
		release = s.status.Start(StatusText)
	}

	s.metrics.Started()

	defer func() {
		if r := recover(); r != nil {
			out.Err = fmt.Errorf("unexpected failure: %v", r)
		}
		// The status line goes away before any notice is shown.
		release()

		if out.Err != nil {
			log.Debug("stage entered", slog.String("stage", string(StageFailed)))
			s.metrics.Failed(string(KindOf(out.Err)), time.Since(start))
			s.report(ctx, out.Err)
			return
		}

		log.Debug("stage entered", slog.String("stage", string(StageDone)))
		s.metrics.Succeeded(time.Since(start))
		log.Info("document renamed",
			slog.String("new_path", out.NewPath),
			slog.String("title", out.Title),
			slog.Duration("duration", time.Since(start)))
	}()

	log.Debug("stage entered", slog.String("stage", string(StageIdle)))

	title, newPath, err := s.process(ctx, log, settings, doc)
	out.Title = title
	out.NewPath = newPath
	out.Err = err

	if err == nil && s.journal != nil {
		entry := journal.Entry{
			RunID:   runID,
			OldPath: doc.Path,
			NewPath: newPath,
			Title:   title,
			Model:   settings.Model,
		}
		if jerr := s.journal.Record(ctx, entry); jerr != nil {
			log.Warn("failed to record rename in journal", slog.String("error", jerr.Error()))
		}
	}

	return out
}

func (s *Service) process(ctx context.Context, log *logger.Logger, settings config.Settings, doc vault.Document) (string, string, error) {
	log.Debug("stage entered", slog.String("stage", string(StageReading)))
	text, err := s.storage.ReadText(ctx, doc)
	if err != nil {
		return "", "", newError(KindReadFailure, err)
	}

	log.Debug("stage entered", slog.String("stage", string(StageRequesting)))
	httpReq, err := BuildRequest(ctx, settings, text)
	if err != nil {
		return "", "", newError(KindTransportError, err)
	}
	if log.Enabled(ctx, slog.LevelDebug) {
		if tokens, err := tokenizer.CalToken(text); err == nil {
			log.Debug("sending document",
				slog.String("url", httpReq.URL.String()),
				slog.String("model", settings.Model),
				slog.Int("approx_tokens", tokens))
		}
	}

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return "", "", newError(KindTransportError, err)
	}
	defer resp.Body.Close()

	log.Debug("stage entered", slog.String("stage", string(StageInterpreting)))
	result, err := Interpret(resp, settings)
	if err != nil {
		return "", "", err
	}

	title := SanitizeTitle(result.Title)
	if title == "" {
		return "", "", newError(KindEmptyTitle,
			fmt.Errorf("generated title %q has no characters usable in a file name", result.Title))
	}

	newPath := DerivePath(doc.Path, title)

	log.Debug("stage entered", slog.String("stage", string(StageRenaming)), slog.String("new_path", newPath))
	if err := s.storage.Rename(ctx, doc, newPath); err != nil {
		return title, newPath, newError(KindRenameFailure, err)
	}

	return title, newPath, nil
}

// reportUnstarted reports a failure that happened before any document was
// picked, such as a missing active document.
func (s *Service) reportUnstarted(ctx context.Context, err error) Outcome {
	ctx = logger.WithOperation(ctx, "generate_title")
	s.report(ctx, err)
	return Outcome{Err: err}
}

// report logs err and shows it to the user exactly once.
func (s *Service) report(ctx context.Context, err error) {
	kind := KindOf(err)
	s.logger.WithContext(ctx).WithComponent("title-generation").Error("title generation failed",
		slog.String("kind", string(kind)),
		slog.String("error", err.Error()))

	if s.notifier != nil {
		s.notifier.Notify(noticePrefix + err.Error())
	}
}
