package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/eternisai/titlegen/internal/config"
	apierrors "github.com/eternisai/titlegen/internal/errors"
	"github.com/eternisai/titlegen/internal/logger"
	"github.com/eternisai/titlegen/internal/storage/journal"
	"github.com/eternisai/titlegen/internal/title_generation"
	"github.com/eternisai/titlegen/internal/vault"
	"github.com/gin-gonic/gin"
)

const maxHistoryLimit = 500

// Generator is the part of title_generation.Service the API drives.
type Generator interface {
	GenerateAll(ctx context.Context, settings config.Settings, docs []vault.Document) []title_generation.Outcome
	GenerateActive(ctx context.Context, settings config.Settings) title_generation.Outcome
}

// Documents resolves request paths to vault documents.
type Documents interface {
	Document(p string) (vault.Document, error)
}

// History lists past renames.
type History interface {
	List(ctx context.Context, limit int) ([]journal.Entry, error)
}

type Handler struct {
	generator Generator
	documents Documents
	history   History
	settings  config.SettingsSource
	logger    *logger.Logger
}

func NewHandler(generator Generator, documents Documents, history History, settings config.SettingsSource, logger *logger.Logger) *Handler {
	return &Handler{
		generator: generator,
		documents: documents,
		history:   history,
		settings:  settings,
		logger:    logger,
	}
}

// GenerateTitles handles POST /api/v1/titles. All paths are validated before
// any document is processed. Documents are then titled in request order;
// per-document failures are reported in the results, not as an HTTP error.
func (h *Handler) GenerateTitles(c *gin.Context) {
	log := h.logger.WithContext(c.Request.Context()).WithComponent("titles-handler")

	var req GenerateTitlesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("failed to bind request", slog.String("error", err.Error()))
		apierrors.AbortWithBadRequest(c, "invalid request body", map[string]interface{}{"reason": err.Error()})
		return
	}

	docs := make([]vault.Document, 0, len(req.Paths))
	for _, p := range req.Paths {
		doc, err := h.documents.Document(p)
		if err != nil {
			apierrors.AbortWithBadRequest(c, "invalid document path", map[string]interface{}{
				"path":   p,
				"reason": err.Error(),
			})
			return
		}
		docs = append(docs, doc)
	}

	settings, ok := h.resolveSettings(c, log)
	if !ok {
		return
	}

	outcomes := h.generator.GenerateAll(c.Request.Context(), settings, docs)
	resp := newGenerateTitlesResponse(outcomes)

	log.Info("titles generated",
		slog.Int("documents", len(docs)),
		slog.Int("succeeded", resp.Succeeded),
		slog.Int("failed", resp.Failed),
		slog.Int("skipped", resp.Skipped))

	c.JSON(http.StatusOK, resp)
}

// GenerateActiveTitle handles POST /api/v1/titles/active.
func (h *Handler) GenerateActiveTitle(c *gin.Context) {
	log := h.logger.WithContext(c.Request.Context()).WithComponent("titles-handler")

	settings, ok := h.resolveSettings(c, log)
	if !ok {
		return
	}

	out := h.generator.GenerateActive(c.Request.Context(), settings)
	if errors.Is(out.Err, title_generation.ErrNoActiveDocument) {
		apierrors.AbortWithNotFound(c, out.Err.Error(), map[string]interface{}{
			"kind": string(title_generation.KindNoActiveDocument),
		})
		return
	}

	c.JSON(http.StatusOK, newOutcomeResponse(out))
}

// ListHistory handles GET /api/v1/history?limit=N.
func (h *Handler) ListHistory(c *gin.Context) {
	log := h.logger.WithContext(c.Request.Context()).WithComponent("history-handler")

	if h.history == nil {
		apierrors.AbortWithServiceUnavailable(c, "rename journal is disabled", nil)
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryLimit {
			apierrors.AbortWithBadRequest(c, "limit must be between 1 and "+strconv.Itoa(maxHistoryLimit), map[string]interface{}{
				"limit": raw,
			})
			return
		}
		limit = n
	}

	entries, err := h.history.List(c.Request.Context(), limit)
	if err != nil {
		log.Error("failed to list history", slog.String("error", err.Error()))
		apierrors.AbortWithInternal(c, "failed to list history", nil)
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Time: time.Now().UTC()})
}

func (h *Handler) resolveSettings(c *gin.Context, log *logger.Logger) (config.Settings, bool) {
	settings, err := h.settings(c.Request.Context())
	if err != nil {
		log.Error("failed to load settings", slog.String("error", err.Error()))
		apierrors.AbortWithInternal(c, "failed to load settings", nil)
		return config.Settings{}, false
	}
	return settings, true
}
