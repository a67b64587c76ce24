package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/eternisai/titlegen/internal/logger"
	"github.com/eternisai/titlegen/internal/metrics"
	"github.com/gin-gonic/gin"
)

type Options struct {
	Handler  *Handler
	Metrics  *metrics.Metrics
	APIToken string
	Logger   *logger.Logger
}

// NewRouter wires the HTTP API. /health and /metrics stay open; /api/v1
// requires the API token when one is configured.
func NewRouter(opts Options) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLoggingMiddleware(opts.Logger))

	router.GET("/health", opts.Handler.Health)
	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}

	api := router.Group("/api/v1")
	api.Use(RequireToken(opts.APIToken))
	{
		titles := api.Group("/titles")
		{
			titles.POST("", opts.Handler.GenerateTitles)
			titles.POST("/active", opts.Handler.GenerateActiveTitle)
		}

		api.GET("/history", opts.Handler.ListHistory)
	}

	return router
}

// Serve runs handler on addr until ctx is done, then shuts down gracefully,
// waiting up to shutdownTimeout for in-flight requests. A document that has
// started keeps running until it is renamed or fails.
func Serve(ctx context.Context, addr string, handler http.Handler, shutdownTimeout time.Duration, log *logger.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("titlegen API listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server exited")
	return nil
}
