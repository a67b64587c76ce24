package server

import (
	"crypto/subtle"
	"log/slog"
	"strings"
	"time"

	apierrors "github.com/eternisai/titlegen/internal/errors"
	"github.com/eternisai/titlegen/internal/logger"
	"github.com/gin-gonic/gin"
)

const (
	requestIDHeader    = "x-request-id"
	maxRequestIDLength = 128
)

// quietRoutes are polled by health checks and scrapers and only logged at debug.
var quietRoutes = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// RequestLoggingMiddleware tags each request with an ID, echoed in the
// x-request-id response header, and writes one record per request once the
// handler has finished. The record level follows the response status.
func RequestLoggingMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = logger.GenerateRequestID()
		}
		ctx := logger.WithOperation(logger.WithRequestID(c.Request.Context(), requestID), "http_request")
		c.Request = c.Request.WithContext(ctx)
		c.Header(requestIDHeader, requestID)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()

		attrs := []slog.Attr{
			slog.String("method", c.Request.Method),
			slog.String("route", route),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
			slog.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, slog.String("errors", c.Errors.String()))
		}

		log.WithContext(ctx).WithComponent("http").LogAttrs(ctx, requestLogLevel(route, status), "request handled", attrs...)
	}
}

func requestLogLevel(route string, status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	case quietRoutes[route]:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// RequireToken rejects requests without "Authorization: Bearer <token>".
// An empty token disables the check.
func RequireToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			apierrors.AbortWithUnauthorized(c, "Authorization header is required", nil)
			return
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			apierrors.AbortWithUnauthorized(c, "Authorization header must be a Bearer token", nil)
			return
		}

		got := strings.TrimPrefix(authHeader, "Bearer ")
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			apierrors.AbortWithUnauthorized(c, "Invalid token", nil)
			return
		}

		c.Next()
	}
}
