// Package httpapi exposes the aggregator state and metrics over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"TimelineWatch/internal/domain"
	"TimelineWatch/internal/metrics"
	"TimelineWatch/internal/stats"
)

// StatsSource hands out the latest aggregator snapshot.
type StatsSource interface {
	Snapshot() stats.Snapshot
}

// SentimentSource hands out the latest sentiment report, if any.
type SentimentSource interface {
	Latest() (domain.SentimentReport, bool)
}

// Deps are the read-only views served by the API. Nil sources disable their routes.
type Deps struct {
	Stats     StatsSource
	Sentiment SentimentSource

	// Phase reports the discovery session phase on /healthz.
	Phase   func() string
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// NewRouter builds the gin engine with all routes.
func NewRouter(deps Deps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		body := gin.H{"status": "ok"}
		if deps.Phase != nil {
			body["phase"] = deps.Phase()
		}
		c.JSON(http.StatusOK, body)
	})

	if deps.Stats != nil {
		router.GET("/stats", func(c *gin.Context) {
			c.JSON(http.StatusOK, deps.Stats.Snapshot())
		})
	}

	if deps.Sentiment != nil {
		router.GET("/sentiment", func(c *gin.Context) {
			report, ok := deps.Sentiment.Latest()
			if !ok {
				c.JSON(http.StatusNotFound, gin.H{"error": "no sentiment report yet"})
				return
			}
			c.JSON(http.StatusOK, report)
		})
	}

	if deps.Metrics != nil {
		handler := deps.Metrics.Handler()
		router.GET("/metrics", func(c *gin.Context) {
			handler.ServeHTTP(c.Writer, c.Request)
		})
	}

	return router
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

// Serve runs the HTTP server until ctx is canceled, then shuts it down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server forced to shutdown: %w", err)
	}
	logger.Info("http server stopped")
	return nil
}
