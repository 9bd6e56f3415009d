// Package api exposes the engine over HTTP/JSON.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/scoobystack/scooby-engine/internal/config"
	"github.com/scoobystack/scooby-engine/internal/services"
)

// Server hosts the engine's HTTP surface.
type Server struct {
	engine *services.Engine
	cfg    config.ServerConfig
	logger *slog.Logger
	http   *http.Server
}

// NewServer wires routes onto a gin engine.
func NewServer(engine *services.Engine, cfg config.ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{engine: engine, cfg: cfg, logger: logger}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/health", s.handleHealth)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/analyze", s.handleAnalyze)
		v1.POST("/feedback", s.handleFeedback)
		v1.GET("/incidents", s.handleIncidents)
		v1.GET("/analytics", s.handleAnalytics)

		admin := v1.Group("/admin")
		admin.POST("/cache/flush", s.handleCacheFlush)
		admin.GET("/cache/stats", s.handleCacheStats)
	}

	s.http = &http.Server{
		Addr:    cfg.Address,
		Handler: router,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// ListenAndServe blocks serving HTTP until Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", slog.String("address", s.cfg.Address))
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		s.logger.Debug("http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("elapsed", time.Since(started)))
	}
}
