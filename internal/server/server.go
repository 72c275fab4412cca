package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	httperr "github.com/aevon-lab/analytics/internal/core/errors"
	"github.com/gin-gonic/gin"
)

const (
	healthTimeout   = 2 * time.Second
	shutdownTimeout = 5 * time.Second
)

// HealthChecker is an interface for components that can report their health status.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// RouteRegistrar mounts a service's routes under the API version prefix.
type RouteRegistrar interface {
	RegisterRoutes(r gin.IRouter, apiVersion string)
}

type Server struct {
	Engine *gin.Engine
	Addr   string
	health HealthChecker
}

type Option func(*Server)

// WithMetricsHandler exposes h at path.
func WithMetricsHandler(path string, h http.Handler) Option {
	return func(s *Server) {
		s.Engine.GET(path, gin.WrapH(h))
	}
}

// WithRoutes mounts the given services under apiVersion.
func WithRoutes(apiVersion string, services ...RouteRegistrar) Option {
	return func(s *Server) {
		for _, svc := range services {
			svc.RegisterRoutes(s.Engine, apiVersion)
		}
	}
}

func New(addr string, health HealthChecker, mode string, opts ...Option) *Server {
	if mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	s := &Server{
		Engine: r,
		Addr:   addr,
		health: health,
	}

	r.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusTemporaryRedirect, "/health")
	})
	r.GET("/health", s.healthHandler)

	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	if s.health != nil {
		if err := s.health.Ping(ctx); err != nil {
			slog.Error("[Server] Health check failed: database unreachable", "error", err)
			c.JSON(http.StatusServiceUnavailable, httperr.ErrorResponse{
				ErrorType: httperr.HttpServiceUnavailable,
				Message:   "database unreachable",
				Details:   gin.H{"status": "DOWN"},
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}

// requestLogger logs one line per request through slog.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelDebug
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		slog.Log(c.Request.Context(), level, "[Server] Request handled",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("[Server] Starting HTTP server", "address", s.Addr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("[Server] Stopping HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("[Server] HTTP server forced to shutdown", "error", err)
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
