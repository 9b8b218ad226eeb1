package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
)

const (
	defaultRequestTimeout = 5 * time.Minute
	shutdownTimeout       = 5 * time.Second
)

// Options configure the admin HTTP server.
type Options struct {
	Listen         string
	RequestTimeout time.Duration
	// DefaultLimit caps GET /api/v1/drops when no limit is given.
	DefaultLimit int
}

// Server exposes run/test/drops endpoints over HTTP.
type Server struct {
	opts   Options
	echo   *echo.Echo
	logger zerolog.Logger
}

// NewServer builds the echo instance with middleware and routes.
func NewServer(opts Options, runner Runner, drops DropLister, logger zerolog.Logger) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 10
	}

	log := logger.With().Str("component", "admin_api").Logger()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger(log))
	e.Use(middleware.BodyLimit("1M"))
	e.Use(middleware.ContextTimeoutWithConfig(middleware.ContextTimeoutConfig{
		Timeout: opts.RequestTimeout,
	}))

	h := &Handler{runner: runner, drops: drops, defaultLimit: opts.DefaultLimit, logger: log}
	SetupRoutes(e, h)

	return &Server{opts: opts, echo: e, logger: log}
}

// SetupRoutes registers every admin endpoint.
func SetupRoutes(e *echo.Echo, h *Handler) {
	e.GET("/health", h.Health)

	v1 := e.Group("/api/v1")
	v1.POST("/runs", h.TriggerRun)
	v1.POST("/notifications/test", h.SendTestNotification)
	v1.GET("/drops", h.ListDrops)
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		s.logger.Info().Str("listen", s.opts.Listen).Msg("admin api listening")
		done <- s.echo.Start(s.opts.Listen)
	}()

	select {
	case err := <-done:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().Err(err).Msg("admin api shutdown failed")
	}
	if err := <-done; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info().Msg("admin api stopped")
	return nil
}

func requestLogger(logger zerolog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			event := logger.Info()
			if v.Error != nil || v.Status >= http.StatusInternalServerError {
				event = logger.Warn().Err(v.Error)
			}
			event.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
