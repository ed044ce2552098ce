package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/routes/filings"
	"github.com/Ramsey-B/fern/pkg/routes/health"
	watchlistroutes "github.com/Ramsey-B/fern/pkg/routes/watchlist"
)

// Server is the HTTP API surface. It implements startup.StartupDependency
// so the app can order it after the database.
type Server struct {
	echo    *echo.Echo
	config  *config.Config
	logger  ectologger.Logger
	checker *health.Checker
}

// New assembles the echo instance with middleware and routes.
func New(cfg *config.Config, logger ectologger.Logger, checker *health.Checker) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.HTTPErrorHandler = middleware.Error(logger)

	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	checker.RegisterRoutes(e)

	api := e.Group("/api/v1")
	filings.Register(api.Group("/filings"))
	watchlistroutes.Register(api.Group("/watchlists"))

	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second

	return &Server{
		echo:    e,
		config:  cfg,
		logger:  logger,
		checker: checker,
	}
}

func (s *Server) GetName() string {
	return "http-server"
}

func (s *Server) DependsOn() []string {
	return []string{"database"}
}

// Start begins serving in the background. Listen errors after startup are
// logged rather than returned.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	go func() {
		s.logger.Infof("HTTP server listening on %s", addr)
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("HTTP server stopped unexpectedly")
		}
	}()

	s.checker.SetReady(true)
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.checker.SetReady(false)
	return s.echo.Shutdown(ctx)
}
