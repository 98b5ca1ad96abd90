// Package http serves the retrieval API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/fyrsmithlabs/ragserve/internal/logging"
	"github.com/fyrsmithlabs/ragserve/internal/rag"
	"github.com/fyrsmithlabs/ragserve/internal/vectorstore"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Ingester writes items.
type Ingester interface {
	Ingest(ctx context.Context, items []rag.Item) error
	Remove(ctx context.Context, id string) error
}

// Retriever answers queries.
type Retriever interface {
	Retrieve(ctx context.Context, q rag.Query) ([]rag.ScoredItem, error)
}

// StatsSource reports corpus contents.
type StatsSource interface {
	Stats() (vectorstore.Stats, int)
}

// Deps are the collaborators the handlers call.
type Deps struct {
	Ingester           Ingester
	Retriever          Retriever
	Stats              StatsSource
	EmbeddingDimension int

	// Gatherer is served on /metrics. Nil disables the route.
	Gatherer prometheus.Gatherer
	// MeterProvider receives request metrics. Nil uses the global provider.
	MeterProvider metric.MeterProvider
}

// Config holds HTTP server configuration.
type Config struct {
	Host    string
	Port    int
	Version string

	RateLimit RateLimitConfig
	Limits    Limits
}

// RateLimitConfig configures per-client token buckets.
type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
}

// Limits bound request sizes. Zero disables a limit.
type Limits struct {
	MaxQueryChars    int
	MaxDocumentChars int
	MaxNumItems      int
	MaxBatch         int
}

// Server provides the HTTP endpoints.
type Server struct {
	echo   *echo.Echo
	deps   Deps
	logger *logging.Logger
	config *Config
}

// NewServer creates a new HTTP server.
func NewServer(deps Deps, logger *logging.Logger, cfg *Config) (*Server, error) {
	if deps.Ingester == nil || deps.Retriever == nil || deps.Stats == nil {
		return nil, fmt.Errorf("ingester, retriever and stats source are required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "0.0.0.0", Port: 8080}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		deps:   deps,
		logger: logger.Named("http"),
		config: cfg,
	}
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.requestLogger())
	e.Use(NewHTTPMetrics(deps.MeterProvider, s.logger).Middleware())
	if cfg.RateLimit.Enabled {
		e.Use(rateLimiter(cfg.RateLimit))
	}

	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/ping", s.handlePing)
	s.echo.GET("/health", s.handleHealth)
	if s.deps.Gatherer != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := s.echo.Group("/v1")
	v1.POST("/query", s.handleQuery)
	v1.PUT("/", s.handleAddDocuments)
	v1.PUT("/add", s.handleAddDocuments)
	v1.DELETE("/items/:id", s.handleRemove)
}

// requestLogger attaches the request id to the context and logs every
// request once it completes.
func (s *Server) requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			ctx := logging.WithRequestID(req.Context(), c.Response().Header().Get(echo.HeaderXRequestID))
			c.SetRequest(req.WithContext(ctx))

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			s.logger.Info(ctx, "http request",
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return nil
		}
	}
}

// rateLimiter limits each client IP to cfg.RPS with bursts of cfg.Burst.
func rateLimiter(cfg RateLimitConfig) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(cfg.RPS),
		Burst:     cfg.Burst,
		ExpiresIn: 3 * time.Minute,
	})
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/ping" || c.Path() == "/metrics"
		},
		Store: store,
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
		},
	})
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until Shutdown is called. It returns nil after a graceful
// shutdown.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	s.logger.Info(ctx, "starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
