// Package httpapi provides the HTTP API for newsrag.
package httpapi

import (
	"context"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/vooshlabs/newsrag/internal/broadcast"
	"github.com/vooshlabs/newsrag/internal/cache"
	"github.com/vooshlabs/newsrag/internal/pipeline"
	"github.com/vooshlabs/newsrag/internal/session"
)

// Answerer is the query-answering and reindexing surface of the RAG
// pipeline that handlers depend on.
type Answerer interface {
	AnswerQuery(ctx context.Context, query string) (*pipeline.Answer, error)
	Refresh(ctx context.Context) error
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// CacheTTL is the transcript cache expiry.
	CacheTTL time.Duration

	// BroadcastSubject is the subject answers are published on.
	BroadcastSubject string
}

// Server provides the chat HTTP endpoints.
type Server struct {
	echo        *echo.Echo
	answerer    Answerer
	sessions    session.Store
	cache       cache.Cache
	broadcaster broadcast.Broadcaster
	logger      *zap.Logger
	config      *Config
}

// NewServer creates the HTTP server. The cache may be nil to disable
// transcript caching; the broadcaster may be nil to disable live updates.
func NewServer(answerer Answerer, sessions session.Store, transcriptCache cache.Cache, broadcaster broadcast.Broadcaster, logger *zap.Logger, cfg *Config) (*Server, error) {
	if answerer == nil {
		return nil, fmt.Errorf("answerer is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "0.0.0.0", Port: 5050}
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.BroadcastSubject == "" {
		cfg.BroadcastSubject = "chat.responses"
	}
	if broadcaster == nil {
		broadcaster = broadcast.Noop{}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:        e,
		answerer:    answerer,
		sessions:    sessions,
		cache:       transcriptCache,
		broadcaster: broadcaster,
		logger:      logger,
		config:      cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	api := s.echo.Group("/api")
	api.POST("/session", s.handleCreateSession)
	api.GET("/sessions", s.handleListSessions)
	api.GET("/session/:id", s.handleGetSession)
	api.DELETE("/session/:id", s.handleClearSession)
	api.POST("/message", s.handleMessage)
	api.POST("/admin/refresh-news", s.handleRefreshNews)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
