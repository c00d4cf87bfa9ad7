package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/scout/pkg/config"
	"github.com/codeready-toolchain/scout/pkg/database"
	"github.com/codeready-toolchain/scout/pkg/events"
	"github.com/codeready-toolchain/scout/pkg/queue"
	"github.com/codeready-toolchain/scout/pkg/services"
)

// Server is the HTTP API surface: run lifecycle, trigger management,
// webhook ingestion, health, and the WebSocket event stream.
type Server struct {
	cfg            *config.Config
	runService     *services.RunService
	triggerService *services.TriggerService
	db             *database.Client
	pool           *queue.Pool
	connManager    *events.ConnectionManager

	echo       *echo.Echo
	httpServer *http.Server
}

// NewServer wires the handlers onto a fresh echo instance.
func NewServer(
	cfg *config.Config,
	runService *services.RunService,
	triggerService *services.TriggerService,
	db *database.Client,
	pool *queue.Pool,
	connManager *events.ConnectionManager,
) *Server {
	s := &Server{
		cfg:            cfg,
		runService:     runService,
		triggerService: triggerService,
		db:             db,
		pool:           pool,
		connManager:    connManager,
	}

	e := echo.New()
	e.Use(requestLogger())
	e.Use(securityHeaders())
	s.registerRoutes(e)
	s.echo = e
	return s
}

func (s *Server) registerRoutes(e *echo.Echo) {
	e.GET("/health", s.healthHandler)
	e.GET("/ws", s.wsHandler)

	api := e.Group("/api/v1")
	api.POST("/runs", s.createRunHandler)
	api.GET("/runs", s.listRunsHandler)
	api.GET("/runs/:id", s.getRunHandler)
	api.POST("/runs/:id/cancel", s.cancelRunHandler)
	api.POST("/runs/:id/resume", s.resumeRunHandler)

	api.POST("/triggers", s.createTriggerHandler)
	api.GET("/triggers", s.listTriggersHandler)
	api.GET("/triggers/:id", s.getTriggerHandler)
	api.DELETE("/triggers/:id", s.deleteTriggerHandler)
	api.POST("/triggers/:id/pause", s.pauseTriggerHandler)
	api.POST("/triggers/:id/resume", s.resumeTriggerHandler)
	api.POST("/triggers/:id/disable", s.disableTriggerHandler)
	api.GET("/triggers/:id/history", s.triggerHistoryHandler)

	e.Any("/webhooks/*", s.webhookHandler)
}

// Start blocks serving HTTP until the listener fails or Shutdown is called.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP server listening", "addr", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
