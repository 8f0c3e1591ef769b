// Package api exposes the HTTP and WebSocket surface: task submission, plan
// inspection and cancellation, health, and the NOTIFICATIONS event stream.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/jervis-ai/jervis/pkg/config"
	"github.com/jervis-ai/jervis/pkg/database"
	"github.com/jervis-ai/jervis/pkg/events"
	"github.com/jervis-ai/jervis/pkg/llm"
	"github.com/jervis-ai/jervis/pkg/models"
)

// ContextStore is the slice of the task-context store the API needs.
// Satisfied by *database.TaskContextStore.
type ContextStore interface {
	Create(ctx context.Context, tc *models.TaskContext) error
	ByID(ctx context.Context, id models.ContextID) (*models.TaskContext, error)
}

// PlanRepo is the slice of the plan store the API needs. Satisfied by
// *database.PlanStore.
type PlanRepo interface {
	Insert(ctx context.Context, plan *models.Plan) error
	ByID(ctx context.Context, id models.PlanID) (*models.Plan, error)
	ByContext(ctx context.Context, contextID models.ContextID) ([]models.Plan, error)
	UpdateStatus(ctx context.Context, id models.PlanID, from, to models.PlanStatus) error
}

// ConnectionRepo is the slice of the connection store the API needs.
// Satisfied by *database.ConnectionStore.
type ConnectionRepo interface {
	Create(ctx context.Context, conn *models.Connection) error
	ByID(ctx context.Context, id models.ConnectionID) (*models.Connection, error)
	ForClient(ctx context.Context, clientID models.ClientID) ([]models.Connection, error)
}

// HealthChecker reports backend liveness. Satisfied by *database.DB.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// WorkerStats reports executor activity. Satisfied by *executor.Executor.
type WorkerStats interface {
	ActivePlans() int
}

// IndexerStats reports indexing throughput. Satisfied by *indexing.Indexer.
type IndexerStats interface {
	Stats() (indexed, failed int64)
}

// Server wires the echo router over the application services.
type Server struct {
	contexts    ContextStore
	plans       PlanRepo
	connections ConnectionRepo
	gateway     *llm.Gateway
	bus         *events.Bus
	hub         *Hub
	health      HealthChecker
	workers     WorkerStats
	indexer     IndexerStats
	cfg         *config.ServerConfig

	echo *echo.Echo
	http *http.Server
}

// NewServer builds the server and registers the routes.
func NewServer(contexts ContextStore, plans PlanRepo, connections ConnectionRepo, gateway *llm.Gateway, bus *events.Bus, health HealthChecker, cfg *config.ServerConfig) *Server {
	s := &Server{
		contexts:    contexts,
		plans:       plans,
		connections: connections,
		gateway:     gateway,
		bus:         bus,
		hub:         NewHub(bus, cfg),
		health:      health,
		cfg:         cfg,
	}

	e := echo.New()
	e.POST("/api/tasks", s.createTaskHandler)
	e.GET("/api/plans/:id", s.getPlanHandler)
	e.GET("/api/contexts/:id/plans", s.listContextPlansHandler)
	e.POST("/api/plans/:id/cancel", s.cancelPlanHandler)
	e.POST("/api/connections", s.createConnectionHandler)
	e.GET("/api/connections/:id", s.getConnectionHandler)
	e.GET("/api/clients/:id/connections", s.listClientConnectionsHandler)
	e.GET("/health", s.healthHandler)
	e.GET("/ws", s.wsHandler)
	s.echo = e
	return s
}

// SetWorkerStats attaches the executor's stats to the health endpoint.
func (s *Server) SetWorkerStats(workers WorkerStats) {
	s.workers = workers
}

// SetIndexerStats attaches the indexer's stats to the health endpoint.
func (s *Server) SetIndexerStats(indexer IndexerStats) {
	s.indexer = indexer
}

// Start serves HTTP on the address until Shutdown.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{Addr: addr, Handler: s.echo}
	slog.Info("API server listening", "addr", addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and closes WebSocket sessions.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// httpError translates store errors into API errors.
func httpError(err error) error {
	switch {
	case errors.Is(err, database.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "resource not found")
	case errors.Is(err, database.ErrStateConflict):
		return echo.NewHTTPError(http.StatusConflict, "plan is not in a cancellable state")
	}
	slog.Error("Internal API error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
