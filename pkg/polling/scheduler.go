package polling

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jervis-ai/jervis/pkg/models"
)

// ConnectionLister enumerates all configured connections. Satisfied by
// *database.ConnectionStore.
type ConnectionLister interface {
	All(ctx context.Context) ([]models.Connection, error)
}

// ProjectLister finds explicit project attachments. Satisfied by
// *database.ProjectStore.
type ProjectLister interface {
	WithConnection(ctx context.Context, connectionID models.ConnectionID) ([]models.Project, error)
}

// Scheduler periodically polls every connection through its provider handler.
// A connection without a handler, or one failing with an auth error, is
// logged and skipped; the remaining connections still run.
type Scheduler struct {
	registry    *Registry
	connections ConnectionLister
	projects    ProjectLister
	interval    time.Duration

	cancel   context.CancelFunc
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler wires the scheduler.
func NewScheduler(registry *Registry, connections ConnectionLister, projects ProjectLister, interval time.Duration) *Scheduler {
	return &Scheduler{
		registry:    registry,
		connections: connections,
		projects:    projects,
		interval:    interval,
	}
}

// Start launches the polling loop. The first run happens immediately.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runAll(ctx)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.runAll(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
	slog.Info("Polling scheduler started", "interval", s.interval)
}

// Stop cancels the loop and waits for the current run to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
		slog.Info("Polling scheduler stopped")
	})
}

func (s *Scheduler) runAll(ctx context.Context) {
	conns, err := s.connections.All(ctx)
	if err != nil {
		slog.Error("Failed to list connections for polling", "error", err)
		return
	}

	for i := range conns {
		if ctx.Err() != nil {
			return
		}
		conn := &conns[i]
		handler := s.registry.ForProvider(conn.Provider)
		if handler == nil {
			slog.Warn("No polling handler for provider, skipping",
				"provider", conn.Provider, "connection", conn.Name)
			continue
		}

		projects, err := s.projects.WithConnection(ctx, conn.ID)
		if err != nil {
			slog.Error("Failed to resolve connection attachments",
				"connection", conn.Name, "error", err)
			continue
		}

		if _, err := handler.Poll(ctx, NewContext(conn, projects)); err != nil {
			slog.Error("Polling failed for connection",
				"connection", conn.Name, "provider", conn.Provider, "error", err)
		}
	}
}
