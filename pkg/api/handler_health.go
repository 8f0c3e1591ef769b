package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/jervis-ai/jervis/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusUnhealthy = "unhealthy"
)

// HealthCheck is one component's health verdict.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Checks  map[string]HealthCheck `json:"checks"`
}

// healthHandler handles GET /health. Only the database is checked; the LLM
// providers and the vector store are external dependencies whose outages must
// not make an orchestrator restart this service.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]HealthCheck)
	status := healthStatusHealthy

	if err := s.health.Health(reqCtx); err != nil {
		status = healthStatusUnhealthy
		checks["database"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
	} else {
		checks["database"] = HealthCheck{Status: healthStatusHealthy}
	}

	if s.workers != nil {
		checks["executor"] = HealthCheck{
			Status:  healthStatusHealthy,
			Message: fmt.Sprintf("%d active plans", s.workers.ActivePlans()),
		}
	}

	if s.indexer != nil {
		indexed, failed := s.indexer.Stats()
		checks["indexer"] = HealthCheck{
			Status:  healthStatusHealthy,
			Message: fmt.Sprintf("%d items indexed, %d failed", indexed, failed),
		}
	}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	return c.JSON(httpStatus, &HealthResponse{Status: status, Version: version.Build().String(), Checks: checks})
}
