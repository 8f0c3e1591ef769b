package api

import (
	"errors"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/jervis-ai/jervis/pkg/database"
	"github.com/jervis-ai/jervis/pkg/events"
	"github.com/jervis-ai/jervis/pkg/models"
)

// getPlanHandler handles GET /api/plans/:id.
func (s *Server) getPlanHandler(c *echo.Context) error {
	id, err := models.ParsePlanID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "plan id must be a valid object id")
	}
	plan, err := s.plans.ByID(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, plan)
}

// listContextPlansHandler handles GET /api/contexts/:id/plans.
func (s *Server) listContextPlansHandler(c *echo.Context) error {
	id, err := models.ParseContextID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "context id must be a valid object id")
	}
	plans, err := s.plans.ByContext(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, plans)
}

// cancelPlanHandler handles POST /api/plans/:id/cancel. A still-queued plan
// is failed in place; a running plan is cancelled through the executor via
// the task-cancelled event.
func (s *Server) cancelPlanHandler(c *echo.Context) error {
	id, err := models.ParsePlanID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "plan id must be a valid object id")
	}
	reqCtx := c.Request().Context()

	plan, err := s.plans.ByID(reqCtx, id)
	if err != nil {
		return httpError(err)
	}
	if plan.Status.IsTerminal() {
		return echo.NewHTTPError(http.StatusConflict, "plan already finished")
	}

	if err := s.plans.UpdateStatus(reqCtx, id, models.PlanStatusCreated, models.PlanStatusFailed); err != nil &&
		!errors.Is(err, database.ErrStateConflict) {
		return httpError(err)
	}

	s.bus.Publish(reqCtx, events.UserTaskCancelledEvent{
		Type:      events.TypeUserTaskCancelled,
		ContextID: plan.ContextID.Hex(),
		PlanID:    plan.ID.Hex(),
		Timestamp: time.Now().UTC(),
	})
	return c.JSON(http.StatusAccepted, map[string]string{"status": "cancelling"})
}
