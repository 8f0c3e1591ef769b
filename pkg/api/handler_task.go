package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/jervis-ai/jervis/pkg/config"
	"github.com/jervis-ai/jervis/pkg/events"
	"github.com/jervis-ai/jervis/pkg/llm"
	"github.com/jervis-ai/jervis/pkg/models"
)

const maxQuestionLength = 32000

// CreateTaskRequest is the body of POST /api/tasks.
type CreateTaskRequest struct {
	Question  string `json:"question"`
	ClientID  string `json:"clientId"`
	ProjectID string `json:"projectId,omitempty"`
	// ContextID continues an existing task context; empty opens a new one.
	ContextID string `json:"contextId,omitempty"`
	// Language is the BCP-47 tag of the question. Anything other than
	// English gets translated before planning.
	Language string `json:"language,omitempty"`
	Quick    bool   `json:"quick,omitempty"`
}

// CreateTaskResponse returns the queued plan's coordinates.
type CreateTaskResponse struct {
	PlanID    string `json:"planId"`
	ContextID string `json:"contextId"`
	Status    string `json:"status"`
}

// createTaskHandler handles POST /api/tasks: it opens or reuses a task
// context, queues a CREATED plan for the executor, and announces the task.
func (s *Server) createTaskHandler(c *echo.Context) error {
	var req CreateTaskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Question) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question is required")
	}
	if len(req.Question) > maxQuestionLength {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "question exceeds the maximum length")
	}
	clientID, err := models.ParseClientID(req.ClientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "clientId must be a valid object id")
	}
	var projectID *models.ProjectID
	if req.ProjectID != "" {
		id, err := models.ParseProjectID(req.ProjectID)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "projectId must be a valid object id")
		}
		projectID = &id
	}

	reqCtx := c.Request().Context()
	taskContext, err := s.resolveContext(reqCtx, &req, clientID, projectID)
	if err != nil {
		return err
	}

	english := req.Question
	if needsTranslation(req.Language) {
		english, err = s.translate(reqCtx, req.Question, req.Language, req.Quick)
		if err != nil {
			return httpError(err)
		}
	}

	plan := &models.Plan{
		ID:               models.NewPlanID(),
		ContextID:        taskContext.ID,
		ClientID:         clientID,
		ProjectID:        projectID,
		OriginalQuestion: req.Question,
		EnglishQuestion:  english,
		Status:           models.PlanStatusCreated,
		ContextSummary:   taskContext.ContextSummary,
		Quick:            req.Quick || taskContext.Quick,
	}
	if err := s.plans.Insert(reqCtx, plan); err != nil {
		return httpError(err)
	}

	s.bus.Publish(reqCtx, events.UserTaskCreatedEvent{
		Type:      events.TypeUserTaskCreated,
		ContextID: taskContext.ID.Hex(),
		PlanID:    plan.ID.Hex(),
		Question:  plan.EnglishQuestion,
		Timestamp: time.Now().UTC(),
	})

	return c.JSON(http.StatusAccepted, &CreateTaskResponse{
		PlanID:    plan.ID.Hex(),
		ContextID: taskContext.ID.Hex(),
		Status:    string(plan.Status),
	})
}

// resolveContext loads the referenced task context or opens a fresh one named
// after the question.
func (s *Server) resolveContext(ctx context.Context, req *CreateTaskRequest, clientID models.ClientID, projectID *models.ProjectID) (*models.TaskContext, error) {
	if req.ContextID != "" {
		id, err := models.ParseContextID(req.ContextID)
		if err != nil {
			return nil, echo.NewHTTPError(http.StatusBadRequest, "contextId must be a valid object id")
		}
		taskContext, err := s.contexts.ByID(ctx, id)
		if err != nil {
			return nil, httpError(err)
		}
		return taskContext, nil
	}

	taskContext := &models.TaskContext{
		ID:        models.NewContextID(),
		ClientID:  clientID,
		ProjectID: projectID,
		Name:      contextName(req.Question),
		Quick:     req.Quick,
	}
	if err := s.contexts.Create(ctx, taskContext); err != nil {
		return nil, httpError(err)
	}
	return taskContext, nil
}

type translationOutput struct {
	English string `json:"english"`
}

func (s *Server) translate(ctx context.Context, question, language string, quick bool) (string, error) {
	resp, err := llm.Call[translationOutput](ctx, s.gateway, llm.Request{
		PromptType: config.PromptTranslation,
		Values: map[string]string{
			"text":     question,
			"language": language,
		},
		Quick: quick,
	})
	if err != nil {
		return "", err
	}
	return resp.Result.English, nil
}

func needsTranslation(language string) bool {
	if language == "" {
		return false
	}
	tag := strings.ToLower(language)
	return tag != "en" && !strings.HasPrefix(tag, "en-")
}

func contextName(question string) string {
	name := strings.TrimSpace(question)
	if len(name) > 80 {
		name = name[:80]
	}
	return name
}
