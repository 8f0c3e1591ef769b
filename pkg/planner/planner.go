package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jervis-ai/jervis/pkg/config"
	"github.com/jervis-ai/jervis/pkg/llm"
	"github.com/jervis-ai/jervis/pkg/models"
)

// ToolCatalog resolves planner tool references. Satisfied by *tools.Registry.
type ToolCatalog interface {
	// PlannerDescriptions returns the newline-joined tool descriptions fed
	// to the planner prompt.
	PlannerDescriptions() string
	// ResolveName maps a model-proposed tool name onto a registered tool:
	// exact case-insensitive match, then alias match, then the reasoning
	// tool as the fallback.
	ResolveName(name string) string
}

// Planner turns a user question into plan steps.
type Planner struct {
	gateway *llm.Gateway
	catalog ToolCatalog
}

// New creates a planner over the gateway and tool catalog.
func New(gateway *llm.Gateway, catalog ToolCatalog) *Planner {
	return &Planner{gateway: gateway, catalog: catalog}
}

// SetCatalog attaches the tool catalog after construction. The planner and
// the tool registry reference each other, so one side is wired late.
func (p *Planner) SetCatalog(catalog ToolCatalog) {
	p.catalog = catalog
}

type plannerOutput struct {
	Goals []Goal `json:"goals"`
}

// ToolSelection is one phase-2 mapping of a requirement onto a tool.
type ToolSelection struct {
	ToolName   string            `json:"toolName"`
	Reasoning  string            `json:"reasoning"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

type toolReasoningOutput struct {
	Selections []ToolSelection `json:"selections"`
}

// CreatePlan runs both phases against the plan's english question and
// returns a copy of the plan with the produced steps appended.
func (p *Planner) CreatePlan(ctx context.Context, plan *models.Plan) (*models.Plan, error) {
	goals, err := p.planGoals(ctx, plan.EnglishQuestion, plan.ContextSummary, plan.Quick)
	if err != nil {
		return nil, err
	}
	if len(goals) == 0 {
		return nil, fmt.Errorf("planner produced no goals for plan %s", plan.ID.Hex())
	}
	steps, err := p.reasonTools(ctx, plan, goals)
	if err != nil {
		return nil, err
	}
	return plan.AppendSteps(steps), nil
}

// PlanRecovery asks the recovery prompt for replacement goals after a step
// failure and maps them to steps the executor prepends at the failure point.
func (p *Planner) PlanRecovery(ctx context.Context, plan *models.Plan, failedStep *models.PlanStep, failure string) ([]models.PlanStep, error) {
	resp, err := llm.Call[plannerOutput](ctx, p.gateway, llm.Request{
		PromptType: config.PromptRecoveryReasoning,
		Values: map[string]string{
			"failedStep":     failedStep.StepInstruction,
			"failure":        failure,
			"remainingGoals": renderRemainingGoals(plan),
		},
		Quick:         plan.Quick,
		CorrelationID: plan.ID.Hex(),
	})
	if err != nil {
		return nil, fmt.Errorf("recovery reasoning failed: %w", err)
	}
	sorted, err := TopoSort(resp.Result.Goals)
	if err != nil {
		return nil, fmt.Errorf("recovery goals invalid: %w", err)
	}
	// Recovery steps run before everything still pending, so they carry no
	// dependency links of their own. They get the recovery reasoning tool
	// when one is registered, the fallback otherwise.
	var steps []models.PlanStep
	for _, goal := range sorted {
		steps = append(steps, models.PlanStep{
			ID:              models.NewStepID(),
			ToolName:        p.catalog.ResolveName("RECOVERY_REASONING_TOOL"),
			StepInstruction: goal.GoalIntent,
			Status:          models.StepStatusPending,
		})
	}
	return steps, nil
}

// planGoals is phase 1. An invalid goal graph gets one re-prompt carrying
// the validator's message before the failure is surfaced.
func (p *Planner) planGoals(ctx context.Context, question, contextSummary string, quick bool) ([]Goal, error) {
	goals, err := p.callPlanner(ctx, question, contextSummary, quick)
	if err == nil {
		return goals, nil
	}
	if !errors.Is(err, ErrCyclicDependency) && !errors.Is(err, ErrMissingDependency) {
		return nil, err
	}

	slog.Warn("Planner goal graph invalid, re-prompting", "error", err)
	augmented := question + "\n\nYour previous goal graph was rejected: " + err.Error() +
		"\nProduce a valid acyclic goal graph referencing only defined goalIds."
	return p.callPlanner(ctx, augmented, contextSummary, quick)
}

func (p *Planner) callPlanner(ctx context.Context, question, contextSummary string, quick bool) ([]Goal, error) {
	resp, err := llm.Call[plannerOutput](ctx, p.gateway, llm.Request{
		PromptType: config.PromptPlanner,
		Values: map[string]string{
			"question":       question,
			"contextSummary": contextSummary,
			"toolCatalog":    p.catalog.PlannerDescriptions(),
		},
		Quick: quick,
	})
	if err != nil {
		return nil, fmt.Errorf("planning failed: %w", err)
	}
	return TopoSort(resp.Result.Goals)
}

// reasonTools is phase 2: one call maps all requirements to tool selections,
// then the selections become PENDING steps with final order numbers.
func (p *Planner) reasonTools(ctx context.Context, plan *models.Plan, goals []Goal) ([]models.PlanStep, error) {
	resp, err := llm.Call[toolReasoningOutput](ctx, p.gateway, llm.Request{
		PromptType: config.PromptToolReasoning,
		Values: map[string]string{
			"requirements": renderRequirements(goals),
			"toolCatalog":  p.catalog.PlannerDescriptions(),
		},
		Quick:         plan.Quick,
		CorrelationID: plan.ID.Hex(),
	})
	if err != nil {
		return nil, fmt.Errorf("tool reasoning failed: %w", err)
	}
	selections := resp.Result.Selections
	if len(selections) != len(goals) {
		return nil, fmt.Errorf("%w: %d requirements but %d tool selections",
			llm.ErrParseFailure, len(goals), len(selections))
	}

	// Steps are appended after the plan's existing steps; dependency links
	// must reference the final order numbers.
	base := plan.MaxOrder()
	orderByGoal := make(map[int]int, len(goals))
	for i, goal := range goals {
		orderByGoal[goal.GoalID] = base + i + 1
	}

	steps := make([]models.PlanStep, 0, len(goals))
	for i, goal := range goals {
		selection := selections[i]
		instruction := goal.GoalIntent
		if params := models.RenderParameters(selection.Parameters); params != "" {
			instruction += "\n" + params
		}
		var deps []int
		for _, dep := range goal.DependsOn {
			deps = append(deps, orderByGoal[dep])
		}
		steps = append(steps, models.PlanStep{
			ID:              models.NewStepID(),
			ToolName:        p.catalog.ResolveName(selection.ToolName),
			StepInstruction: instruction,
			DependsOn:       deps,
			Status:          models.StepStatusPending,
		})
	}
	return steps, nil
}

func renderRequirements(goals []Goal) string {
	var b strings.Builder
	for i, goal := range goals {
		fmt.Fprintf(&b, "%d. %s\n", i+1, goal.GoalIntent)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderRemainingGoals(plan *models.Plan) string {
	var b strings.Builder
	for i := range plan.Steps {
		step := &plan.Steps[i]
		if step.Status == models.StepStatusPending {
			fmt.Fprintf(&b, "- %s\n", step.StepInstruction)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
