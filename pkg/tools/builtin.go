package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jervis-ai/jervis/pkg/config"
	"github.com/jervis-ai/jervis/pkg/dialog"
	"github.com/jervis-ai/jervis/pkg/llm"
	"github.com/jervis-ai/jervis/pkg/models"
)

// RagSearcher is the slice of the RAG pipeline the search tool needs.
// Satisfied by *rag.Pipeline.
type RagSearcher interface {
	ExecuteRagPipeline(ctx context.Context, queries []string, originalQuery string, plan *models.Plan) (string, error)
}

// RAGSearchTool answers a step by searching the knowledge base and
// synthesizing the fragments.
type RAGSearchTool struct {
	pipeline RagSearcher
}

// NewRAGSearchTool creates the RAG search tool over the pipeline.
func NewRAGSearchTool(pipeline RagSearcher) *RAGSearchTool {
	return &RAGSearchTool{pipeline: pipeline}
}

func (t *RAGSearchTool) Name() string      { return NameRAGSearch }
func (t *RAGSearchTool) Aliases() []string { return []string{"RAG_SEARCH", "KNOWLEDGE_SEARCH_TOOL"} }

func (t *RAGSearchTool) PlannerDescription() string {
	return "searches the indexed knowledge base (wiki pages, issues, emails, chat messages) and returns a synthesized answer with source references"
}

// Execute treats each non-empty line of the task description as a query and
// keeps the plan's question as the synthesis anchor.
func (t *RAGSearchTool) Execute(ctx context.Context, plan *models.Plan, taskDescription string) models.ToolResult {
	queries := splitQueries(taskDescription)
	answer, err := t.pipeline.ExecuteRagPipeline(ctx, queries, plan.EnglishQuestion, plan)
	if err != nil {
		return models.FailureResult(NameRAGSearch, err.Error())
	}
	if answer == "" {
		return models.SuccessResult(NameRAGSearch, "no relevant documents found", "")
	}
	return models.SuccessResult(NameRAGSearch, "knowledge base search completed", answer)
}

func splitQueries(taskDescription string) []string {
	var queries []string
	for _, line := range strings.Split(taskDescription, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			queries = append(queries, line)
		}
	}
	if len(queries) == 0 {
		queries = []string{taskDescription}
	}
	return queries
}

// AnalysisReasoningTool reasons over the results accumulated so far. It is
// also the fallback for steps whose proposed tool cannot be resolved.
type AnalysisReasoningTool struct {
	gateway *llm.Gateway
}

// NewAnalysisReasoningTool creates the analysis tool over the gateway.
func NewAnalysisReasoningTool(gateway *llm.Gateway) *AnalysisReasoningTool {
	return &AnalysisReasoningTool{gateway: gateway}
}

func (t *AnalysisReasoningTool) Name() string      { return NameAnalysisReasoning }
func (t *AnalysisReasoningTool) Aliases() []string { return []string{"REASONING_TOOL", "ANALYSIS_TOOL"} }

func (t *AnalysisReasoningTool) PlannerDescription() string {
	return "analyzes and reasons over previously gathered results without external lookups"
}

type analysisOutput struct {
	Answer string `json:"answer"`
}

func (t *AnalysisReasoningTool) Execute(ctx context.Context, plan *models.Plan, taskDescription string) models.ToolResult {
	resp, err := llm.Call[analysisOutput](ctx, t.gateway, llm.Request{
		PromptType: config.PromptAnalysis,
		Values: map[string]string{
			"task":    taskDescription,
			"context": renderStepContext(plan),
		},
		Quick:         plan.Quick,
		CorrelationID: plan.ID.Hex(),
	})
	if err != nil {
		return models.FailureResult(NameAnalysisReasoning, err.Error())
	}
	return models.SuccessResult(NameAnalysisReasoning, "analysis completed", resp.Result.Answer)
}

// renderStepContext flattens the plan's completed step results for the
// analysis prompt.
func renderStepContext(plan *models.Plan) string {
	var b strings.Builder
	if plan.ContextSummary != "" {
		b.WriteString(plan.ContextSummary)
		b.WriteString("\n\n")
	}
	for i := range plan.Steps {
		step := &plan.Steps[i]
		if step.Status != models.StepStatusDone || step.ToolResult == nil {
			continue
		}
		fmt.Fprintf(&b, "Step %d (%s): %s\n", step.Order, step.ToolName, step.ToolResult.Summary)
		if step.ToolResult.Content != "" {
			b.WriteString(step.ToolResult.Content)
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// RecoveryReasoningTool reasons over a failure and the remaining work.
// Recovery planning schedules it for the replacement steps it inserts after
// a step fails.
type RecoveryReasoningTool struct {
	gateway *llm.Gateway
}

// NewRecoveryReasoningTool creates the recovery reasoning tool.
func NewRecoveryReasoningTool(gateway *llm.Gateway) *RecoveryReasoningTool {
	return &RecoveryReasoningTool{gateway: gateway}
}

func (t *RecoveryReasoningTool) Name() string      { return NameRecoveryReasoning }
func (t *RecoveryReasoningTool) Aliases() []string { return []string{"RECOVERY_TOOL"} }

func (t *RecoveryReasoningTool) PlannerDescription() string {
	return "reasons about a failed step and works out how to reach the remaining goals anyway"
}

func (t *RecoveryReasoningTool) Execute(ctx context.Context, plan *models.Plan, taskDescription string) models.ToolResult {
	resp, err := llm.Call[analysisOutput](ctx, t.gateway, llm.Request{
		PromptType: config.PromptAnalysis,
		Values: map[string]string{
			"task":    taskDescription,
			"context": renderFailureContext(plan),
		},
		Quick:         plan.Quick,
		CorrelationID: plan.ID.Hex(),
	})
	if err != nil {
		return models.FailureResult(NameRecoveryReasoning, err.Error())
	}
	return models.SuccessResult(NameRecoveryReasoning, "recovery analysis completed", resp.Result.Answer)
}

// renderFailureContext is renderStepContext plus the failed steps and their
// error messages, which is exactly what recovery reasoning needs to see.
func renderFailureContext(plan *models.Plan) string {
	var b strings.Builder
	if done := renderStepContext(plan); done != "" {
		b.WriteString(done)
		b.WriteString("\n")
	}
	for i := range plan.Steps {
		step := &plan.Steps[i]
		if step.Status != models.StepStatusFailed || step.ToolResult == nil {
			continue
		}
		fmt.Fprintf(&b, "Step %d (%s) FAILED: %s\n", step.Order, step.ToolName, step.ToolResult.ErrorMessage)
	}
	return strings.TrimRight(b.String(), "\n")
}

// StepPlanner is the slice of the planner the dynamic planning tool needs.
// Satisfied by *planner.Planner.
type StepPlanner interface {
	CreatePlan(ctx context.Context, plan *models.Plan) (*models.Plan, error)
}

// PlannerTool plans follow-up steps mid-execution. Its result content is a
// proposed step batch the executor ingests into the running plan.
type PlannerTool struct {
	planner StepPlanner
}

// NewPlannerTool creates the dynamic planning tool.
func NewPlannerTool(p StepPlanner) *PlannerTool {
	return &PlannerTool{planner: p}
}

func (t *PlannerTool) Name() string        { return NamePlanner }
func (t *PlannerTool) Aliases() []string   { return []string{"REPLAN_TOOL"} }
func (t *PlannerTool) ProducesSteps() bool { return true }

func (t *PlannerTool) PlannerDescription() string {
	return "plans additional steps when the task needs work that cannot be determined upfront"
}

func (t *PlannerTool) Execute(ctx context.Context, plan *models.Plan, taskDescription string) models.ToolResult {
	// Planning against an empty scratch plan keeps the produced orders
	// batch-relative; ingestion maps them onto the live plan.
	scratch := &models.Plan{
		ID:              plan.ID,
		ContextID:       plan.ContextID,
		ClientID:        plan.ClientID,
		ProjectID:       plan.ProjectID,
		EnglishQuestion: taskDescription,
		ContextSummary:  renderStepContext(plan),
		Quick:           plan.Quick,
	}
	planned, err := t.planner.CreatePlan(ctx, scratch)
	if err != nil {
		return models.FailureResult(NamePlanner, err.Error())
	}
	content, err := EncodeSteps(planned.Steps)
	if err != nil {
		return models.FailureResult(NamePlanner, err.Error())
	}
	summary := fmt.Sprintf("planned %d follow-up steps", len(planned.Steps))
	return models.SuccessResult(NamePlanner, summary, content)
}

// RequirementCreator is the slice of the requirement store the capture tool
// needs. Satisfied by *database.RequirementStore.
type RequirementCreator interface {
	Create(ctx context.Context, req *models.UserRequirement) error
}

// UserRequirementTool extracts a structured requirement from the task
// description and persists it.
type UserRequirementTool struct {
	gateway *llm.Gateway
	store   RequirementCreator
}

// NewUserRequirementTool creates the requirement capture tool.
func NewUserRequirementTool(gateway *llm.Gateway, store RequirementCreator) *UserRequirementTool {
	return &UserRequirementTool{gateway: gateway, store: store}
}

func (t *UserRequirementTool) Name() string      { return NameUserRequirement }
func (t *UserRequirementTool) Aliases() []string { return []string{"REQUIREMENT_TOOL"} }

func (t *UserRequirementTool) PlannerDescription() string {
	return "captures a user requirement (title, description, keywords, priority) and stores it for later work"
}

type requirementOutput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
	Priority    string   `json:"priority"`
}

func (t *UserRequirementTool) Execute(ctx context.Context, plan *models.Plan, taskDescription string) models.ToolResult {
	resp, err := llm.Call[requirementOutput](ctx, t.gateway, llm.Request{
		PromptType:    config.PromptRequirement,
		Values:        map[string]string{"task": taskDescription},
		Quick:         plan.Quick,
		CorrelationID: plan.ID.Hex(),
	})
	if err != nil {
		return models.FailureResult(NameUserRequirement, err.Error())
	}

	priority := models.Priority(strings.ToUpper(resp.Result.Priority))
	if !priority.IsValid() {
		slog.Warn("Requirement priority unrecognized, defaulting", "priority", resp.Result.Priority)
		priority = models.PriorityMedium
	}
	req := &models.UserRequirement{
		ID:          models.NewTaskID(),
		ClientID:    plan.ClientID,
		ProjectID:   plan.ProjectID,
		Title:       resp.Result.Title,
		Description: resp.Result.Description,
		Keywords:    resp.Result.Keywords,
		Priority:    priority,
	}
	if err := t.store.Create(ctx, req); err != nil {
		return models.FailureResult(NameUserRequirement, err.Error())
	}
	return models.SuccessResult(NameUserRequirement,
		fmt.Sprintf("requirement captured: %s (%s)", req.Title, req.Priority), req.ID.Hex())
}

// DialogBroker is the slice of the dialog coordinator the dialog tool needs.
// Satisfied by *dialog.Coordinator.
type DialogBroker interface {
	RequestDialog(ctx context.Context, correlationID, question string) string
	Await(ctx context.Context, dialogID string) dialog.Outcome
}

// UserDialogTool asks the user a question and blocks the step until an
// answer, a close, or plan cancellation.
type UserDialogTool struct {
	dialogs DialogBroker
}

// NewUserDialogTool creates the dialog tool over the coordinator.
func NewUserDialogTool(dialogs DialogBroker) *UserDialogTool {
	return &UserDialogTool{dialogs: dialogs}
}

func (t *UserDialogTool) Name() string      { return NameUserDialog }
func (t *UserDialogTool) Aliases() []string { return []string{"DIALOG_TOOL", "ASK_USER_TOOL"} }

func (t *UserDialogTool) PlannerDescription() string {
	return "asks the user a clarifying question and waits for the answer before the plan continues"
}

func (t *UserDialogTool) Execute(ctx context.Context, plan *models.Plan, taskDescription string) models.ToolResult {
	dialogID := t.dialogs.RequestDialog(ctx, plan.ID.Hex(), taskDescription)
	outcome := t.dialogs.Await(ctx, dialogID)
	switch {
	case outcome.Cancelled:
		return models.FailureResult(NameUserDialog, "dialog cancelled before the user answered")
	case !outcome.Accepted:
		return models.SuccessResult(NameUserDialog, "user declined", outcome.Answer)
	default:
		return models.SuccessResult(NameUserDialog, "user answered", outcome.Answer)
	}
}
