package tools

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jervis-ai/jervis/pkg/config"
	"github.com/jervis-ai/jervis/pkg/dialog"
	"github.com/jervis-ai/jervis/pkg/events"
	"github.com/jervis-ai/jervis/pkg/llm"
	"github.com/jervis-ai/jervis/pkg/models"
	"github.com/jervis-ai/jervis/pkg/tokens"
)

type scriptedClient struct {
	mu        sync.Mutex
	responses []string
	calls     []openai.ChatCompletionRequest
}

func (c *scriptedClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, req)
	content := "{}"
	if len(c.responses) > 0 {
		content = c.responses[0]
		c.responses = c.responses[1:]
	}
	return openai.ChatCompletionResponse{
		Model: req.Model,
		Choices: []openai.ChatCompletionChoice{{
			Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content},
			FinishReason: openai.FinishReasonStop,
		}},
	}, nil
}

type noopLimiter struct{}

func (noopLimiter) Acquire(context.Context, string) error { return nil }

func toolGateway(client *scriptedClient) *llm.Gateway {
	providers := map[string]*config.LLMProviderConfig{
		"local": {BaseURL: "http://localhost:9090/v1", Mode: config.ModeNonblocking},
	}
	modelList := []config.ModelConfig{
		{Name: "chat", Provider: "local", Type: config.ModelTypeChat, ContextLength: 64000, MaxOutputTokens: 4096},
	}
	prompts := map[config.PromptType]*config.PromptConfig{
		config.PromptAnalysis: {
			ModelType: config.ModelTypeChat, Creativity: config.CreativityBalanced,
			System: "Analyze.", User: "{{.task}}\n{{.context}}",
		},
		config.PromptRequirement: {
			ModelType: config.ModelTypeChat, Creativity: config.CreativityStrict,
			System: "Extract requirement.", User: "{{.task}}",
		},
	}
	registry := config.NewLLMRegistry(providers, modelList, prompts)
	defaults := &config.LLMDefaults{
		ResponseBuffer:       100,
		ParseRetries:         1,
		RetryInitialInterval: time.Millisecond,
		RetryMaxInterval:     time.Millisecond,
		RetryMaxAttempts:     1,
	}
	g := llm.NewGateway(registry, defaults, tokens.NewCounter(100), llm.NewConcurrencyManager(registry), noopLimiter{})
	g.SetClientFactory(func(*config.LLMProviderConfig) llm.ChatCompleter { return client })
	return g
}

func testPlan() *models.Plan {
	return &models.Plan{
		ID:              models.NewPlanID(),
		ContextID:       models.NewContextID(),
		ClientID:        models.NewClientID(),
		EnglishQuestion: "what changed in the billing module?",
		Status:          models.PlanStatusRunning,
	}
}

type fakeSearcher struct {
	answer  string
	err     error
	queries []string
}

func (f *fakeSearcher) ExecuteRagPipeline(_ context.Context, queries []string, _ string, _ *models.Plan) (string, error) {
	f.queries = queries
	return f.answer, f.err
}

func TestRAGSearchToolSplitsQueries(t *testing.T) {
	searcher := &fakeSearcher{answer: "billing moved to stripe"}
	tool := NewRAGSearchTool(searcher)

	result := tool.Execute(context.Background(), testPlan(), "billing module changes\n\nstripe migration")
	require.True(t, result.Success)
	assert.Equal(t, "billing moved to stripe", result.Content)
	assert.Equal(t, []string{"billing module changes", "stripe migration"}, searcher.queries)
}

func TestRAGSearchToolEmptyCorpus(t *testing.T) {
	tool := NewRAGSearchTool(&fakeSearcher{answer: ""})
	result := tool.Execute(context.Background(), testPlan(), "anything")
	require.True(t, result.Success)
	assert.Contains(t, result.Summary, "no relevant documents")
	assert.Empty(t, result.Content)
}

func TestRAGSearchToolFailure(t *testing.T) {
	tool := NewRAGSearchTool(&fakeSearcher{err: errors.New("vector store down")})
	result := tool.Execute(context.Background(), testPlan(), "anything")
	require.False(t, result.Success)
	assert.Contains(t, result.ErrorMessage, "vector store down")
}

func TestAnalysisToolIncludesCompletedStepResults(t *testing.T) {
	client := &scriptedClient{responses: []string{`{"answer":"two regressions found"}`}}
	tool := NewAnalysisReasoningTool(toolGateway(client))

	plan := testPlan()
	done := models.ToolResult{ToolName: NameRAGSearch, Success: true, Summary: "search done", Content: "fragment text"}
	plan.Steps = []models.PlanStep{
		{ID: models.NewStepID(), Order: 1, ToolName: NameRAGSearch, Status: models.StepStatusDone, ToolResult: &done},
		{ID: models.NewStepID(), Order: 2, ToolName: NameAnalysisReasoning, Status: models.StepStatusPending},
	}

	result := tool.Execute(context.Background(), plan, "compare the findings")
	require.True(t, result.Success)
	assert.Equal(t, "two regressions found", result.Content)

	client.mu.Lock()
	defer client.mu.Unlock()
	require.Len(t, client.calls, 1)
	user := client.calls[0].Messages[1].Content
	assert.Contains(t, user, "compare the findings")
	assert.Contains(t, user, "fragment text")
}

type fakePlanner struct {
	steps []models.PlanStep
	err   error
	asked string
}

func (f *fakePlanner) CreatePlan(_ context.Context, plan *models.Plan) (*models.Plan, error) {
	f.asked = plan.EnglishQuestion
	if f.err != nil {
		return nil, f.err
	}
	return plan.AppendSteps(f.steps), nil
}

func TestPlannerToolEncodesBatch(t *testing.T) {
	planned := []models.PlanStep{
		{ToolName: NameRAGSearch, StepInstruction: "find the incident report"},
		{ToolName: NameAnalysisReasoning, StepInstruction: "summarize it", DependsOn: []int{1}},
	}
	fp := &fakePlanner{steps: planned}
	tool := NewPlannerTool(fp)

	plan := testPlan()
	plan.Steps = []models.PlanStep{
		{ID: models.NewStepID(), Order: 1, ToolName: NamePlanner, Status: models.StepStatusRunning},
	}

	result := tool.Execute(context.Background(), plan, "investigate the outage")
	require.True(t, result.Success)
	assert.Equal(t, "investigate the outage", fp.asked)
	assert.True(t, ProducesSteps(tool))

	// Ingesting maps the batch-relative dependency onto the live plan.
	updated, err := IngestSteps(plan, result.Content)
	require.NoError(t, err)
	require.Len(t, updated.Steps, 3)
	assert.Equal(t, 2, updated.Steps[1].Order)
	assert.Equal(t, 3, updated.Steps[2].Order)
	assert.Equal(t, []int{2}, updated.Steps[2].DependsOn)
}

func TestPlannerToolFailure(t *testing.T) {
	tool := NewPlannerTool(&fakePlanner{err: errors.New("no goals")})
	result := tool.Execute(context.Background(), testPlan(), "anything")
	require.False(t, result.Success)
}

func TestIngestStepsRejectsOutOfBatchDependency(t *testing.T) {
	_, err := IngestSteps(testPlan(), `[{"toolName":"X","stepInstruction":"a","dependsOn":[5]}]`)
	require.Error(t, err)
}

type memRequirements struct {
	created []*models.UserRequirement
}

func (m *memRequirements) Create(_ context.Context, req *models.UserRequirement) error {
	if err := req.Validate(); err != nil {
		return err
	}
	m.created = append(m.created, req)
	return nil
}

func TestUserRequirementToolPersists(t *testing.T) {
	client := &scriptedClient{responses: []string{
		`{"title":"Export audit log","description":"CSV export of the audit trail","keywords":["audit","export"],"priority":"high"}`,
	}}
	store := &memRequirements{}
	tool := NewUserRequirementTool(toolGateway(client), store)

	plan := testPlan()
	result := tool.Execute(context.Background(), plan, "the user wants to export audit logs")
	require.True(t, result.Success)
	require.Len(t, store.created, 1)

	req := store.created[0]
	assert.Equal(t, "Export audit log", req.Title)
	assert.Equal(t, models.PriorityHigh, req.Priority)
	assert.Equal(t, plan.ClientID, req.ClientID)
	assert.Equal(t, req.ID.Hex(), result.Content)
}

func TestUserRequirementToolDefaultsUnknownPriority(t *testing.T) {
	client := &scriptedClient{responses: []string{
		`{"title":"Do the thing","priority":"ASAP"}`,
	}}
	store := &memRequirements{}
	tool := NewUserRequirementTool(toolGateway(client), store)

	result := tool.Execute(context.Background(), testPlan(), "do the thing")
	require.True(t, result.Success)
	require.Len(t, store.created, 1)
	assert.Equal(t, models.PriorityMedium, store.created[0].Priority)
}

func TestUserDialogToolAnswered(t *testing.T) {
	bus := events.NewBus()
	coordinator := dialog.NewCoordinator(bus)
	tool := NewUserDialogTool(coordinator)

	var requestedID string
	bus.Subscribe(func(ctx context.Context, event events.Event) {
		if req, ok := event.(events.UserDialogRequestEvent); ok {
			requestedID = req.DialogID
			go bus.Publish(ctx, events.UserDialogResponseEvent{
				Type: events.TypeUserDialogResponse, DialogID: req.DialogID,
				Answer: "use the staging cluster", Accepted: true,
			})
		}
	})

	result := tool.Execute(context.Background(), testPlan(), "which cluster should I target?")
	require.True(t, result.Success)
	assert.Equal(t, "use the staging cluster", result.Content)
	assert.NotEmpty(t, requestedID)
}

func TestUserDialogToolCancelledWithPlan(t *testing.T) {
	bus := events.NewBus()
	tool := NewUserDialogTool(dialog.NewCoordinator(bus))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan models.ToolResult, 1)
	go func() { done <- tool.Execute(ctx, testPlan(), "still there?") }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case result := <-done:
		require.False(t, result.Success)
		assert.Contains(t, result.ErrorMessage, "cancelled")
	case <-time.After(2 * time.Second):
		t.Fatal("dialog tool did not observe cancellation")
	}
}
