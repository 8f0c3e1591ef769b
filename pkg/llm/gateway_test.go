package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jervis-ai/jervis/pkg/config"
	"github.com/jervis-ai/jervis/pkg/tokens"
)

type fakeClient struct {
	mu      sync.Mutex
	calls   []openai.ChatCompletionRequest
	respond func(req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

func (f *fakeClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	return f.respond(req)
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeClient) call(i int) openai.ChatCompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

func textResponse(model, content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Model: model,
		Choices: []openai.ChatCompletionChoice{
			{
				Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content},
				FinishReason: openai.FinishReasonStop,
			},
		},
		Usage: openai.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
}

type noopLimiter struct{}

func (noopLimiter) Acquire(context.Context, string) error { return nil }

func testRegistry() *config.LLMRegistry {
	providers := map[string]*config.LLMProviderConfig{
		"primary": {
			BaseURL:               "https://api.primary.test/v1",
			Mode:                  config.ModeInterruptible,
			MaxConcurrentRequests: 2,
		},
		"fallback": {
			BaseURL: "http://localhost:8081/v1",
			Mode:    config.ModeNonblocking,
		},
	}
	models := []config.ModelConfig{
		{Name: "big-chat", Provider: "primary", Type: config.ModelTypeChat, ContextLength: 128000, MaxOutputTokens: 4096},
		{Name: "small-chat", Provider: "fallback", Type: config.ModelTypeChat, Quick: true, ContextLength: 16000, MaxOutputTokens: 2048},
	}
	prompts := map[config.PromptType]*config.PromptConfig{
		config.PromptAnalysis: {
			ModelType:  config.ModelTypeChat,
			Creativity: config.CreativityBalanced,
			System:     "You analyze text.",
			User:       "Analyze: {{.text}}",
		},
	}
	return config.NewLLMRegistry(providers, models, prompts)
}

func newTestGateway(registry *config.LLMRegistry, clients map[string]*fakeClient) *Gateway {
	defaults := &config.LLMDefaults{
		ResponseBuffer:       100,
		ParseRetries:         2,
		RequestTimeout:       5 * time.Second,
		RetryInitialInterval: time.Millisecond,
		RetryMaxInterval:     5 * time.Millisecond,
		RetryMaxAttempts:     2,
	}
	g := NewGateway(registry, defaults, tokens.NewCounter(defaults.ResponseBuffer), NewConcurrencyManager(registry), noopLimiter{})
	g.SetClientFactory(func(provider *config.LLMProviderConfig) ChatCompleter {
		for name, p := range registry.Providers() {
			if p == provider {
				return clients[name]
			}
		}
		panic("unknown provider")
	})
	return g
}

type analysisResult struct {
	Answer string `json:"answer"`
}

func TestCallParsesFencedJSON(t *testing.T) {
	primary := &fakeClient{respond: func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		return textResponse("big-chat", "Here you go:\n```json\n{\"answer\": \"42\"}\n```"), nil
	}}
	g := newTestGateway(testRegistry(), map[string]*fakeClient{"primary": primary, "fallback": {}})

	resp, err := Call[analysisResult](context.Background(), g, Request{
		PromptType: config.PromptAnalysis,
		Values:     map[string]string{"text": "what is the answer?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "42", resp.Result.Answer)
	assert.Equal(t, "big-chat", resp.ModelUsed)
	assert.Equal(t, 15, resp.Usage.TotalTokens)

	require.Equal(t, 1, primary.callCount())
	req := primary.call(0)
	assert.Equal(t, "big-chat", req.Model)
	assert.Equal(t, 4096, req.MaxTokens)
	assert.InDelta(t, 0.5, req.Temperature, 0.001)
	assert.Contains(t, req.Messages[1].Content, "what is the answer?")
}

func TestCallRepromptsOnParseFailure(t *testing.T) {
	primary := &fakeClient{}
	primary.respond = func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		if primary.callCount() == 1 {
			return textResponse("big-chat", "I think the answer is probably 42."), nil
		}
		return textResponse("big-chat", `{"answer": "42"}`), nil
	}
	g := newTestGateway(testRegistry(), map[string]*fakeClient{"primary": primary, "fallback": {}})

	resp, err := Call[analysisResult](context.Background(), g, Request{PromptType: config.PromptAnalysis})
	require.NoError(t, err)
	assert.Equal(t, "42", resp.Result.Answer)

	require.Equal(t, 2, primary.callCount())
	retry := primary.call(1)
	assert.Contains(t, retry.Messages[1].Content, "ONLY valid JSON")
}

func TestCallAdvancesPastAuthFailure(t *testing.T) {
	primary := &fakeClient{respond: func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		return openai.ChatCompletionResponse{}, &openai.APIError{HTTPStatusCode: http.StatusUnauthorized, Message: "bad key"}
	}}
	fallback := &fakeClient{respond: func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		return textResponse("small-chat", `{"answer": "fallback"}`), nil
	}}
	g := newTestGateway(testRegistry(), map[string]*fakeClient{"primary": primary, "fallback": fallback})

	resp, err := Call[analysisResult](context.Background(), g, Request{PromptType: config.PromptAnalysis})
	require.NoError(t, err)
	assert.Equal(t, "fallback", resp.Result.Answer)
	assert.Equal(t, "small-chat", resp.ModelUsed)

	// Auth failures are permanent, so the primary is tried exactly once.
	assert.Equal(t, 1, primary.callCount())
}

func TestCallRetriesTransientThenFallsBack(t *testing.T) {
	primary := &fakeClient{respond: func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		return openai.ChatCompletionResponse{}, &openai.APIError{HTTPStatusCode: http.StatusServiceUnavailable, Message: "overloaded"}
	}}
	fallback := &fakeClient{respond: func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		return textResponse("small-chat", `{"answer": "recovered"}`), nil
	}}
	g := newTestGateway(testRegistry(), map[string]*fakeClient{"primary": primary, "fallback": fallback})

	resp, err := Call[analysisResult](context.Background(), g, Request{PromptType: config.PromptAnalysis})
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Result.Answer)

	// RetryMaxAttempts=2: the transient failure is retried once before
	// the candidate is abandoned.
	assert.Equal(t, 2, primary.callCount())
}

// stalledClient never answers; it waits out the per-request deadline.
type stalledClient struct {
	mu    sync.Mutex
	calls int
}

func (s *stalledClient) CreateChatCompletion(ctx context.Context, _ openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	<-ctx.Done()
	return openai.ChatCompletionResponse{}, ctx.Err()
}

func (s *stalledClient) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestCallAdvancesPastStalledProvider(t *testing.T) {
	registry := testRegistry()
	defaults := &config.LLMDefaults{
		ResponseBuffer:       100,
		ParseRetries:         1,
		RequestTimeout:       10 * time.Millisecond,
		RetryInitialInterval: time.Millisecond,
		RetryMaxInterval:     2 * time.Millisecond,
		RetryMaxAttempts:     1,
	}
	g := NewGateway(registry, defaults, tokens.NewCounter(defaults.ResponseBuffer), NewConcurrencyManager(registry), noopLimiter{})

	stalled := &stalledClient{}
	fallback := &fakeClient{respond: func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		return textResponse("small-chat", `{"answer": "alive"}`), nil
	}}
	g.SetClientFactory(func(provider *config.LLMProviderConfig) ChatCompleter {
		if provider.Mode == config.ModeInterruptible {
			return stalled
		}
		return fallback
	})

	// The request deadline expiring must not look like a caller
	// cancellation: the walk has to reach the fallback candidate.
	resp, err := Call[analysisResult](context.Background(), g, Request{PromptType: config.PromptAnalysis})
	require.NoError(t, err)
	assert.Equal(t, "alive", resp.Result.Answer)
	assert.Equal(t, "small-chat", resp.ModelUsed)
	assert.GreaterOrEqual(t, stalled.callCount(), 1)
	assert.Equal(t, 1, fallback.callCount())
}

func TestCallReportsUnavailableWhenExhausted(t *testing.T) {
	fail := func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		return openai.ChatCompletionResponse{}, &openai.APIError{HTTPStatusCode: http.StatusInternalServerError, Message: "boom"}
	}
	g := newTestGateway(testRegistry(), map[string]*fakeClient{
		"primary":  {respond: fail},
		"fallback": {respond: fail},
	})

	_, err := Call[analysisResult](context.Background(), g, Request{PromptType: config.PromptAnalysis})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, ErrProviderTransient)
}

func TestCallParseFailureExhaustsRetriesThenAdvances(t *testing.T) {
	primary := &fakeClient{respond: func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		return textResponse("big-chat", "not json at all"), nil
	}}
	fallback := &fakeClient{respond: func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		return textResponse("small-chat", `{"answer": "ok"}`), nil
	}}
	g := newTestGateway(testRegistry(), map[string]*fakeClient{"primary": primary, "fallback": fallback})

	resp, err := Call[analysisResult](context.Background(), g, Request{PromptType: config.PromptAnalysis})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Result.Answer)

	// 1 initial attempt + ParseRetries=2 corrective attempts.
	assert.Equal(t, 3, primary.callCount())
}

func TestBackgroundReversesCandidateOrder(t *testing.T) {
	var order []string
	var mu sync.Mutex
	record := func(name string) func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		return func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return textResponse(name, `{"answer": "bg"}`), nil
		}
	}
	g := newTestGateway(testRegistry(), map[string]*fakeClient{
		"primary":  {respond: record("big-chat")},
		"fallback": {respond: record("small-chat")},
	})

	resp, err := Call[analysisResult](context.Background(), g, Request{
		PromptType: config.PromptAnalysis,
		Background: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "small-chat", resp.ModelUsed)
	require.Len(t, order, 1)
	assert.Equal(t, "small-chat", order[0])
}

func TestCallUnknownPromptType(t *testing.T) {
	g := newTestGateway(testRegistry(), map[string]*fakeClient{"primary": {}, "fallback": {}})

	_, err := Call[analysisResult](context.Background(), g, Request{PromptType: "NO_SUCH_PROMPT"})
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrPromptNotFound)
}

func TestCallStopsOnContextCancellation(t *testing.T) {
	primary := &fakeClient{respond: func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		return openai.ChatCompletionResponse{}, context.Canceled
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := newTestGateway(testRegistry(), map[string]*fakeClient{"primary": primary, "fallback": {}})

	_, err := Call[analysisResult](ctx, g, Request{PromptType: config.PromptAnalysis})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled) || strings.Contains(err.Error(), "context canceled"))
}
