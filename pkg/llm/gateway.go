// Package llm is the gateway to OpenAI-compatible chat-completion providers.
// It assembles prompts from the template registry, selects model candidates
// by type and token budget, enforces provider concurrency and domain rate
// limits, and parses typed JSON responses with corrective retries.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"

	"github.com/jervis-ai/jervis/pkg/config"
	"github.com/jervis-ai/jervis/pkg/tokens"
)

// correctiveHint is appended to the user prompt after a parse failure.
const correctiveHint = "\n\nYour previous answer was not valid JSON conforming to the requested schema. Return ONLY valid JSON conforming to the schema, with no surrounding text."

// Usage mirrors the provider's token accounting.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// ParsedResponse carries a typed result plus call metadata.
type ParsedResponse[T any] struct {
	Result       T
	ModelUsed    string
	FinishReason string
	Usage        Usage
}

// Request describes one gateway call.
type Request struct {
	PromptType config.PromptType
	// Values substitute {{.key}} placeholders in the prompt templates.
	Values map[string]string
	// Quick biases candidate selection toward the fast model tier.
	Quick bool
	// Background permits longer wall-clock in exchange for lower priority:
	// candidates are tried cheapest-last-first and provider permits are not
	// held past the configured soft timeout.
	Background    bool
	CorrelationID string
}

// DomainLimiter is the subset of the rate limiter the gateway needs.
type DomainLimiter interface {
	Acquire(ctx context.Context, rawURL string) error
}

// ChatCompleter captures the slice of the go-openai client the gateway uses.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Gateway routes prompt-typed calls to provider endpoints.
type Gateway struct {
	registry    *config.LLMRegistry
	defaults    *config.LLMDefaults
	counter     *tokens.Counter
	selector    *Selector
	concurrency *ConcurrencyManager
	limiter     DomainLimiter

	mu      sync.Mutex
	clients map[string]ChatCompleter

	// newClient builds the provider client; replaceable in tests.
	newClient func(provider *config.LLMProviderConfig) ChatCompleter
}

// NewGateway wires the gateway from its collaborators.
func NewGateway(registry *config.LLMRegistry, defaults *config.LLMDefaults, counter *tokens.Counter, concurrency *ConcurrencyManager, limiter DomainLimiter) *Gateway {
	return &Gateway{
		registry:    registry,
		defaults:    defaults,
		counter:     counter,
		selector:    NewSelector(registry),
		concurrency: concurrency,
		limiter:     limiter,
		clients:     make(map[string]ChatCompleter),
		newClient:   newOpenAIClient,
	}
}

func newOpenAIClient(provider *config.LLMProviderConfig) ChatCompleter {
	cfg := openai.DefaultConfig(provider.APIKey())
	cfg.BaseURL = provider.BaseURL
	return openai.NewClientWithConfig(cfg)
}

// Call renders the prompt, walks the candidate sequence, and parses the
// response into T. Parse failures retry the same candidate with a corrective
// hint; transport failures advance to the next candidate. When every
// candidate fails the call surfaces ErrUnavailable.
func Call[T any](ctx context.Context, g *Gateway, req Request) (*ParsedResponse[T], error) {
	prompt, err := g.registry.Prompt(req.PromptType)
	if err != nil {
		return nil, err
	}

	systemPrompt, err := renderTemplate("system", prompt.System, req.Values)
	if err != nil {
		return nil, err
	}
	userPrompt, err := renderTemplate("user", prompt.User, req.Values)
	if err != nil {
		return nil, err
	}

	estimate := g.counter.EstimateTotalRequest(systemPrompt, userPrompt)
	candidates, err := g.selector.Candidates(prompt.ModelType, req.Quick, estimate)
	if err != nil {
		return nil, err
	}
	if req.Background {
		candidates = reversed(candidates)
	}

	log := slog.With("prompt_type", req.PromptType, "correlation_id", req.CorrelationID)

	var lastErr error
	for _, candidate := range candidates {
		parsed, err := callCandidate[T](ctx, g, prompt, candidate, systemPrompt, userPrompt, req, log)
		if err == nil {
			return parsed, nil
		}
		// Stop the walk only when the caller's own context is gone; a
		// candidate-level timeout surfaces as a transient error and the walk
		// advances past it.
		if ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
		log.Warn("Model candidate failed, advancing",
			"model", candidate.Name,
			"provider", candidate.Provider,
			"error", err)
	}
	return nil, fmt.Errorf("%w: %d candidates exhausted: %w", ErrUnavailable, len(candidates), lastErr)
}

// callCandidate performs the provider round trips for one candidate,
// including parse retries with the corrective hint.
func callCandidate[T any](
	ctx context.Context,
	g *Gateway,
	prompt *config.PromptConfig,
	candidate config.ModelConfig,
	systemPrompt, userPrompt string,
	req Request,
	log *slog.Logger,
) (*ParsedResponse[T], error) {
	temperature, topP := prompt.Creativity.Sampling()

	attempts := 1 + g.defaults.ParseRetries
	currentUser := userPrompt
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		resp, err := g.invoke(ctx, candidate, req.Background, openai.ChatCompletionRequest{
			Model: candidate.Name,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: currentUser},
			},
			Temperature: temperature,
			TopP:        topP,
			MaxTokens:   candidate.MaxOutputTokens,
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("%w: empty choices from %s", ErrProviderTransient, candidate.Name)
		}

		choice := resp.Choices[0]
		var result T
		if err := json.Unmarshal([]byte(extractJSON(choice.Message.Content)), &result); err != nil {
			lastErr = fmt.Errorf("%w: %w", ErrParseFailure, err)
			log.Warn("Parse failure, re-prompting with corrective hint",
				"model", candidate.Name, "attempt", attempt+1)
			currentUser = userPrompt + correctiveHint + "\nParse error: " + err.Error()
			continue
		}

		return &ParsedResponse[T]{
			Result:       result,
			ModelUsed:    resp.Model,
			FinishReason: string(choice.FinishReason),
			Usage: Usage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			},
		}, nil
	}
	return nil, lastErr
}

// invoke performs one provider request under the provider permit and domain
// rate limit, retrying transient failures with exponential backoff.
func (g *Gateway) invoke(ctx context.Context, candidate config.ModelConfig, background bool, chatReq openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	provider, err := g.registry.Provider(candidate.Provider)
	if err != nil {
		return openai.ChatCompletionResponse{}, err
	}
	client := g.clientFor(candidate.Provider, provider)

	var resp openai.ChatCompletionResponse
	err = g.concurrency.WithPermit(ctx, candidate.Provider, func(permitCtx context.Context) error {
		// Background calls must not occupy a permit indefinitely.
		if background && g.defaults.BackgroundSoftTimeout > 0 {
			var cancel context.CancelFunc
			permitCtx, cancel = context.WithTimeout(permitCtx, g.defaults.BackgroundSoftTimeout)
			defer cancel()
		}

		if err := g.limiter.Acquire(permitCtx, provider.BaseURL); err != nil {
			return err
		}

		operation := func() error {
			reqCtx := permitCtx
			if g.defaults.RequestTimeout > 0 {
				var cancel context.CancelFunc
				reqCtx, cancel = context.WithTimeout(permitCtx, g.defaults.RequestTimeout)
				defer cancel()
			}
			r, callErr := client.CreateChatCompletion(reqCtx, chatReq)
			if callErr != nil {
				// A request-timeout expiry while the caller is still live is
				// a slow provider, not a cancellation; it must stay
				// retryable so the candidate walk can advance.
				if errors.Is(callErr, context.DeadlineExceeded) && permitCtx.Err() == nil {
					return fmt.Errorf("%w: request timed out: %w", ErrProviderTransient, callErr)
				}
				return classifyProviderError(callErr)
			}
			resp = r
			return nil
		}

		policy := backoff.NewExponentialBackOff()
		policy.InitialInterval = g.defaults.RetryInitialInterval
		policy.MaxInterval = g.defaults.RetryMaxInterval
		policy.Multiplier = 2
		retries := uint64(0)
		if g.defaults.RetryMaxAttempts > 1 {
			retries = uint64(g.defaults.RetryMaxAttempts - 1)
		}
		return backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, retries), permitCtx))
	})
	return resp, err
}

// classifyProviderError maps provider failures onto the gateway error kinds.
// Auth failures are permanent; network errors, 429, and 5xx are transient.
func classifyProviderError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusUnauthorized || apiErr.HTTPStatusCode == http.StatusForbidden:
			return backoff.Permanent(fmt.Errorf("%w: %w", ErrProviderAuth, err))
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500:
			return fmt.Errorf("%w: %w", ErrProviderTransient, err)
		default:
			return backoff.Permanent(err)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return backoff.Permanent(err)
	}
	// Anything else (connection refused, timeouts at the transport level)
	// counts as transient.
	return fmt.Errorf("%w: %w", ErrProviderTransient, err)
}

func (g *Gateway) clientFor(name string, provider *config.LLMProviderConfig) ChatCompleter {
	g.mu.Lock()
	defer g.mu.Unlock()
	client, ok := g.clients[name]
	if !ok {
		client = g.newClient(provider)
		g.clients[name] = client
	}
	return client
}

func reversed(models []config.ModelConfig) []config.ModelConfig {
	out := make([]config.ModelConfig, len(models))
	for i, m := range models {
		out[len(models)-1-i] = m
	}
	return out
}

// SetClientFactory overrides provider client construction. Test seam.
func (g *Gateway) SetClientFactory(factory func(provider *config.LLMProviderConfig) ChatCompleter) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.newClient = factory
	g.clients = make(map[string]ChatCompleter)
}

// EstimateTokens exposes the gateway's token estimator for callers sizing
// their own content (tool summaries, RAG budgets).
func (g *Gateway) EstimateTokens(text string) int {
	return g.counter.CountTokens(text)
}
