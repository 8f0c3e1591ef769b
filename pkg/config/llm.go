package config

import (
	"fmt"
	"os"
	"sync"
)

// LLMProviderConfig defines one OpenAI-compatible provider endpoint.
type LLMProviderConfig struct {
	// BaseURL of the chat-completions endpoint (required).
	BaseURL string `yaml:"base_url"`

	// APIKeyEnv names the environment variable holding the bearer token.
	// Empty means the endpoint is unauthenticated (local model).
	APIKeyEnv string `yaml:"api_key_env,omitempty"`

	// Mode controls semaphore participation (INTERRUPTIBLE or NONBLOCKING).
	Mode BlockingMode `yaml:"mode"`

	// MaxConcurrentRequests caps in-flight requests for INTERRUPTIBLE
	// providers.
	MaxConcurrentRequests int `yaml:"max_concurrent_requests"`
}

// APIKey resolves the bearer token from the environment.
func (p *LLMProviderConfig) APIKey() string {
	if p.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(p.APIKeyEnv)
}

// ModelConfig describes one model candidate. Models are kept in file order;
// the candidate selector preserves that order.
type ModelConfig struct {
	// Name is the provider-side model identifier (required).
	Name string `yaml:"name"`

	// Provider references a key in llm_providers (required).
	Provider string `yaml:"provider"`

	// Type partitions the catalog (chat, reasoning, embedding).
	Type ModelType `yaml:"type"`

	// Quick marks the model as part of the fast tier.
	Quick bool `yaml:"quick,omitempty"`

	// ContextLength is the declared context window in tokens.
	ContextLength int `yaml:"context_length"`

	// MaxOutputTokens is the output budget passed as max_tokens.
	MaxOutputTokens int `yaml:"max_output_tokens"`
}

// PromptConfig is a prompt template plus its model-parameter defaults.
type PromptConfig struct {
	// ModelType selects the candidate pool for calls with this prompt.
	ModelType ModelType `yaml:"model_type"`

	// Creativity resolves to (temperature, top_p).
	Creativity CreativityLevel `yaml:"creativity"`

	// System and User are templates with {{.key}} placeholders substituted
	// from the call's mapping values.
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

// LLMRegistry stores providers, models, and prompts with thread-safe access.
type LLMRegistry struct {
	mu        sync.RWMutex
	providers map[string]*LLMProviderConfig
	models    []ModelConfig
	prompts   map[PromptType]*PromptConfig
}

// NewLLMRegistry builds a registry from parsed configuration. Defensive
// copies prevent external mutation.
func NewLLMRegistry(providers map[string]*LLMProviderConfig, models []ModelConfig, prompts map[PromptType]*PromptConfig) *LLMRegistry {
	ps := make(map[string]*LLMProviderConfig, len(providers))
	for k, v := range providers {
		ps[k] = v
	}
	pr := make(map[PromptType]*PromptConfig, len(prompts))
	for k, v := range prompts {
		pr[k] = v
	}
	return &LLMRegistry{
		providers: ps,
		models:    append([]ModelConfig(nil), models...),
		prompts:   pr,
	}
}

// Provider retrieves a provider configuration by name.
func (r *LLMRegistry) Provider(name string) (*LLMProviderConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	return p, nil
}

// Providers returns a copy of the provider map.
func (r *LLMRegistry) Providers() map[string]*LLMProviderConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*LLMProviderConfig, len(r.providers))
	for k, v := range r.providers {
		out[k] = v
	}
	return out
}

// ModelsOfType returns models of the given type in configuration order.
func (r *LLMRegistry) ModelsOfType(t ModelType) []ModelConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []ModelConfig
	for _, m := range r.models {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

// Prompt retrieves a prompt template by type.
func (r *LLMRegistry) Prompt(t PromptType) (*PromptConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.prompts[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPromptNotFound, t)
	}
	return p, nil
}

// Stats returns registry counts for startup logging.
func (r *LLMRegistry) Stats() (providers, models, prompts int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers), len(r.models), len(r.prompts)
}
