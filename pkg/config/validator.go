package config

import "fmt"

// validate checks the merged configuration for structural problems before
// any component starts. It fails fast: the first error aborts startup.
func validate(cfg *Config) error {
	providers := cfg.Registry.Providers()
	if len(providers) == 0 {
		return &ValidationError{Component: "llm_providers", ID: "-", Err: ErrMissingRequiredField}
	}

	for name, p := range providers {
		if p.BaseURL == "" {
			return &ValidationError{Component: "llm_provider", ID: name, Field: "base_url", Err: ErrMissingRequiredField}
		}
		if !p.Mode.IsValid() {
			return &ValidationError{Component: "llm_provider", ID: name, Field: "mode",
				Err: fmt.Errorf("%w: %q", ErrInvalidValue, p.Mode)}
		}
		if p.Mode == ModeInterruptible && p.MaxConcurrentRequests < 1 {
			return &ValidationError{Component: "llm_provider", ID: name, Field: "max_concurrent_requests",
				Err: fmt.Errorf("%w: must be >= 1 for INTERRUPTIBLE providers", ErrInvalidValue)}
		}
	}

	if len(cfg.Registry.ModelsOfType(ModelTypeChat)) == 0 {
		return &ValidationError{Component: "models", ID: "-",
			Err: fmt.Errorf("%w: at least one chat model is required", ErrMissingRequiredField)}
	}

	for _, t := range []ModelType{ModelTypeChat, ModelTypeReasoning, ModelTypeEmbedding} {
		for _, m := range cfg.Registry.ModelsOfType(t) {
			if m.Name == "" {
				return &ValidationError{Component: "model", ID: "-", Field: "name", Err: ErrMissingRequiredField}
			}
			if _, ok := providers[m.Provider]; !ok {
				return &ValidationError{Component: "model", ID: m.Name, Field: "provider",
					Err: fmt.Errorf("%w: %q", ErrProviderNotFound, m.Provider)}
			}
			if m.ContextLength < 1 {
				return &ValidationError{Component: "model", ID: m.Name, Field: "context_length",
					Err: fmt.Errorf("%w: must be >= 1", ErrInvalidValue)}
			}
			if m.MaxOutputTokens < 1 {
				return &ValidationError{Component: "model", ID: m.Name, Field: "max_output_tokens",
					Err: fmt.Errorf("%w: must be >= 1", ErrInvalidValue)}
			}
		}
	}

	for _, t := range []PromptType{PromptPlanner, PromptToolReasoning, PromptSynthesis, PromptFinalizer} {
		p, err := cfg.Registry.Prompt(t)
		if err != nil {
			return &ValidationError{Component: "prompt", ID: string(t), Err: err}
		}
		if p.System == "" && p.User == "" {
			return &ValidationError{Component: "prompt", ID: string(t), Err: ErrMissingRequiredField}
		}
		if p.Creativity != "" && !p.Creativity.IsValid() {
			return &ValidationError{Component: "prompt", ID: string(t), Field: "creativity",
				Err: fmt.Errorf("%w: %q", ErrInvalidValue, p.Creativity)}
		}
	}

	if cfg.RateLimit.BurstThreshold > cfg.RateLimit.SustainedThreshold {
		return &ValidationError{Component: "rate_limit", ID: "-", Field: "burst_threshold",
			Err: fmt.Errorf("%w: burst_threshold must be <= sustained_threshold", ErrInvalidValue)}
	}
	if cfg.Executor.StepParallelism < 1 {
		return &ValidationError{Component: "executor", ID: "-", Field: "step_parallelism",
			Err: fmt.Errorf("%w: must be >= 1", ErrInvalidValue)}
	}
	if cfg.VectorStore.HybridAlpha < 0 || cfg.VectorStore.HybridAlpha > 1 {
		return &ValidationError{Component: "vector_store", ID: "-", Field: "hybrid_alpha",
			Err: fmt.Errorf("%w: must be within [0,1]", ErrInvalidValue)}
	}

	return nil
}
