package llm

import (
	"fmt"

	"github.com/jervis-ai/jervis/pkg/config"
)

// Selector picks the ordered sequence of model candidates for a call.
type Selector struct {
	registry *config.LLMRegistry
}

// NewSelector creates a Selector over the model catalog.
func NewSelector(registry *config.LLMRegistry) *Selector {
	return &Selector{registry: registry}
}

// Candidates returns models of the requested type that can serve a request
// of estimatedTokens, in configuration order. When quickOnly is set, only
// models flagged quick are considered. If no model has enough declared
// context, the single model with the largest context is returned as a
// best-effort fallback, so the result is never empty unless no models of the
// type exist at all.
func (s *Selector) Candidates(t config.ModelType, quickOnly bool, estimatedTokens int) ([]config.ModelConfig, error) {
	pool := s.registry.ModelsOfType(t)
	if len(pool) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoModels, t)
	}

	if quickOnly {
		quick := pool[:0:0]
		for _, m := range pool {
			if m.Quick {
				quick = append(quick, m)
			}
		}
		// No quick models configured: fall back to the full pool rather
		// than failing the call.
		if len(quick) > 0 {
			pool = quick
		}
	}

	var fits []config.ModelConfig
	largest := pool[0]
	for _, m := range pool {
		if m.ContextLength >= estimatedTokens {
			fits = append(fits, m)
		}
		if m.ContextLength > largest.ContextLength {
			largest = m
		}
	}
	if len(fits) > 0 {
		return fits, nil
	}
	return []config.ModelConfig{largest}, nil
}
