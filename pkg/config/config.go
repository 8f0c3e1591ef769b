// Package config loads and validates the Jervis YAML configuration:
// LLM providers, model catalog, prompt templates, and the tunables for the
// rate limiter, indexing machinery, and plan executor.
package config

// Config is the fully loaded, validated configuration.
type Config struct {
	Server      *ServerConfig
	RateLimit   *RateLimitConfig
	Indexing    *IndexingConfig
	Executor    *ExecutorConfig
	LLM         *LLMDefaults
	VectorStore *VectorStoreConfig
	Registry    *LLMRegistry
}

// Stats summarizes registry sizes for startup logging.
type Stats struct {
	Providers int
	Models    int
	Prompts   int
}

// Stats returns the current registry counts.
func (c *Config) Stats() Stats {
	providers, models, prompts := c.Registry.Stats()
	return Stats{Providers: providers, Models: models, Prompts: prompts}
}
