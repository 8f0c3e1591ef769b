package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// jervisYAML mirrors the jervis.yaml file structure.
type jervisYAML struct {
	Server      *ServerConfig      `yaml:"server"`
	RateLimit   *RateLimitConfig   `yaml:"rate_limit"`
	Indexing    *IndexingConfig    `yaml:"indexing"`
	Executor    *ExecutorConfig    `yaml:"executor"`
	LLM         *LLMDefaults       `yaml:"llm"`
	VectorStore *VectorStoreConfig `yaml:"vector_store"`
}

// llmYAML mirrors the llm-providers.yaml file structure.
type llmYAML struct {
	LLMProviders map[string]*LLMProviderConfig `yaml:"llm_providers"`
	Models       []ModelConfig                 `yaml:"models"`
	Prompts      map[PromptType]*PromptConfig  `yaml:"prompts"`
}

// Initialize loads, merges, validates, and returns ready-to-use configuration.
//
// Steps performed:
//  1. Read jervis.yaml and llm-providers.yaml from configDir
//  2. Expand environment variables ({{.VAR}} syntax)
//  3. Parse YAML into structs
//  4. Merge built-in defaults into missing fields
//  5. Overlay built-in prompt templates with user-defined ones
//  6. Validate everything
func Initialize(_ context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"providers", stats.Providers,
		"models", stats.Models,
		"prompts", stats.Prompts)
	return cfg, nil
}

func load(configDir string) (*Config, error) {
	system, err := loadSystemFile(filepath.Join(configDir, "jervis.yaml"))
	if err != nil {
		return nil, err
	}

	llm, err := loadLLMFile(filepath.Join(configDir, "llm-providers.yaml"))
	if err != nil {
		return nil, err
	}

	// Built-in prompts first; user definitions override per prompt type.
	prompts := builtinPrompts()
	for t, p := range llm.Prompts {
		prompts[t] = p
	}

	cfg := &Config{
		Server:      system.Server,
		RateLimit:   system.RateLimit,
		Indexing:    system.Indexing,
		Executor:    system.Executor,
		LLM:         system.LLM,
		VectorStore: system.VectorStore,
		Registry:    NewLLMRegistry(llm.LLMProviders, llm.Models, prompts),
	}
	if err := applyDefaults(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadSystemFile reads and parses jervis.yaml. A missing file is not an
// error: every section has built-in defaults.
func loadSystemFile(path string) (*jervisYAML, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("System configuration not found, using built-in defaults", "path", path)
			return &jervisYAML{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var out jervisYAML
	if err := yaml.Unmarshal(ExpandEnv(data), &out); err != nil {
		return nil, fmt.Errorf("%w in %s: %w", ErrInvalidYAML, path, err)
	}
	return &out, nil
}

// loadLLMFile reads and parses llm-providers.yaml. This file is required:
// without providers and models the gateway cannot run.
func loadLLMFile(path string) (*llmYAML, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var out llmYAML
	if err := yaml.Unmarshal(ExpandEnv(data), &out); err != nil {
		return nil, fmt.Errorf("%w in %s: %w", ErrInvalidYAML, path, err)
	}
	return &out, nil
}

// applyDefaults fills unset sections and fields with the built-in defaults.
func applyDefaults(cfg *Config) error {
	if cfg.Server == nil {
		cfg.Server = &ServerConfig{}
	}
	if cfg.RateLimit == nil {
		cfg.RateLimit = &RateLimitConfig{}
	}
	if cfg.Indexing == nil {
		cfg.Indexing = &IndexingConfig{}
	}
	if cfg.Executor == nil {
		cfg.Executor = &ExecutorConfig{}
	}
	if cfg.LLM == nil {
		cfg.LLM = &LLMDefaults{}
	}
	if cfg.VectorStore == nil {
		cfg.VectorStore = &VectorStoreConfig{}
	}

	merges := []struct {
		dst any
		src any
	}{
		{cfg.Server, DefaultServerConfig()},
		{cfg.RateLimit, DefaultRateLimitConfig()},
		{cfg.Indexing, DefaultIndexingConfig()},
		{cfg.Executor, DefaultExecutorConfig()},
		{cfg.LLM, DefaultLLMDefaults()},
		{cfg.VectorStore, DefaultVectorStoreConfig()},
	}
	for _, m := range merges {
		if err := mergo.Merge(m.dst, m.src); err != nil {
			return fmt.Errorf("failed to merge defaults: %w", err)
		}
	}
	return nil
}
