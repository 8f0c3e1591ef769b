package config

// BlockingMode describes how a provider interacts with the process-wide
// concurrency manager.
type BlockingMode string

// Provider blocking modes.
const (
	// ModeInterruptible providers (GPU-bound, remote APIs) go through the
	// per-provider semaphore.
	ModeInterruptible BlockingMode = "INTERRUPTIBLE"
	// ModeNonblocking providers (CPU-bound local models) bypass the
	// semaphore entirely.
	ModeNonblocking BlockingMode = "NONBLOCKING"
)

// IsValid reports whether the mode is one of the defined values.
func (m BlockingMode) IsValid() bool {
	return m == ModeInterruptible || m == ModeNonblocking
}

// ModelType partitions the model catalog by purpose.
type ModelType string

// Model types.
const (
	ModelTypeChat      ModelType = "chat"
	ModelTypeReasoning ModelType = "reasoning"
	ModelTypeEmbedding ModelType = "embedding"
)

// IsValid reports whether the model type is one of the defined values.
func (t ModelType) IsValid() bool {
	switch t {
	case ModelTypeChat, ModelTypeReasoning, ModelTypeEmbedding:
		return true
	}
	return false
}

// CreativityLevel is a named bundle of (temperature, top_p) used to
// parameterize an LLM call.
type CreativityLevel string

// Creativity levels.
const (
	CreativityStrict   CreativityLevel = "strict"
	CreativityBalanced CreativityLevel = "balanced"
	CreativityCreative CreativityLevel = "creative"
)

// IsValid reports whether the level is one of the defined values.
func (c CreativityLevel) IsValid() bool {
	switch c {
	case CreativityStrict, CreativityBalanced, CreativityCreative:
		return true
	}
	return false
}

// Sampling returns the (temperature, top_p) pair for the level. Unknown
// levels get the balanced defaults.
func (c CreativityLevel) Sampling() (temperature, topP float32) {
	switch c {
	case CreativityStrict:
		return 0.1, 0.9
	case CreativityCreative:
		return 0.9, 1.0
	default:
		return 0.5, 0.95
	}
}

// PromptType names a prompt template in the registry.
type PromptType string

// Built-in prompt types.
const (
	PromptPlanner           PromptType = "PLANNER"
	PromptToolReasoning     PromptType = "TOOL_REASONING"
	PromptSynthesis         PromptType = "SYNTHESIS"
	PromptFinalizer         PromptType = "FINALIZER"
	PromptRecoveryReasoning PromptType = "RECOVERY_REASONING"
	PromptAnalysis          PromptType = "ANALYSIS"
	PromptRequirement       PromptType = "REQUIREMENT"
	PromptTranslation       PromptType = "TRANSLATION"
)
