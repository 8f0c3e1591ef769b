package config

import "time"

// DefaultServerConfig returns the built-in server defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		WSWriteTimeout: 10 * time.Second,
	}
}

// DefaultRateLimitConfig returns the built-in rate limiter defaults.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		BurstThreshold:     100,
		SustainedThreshold: 500,
		BurstDelay:         0,
		NormalDelay:        100 * time.Millisecond,
		SustainedDelay:     500 * time.Millisecond,
		BurstPerSecond:     100,
		NormalPerSecond:    10,
		SustainedPerSecond: 1,
	}
}

// DefaultIndexingConfig returns the built-in indexing defaults.
func DefaultIndexingConfig() *IndexingConfig {
	return &IndexingConfig{
		PollDelay:            30 * time.Second,
		PageSize:             100,
		MaxItemsPerPoll:      500,
		PollingInterval:      5 * time.Minute,
		StaleIndexingTimeout: 15 * time.Minute,
		OrphanScanInterval:   5 * time.Minute,
		ConsumerCount:        2,
	}
}

// DefaultExecutorConfig returns the built-in executor defaults.
func DefaultExecutorConfig() *ExecutorConfig {
	return &ExecutorConfig{
		WorkerCount:             3,
		StepParallelism:         4,
		PollInterval:            1 * time.Second,
		PollIntervalJitter:      500 * time.Millisecond,
		PlanTimeout:             30 * time.Minute,
		MaxRecoveryAttempts:     3,
		GracefulShutdownTimeout: 30 * time.Minute,
	}
}

// DefaultLLMDefaults returns the built-in gateway defaults.
func DefaultLLMDefaults() *LLMDefaults {
	return &LLMDefaults{
		ResponseBuffer:        500,
		ParseRetries:          2,
		RequestTimeout:        120 * time.Second,
		BackgroundSoftTimeout: 60 * time.Second,
		RetryInitialInterval:  100 * time.Millisecond,
		RetryMaxInterval:      30 * time.Second,
		RetryMaxAttempts:      5,
	}
}

// DefaultVectorStoreConfig returns the built-in vector store defaults.
func DefaultVectorStoreConfig() *VectorStoreConfig {
	return &VectorStoreConfig{
		HybridAlpha: 0.75,
		MinScore:    0.5,
		Limit:       10,
		Timeout:     30 * time.Second,
	}
}
