package config

import "time"

// ServerConfig holds HTTP/WebSocket surface settings.
type ServerConfig struct {
	// AllowedWSOrigins is the origin allowlist for WebSocket upgrades.
	// Empty means same-origin only.
	AllowedWSOrigins []string `yaml:"allowed_ws_origins,omitempty"`

	// WSWriteTimeout bounds a single WebSocket frame write.
	WSWriteTimeout time.Duration `yaml:"ws_write_timeout,omitempty"`
}

// RateLimitConfig controls the adaptive per-domain limiter.
type RateLimitConfig struct {
	// BurstThreshold (T1) and SustainedThreshold (T2) are the item counts
	// at which a domain moves from burst to normal to sustained pacing.
	BurstThreshold     int `yaml:"burst_threshold"`
	SustainedThreshold int `yaml:"sustained_threshold"`

	// Per-phase unconditional spacing delays.
	BurstDelay     time.Duration `yaml:"burst_delay"`
	NormalDelay    time.Duration `yaml:"normal_delay"`
	SustainedDelay time.Duration `yaml:"sustained_delay"`

	// Per-phase bucket capacities in permits per second.
	BurstPerSecond     int `yaml:"burst_per_second"`
	NormalPerSecond    int `yaml:"normal_per_second"`
	SustainedPerSecond int `yaml:"sustained_per_second"`

	// InternalPrefix marks hostnames that are never rate limited
	// (in addition to loopback and RFC1918 addresses).
	InternalPrefix string `yaml:"internal_prefix,omitempty"`
}

// IndexingConfig controls the polling and indexing machinery.
type IndexingConfig struct {
	// PollDelay is the sleep between re-queries when the continuous NEW-item
	// flow runs dry.
	PollDelay time.Duration `yaml:"poll_delay"`

	// PageSize bounds one repository query of the continuous flow.
	PageSize int `yaml:"page_size"`

	// MaxItemsPerPoll bounds remote enumeration in a single polling run.
	MaxItemsPerPoll int `yaml:"max_items_per_poll"`

	// PollingInterval is the cadence of the polling scheduler.
	PollingInterval time.Duration `yaml:"polling_interval"`

	// StaleIndexingTimeout is the bounded window after which an item stuck
	// in INDEXING is reset to NEW.
	StaleIndexingTimeout time.Duration `yaml:"stale_indexing_timeout"`

	// OrphanScanInterval is how often the stale-INDEXING scan runs.
	OrphanScanInterval time.Duration `yaml:"orphan_scan_interval"`

	// ConsumerCount is the number of indexer goroutines per source kind.
	ConsumerCount int `yaml:"consumer_count"`
}

// ExecutorConfig controls the plan executor pool.
type ExecutorConfig struct {
	// WorkerCount is the number of plan-claiming workers.
	WorkerCount int `yaml:"worker_count"`

	// StepParallelism caps concurrently running steps per plan.
	StepParallelism int `yaml:"step_parallelism"`

	// PollInterval is the base interval for checking queued plans, with
	// PollIntervalJitter of random spread to avoid thundering herds.
	PollInterval       time.Duration `yaml:"poll_interval"`
	PollIntervalJitter time.Duration `yaml:"poll_interval_jitter"`

	// PlanTimeout bounds a whole plan execution.
	PlanTimeout time.Duration `yaml:"plan_timeout"`

	// MaxRecoveryAttempts is the consecutive-recovery budget before the
	// plan transitions to FAILED.
	MaxRecoveryAttempts int `yaml:"max_recovery_attempts"`

	// GracefulShutdownTimeout is the max wait for active plans on shutdown.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`
}

// LLMDefaults holds gateway-wide tunables.
type LLMDefaults struct {
	// ResponseBuffer is added to prompt token counts when estimating a
	// request's total budget.
	ResponseBuffer int `yaml:"response_buffer"`

	// ParseRetries is the per-candidate budget for re-prompting after a
	// non-conforming JSON response.
	ParseRetries int `yaml:"parse_retries"`

	// RequestTimeout bounds one provider round trip.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// BackgroundSoftTimeout caps how long a background-mode call may hold a
	// provider permit.
	BackgroundSoftTimeout time.Duration `yaml:"background_soft_timeout"`

	// Transient-failure backoff window (exponential, factor 2).
	RetryInitialInterval time.Duration `yaml:"retry_initial_interval"`
	RetryMaxInterval     time.Duration `yaml:"retry_max_interval"`
	RetryMaxAttempts     int           `yaml:"retry_max_attempts"`
}

// VectorStoreConfig points at the external hybrid search service.
type VectorStoreConfig struct {
	BaseURL     string        `yaml:"base_url"`
	HybridAlpha float64       `yaml:"hybrid_alpha"`
	MinScore    float64       `yaml:"min_score"`
	Limit       int           `yaml:"limit"`
	Timeout     time.Duration `yaml:"timeout"`
}
