// Package config defines the materialized Castellan configuration object.
// The detection core never reads files or environment variables itself; it
// receives a *Config built by Initialize (or assembled directly in tests).
package config

import "time"

// Config is the umbrella configuration object passed to the pipeline at
// construction. All sections are non-nil after Initialize or Default.
type Config struct {
	Pipeline    *PipelineConfig    `yaml:"pipeline"`
	Correlation *CorrelationConfig `yaml:"correlation"`
	Retention   *RetentionConfig   `yaml:"retention"`
	Embedding   *EmbeddingConfig   `yaml:"embedding"`
	LLM         *LLMConfig         `yaml:"llm"`
	Enrichment  *EnrichmentConfig  `yaml:"enrichment"`
	Ignore      []IgnoreRule       `yaml:"ignore_patterns"`
}

// PipelineConfig controls the orchestrator: stage parallelism, semaphore
// throttling, vector batching, and drop thresholds.
type PipelineConfig struct {
	// EnableParallelProcessing toggles Stage A scatter/gather. When
	// false the enrichment/detector/text-prep sub-stages run serially.
	EnableParallelProcessing bool `yaml:"enable_parallel_processing"`

	// ParallelOperationTimeout is the shared deadline for Stage A and
	// Stage B work on a single event.
	ParallelOperationTimeout time.Duration `yaml:"parallel_operation_timeout"`

	// EnableParallelVectorOperations runs the Stage B upsert and k-NN
	// search concurrently instead of sequentially.
	EnableParallelVectorOperations bool `yaml:"enable_parallel_vector_operations"`

	// Semaphore throttling (end-to-end per-event concurrency bound).
	EnableSemaphoreThrottling bool          `yaml:"enable_semaphore_throttling"`
	MaxConcurrentTasks        int           `yaml:"max_concurrent_tasks"`
	SemaphoreTimeout          time.Duration `yaml:"semaphore_timeout"`

	// SkipOnThrottleTimeout skips the event quietly on acquisition
	// timeout; when false the event is dropped with a warning.
	SkipOnThrottleTimeout bool `yaml:"skip_on_throttle_timeout"`

	// Vector upsert batching.
	EnableVectorBatching bool          `yaml:"enable_vector_batching"`
	VectorBatchSize      int           `yaml:"vector_batch_size"`
	VectorBatchTimeout   time.Duration `yaml:"vector_batch_timeout"`

	// MergeBufferSize bounds the collector merge channel; full channel
	// means collectors block (back-pressure).
	MergeBufferSize int `yaml:"merge_buffer_size"`

	// NeighborK is the k-NN fan-out for the LLM context.
	NeighborK int `yaml:"neighbor_k"`

	// Events that are neither deterministic, correlation-based, nor
	// enhanced are dropped when all three scores sit below these floors.
	MinCorrelationScoreThreshold float64 `yaml:"min_correlation_score_threshold"`
	MinBurstScoreThreshold       float64 `yaml:"min_burst_score_threshold"`
	MinAnomalyScoreThreshold     float64 `yaml:"min_anomaly_score_threshold"`

	// DrainTimeout bounds Stop's wait for in-flight tasks; the batch
	// buffer force-flush gets its own FlushTimeout cap afterwards.
	DrainTimeout time.Duration `yaml:"drain_timeout"`
	FlushTimeout time.Duration `yaml:"flush_timeout"`

	// BackfillFailureLimit aborts historical backfill after this many
	// consecutive store failures; the pipeline continues online.
	BackfillFailureLimit int `yaml:"backfill_failure_limit"`

	// MetricsEmitEvery controls how often (in processed events) the
	// orchestrator logs a metrics line.
	MetricsEmitEvery int `yaml:"metrics_emit_every"`
}

// CorrelationConfig controls the sliding-window correlation engine.
type CorrelationConfig struct {
	// EventHistoryRetention bounds how long events stay in a window.
	EventHistoryRetention time.Duration `yaml:"event_history_retention"`

	// MaxEventsPerKey caps each per-key queue; oldest entries are
	// evicted first.
	MaxEventsPerKey int `yaml:"max_events_per_correlation_key"`

	// Brute force: >= BruteForceThreshold failures on (host,user)
	// within BruteForceWindow.
	BruteForceThreshold int           `yaml:"brute_force_threshold"`
	BruteForceWindow    time.Duration `yaml:"brute_force_window"`

	// Lateral movement: >= LateralMovementHosts distinct hosts against
	// one destination within LateralMovementWindow.
	LateralMovementHosts  int           `yaml:"lateral_movement_hosts"`
	LateralMovementWindow time.Duration `yaml:"lateral_movement_window"`

	// Temporal burst: >= BurstThreshold same-type events on one host
	// within BurstWindow.
	BurstThreshold int           `yaml:"burst_threshold"`
	BurstWindow    time.Duration `yaml:"burst_window"`

	// Attack chain (privilege escalation) window.
	ChainWindow time.Duration `yaml:"chain_window"`

	// Anomaly baseline: EWMA smoothing factor and the minimum sample
	// count before a score is emitted.
	AnomalySmoothing  float64 `yaml:"anomaly_smoothing"`
	AnomalyMinSamples int     `yaml:"anomaly_min_samples"`
}

// RetentionConfig controls the vector store retention sweep.
type RetentionConfig struct {
	// VectorRetention is the horizon past which vector records are
	// removed. The 24h coverage probe uses the same window.
	VectorRetention time.Duration `yaml:"vector_retention"`

	// SweepInterval is how often the background sweep runs.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	// Endpoint is the Ollama-style embeddings URL. Empty selects the
	// deterministic local embedder.
	Endpoint       string        `yaml:"endpoint"`
	Model          string        `yaml:"model"`
	Dimension      int           `yaml:"dimension"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// LLMConfig configures the analysis LLM client.
type LLMConfig struct {
	// Endpoint is an OpenAI-compatible chat-completions URL. Empty
	// disables the LLM path entirely.
	Endpoint       string        `yaml:"endpoint"`
	Model          string        `yaml:"model"`
	APIKeyEnv      string        `yaml:"api_key_env"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// EnrichmentConfig configures IP enrichment lookups and caching.
type EnrichmentConfig struct {
	CacheTTL      time.Duration `yaml:"cache_ttl"`
	LookupTimeout time.Duration `yaml:"lookup_timeout"`

	// RedisAddr selects the Redis cache backend when set; empty keeps
	// the in-process TTL cache.
	RedisAddr string `yaml:"redis_addr"`
}

// IgnoreRule suppresses fused events that match every non-empty field.
// Channel and UserPattern accept path.Match-style globs.
type IgnoreRule struct {
	EventType      string `yaml:"event_type,omitempty"`
	MitreTechnique string `yaml:"mitre_technique,omitempty"`
	Channel        string `yaml:"channel,omitempty"`
	EventID        *int   `yaml:"event_id,omitempty"`
	UserPattern    string `yaml:"user_pattern,omitempty"`
}
