package config

import "time"

// Default returns the built-in configuration. Every section is populated
// so a zero-file deployment still runs.
func Default() *Config {
	return &Config{
		Pipeline:    DefaultPipelineConfig(),
		Correlation: DefaultCorrelationConfig(),
		Retention:   DefaultRetentionConfig(),
		Embedding:   DefaultEmbeddingConfig(),
		LLM:         DefaultLLMConfig(),
		Enrichment:  DefaultEnrichmentConfig(),
	}
}

// DefaultPipelineConfig returns the built-in pipeline defaults.
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		EnableParallelProcessing:       true,
		ParallelOperationTimeout:       30 * time.Second,
		EnableParallelVectorOperations: true,
		EnableSemaphoreThrottling:      true,
		MaxConcurrentTasks:             8,
		SemaphoreTimeout:               5 * time.Second,
		SkipOnThrottleTimeout:          true,
		EnableVectorBatching:           true,
		VectorBatchSize:                16,
		VectorBatchTimeout:             2 * time.Second,
		MergeBufferSize:                256,
		NeighborK:                      8,
		MinCorrelationScoreThreshold:   0.3,
		MinBurstScoreThreshold:         0.3,
		MinAnomalyScoreThreshold:       0.5,
		DrainTimeout:                   10 * time.Second,
		FlushTimeout:                   5 * time.Second,
		BackfillFailureLimit:           50,
		MetricsEmitEvery:               10,
	}
}

// DefaultCorrelationConfig returns the built-in correlation defaults.
func DefaultCorrelationConfig() *CorrelationConfig {
	return &CorrelationConfig{
		EventHistoryRetention: 60 * time.Minute,
		MaxEventsPerKey:       1000,
		BruteForceThreshold:   5,
		BruteForceWindow:      10 * time.Minute,
		LateralMovementHosts:  3,
		LateralMovementWindow: 30 * time.Minute,
		BurstThreshold:        10,
		BurstWindow:           5 * time.Minute,
		ChainWindow:           30 * time.Minute,
		AnomalySmoothing:      0.3,
		AnomalyMinSamples:     20,
	}
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		VectorRetention: 24 * time.Hour,
		SweepInterval:   time.Hour,
	}
}

// DefaultEmbeddingConfig returns the built-in embedding defaults.
// The endpoint is left empty: deployments opt into a remote provider.
func DefaultEmbeddingConfig() *EmbeddingConfig {
	return &EmbeddingConfig{
		Model:          "nomic-embed-text",
		Dimension:      384,
		RequestTimeout: 10 * time.Second,
	}
}

// DefaultLLMConfig returns the built-in LLM defaults. The endpoint is
// left empty: the LLM path is disabled until configured.
func DefaultLLMConfig() *LLMConfig {
	return &LLMConfig{
		Model:          "llama3.1:8b",
		RequestTimeout: 30 * time.Second,
	}
}

// DefaultEnrichmentConfig returns the built-in enrichment defaults.
func DefaultEnrichmentConfig() *EnrichmentConfig {
	return &EnrichmentConfig{
		CacheTTL:      24 * time.Hour,
		LookupTimeout: 2 * time.Second,
	}
}
