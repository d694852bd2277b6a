package config

import "fmt"

// Validate performs comprehensive validation (fail-fast, stops at the
// first error). It is called by Initialize and by the pipeline's
// Reconfigure entry point before a new snapshot is applied.
func (c *Config) Validate() error {
	if err := c.validatePipeline(); err != nil {
		return fmt.Errorf("pipeline validation failed: %w", err)
	}
	if err := c.validateCorrelation(); err != nil {
		return fmt.Errorf("correlation validation failed: %w", err)
	}
	if err := c.validateRetention(); err != nil {
		return fmt.Errorf("retention validation failed: %w", err)
	}
	if err := c.validateEmbedding(); err != nil {
		return fmt.Errorf("embedding validation failed: %w", err)
	}
	if err := c.validateIgnoreRules(); err != nil {
		return fmt.Errorf("ignore pattern validation failed: %w", err)
	}
	return nil
}

func (c *Config) validatePipeline() error {
	p := c.Pipeline
	if p == nil {
		return NewValidationError("pipeline", "", fmt.Errorf("section required"))
	}
	if p.MaxConcurrentTasks < 1 {
		return NewValidationError("pipeline", "max_concurrent_tasks", fmt.Errorf("must be at least 1"))
	}
	if p.SemaphoreTimeout <= 0 {
		return NewValidationError("pipeline", "semaphore_timeout", fmt.Errorf("must be positive"))
	}
	if p.VectorBatchSize < 1 {
		return NewValidationError("pipeline", "vector_batch_size", fmt.Errorf("must be at least 1"))
	}
	if p.VectorBatchTimeout <= 0 {
		return NewValidationError("pipeline", "vector_batch_timeout", fmt.Errorf("must be positive"))
	}
	if p.MergeBufferSize < 1 {
		return NewValidationError("pipeline", "merge_buffer_size", fmt.Errorf("must be at least 1"))
	}
	if p.NeighborK < 1 {
		return NewValidationError("pipeline", "neighbor_k", fmt.Errorf("must be at least 1"))
	}
	for field, v := range map[string]float64{
		"min_correlation_score_threshold": p.MinCorrelationScoreThreshold,
		"min_burst_score_threshold":       p.MinBurstScoreThreshold,
		"min_anomaly_score_threshold":     p.MinAnomalyScoreThreshold,
	} {
		if v < 0 || v > 1 {
			return NewValidationError("pipeline", field, fmt.Errorf("must be within [0,1], got %v", v))
		}
	}
	return nil
}

func (c *Config) validateCorrelation() error {
	cc := c.Correlation
	if cc == nil {
		return NewValidationError("correlation", "", fmt.Errorf("section required"))
	}
	if cc.EventHistoryRetention <= 0 {
		return NewValidationError("correlation", "event_history_retention", fmt.Errorf("must be positive"))
	}
	if cc.MaxEventsPerKey < 1 {
		return NewValidationError("correlation", "max_events_per_correlation_key", fmt.Errorf("must be at least 1"))
	}
	if cc.BruteForceThreshold < 2 {
		return NewValidationError("correlation", "brute_force_threshold", fmt.Errorf("must be at least 2"))
	}
	if cc.LateralMovementHosts < 2 {
		return NewValidationError("correlation", "lateral_movement_hosts", fmt.Errorf("must be at least 2"))
	}
	if cc.BurstThreshold < 2 {
		return NewValidationError("correlation", "burst_threshold", fmt.Errorf("must be at least 2"))
	}
	if cc.AnomalySmoothing <= 0 || cc.AnomalySmoothing >= 1 {
		return NewValidationError("correlation", "anomaly_smoothing", fmt.Errorf("must be within (0,1)"))
	}
	if cc.AnomalyMinSamples < 1 {
		return NewValidationError("correlation", "anomaly_min_samples", fmt.Errorf("must be at least 1"))
	}
	return nil
}

func (c *Config) validateRetention() error {
	r := c.Retention
	if r == nil {
		return NewValidationError("retention", "", fmt.Errorf("section required"))
	}
	if r.VectorRetention <= 0 {
		return NewValidationError("retention", "vector_retention", fmt.Errorf("must be positive"))
	}
	if r.SweepInterval <= 0 {
		return NewValidationError("retention", "sweep_interval", fmt.Errorf("must be positive"))
	}
	return nil
}

func (c *Config) validateEmbedding() error {
	e := c.Embedding
	if e == nil {
		return NewValidationError("embedding", "", fmt.Errorf("section required"))
	}
	if e.Dimension < 1 {
		return NewValidationError("embedding", "dimension", fmt.Errorf("must be at least 1"))
	}
	if e.Endpoint != "" && e.Model == "" {
		return NewValidationError("embedding", "model", fmt.Errorf("model required when endpoint is set"))
	}
	return nil
}

func (c *Config) validateIgnoreRules() error {
	for i, rule := range c.Ignore {
		if rule.EventType == "" && rule.MitreTechnique == "" && rule.Channel == "" &&
			rule.EventID == nil && rule.UserPattern == "" {
			return NewValidationError("ignore_patterns", fmt.Sprintf("[%d]", i),
				fmt.Errorf("at least one match field required"))
		}
	}
	return nil
}
