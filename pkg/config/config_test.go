package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Valid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8, cfg.Pipeline.MaxConcurrentTasks)
	assert.Equal(t, 5*time.Second, cfg.Pipeline.SemaphoreTimeout)
	assert.True(t, cfg.Pipeline.SkipOnThrottleTimeout)
	assert.Equal(t, 16, cfg.Pipeline.VectorBatchSize)
	assert.Equal(t, 2*time.Second, cfg.Pipeline.VectorBatchTimeout)
	assert.Equal(t, 60*time.Minute, cfg.Correlation.EventHistoryRetention)
	assert.Equal(t, 1000, cfg.Correlation.MaxEventsPerKey)
	assert.Equal(t, 24*time.Hour, cfg.Retention.VectorRetention)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero workers", func(c *Config) { c.Pipeline.MaxConcurrentTasks = 0 }, "max_concurrent_tasks"},
		{"negative timeout", func(c *Config) { c.Pipeline.SemaphoreTimeout = -time.Second }, "semaphore_timeout"},
		{"zero batch", func(c *Config) { c.Pipeline.VectorBatchSize = 0 }, "vector_batch_size"},
		{"threshold above 1", func(c *Config) { c.Pipeline.MinBurstScoreThreshold = 1.5 }, "min_burst_score_threshold"},
		{"zero retention", func(c *Config) { c.Correlation.EventHistoryRetention = 0 }, "event_history_retention"},
		{"per-key cap", func(c *Config) { c.Correlation.MaxEventsPerKey = 0 }, "max_events_per_correlation_key"},
		{"smoothing out of range", func(c *Config) { c.Correlation.AnomalySmoothing = 1 }, "anomaly_smoothing"},
		{"zero dimension", func(c *Config) { c.Embedding.Dimension = 0 }, "dimension"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestValidate_EmptyIgnoreRule(t *testing.T) {
	cfg := Default()
	cfg.Ignore = []IgnoreRule{{}}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one match field")
}

func TestInitialize_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Initialize(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Pipeline.MaxConcurrentTasks, cfg.Pipeline.MaxConcurrentTasks)
}

func TestInitialize_OverlayAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "castellan.yaml")
	yaml := `
pipeline:
  enable_parallel_processing: true
  parallel_operation_timeout: 30s
  enable_parallel_vector_operations: true
  enable_semaphore_throttling: true
  max_concurrent_tasks: 4
  semaphore_timeout: 1s
  skip_on_throttle_timeout: true
  enable_vector_batching: true
  vector_batch_size: 8
  vector_batch_timeout: 500ms
  merge_buffer_size: 64
  neighbor_k: 4
  drain_timeout: 5s
  flush_timeout: 2s
  backfill_failure_limit: 10
  metrics_emit_every: 10
ignore_patterns:
  - event_type: AuthenticationSuccess
    user_pattern: "svc-*"
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Initialize(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Pipeline.MaxConcurrentTasks)
	assert.Equal(t, 8, cfg.Pipeline.VectorBatchSize)
	// Untouched sections keep defaults.
	assert.Equal(t, 1000, cfg.Correlation.MaxEventsPerKey)
	require.Len(t, cfg.Ignore, 1)
	assert.Equal(t, "svc-*", cfg.Ignore[0].UserPattern)
}

func TestInitialize_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "castellan.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline: ["), 0o600))

	_, err := Initialize(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "castellan.yaml")
}
