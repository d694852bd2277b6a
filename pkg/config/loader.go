package config

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Initialize loads, merges, validates, and returns ready-to-use
// configuration. Missing file is not an error: built-in defaults apply.
//
// Steps performed:
//  1. Start from built-in defaults
//  2. Overlay castellan.yaml if present
//  3. Validate the merged result
func Initialize(path string) (*Config, error) {
	log := slog.With("config_file", path)

	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		log.Info("No configuration file, using built-in defaults")
	case err != nil:
		return nil, &LoadError{File: path, Err: err}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, &LoadError{File: path, Err: fmt.Errorf("%w: %v", ErrInvalidYAML, err)}
		}
		// Sections removed entirely by the overlay fall back to defaults.
		fillMissingSections(cfg)
		log.Info("Configuration loaded")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	return cfg, nil
}

func fillMissingSections(cfg *Config) {
	if cfg.Pipeline == nil {
		cfg.Pipeline = DefaultPipelineConfig()
	}
	if cfg.Correlation == nil {
		cfg.Correlation = DefaultCorrelationConfig()
	}
	if cfg.Retention == nil {
		cfg.Retention = DefaultRetentionConfig()
	}
	if cfg.Embedding == nil {
		cfg.Embedding = DefaultEmbeddingConfig()
	}
	if cfg.LLM == nil {
		cfg.LLM = DefaultLLMConfig()
	}
	if cfg.Enrichment == nil {
		cfg.Enrichment = DefaultEnrichmentConfig()
	}
}
