// Castellan detection core — merges Windows event-log streams, runs the
// enrichment/classification pipeline, and persists analyzed security
// events.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/castellan/castellan/pkg/collector"
	"github.com/castellan/castellan/pkg/config"
	"github.com/castellan/castellan/pkg/correlation"
	"github.com/castellan/castellan/pkg/database"
	"github.com/castellan/castellan/pkg/detector"
	"github.com/castellan/castellan/pkg/embedding"
	"github.com/castellan/castellan/pkg/enrichment"
	"github.com/castellan/castellan/pkg/eventstore"
	"github.com/castellan/castellan/pkg/ignore"
	"github.com/castellan/castellan/pkg/llm"
	"github.com/castellan/castellan/pkg/pipeline"
	"github.com/castellan/castellan/pkg/rules"
	"github.com/castellan/castellan/pkg/vectorstore"
	"github.com/castellan/castellan/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	// Parse command-line flags
	configPath := flag.String("config",
		getEnv("CASTELLAN_CONFIG", "castellan.yaml"),
		"Path to configuration file")
	eventPaths := flag.String("events", "",
		"Comma-separated JSONL event-log exports to ingest")
	backfillPath := flag.String("backfill", "",
		"JSONL export replayed at startup when vector coverage is missing")
	usePostgres := flag.Bool("postgres", false,
		"Persist security events to PostgreSQL (DB_* environment) instead of memory")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file, continuing with existing environment", "error", err)
	}

	slog.Info("Starting Castellan",
		"version", version.Full(),
		"config", *configPath)

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(*configPath)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Event store: PostgreSQL when requested, in-memory otherwise
	var events eventstore.Store = eventstore.NewMemoryStore()
	if *usePostgres {
		dbConfig, err := database.LoadConfigFromEnv()
		if err != nil {
			slog.Error("Failed to load database config", "error", err)
			os.Exit(1)
		}
		dbClient, err := database.NewClient(ctx, dbConfig)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := dbClient.Close(); err != nil {
				slog.Error("Error closing database client", "error", err)
			}
		}()
		events = eventstore.NewPostgresStore(dbClient)
		if health, err := dbClient.Health(ctx); err != nil {
			slog.Warn("Database health check failed", "error", err)
		} else {
			slog.Info("Connected to PostgreSQL database",
				"response_time_ms", health.ResponseTime,
				"open_connections", health.OpenConnections,
				"max_open_conns", health.MaxOpenConns)
		}
	}

	// 3. Embedder and vector store
	var embedder embedding.Embedder
	if cfg.Embedding.Endpoint != "" {
		embedder = embedding.NewHTTPEmbedder(cfg.Embedding.Endpoint, cfg.Embedding.Model,
			cfg.Embedding.Dimension, cfg.Embedding.RequestTimeout)
	} else {
		embedder = embedding.NewLocalEmbedder(cfg.Embedding.Dimension)
		slog.Info("No embedding endpoint configured, using local embedder")
	}
	vectors := vectorstore.NewMemoryStore(cfg.Embedding.Dimension)

	// 4. LLM client; the analysis path is disabled without an endpoint
	var analyst llm.Client
	if cfg.LLM.Endpoint != "" {
		analyst = llm.NewHTTPClient(cfg.LLM.Endpoint, cfg.LLM.Model,
			os.Getenv(cfg.LLM.APIKeyEnv), cfg.LLM.RequestTimeout)
	} else {
		slog.Info("No LLM endpoint configured, analysis path disabled")
	}

	// 5. Enrichment: Redis-backed cache when configured
	var cache enrichment.Cache = enrichment.NewMemoryCache(cfg.Enrichment.CacheTTL)
	if cfg.Enrichment.RedisAddr != "" {
		cache = enrichment.NewRedisCache(
			redis.NewClient(&redis.Options{Addr: cfg.Enrichment.RedisAddr}),
			cfg.Enrichment.CacheTTL)
		slog.Info("Using Redis enrichment cache", "addr", cfg.Enrichment.RedisAddr)
	}
	enricher := enrichment.NewService(enrichment.NewStaticProvider(nil), cache,
		cfg.Enrichment.LookupTimeout)

	// 6. Collectors
	var collectors []collector.Collector
	for _, path := range strings.Split(*eventPaths, ",") {
		if path = strings.TrimSpace(path); path != "" {
			collectors = append(collectors, collector.NewFileCollector(path))
		}
	}
	if len(collectors) == 0 {
		slog.Error("No event sources configured, pass -events")
		os.Exit(1)
	}
	var historical collector.Historical
	if *backfillPath != "" {
		historical = collector.NewFileCollector(*backfillPath)
	}

	// 7. Assemble and start the pipeline
	p := pipeline.New(cfg, pipeline.Options{
		Collectors: collectors,
		Historical: historical,
		Embedder:   embedder,
		Vectors:    vectors,
		Detector:   detector.New(),
		LLM:        analyst,
		Enricher:   enricher,
		Fusion:     rules.NewEngine(correlation.NewEngine(cfg.Correlation)),
		Ignorer:    ignore.NewService(cfg.Ignore),
		Events:     events,
	})
	if err := p.Start(ctx); err != nil {
		slog.Error("Failed to start pipeline", "error", err)
		os.Exit(1)
	}

	// 8. Run until interrupted, then drain
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("Received shutdown signal", "signal", sig)

	if err := p.Stop(cfg.Pipeline.DrainTimeout); err != nil {
		slog.Error("Pipeline shutdown failed", "error", err)
		os.Exit(1)
	}

	s := p.Metrics().Snapshot()
	slog.Info("Castellan stopped",
		"events_in", s.EventsIn,
		"events_persisted", s.EventsPersisted,
		"llm_failures", s.LLMFailures)
}
