// Package pipeline orchestrates the ingestion-to-detection flow: it
// merges collector streams, schedules per-event work under a bounded
// semaphore, runs the enrichment/classification stages, fuses signals,
// and persists surviving events. It also owns the vector store's
// lifecycle: the startup coverage probe and backfill, batched upserts,
// and the periodic retention sweep.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/castellan/castellan/pkg/collector"
	"github.com/castellan/castellan/pkg/config"
	"github.com/castellan/castellan/pkg/detector"
	"github.com/castellan/castellan/pkg/embedding"
	"github.com/castellan/castellan/pkg/enrichment"
	"github.com/castellan/castellan/pkg/eventstore"
	"github.com/castellan/castellan/pkg/ignore"
	"github.com/castellan/castellan/pkg/llm"
	"github.com/castellan/castellan/pkg/models"
	"github.com/castellan/castellan/pkg/rules"
	"github.com/castellan/castellan/pkg/vectorstore"
)

// ErrLifecycleViolation is returned for start/stop calls that do not
// match the current pipeline state.
var ErrLifecycleViolation = errors.New("pipeline lifecycle violation")

// Pipeline states.
const (
	StateIdle int32 = iota
	StateInitializing
	StateRunning
	StateDraining
	StateStopped
)

// Drop reasons surfaced through the dropped-events counter.
const (
	dropNoVerdict      = "no_verdict"
	dropIgnored        = "ignored"
	dropBelowThreshold = "below_threshold"
	dropDuplicate      = "duplicate"
	dropPersistError   = "persist_error"
	dropThrottled      = "throttled"
)

// Pipeline is the orchestrator. Construct with New, then Start once;
// Stop drains in-flight work and flushes buffers. All collaborators are
// owned by the caller and must outlive the pipeline.
type Pipeline struct {
	cfg atomic.Pointer[config.Config]

	collectors []collector.Collector
	historical collector.Historical

	embedder embedding.Embedder
	vectors  vectorstore.Store
	detector *detector.Detector
	llm      llm.Client
	enricher *enrichment.Service
	fusion   *rules.Engine
	ignorer  *ignore.Service
	events   eventstore.Store
	metrics  *Metrics

	semMu sync.RWMutex
	sem   *semaphore.Weighted

	state        atomic.Int32
	cancelIntake context.CancelFunc
	cancelTasks  context.CancelFunc

	tasks   sync.WaitGroup // per-event work
	loops   sync.WaitGroup // dispatch + retention loops
	batcher *batcher

	reconfigureMu sync.Mutex
	processed     atomic.Int64
}

// Options carries the pipeline collaborators. LLM and Enricher may be
// nil; their paths are then skipped. Historical is optional and only
// used for the startup backfill.
type Options struct {
	Collectors []collector.Collector
	Historical collector.Historical
	Embedder   embedding.Embedder
	Vectors    vectorstore.Store
	Detector   *detector.Detector
	LLM        llm.Client
	Enricher   *enrichment.Service
	Fusion     *rules.Engine
	Ignorer    *ignore.Service
	Events     eventstore.Store
}

// New creates a pipeline. The configuration must already be validated.
func New(cfg *config.Config, opts Options) *Pipeline {
	p := &Pipeline{
		collectors: opts.Collectors,
		historical: opts.Historical,
		embedder:   opts.Embedder,
		vectors:    opts.Vectors,
		detector:   opts.Detector,
		llm:        opts.LLM,
		enricher:   opts.Enricher,
		fusion:     opts.Fusion,
		ignorer:    opts.Ignorer,
		events:     opts.Events,
		metrics:    NewMetrics(),
	}
	p.cfg.Store(cfg)
	if cfg.Pipeline.EnableSemaphoreThrottling {
		p.sem = semaphore.NewWeighted(int64(cfg.Pipeline.MaxConcurrentTasks))
	}
	p.state.Store(StateIdle)
	return p
}

// Metrics exposes the pipeline metrics set.
func (p *Pipeline) Metrics() *Metrics { return p.metrics }

// State returns the current lifecycle state.
func (p *Pipeline) State() int32 { return p.state.Load() }

// Start runs initialization (collection ensure, coverage probe,
// backfill) and then launches the dispatch and retention loops. It
// returns once the pipeline is running; starting a stopped pipeline is
// a lifecycle violation.
func (p *Pipeline) Start(ctx context.Context) error {
	if !p.state.CompareAndSwap(StateIdle, StateInitializing) {
		return fmt.Errorf("%w: start from state %d", ErrLifecycleViolation, p.state.Load())
	}

	cfg := p.cfg.Load()

	// Two cancellation domains: intakeCtx stops the collectors, merge,
	// and retention loop; taskCtx covers in-flight per-event work and is
	// only cancelled once the drain timeout expires, so tasks running at
	// Stop get to finish.
	intakeCtx, cancelIntake := context.WithCancel(context.WithoutCancel(ctx))
	taskCtx, cancelTasks := context.WithCancel(context.WithoutCancel(ctx))
	p.cancelIntake = cancelIntake
	p.cancelTasks = cancelTasks

	if err := p.vectors.EnsureCollection(ctx); err != nil {
		p.state.Store(StateStopped)
		cancelIntake()
		cancelTasks()
		return fmt.Errorf("failed to ensure vector collection: %w", err)
	}

	if p.historical != nil {
		covered, err := p.vectors.HasCoverage(ctx, cfg.Retention.VectorRetention)
		if err != nil {
			slog.Warn("Coverage probe failed, skipping backfill", "error", err)
		} else if !covered {
			p.backfill(ctx)
		}
	}

	if cfg.Pipeline.EnableVectorBatching {
		p.batcher = newBatcher(p.vectors, cfg.Pipeline.VectorBatchSize,
			cfg.Pipeline.VectorBatchTimeout, p.metrics)
	}

	merged := mergeStreams(intakeCtx, p.collectors, cfg.Pipeline.MergeBufferSize)

	p.loops.Add(2)
	go p.dispatch(intakeCtx, taskCtx, merged)
	go p.retentionLoop(intakeCtx)

	p.state.Store(StateRunning)
	slog.Info("Pipeline started",
		"collectors", len(p.collectors),
		"max_concurrent_tasks", cfg.Pipeline.MaxConcurrentTasks,
		"vector_batching", cfg.Pipeline.EnableVectorBatching)
	return nil
}

// Stop drains the pipeline: collectors are cancelled, in-flight tasks
// get up to drainTimeout, and the batch buffer is force-flushed within
// the configured flush cap. Stop is idempotent.
func (p *Pipeline) Stop(drainTimeout time.Duration) error {
	if !p.state.CompareAndSwap(StateRunning, StateDraining) {
		if p.state.Load() == StateStopped {
			return nil
		}
		return fmt.Errorf("%w: stop from state %d", ErrLifecycleViolation, p.state.Load())
	}

	slog.Info("Pipeline draining", "drain_timeout", drainTimeout)
	p.cancelIntake()

	done := make(chan struct{})
	go func() {
		p.loops.Wait()
		p.tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(drainTimeout):
		slog.Warn("Drain timeout exceeded, abandoning in-flight tasks")
	}
	p.cancelTasks()

	if p.batcher != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), p.cfg.Load().Pipeline.FlushTimeout)
		p.batcher.Flush(flushCtx)
		cancel()
	}

	p.state.Store(StateStopped)
	slog.Info("Pipeline stopped")
	return nil
}

// Reconfigure swaps in a new validated configuration snapshot. The
// semaphore is rebuilt at a safe point: the old semaphore is fully
// acquired first, so no event is in flight under it when the new one
// takes over.
func (p *Pipeline) Reconfigure(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	p.reconfigureMu.Lock()
	defer p.reconfigureMu.Unlock()

	old := p.cfg.Load()
	p.semMu.RLock()
	oldSem := p.sem
	p.semMu.RUnlock()

	needRebuild := cfg.Pipeline.EnableSemaphoreThrottling != old.Pipeline.EnableSemaphoreThrottling ||
		cfg.Pipeline.MaxConcurrentTasks != old.Pipeline.MaxConcurrentTasks

	if needRebuild && oldSem != nil {
		if err := oldSem.Acquire(context.Background(), int64(old.Pipeline.MaxConcurrentTasks)); err != nil {
			return fmt.Errorf("failed to reach reconfigure safe point: %w", err)
		}
	}

	p.cfg.Store(cfg)

	if needRebuild {
		p.semMu.Lock()
		if cfg.Pipeline.EnableSemaphoreThrottling {
			p.sem = semaphore.NewWeighted(int64(cfg.Pipeline.MaxConcurrentTasks))
		} else {
			p.sem = nil
		}
		p.semMu.Unlock()
		if oldSem != nil {
			oldSem.Release(int64(old.Pipeline.MaxConcurrentTasks))
		}
	}

	slog.Info("Pipeline reconfigured",
		"max_concurrent_tasks", cfg.Pipeline.MaxConcurrentTasks,
		"semaphore_rebuilt", needRebuild)
	return nil
}

// dispatch pulls merged events and schedules per-event tasks under the
// semaphore. Tasks run under taskCtx, which outlives intake cancellation
// so work in flight at Stop can drain.
func (p *Pipeline) dispatch(ctx, taskCtx context.Context, merged <-chan models.LogEvent) {
	defer p.loops.Done()

	for e := range merged {
		p.metrics.EventIn()
		p.metrics.QueueDepth(len(merged))
		cfg := p.cfg.Load()

		p.semMu.RLock()
		sem := p.sem
		p.semMu.RUnlock()

		if sem != nil {
			acquireCtx, cancel := context.WithTimeout(ctx, cfg.Pipeline.SemaphoreTimeout)
			err := sem.Acquire(acquireCtx, 1)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				p.metrics.SemaphoreTimeout()
				if cfg.Pipeline.SkipOnThrottleTimeout {
					slog.Debug("Throttle timeout, skipping event", "unique_id", e.UniqueID)
				} else {
					p.metrics.EventDropped(dropThrottled)
					slog.Warn("Throttle timeout, dropping event", "unique_id", e.UniqueID)
				}
				continue
			}
			p.metrics.SemaphoreAcquired()
		}

		p.tasks.Add(1)
		go func(e models.LogEvent, sem *semaphore.Weighted) {
			defer p.tasks.Done()
			if sem != nil {
				defer sem.Release(1)
			}
			p.processEvent(taskCtx, e)
		}(e, sem)
	}
}

// retentionLoop sweeps the vector store on the configured interval.
// Sweep failures are logged and retried on the next tick.
func (p *Pipeline) retentionLoop(ctx context.Context) {
	defer p.loops.Done()

	cfg := p.cfg.Load()
	ticker := time.NewTicker(cfg.Retention.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			window := p.cfg.Load().Retention.VectorRetention
			removed, err := p.vectors.DeleteOlderThan(ctx, window)
			if err != nil {
				slog.Error("Retention sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				slog.Info("Retention sweep removed vectors", "count", removed, "window", window)
			}
		}
	}
}

// backfill replays the historical collector to reach vector coverage.
// Individual failures are tolerated; the backfill is abandoned after the
// configured number of consecutive failures.
func (p *Pipeline) backfill(ctx context.Context) {
	cfg := p.cfg.Load()
	stream, err := p.historical.Collect(ctx)
	if err != nil {
		slog.Error("Backfill collector failed to start", "error", err)
		return
	}

	slog.Info("Backfill started")
	var total, failed, consecutive int
	for e := range stream {
		total++
		if err := p.indexEvent(ctx, e); err != nil {
			failed++
			consecutive++
			slog.Debug("Backfill event failed", "unique_id", e.UniqueID, "error", err)
			if consecutive >= cfg.Pipeline.BackfillFailureLimit {
				slog.Error("Backfill abandoned after consecutive failures",
					"consecutive", consecutive, "total", total)
				return
			}
			continue
		}
		consecutive = 0
	}
	slog.Info("Backfill finished", "events", total, "failures", failed)
}

// indexEvent embeds and upserts one event directly (no batching).
func (p *Pipeline) indexEvent(ctx context.Context, e models.LogEvent) error {
	vector, err := p.embedder.Embed(ctx, embeddingText(e))
	if err != nil {
		return err
	}
	return p.vectors.Upsert(ctx, e, vector)
}

// embeddingText is the text projection fed to the embedder.
func embeddingText(e models.LogEvent) string {
	return fmt.Sprintf("%s %s %d %s %s", e.Host, e.Channel, e.EventID, e.Level, e.Message)
}
