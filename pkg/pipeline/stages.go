package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/castellan/castellan/pkg/detector"
	"github.com/castellan/castellan/pkg/llm"
	"github.com/castellan/castellan/pkg/models"
	"github.com/castellan/castellan/pkg/vectorstore"
)

// stageAResult carries the gathered Stage A sub-results. A failed
// sub-task leaves its field nil; the stage itself never fails.
type stageAResult struct {
	det    *detector.Verdict
	enrich *models.IPEnrichment
	text   string
}

// stageBResult carries the optional LLM contribution.
type stageBResult struct {
	verdict *llm.Verdict
}

// processEvent runs one event through stages A-E. Errors never escape:
// every failure either degrades a signal or drops the event with a
// counted reason.
func (p *Pipeline) processEvent(ctx context.Context, e models.LogEvent) {
	cfg := p.cfg.Load()

	a := p.stageA(ctx, e)
	b := p.stageB(ctx, e, a)

	// Stage C: fusion with correlation.
	startC := time.Now()
	fused := p.fusion.Analyze(e, detVerdictToSecurityEvent(a.det), b.verdict, a.enrich)
	p.metrics.StageObserved("fusion", time.Since(startC))

	if fused == nil {
		p.metrics.EventDropped(dropNoVerdict)
		slog.Debug("Event dropped, no verdict", "unique_id", e.UniqueID)
		return
	}

	// Stage D: suppression and score-threshold filter.
	if p.ignorer != nil && p.ignorer.ShouldIgnore(fused) {
		p.metrics.EventDropped(dropIgnored)
		return
	}
	if !fused.IsDeterministic && !fused.IsCorrelationBased && !fused.IsEnhanced &&
		fused.CorrelationScore < cfg.Pipeline.MinCorrelationScoreThreshold &&
		fused.BurstScore < cfg.Pipeline.MinBurstScoreThreshold &&
		fused.AnomalyScore < cfg.Pipeline.MinAnomalyScoreThreshold {
		p.metrics.EventDropped(dropBelowThreshold)
		slog.Debug("Event dropped below score thresholds",
			"unique_id", e.UniqueID,
			"correlation", fused.CorrelationScore,
			"burst", fused.BurstScore,
			"anomaly", fused.AnomalyScore)
		return
	}

	// Stage E: persist. Failures never block the pipeline.
	startE := time.Now()
	inserted, err := p.events.Append(ctx, fused)
	p.metrics.StageObserved("persist", time.Since(startE))
	switch {
	case err != nil:
		p.metrics.EventDropped(dropPersistError)
		slog.Error("Failed to persist security event", "id", fused.ID, "error", err)
	case !inserted:
		p.metrics.EventDropped(dropDuplicate)
		slog.Debug("Duplicate security event discarded", "id", fused.ID)
	default:
		p.metrics.EventPersisted()
		slog.Info("Security event persisted",
			"id", fused.ID,
			"event_type", fused.EventType,
			"risk_level", fused.RiskLevel,
			"confidence", fused.Confidence)
	}

	if n := p.processed.Add(1); cfg.Pipeline.MetricsEmitEvery > 0 && n%int64(cfg.Pipeline.MetricsEmitEvery) == 0 {
		p.emitMetrics()
	}
}

// stageA runs enrichment, deterministic detection, and text preparation
// under a shared deadline, in parallel when configured. Partial failure
// leaves nils; the stage always returns.
func (p *Pipeline) stageA(ctx context.Context, e models.LogEvent) stageAResult {
	cfg := p.cfg.Load()
	start := time.Now()
	defer func() { p.metrics.StageObserved("scatter", time.Since(start)) }()

	stageCtx, cancel := context.WithTimeout(ctx, cfg.Pipeline.ParallelOperationTimeout)
	defer cancel()

	var res stageAResult
	if !cfg.Pipeline.EnableParallelProcessing {
		if p.enricher != nil {
			res.enrich = p.enricher.Enrich(stageCtx, e)
		}
		res.det = p.detector.Detect(e)
		res.text = embeddingText(e)
		return res
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		if p.enricher != nil {
			res.enrich = p.enricher.Enrich(stageCtx, e)
		}
	}()
	go func() {
		defer wg.Done()
		res.det = p.detector.Detect(e)
	}()
	go func() {
		defer wg.Done()
		res.text = embeddingText(e)
	}()
	wg.Wait()
	return res
}

// stageB embeds and indexes the event and, unless the deterministic
// fast path fired above low risk, searches neighbors and asks the LLM.
// Deterministic high-risk events are still indexed so later events can
// retrieve them as neighbors; only their LLM call is skipped.
func (p *Pipeline) stageB(ctx context.Context, e models.LogEvent, a stageAResult) stageBResult {
	cfg := p.cfg.Load()
	start := time.Now()
	defer func() { p.metrics.StageObserved("vector", time.Since(start)) }()

	stageCtx, cancel := context.WithTimeout(ctx, cfg.Pipeline.ParallelOperationTimeout)
	defer cancel()

	vector, err := p.embedder.Embed(stageCtx, a.text)
	if err != nil {
		slog.Debug("Embedding failed, skipping LLM path", "unique_id", e.UniqueID, "error", err)
		return stageBResult{}
	}

	fastPath := a.det != nil && a.det.RiskLevel.AtLeast(models.RiskMedium)
	if fastPath || p.llm == nil {
		p.upsert(stageCtx, e, vector)
		return stageBResult{}
	}

	var neighbors []models.LogEvent
	var searchErr error
	if cfg.Pipeline.EnableParallelVectorOperations {
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			p.upsert(stageCtx, e, vector)
		}()
		go func() {
			defer wg.Done()
			neighbors, searchErr = p.search(stageCtx, e, vector, cfg.Pipeline.NeighborK)
		}()
		wg.Wait()
	} else {
		p.upsert(stageCtx, e, vector)
		neighbors, searchErr = p.search(stageCtx, e, vector, cfg.Pipeline.NeighborK)
	}
	if searchErr != nil {
		slog.Debug("Neighbor search failed, skipping LLM path",
			"unique_id", e.UniqueID, "error", searchErr)
		return stageBResult{}
	}

	verdict, err := p.llm.Analyze(stageCtx, e, neighbors)
	if err != nil {
		p.metrics.LLMFailure()
		slog.Debug("LLM analysis failed, continuing without it",
			"unique_id", e.UniqueID, "error", err)
		return stageBResult{}
	}
	return stageBResult{verdict: verdict}
}

// upsert routes through the batch buffer when batching is enabled.
// Upsert failures only cost neighbor quality; they are not fatal to the
// event.
func (p *Pipeline) upsert(ctx context.Context, e models.LogEvent, vector []float32) {
	if p.batcher != nil {
		p.batcher.Add(ctx, vectorstore.Point{Event: e, Vector: vector})
		return
	}
	if err := p.vectors.Upsert(ctx, e, vector); err != nil {
		slog.Warn("Vector upsert failed", "unique_id", e.UniqueID, "error", err)
	}
}

// search returns up to k neighbors, excluding the event itself.
func (p *Pipeline) search(ctx context.Context, e models.LogEvent, vector []float32, k int) ([]models.LogEvent, error) {
	hits, err := p.vectors.Search(ctx, vector, k)
	if err != nil {
		return nil, err
	}
	neighbors := make([]models.LogEvent, 0, len(hits))
	for _, h := range hits {
		if h.Event.UniqueID == e.UniqueID {
			continue
		}
		neighbors = append(neighbors, h.Event)
	}
	return neighbors, nil
}

// detVerdictToSecurityEvent adapts the detector's table verdict to the
// provisional form fusion consumes.
func detVerdictToSecurityEvent(v *detector.Verdict) *models.SecurityEvent {
	if v == nil {
		return nil
	}
	return &models.SecurityEvent{
		EventType:          v.EventType,
		RiskLevel:          v.RiskLevel,
		Confidence:         v.Confidence,
		Summary:            v.Summary,
		MitreTechniques:    v.MitreTechniques,
		RecommendedActions: v.RecommendedActions,
	}
}

func (p *Pipeline) emitMetrics() {
	s := p.metrics.Snapshot()
	slog.Info("Pipeline metrics",
		"events_in", s.EventsIn,
		"events_persisted", s.EventsPersisted,
		"events_dropped", s.EventsDropped,
		"semaphore_acquires", s.SemaphoreAcquires,
		"semaphore_timeouts", s.SemaphoreTimeouts,
		"batch_flushes", s.BatchFlushes,
		"llm_failures", s.LLMFailures,
		"merge_queue_depth", s.MergeQueueDepth,
		"events_per_second", s.EventsPerSecond)
}
