package pipeline

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks pipeline counters both as prometheus collectors (for
// scraping through whatever registry the host process exposes) and as
// plain atomics so Snapshot can hand collaborators a struct without a
// registry round-trip.
type Metrics struct {
	registry *prometheus.Registry

	eventsIn        prometheus.Counter
	eventsPersisted prometheus.Counter
	eventsDropped   *prometheus.CounterVec
	semAcquires     prometheus.Counter
	semTimeouts     prometheus.Counter
	batchFlushes    prometheus.Counter
	llmFailures     prometheus.Counter
	mergeDepth      prometheus.Gauge
	stageLatency    *prometheus.HistogramVec

	in        atomic.Int64
	persisted atomic.Int64
	acquires  atomic.Int64
	timeouts  atomic.Int64
	flushes   atomic.Int64
	llmFails  atomic.Int64
	depth     atomic.Int64

	droppedMu sync.Mutex
	dropped   map[string]int64

	stageMu     sync.Mutex
	stageTotals map[string]time.Duration
	stageCounts map[string]int64

	startedAt    time.Time
	baselineMu   sync.Mutex
	baselineRate float64
}

// NewMetrics creates a metrics set on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		eventsIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "castellan_pipeline_events_in_total",
			Help: "Events received from the merged collector stream.",
		}),
		eventsPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "castellan_pipeline_events_persisted_total",
			Help: "Security events appended to the store.",
		}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "castellan_pipeline_events_dropped_total",
			Help: "Events dropped, by reason.",
		}, []string{"reason"}),
		semAcquires: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "castellan_pipeline_semaphore_acquires_total",
			Help: "Successful semaphore acquisitions.",
		}),
		semTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "castellan_pipeline_semaphore_timeouts_total",
			Help: "Semaphore acquisition timeouts.",
		}),
		batchFlushes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "castellan_pipeline_batch_flushes_total",
			Help: "Vector batch buffer flushes.",
		}),
		llmFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "castellan_pipeline_llm_failures_total",
			Help: "LLM calls that produced no contribution.",
		}),
		mergeDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "castellan_pipeline_merge_queue_depth",
			Help: "Events waiting in the merge buffer, sampled at dispatch.",
		}),
		stageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "castellan_pipeline_stage_duration_seconds",
			Help:    "Per-stage processing latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		dropped:     make(map[string]int64),
		stageTotals: make(map[string]time.Duration),
		stageCounts: make(map[string]int64),
		startedAt:   time.Now(),
	}
	reg.MustRegister(m.eventsIn, m.eventsPersisted, m.eventsDropped,
		m.semAcquires, m.semTimeouts, m.batchFlushes, m.llmFailures,
		m.mergeDepth, m.stageLatency)
	return m
}

// Registry exposes the private registry for scraping.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) EventIn() {
	m.eventsIn.Inc()
	m.in.Add(1)
}

func (m *Metrics) EventPersisted() {
	m.eventsPersisted.Inc()
	m.persisted.Add(1)
}

func (m *Metrics) EventDropped(reason string) {
	m.eventsDropped.WithLabelValues(reason).Inc()
	m.droppedMu.Lock()
	m.dropped[reason]++
	m.droppedMu.Unlock()
}

func (m *Metrics) SemaphoreAcquired() {
	m.semAcquires.Inc()
	m.acquires.Add(1)
}

func (m *Metrics) SemaphoreTimeout() {
	m.semTimeouts.Inc()
	m.timeouts.Add(1)
}

func (m *Metrics) BatchFlush() {
	m.batchFlushes.Inc()
	m.flushes.Add(1)
}

func (m *Metrics) LLMFailure() {
	m.llmFailures.Inc()
	m.llmFails.Add(1)
}

// QueueDepth records the merge buffer depth observed at dispatch time.
func (m *Metrics) QueueDepth(n int) {
	m.mergeDepth.Set(float64(n))
	m.depth.Store(int64(n))
}

func (m *Metrics) StageObserved(stage string, d time.Duration) {
	m.stageLatency.WithLabelValues(stage).Observe(d.Seconds())
	m.stageMu.Lock()
	m.stageTotals[stage] += d
	m.stageCounts[stage]++
	m.stageMu.Unlock()
}

// Snapshot is a plain view of the counters for collaborators.
type Snapshot struct {
	EventsIn          int64
	EventsPersisted   int64
	EventsDropped     map[string]int64
	SemaphoreAcquires int64
	SemaphoreTimeouts int64
	BatchFlushes      int64
	LLMFailures       int64
	MergeQueueDepth   int64
	AvgStageLatencyMs map[string]float64
	EventsPerSecond   float64

	// ThroughputImprovement is the current rate relative to the rate
	// observed over the first minute of runtime; 0 until the baseline
	// exists.
	ThroughputImprovement float64
}

// Snapshot captures the current counters.
func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		EventsIn:          m.in.Load(),
		EventsPersisted:   m.persisted.Load(),
		SemaphoreAcquires: m.acquires.Load(),
		SemaphoreTimeouts: m.timeouts.Load(),
		BatchFlushes:      m.flushes.Load(),
		LLMFailures:       m.llmFails.Load(),
		MergeQueueDepth:   m.depth.Load(),
		EventsDropped:     make(map[string]int64),
		AvgStageLatencyMs: make(map[string]float64),
	}

	m.droppedMu.Lock()
	for k, v := range m.dropped {
		s.EventsDropped[k] = v
	}
	m.droppedMu.Unlock()

	m.stageMu.Lock()
	for stage, total := range m.stageTotals {
		if n := m.stageCounts[stage]; n > 0 {
			s.AvgStageLatencyMs[stage] = float64(total.Milliseconds()) / float64(n)
		}
	}
	m.stageMu.Unlock()

	elapsed := time.Since(m.startedAt).Seconds()
	if elapsed > 0 {
		s.EventsPerSecond = float64(s.EventsIn) / elapsed
	}

	m.baselineMu.Lock()
	if m.baselineRate == 0 && elapsed >= 60 {
		m.baselineRate = s.EventsPerSecond
	}
	if m.baselineRate > 0 {
		s.ThroughputImprovement = s.EventsPerSecond / m.baselineRate
	}
	m.baselineMu.Unlock()

	return s
}
