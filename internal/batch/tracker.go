package batch

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// StatusTracker aggregates processing counters. It is a diagnostic side
// channel only: correctness never depends on its values.
type StatusTracker struct {
	started     atomic.Int64
	inFlight    atomic.Int64
	succeeded   atomic.Int64
	failed      atomic.Int64
	rateLimited atomic.Int64
	cacheHits   atomic.Int64
	fallbacks   atomic.Int64
}

// Status is a point-in-time snapshot of a StatusTracker.
type Status struct {
	Started     int64 `json:"started"`
	InFlight    int64 `json:"in_flight"`
	Succeeded   int64 `json:"succeeded"`
	Failed      int64 `json:"failed"`
	RateLimited int64 `json:"rate_limited"`
	CacheHits   int64 `json:"cache_hits"`
	Fallbacks   int64 `json:"fallbacks"`
}

func (t *StatusTracker) Snapshot() Status {
	return Status{
		Started:     t.started.Load(),
		InFlight:    t.inFlight.Load(),
		Succeeded:   t.succeeded.Load(),
		Failed:      t.failed.Load(),
		RateLimited: t.rateLimited.Load(),
		CacheHits:   t.cacheHits.Load(),
		Fallbacks:   t.fallbacks.Load(),
	}
}

func newStatusTracker() *StatusTracker {
	engineMetrics.init()
	return &StatusTracker{}
}

func (t *StatusTracker) batchStarted() {
	t.started.Add(1)
	t.inFlight.Add(1)
	engineMetrics.batchesStarted.Inc()
}

func (t *StatusTracker) batchSucceeded() {
	t.succeeded.Add(1)
	t.inFlight.Add(-1)
	engineMetrics.batchesSucceeded.Inc()
}

func (t *StatusTracker) batchFailed() {
	t.failed.Add(1)
	t.inFlight.Add(-1)
	engineMetrics.batchesFailed.Inc()
}

func (t *StatusTracker) batchResplit() {
	t.inFlight.Add(-1)
	engineMetrics.batchesResplit.Inc()
}

func (t *StatusTracker) rateLimitHit() {
	t.rateLimited.Add(1)
	engineMetrics.rateLimitHits.Inc()
}

func (t *StatusTracker) cacheHit(n int) {
	t.cacheHits.Add(int64(n))
	engineMetrics.cacheHits.Add(float64(n))
}

func (t *StatusTracker) fallbackApplied(n int) {
	t.fallbacks.Add(int64(n))
	engineMetrics.fallbacks.Add(float64(n))
}

// metricsEngine holds the process-wide Prometheus metrics for the engine.
// All Engine instances (summaries, embeddings) share them.
type metricsEngine struct {
	once sync.Once

	batchesStarted   prometheus.Counter
	batchesSucceeded prometheus.Counter
	batchesFailed    prometheus.Counter
	batchesResplit   prometheus.Counter
	rateLimitHits    prometheus.Counter
	cacheHits        prometheus.Counter
	fallbacks        prometheus.Counter
}

var engineMetrics metricsEngine

func (m *metricsEngine) init() {
	m.once.Do(func() {
		m.batchesStarted = prometheus.NewCounter(prometheus.CounterOpts{Name: "repochat_batch_started_total", Help: "Batches dispatched to the remote API"})
		m.batchesSucceeded = prometheus.NewCounter(prometheus.CounterOpts{Name: "repochat_batch_succeeded_total", Help: "Batches completed successfully"})
		m.batchesFailed = prometheus.NewCounter(prometheus.CounterOpts{Name: "repochat_batch_failed_total", Help: "Batches resolved via fallback"})
		m.batchesResplit = prometheus.NewCounter(prometheus.CounterOpts{Name: "repochat_batch_resplit_total", Help: "Batches re-split after a cost limit rejection"})
		m.rateLimitHits = prometheus.NewCounter(prometheus.CounterOpts{Name: "repochat_rate_limit_hits_total", Help: "Rate limit errors returned by the remote API"})
		m.cacheHits = prometheus.NewCounter(prometheus.CounterOpts{Name: "repochat_cache_hits_total", Help: "Items answered from the result cache"})
		m.fallbacks = prometheus.NewCounter(prometheus.CounterOpts{Name: "repochat_item_fallbacks_total", Help: "Items resolved with a deterministic fallback result"})

		prometheus.MustRegister(
			m.batchesStarted, m.batchesSucceeded, m.batchesFailed,
			m.batchesResplit, m.rateLimitHits, m.cacheHits, m.fallbacks,
		)
	})
}
