// Package batch turns an unbounded stream of text items into a bounded
// number of well-formed, rate-limited remote API calls. Every item is
// guaranteed a terminal result: cached, remote, or a deterministic fallback.
//
// The engine is generic over the result payload, so the same machinery
// serves chunk summarization (R = string) and embedding generation
// (R = []float32).
package batch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"sync"
	"time"
)

const (
	// admitRetryInterval bounds the spin-wait when admission is denied.
	admitRetryInterval = 25 * time.Millisecond

	// baseBackoff is the first retry delay for transient failures. Rate
	// limit failures wait rateLimitFactor times longer.
	baseBackoff     = time.Second
	rateLimitFactor = 15
	maxBackoff      = 60 * time.Second
)

// Invoker performs the remote call for one batch of texts. The returned
// slice must be ordered like the input. Failures should be wrapped with
// Transient, RateLimited, CostLimited or Permanent; anything else is
// retried as transient.
type Invoker[R any] interface {
	Invoke(ctx context.Context, texts []string) ([]R, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc[R any] func(ctx context.Context, texts []string) ([]R, error)

func (f InvokerFunc[R]) Invoke(ctx context.Context, texts []string) ([]R, error) {
	return f(ctx, texts)
}

// ChildResult is one split piece's outcome, ordered by split index.
type ChildResult[R any] struct {
	Value    R
	Fallback bool
}

// Merger recombines split results and produces fallback values. Merge must
// be total: it is called even when every child fell back.
type Merger[R any] interface {
	// Merge combines the results of an item's split pieces, ordered by
	// split index, into the item's single result.
	Merge(children []ChildResult[R]) R
	// Fallback returns a deterministic, cheaply computed result for an
	// item whose remote processing failed for good.
	Fallback(item Item) R
}

// Cache stores previously computed results keyed by content hash. An
// unavailable cache must never fail the pipeline; the engine treats every
// cache error as a miss or no-op.
type Cache[R any] interface {
	Get(ctx context.Context, key string) (R, bool, error)
	Set(ctx context.Context, key string, value R, ttl time.Duration) error
}

// Engine is the batch request engine. One Engine is safe for concurrent use,
// but each Process call runs its own worker pool and pending queue; only the
// capacity budget and status tracker are shared across calls.
type Engine[R any] struct {
	name    string
	opts    Options
	invoker Invoker[R]
	merger  Merger[R]
	cache   Cache[R]
	clock   Clock
	budget  *CapacityBudget
	tracker *StatusTracker
}

// New creates an engine. The only error surface is broken configuration;
// once New succeeds, Process never fails outright.
func New[R any](name string, invoker Invoker[R], merger Merger[R], opts Options) (*Engine[R], error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	clock := Clock(SystemClock{})
	return &Engine[R]{
		name:    name,
		opts:    opts,
		invoker: invoker,
		merger:  merger,
		clock:   clock,
		budget:  NewCapacityBudget(opts.RequestsPerWindow, opts.CostPerWindow, opts.Window, clock),
		tracker: newStatusTracker(),
	}, nil
}

// SetCache attaches a result cache. Without one, every unique input hits the
// remote API.
func (e *Engine[R]) SetCache(c Cache[R]) { e.cache = c }

// SetClock replaces the wall clock, for deterministic tests.
func (e *Engine[R]) SetClock(c Clock) {
	e.clock = c
	e.budget = NewCapacityBudget(e.opts.RequestsPerWindow, e.opts.CostPerWindow, e.opts.Window, c)
}

// Tracker returns the engine's status counters.
func (e *Engine[R]) Tracker() *StatusTracker { return e.tracker }

// ContentHash returns the cache key for a piece of content.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// run holds the per-call mutable state shared by the workers.
type run[R any] struct {
	mu       sync.Mutex
	parentOf map[string]childRef        // item ID -> merge slot
	merges   map[string]*mergeState[R]  // parent item ID -> accumulator
	final    map[string]outcome[R]      // content hash -> terminal outcome
	splits   map[string]int             // content hash -> piece count
	wg       sync.WaitGroup             // outstanding batches
	queue    *queue
}

type childRef struct {
	parent string
	index  int
}

type mergeState[R any] struct {
	children  []ChildResult[R]
	remaining int
}

type outcome[R any] struct {
	value      R
	cached     bool
	fallback   bool
	splitCount int
}

type finalized[R any] struct {
	hash     string
	value    R
	fallback bool
}

// Process resolves every input to a result, in input order. Item failures
// never propagate as errors: exhausted retries and expired deadlines produce
// fallback results flagged WasFallback.
func (e *Engine[R]) Process(ctx context.Context, inputs []Input) []Result[R] {
	if len(inputs) == 0 {
		return nil
	}

	// A zero deadline is an already expired one: every item resolves via
	// fallback without a single remote call. Only a negative Deadline
	// leaves the call unbounded.
	if e.opts.Deadline >= 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Deadline)
		defer cancel()
	}

	r := &run[R]{
		parentOf: make(map[string]childRef),
		merges:   make(map[string]*mergeState[R]),
		final:    make(map[string]outcome[R]),
		splits:   make(map[string]int),
		queue:    newQueue(),
	}

	// Cache filter and content dedup: one unit of work per unique content
	// hash, no matter how many inputs share it.
	order := make([]string, len(inputs))
	seen := make(map[string]bool, len(inputs))
	var work []Item
	for i, in := range inputs {
		h := ContentHash(in.Content)
		order[i] = h
		if seen[h] {
			continue
		}
		seen[h] = true

		if e.cache != nil {
			if v, ok, err := e.cache.Get(ctx, h); err == nil && ok {
				r.final[h] = outcome[R]{value: v, cached: true, splitCount: 1}
				e.tracker.cacheHit(1)
				continue
			}
		}
		work = append(work, Item{ID: h, Content: in.Content, Cost: EstimateCost(in.Content)})
	}

	if len(work) > 0 {
		items := e.expand(r, work, e.opts.MaxCostPerBatch)
		batches := buildBatches(items, e.opts.MaxBatchSize, e.opts.MaxCostPerBatch, e.opts.MaxAttempts)

		r.wg.Add(len(batches))
		for _, b := range batches {
			r.queue.Push(b)
		}

		workers := e.opts.MaxConcurrent
		if workers > len(batches) {
			workers = len(batches)
		}
		for i := 0; i < workers; i++ {
			go e.worker(ctx, r)
		}

		r.wg.Wait()
		r.queue.Close()
	}

	// Reassemble in input order, correlated by content hash.
	results := make([]Result[R], len(inputs))
	for i, in := range inputs {
		o := r.final[order[i]]
		results[i] = Result[R]{
			ID:          in.ID,
			Value:       o.value,
			WasCached:   o.cached,
			WasFallback: o.fallback,
			SplitCount:  o.splitCount,
		}
	}
	return results
}

// expand splits oversized items and records the merge bookkeeping for their
// pieces. ceiling is the per-item cost limit in effect.
func (e *Engine[R]) expand(r *run[R], items []Item, ceiling int) []Item {
	out := splitItems(items, ceiling, e.opts.SplitOverlap)

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, it := range out {
		if it.ParentID == "" {
			continue
		}
		ms, ok := r.merges[it.ParentID]
		if !ok {
			ms = &mergeState[R]{
				children:  make([]ChildResult[R], it.SplitCount),
				remaining: it.SplitCount,
			}
			r.merges[it.ParentID] = ms
			// Piece counts are reported for the original split only;
			// deeper re-splits after cost rejections do not change it.
			if _, top := r.splits[it.ParentID]; !top && r.parentOf[it.ParentID] == (childRef{}) {
				r.splits[it.ParentID] = it.SplitCount
			}
		}
		r.parentOf[it.ID] = childRef{parent: it.ParentID, index: it.SplitIndex}
	}
	return out
}

// worker pulls pending batches until the queue closes. Each batch either
// terminalizes (success, fallback, or re-split into new batches) or is
// requeued (denied admission, backoff).
func (e *Engine[R]) worker(ctx context.Context, r *run[R]) {
	for {
		b, ok := r.queue.Pop()
		if !ok {
			return
		}
		e.handle(ctx, r, b)
	}
}

func (e *Engine[R]) handle(ctx context.Context, r *run[R], b *Batch) {
	// Past the deadline, undispatched batches resolve via fallback without
	// consuming a remote call.
	if ctx.Err() != nil {
		e.resolveFallback(ctx, r, b)
		r.wg.Done()
		return
	}

	// Admission control. A denied batch is requeued after a short wait so
	// a smaller batch behind it may still pass.
	if !e.budget.TryAdmit(b.TotalCost) {
		e.clock.Sleep(ctx, admitRetryInterval)
		r.queue.Push(b)
		return
	}

	e.tracker.batchStarted()
	texts := make([]string, len(b.Items))
	for i, it := range b.Items {
		texts[i] = it.Content
	}

	values, err := e.invoker.Invoke(ctx, texts)
	if err == nil && len(values) != len(b.Items) {
		err = Transient(fmt.Errorf("remote returned %d results for %d items", len(values), len(b.Items)))
	}

	if err == nil {
		e.completeItems(ctx, r, b.Items, values, false)
		e.tracker.batchSucceeded()
		r.wg.Done()
		return
	}

	// A deadline hit mid-flight is not retried.
	if ctx.Err() != nil {
		e.tracker.batchFailed()
		e.resolveFallback(ctx, r, b)
		r.wg.Done()
		return
	}

	switch Classify(err) {
	case KindPermanent:
		log.Printf("engine(%s): batch %s permanent failure: %v", e.name, b.ID, err)
		e.tracker.batchFailed()
		e.resolveFallback(ctx, r, b)
		r.wg.Done()

	case KindCostLimit:
		e.resplit(ctx, r, b, err)

	case KindRateLimit:
		e.tracker.rateLimitHit()
		e.retry(ctx, r, b, err, rateLimitFactor)

	default: // KindTransient and anything unrecognized
		e.retry(ctx, r, b, err, 1)
	}
}

// retry backs off exponentially and requeues the batch, or falls back once
// attempts are exhausted. The requeue is explicit: no recursion, so retry
// depth never grows the stack.
func (e *Engine[R]) retry(ctx context.Context, r *run[R], b *Batch, cause error, factor int) {
	b.AttemptsRemaining--
	if b.AttemptsRemaining <= 0 {
		log.Printf("engine(%s): batch %s exhausted retries: %v", e.name, b.ID, cause)
		e.tracker.batchFailed()
		e.resolveFallback(ctx, r, b)
		r.wg.Done()
		return
	}

	attempt := e.opts.MaxAttempts - b.AttemptsRemaining // 1 on first failure
	shift := attempt - 1
	if shift > 6 {
		shift = 6
	}
	delay := baseBackoff * time.Duration(factor) << shift
	if delay > maxBackoff {
		delay = maxBackoff
	}
	e.tracker.inFlight.Add(-1)
	e.clock.Sleep(ctx, delay)
	r.queue.Push(b)
}

// resplit re-splits a cost-rejected batch's items against a halved ceiling
// and requeues the resulting smaller batches. The rejected batch terminates
// without a direct result; its items live on in the new batches.
func (e *Engine[R]) resplit(ctx context.Context, r *run[R], b *Batch, cause error) {
	ceiling := b.costCeiling / 2
	if ceiling <= e.opts.SplitOverlap {
		// Cannot shrink any further.
		log.Printf("engine(%s): batch %s cost-rejected below minimum split size: %v", e.name, b.ID, cause)
		e.tracker.batchFailed()
		e.resolveFallback(ctx, r, b)
		r.wg.Done()
		return
	}

	log.Printf("engine(%s): batch %s exceeded cost limit, re-splitting with ceiling %d", e.name, b.ID, ceiling)
	items := e.expand(r, b.Items, ceiling)
	children := buildBatches(items, e.opts.MaxBatchSize, ceiling, b.AttemptsRemaining)
	for _, nb := range children {
		nb.costCeiling = ceiling
	}

	e.tracker.batchResplit()
	r.wg.Add(len(children))
	for _, nb := range children {
		r.queue.Push(nb)
	}
	r.wg.Done()
}

// resolveFallback terminalizes every item in the batch with a deterministic
// fallback result. No item is ever left without a result.
func (e *Engine[R]) resolveFallback(ctx context.Context, r *run[R], b *Batch) {
	values := make([]R, len(b.Items))
	for i, it := range b.Items {
		values[i] = e.merger.Fallback(it)
	}
	e.tracker.fallbackApplied(len(b.Items))
	e.completeItems(ctx, r, b.Items, values, true)
}

// completeItems records terminal results for a batch's items, cascading
// split merges up to their parents, then writes fresh successes to the
// cache outside the run lock.
func (e *Engine[R]) completeItems(ctx context.Context, r *run[R], items []Item, values []R, fallback bool) {
	var done []finalized[R]

	r.mu.Lock()
	for i, it := range items {
		e.finalizeLocked(r, it.ID, values[i], fallback, &done)
	}
	r.mu.Unlock()

	if e.cache == nil {
		return
	}
	for _, f := range done {
		if f.fallback {
			continue
		}
		if err := e.cache.Set(ctx, f.hash, f.value, e.opts.CacheTTL); err != nil {
			log.Printf("engine(%s): cache store failed (ignored): %v", e.name, err)
		}
	}
}

// finalizeLocked terminalizes one item. Split pieces feed their parent's
// merge accumulator; completing the last piece merges and finalizes the
// parent in turn. Top-level completions land in r.final keyed by content
// hash, which is how output order is restored regardless of batch
// completion order.
func (e *Engine[R]) finalizeLocked(r *run[R], id string, value R, fallback bool, done *[]finalized[R]) {
	if ref, ok := r.parentOf[id]; ok {
		ms := r.merges[ref.parent]
		ms.children[ref.index] = ChildResult[R]{Value: value, Fallback: fallback}
		ms.remaining--
		if ms.remaining > 0 {
			return
		}

		merged := e.merger.Merge(ms.children)
		allFallback := true
		for _, c := range ms.children {
			if !c.Fallback {
				allFallback = false
				break
			}
		}
		e.finalizeLocked(r, ref.parent, merged, allFallback, done)
		return
	}

	count := r.splits[id]
	if count == 0 {
		count = 1
	}
	r.final[id] = outcome[R]{value: value, fallback: fallback, splitCount: count}
	*done = append(*done, finalized[R]{hash: id, value: value, fallback: fallback})
}
