package batch

import (
	"sync"
	"time"
)

// CapacityBudget is a dual token bucket gating batch dispatch: one budget for
// remote calls per window, one for cost units per window. Real providers cap
// both rates independently, so either limit alone is insufficient.
//
// Both budgets refill continuously based on elapsed time since the last
// refill and never exceed their ceilings. All workers share one budget; every
// admission check is a short check-and-decrement under a single mutex.
type CapacityBudget struct {
	mu sync.Mutex

	clock       Clock
	maxRequests float64
	maxCost     float64
	window      time.Duration

	availRequests float64
	availCost     float64
	lastRefill    time.Time
}

// NewCapacityBudget creates a budget starting full.
func NewCapacityBudget(requestsPerWindow, costPerWindow int, window time.Duration, clock Clock) *CapacityBudget {
	if clock == nil {
		clock = SystemClock{}
	}
	return &CapacityBudget{
		clock:         clock,
		maxRequests:   float64(requestsPerWindow),
		maxCost:       float64(costPerWindow),
		window:        window,
		availRequests: float64(requestsPerWindow),
		availCost:     float64(costPerWindow),
		lastRefill:    clock.Now(),
	}
}

// TryAdmit grants dispatch for a batch of the given total cost. On grant,
// both budgets are decremented atomically. A denied batch is not dropped;
// the caller re-polls after a short wait.
func (b *CapacityBudget) TryAdmit(cost int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()

	if b.availRequests < 1 || b.availCost < float64(cost) {
		return false
	}
	b.availRequests--
	b.availCost -= float64(cost)
	return true
}

// Available returns the current request and cost budgets after a refill.
func (b *CapacityBudget) Available() (requests, cost float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	return b.availRequests, b.availCost
}

func (b *CapacityBudget) refillLocked() {
	now := b.clock.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	windowSecs := b.window.Seconds()

	b.availRequests = min(b.maxRequests, b.availRequests+b.maxRequests*elapsed/windowSecs)
	b.availCost = min(b.maxCost, b.availCost+b.maxCost*elapsed/windowSecs)
	b.lastRefill = now
}
