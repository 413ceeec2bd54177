package batch

import (
	"fmt"
	"time"
)

// Input is one caller-supplied unit of text to process.
type Input struct {
	ID      string
	Content string
}

// Item is one unit of work inside the engine. Oversized inputs are split
// into several items sharing a ParentID; everything else maps 1:1.
type Item struct {
	ID         string
	Content    string
	Cost       int
	ParentID   string // empty when the item was not produced by a split
	SplitIndex int
	SplitCount int
}

// Batch groups items for a single remote call.
type Batch struct {
	ID                string
	Items             []Item
	TotalCost         int
	AttemptsRemaining int

	// costCeiling is the per-item cost limit in effect for this batch's
	// items. Halved on every cost-limit rejection before re-splitting.
	costCeiling int
}

// Result is the terminal outcome for one Input, in input order.
type Result[R any] struct {
	ID          string
	Value       R
	WasCached   bool
	WasFallback bool
	SplitCount  int
}

// NoDeadline disables the overall wall-clock bound on a Process call.
// Any negative Deadline means the same thing; zero means the deadline has
// already passed.
const NoDeadline time.Duration = -1

// Options configures an Engine.
type Options struct {
	MaxBatchSize      int           // items per remote call
	MaxCostPerBatch   int           // cost units per remote call
	MaxConcurrent     int           // worker goroutines
	RequestsPerWindow int           // admission budget: calls per window
	CostPerWindow     int           // admission budget: cost units per window
	Window            time.Duration // budget refill window
	MaxAttempts       int           // remote attempts per batch before fallback
	Deadline          time.Duration // overall wall-clock bound, < 0 = none, 0 = already expired
	SplitOverlap      int           // cost units shared between split pieces
	CacheTTL          time.Duration // result cache expiry
}

// DefaultOptions mirrors conservative OpenAI-style limits.
func DefaultOptions() Options {
	return Options{
		MaxBatchSize:      50,
		MaxCostPerBatch:   8000,
		MaxConcurrent:     5,
		RequestsPerWindow: 300,
		CostPerWindow:     1_000_000,
		Window:            time.Minute,
		MaxAttempts:       3,
		Deadline:          NoDeadline,
		SplitOverlap:      50,
		CacheTTL:          24 * time.Hour,
	}
}

// Validate reports broken configuration before any processing starts.
// This is the only error surface the engine exposes to its caller; item
// failures never propagate (every item gets a result).
func (o Options) Validate() error {
	if o.MaxBatchSize < 1 {
		return fmt.Errorf("batch: max batch size must be >= 1, got %d", o.MaxBatchSize)
	}
	if o.MaxCostPerBatch < 1 {
		return fmt.Errorf("batch: max cost per batch must be >= 1, got %d", o.MaxCostPerBatch)
	}
	if o.MaxConcurrent < 1 {
		return fmt.Errorf("batch: max concurrent must be >= 1, got %d", o.MaxConcurrent)
	}
	if o.RequestsPerWindow < 1 {
		return fmt.Errorf("batch: requests per window must be >= 1, got %d", o.RequestsPerWindow)
	}
	if o.CostPerWindow < o.MaxCostPerBatch {
		return fmt.Errorf("batch: cost per window (%d) below max cost per batch (%d): no batch could ever be admitted",
			o.CostPerWindow, o.MaxCostPerBatch)
	}
	if o.Window <= 0 {
		return fmt.Errorf("batch: window must be positive, got %s", o.Window)
	}
	if o.MaxAttempts < 1 {
		return fmt.Errorf("batch: max attempts must be >= 1, got %d", o.MaxAttempts)
	}
	if o.SplitOverlap < 0 {
		return fmt.Errorf("batch: split overlap must be non-negative, got %d", o.SplitOverlap)
	}
	if o.SplitOverlap >= o.MaxCostPerBatch {
		return fmt.Errorf("batch: split overlap (%d) must be smaller than max cost per batch (%d)",
			o.SplitOverlap, o.MaxCostPerBatch)
	}
	return nil
}
