package batch

import "github.com/google/uuid"

// buildBatches packs items into batches bounded by maxBatchSize items and
// maxCostPerBatch total cost. Packing is greedy in input order: no bin-packing
// optimization is attempted, since per-call overhead on the remote side
// dominates any gain from tighter packing.
//
// Items whose individual cost exceeds maxCostPerBatch must be split before
// reaching the builder; see splitItems.
func buildBatches(items []Item, maxBatchSize, maxCostPerBatch, maxAttempts int) []*Batch {
	var batches []*Batch
	var current []Item
	currentCost := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		batches = append(batches, &Batch{
			ID:                uuid.NewString(),
			Items:             current,
			TotalCost:         currentCost,
			AttemptsRemaining: maxAttempts,
			costCeiling:       maxCostPerBatch,
		})
		current = nil
		currentCost = 0
	}

	for _, it := range items {
		if len(current) > 0 &&
			(len(current) >= maxBatchSize || currentCost+it.Cost > maxCostPerBatch) {
			flush()
		}
		current = append(current, it)
		currentCost += it.Cost
	}
	flush()

	return batches
}
