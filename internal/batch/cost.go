package batch

import (
	"strconv"
	"unicode/utf8"
)

// charsPerCostUnit is the byte-to-cost approximation shared with the remote
// providers (1 token ~= 4 characters).
const charsPerCostUnit = 4

// EstimateCost returns the cost in tokens for the given text. Deterministic,
// cheap, and monotonic with text length; never calls a remote API.
func EstimateCost(text string) int {
	n := len(text) / charsPerCostUnit
	if n == 0 && len(text) > 0 {
		return 1
	}
	return n
}

// SplitOversized splits text into ordered pieces whose estimated cost is at
// most maxCost, with overlap cost units shared between consecutive pieces so
// partial context survives at the boundaries. Text that already fits is
// returned unchanged as a single piece.
func SplitOversized(text string, maxCost, overlap int) []string {
	if maxCost < 1 {
		maxCost = 1
	}
	if EstimateCost(text) <= maxCost {
		return []string{text}
	}

	maxChars := maxCost * charsPerCostUnit
	overlapChars := overlap * charsPerCostUnit
	step := maxChars - overlapChars
	if step < 1 {
		step = 1
	}

	var pieces []string
	start := 0
	for start < len(text) {
		end := start + maxChars
		if end >= len(text) {
			pieces = append(pieces, text[start:])
			break
		}
		// Back off to a rune boundary so no piece carries a torn rune.
		for end > start && !utf8.RuneStart(text[end]) {
			end--
		}
		pieces = append(pieces, text[start:end])

		// The next piece must start on a rune boundary too, and never past
		// this piece's end or bytes between them would be lost.
		next := start + step
		if next > end {
			next = end
		}
		for next > start && !utf8.RuneStart(text[next]) {
			next--
		}
		if next <= start {
			next = end
		}
		start = next
	}
	return pieces
}

// splitItems expands any item whose cost exceeds maxCost into child items
// carrying ParentID and split ordering. Items that fit pass through.
func splitItems(items []Item, maxCost, overlap int) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if it.Cost <= maxCost {
			out = append(out, it)
			continue
		}
		pieces := SplitOversized(it.Content, maxCost, overlap)
		for i, piece := range pieces {
			out = append(out, Item{
				ID:         childID(it.ID, i),
				Content:    piece,
				Cost:       EstimateCost(piece),
				ParentID:   it.ID,
				SplitIndex: i,
				SplitCount: len(pieces),
			})
		}
	}
	return out
}

func childID(parentID string, index int) string {
	return parentID + "#" + strconv.Itoa(index)
}
