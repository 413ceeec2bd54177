package summarize

import (
	"fmt"
	"strconv"
	"strings"
)

const systemPrompt = `You are a senior software engineer documenting a codebase. Summarize code precisely and factually. Do not invent details that are not present in the code.`

// buildBatchPrompt numbers every chunk so the response can be correlated
// back to its chunk by position.
func buildBatchPrompt(texts []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze these %d code chunks and provide a concise summary for each:\n\n", len(texts))

	for i, text := range texts {
		fmt.Fprintf(&b, "CHUNK %d:\n```\n%s\n```\n\n", i+1, text)
	}

	fmt.Fprintf(&b, "Provide exactly %d summaries in this format:\n", len(texts))
	b.WriteString("1: [concise summary]\n")
	b.WriteString("2: [concise summary]\n")
	b.WriteString("...\n")
	return b.String()
}

// parseBatchSummaries extracts one summary per chunk from the model
// response. It tries the requested numbered format first, then a looser
// "SUMMARY n:" format, and finally accepts the whole response when a single
// summary was requested. Returns false if the response cannot be resolved
// into exactly expected summaries.
func parseBatchSummaries(response string, expected int) ([]string, bool) {
	lines := strings.Split(strings.TrimSpace(response), "\n")

	// Strategy 1: "N: summary" lines, correlated by number.
	if out, ok := collectNumbered(lines, expected, func(line string) (int, string, bool) {
		idx := strings.Index(line, ":")
		if idx <= 0 {
			return 0, "", false
		}
		n, err := strconv.Atoi(strings.TrimSpace(line[:idx]))
		if err != nil {
			return 0, "", false
		}
		return n, strings.TrimSpace(line[idx+1:]), true
	}); ok {
		return out, true
	}

	// Strategy 2: "SUMMARY N: summary" lines.
	if out, ok := collectNumbered(lines, expected, func(line string) (int, string, bool) {
		rest, found := strings.CutPrefix(line, "SUMMARY ")
		if !found {
			return 0, "", false
		}
		idx := strings.Index(rest, ":")
		if idx <= 0 {
			return 0, "", false
		}
		n, err := strconv.Atoi(strings.TrimSpace(rest[:idx]))
		if err != nil {
			return 0, "", false
		}
		return n, strings.TrimSpace(rest[idx+1:]), true
	}); ok {
		return out, true
	}

	// Strategy 3: a single requested summary accepts the whole response.
	if expected == 1 {
		if text := strings.TrimSpace(response); text != "" {
			return []string{text}, true
		}
	}

	return nil, false
}

func collectNumbered(lines []string, expected int, parse func(string) (int, string, bool)) ([]string, bool) {
	out := make([]string, expected)
	found := 0
	for _, line := range lines {
		n, text, ok := parse(strings.TrimSpace(line))
		if !ok || n < 1 || n > expected || text == "" {
			continue
		}
		if out[n-1] == "" {
			found++
		}
		out[n-1] = text
	}
	return out, found == expected
}
