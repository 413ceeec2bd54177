package vectordb

import (
	"fmt"
	"strings"
)

// FormatResults renders search results as human-readable text.
func FormatResults(results []SearchResult) string {
	if len(results) == 0 {
		return "No results found."
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d result(s):\n\n", len(results)))

	for i, r := range results {
		sb.WriteString(fmt.Sprintf("--- Result %d (similarity: %.4f) ---\n", i+1, r.Similarity))

		if r.Document.Metadata.Path != "" {
			location := r.Document.Metadata.Path
			if r.Document.Metadata.StartLine > 0 {
				location += fmt.Sprintf(":%d", r.Document.Metadata.StartLine)
				if r.Document.Metadata.EndLine > r.Document.Metadata.StartLine {
					location += fmt.Sprintf("-%d", r.Document.Metadata.EndLine)
				}
			}
			sb.WriteString(fmt.Sprintf("File: %s\n", location))
		}

		if r.Document.Metadata.Language != "" {
			sb.WriteString(fmt.Sprintf("Language: %s\n", r.Document.Metadata.Language))
		}
		if r.Document.Metadata.Summary != "" {
			sb.WriteString(fmt.Sprintf("Summary: %s\n", r.Document.Metadata.Summary))
		}

		sb.WriteString("\n")
		sb.WriteString(r.Document.Content)
		sb.WriteString("\n\n")
	}

	return sb.String()
}
