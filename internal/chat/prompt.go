package chat

import (
	"fmt"
	"strings"

	"github.com/mfarouk/repochat/internal/vectordb"
)

const systemPrompt = `You are a code analysis assistant. Answer the user's question based on the provided code context. Reference file paths and line ranges when pointing at specific code. If the context does not contain enough information to answer fully, say what you do know and what is missing.`

// maxContextResults bounds how many hits go into the prompt; the rest are
// still reported as sources.
const maxContextResults = 5

// maxSnippetBytes truncates very large chunk bodies in the prompt.
const maxSnippetBytes = 1000

func buildQuestionPrompt(question string, results []vectordb.SearchResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Question: %s\n\nCode Context:\n", question)

	n := len(results)
	if n > maxContextResults {
		n = maxContextResults
	}
	for i, r := range results[:n] {
		meta := r.Document.Metadata

		fmt.Fprintf(&b, "\n## Result %d: %s (lines %d-%d)\n", i+1, meta.Path, meta.StartLine, meta.EndLine)
		if meta.Summary != "" {
			fmt.Fprintf(&b, "Summary: %s\n", meta.Summary)
		}

		snippet := chunkBody(r.Document)
		if len(snippet) > maxSnippetBytes {
			snippet = snippet[:maxSnippetBytes] + "..."
		}
		fmt.Fprintf(&b, "```%s\n%s\n```\n", meta.Language, snippet)
	}

	return b.String()
}

// chunkBody strips the summary prefix that indexing prepends to the stored
// document content, leaving the raw chunk text.
func chunkBody(doc vectordb.Document) string {
	content := doc.Content
	if doc.Metadata.Summary != "" {
		if rest, ok := strings.CutPrefix(content, doc.Metadata.Summary+"\n\n"); ok {
			return rest
		}
	}
	return content
}
