// Package chunker splits source files into line-window chunks suitable for
// summarization and embedding. Chunk IDs are stable across runs so the
// indexer can diff them against previously indexed state.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Chunk is one indexable window of a source file.
type Chunk struct {
	ID        string // "<relpath>:<index>", stable for a given chunking config.
	RepoID    string
	Path      string // Path relative to the repo root.
	Language  string
	StartLine int // 1-based, inclusive.
	EndLine   int // 1-based, inclusive.
	Content   string
	Hash      string // SHA-256 hex digest of Content.
}

// Options controls chunk sizing.
type Options struct {
	MaxLines     int // Maximum lines per chunk.
	OverlapLines int // Lines repeated from the previous chunk for context.
}

// DefaultOptions returns chunk sizing that works well for code files.
func DefaultOptions() Options {
	return Options{MaxLines: 120, OverlapLines: 10}
}

// Split cuts file content into overlapping line windows. Files at or under
// MaxLines produce a single chunk covering the whole file. Empty content
// produces no chunks.
func Split(repoID, relPath, language, content string, opts Options) []Chunk {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	if opts.MaxLines <= 0 {
		opts.MaxLines = DefaultOptions().MaxLines
	}
	if opts.OverlapLines < 0 || opts.OverlapLines >= opts.MaxLines {
		opts.OverlapLines = DefaultOptions().OverlapLines
		if opts.OverlapLines >= opts.MaxLines {
			opts.OverlapLines = opts.MaxLines / 2
		}
	}

	lines := strings.Split(content, "\n")
	step := opts.MaxLines - opts.OverlapLines

	var chunks []Chunk
	for start := 0; start < len(lines); start += step {
		end := start + opts.MaxLines
		if end > len(lines) {
			end = len(lines)
		}

		body := strings.Join(lines[start:end], "\n")
		chunks = append(chunks, Chunk{
			ID:        fmt.Sprintf("%s:%d", relPath, len(chunks)),
			RepoID:    repoID,
			Path:      relPath,
			Language:  language,
			StartLine: start + 1,
			EndLine:   end,
			Content:   body,
			Hash:      hashContent(body),
		})

		if end == len(lines) {
			break
		}
	}
	return chunks
}

func hashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
