package vectordb

import "time"

// Document represents one indexed chunk: its searchable text, its
// precomputed embedding, and metadata for attribution.
type Document struct {
	ID        string
	Content   string
	Embedding []float32 // Precomputed; empty means the store embeds Content itself.
	Metadata  DocumentMetadata
}

// DocumentMetadata holds structured information about a document.
type DocumentMetadata struct {
	RepoID      string
	Path        string // Path relative to the repo root.
	StartLine   int
	EndLine     int
	ContentHash string
	Language    string
	Summary     string
	LastUpdated time.Time
}

// SearchResult pairs a document with its similarity score.
type SearchResult struct {
	Document   Document
	Similarity float32
}

// SearchFilter narrows search results by metadata fields.
type SearchFilter struct {
	RepoID   *string
	Path     *string
	Language *string
}
