package vectordb

import "context"

// VectorStore defines the interface for storing and searching chunk
// documents by embedding.
type VectorStore interface {
	// AddDocuments adds or updates documents in the store.
	AddDocuments(ctx context.Context, docs []Document) error

	// Search performs a semantic search using the query text.
	Search(ctx context.Context, query string, limit int, filter *SearchFilter) ([]SearchResult, error)

	// DeleteByPath removes all documents for the given repo-relative path.
	DeleteByPath(ctx context.Context, repoID, path string) error

	// DeleteByRepoID removes all documents belonging to a repository.
	DeleteByRepoID(ctx context.Context, repoID string) error

	// DeleteByID removes a single document.
	DeleteByID(ctx context.Context, id string) error

	// Persist saves the store's data to the given directory.
	Persist(ctx context.Context, dir string) error

	// Load restores the store's data from the given directory.
	Load(ctx context.Context, dir string) error

	// Count returns the total number of documents in the store.
	Count() int
}
