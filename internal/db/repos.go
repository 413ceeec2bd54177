package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repo represents a registered repository.
type Repo struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	URL         string     `json:"url"`
	LocalPath   string     `json:"local_path"`
	HeadSHA     string     `json:"head_sha"`
	Status      string     `json:"status"` // pending, indexing, ready, failed
	ChunkCount  int        `json:"chunk_count"`
	LastIndexed *time.Time `json:"last_indexed,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// RepoStore provides CRUD operations for registered repositories.
type RepoStore struct {
	db *DB
}

// NewRepoStore creates a repo store over the given database.
func NewRepoStore(d *DB) *RepoStore {
	return &RepoStore{db: d}
}

// Add inserts a new repository.
func (s *RepoStore) Add(ctx context.Context, repo *Repo) error {
	if repo.ID == "" {
		repo.ID = uuid.NewString()
	}
	if repo.Status == "" {
		repo.Status = "pending"
	}
	repo.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO repos (id, name, url, local_path, head_sha, status, chunk_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		repo.ID, repo.Name, repo.URL, repo.LocalPath, repo.HeadSHA,
		repo.Status, repo.ChunkCount, repo.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("adding repo: %w", err)
	}
	return nil
}

const repoColumns = `id, name, url, local_path, head_sha, status, chunk_count, last_indexed, last_error, created_at`

func scanRepo(row interface{ Scan(...any) error }) (*Repo, error) {
	r := &Repo{}
	err := row.Scan(&r.ID, &r.Name, &r.URL, &r.LocalPath, &r.HeadSHA,
		&r.Status, &r.ChunkCount, &r.LastIndexed, &r.LastError, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Get retrieves a repository by name. Returns (nil, nil) if not found.
func (s *RepoStore) Get(ctx context.Context, name string) (*Repo, error) {
	r, err := scanRepo(s.db.QueryRowContext(ctx,
		`SELECT `+repoColumns+` FROM repos WHERE name = ?`, name))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting repo: %w", err)
	}
	return r, nil
}

// GetByID retrieves a repository by ID. Returns (nil, nil) if not found.
func (s *RepoStore) GetByID(ctx context.Context, id string) (*Repo, error) {
	r, err := scanRepo(s.db.QueryRowContext(ctx,
		`SELECT `+repoColumns+` FROM repos WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting repo by ID: %w", err)
	}
	return r, nil
}

// List returns all registered repositories ordered by name.
func (s *RepoStore) List(ctx context.Context) ([]Repo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+repoColumns+` FROM repos ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing repos: %w", err)
	}
	defer rows.Close()

	var repos []Repo
	for rows.Next() {
		r, err := scanRepo(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning repo: %w", err)
		}
		repos = append(repos, *r)
	}
	return repos, rows.Err()
}

// SetStatus updates the status and error message for a repository.
func (s *RepoStore) SetStatus(ctx context.Context, id, status, lastError string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE repos SET status=?, last_error=?, updated_at=datetime('now') WHERE id=?`,
		status, lastError, id)
	if err != nil {
		return fmt.Errorf("updating repo status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkIndexed records a completed index run.
func (s *RepoStore) MarkIndexed(ctx context.Context, id, headSHA string, chunkCount int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE repos SET status='ready', head_sha=?, chunk_count=?, last_error='',
		 last_indexed=datetime('now'), updated_at=datetime('now') WHERE id=?`,
		headSHA, chunkCount, id)
	if err != nil {
		return fmt.Errorf("marking repo indexed: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Remove deletes a repository and its chunk state.
func (s *RepoStore) Remove(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM repos WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("removing repo: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ChunkHashes returns chunk_id -> content_hash for every chunk indexed for
// the repo. Used for incremental reindexing.
func (s *RepoStore) ChunkHashes(ctx context.Context, repoID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_id, content_hash FROM chunk_state WHERE repo_id = ?`, repoID)
	if err != nil {
		return nil, fmt.Errorf("querying chunk state: %w", err)
	}
	defer rows.Close()

	hashes := make(map[string]string)
	for rows.Next() {
		var id, hash string
		if err := rows.Scan(&id, &hash); err != nil {
			return nil, fmt.Errorf("scanning chunk state: %w", err)
		}
		hashes[id] = hash
	}
	return hashes, rows.Err()
}

// UpsertChunk records the content hash of an indexed chunk.
func (s *RepoStore) UpsertChunk(ctx context.Context, repoID, chunkID, contentHash, path string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chunk_state (repo_id, chunk_id, content_hash, path)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(repo_id, chunk_id) DO UPDATE SET content_hash=excluded.content_hash,
		 path=excluded.path, indexed_at=datetime('now')`,
		repoID, chunkID, contentHash, path)
	if err != nil {
		return fmt.Errorf("upserting chunk state: %w", err)
	}
	return nil
}

// DeleteChunks removes chunk state rows no longer present in the repo.
func (s *RepoStore) DeleteChunks(ctx context.Context, repoID string, chunkIDs []string) error {
	for _, id := range chunkIDs {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM chunk_state WHERE repo_id = ? AND chunk_id = ?`, repoID, id); err != nil {
			return fmt.Errorf("deleting chunk state: %w", err)
		}
	}
	return nil
}
