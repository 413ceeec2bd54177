// Package indexer orchestrates the full indexing workflow for a repository:
// walk -> chunk -> summarize -> embed -> store. Summarization and embedding
// run through the batch engine, so reindexing an unchanged repo is nearly
// free: unchanged chunks are skipped by hash and changed ones often hit the
// result caches.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/mfarouk/repochat/internal/chunker"
	"github.com/mfarouk/repochat/internal/config"
	"github.com/mfarouk/repochat/internal/db"
	"github.com/mfarouk/repochat/internal/embedindex"
	"github.com/mfarouk/repochat/internal/gitrepo"
	"github.com/mfarouk/repochat/internal/progress"
	"github.com/mfarouk/repochat/internal/summarize"
	"github.com/mfarouk/repochat/internal/vectordb"
	"github.com/mfarouk/repochat/internal/walker"
)

// Result summarizes one indexing run.
type Result struct {
	FilesWalked   int           `json:"files_walked"`
	ChunksTotal   int           `json:"chunks_total"`
	ChunksChanged int           `json:"chunks_changed"`
	ChunksSkipped int           `json:"chunks_skipped"`
	ChunksFailed  int           `json:"chunks_failed"`
	ChunksDeleted int           `json:"chunks_deleted"`
	Duration      time.Duration `json:"duration"`
}

// Pipeline indexes repositories into the vector store.
type Pipeline struct {
	repos      *db.RepoStore
	store      vectordb.VectorStore
	summarizer *summarize.Service
	embedder   *embedindex.Service
	cfg        *config.Config
	reporter   progress.Reporter
}

// NewPipeline creates a pipeline. The reporter may be nil.
func NewPipeline(
	repos *db.RepoStore,
	store vectordb.VectorStore,
	summarizer *summarize.Service,
	embedder *embedindex.Service,
	cfg *config.Config,
	reporter progress.Reporter,
) *Pipeline {
	if reporter == nil {
		reporter = progress.NullReporter{}
	}
	return &Pipeline{
		repos:      repos,
		store:      store,
		summarizer: summarizer,
		embedder:   embedder,
		cfg:        cfg,
		reporter:   reporter,
	}
}

// Run indexes one repository. The repo must already have a local clone.
func (p *Pipeline) Run(ctx context.Context, repo *db.Repo) (*Result, error) {
	start := time.Now()
	result := &Result{}

	if repo.LocalPath == "" {
		return nil, fmt.Errorf("indexer: repo %s has no local path", repo.Name)
	}

	if err := p.repos.SetStatus(ctx, repo.ID, "indexing", ""); err != nil {
		return nil, fmt.Errorf("indexer: mark indexing: %w", err)
	}

	res, err := p.index(ctx, repo, result)
	if err != nil {
		_ = p.repos.SetStatus(ctx, repo.ID, "failed", err.Error())
		return nil, err
	}

	res.Duration = time.Since(start)
	return res, nil
}

func (p *Pipeline) index(ctx context.Context, repo *db.Repo, result *Result) (*Result, error) {
	files, err := walker.Walk(walker.Config{
		Root:    repo.LocalPath,
		Include: p.cfg.Include,
		Exclude: p.cfg.Exclude,
	})
	if err != nil {
		return nil, fmt.Errorf("indexer: walk %s: %w", repo.LocalPath, err)
	}
	result.FilesWalked = len(files)

	// Chunk every file.
	chunkOpts := p.cfg.ChunkOptions()
	var chunks []chunker.Chunk
	for _, f := range files {
		content, err := os.ReadFile(f.Path)
		if err != nil {
			continue
		}
		chunks = append(chunks, chunker.Split(repo.ID, f.RelPath, f.Language, string(content), chunkOpts)...)
	}
	result.ChunksTotal = len(chunks)

	// Diff against the previously indexed state.
	previous, err := p.repos.ChunkHashes(ctx, repo.ID)
	if err != nil {
		return nil, fmt.Errorf("indexer: load chunk state: %w", err)
	}

	current := make(map[string]bool, len(chunks))
	var changed []chunker.Chunk
	for _, c := range chunks {
		current[c.ID] = true
		if previous[c.ID] == c.Hash {
			result.ChunksSkipped++
			continue
		}
		changed = append(changed, c)
	}
	result.ChunksChanged = len(changed)

	// Remove chunks that no longer exist.
	var stale []string
	for id := range previous {
		if !current[id] {
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		for _, id := range stale {
			if err := p.store.DeleteByID(ctx, docID(repo.ID, id)); err != nil {
				return nil, fmt.Errorf("indexer: delete stale chunk %s: %w", id, err)
			}
		}
		if err := p.repos.DeleteChunks(ctx, repo.ID, stale); err != nil {
			return nil, fmt.Errorf("indexer: delete stale state: %w", err)
		}
		result.ChunksDeleted = len(stale)
	}

	if len(changed) > 0 {
		p.reporter.Start(len(changed) * 2)

		p.reporter.Update(0, "Summarizing chunks")
		summaries := p.summarizer.Chunks(ctx, changed)
		p.reporter.Update(len(changed), "Embedding chunks")
		vectors := p.embedder.Chunks(ctx, changed)
		p.reporter.Update(len(changed)*2, "Storing documents")

		var docs []vectordb.Document
		var indexed []chunker.Chunk
		now := time.Now()
		for _, c := range changed {
			vec := vectors[c.ID]
			if vec.WasFallback {
				// A zero vector would poison similarity search; leave the
				// chunk unindexed and let the next run retry it.
				result.ChunksFailed++
				continue
			}

			summary := summaries[c.ID].Value
			docs = append(docs, vectordb.Document{
				ID:        docID(repo.ID, c.ID),
				Content:   summary + "\n\n" + c.Content,
				Embedding: vec.Value,
				Metadata: vectordb.DocumentMetadata{
					RepoID:      repo.ID,
					Path:        c.Path,
					StartLine:   c.StartLine,
					EndLine:     c.EndLine,
					ContentHash: c.Hash,
					Language:    c.Language,
					Summary:     summary,
					LastUpdated: now,
				},
			})
			indexed = append(indexed, c)
		}

		if err := p.store.AddDocuments(ctx, docs); err != nil {
			return nil, fmt.Errorf("indexer: store documents: %w", err)
		}

		// Chunk state is committed only after the store write succeeds, so a
		// failed write leaves the chunks visible to the next run's diff.
		for _, c := range indexed {
			if err := p.repos.UpsertChunk(ctx, repo.ID, c.ID, c.Hash, c.Path); err != nil {
				return nil, fmt.Errorf("indexer: save chunk state: %w", err)
			}
		}

		p.reporter.Finish()
	}

	if err := p.persist(ctx); err != nil {
		return nil, err
	}

	sha := gitrepo.HeadSHA(repo.LocalPath)
	indexed := result.ChunksTotal - result.ChunksFailed
	if err := p.repos.MarkIndexed(ctx, repo.ID, sha, indexed); err != nil {
		return nil, fmt.Errorf("indexer: mark indexed: %w", err)
	}

	return result, nil
}

// persist writes the vector store snapshot under the data directory.
func (p *Pipeline) persist(ctx context.Context) error {
	dir := filepath.Join(p.cfg.DataDir, "index")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("indexer: create index dir: %w", err)
	}
	if err := p.store.Persist(ctx, dir); err != nil {
		return fmt.Errorf("indexer: persist store: %w", err)
	}
	return nil
}

// LoadIndex restores a previously persisted vector store snapshot. A missing
// snapshot is not an error; it just means nothing was indexed yet.
func LoadIndex(ctx context.Context, store vectordb.VectorStore, dataDir string) error {
	dir := filepath.Join(dataDir, "index")
	if err := store.Load(ctx, dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("indexer: load index: %w", err)
	}
	return nil
}

// docID namespaces a chunk ID by repository so repos cannot collide in the
// shared collection.
func docID(repoID, chunkID string) string {
	return repoID + "/" + chunkID
}
