package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mfarouk/repochat/internal/db"
	"github.com/mfarouk/repochat/internal/progress"
)

var indexCmd = &cobra.Command{
	Use:   "index <name> [url]",
	Short: "Index a repository into the vector store",
	Long: `Clones (or updates) the repository and indexes it: files are chunked,
summarized, and embedded through the batched request engine. Re-running the
command only processes chunks whose content changed.

With a url argument the repository is registered first. With --path the
repository is indexed from a local directory without cloning.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().String("path", "", "index a local directory instead of cloning")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	name := strings.TrimSpace(args[0])
	localPath, _ := cmd.Flags().GetString("path")

	var url string
	if len(args) == 2 {
		url = args[1]
	}
	if url != "" && localPath != "" {
		return fmt.Errorf("specify either a url or --path, not both")
	}

	a, err := buildApp(ctx, progress.NewReporter())
	if err != nil {
		return err
	}
	defer a.Close()

	repo, err := a.repos.Get(ctx, name)
	if err != nil {
		return fmt.Errorf("looking up repository: %w", err)
	}

	switch {
	case repo == nil && url == "" && localPath == "":
		return fmt.Errorf("repository %q is not registered; pass a url or --path to register it", name)

	case repo == nil:
		repo = &db.Repo{Name: name, URL: url}
		if localPath != "" {
			abs, err := filepath.Abs(localPath)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}
			if _, err := os.Stat(abs); err != nil {
				return fmt.Errorf("path does not exist: %s", abs)
			}
			repo.LocalPath = abs
		} else {
			repo.LocalPath = a.workspace.Path(name)
		}
		if err := a.repos.Add(ctx, repo); err != nil {
			return fmt.Errorf("registering repository: %w", err)
		}

	case url != "" && url != repo.URL:
		return fmt.Errorf("repository %q is already registered with url %s", name, repo.URL)
	}

	// Clone or pull unless the repo points at a local directory outside the
	// workspace.
	if repo.URL != "" {
		fmt.Fprintf(os.Stderr, "Updating clone of %s...\n", name)
		if _, err := a.workspace.Ensure(ctx, name, repo.URL); err != nil {
			return fmt.Errorf("cloning repository: %w", err)
		}
	}

	result, err := a.pipeline.Run(ctx, repo)
	if err != nil {
		return fmt.Errorf("indexing %s: %w", name, err)
	}

	fmt.Printf("Indexed %s in %s\n", name, result.Duration.Round(10*time.Millisecond))
	fmt.Printf("  Files walked:    %d\n", result.FilesWalked)
	fmt.Printf("  Chunks total:    %d\n", result.ChunksTotal)
	fmt.Printf("  Chunks changed:  %d\n", result.ChunksChanged)
	fmt.Printf("  Chunks skipped:  %d\n", result.ChunksSkipped)
	if result.ChunksDeleted > 0 {
		fmt.Printf("  Chunks deleted:  %d\n", result.ChunksDeleted)
	}
	if result.ChunksFailed > 0 {
		fmt.Printf("  Chunks failed:   %d (will be retried on the next run)\n", result.ChunksFailed)
	}

	summarizeStatus := a.summarizer.Tracker().Snapshot()
	embedStatus := a.embedSvc.Tracker().Snapshot()
	if verbose {
		fmt.Printf("  Summarize engine: %d batches, %d cache hits, %d fallbacks\n",
			summarizeStatus.Started, summarizeStatus.CacheHits, summarizeStatus.Fallbacks)
		fmt.Printf("  Embed engine:     %d batches, %d cache hits, %d fallbacks\n",
			embedStatus.Started, embedStatus.CacheHits, embedStatus.Fallbacks)
	}

	return nil
}
