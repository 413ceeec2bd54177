package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var repoCmd = &cobra.Command{
	Use:   "repo",
	Short: "Manage registered repositories",
}

var repoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all registered repositories",
	RunE:  runRepoList,
}

var repoRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a repository, its clone, and its indexed documents",
	Args:  cobra.ExactArgs(1),
	RunE:  runRepoRemove,
}

func init() {
	repoCmd.AddCommand(repoListCmd)
	repoCmd.AddCommand(repoRemoveCmd)
	rootCmd.AddCommand(repoCmd)
}

func runRepoList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := buildApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	repos, err := a.repos.List(ctx)
	if err != nil {
		return fmt.Errorf("listing repositories: %w", err)
	}
	if len(repos) == 0 {
		fmt.Println("No repositories registered. Use `repochat index <name> <url>` to add one.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTATUS\tCHUNKS\tLAST INDEXED\tURL")
	for _, r := range repos {
		lastIndexed := "-"
		if r.LastIndexed != nil {
			lastIndexed = r.LastIndexed.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", r.Name, r.Status, r.ChunkCount, lastIndexed, r.URL)
	}
	return w.Flush()
}

func runRepoRemove(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	name := args[0]

	a, err := buildApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	repo, err := a.repos.Get(ctx, name)
	if err != nil {
		return fmt.Errorf("looking up repository: %w", err)
	}
	if repo == nil {
		return fmt.Errorf("repository %q not found", name)
	}

	if err := a.store.DeleteByRepoID(ctx, repo.ID); err != nil {
		return fmt.Errorf("removing indexed documents: %w", err)
	}
	indexDir := filepath.Join(a.cfg.DataDir, "index")
	if err := os.MkdirAll(indexDir, 0o755); err != nil {
		return fmt.Errorf("creating index dir: %w", err)
	}
	if err := a.store.Persist(ctx, indexDir); err != nil {
		return fmt.Errorf("persisting vector store: %w", err)
	}

	// The clone only exists inside the workspace for cloned repos; ignore
	// missing directories for --path registrations.
	if repo.URL != "" {
		if err := a.workspace.Remove(name); err != nil {
			return fmt.Errorf("removing clone: %w", err)
		}
	}

	if err := a.repos.Remove(ctx, name); err != nil {
		return fmt.Errorf("removing record: %w", err)
	}

	fmt.Printf("Repository %q removed\n", name)
	return nil
}
