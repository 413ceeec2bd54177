package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mfarouk/repochat/internal/chat"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question about an indexed repository",
	Long:  `Searches the vector store for code relevant to the question and asks the configured LLM with that context. Pass --session to continue a conversation.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().String("repo", "", "repository name to ask about")
	askCmd.Flags().String("session", "", "session ID to continue")
	askCmd.Flags().Int("limit", 0, "maximum number of chunks to retrieve")
	askCmd.Flags().Bool("json", false, "output the answer as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	question := args[0]

	repoName, _ := cmd.Flags().GetString("repo")
	sessionID, _ := cmd.Flags().GetString("session")
	limit, _ := cmd.Flags().GetInt("limit")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a, err := buildApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.store.Count() == 0 {
		fmt.Println("Vector store is empty. Run `repochat index` first.")
		return nil
	}

	req := chat.Request{
		SessionID:  sessionID,
		Question:   question,
		MaxResults: limit,
	}
	if repoName != "" {
		repo, err := a.repos.Get(ctx, repoName)
		if err != nil {
			return fmt.Errorf("looking up repository: %w", err)
		}
		if repo == nil {
			return fmt.Errorf("repository %q not found", repoName)
		}
		req.RepoID = repo.ID
	}

	resp, err := a.chat.Ask(ctx, req)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	fmt.Println(resp.Answer)
	if len(resp.Sources) > 0 {
		fmt.Println("\nSources:")
		for _, src := range resp.Sources {
			fmt.Printf("  %s:%d-%d (%.3f)\n", src.Path, src.StartLine, src.EndLine, src.Similarity)
		}
	}
	if resp.SessionID != "" {
		fmt.Printf("\nSession: %s (pass --session %s to continue)\n", resp.SessionID, resp.SessionID)
	}
	return nil
}
