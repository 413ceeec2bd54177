// Package cmd contains the repochat CLI commands.
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "repochat",
	Short: "Chat with a code repository",
	Long: `Repochat indexes git repositories into a semantic vector store and
answers natural-language questions about the code. Summarization and
embedding calls are batched, budgeted, and cached so repeated indexing
stays cheap.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", ".repochat.yml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
