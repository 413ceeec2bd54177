package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mfarouk/repochat/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file interactively",
	Long:  `Runs an interactive wizard that selects the LLM provider, models, and request budgets, and writes the result to .repochat.yml.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(config.DefaultPath); err == nil {
			force, _ := cmd.Flags().GetBool("force")
			if !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", config.DefaultPath)
			}
		}

		_, err := config.RunWizard()
		return err
	},
}

func init() {
	initCmd.Flags().Bool("force", false, "overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}
