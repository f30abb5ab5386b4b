package commands

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "docpipe",
	Short: "Validated extraction pipeline for semi-structured documents",
	Long: `docpipe runs documents through a deduplication gate, a category
classifier, and a self-correcting model extraction loop, validating every
candidate against a category schema and checkpointing progress so an
interrupted batch resumes where it left off.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}
