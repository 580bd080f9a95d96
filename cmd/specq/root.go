package main

import (
	"github.com/spf13/cobra"
)

var projectRoot string

var rootCmd = &cobra.Command{
	Use:   "specq",
	Short: "Spec-driven change orchestrator",
	Long: `specq scans a directory of change proposals, validates their dependency
graph, and drives each one through a compile -> execute -> verify -> decide
pipeline using pluggable AI-agent workers.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&projectRoot, "project", ".", "project root directory")
}

// Execute runs the CLI and returns the first error encountered.
func Execute() error {
	return rootCmd.Execute()
}
