package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/specq-run/specq/internal/graph"
	"github.com/specq-run/specq/internal/scanner"
)

var depsCmd = &cobra.Command{
	Use:   "deps <id>",
	Short: "Show a change's dependencies and dependents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		items, _, err := scanner.Scan(cfg.ProjectRoot, cfg.ChangesDir)
		if err != nil {
			return err
		}
		g, err := graph.Build(items)
		if err != nil {
			return err
		}

		id := args[0]
		fmt.Printf("%s depends on: %v\n", id, g.DependsOnIDs(id))
		fmt.Printf("%s is depended on by: %v\n", id, g.DependentIDs(id))
		fmt.Printf("transitive unlock count: %d\n", g.TransitiveDependentCount(id))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(depsCmd)
}
