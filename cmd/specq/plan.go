package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/specq-run/specq/internal/graph"
	"github.com/specq-run/specq/internal/scanner"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the current ready/blocked plan without running anything",
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
		graph.UpdateBlockedReady(items)

		for _, it := range items {
			unlock := g.TransitiveDependentCount(it.ID)
			fmt.Printf("%-24s %-10s priority=%-3d risk=%-6s unlocks=%d\n",
				it.ID, it.Status, it.Priority, it.Risk, unlock)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(planCmd)
}
