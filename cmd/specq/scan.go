package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/specq-run/specq/internal/graph"
	"github.com/specq-run/specq/internal/scanner"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the changes directory and validate the dependency graph",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		items, _, err := scanner.Scan(cfg.ProjectRoot, cfg.ChangesDir)
		if err != nil {
			return err
		}
		if _, err := graph.Build(items); err != nil {
			return err
		}
		fmt.Printf("found %d change(s) in %s\n", len(items), cfg.ChangesDir)
		for _, it := range items {
			fmt.Printf("  %-24s %-10s risk=%s deps=%v\n", it.ID, it.Status, it.Risk, it.Deps)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
