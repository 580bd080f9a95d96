package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/specq-run/specq/internal/models"
)

var statusCmd = &cobra.Command{
	Use:   "status [id]",
	Short: "Show one change's status, or every change's status",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		if len(args) == 1 {
			wi, err := st.GetWorkItem(args[0])
			if err != nil {
				return err
			}
			if wi == nil {
				return fmt.Errorf("unknown change %q", args[0])
			}
			printWorkItem(wi)
			return nil
		}

		items, err := st.ListWorkItems()
		if err != nil {
			return err
		}
		for _, wi := range items {
			printWorkItem(wi)
		}
		return nil
	},
}

func printWorkItem(wi *models.WorkItem) {
	fmt.Printf("%-24s %-12s risk=%-6s retries=%d/%d  %s\n",
		wi.ID, wi.Status, wi.Risk, wi.RetryCount, wi.MaxRetries, wi.Title)
	if wi.ErrorMessage != "" {
		fmt.Printf("  error: %s\n", wi.ErrorMessage)
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
