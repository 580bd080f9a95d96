package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var votesCmd = &cobra.Command{
	Use:   "votes <id>",
	Short: "Show a change's recorded voter verdicts for its latest attempt",
	Args:  cobra.ExactArgs(1),
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

		wi, err := st.GetWorkItem(args[0])
		if err != nil {
			return err
		}
		if wi == nil {
			return fmt.Errorf("unknown change %q", args[0])
		}

		attempt := wi.RetryCount + 1
		votes, err := st.GetVoteResults(args[0], attempt)
		if err != nil {
			return err
		}
		fmt.Printf("attempt %d:\n", attempt)
		for _, v := range votes {
			fmt.Printf("  %-20s %-6s confidence=%.2f %s\n", v.VoterName, v.Verdict, v.Confidence, v.Summary)
			for _, f := range v.Findings {
				fmt.Printf("    [%s] %s: %s\n", f.Severity, f.Category, f.Description)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(votesCmd)
}
