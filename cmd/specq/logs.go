package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:   "logs <id>",
	Short: "Show a change's run log",
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

		events, err := st.GetLogs(args[0])
		if err != nil {
			return err
		}
		for _, e := range events {
			fmt.Printf("%s  %-12s %s\n", e.CreatedAt.Format("2006-01-02T15:04:05Z07:00"), e.Event, e.Detail)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logsCmd)
}
