package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
)

var errNoTargetAndNotAll = errors.New("run requires either an id or --all")

var runAll bool

var runCmd = &cobra.Command{
	Use:   "run [id]",
	Short: "Run the pipeline for one change (or every ready change with --all)",
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

		targetID := ""
		if len(args) == 1 {
			targetID = args[0]
		} else if !runAll {
			return errNoTargetAndNotAll
		}

		loop := buildLoop(cfg, st)
		return loop.Run(context.Background(), targetID)
	},
}

func init() {
	runCmd.Flags().BoolVar(&runAll, "all", false, "run every ready change until none remain")
	rootCmd.AddCommand(runCmd)
}
