package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/specq-run/specq/internal/models"
)

// newOverrideCmd builds a manual status-override verb: accept, reject,
// retry, and skip all follow the same shape — load the item, require it
// exist, check the verb's source-state precondition (if any), set the new
// status, log the override under the verb's own event name.
func newOverrideCmd(use, short string, status models.Status, requireFrom models.Status) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
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

			id := args[0]
			wi, err := st.GetWorkItem(id)
			if err != nil {
				return err
			}
			if wi == nil {
				return fmt.Errorf("unknown change %q", id)
			}
			if requireFrom != "" && wi.Status != requireFrom {
				return fmt.Errorf("%s requires status %q, change %q is %q", use, requireFrom, id, wi.Status)
			}

			if status == models.StatusReady {
				// retry re-arms with a reset budget, mirroring a fresh
				// manual attempt rather than counting against max_retries.
				if err := st.UpdateRetryCount(id, 0); err != nil {
					return err
				}
			}
			if err := st.UpdateStatus(id, status); err != nil {
				return err
			}
			return st.LogEvent(id, use, fmt.Sprintf(`{"status":%q}`, status))
		},
	}
}

func init() {
	rootCmd.AddCommand(newOverrideCmd("accept", "Manually mark a change as accepted", models.StatusAccepted, models.StatusNeedsReview))
	rootCmd.AddCommand(newOverrideCmd("reject", "Manually mark a change as failed", models.StatusFailed, ""))
	rootCmd.AddCommand(newOverrideCmd("retry", "Manually re-arm a change for another run", models.StatusReady, models.StatusFailed))
	rootCmd.AddCommand(newOverrideCmd("skip", "Manually mark a change as skipped", models.StatusSkipped, ""))
}
