package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"cruise-drop-alerts/internal/service"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the polling service (and the admin API when enabled)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Run(cmd.Context())
	},
}

var runOnceCmd = &cobra.Command{
	Use:   "run-once",
	Short: "Fetch, compare, persist and notify once, then exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		outcome, err := getApp().RunOnce(cmd.Context())
		if err != nil {
			return err
		}
		return reportOutcome(cmd.OutOrStdout(), outcome)
	},
}

var testNotifyCmd = &cobra.Command{
	Use:   "test-notify",
	Short: "Send a synthetic price drop digest through the configured routes",
	RunE: func(cmd *cobra.Command, args []string) error {
		outcome, err := getApp().SendTest(cmd.Context())
		if err != nil {
			return err
		}
		return reportOutcome(cmd.OutOrStdout(), outcome)
	},
}

// reportOutcome prints the outcome and turns failed runs into a non-zero exit.
func reportOutcome(out io.Writer, o service.Outcome) error {
	fmt.Fprintf(out, "run %s: %s: %s\n", o.RunID, o.Status, o.Message)
	if o.Status != service.StatusSkipped {
		fmt.Fprintf(out, "offerings=%d drops=%d pages=%d truncated=%t\n", o.Offerings, o.Drops, o.Pages, o.Truncated)
	}
	if o.Status == service.StatusFailed {
		return fmt.Errorf("run failed: %w", o.Err)
	}
	return nil
}
