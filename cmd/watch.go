package cmd

import (
	"github.com/juanibiapina/testrun/internal/tui"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:               "watch [run_id]",
	Short:             "Launch interactive TUI",
	ValidArgsFunction: completeRunIDs,
	Long: `Launch an interactive terminal user interface for test runs.

The TUI provides a full-screen split-panel interface with:
  - Left panel: Recent runs with status indicators
  - Right panel: Details of the selected run and its live log
  - Real-time updates every second

LAYOUT:
  ┌─ Runs ─────────────────┬─ Run ─────────────────────────┐
  │ ● 3f0c2a51 smoke       │ Status   running  1m12s so far │
  │ ✗ 8b1e7c30 avp_scen... ├─ Logs (following) ────────────┤
  │ ✓ 1d4f9b02 smoke       │ test_login PASSED             │
  └────────────────────────┴───────────────────────────────┘

KEYBINDINGS:
  ↑/k, ↓/j   Move selection or scroll the log
  g/G        Jump to top or bottom
  tab        Switch between the runs and logs panels
  f          Toggle log following
  y          Copy the selected run ID
  r          Start a new run with the selected run's suite
  ?          Show all keybindings
  q          Quit

Without a run ID the most recent run is selected.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		runID := ""
		if len(args) == 1 {
			runID = args[0]
			if _, err := a.service.Get(runID); err != nil {
				return err
			}
		}
		return tui.Run(a.service, runID)
	},
}

func init() {
	RootCmd.AddCommand(watchCmd)
}
