package cmd

import (
	"fmt"

	"github.com/juanibiapina/testrun/internal/tail"
	"github.com/spf13/cobra"
)

var (
	logsLines  int
	logsFollow bool
)

var logsCmd = &cobra.Command{
	Use:               "logs <run_id>",
	Short:             "Show the output of a run",
	ValidArgsFunction: completeRunIDs,
	Long: `Show the combined stdout and stderr of a run's test process.

Without --follow, prints the last lines of the log (default: log_tail_lines
from the configuration, at most 2000).

With --follow, prints the whole log and keeps streaming new output until
the run finishes.

The log also carries lines written by testrun itself:
  [2026-03-01T09:00:01Z] Starting command: python -m pytest ...
  [2026-03-01T09:04:13Z] Test process exited with code 1

Example:
  # Last 50 lines
  testrun logs -n 50 8b1e7c30-92f4-4c1b-8f0e-6a2c5d9e3b14

  # Stream until the run ends
  testrun logs -f 8b1e7c30-92f4-4c1b-8f0e-6a2c5d9e3b14

Exit codes:
  0: Success (or the run finished while following)
  1: Error (run not found)`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		runID := args[0]

		if !logsFollow {
			logs, err := a.service.Logs(runID, logsLines)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), logs.Logs)
			return nil
		}

		if _, err := a.service.Get(runID); err != nil {
			return err
		}
		finished := func() bool {
			run, ok := a.store.ReadStatus(runID)
			return ok && run.Status.IsTerminal()
		}
		return tail.Follow(cmd.Context(), a.store.LogPath(runID), 0, cmd.OutOrStdout(), finished)
	},
}

func init() {
	RootCmd.AddCommand(logsCmd)
	logsCmd.Flags().IntVarP(&logsLines, "lines", "n", 0, "Number of lines to show (default: log_tail_lines)")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output until the run finishes")
}
