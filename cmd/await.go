package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/juanibiapina/testrun/internal/runstore"
	"github.com/juanibiapina/testrun/internal/tail"
	"github.com/spf13/cobra"
)

var (
	awaitTimeout time.Duration
	awaitQuiet   bool
)

var awaitCmd = &cobra.Command{
	Use:               "await <run_id>",
	Short:             "Wait for a run to finish and show its result",
	ValidArgsFunction: completeRunIDs,
	Long: `Wait for a run to finish, streaming its output in real-time.

For queued or running runs:
  - Streams the run log as it is written (unless --quiet)
  - Waits until the run reaches succeeded or failed
  - Shows the run status and test summary

For finished runs:
  - Displays the complete log and the result

The run continues in the background if you press Ctrl+C or the timeout
expires.

Examples:
  # Wait for a run
  testrun await 8b1e7c30-92f4-4c1b-8f0e-6a2c5d9e3b14

  # Give up after ten minutes
  testrun await --timeout 10m 8b1e7c30-92f4-4c1b-8f0e-6a2c5d9e3b14

Exit codes:
  0: Run succeeded
  1: Run failed, timeout expired, or error (run not found)`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		runID := args[0]
		if _, err := a.service.Get(runID); err != nil {
			return err
		}

		ctx := cmd.Context()
		if awaitTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, awaitTimeout)
			defer cancel()
		}

		if !awaitQuiet {
			finished := func() bool {
				run, ok := a.store.ReadStatus(runID)
				return ok && run.Status.IsTerminal()
			}
			if err := tail.Follow(ctx, a.store.LogPath(runID), 0, cmd.OutOrStdout(), finished); err != nil && ctx.Err() == nil {
				return err
			}
		}

		record, err := a.service.Await(ctx, runID, time.Second)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			status := runstore.StatusQueued
			if record != nil {
				status = record.Status
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nRun %s is still %s and continues in the background\n", runID, status)
			return fmt.Errorf("stopped waiting for run %s", runID)
		}
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout())
		printRun(cmd.OutOrStdout(), record)

		if record.Status != runstore.StatusSucceeded {
			return fmt.Errorf("run %s failed", runID)
		}
		return nil
	},
}

func init() {
	RootCmd.AddCommand(awaitCmd)
	awaitCmd.Flags().DurationVarP(&awaitTimeout, "timeout", "t", 0, "Stop waiting after this long (0 waits indefinitely)")
	awaitCmd.Flags().BoolVarP(&awaitQuiet, "quiet", "q", false, "Do not stream the run log while waiting")
}
