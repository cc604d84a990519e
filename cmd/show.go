package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/juanibiapina/testrun/internal/runstore"
	"github.com/spf13/cobra"
)

var showJSON bool

var showCmd = &cobra.Command{
	Use:               "show <run_id>",
	Short:             "Show the status of a run",
	ValidArgsFunction: completeRunIDs,
	Long: `Show the status, test summary and artifacts of a run.

Example output:
  Run 8b1e7c30-92f4-4c1b-8f0e-6a2c5d9e3b14
    Suite:     avp_scenario
    Base URL:  (default)
    Status:    failed
    Message:   Run failed. See logs and artifacts for details.
    Queued:    2026-03-01T09:00:00Z
    Started:   2026-03-01T09:00:01Z
    Finished:  2026-03-01T09:04:13Z (4m12s)
    Tests:     13 total, 10 passed, 1 failed, 2 skipped
    Artifacts:
      report.html  /api/test-runs/8b1e7c30-.../artifacts/report.html

Exit codes:
  0: Success
  1: Error (run not found)`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		record, err := a.service.Get(args[0])
		if err != nil {
			return err
		}

		if showJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(record)
		}

		printRun(cmd.OutOrStdout(), record)
		return nil
	},
}

// printRun prints a run record in human-readable form
func printRun(w io.Writer, run *runstore.RunRecord) {
	fmt.Fprintf(w, "Run %s\n", run.RunID)
	fmt.Fprintf(w, "  Suite:     %s\n", run.Suite)
	if run.BaseURL != nil {
		fmt.Fprintf(w, "  Base URL:  %s\n", *run.BaseURL)
	} else {
		fmt.Fprintf(w, "  Base URL:  (default)\n")
	}
	fmt.Fprintf(w, "  Status:    %s\n", run.Status)
	if run.Message != nil {
		fmt.Fprintf(w, "  Message:   %s\n", *run.Message)
	}
	if run.QueuedAt != nil {
		fmt.Fprintf(w, "  Queued:    %s\n", run.QueuedAt.Format(time.RFC3339))
	}
	if run.StartedAt != nil {
		fmt.Fprintf(w, "  Started:   %s\n", run.StartedAt.Format(time.RFC3339))
	}
	if run.FinishedAt != nil {
		fmt.Fprintf(w, "  Finished:  %s (%s)\n", run.FinishedAt.Format(time.RFC3339), runDuration(*run))
	}
	fmt.Fprintf(w, "  Tests:     %d total, %d passed, %d failed, %d skipped\n",
		run.Total, run.Passed, run.Failed, run.Skipped)

	if len(run.Artifacts) == 0 {
		return
	}
	fmt.Fprintf(w, "  Artifacts:\n")
	for _, artifact := range run.Artifacts {
		fmt.Fprintf(w, "    %s  %s\n", artifact.Path, artifact.DownloadURL)
	}
}

func init() {
	RootCmd.AddCommand(showCmd)
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output in JSON format")
}
