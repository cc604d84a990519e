package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	startBaseURL string
	startJSON    bool
)

var startCmd = &cobra.Command{
	Use:   "start <suite>",
	Short: "Start a test run",
	Long: `Start a run of the given test suite.

The run is queued and handed to a detached executor process, so this
command returns immediately. Only one run can be active at a time; if
another run is queued or running the request is rejected.

Example:
  # Start the smoke suite against the default dashboard
  testrun start smoke

  # Start a suite against another environment
  testrun start avp_scenario --base-url https://staging.example.com

Output:
  Started run <run_id> (queued)

Exit codes:
  0: Run accepted
  1: Error (unsupported suite, another run active, failed to dispatch)`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.service.Start(cmd.Context(), args[0], startBaseURL)
		if err != nil {
			return err
		}

		if startJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Started run %s (%s)\n", result.RunID, result.Status)
		fmt.Fprintf(cmd.OutOrStdout(), "  testrun logs -f %s   # follow output\n", result.RunID)
		fmt.Fprintf(cmd.OutOrStdout(), "  testrun await %s     # wait for the result\n", result.RunID)
		return nil
	},
}

func init() {
	RootCmd.AddCommand(startCmd)
	startCmd.Flags().StringVar(&startBaseURL, "base-url", "", "Base URL the tests run against (default: configured dashboard)")
	startCmd.Flags().BoolVar(&startJSON, "json", false, "Output in JSON format")
}
