package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var artifactOutput string

var artifactCmd = &cobra.Command{
	Use:               "artifact <run_id> [path]",
	Short:             "List or download the artifacts of a run",
	ValidArgsFunction: completeRunIDs,
	Long: `List or download the files a run produced.

Without a path, lists the run's artifacts. With a path relative to the run
directory, writes that file to stdout or to the file given by --output.

Example:
  # List artifacts
  testrun artifact 8b1e7c30-92f4-4c1b-8f0e-6a2c5d9e3b14

  # Save the HTML report
  testrun artifact 8b1e7c30-92f4-4c1b-8f0e-6a2c5d9e3b14 report.html -o report.html

Exit codes:
  0: Success
  1: Error (run or artifact not found, path outside the run directory)`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		runID := args[0]

		if len(args) == 1 {
			record, err := a.service.Get(runID)
			if err != nil {
				return err
			}
			if len(record.Artifacts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No artifacts found")
				return nil
			}
			for _, artifact := range record.Artifacts {
				fmt.Fprintln(cmd.OutOrStdout(), artifact.Path)
			}
			return nil
		}

		file, err := a.service.Artifact(runID, args[1])
		if err != nil {
			return err
		}

		src, err := os.Open(file.Path)
		if err != nil {
			return fmt.Errorf("failed to open artifact: %w", err)
		}
		defer src.Close()

		var dst io.Writer = cmd.OutOrStdout()
		if artifactOutput != "" {
			out, err := os.Create(artifactOutput)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer out.Close()
			dst = out
		}

		if _, err := io.Copy(dst, src); err != nil {
			return fmt.Errorf("failed to copy artifact: %w", err)
		}
		if artifactOutput != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "Saved %s to %s\n", file.Name, artifactOutput)
		}
		return nil
	},
}

func init() {
	RootCmd.AddCommand(artifactCmd)
	artifactCmd.Flags().StringVarP(&artifactOutput, "output", "o", "", "Write the artifact to this file instead of stdout")
}
