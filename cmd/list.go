package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/juanibiapina/testrun/internal/runstore"
	"github.com/juanibiapina/testrun/internal/service"
	"github.com/spf13/cobra"
)

var (
	listLimit int
	listJSON  bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent test runs",
	Long: `List the most recent test runs, newest first.

Runs are ordered by start time, or by queue time for runs that have not
started yet.

Example output:
  RUN ID                                SUITE         STATUS     STARTED      DURATION  PASSED  FAILED  SKIPPED
  3f0c2a51-5d7e-4a43-9a55-2b8d1f1c9e7a  smoke         running    2 mins ago   running        0       0        0
  8b1e7c30-92f4-4c1b-8f0e-6a2c5d9e3b14  avp_scenario  failed     2 hours ago  4m12s         10       1        2

Exit codes:
  0: Success`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		runs := a.service.List(listLimit)

		if listJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(runs)
		}

		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs found")
			return nil
		}

		t := table.NewWriter()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Run ID", "Suite", "Status", "Started", "Duration", "Passed", "Failed", "Skipped"})
		t.SetColumnConfigs([]table.ColumnConfig{
			{Name: "Duration", Align: text.AlignRight},
			{Name: "Passed", Align: text.AlignRight},
			{Name: "Failed", Align: text.AlignRight},
			{Name: "Skipped", Align: text.AlignRight},
		})

		for _, run := range runs {
			started := "-"
			if when := recordSortTime(run); !when.IsZero() {
				started = formatRelativeTime(when)
			}
			t.AppendRow(table.Row{
				run.RunID,
				run.Suite,
				run.Status,
				started,
				runDuration(run),
				run.Passed,
				run.Failed,
				run.Skipped,
			})
		}

		t.Render()
		return nil
	},
}

// recordSortTime is the time a run is listed by: started, else queued
func recordSortTime(run runstore.RunRecord) time.Time {
	if run.StartedAt != nil {
		return *run.StartedAt
	}
	if run.QueuedAt != nil {
		return *run.QueuedAt
	}
	return time.Time{}
}

// runDuration formats how long a run took, or its state if it has not finished
func runDuration(run runstore.RunRecord) string {
	switch {
	case run.StartedAt != nil && run.FinishedAt != nil:
		return formatDuration(run.FinishedAt.Sub(*run.StartedAt))
	case run.StartedAt != nil:
		return "running"
	case run.Status == runstore.StatusQueued:
		return "queued"
	default:
		return "-"
	}
}

// formatRelativeTime formats a time as a human-readable relative string
func formatRelativeTime(t time.Time) string {
	d := time.Since(t)

	if d < time.Minute {
		return "just now"
	} else if d < time.Hour {
		mins := int(d.Minutes())
		if mins == 1 {
			return "1 min ago"
		}
		return fmt.Sprintf("%d mins ago", mins)
	} else if d < 24*time.Hour {
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	}
	days := int(d.Hours() / 24)
	if days == 1 {
		return "1 day ago"
	}
	return fmt.Sprintf("%d days ago", days)
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		mins := int(d.Minutes())
		secs := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", mins, secs)
	}
	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", hours, mins)
}

func init() {
	RootCmd.AddCommand(listCmd)
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", service.DefaultListLimit,
		fmt.Sprintf("Number of runs to show (1-%d)", service.MaxListLimit))
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
}
