package cmd

import (
	"strings"

	"github.com/juanibiapina/testrun/internal/paths"
	"github.com/juanibiapina/testrun/internal/runstore"
	"github.com/spf13/cobra"
)

// completeRunIDs provides completion for run IDs
func completeRunIDs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	// Only complete the first argument
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	if err := loadConfig(); err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	root, err := paths.EnsureRunsDir(cfg.RunsDir)
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}

	var completions []string
	for _, run := range runstore.New(root).RecentRuns(50) {
		if strings.HasPrefix(run.RunID, toComplete) {
			// Format: runID\tsuite status (tab-separated for description)
			completions = append(completions, run.RunID+"\t"+run.Suite+" "+string(run.Status))
		}
	}

	return completions, cobra.ShellCompDirectiveNoFileComp
}
