package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/juanibiapina/testrun/internal/logging"
	"github.com/juanibiapina/testrun/internal/paths"
	"github.com/juanibiapina/testrun/internal/runstore"
	"github.com/spf13/cobra"
)

var executeCmd = &cobra.Command{
	Use:    "execute <run_id>",
	Hidden: true, // Hidden from help - only used internally by the process dispatcher
	Short:  "Execute a queued run (internal use only)",
	Args:   cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runID := args[0]

		root, err := paths.EnsureRunsDir(cfg.RunsDir)
		if err != nil {
			return err
		}
		store := runstore.New(root)
		claimRun(store, runID)

		a, err := openApp(false)
		if err != nil {
			failRun(store, runID, err)
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		result, err := a.service.Execute(ctx, runID)
		if err != nil {
			return err
		}
		logging.Logger.Info("run finished", "run_id", result.RunID, "status", result.Status, "exit_code", result.ExitCode)
		return nil
	},
}

// claimRun records this process as the executor of a queued run, so the
// guard can reap the run if the process dies before it starts running
func claimRun(store *runstore.Store, runID string) {
	run, ok := store.ReadStatus(runID)
	if !ok || run.Status.IsTerminal() {
		return
	}

	host, _ := os.Hostname()
	if _, err := store.UpdateStatus(runID, runstore.WithExecutor(os.Getpid(), host)); err != nil {
		logging.Logger.Error("failed to claim run", "run_id", runID, "error", err)
	}
}

// failRun forces a run that could not be executed to failed. The run store
// needs no lock, so this works even when the lock backend is unreachable.
func failRun(store *runstore.Store, runID string, cause error) {
	run, ok := store.ReadStatus(runID)
	if !ok || run.Status.IsTerminal() {
		return
	}

	_, err := store.UpdateStatus(runID,
		runstore.WithStatus(runstore.StatusFailed),
		runstore.WithFinishedAt(runstore.Now()),
		runstore.WithMessage(fmt.Sprintf("Runner crashed: %v", cause)),
	)
	if err != nil {
		logging.Logger.Error("failed to mark crashed run", "run_id", runID, "error", err)
	}
}

func init() {
	RootCmd.AddCommand(executeCmd)
}
