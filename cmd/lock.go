package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var lockForce bool

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Inspect or release the active-run lock",
	Long: `Inspect or release the lock that keeps a single run active.

The lock is taken when a run is accepted and released when it finishes.
It expires on its own after lock_ttl. These commands exist for operators
recovering from a crashed host.

Subcommands:
  lock status   Show who holds the lock
  lock release  Release a lock held by a finished or unknown run`,
}

var lockStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show who holds the active-run lock",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		info, err := a.locker.Current(cmd.Context())
		if err != nil {
			return err
		}
		if info == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Lock is free")
			return nil
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Lock held by run %s\n", info.Holder)
		if run, ok := a.store.ReadStatus(info.Holder); ok {
			fmt.Fprintf(cmd.OutOrStdout(), "  Status:  %s\n", run.Status)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "  Status:  unknown (run not found)\n")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "  Owner:   %s\n", info.Owner)
		fmt.Fprintf(cmd.OutOrStdout(), "  Expires: %s (in %s)\n",
			info.ExpiresAt.Format(time.RFC3339), formatDuration(time.Until(info.ExpiresAt)))
		return nil
	},
}

var lockReleaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Release the active-run lock",
	Long: `Release the active-run lock.

By default the lock is only released when its run is finished or missing.
Use --force to release a lock held by a run that is still queued or running;
that run keeps executing but no longer blocks new runs.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		info, err := a.locker.Current(cmd.Context())
		if err != nil {
			return err
		}
		if info == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Lock is free")
			return nil
		}

		if run, ok := a.store.ReadStatus(info.Holder); ok && !run.Status.IsTerminal() && !lockForce {
			return fmt.Errorf("run %s is still %s (use --force to release anyway)", info.Holder, run.Status)
		}

		if err := a.locker.Release(cmd.Context(), info.Holder); err != nil {
			return fmt.Errorf("failed to release lock: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Released lock held by run %s\n", info.Holder)
		return nil
	},
}

func init() {
	RootCmd.AddCommand(lockCmd)
	lockCmd.AddCommand(lockStatusCmd)
	lockCmd.AddCommand(lockReleaseCmd)
	lockReleaseCmd.Flags().BoolVarP(&lockForce, "force", "f", false, "Release even if the run is still active")
}
