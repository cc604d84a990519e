package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/juanibiapina/testrun/internal/guard"
	"github.com/juanibiapina/testrun/internal/httpapi"
	"github.com/juanibiapina/testrun/internal/logging"
	"github.com/juanibiapina/testrun/internal/paths"
	"github.com/sevlyar/go-daemon"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// staleSweepInterval is how often the server reaps stale runs in the background
const staleSweepInterval = time.Minute

var (
	serveAddr   string
	serveInline bool
	serveDetach bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the HTTP API server.

Routes:
  POST /api/test-runs                        Start a run {"suite", "baseUrl"}
  GET  /api/test-runs?limit=N                Recent runs, newest first
  GET  /api/test-runs/<run_id>               Run status, summary and artifacts
  GET  /api/test-runs/<run_id>/logs?lines=N  Tail of the run log
  GET  /api/test-runs/<run_id>/artifacts/<path>
  GET  /healthz
  GET  /metrics

The /api routes require basic auth when server.basic_auth_user or
server.basic_auth_pass is configured.

By default every accepted run executes in a detached 'testrun execute'
process, so runs survive a server restart. With --inline, runs execute
inside the server process.

Examples:
  # Serve on the configured address
  testrun serve

  # Serve in the background, writing a pid file and a log file
  testrun serve --detach

Exit codes:
  0: Server stopped (SIGINT or SIGTERM)
  1: Error (address in use, invalid configuration)`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}

		if serveDetach {
			if _, err := paths.EnsureRuntimeDir(); err != nil {
				return err
			}
			dctx := &daemon.Context{
				PidFileName: paths.GetServerPIDPath(),
				PidFilePerm: 0644,
				LogFileName: paths.GetServerLogPath(),
				LogFilePerm: 0600,
				Umask:       027,
			}
			child, err := dctx.Reborn()
			if err != nil {
				return fmt.Errorf("failed to detach server: %w", err)
			}
			if child != nil {
				fmt.Printf("Server started in background with PID %d\n", child.Pid)
				fmt.Printf("  Logs: %s\n", paths.GetServerLogPath())
				return nil
			}
			defer dctx.Release()
		}

		a, err := openApp(serveInline || cfg.Server.Inline)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		server := httpapi.NewServer(a.service, cfg.Server)

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return server.Run(ctx)
		})
		g.Go(func() error {
			sweepStaleRuns(ctx, a.guard, staleSweepInterval)
			return nil
		})

		err = g.Wait()
		logging.Logger.Info("server stopped")
		return err
	},
}

// sweepStaleRuns periodically scans for the active run, which marks stale
// and orphaned runs failed even when nobody starts a new run
func sweepStaleRuns(ctx context.Context, g *guard.Guard, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if run, ok := g.FindActiveRun(ctx); ok {
				logging.Logger.Debug("active run", "run_id", run.RunID, "status", run.Status)
			}
		}
	}
}

func init() {
	RootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
	serveCmd.Flags().BoolVar(&serveInline, "inline", false, "Execute runs inside the server process")
	serveCmd.Flags().BoolVarP(&serveDetach, "detach", "d", false, "Run the server in the background")
}
