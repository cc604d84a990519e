package cmd

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/juanibiapina/testrun/internal/guard"
	"github.com/juanibiapina/testrun/internal/runstore"
)

func TestServeHelpDocumentsRequestBody(t *testing.T) {
	// the start body is decoded as {"suite", "baseUrl"} by internal/httpapi
	if !strings.Contains(serveCmd.Long, `{"suite", "baseUrl"}`) {
		t.Errorf("serve help does not document the start request body:\n%s", serveCmd.Long)
	}
}

func TestSweepStaleRuns(t *testing.T) {
	store := runstore.New(t.TempDir())
	store.CreateRun("run-1", "smoke", "")
	store.UpdateStatus("run-1", runstore.WithExecutor(99999, ""))

	g := guard.New(store, nil, time.Hour)
	g.SetProcessCheck(func(int, time.Time) bool { return false })

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	sweepStaleRuns(ctx, g, 10*time.Millisecond)

	run, _ := store.ReadStatus("run-1")
	if run.Status != runstore.StatusFailed {
		t.Errorf("expected the sweep to fail the orphaned queued run, got %s", run.Status)
	}
}
