package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/juanibiapina/testrun/internal/executor"
	"github.com/juanibiapina/testrun/internal/guard"
	"github.com/juanibiapina/testrun/internal/lock"
	"github.com/juanibiapina/testrun/internal/paths"
	"github.com/juanibiapina/testrun/internal/runstore"
	"github.com/juanibiapina/testrun/internal/service"
)

// app holds the components wired from the loaded configuration
type app struct {
	store   *runstore.Store
	locker  lock.Locker
	guard   *guard.Guard
	service *service.Service
	inline  *service.InlineDispatcher
}

// openApp wires the run store, lock, guard, executor and service.
// With inline set, accepted runs execute in goroutines of this process
// instead of detached `testrun execute` processes.
func openApp(inline bool) (*app, error) {
	root, err := paths.EnsureRunsDir(cfg.RunsDir)
	if err != nil {
		return nil, err
	}

	locker, err := lock.Open(cfg.Lock, root)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock: %w", err)
	}

	a := &app{
		store:  runstore.New(root),
		locker: locker,
	}
	a.guard = guard.New(a.store, locker, cfg.LockTTL)

	exec := executor.New(a.store, executor.RealLauncher{}, executor.Options{
		Command:        cfg.Runner.Command,
		Workdir:        cfg.Runner.Workdir,
		DefaultBaseURL: cfg.DefaultBaseURL,
		Timeout:        cfg.LockTTL,
	})

	var dispatcher service.Dispatcher
	if inline {
		a.inline = service.NewInlineDispatcher(func(ctx context.Context, runID string) error {
			_, err := a.service.Execute(ctx, runID)
			return err
		})
		dispatcher = a.inline
	} else {
		dispatcher = &service.ProcessDispatcher{ConfigPath: absConfigPath()}
	}

	a.service = service.New(*cfg, a.store, a.guard, exec, service.WithDispatcher(dispatcher))
	return a, nil
}

// Close waits for inline runs and closes the lock backend
func (a *app) Close() error {
	if a.inline != nil {
		a.inline.Wait()
	}
	return a.locker.Close()
}

// absConfigPath returns --config as an absolute path so detached executors
// read the same file regardless of their working directory
func absConfigPath() string {
	if configPath == "" {
		return ""
	}
	abs, err := filepath.Abs(configPath)
	if err != nil {
		return configPath
	}
	return abs
}
