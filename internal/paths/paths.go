package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
)

// GetStateDir returns the state directory for persistent data (survives reboots)
func GetStateDir() string {
	return filepath.Join(xdg.StateHome, "testrun")
}

// GetRuntimeDir returns the runtime directory for pid and server log files
func GetRuntimeDir() string {
	return filepath.Join(xdg.RuntimeDir, "testrun")
}

// GetDefaultRunsDir returns the default root for run directories
func GetDefaultRunsDir() string {
	return filepath.Join(GetStateDir(), "runs")
}

// GetTempRunsDir returns the runs root used on read-only hosts
func GetTempRunsDir() string {
	return filepath.Join(os.TempDir(), "runs")
}

// GetLockDatabasePath returns the path of the sqlite lock database for a runs root.
// It lives inside the root so every process sharing the root shares the lock.
func GetLockDatabasePath(runsDir string) string {
	return filepath.Join(runsDir, ".state", "locks.db")
}

// GetServerPIDPath returns the pid file used by a detached API server
func GetServerPIDPath() string {
	return filepath.Join(GetRuntimeDir(), "server.pid")
}

// GetServerLogPath returns the log file used by a detached API server
func GetServerLogPath() string {
	return filepath.Join(GetRuntimeDir(), "server.log")
}

// EnsureRuntimeDir creates the runtime directory if it doesn't exist
func EnsureRuntimeDir() (string, error) {
	runtimeDir := GetRuntimeDir()
	if err := os.MkdirAll(runtimeDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create runtime directory: %w", err)
	}
	return runtimeDir, nil
}

// EnsureRunsDir resolves and creates the runs root.
//
// An explicit dir is expanded and made absolute. Otherwise the XDG state dir is
// used, or the temp dir when VERCEL=1 (serverless hosts are read-only except
// for temp). If the chosen default cannot be created, the temp dir is used.
func EnsureRunsDir(dir string) (string, error) {
	if dir != "" {
		root, err := expand(dir)
		if err != nil {
			return "", err
		}
		if err := os.MkdirAll(root, 0755); err != nil {
			return "", fmt.Errorf("failed to create runs directory: %w", err)
		}
		return root, nil
	}

	root := GetDefaultRunsDir()
	if os.Getenv("VERCEL") == "1" {
		root = GetTempRunsDir()
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		root = GetTempRunsDir()
		if err := os.MkdirAll(root, 0755); err != nil {
			return "", fmt.Errorf("failed to create runs directory: %w", err)
		}
	}
	return root, nil
}

func expand(dir string) (string, error) {
	if dir == "~" || strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory: %w", err)
		}
		dir = filepath.Join(home, dir[1:])
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve runs directory: %w", err)
	}
	return abs, nil
}
