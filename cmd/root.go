package cmd

import (
	"os"

	"github.com/juanibiapina/testrun/internal/config"
	"github.com/juanibiapina/testrun/internal/logging"
	"github.com/juanibiapina/testrun/internal/version"
	"github.com/spf13/cobra"
)

// configPath is the --config flag. Empty means testrun.yaml in the current directory.
var configPath string

// cfg is loaded once per invocation by PersistentPreRunE
var cfg *config.Config

// skipConfig lists commands that must work without a valid configuration
var skipConfig = map[string]bool{
	"completion": true, // shell completion
	"__complete": true, // internal completion
	"help":       true,
}

// logsToStderr lists long-running commands that log to stderr when no log
// file is configured. Other commands stay quiet unless logging.file is set.
var logsToStderr = map[string]bool{
	"serve":   true,
	"execute": true,
}

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "testrun",
	Short: "Run the acceptance test suite one run at a time",
	Long: `Start automated test suite runs, track them to completion and fetch their
logs and artifacts.

Only one run is active at a time. Every run gets its own directory with a
status record, a test summary, the combined output of the test process and
any reports, screenshots or videos it produced.

Runs can be started from this CLI, the HTTP API (testrun serve) or an AI
agent through MCP (testrun mcp). All of them share the same run directory.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		name := cmd.Name()
		if skipConfig[name] {
			return nil
		}
		if parent := cmd.Parent(); parent != nil && parent.Name() == "completion" {
			return nil
		}

		if err := loadConfig(); err != nil {
			return err
		}

		if cfg.Logging.File == "" && !logsToStderr[name] {
			return nil
		}
		return logging.Init(cfg.Logging.Level, cfg.Logging.File)
	},
}

// loadConfig reads the configuration once
func loadConfig() error {
	if cfg != nil {
		return nil
	}

	var err error
	if configPath != "" {
		cfg, err = config.LoadFrom(configPath)
	} else {
		cfg, err = config.Load()
	}
	return err
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	err := RootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	// Set version for --version flag
	RootCmd.Version = version.Version

	// Don't show usage on errors - only show it when explicitly requested
	RootCmd.SilenceUsage = true

	RootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default is ./testrun.yaml)")
}
