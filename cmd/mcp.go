package cmd

import (
	"github.com/juanibiapina/testrun/internal/mcp"
	"github.com/juanibiapina/testrun/internal/version"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server on stdio",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This allows AI agents to start test runs, wait for them and read their
results through the MCP protocol.

Example configuration for .mcp.json:
  {
    "mcpServers": {
      "testrun": {
        "command": "testrun",
        "args": ["mcp"]
      }
    }
  }`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		server := mcp.NewServer(version.Version, a.service)
		return server.Serve()
	},
}

func init() {
	RootCmd.AddCommand(mcpCmd)
}
