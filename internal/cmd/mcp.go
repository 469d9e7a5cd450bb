package cmd

import (
	"os"

	"github.com/hotter6163/taskctl/internal/mcp"
	"github.com/hotter6163/taskctl/internal/query"
	"github.com/spf13/cobra"
)

// mcpVersion is reported to MCP clients during the handshake.
const mcpVersion = "0.1.0"

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP server on stdin/stdout",
	Long: `Serve read-only plan and task queries over the Model Context Protocol.
Implementer sessions register this as a local stdio MCP server and use
it to discover their current task and its dependencies.`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	registry, err := mcp.NewDefaultRegistry(query.New(a.store))
	if err != nil {
		return err
	}
	server := mcp.NewServer(registry, mcp.ServerInfo{Name: "taskctl", Version: mcpVersion}, a.log)

	a.log.Info("mcp server starting")
	return server.Run(ctx, os.Stdin, os.Stdout)
}
