package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	mcpserver "github.com/ziadkadry99/hygaudit/internal/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server for AI agent integration",
	Long:  `Starts a Model Context Protocol (MCP) server on stdio, exposing read-only audit and report tools for AI agents.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		mcpserver.Version = Version

		fmt.Fprintf(os.Stderr, "hygaudit MCP server started on stdio (db=%s)\n", a.cfg.Database.Path)

		srv := mcpserver.NewServer(a.audits)
		return srv.Serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
