package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/hygaudit/internal/config"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "hygaudit",
	Short: "Hygiene audit answers and versioned report generation",
	Long: `hygaudit records food hygiene audits against configurable checklists and
generates a versioned report every time an audit is completed. Reports are
kept as numbered versions with exactly one latest version per audit, and are
served over a REST API, a live websocket feed and an MCP server for AI agents.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultPath, "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
