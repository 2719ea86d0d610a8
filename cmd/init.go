package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/hygaudit/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize hygaudit configuration with an interactive wizard",
	Long:  `Runs an interactive wizard to configure the audit server and writes the result to the config file (.hygaudit.yml by default).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := config.RunWizard(cfgFile)
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
