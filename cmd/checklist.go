package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/hygaudit/internal/checklist"
	"github.com/ziadkadry99/hygaudit/internal/progress"
)

var checklistPattern string

var checklistCmd = &cobra.Command{
	Use:   "checklist",
	Short: "Manage audit checklists",
}

var checklistImportCmd = &cobra.Command{
	Use:   "import [dir]",
	Short: "Import checklist definitions from YAML files",
	Long: `Imports every checklist file under dir (the current directory by default)
matching --pattern. Existing checklists with the same id are replaced; a file
that fails to parse is reported and the rest are still imported.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := "."
		if len(args) == 1 {
			root = args[0]
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		paths, err := checklist.FindFiles(root, checklistPattern)
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			fmt.Printf("No checklist files matching %q under %s\n", checklistPattern, root)
			return nil
		}

		reporter := progress.NewReporter("Importing checklists")
		reporter.Start(len(paths))
		result := checklist.ImportFiles(cmd.Context(), a.checklists, paths, func(done, total int, path string) {
			reporter.Update(done, path)
		})
		reporter.Finish()

		fmt.Printf("Imported %d checklist(s)\n", len(result.Imported))
		for _, err := range result.Errors {
			fmt.Printf("  failed: %v\n", err)
		}
		if len(result.Errors) > 0 {
			return fmt.Errorf("%d checklist file(s) failed to import", len(result.Errors))
		}
		return nil
	},
}

var checklistListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored checklists",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		lists, err := a.checklists.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(lists) == 0 {
			fmt.Println("No checklists. Run `hygaudit checklist import` to add some.")
			return nil
		}
		for _, c := range lists {
			fmt.Printf("%-20s %s\n", c.ID, c.Name)
		}
		return nil
	},
}

func init() {
	checklistImportCmd.Flags().StringVar(&checklistPattern, "pattern", "**/*.{yml,yaml}", "doublestar glob of checklist files")
	checklistCmd.AddCommand(checklistImportCmd, checklistListCmd)
	rootCmd.AddCommand(checklistCmd)
}
