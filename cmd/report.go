package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/hygaudit/internal/activity"
	"github.com/ziadkadry99/hygaudit/internal/audits"
	"github.com/ziadkadry99/hygaudit/internal/progress"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Inspect and maintain report versions",
}

var reportListCmd = &cobra.Command{
	Use:   "list <audit-id>",
	Short: "List the report versions of an audit, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		versions, err := a.audits.ListVersions(cmd.Context(), args[0])
		if errors.Is(err, audits.ErrNotFound) {
			return fmt.Errorf("no audit with id %q", args[0])
		}
		if err != nil {
			return err
		}
		if len(versions) == 0 {
			fmt.Println("No report versions yet.")
			return nil
		}
		for _, v := range versions {
			latest := ""
			if v.IsLatest {
				latest = "latest"
			}
			fmt.Printf("v%-4d %-36s %-10s %-6s %s", v.VersionNumber, v.ID, v.Status, latest, v.CreatedAt.Format("2006-01-02 15:04"))
			if v.Error != "" {
				fmt.Printf("  %s", v.Error)
			}
			fmt.Println()
		}
		return nil
	},
}

var reportRepairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Fail interrupted report versions and restore latest flags",
	Long: `Marks every report version left pending or generating by a stopped server as
failed, then makes sure each audit's latest flag points at its newest finished
version. Run it while the server is stopped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		ctx := cmd.Context()
		recovered, err := a.jobs.Recover(ctx)
		if err != nil {
			return fmt.Errorf("recovering interrupted reports: %w", err)
		}

		ids, err := a.registry.AuditIDs(ctx)
		if err != nil {
			return err
		}

		reporter := progress.NewReporter("Repairing latest flags")
		reporter.Start(len(ids))
		repaired := 0
		for i, id := range ids {
			changed, err := a.registry.RepairLatest(ctx, id)
			if err != nil {
				reporter.Finish()
				return fmt.Errorf("repairing audit %s: %w", id, err)
			}
			if changed {
				repaired++
				err := a.activity.Log(ctx, activity.Entry{
					ActorType: activity.ActorSystem,
					Action:    activity.ActionLatestRepaired,
					AuditID:   id,
					Summary:   "Latest report flag repaired",
				})
				if err != nil {
					a.logger.Warn().Err(err).Str("audit_id", id).Msg("logging repair")
				}
			}
			reporter.Update(i+1, id)
		}
		reporter.Finish()

		fmt.Printf("Failed %d interrupted version(s); repaired latest flag on %d of %d audit(s)\n", recovered, repaired, len(ids))
		return nil
	},
}

func init() {
	reportCmd.AddCommand(reportListCmd, reportRepairCmd)
	rootCmd.AddCommand(reportCmd)
}
