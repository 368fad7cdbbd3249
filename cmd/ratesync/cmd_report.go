package main

import (
	"ratesync/internal/report"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// reportCmd prints the significant directional split changes
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print significant directional split changes (no files are written)",
	Long: `Patches the database in memory and lists every code whose AM or PM
entering/exiting split moves by more than the tolerance (default 5).

Codes in the dataset that are missing from the database are skipped.`,
	Args: cobra.NoArgs,
	RunE: runReport,
}

func runReport(cmd *cobra.Command, args []string) error {
	_, res, err := loadAndPatch()
	if err != nil {
		return err
	}
	logger.Debug("Patch complete",
		zap.Int("notes", len(res.Notes)),
		zap.Int("changes", len(res.Changes)),
		zap.Int("skipped", len(res.Skipped)))

	if err := report.Notes(cmd.OutOrStdout(), res.Notes, reportLimit()); err != nil {
		return err
	}
	warnKeepGoing(cmd, res)
	return nil
}
