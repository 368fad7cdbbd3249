package main

import (
	"fmt"

	"ratesync/internal/logging"
	"ratesync/internal/pipeline"
	"ratesync/internal/report"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var failOnIssues bool

// checkCmd compares the database with the dataset without patching
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "List rate and split discrepancies between the database and the dataset",
	Long: `Reports AM/PM rates that differ from the dataset by more than
check.rate_tolerance_pct percent (default 10) and entering shares that differ
by more than check.split_tolerance points (default 10).

Use --fail to exit non-zero when discrepancies exist (for CI).`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&failOnIssues, "fail", false, "Exit non-zero if discrepancies are found")
}

func runCheck(cmd *cobra.Command, args []string) error {
	in, err := pipeline.Load(cfg.Dataset, cfg.Target, logger)
	if err != nil {
		return err
	}
	issues, err := in.Check(checkOptions())
	if err != nil {
		return err
	}
	logging.Get(logger, logging.CategoryCheck).Debug("Check complete", zap.Int("issues", len(issues)))

	out := cmd.OutOrStdout()
	if err := report.Discrepancies(out, issues); err != nil {
		return err
	}
	if len(issues) == 0 {
		color.New(color.FgGreen).Fprintln(out, "OK")
		return nil
	}
	color.New(color.FgYellow).Fprintf(out, "\n%d discrepancies\n", len(issues))
	if failOnIssues {
		return fmt.Errorf("%d discrepancies found", len(issues))
	}
	return nil
}
