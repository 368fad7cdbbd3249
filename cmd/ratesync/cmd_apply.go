package main

import (
	"fmt"

	"ratesync/internal/diff"
	"ratesync/internal/report"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	writeTarget bool
	outPath     string
	showDiff    bool
)

// applyCmd patches the database and optionally persists it
var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Patch the database and, with --write or --out, save the result",
	Long: `Applies the dataset to the database and lists every value that changed.

Without --write or --out this is a dry run. With --write the target file is
replaced atomically; --out writes the patched copy elsewhere. After writing,
the file is re-read and checked against the dataset.

Example:
  ratesync apply --diff
  ratesync apply --write --extended`,
	Args: cobra.NoArgs,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().BoolVar(&writeTarget, "write", false, "Replace the target file with the patched document")
	applyCmd.Flags().StringVarP(&outPath, "out", "o", "", "Write the patched document to this path instead")
	applyCmd.Flags().BoolVar(&showDiff, "diff", false, "Print a unified diff of the changes")
}

func runApply(cmd *cobra.Command, args []string) error {
	in, res, err := loadAndPatch()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if err := report.Changes(out, res.Changes); err != nil {
		return err
	}
	if err := report.Skipped(out, res.Skipped); err != nil {
		return err
	}
	fmt.Fprintln(out)
	if err := report.Summary(out, res.Notes, reportLimit()); err != nil {
		return err
	}
	warnKeepGoing(cmd, res)

	if showDiff {
		fd := diff.Compute(in.TargetPath, in.TargetPath+" (patched)",
			string(in.Document.Source()), string(in.Document.Bytes()))
		fmt.Fprintln(out)
		if err := report.Diff(out, fd); err != nil {
			return err
		}
	}

	dest := outPath
	if dest == "" && writeTarget {
		dest = in.TargetPath
	}
	if dest == "" {
		fmt.Fprintf(out, "\nDry run: %d value(s) would change. Re-run with --write to persist.\n", len(res.Changes))
		return nil
	}
	if dest == in.TargetPath && !in.Document.Changed() {
		fmt.Fprintf(out, "\n%s is already up to date.\n", dest)
		return nil
	}

	n, err := in.Persist(dest, logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nWrote %s to %s\n", humanize.Bytes(uint64(n)), dest)

	issues, err := in.Verify(dest, checkOptions())
	if err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}
	if len(issues) == 0 {
		fmt.Fprintln(out, "All rates now match the dataset.")
		return nil
	}
	if err := report.Discrepancies(out, issues); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d issues remaining\n", len(issues))
	return nil
}
