// Package report renders run results for the terminal.
package report

import (
	"fmt"
	"io"

	"ratesync/internal/check"
	"ratesync/internal/diff"
	"ratesync/internal/patch"
)

// DefaultLimit is the number of notes printed before truncation.
const DefaultLimit = 20

// Advisory points the operator at the persisting command.
const Advisory = "Run `ratesync apply --write` to persist these updates."

// Notes prints the significant directional-split summary: a count, up to
// limit notes, the number left out, and the advisory line.
func Notes(w io.Writer, notes []patch.Note, limit int) error {
	if err := Summary(w, notes, limit); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%s\n", Advisory)
	return err
}

// Summary is Notes without the advisory line.
func Summary(w io.Writer, notes []patch.Note, limit int) error {
	if limit <= 0 {
		limit = DefaultLimit
	}
	ew := &errWriter{w: w}
	ew.printf("Found %d significant directional split changes needed:\n", len(notes))
	for i, n := range notes {
		if i == limit {
			break
		}
		ew.printf("  %s\n", n)
	}
	if len(notes) > limit {
		ew.printf("  ... and %d more\n", len(notes)-limit)
	}
	return ew.err
}

// Changes lists every replaced value, grouped in patch order.
func Changes(w io.Writer, changes []patch.Change) error {
	ew := &errWriter{w: w}
	if len(changes) == 0 {
		ew.printf("No values changed.\n")
		return ew.err
	}
	ew.printf("%d value(s) changed:\n", len(changes))
	for _, c := range changes {
		ew.printf("  %s\n", c)
	}
	return ew.err
}

// Skipped prints dataset codes that have no record in the document.
func Skipped(w io.Writer, codes []string) error {
	if len(codes) == 0 {
		return nil
	}
	ew := &errWriter{w: w}
	ew.printf("%d code(s) not found in the document:", len(codes))
	for _, c := range codes {
		ew.printf(" %s", c)
	}
	ew.printf("\n")
	return ew.err
}

// Discrepancies prints the output of a rate check.
func Discrepancies(w io.Writer, issues []check.Issue) error {
	ew := &errWriter{w: w}
	if len(issues) == 0 {
		ew.printf("No significant discrepancies found\n")
		return ew.err
	}
	ew.printf("Found %d significant discrepancies:\n\n", len(issues))
	for _, is := range issues {
		ew.printf("%s\n", is)
	}
	return ew.err
}

// Diff prints a file diff in unified format.
func Diff(w io.Writer, fd *diff.FileDiff) error {
	ew := &errWriter{w: w}
	if fd == nil || len(fd.Hunks) == 0 {
		return nil
	}
	ew.printf("--- %s\n+++ %s\n", fd.OldPath, fd.NewPath)
	for _, h := range fd.Hunks {
		ew.printf("@@ -%d,%d +%d,%d @@\n", h.OldStart, h.OldCount, h.NewStart, h.NewCount)
		for _, l := range h.Lines {
			switch l.Type {
			case diff.LineAdded:
				ew.printf("+%s\n", l.Content)
			case diff.LineRemoved:
				ew.printf("-%s\n", l.Content)
			default:
				ew.printf(" %s\n", l.Content)
			}
		}
	}
	return ew.err
}

// errWriter keeps the first write error so callers check once.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...interface{}) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
