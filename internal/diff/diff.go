// Package diff computes line-oriented diffs between the original and the
// patched data file, using the sergi/go-diff engine.
package diff

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// DefaultContext is the number of unchanged lines kept around a change.
const DefaultContext = 3

// LineType represents the type of diff line
type LineType int

const (
	LineContext LineType = iota // Unchanged context line
	LineAdded                   // Added line
	LineRemoved                 // Removed line
)

// Line is a single line of a hunk. LineNum is the line number in the old
// file for context and removed lines, and in the new file for added lines.
type Line struct {
	LineNum int
	Content string
	Type    LineType
}

// Hunk is a group of changes with surrounding context.
type Hunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Lines    []Line
}

// FileDiff holds the hunks between two versions of one file.
type FileDiff struct {
	OldPath string
	NewPath string
	Hunks   []Hunk
}

// Added returns the number of added lines.
func (fd *FileDiff) Added() int { return fd.count(LineAdded) }

// Removed returns the number of removed lines.
func (fd *FileDiff) Removed() int { return fd.count(LineRemoved) }

func (fd *FileDiff) count(t LineType) int {
	n := 0
	for _, h := range fd.Hunks {
		for _, l := range h.Lines {
			if l.Type == t {
				n++
			}
		}
	}
	return n
}

// Engine wraps a configured diffmatchpatch instance.
type Engine struct {
	dmp     *diffmatchpatch.DiffMatchPatch
	context int
}

// NewEngine returns an engine keeping contextLines of context; a negative
// value selects DefaultContext.
func NewEngine(contextLines int) *Engine {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0 // exact results; inputs are single data files
	if contextLines < 0 {
		contextLines = DefaultContext
	}
	return &Engine{dmp: dmp, context: contextLines}
}

// Compute diffs oldContent against newContent line by line.
func (e *Engine) Compute(oldPath, newPath, oldContent, newContent string) *FileDiff {
	fd := &FileDiff{OldPath: oldPath, NewPath: newPath}
	if oldContent == newContent {
		return fd
	}

	a, b, lineArray := e.dmp.DiffLinesToChars(oldContent, newContent)
	diffs := e.dmp.DiffMain(a, b, false)
	diffs = e.dmp.DiffCharsToLines(diffs, lineArray)

	fd.Hunks = group(toOperations(diffs), e.context)
	return fd
}

// Compute diffs with a default engine.
func Compute(oldPath, newPath, oldContent, newContent string) *FileDiff {
	return NewEngine(DefaultContext).Compute(oldPath, newPath, oldContent, newContent)
}

type operation struct {
	typ     LineType
	oldLine int // 0-based; -1 for added lines
	newLine int // 0-based; -1 for removed lines
	content string
}

func toOperations(diffs []diffmatchpatch.Diff) []operation {
	var ops []operation
	oldLine, newLine := 0, 0
	for _, d := range diffs {
		lines := strings.SplitAfter(d.Text, "\n")
		if lines[len(lines)-1] == "" {
			lines = lines[:len(lines)-1]
		}
		for _, line := range lines {
			content := strings.TrimSuffix(line, "\n")
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				ops = append(ops, operation{LineContext, oldLine, newLine, content})
				oldLine++
				newLine++
			case diffmatchpatch.DiffDelete:
				ops = append(ops, operation{LineRemoved, oldLine, -1, content})
				oldLine++
			case diffmatchpatch.DiffInsert:
				ops = append(ops, operation{LineAdded, -1, newLine, content})
				newLine++
			}
		}
	}
	return ops
}

// group splits operations into hunks, merging changes separated by at most
// 2*context unchanged lines.
func group(ops []operation, context int) []Hunk {
	var changed []int
	for i, op := range ops {
		if op.typ != LineContext {
			changed = append(changed, i)
		}
	}
	if len(changed) == 0 {
		return nil
	}

	var hunks []Hunk
	start := max(changed[0]-context, 0)
	end := changed[0]
	for _, idx := range changed[1:] {
		if idx-end > 2*context {
			hunks = append(hunks, makeHunk(ops, start, min(end+context, len(ops)-1)))
			start = max(idx-context, 0)
		}
		end = idx
	}
	return append(hunks, makeHunk(ops, start, min(end+context, len(ops)-1)))
}

func makeHunk(ops []operation, from, to int) Hunk {
	h := Hunk{OldStart: -1, NewStart: -1}
	oldNext, newNext := 0, 0
	for _, op := range ops[from : to+1] {
		if op.oldLine >= 0 {
			if h.OldStart < 0 {
				h.OldStart = op.oldLine + 1
			}
			oldNext = op.oldLine + 1
		}
		if op.newLine >= 0 {
			if h.NewStart < 0 {
				h.NewStart = op.newLine + 1
			}
			newNext = op.newLine + 1
		}
		line := Line{Content: op.content, Type: op.typ, LineNum: op.oldLine + 1}
		if op.typ == LineAdded {
			line.LineNum = op.newLine + 1
		}
		h.Lines = append(h.Lines, line)

		if op.typ != LineAdded {
			h.OldCount++
		}
		if op.typ != LineRemoved {
			h.NewCount++
		}
	}
	// Pure insertions/deletions anchor at the preceding line.
	if h.OldStart < 0 {
		h.OldStart = oldNext
	}
	if h.NewStart < 0 {
		h.NewStart = newNext
	}
	return h
}
