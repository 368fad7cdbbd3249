package diff

import (
	"fmt"
	"strings"
	"testing"
)

func TestCompute_Replacement(t *testing.T) {
	diff := Compute("old.js", "new.js", "a\nrate: 1\nb\n", "a\nrate: 2\nb\n")

	if len(diff.Hunks) != 1 {
		t.Fatalf("Expected 1 hunk, got %d", len(diff.Hunks))
	}
	h := diff.Hunks[0]
	if h.OldStart != 1 || h.OldCount != 3 || h.NewStart != 1 || h.NewCount != 3 {
		t.Errorf("Unexpected hunk header: -%d,%d +%d,%d", h.OldStart, h.OldCount, h.NewStart, h.NewCount)
	}
	if diff.Added() != 1 || diff.Removed() != 1 {
		t.Errorf("Expected 1 added and 1 removed, got %d/%d", diff.Added(), diff.Removed())
	}
	if diff.OldPath != "old.js" || diff.NewPath != "new.js" {
		t.Errorf("Paths not kept: %s %s", diff.OldPath, diff.NewPath)
	}
}

func TestCompute_Insertion(t *testing.T) {
	diff := Compute("a", "b", "a\nb\n", "a\nx\nb\n")

	if len(diff.Hunks) != 1 {
		t.Fatalf("Expected 1 hunk, got %d", len(diff.Hunks))
	}
	h := diff.Hunks[0]
	if h.OldCount != 2 || h.NewCount != 3 {
		t.Errorf("Expected counts 2/3, got %d/%d", h.OldCount, h.NewCount)
	}

	found := false
	for _, line := range h.Lines {
		if line.Type == LineAdded && line.Content == "x" {
			found = true
			if line.LineNum != 2 {
				t.Errorf("Added line should be new line 2, got %d", line.LineNum)
			}
		}
	}
	if !found {
		t.Error("Expected to find added line 'x'")
	}
}

func TestCompute_NewFile(t *testing.T) {
	diff := Compute("/dev/null", "b", "", "a\nb\n")

	if len(diff.Hunks) != 1 {
		t.Fatalf("Expected 1 hunk, got %d", len(diff.Hunks))
	}
	h := diff.Hunks[0]
	if h.OldStart != 0 || h.OldCount != 0 || h.NewStart != 1 || h.NewCount != 2 {
		t.Errorf("Unexpected hunk header: -%d,%d +%d,%d", h.OldStart, h.OldCount, h.NewStart, h.NewCount)
	}
}

func TestCompute_NoChanges(t *testing.T) {
	diff := Compute("a", "b", "same\ncontent\n", "same\ncontent\n")
	if len(diff.Hunks) != 0 {
		t.Errorf("Expected 0 hunks for identical content, got %d", len(diff.Hunks))
	}
	if diff.Added() != 0 || diff.Removed() != 0 {
		t.Error("Expected no counted lines")
	}
}

func TestCompute_MultipleHunks(t *testing.T) {
	var oldLines, newLines []string
	for i := 1; i <= 15; i++ {
		oldLines = append(oldLines, fmt.Sprintf("line%d", i))
		newLines = append(newLines, fmt.Sprintf("line%d", i))
	}
	newLines[2] = "CHANGED3"
	newLines[12] = "CHANGED13"

	diff := Compute("old", "new", strings.Join(oldLines, "\n")+"\n", strings.Join(newLines, "\n")+"\n")

	if len(diff.Hunks) != 2 {
		t.Fatalf("Expected 2 hunks, got %d", len(diff.Hunks))
	}
	if diff.Hunks[0].OldStart != 1 || diff.Hunks[0].OldCount != 6 {
		t.Errorf("First hunk: -%d,%d", diff.Hunks[0].OldStart, diff.Hunks[0].OldCount)
	}
	if diff.Hunks[1].OldStart != 10 || diff.Hunks[1].OldCount != 6 {
		t.Errorf("Second hunk: -%d,%d", diff.Hunks[1].OldStart, diff.Hunks[1].OldCount)
	}
}

func TestEngine_ContextLines(t *testing.T) {
	oldContent := "line1\nline2\nline3\nline4\nline5\n"
	newContent := "line1\nline2\nCHANGED\nline4\nline5\n"

	diff := NewEngine(0).Compute("old", "new", oldContent, newContent)
	if len(diff.Hunks) != 1 {
		t.Fatalf("Expected 1 hunk, got %d", len(diff.Hunks))
	}
	for _, line := range diff.Hunks[0].Lines {
		if line.Type == LineContext {
			t.Errorf("Expected no context with 0 context lines, got %q", line.Content)
		}
	}

	diff = NewEngine(1).Compute("old", "new", oldContent, newContent)
	if got := len(diff.Hunks[0].Lines); got != 4 {
		t.Errorf("Expected 4 lines with 1 context line, got %d", got)
	}
}

func TestCompute_HunkCountsMatchLines(t *testing.T) {
	diff := Compute("old", "new", "line1\nline2\nline3\n", "line1\nNEW\nline3\nline4\n")

	for _, hunk := range diff.Hunks {
		oldCount, newCount := 0, 0
		for _, line := range hunk.Lines {
			if line.Type != LineAdded {
				oldCount++
			}
			if line.Type != LineRemoved {
				newCount++
			}
		}
		if hunk.OldCount != oldCount {
			t.Errorf("OldCount mismatch: expected %d, got %d", oldCount, hunk.OldCount)
		}
		if hunk.NewCount != newCount {
			t.Errorf("NewCount mismatch: expected %d, got %d", newCount, hunk.NewCount)
		}
	}
}

func BenchmarkCompute_Large(b *testing.B) {
	var lines []string
	for i := 0; i < 2000; i++ {
		lines = append(lines, fmt.Sprintf(`  "%d": { am_peak: { rate: %d.5 } },`, i, i))
	}
	oldContent := strings.Join(lines, "\n")
	lines[1000] = `  "1000": { am_peak: { rate: 9.9 } },`
	newContent := strings.Join(lines, "\n")

	engine := NewEngine(DefaultContext)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		engine.Compute("old", "new", oldContent, newContent)
	}
}
