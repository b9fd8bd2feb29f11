package changes

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Diff is a unified line diff between two snapshots.
type Diff struct {
	Unified   string
	Additions int
	Deletions int
	// Changed holds the added and removed lines in diff order, with their
	// leading '+' or '-'.
	Changed []string
}

// ComputeDiff produces a unified diff from previous to current with
// "previous" and "current" file headers.
func ComputeDiff(previous, current string) (Diff, error) {
	if previous == current {
		return Diff{}, nil
	}
	unified, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        splitLines(previous),
		B:        splitLines(current),
		FromFile: "previous",
		ToFile:   "current",
		Context:  3,
	})
	if err != nil {
		return Diff{}, fmt.Errorf("unified diff: %w", err)
	}

	d := Diff{Unified: unified}
	inHunk := false
	for _, line := range strings.Split(unified, "\n") {
		if strings.HasPrefix(line, "@@") {
			inHunk = true
			continue
		}
		if !inHunk {
			continue
		}
		switch {
		case strings.HasPrefix(line, "+"):
			d.Additions++
			d.Changed = append(d.Changed, line)
		case strings.HasPrefix(line, "-"):
			d.Deletions++
			d.Changed = append(d.Changed, line)
		}
	}
	return d, nil
}

// splitLines splits s into newline-terminated lines. Unlike
// difflib.SplitLines, empty input yields no lines.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		return lines[:len(lines)-1]
	}
	lines[len(lines)-1] += "\n"
	return lines
}

// Excerpt returns at most n changed lines joined by newlines.
func (d Diff) Excerpt(n int) string {
	lines := d.Changed
	if n > 0 && len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n")
}

// SimpleSummary describes a diff from its line counts alone.
func SimpleSummary(additions, deletions int) string {
	switch {
	case additions > 0 && deletions > 0:
		return fmt.Sprintf("Modified content: %d additions, %d deletions", additions, deletions)
	case additions > 0:
		return fmt.Sprintf("Added %d lines of content", additions)
	case deletions > 0:
		return fmt.Sprintf("Removed %d lines of content", deletions)
	default:
		return "Minor formatting changes"
	}
}
