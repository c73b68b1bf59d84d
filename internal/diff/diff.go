// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package diff computes line diffs between the current content of a file and
// a proposed replacement, for showing what an overwrite would change.
package diff

import (
	"fmt"
	"strings"
)

// DefaultContext is the number of unchanged lines shown around a change.
const DefaultContext = 3

// maxCells bounds the LCS table. Larger inputs are reported as a full
// replacement.
const maxCells = 4_000_000

// =============================================================================
// TYPES
// =============================================================================

// Op is the kind of a diff line.
type Op int

const (
	// Equal lines appear in both versions.
	Equal Op = iota
	// Insert lines appear only in the new version.
	Insert
	// Delete lines appear only in the old version.
	Delete
)

// Prefix returns the unified diff marker for the op.
func (o Op) Prefix() string {
	switch o {
	case Insert:
		return "+"
	case Delete:
		return "-"
	default:
		return " "
	}
}

// Line is one line of a diff.
type Line struct {
	Op   Op
	Text string
}

// Hunk is a run of changes with surrounding context. Starts are 1-based;
// a zero count puts the start on the line before, as in unified diffs.
type Hunk struct {
	OldStart, OldCount int
	NewStart, NewCount int
	Lines              []Line
}

// Result is the full line diff of two texts.
type Result struct {
	Lines   []Line
	Added   int
	Removed int
}

// =============================================================================
// COMPUTATION
// =============================================================================

// Lines diffs oldText against newText line by line using a longest common
// subsequence.
func Lines(oldText, newText string) Result {
	a, b := splitLines(oldText), splitLines(newText)

	var lines []Line
	if len(a)*len(b) > maxCells {
		lines = make([]Line, 0, len(a)+len(b))
		for _, s := range a {
			lines = append(lines, Line{Op: Delete, Text: s})
		}
		for _, s := range b {
			lines = append(lines, Line{Op: Insert, Text: s})
		}
	} else {
		lines = lcsLines(a, b)
	}

	r := Result{Lines: lines}
	for _, l := range lines {
		switch l.Op {
		case Insert:
			r.Added++
		case Delete:
			r.Removed++
		}
	}
	return r
}

// splitLines splits on newlines. A final newline does not start a line.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

// lcsLines walks the suffix LCS table forward, preferring deletions so that
// removed lines print before their replacements.
func lcsLines(a, b []string) []Line {
	m, n := len(a), len(b)
	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
	}
	for i := m - 1; i >= 0; i-- {
		for j := n - 1; j >= 0; j-- {
			if a[i] == b[j] {
				dp[i][j] = dp[i+1][j+1] + 1
			} else {
				dp[i][j] = max(dp[i+1][j], dp[i][j+1])
			}
		}
	}

	out := make([]Line, 0, m+n)
	i, j := 0, 0
	for i < m && j < n {
		switch {
		case a[i] == b[j]:
			out = append(out, Line{Op: Equal, Text: a[i]})
			i++
			j++
		case dp[i+1][j] >= dp[i][j+1]:
			out = append(out, Line{Op: Delete, Text: a[i]})
			i++
		default:
			out = append(out, Line{Op: Insert, Text: b[j]})
			j++
		}
	}
	for ; i < m; i++ {
		out = append(out, Line{Op: Delete, Text: a[i]})
	}
	for ; j < n; j++ {
		out = append(out, Line{Op: Insert, Text: b[j]})
	}
	return out
}

// Identical reports whether the two texts had the same lines.
func (r Result) Identical() bool {
	return r.Added == 0 && r.Removed == 0
}

// =============================================================================
// HUNKS
// =============================================================================

// Hunks groups changes with context unchanged lines on each side. Changes
// separated by at most 2*context unchanged lines share a hunk.
func (r Result) Hunks(context int) []Hunk {
	if context < 0 {
		context = 0
	}
	n := len(r.Lines)

	// oldNo[k] and newNo[k] count the lines consumed before index k.
	oldNo := make([]int, n+1)
	newNo := make([]int, n+1)
	for k, l := range r.Lines {
		oldNo[k+1], newNo[k+1] = oldNo[k], newNo[k]
		if l.Op != Insert {
			oldNo[k+1]++
		}
		if l.Op != Delete {
			newNo[k+1]++
		}
	}

	var hunks []Hunk
	for k := 0; k < n; {
		if r.Lines[k].Op == Equal {
			k++
			continue
		}
		start := max(0, k-context)
		end := k
		for end < n {
			if r.Lines[end].Op != Equal {
				end++
				continue
			}
			run := end
			for run < n && r.Lines[run].Op == Equal {
				run++
			}
			if run == n || run-end > 2*context {
				break
			}
			end = run
		}
		stop := min(n, end+context)

		h := Hunk{
			OldStart: oldNo[start] + 1,
			OldCount: oldNo[stop] - oldNo[start],
			NewStart: newNo[start] + 1,
			NewCount: newNo[stop] - newNo[start],
			Lines:    r.Lines[start:stop],
		}
		if h.OldCount == 0 {
			h.OldStart--
		}
		if h.NewCount == 0 {
			h.NewStart--
		}
		hunks = append(hunks, h)
		k = stop
	}
	return hunks
}

// =============================================================================
// FORMATTING
// =============================================================================

// Unified renders the diff in unified format with the given context.
func (r Result) Unified(path string, context int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "--- a/%s\n+++ b/%s\n", path, path)
	for _, h := range r.Hunks(context) {
		fmt.Fprintf(&sb, "@@ -%d,%d +%d,%d @@\n", h.OldStart, h.OldCount, h.NewStart, h.NewCount)
		for _, l := range h.Lines {
			sb.WriteString(l.Op.Prefix())
			sb.WriteString(l.Text)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// Summary returns "+added -removed".
func (r Result) Summary() string {
	return fmt.Sprintf("+%d -%d", r.Added, r.Removed)
}
