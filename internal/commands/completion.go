// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"path"
	"sort"
	"strings"

	"github.com/markusbegerow/local-llm-chat/internal/workspace"
)

// maxCompletions caps the candidates offered for one key press.
const maxCompletions = 20

// =============================================================================
// COMPLETION TYPES
// =============================================================================

// Completion is one candidate for the text being typed.
type Completion struct {
	// Value replaces the partial token
	Value string

	// Description is shown next to the value where the host can
	Description string

	// Score ranks candidates, higher first
	Score int
}

// =============================================================================
// COMPLETER
// =============================================================================

// Completer handles tab completion for commands and path arguments.
type Completer struct {
	registry  *Registry
	workspace *workspace.Workspace
}

// NewCompleter creates a completer. ws may be nil, which disables path
// completion.
func NewCompleter(registry *Registry, ws *workspace.Workspace) *Completer {
	return &Completer{registry: registry, workspace: ws}
}

// Complete returns candidates for the last token of input.
func (c *Completer) Complete(input string) []Completion {
	if !strings.HasPrefix(strings.TrimLeft(input, " \t"), "/") {
		return nil
	}
	trimmed := strings.TrimLeft(input, " \t")

	parts := splitCommandLine(trimmed)
	if len(parts) == 1 && !strings.HasSuffix(trimmed, " ") {
		return c.completeCommands(parts[0])
	}
	if len(parts) == 0 {
		return c.completeCommands("/")
	}

	cmd := c.registry.Get(parts[0])
	if cmd == nil || len(cmd.Args) == 0 {
		return nil
	}

	partial := ""
	if !strings.HasSuffix(trimmed, " ") && len(parts) > 1 {
		partial = parts[len(parts)-1]
	}

	switch cmd.Args[0].Type {
	case ArgTypeFile:
		return c.completePaths(partial, false)
	case ArgTypeDir:
		return c.completePaths(partial, true)
	default:
		return nil
	}
}

// CompleteLine returns whole-line candidates, the shape line editors expect.
func (c *Completer) CompleteLine(line string) []string {
	completions := c.Complete(line)
	if len(completions) == 0 {
		return nil
	}

	// Keep everything up to the partial token.
	head := ""
	if i := strings.LastIndexAny(line, " \t"); i >= 0 {
		head = line[:i+1]
	}

	lines := make([]string, 0, len(completions))
	for _, comp := range completions {
		value := comp.Value
		if strings.ContainsAny(value, " \t") {
			value = `"` + value + `"`
		}
		lines = append(lines, head+value)
	}
	return lines
}

// =============================================================================
// COMMAND COMPLETION
// =============================================================================

func (c *Completer) completeCommands(partial string) []Completion {
	var completions []Completion
	partial = strings.ToLower(partial)

	for _, cmd := range c.registry.All() {
		if strings.HasPrefix(strings.ToLower(cmd.Name), partial) {
			completions = append(completions, Completion{
				Value:       cmd.Name,
				Description: cmd.Description,
				Score:       calculateScore(cmd.Name, partial),
			})
		}
		for _, alias := range cmd.Aliases {
			if strings.HasPrefix(strings.ToLower(alias), partial) {
				completions = append(completions, Completion{
					Value:       alias,
					Description: cmd.Description,
					Score:       calculateScore(alias, partial) - 10,
				})
			}
		}
	}

	sortCompletions(completions)
	return limit(completions)
}

// =============================================================================
// PATH COMPLETION
// =============================================================================

func (c *Completer) completePaths(partial string, dirsOnly bool) []Completion {
	if c.workspace == nil {
		return nil
	}

	dir, prefix := ".", partial
	if i := strings.LastIndex(partial, "/"); i >= 0 {
		dir, prefix = partial[:i+1], partial[i+1:]
	}

	entries, err := c.workspace.ListEntries(dir, false, 1)
	if err != nil {
		return nil
	}

	lowerPrefix := strings.ToLower(prefix)
	var completions []Completion
	for _, e := range entries {
		if dirsOnly && !e.IsDir() {
			continue
		}
		if !strings.HasPrefix(strings.ToLower(e.Name), lowerPrefix) {
			continue
		}
		// Hidden entries only when asked for.
		if strings.HasPrefix(e.Name, ".") && !strings.HasPrefix(prefix, ".") {
			continue
		}

		value := e.Name
		if dir != "." {
			value = path.Join(dir, e.Name)
		}
		score := calculateScore(e.Name, lowerPrefix)
		desc := string(e.Kind)
		if e.IsDir() {
			value += "/"
			score += 5
		}
		completions = append(completions, Completion{Value: value, Description: desc, Score: score})
	}

	sortCompletions(completions)
	return limit(completions)
}

// =============================================================================
// RANKING
// =============================================================================

// calculateScore calculates a match score for completion ranking.
// Higher score = better match.
func calculateScore(value, partial string) int {
	value = strings.ToLower(value)
	partial = strings.ToLower(partial)

	score := 100
	if value == partial {
		return score + 100
	}
	if strings.HasPrefix(value, partial) {
		score += 50
		// Shorter completions first
		score += 20 - len(value)
	}
	score -= len(value) / 2
	return score
}

// sortCompletions sorts completions by score (descending), then alphabetically.
func sortCompletions(completions []Completion) {
	sort.SliceStable(completions, func(i, j int) bool {
		if completions[i].Score != completions[j].Score {
			return completions[i].Score > completions[j].Score
		}
		return completions[i].Value < completions[j].Value
	})
}

func limit(completions []Completion) []Completion {
	if len(completions) > maxCompletions {
		return completions[:maxCompletions]
	}
	return completions
}
