// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/alecthomas/chroma/v2/lexers"

	"github.com/markusbegerow/local-llm-chat/internal/util"
	"github.com/markusbegerow/local-llm-chat/internal/workspace"
)

const (
	// maxListEntries caps a /list report.
	maxListEntries = 500

	// maxSearchResults is the largest max /search accepts.
	maxSearchResults = 1000

	// maxNameWidth truncates long names in reports.
	maxNameWidth = 96
)

// ErrNoWorkspace is returned by workspace commands when no folder is open.
var ErrNoWorkspace = errors.New("no workspace folder is open")

func requireWorkspace(env *Env) (*workspace.Workspace, error) {
	if env == nil || env.Workspace == nil {
		return nil, ErrNoWorkspace
	}
	return env.Workspace, nil
}

// =============================================================================
// /read
// =============================================================================

// HandleRead reads a file and hands its content to the conversation.
func HandleRead(_ context.Context, env *Env, args []string) (Result, error) {
	if len(args) == 0 {
		return Result{}, &UsageError{Command: "/read", Message: "missing file path", Usage: "/read <path>"}
	}
	ws, err := requireWorkspace(env)
	if err != nil {
		return Result{}, err
	}

	rel := strings.Join(args, " ")
	content, err := ws.ReadFile(rel)
	if err != nil {
		return Result{}, err
	}

	display := filepath.ToSlash(rel)
	lines := strings.Count(content, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		lines++
	}

	report := fmt.Sprintf("Read `%s` (%s, %d %s). Its content is now part of the conversation.",
		display, util.FormatBytes(int64(len(content))), lines, plural(lines, "line", "lines"))

	fence := fenceFor(content)
	var msg strings.Builder
	fmt.Fprintf(&msg, "Content of file `%s`:\n\n", display)
	msg.WriteString(fence)
	msg.WriteString(languageFor(display))
	msg.WriteString("\n")
	msg.WriteString(content)
	if !strings.HasSuffix(content, "\n") {
		msg.WriteString("\n")
	}
	msg.WriteString(fence)

	return Result{Report: report, ContextMessage: msg.String()}, nil
}

// fenceFor returns a backtick fence longer than any backtick run in content.
func fenceFor(content string) string {
	longest, run := 0, 0
	for _, r := range content {
		if r == '`' {
			run++
			if run > longest {
				longest = run
			}
			continue
		}
		run = 0
	}
	if longest < 3 {
		return "```"
	}
	return strings.Repeat("`", longest+1)
}

// languageFor picks a fence language tag from the file name.
func languageFor(path string) string {
	lexer := lexers.Match(filepath.Base(path))
	if lexer == nil {
		return ""
	}
	cfg := lexer.Config()
	if len(cfg.Aliases) > 0 {
		return cfg.Aliases[0]
	}
	return strings.ToLower(cfg.Name)
}

// =============================================================================
// /list
// =============================================================================

const listUsage = "/list [path] [-r [depth]] [-d depth]"

// HandleList lists a workspace directory, directories first.
func HandleList(_ context.Context, env *Env, args []string) (Result, error) {
	ws, err := requireWorkspace(env)
	if err != nil {
		return Result{}, err
	}

	rel := "."
	recursive := false
	depth := 0
	var pathParts []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch arg {
		case "-r", "--recursive", "-d", "--depth":
			recursive = true
			// A number is a depth only directly after a flag; elsewhere it is a path.
			if i+1 < len(args) && isNumber(args[i+1]) {
				n, _ := strconv.Atoi(args[i+1])
				if n < 1 {
					return Result{}, &UsageError{Command: "/list", Message: "depth must be at least 1", Usage: listUsage}
				}
				depth = n
				i++
			} else if arg == "-d" || arg == "--depth" {
				return Result{}, &UsageError{Command: "/list", Message: arg + " needs a number", Usage: listUsage}
			}
		default:
			pathParts = append(pathParts, arg)
		}
	}
	if len(pathParts) > 0 {
		rel = strings.Join(pathParts, " ")
	}
	if recursive && depth == 0 {
		depth = workspace.DefaultListDepth
	}

	entries, err := ws.ListEntries(rel, recursive, depth)
	if err != nil {
		return Result{}, err
	}

	title := "the workspace root"
	if clean := filepath.ToSlash(filepath.Clean(rel)); clean != "." {
		title = "`" + clean + "`"
	}
	if len(entries) == 0 {
		return Result{Report: fmt.Sprintf("%s is empty.", capitalize(title))}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Contents of %s", title)
	if recursive {
		fmt.Fprintf(&b, " (depth %d)", depth)
	}
	b.WriteString(":\n\n")

	shown := entries
	if len(shown) > maxListEntries {
		shown = shown[:maxListEntries]
	}
	for _, e := range shown {
		name := util.TruncateWidth(e.Name, maxNameWidth)
		if e.IsDir() {
			name += "/"
		}
		fmt.Fprintf(&b, "%s- `%s`\n", strings.Repeat("  ", e.Depth), name)
	}
	if hidden := len(entries) - len(shown); hidden > 0 {
		fmt.Fprintf(&b, "\n... and %d more", hidden)
	}

	return Result{Report: strings.TrimRight(b.String(), "\n")}, nil
}

// =============================================================================
// /search
// =============================================================================

// HandleSearch finds files matching a glob pattern.
func HandleSearch(_ context.Context, env *Env, args []string) (Result, error) {
	const usage = "/search <pattern> [max]"
	if len(args) == 0 {
		return Result{}, &UsageError{Command: "/search", Message: "missing glob pattern", Usage: usage}
	}
	ws, err := requireWorkspace(env)
	if err != nil {
		return Result{}, err
	}

	pattern := args[0]
	max := workspace.DefaultMaxResults
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 1 {
			return Result{}, &UsageError{Command: "/search", Message: fmt.Sprintf("invalid result limit %q", args[1]), Usage: usage}
		}
		if n > maxSearchResults {
			n = maxSearchResults
		}
		max = n
	}

	matches, err := ws.FindByGlob(pattern, max)
	if err != nil {
		return Result{}, err
	}
	if len(matches) == 0 {
		return Result{Report: fmt.Sprintf("No files match `%s`.", pattern)}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d %s matching `%s`", len(matches), plural(len(matches), "file", "files"), pattern)
	if len(matches) >= max {
		fmt.Fprintf(&b, " (limited to %d)", max)
	}
	b.WriteString(":\n\n")
	for _, m := range matches {
		fmt.Fprintf(&b, "- `%s`\n", util.TruncateWidth(m, maxNameWidth))
	}
	return Result{Report: strings.TrimRight(b.String(), "\n")}, nil
}

// =============================================================================
// /workspace
// =============================================================================

// HandleWorkspace reports the workspace name, location and project markers.
func HandleWorkspace(_ context.Context, env *Env, _ []string) (Result, error) {
	ws, err := requireWorkspace(env)
	if err != nil {
		return Result{}, err
	}
	info := ws.Metadata()

	manifest := "no"
	if info.HasPackageManifest {
		manifest = "yes (" + strings.Join(info.Manifests, ", ") + ")"
	}

	rows := [][2]string{
		{"Name", info.Name},
		{"Path", info.AbsolutePath},
		{"Git repository", yesNo(info.HasGit)},
		{"Package manifest", manifest},
	}
	return Result{Report: "Workspace information:\n\n" + table(rows)}, nil
}

// =============================================================================
// /models
// =============================================================================

// HandleModels lists the models the endpoint offers.
func HandleModels(ctx context.Context, env *Env, _ []string) (Result, error) {
	if env == nil || env.Models == nil {
		return Result{}, errors.New("model listing is not available")
	}
	models, err := env.Models.ListModels(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list models: %w", err)
	}
	if len(models) == 0 {
		return Result{Report: "The endpoint reported no models."}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Available models (%d):\n\n", len(models))
	for _, m := range models {
		if m == env.CurrentModel {
			fmt.Fprintf(&b, "- `%s` (current)\n", m)
			continue
		}
		fmt.Fprintf(&b, "- `%s`\n", m)
	}
	return Result{Report: strings.TrimRight(b.String(), "\n")}, nil
}

// =============================================================================
// /clear and /help
// =============================================================================

// HandleClear asks the session to start over.
func HandleClear(_ context.Context, _ *Env, _ []string) (Result, error) {
	return Result{Clear: true}, nil
}

// HandleHelp lists the registered commands.
func HandleHelp(_ context.Context, env *Env, _ []string) (Result, error) {
	if env == nil || env.Registry == nil {
		return Result{}, errors.New("no commands registered")
	}
	cmds := env.Registry.All()

	width := 0
	for _, cmd := range cmds {
		if w := util.StringWidth(usageOf(cmd)); w > width {
			width = w
		}
	}

	groups := env.Registry.ByCategory()
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		ri, rj := categoryRank(names[i]), categoryRank(names[j])
		if ri != rj {
			return ri < rj
		}
		return names[i] < names[j]
	})

	var b strings.Builder
	b.WriteString("Available commands:\n\n```\n")
	for i, name := range names {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(name + "\n")
		for _, cmd := range groups[name] {
			b.WriteString("  ")
			b.WriteString(util.PadRight(usageOf(cmd), width+2))
			b.WriteString(cmd.Description)
			if len(cmd.Aliases) > 0 {
				fmt.Fprintf(&b, " (aliases: %s)", strings.Join(cmd.Aliases, ", "))
			}
			b.WriteString("\n")
		}
	}
	b.WriteString("```\n\nAnything else is sent to the model. ")
	b.WriteString("Files the model proposes in ```file path=\"...\"``` blocks are offered for creation.")
	return Result{Report: b.String()}, nil
}

// categoryRank orders help sections; unknown categories sort last.
func categoryRank(name string) int {
	switch name {
	case "Conversation":
		return 0
	case "Workspace":
		return 1
	case "Model":
		return 2
	}
	return 3
}

func usageOf(cmd *Command) string {
	if cmd.Usage != "" {
		return cmd.Usage
	}
	return cmd.Name
}

// =============================================================================
// HELPERS
// =============================================================================

func table(rows [][2]string) string {
	width := 0
	for _, row := range rows {
		if w := util.StringWidth(row[0]); w > width {
			width = w
		}
	}
	var b strings.Builder
	for _, row := range rows {
		fmt.Fprintf(&b, "- %s %s\n", util.PadRight(row[0]+":", width+1), row[1])
	}
	return strings.TrimRight(b.String(), "\n")
}

func isNumber(s string) bool {
	if s == "" {
		return false
	}
	s = strings.TrimPrefix(s, "-")
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
