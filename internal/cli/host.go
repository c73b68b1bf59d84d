// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"

	"github.com/markusbegerow/local-llm-chat/internal/diff"
	"github.com/markusbegerow/local-llm-chat/internal/filegate"
	"github.com/markusbegerow/local-llm-chat/internal/llm"
	"github.com/markusbegerow/local-llm-chat/internal/suggest"
	"github.com/markusbegerow/local-llm-chat/internal/workspace"
)

// previewLines caps the lines shown for a proposed file.
const previewLines = 30

// maxPromptAttempts bounds re-prompting after unrecognized answers.
const maxPromptAttempts = 3

// TerminalHost is the display surface and modal prompt of the terminal
// chat. It implements session.Display, filegate.Prompter and filegate.Opener.
type TerminalHost struct {
	out      io.Writer
	errOut   io.Writer
	reader   lineReader // nil when nobody can answer prompts
	renderer *glamour.TermRenderer
	profile  termenv.Profile
	ws       *workspace.Workspace // optional; enables overwrite diffs
	root     string

	mu        sync.Mutex
	proposals []suggest.FileSuggestion
}

// hostOptions configure a TerminalHost.
type hostOptions struct {
	Out       io.Writer
	ErrOut    io.Writer
	Reader    lineReader
	Workspace *workspace.Workspace
	Root      string // defaults to the workspace root
	Rich      bool   // render markdown and highlight previews
	Profile   termenv.Profile
	Width     int
}

func newTerminalHost(opts hostOptions) *TerminalHost {
	h := &TerminalHost{
		out:     opts.Out,
		errOut:  opts.ErrOut,
		reader:  opts.Reader,
		profile: termenv.Ascii,
		ws:      opts.Workspace,
		root:    opts.Root,
	}
	if h.root == "" && h.ws != nil {
		h.root = h.ws.Root()
	}
	if h.errOut == nil {
		h.errOut = h.out
	}
	if opts.Rich {
		width := opts.Width
		if width <= 0 {
			width = DefaultTerminalWidth
		}
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width),
		)
		if err == nil {
			h.renderer = r
		}
		h.profile = opts.Profile
	}
	return h
}

// =============================================================================
// DISPLAY
// =============================================================================

// AppendMessage prints a conversation message. Assistant text is rendered
// as markdown on a terminal.
func (h *TerminalHost) AppendMessage(role llm.Role, content string) {
	switch role {
	case llm.RoleUser:
		fmt.Fprintln(h.out, DimStyle.Render("> "+content))
	default:
		fmt.Fprintln(h.out, h.renderMarkdown(content))
	}
}

// ReportError prints an error to the error stream.
func (h *TerminalHost) ReportError(message string) {
	fmt.Fprintln(h.errOut, RenderError(message))
}

// Clear empties the screen on a terminal and notes the reset.
func (h *TerminalHost) Clear() {
	if h.renderer != nil {
		termenv.NewOutput(h.out).ClearScreen()
	}
	fmt.Fprintln(h.out, DimStyle.Render("Conversation cleared."))
}

// ProposeFile prints a preview of a suggested file and queues it for the
// write prompt. For a file that already exists the preview is a diff.
func (h *TerminalHost) ProposeFile(s suggest.FileSuggestion) {
	h.mu.Lock()
	h.proposals = append(h.proposals, s)
	h.mu.Unlock()

	fmt.Fprintln(h.out)
	if current, ok := h.existing(s.Path); ok {
		d := diff.Lines(current, s.Content)
		fmt.Fprintln(h.out, FileHeaderStyle.Render(fmt.Sprintf("Proposed change: %s", s.Path))+
			DimStyle.Render(" ("+d.Summary()+")"))
		if d.Identical() {
			fmt.Fprintln(h.out, DimStyle.Render("No changes."))
			return
		}
		fmt.Fprintln(h.out, h.renderDiff(d.Unified(s.Path, diff.DefaultContext)))
		return
	}

	lines := strings.Count(s.Content, "\n")
	if s.Content != "" && !strings.HasSuffix(s.Content, "\n") {
		lines++
	}
	fmt.Fprintln(h.out, FileHeaderStyle.Render(fmt.Sprintf("Proposed file: %s", s.Path))+
		DimStyle.Render(fmt.Sprintf(" (%d %s)", lines, pluralize(lines, "line", "lines"))))
	fmt.Fprintln(h.out, h.preview(s.Path, s.Content))
}

// existing returns the current text of path when it is a readable workspace
// file.
func (h *TerminalHost) existing(path string) (string, bool) {
	if h.ws == nil {
		return "", false
	}
	clean, err := filegate.ValidatePath(path)
	if err != nil {
		return "", false
	}
	content, err := h.ws.ReadFile(clean)
	if err != nil {
		return "", false
	}
	return content, true
}

// renderDiff colors a unified diff on color terminals and caps its length.
func (h *TerminalHost) renderDiff(unified string) string {
	lines := strings.Split(strings.TrimRight(unified, "\n"), "\n")
	truncated := 0
	if len(lines) > previewLines {
		truncated = len(lines) - previewLines
		lines = lines[:previewLines]
	}
	if h.profile != termenv.Ascii {
		for i, l := range lines {
			switch {
			case strings.HasPrefix(l, "+++"), strings.HasPrefix(l, "---"), strings.HasPrefix(l, "@@"):
				lines[i] = DimStyle.Render(l)
			case strings.HasPrefix(l, "+"):
				lines[i] = DiffAddStyle.Render(l)
			case strings.HasPrefix(l, "-"):
				lines[i] = DiffRemoveStyle.Render(l)
			}
		}
	}
	out := strings.Join(lines, "\n")
	if truncated > 0 {
		out += "\n" + DimStyle.Render(fmt.Sprintf("... %d more %s", truncated, pluralize(truncated, "line", "lines")))
	}
	return out
}

// TakeProposals returns and forgets the queued proposals.
func (h *TerminalHost) TakeProposals() []suggest.FileSuggestion {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.proposals
	h.proposals = nil
	return out
}

func (h *TerminalHost) renderMarkdown(content string) string {
	if h.renderer == nil {
		return content
	}
	rendered, err := h.renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(rendered, "\n")
}

// preview returns the first previewLines of content, highlighted when the
// terminal supports color.
func (h *TerminalHost) preview(path, content string) string {
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	truncated := 0
	if len(lines) > previewLines {
		truncated = len(lines) - previewLines
		lines = lines[:previewLines]
	}
	body := strings.Join(lines, "\n")

	if formatter := chromaFormatter(h.profile); formatter != "" {
		var buf bytes.Buffer
		if err := quick.Highlight(&buf, body, lexerName(path), formatter, "monokai"); err == nil {
			body = strings.TrimRight(buf.String(), "\n")
		}
	}
	if truncated > 0 {
		body += "\n" + DimStyle.Render(fmt.Sprintf("... %d more %s", truncated, pluralize(truncated, "line", "lines")))
	}
	return body
}

func lexerName(path string) string {
	if l := lexers.Match(filepath.Base(path)); l != nil {
		return l.Config().Name
	}
	return "plaintext"
}

// =============================================================================
// PROMPTER AND OPENER
// =============================================================================

// Ask prints message with numbered options and reads the choice. An empty
// answer, Ctrl+C or end of input dismisses the prompt.
func (h *TerminalHost) Ask(ctx context.Context, message string, options []string) (string, error) {
	if h.reader == nil {
		return "", filegate.ErrNoPrompter
	}

	fmt.Fprintln(h.out, TitleStyle.Render(message))
	labels := make([]string, len(options))
	for i, opt := range options {
		labels[i] = fmt.Sprintf("[%d] %s", i+1, opt)
	}
	fmt.Fprintln(h.out, DimStyle.Render(strings.Join(labels, "  ")))

	for attempt := 0; attempt < maxPromptAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		answer, err := h.reader.Prompt("Choice: ")
		if err != nil {
			if errors.Is(err, errInputAborted) || errors.Is(err, io.EOF) {
				return "", nil
			}
			return "", err
		}
		answer = strings.TrimSpace(answer)
		if answer == "" {
			return "", nil
		}
		if choice, ok := matchOption(answer, options); ok {
			return choice, nil
		}
		fmt.Fprintln(h.errOut, WarningStyle.Render(fmt.Sprintf("Please answer 1-%d or an option name.", len(options))))
	}
	return "", nil
}

// matchOption resolves an answer to one of options: a 1-based number, a
// unique case-insensitive prefix, or y/n for the first option and dismissal.
func matchOption(answer string, options []string) (string, bool) {
	if n, err := strconv.Atoi(answer); err == nil {
		if n >= 1 && n <= len(options) {
			return options[n-1], true
		}
		return "", false
	}

	lower := strings.ToLower(answer)
	switch lower {
	case "y", "yes":
		if len(options) > 0 {
			return options[0], true
		}
	case "n", "no":
		return "", true
	}

	match := ""
	for _, opt := range options {
		if strings.HasPrefix(strings.ToLower(opt), lower) {
			if match != "" {
				return "", false
			}
			match = opt
		}
	}
	return match, match != ""
}

// OpenFile prints where a written file landed.
func (h *TerminalHost) OpenFile(_ context.Context, relPath string) error {
	fmt.Fprintln(h.out, DimStyle.Render("  -> "+filepath.Join(h.root, filepath.FromSlash(relPath))))
	return nil
}

func pluralize(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
