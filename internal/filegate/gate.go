// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package filegate writes model-suggested files into the workspace after the
// user confirms them.
//
// Every check runs before the file system is touched: the path must be a
// clean workspace-relative path, the content must fit the size limit, and the
// user must pick the affirmative action in a Create/Overwrite vs Cancel
// prompt (unless prompting is disabled).
package filegate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/markusbegerow/local-llm-chat/internal/util"
	"github.com/markusbegerow/local-llm-chat/internal/workspace"
)

// Prompt choices.
const (
	ChoiceCreate    = "Create"
	ChoiceOverwrite = "Overwrite"
	ChoiceCancel    = "Cancel"
)

// Prompter shows a modal question and returns the option the user picked,
// or "" when the prompt was dismissed.
type Prompter interface {
	Ask(ctx context.Context, message string, options []string) (string, error)
}

// Opener displays a file the gate has just written.
type Opener interface {
	OpenFile(ctx context.Context, relPath string) error
}

// Outcome is the result of a CreateFile call.
type Outcome int

const (
	OutcomeCancelled Outcome = iota
	OutcomeCreated
	OutcomeOverwritten
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeOverwritten:
		return "overwritten"
	default:
		return "cancelled"
	}
}

// Options are the settings consulted on every write.
type Options struct {
	MaxFileSize        int64
	AllowWithoutPrompt bool
}

// ErrNoPrompter is returned when confirmation is required but nobody can be
// asked.
var ErrNoPrompter = errors.New("file write needs confirmation but no prompt is available")

// Gate guards writes into one workspace.
type Gate struct {
	ws       *workspace.Workspace
	prompter Prompter
	opener   Opener
	logger   *slog.Logger
}

// New creates a Gate. opener may be nil.
func New(ws *workspace.Workspace, prompter Prompter, opener Opener, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{ws: ws, prompter: prompter, opener: opener, logger: logger.With("component", "filegate")}
}

// CreateFile validates, confirms and writes content to relPath.
func (g *Gate) CreateFile(ctx context.Context, relPath, content string, opts Options) (Outcome, error) {
	clean, err := ValidatePath(relPath)
	if err != nil {
		return OutcomeCancelled, err
	}

	size := int64(len(content))
	if opts.MaxFileSize > 0 && size > opts.MaxFileSize {
		return OutcomeCancelled, &ContentTooLargeError{Size: size, Limit: opts.MaxFileSize}
	}

	target, err := g.ws.Resolve(clean)
	if err != nil {
		return OutcomeCancelled, &PathValidationError{Path: relPath, Reason: err.Error()}
	}

	perm := fs.FileMode(0644)
	exists := false
	if info, err := os.Stat(target); err == nil {
		if info.IsDir() {
			return OutcomeCancelled, &PathValidationError{Path: relPath, Reason: "a directory already exists at this path"}
		}
		exists = true
		perm = info.Mode().Perm()
	} else if !errors.Is(err, os.ErrNotExist) {
		return OutcomeCancelled, fmt.Errorf("cannot inspect %s: %w", clean, err)
	}

	if !opts.AllowWithoutPrompt {
		ok, err := g.confirm(ctx, clean, size, exists)
		if err != nil {
			return OutcomeCancelled, err
		}
		if !ok {
			g.logger.Info("file write cancelled", "path", clean)
			return OutcomeCancelled, nil
		}
	}

	if err := util.AtomicWriteFile(target, []byte(content), perm); err != nil {
		return OutcomeCancelled, fmt.Errorf("failed to write %s: %w", clean, err)
	}

	outcome := OutcomeCreated
	if exists {
		outcome = OutcomeOverwritten
	}
	g.logger.Info("file written", "path", clean, "bytes", size, "outcome", outcome.String())

	if g.opener != nil {
		if err := g.opener.OpenFile(ctx, clean); err != nil {
			g.logger.Warn("could not open written file", "path", clean, "error", err)
		}
	}
	return outcome, nil
}

func (g *Gate) confirm(ctx context.Context, clean string, size int64, exists bool) (bool, error) {
	if g.prompter == nil {
		return false, ErrNoPrompter
	}

	affirmative := ChoiceCreate
	message := fmt.Sprintf("Create %s (%s)?", clean, util.FormatBytes(size))
	if exists {
		affirmative = ChoiceOverwrite
		message = fmt.Sprintf("%s already exists. Overwrite it with %s of new content?", clean, util.FormatBytes(size))
	}

	choice, err := g.prompter.Ask(ctx, message, []string{affirmative, ChoiceCancel})
	if err != nil {
		return false, fmt.Errorf("confirmation prompt failed: %w", err)
	}
	return choice == affirmative, nil
}
