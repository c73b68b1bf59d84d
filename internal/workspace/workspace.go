// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package workspace gives read-only access to the directory a chat session
// works in. Every path is relative to the workspace root and is refused if it
// resolves outside of it.
package workspace

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/markusbegerow/local-llm-chat/internal/util"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrOutsideWorkspace is returned for paths that escape the root.
	ErrOutsideWorkspace = errors.New("path is outside the workspace")
	// ErrNotFound wraps os.ErrNotExist for missing workspace paths.
	ErrNotFound = errors.New("not found in workspace")
	// ErrIsDirectory is returned when a file operation targets a directory.
	ErrIsDirectory = errors.New("path is a directory")
	// ErrBinaryFile is returned when reading a file that is not text.
	ErrBinaryFile = errors.New("cannot read binary file")
	// ErrFileTooLarge is returned when a file exceeds the read limit.
	ErrFileTooLarge = errors.New("file too large")
)

// DefaultMaxFileSize bounds ReadFile when no limit is configured.
const DefaultMaxFileSize = 1 << 20

// DefaultIgnoreDirs are skipped by recursive listings and glob searches.
var DefaultIgnoreDirs = []string{
	".git",
	"node_modules",
	"__pycache__",
	".venv",
	"venv",
	".idea",
	".vscode",
	"target",
	"dist",
	"build",
	".cache",
}

// =============================================================================
// WORKSPACE
// =============================================================================

// Workspace is a directory root plus the limits applied to reads.
type Workspace struct {
	root        string
	maxFileSize int64
	ignoreDirs  map[string]bool
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithMaxFileSize sets the largest file ReadFile returns.
func WithMaxFileSize(n int64) Option {
	return func(w *Workspace) {
		if n > 0 {
			w.maxFileSize = n
		}
	}
}

// WithIgnoreDirs replaces the directory names skipped during walks.
func WithIgnoreDirs(names ...string) Option {
	return func(w *Workspace) {
		w.ignoreDirs = make(map[string]bool, len(names))
		for _, n := range names {
			w.ignoreDirs[n] = true
		}
	}
}

// Open returns a Workspace rooted at dir, which must be an existing
// directory.
func Open(dir string, opts ...Option) (*Workspace, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		abs = real
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("workspace root %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s is not a directory", abs)
	}

	w := &Workspace{root: abs, maxFileSize: DefaultMaxFileSize}
	WithIgnoreDirs(DefaultIgnoreDirs...)(w)
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Root returns the absolute workspace root.
func (w *Workspace) Root() string {
	return w.root
}

// Resolve maps a workspace-relative path to an absolute one. Absolute paths
// are accepted only when they already point inside the root. Symlinks that
// lead outside the root are refused.
func (w *Workspace) Resolve(rel string) (string, error) {
	if strings.ContainsRune(rel, 0) {
		return "", fmt.Errorf("%w: path contains a null byte", ErrOutsideWorkspace)
	}

	var joined string
	if filepath.IsAbs(rel) {
		joined = filepath.Clean(rel)
	} else {
		joined = filepath.Join(w.root, rel)
	}
	if !Within(w.root, joined) {
		return "", fmt.Errorf("%w: %s", ErrOutsideWorkspace, rel)
	}

	// For paths that do not exist yet the nearest existing ancestor decides.
	cur := joined
	for {
		real, err := filepath.EvalSymlinks(cur)
		if err == nil {
			if !Within(w.root, real) {
				return "", fmt.Errorf("%w: %s", ErrOutsideWorkspace, rel)
			}
			break
		}
		parent := filepath.Dir(cur)
		if parent == cur || !Within(w.root, parent) {
			break
		}
		cur = parent
	}
	return joined, nil
}

// Rel converts an absolute path under the root to slash-separated relative
// form.
func (w *Workspace) Rel(abs string) string {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}

// Within reports whether path is root or lies beneath it.
func Within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

func (w *Workspace) ignored(name string) bool {
	return w.ignoreDirs[name]
}

// =============================================================================
// READ
// =============================================================================

// ReadFile returns the text content of a workspace file.
func (w *Workspace) ReadFile(rel string) (string, error) {
	path, err := w.Resolve(rel)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, rel)
		}
		return "", fmt.Errorf("cannot access %s: %w", rel, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrIsDirectory, rel)
	}
	if info.Size() > w.maxFileSize {
		return "", fmt.Errorf("%w: %s is %s (limit %s)", ErrFileTooLarge, rel,
			util.FormatBytes(info.Size()), util.FormatBytes(w.maxFileSize))
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("cannot open %s: %w", rel, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, w.maxFileSize+1))
	if err != nil {
		return "", fmt.Errorf("cannot read %s: %w", rel, err)
	}
	if int64(len(data)) > w.maxFileSize {
		return "", fmt.Errorf("%w: %s grew past %s while reading", ErrFileTooLarge, rel, util.FormatBytes(w.maxFileSize))
	}
	if looksBinary(data) {
		return "", fmt.Errorf("%w: %s", ErrBinaryFile, rel)
	}
	return string(data), nil
}

// looksBinary treats a NUL byte in the first 8 KB as the mark of a binary
// file.
func looksBinary(data []byte) bool {
	head := data
	if len(head) > 8192 {
		head = head[:8192]
	}
	return bytes.IndexByte(head, 0) >= 0
}
