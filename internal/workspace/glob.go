// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultMaxResults caps FindByGlob when no limit is given.
const DefaultMaxResults = 100

// errLimitReached stops the walk once enough matches are collected.
var errLimitReached = errors.New("result limit reached")

// FindByGlob returns slash-separated relative paths of files matching
// pattern, capped at max. The walk is lexical, so the cap keeps the first
// max matches in walk order; the result is sorted by path. Patterns support "**". A pattern
// without a slash is matched against the file name at any depth, so "*.go"
// finds Go files everywhere.
func (w *Workspace) FindByGlob(pattern string, max int) ([]string, error) {
	pattern = strings.TrimSpace(filepath.ToSlash(pattern))
	if pattern == "" {
		return nil, errors.New("glob pattern is required")
	}
	if strings.HasPrefix(pattern, "/") || strings.Contains(pattern, "../") || pattern == ".." {
		return nil, fmt.Errorf("%w: %s", ErrOutsideWorkspace, pattern)
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid glob pattern %q", pattern)
	}
	if max <= 0 {
		max = DefaultMaxResults
	}
	nameOnly := !strings.Contains(pattern, "/")

	var matches []string
	err := filepath.WalkDir(w.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if p != w.root && w.ignored(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		rel := w.Rel(p)
		subject := rel
		if nameOnly {
			subject = path.Base(rel)
		}
		ok, err := doublestar.Match(pattern, subject)
		if err != nil || !ok {
			return nil
		}
		matches = append(matches, rel)
		if len(matches) >= max {
			return errLimitReached
		}
		return nil
	})
	if err != nil && !errors.Is(err, errLimitReached) {
		return nil, fmt.Errorf("error walking workspace: %w", err)
	}

	sort.Strings(matches)
	return matches, nil
}
