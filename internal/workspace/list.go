// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package workspace

import (
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
)

// Kind distinguishes files from directories in a listing.
type Kind string

const (
	KindFile      Kind = "file"
	KindDirectory Kind = "directory"
)

// Entry is one item of a directory listing.
type Entry struct {
	Name         string `json:"name"`
	RelativePath string `json:"relativePath"`
	Kind         Kind   `json:"kind"`
	// Depth is 0 for direct children of the listed directory.
	Depth int `json:"depth"`
}

// IsDir reports whether the entry is a directory.
func (e Entry) IsDir() bool {
	return e.Kind == KindDirectory
}

// DefaultListDepth is used by recursive listings without an explicit depth.
const DefaultListDepth = 3

// ListEntries lists the directory rel. Each directory level is ordered
// directories first, then by name. A recursive listing is depth first, with
// children following their parent, down to maxDepth levels; ignored
// directories are listed but not entered.
func (w *Workspace) ListEntries(rel string, recursive bool, maxDepth int) ([]Entry, error) {
	if rel == "" {
		rel = "."
	}
	dir, err := w.Resolve(rel)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, rel)
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", rel)
	}

	if !recursive {
		maxDepth = 1
	} else if maxDepth <= 0 {
		maxDepth = DefaultListDepth
	}

	entries := make([]Entry, 0, 32)
	if err := w.list(dir, 0, maxDepth, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (w *Workspace) list(dir string, depth, maxDepth int, out *[]Entry) error {
	dirents, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("cannot list %s: %w", w.Rel(dir), err)
	}
	sortDirents(dirents)

	for _, d := range dirents {
		full := dir + string(os.PathSeparator) + d.Name()
		isDir := d.IsDir()
		if !isDir && d.Type()&os.ModeSymlink != 0 {
			if info, err := os.Stat(full); err == nil && info.IsDir() {
				isDir = true
			}
		}

		kind := KindFile
		if isDir {
			kind = KindDirectory
		}
		*out = append(*out, Entry{
			Name:         d.Name(),
			RelativePath: path.Clean(w.Rel(full)),
			Kind:         kind,
			Depth:        depth,
		})

		// Symlinked directories are listed but not followed.
		if d.IsDir() && depth+1 < maxDepth && !w.ignored(d.Name()) {
			if err := w.list(full, depth+1, maxDepth, out); err != nil {
				return err
			}
		}
	}
	return nil
}

// sortDirents orders directories before files, then by name.
func sortDirents(dirents []os.DirEntry) {
	sort.SliceStable(dirents, func(i, j int) bool {
		di, dj := dirents[i].IsDir(), dirents[j].IsDir()
		if di != dj {
			return di
		}
		return dirents[i].Name() < dirents[j].Name()
	})
}
