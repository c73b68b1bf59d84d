// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestWorkspace creates a workspace populated with files. Keys ending in
// "/" become directories.
func newTestWorkspace(t *testing.T, files map[string]string, opts ...Option) *Workspace {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(name))
		if strings.HasSuffix(name, "/") {
			require.NoError(t, os.MkdirAll(full, 0755))
			continue
		}
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0644))
	}
	ws, err := Open(dir, opts...)
	require.NoError(t, err)
	return ws
}

// =============================================================================
// OPEN / RESOLVE
// =============================================================================

func TestOpen_RejectsFile(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(f, nil, 0644))

	_, err := Open(f)
	assert.Error(t, err)
}

func TestResolve_Confinement(t *testing.T) {
	ws := newTestWorkspace(t, map[string]string{"src/main.go": "package main"})

	p, err := ws.Resolve("src/main.go")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(ws.Root(), "src", "main.go"), p)

	for _, bad := range []string{"../x", "src/../../x", "/etc/passwd", "a\x00b"} {
		_, err := ws.Resolve(bad)
		assert.True(t, errors.Is(err, ErrOutsideWorkspace), "expected %q to be rejected", bad)
	}

	inside := filepath.Join(ws.Root(), "src")
	_, err = ws.Resolve(inside)
	assert.NoError(t, err, "absolute paths inside the root are allowed")
}

func TestResolve_SymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("s"), 0644))

	ws := newTestWorkspace(t, nil)
	require.NoError(t, os.Symlink(outside, filepath.Join(ws.Root(), "link")))

	_, err := ws.ReadFile("link/secret.txt")
	assert.True(t, errors.Is(err, ErrOutsideWorkspace))
}

// =============================================================================
// READ
// =============================================================================

func TestReadFile(t *testing.T) {
	ws := newTestWorkspace(t, map[string]string{"notes/todo.md": "# Todo\n- ship"})

	content, err := ws.ReadFile("notes/todo.md")
	require.NoError(t, err)
	assert.Equal(t, "# Todo\n- ship", content)
}

func TestReadFile_Errors(t *testing.T) {
	ws := newTestWorkspace(t, map[string]string{
		"dir/":    "",
		"bin.dat": "ab\x00cd",
		"big.txt": strings.Repeat("x", 100),
	}, WithMaxFileSize(50))

	_, err := ws.ReadFile("missing.txt")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = ws.ReadFile("dir")
	assert.True(t, errors.Is(err, ErrIsDirectory))

	_, err = ws.ReadFile("bin.dat")
	assert.True(t, errors.Is(err, ErrBinaryFile))

	_, err = ws.ReadFile("big.txt")
	assert.True(t, errors.Is(err, ErrFileTooLarge))
	assert.Contains(t, err.Error(), "100 B")
}

// =============================================================================
// LIST
// =============================================================================

func TestListEntries_DirectoriesFirst(t *testing.T) {
	ws := newTestWorkspace(t, map[string]string{
		"zeta.txt":      "",
		"alpha.txt":     "",
		"src/main.go":   "",
		"docs/":         "",
		"Makefile":      "",
		"src/lib/a.go":  "",
		"src/README.md": "",
	})

	entries, err := ws.ListEntries("", false, 0)
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"docs", "src", "Makefile", "alpha.txt", "zeta.txt"}, names)
	assert.Equal(t, KindDirectory, entries[0].Kind)
	assert.Equal(t, KindFile, entries[2].Kind)
	assert.Equal(t, "src", entries[1].RelativePath)
}

func TestListEntries_Recursive(t *testing.T) {
	ws := newTestWorkspace(t, map[string]string{
		"src/main.go":       "",
		"src/lib/a.go":      "",
		"src/lib/deep/b.go": "",
		"top.txt":           "",
		".git/HEAD":         "",
	})

	entries, err := ws.ListEntries(".", true, 2)
	require.NoError(t, err)

	var paths []string
	for _, e := range entries {
		paths = append(paths, e.RelativePath)
	}
	assert.Equal(t, []string{
		".git",
		"src",
		"src/lib",
		"src/main.go",
		"top.txt",
	}, paths, "depth 2 stops before src/lib children and .git is not entered")

	entries, err = ws.ListEntries("src", true, 0)
	require.NoError(t, err)
	assert.Equal(t, "src/lib", entries[0].RelativePath)
	assert.Equal(t, "src/lib/deep", entries[1].RelativePath)
	assert.Equal(t, 1, entries[1].Depth)
}

func TestListEntries_Errors(t *testing.T) {
	ws := newTestWorkspace(t, map[string]string{"a.txt": ""})

	_, err := ws.ListEntries("nope", false, 0)
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = ws.ListEntries("a.txt", false, 0)
	assert.Error(t, err)

	_, err = ws.ListEntries("..", false, 0)
	assert.True(t, errors.Is(err, ErrOutsideWorkspace))
}

// =============================================================================
// GLOB
// =============================================================================

func TestFindByGlob(t *testing.T) {
	ws := newTestWorkspace(t, map[string]string{
		"main.go":               "",
		"internal/a/a.go":       "",
		"internal/a/a_test.go":  "",
		"internal/b/b.go":       "",
		"web/app.ts":            "",
		"node_modules/pkg/x.go": "",
		"internal/b/notes.md":   "",
	})

	got, err := ws.FindByGlob("**/*.go", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"internal/a/a.go", "internal/a/a_test.go", "internal/b/b.go", "main.go"}, got)

	got, err = ws.FindByGlob("*_test.go", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"internal/a/a_test.go"}, got)

	got, err = ws.FindByGlob("internal/*/*.md", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"internal/b/notes.md"}, got)
}

func TestFindByGlob_Cap(t *testing.T) {
	files := map[string]string{}
	for _, n := range []string{"a", "b", "c", "d", "e"} {
		files[n+".txt"] = ""
	}
	ws := newTestWorkspace(t, files)

	got, err := ws.FindByGlob("*.txt", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt", "c.txt"}, got)
}

func TestFindByGlob_Invalid(t *testing.T) {
	ws := newTestWorkspace(t, nil)

	_, err := ws.FindByGlob("", 10)
	assert.Error(t, err)

	_, err = ws.FindByGlob("[", 10)
	assert.Error(t, err)

	_, err = ws.FindByGlob("../**/*.go", 10)
	assert.True(t, errors.Is(err, ErrOutsideWorkspace))
}

// =============================================================================
// METADATA
// =============================================================================

func TestMetadata(t *testing.T) {
	ws := newTestWorkspace(t, map[string]string{
		".git/":        "",
		"go.mod":       "module x",
		"package.json": "{}",
	})

	info := ws.Metadata()
	assert.Equal(t, filepath.Base(ws.Root()), info.Name)
	assert.Equal(t, ws.Root(), info.AbsolutePath)
	assert.True(t, info.HasGit)
	assert.True(t, info.HasPackageManifest)
	assert.ElementsMatch(t, []string{"go.mod", "package.json"}, info.Manifests)

	bare := newTestWorkspace(t, nil).Metadata()
	assert.False(t, bare.HasGit)
	assert.False(t, bare.HasPackageManifest)
}

func TestResolve_SymlinkedParentForNewFile(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	outside := t.TempDir()
	ws := newTestWorkspace(t, nil)
	require.NoError(t, os.Symlink(outside, filepath.Join(ws.Root(), "out")))

	_, err := ws.Resolve("out/new/file.txt")
	assert.True(t, errors.Is(err, ErrOutsideWorkspace))

	_, err = ws.Resolve("fresh/dir/file.txt")
	assert.NoError(t, err)
}
