// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package diff

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLines_NewFile(t *testing.T) {
	r := Lines("", "line1\nline2\nline3\n")

	assert.Equal(t, 3, r.Added)
	assert.Equal(t, 0, r.Removed)
	assert.False(t, r.Identical())
}

func TestLines_Modified(t *testing.T) {
	r := Lines("line1\nline2\nline3", "line1\nmodified\nline3\nline4")

	assert.Equal(t, 2, r.Added)
	assert.Equal(t, 1, r.Removed)
	assert.Equal(t, []Line{
		{Equal, "line1"},
		{Delete, "line2"},
		{Insert, "modified"},
		{Equal, "line3"},
		{Insert, "line4"},
	}, r.Lines)
}

func TestLines_TrailingNewlineIgnored(t *testing.T) {
	r := Lines("a\nb\n", "a\nb")
	assert.True(t, r.Identical())
}

func TestLines_HugeInputIsFullReplacement(t *testing.T) {
	var a, b strings.Builder
	for i := 0; i < 2100; i++ {
		fmt.Fprintf(&a, "old %d\n", i)
		fmt.Fprintf(&b, "new %d\n", i)
	}
	r := Lines(a.String(), b.String())
	assert.Equal(t, 2100, r.Added)
	assert.Equal(t, 2100, r.Removed)
	assert.Equal(t, Delete, r.Lines[0].Op)
	assert.Equal(t, Insert, r.Lines[len(r.Lines)-1].Op)
}

func TestHunks_SplitsDistantChanges(t *testing.T) {
	var old []string
	for i := 1; i <= 20; i++ {
		old = append(old, fmt.Sprintf("l%d", i))
	}
	updated := append([]string(nil), old...)
	updated[1] = "changed2"
	updated[17] = "changed18"

	r := Lines(strings.Join(old, "\n"), strings.Join(updated, "\n"))
	hunks := r.Hunks(DefaultContext)
	require.Len(t, hunks, 2)

	assert.Equal(t, 1, hunks[0].OldStart)
	assert.Equal(t, 5, hunks[0].OldCount)
	assert.Equal(t, 5, hunks[0].NewCount)

	assert.Equal(t, 15, hunks[1].OldStart)
	assert.Equal(t, 6, hunks[1].OldCount)
}

func TestHunks_MergesNearbyChanges(t *testing.T) {
	old := "a\nb\nc\nd\ne\nf\ng\nh"
	updated := "a\nB\nc\nd\ne\nf\nG\nh"

	hunks := Lines(old, updated).Hunks(DefaultContext)
	require.Len(t, hunks, 1)
	assert.Equal(t, 8, hunks[0].OldCount)
}

func TestHunks_EmptyOldFile(t *testing.T) {
	hunks := Lines("", "x\ny").Hunks(DefaultContext)
	require.Len(t, hunks, 1)
	assert.Equal(t, 0, hunks[0].OldStart)
	assert.Equal(t, 0, hunks[0].OldCount)
	assert.Equal(t, 1, hunks[0].NewStart)
	assert.Equal(t, 2, hunks[0].NewCount)
}

func TestHunks_NoChanges(t *testing.T) {
	assert.Empty(t, Lines("same\n", "same\n").Hunks(DefaultContext))
}

func TestUnified(t *testing.T) {
	r := Lines("one\ntwo\nthree\n", "one\n2\nthree\n")

	want := "--- a/n.txt\n+++ b/n.txt\n" +
		"@@ -1,3 +1,3 @@\n" +
		" one\n" +
		"-two\n" +
		"+2\n" +
		" three\n"
	assert.Equal(t, want, r.Unified("n.txt", DefaultContext))
	assert.Equal(t, "+1 -1", r.Summary())
}
