// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package suggest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fence = "```"

func block(path, content string) string {
	return fence + "file path=\"" + path + "\"\n" + content + "\n" + fence
}

func TestExtract_SingleBlock(t *testing.T) {
	text := "Here you go:\n\n" + block("a/b.txt", "hello\nworld") + "\n\nDone."

	got := Extract(text)
	require.Len(t, got, 1)
	assert.Equal(t, FileSuggestion{Path: "a/b.txt", Content: "hello\nworld"}, got[0])
}

func TestExtract_None(t *testing.T) {
	assert.Empty(t, Extract("no blocks here"))
	assert.Empty(t, Extract(fence+"go\nfmt.Println()\n"+fence))
	assert.NotNil(t, Extract(""), "result is an empty slice, not nil")
}

func TestExtract_MultipleInOrder(t *testing.T) {
	text := strings.Join([]string{
		"First:",
		block("one.go", "package one"),
		"then a regular block",
		fence + "sh\nls\n" + fence,
		block("two/two.go", "package two"),
		block("three.md", "# Three"),
	}, "\n")

	got := Extract(text)
	require.Len(t, got, 3)
	assert.Equal(t, "one.go", got[0].Path)
	assert.Equal(t, "two/two.go", got[1].Path)
	assert.Equal(t, "three.md", got[2].Path)
	assert.Equal(t, "package two", got[1].Content)
}

func TestExtract_PathTrimmed(t *testing.T) {
	got := Extract(block("  src/app.ts  ", "x"))
	require.Len(t, got, 1)
	assert.Equal(t, "src/app.ts", got[0].Path)
}

func TestExtract_SkipsEmptyOrMissingPath(t *testing.T) {
	text := block("   ", "ignored") + "\n" +
		fence + "file\nalso ignored\n" + fence + "\n" +
		block("kept.txt", "kept")

	got := Extract(text)
	require.Len(t, got, 1)
	assert.Equal(t, "kept.txt", got[0].Path)
}

func TestExtract_EmptyContent(t *testing.T) {
	got := Extract(fence + "file path=\"empty.txt\"\n" + fence)
	require.Len(t, got, 1)
	assert.Equal(t, "", got[0].Content)
}

func TestExtract_ContentVerbatim(t *testing.T) {
	content := "  indented\n\n\ttabbed  \n"
	got := Extract(block("ws.txt", content))
	require.Len(t, got, 1)
	assert.Equal(t, content, got[0].Content)
}

func TestExtract_ExtraAttributesIgnored(t *testing.T) {
	got := Extract(fence + "file path=\"x.py\" lang=\"python\"\nprint(1)\n" + fence)
	require.Len(t, got, 1)
	assert.Equal(t, "x.py", got[0].Path)
	assert.Equal(t, "print(1)", got[0].Content)
}

func TestExtract_CRLF(t *testing.T) {
	got := Extract(fence + "file path=\"w.txt\"\r\nline1\r\nline2\r\n" + fence)
	require.Len(t, got, 1)
	assert.Equal(t, "w.txt", got[0].Path)
	assert.Equal(t, "line1\r\nline2", got[0].Content)

	got = Extract(fence + "file path=\"e.txt\"\r\n" + fence)
	require.Len(t, got, 1)
	assert.Equal(t, "", got[0].Content)
}
