// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package suggest finds file suggestions in model output.
//
// A suggestion is a fenced block that names its target file:
//
//	```file path="src/app.go"
//	package main
//	```
//
// Extra attributes after the path are ignored. Nested fences are not
// supported: the first closing fence ends the block.
package suggest

import (
	"regexp"
	"strings"
)

// FileSuggestion is a file write proposed by the model. It has no effect
// until the user confirms it.
type FileSuggestion struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// fileBlock matches one fenced file block. RE2 keeps the scan linear; the
// lazy body stops at the first closing fence, and a single line break (LF or
// CRLF) before that fence belongs to the fence rather than the content.
var fileBlock = regexp.MustCompile("(?s)```file(?:[ \\t]+path=\"([^\"\\n]*)\")?[^\\n]*\\n(.*?)(?:\\r?\\n)?```")

// Extract returns every well-formed file block in text, in order of
// appearance. Blocks with an empty or missing path are skipped; an empty body
// is kept.
func Extract(text string) []FileSuggestion {
	matches := fileBlock.FindAllStringSubmatch(text, -1)
	suggestions := make([]FileSuggestion, 0, len(matches))
	for _, m := range matches {
		path := strings.TrimSpace(m[1])
		if path == "" {
			continue
		}
		suggestions = append(suggestions, FileSuggestion{Path: path, Content: m[2]})
	}
	return suggestions
}
