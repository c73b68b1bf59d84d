// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"

	"github.com/peterh/liner"

	"github.com/markusbegerow/local-llm-chat/internal/util"
)

// errInputAborted is returned by a lineReader when the user pressed Ctrl+C
// at the prompt.
var errInputAborted = errors.New("input aborted")

// lineReader reads user input one line at a time. Prompt returns io.EOF at
// end of input and errInputAborted on Ctrl+C.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

// =============================================================================
// LINER
// =============================================================================

// linerReader provides readline-style editing and history on a terminal.
type linerReader struct {
	line        *liner.State
	historyFile string
}

func newLinerReader(historyFile string, complete func(string) []string) *linerReader {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	if complete != nil {
		line.SetCompleter(complete)
	}

	r := &linerReader{line: line, historyFile: historyFile}
	if historyFile != "" {
		if f, err := os.Open(historyFile); err == nil {
			line.ReadHistory(f)
			f.Close()
		}
	}
	return r
}

func (r *linerReader) Prompt(prompt string) (string, error) {
	input, err := r.line.Prompt(prompt)
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", errInputAborted
	}
	return input, err
}

func (r *linerReader) AppendHistory(item string) {
	r.line.AppendHistory(item)
}

// Close saves history with owner-only permissions and restores the terminal.
func (r *linerReader) Close() error {
	var saveErr error
	if r.historyFile != "" {
		var buf bytes.Buffer
		if _, err := r.line.WriteHistory(&buf); err == nil {
			saveErr = util.AtomicWriteFileWithDir(r.historyFile, buf.Bytes(), 0600, 0700)
		}
	}
	if err := r.line.Close(); err != nil {
		return err
	}
	return saveErr
}

// =============================================================================
// PLAIN
// =============================================================================

// scanReader reads piped input. It prints no prompts and keeps no history.
type scanReader struct {
	sc *bufio.Scanner
}

func newScanReader(in io.Reader) *scanReader {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return &scanReader{sc: sc}
}

func (r *scanReader) Prompt(string) (string, error) {
	if !r.sc.Scan() {
		if err := r.sc.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.sc.Text(), nil
}

func (r *scanReader) AppendHistory(string) {}
