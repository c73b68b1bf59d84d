// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package filegate

import (
	"fmt"
	"path"
	"runtime"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/markusbegerow/local-llm-chat/internal/util"
)

// =============================================================================
// ERRORS
// =============================================================================

// PathValidationError is returned for a path the gate refuses to write.
type PathValidationError struct {
	Path   string
	Reason string
}

func (e *PathValidationError) Error() string {
	return fmt.Sprintf("invalid file path %q: %s", e.Path, e.Reason)
}

// ContentTooLargeError is returned when content exceeds the size limit.
type ContentTooLargeError struct {
	Size  int64
	Limit int64
}

func (e *ContentTooLargeError) Error() string {
	return fmt.Sprintf("content size %s exceeds the maximum file size of %s",
		util.FormatBytes(e.Size), util.FormatBytes(e.Limit))
}

// =============================================================================
// PATH VALIDATION
// =============================================================================

// windowsForbidden are characters Windows does not allow in file names.
const windowsForbidden = `<>:"|?*`

// windowsReserved are device names Windows refuses as file names.
var windowsReserved = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// ValidatePath checks p using the conventions of the running platform and
// returns its cleaned, slash-separated form.
func ValidatePath(p string) (string, error) {
	return ValidatePathFor(p, runtime.GOOS == "windows")
}

// ValidatePathFor checks that p is a workspace-relative file path: not empty,
// no null bytes, not absolute in either POSIX or Windows form, and no ".."
// segment. With windows set, characters and names Windows forbids are also
// rejected. The result is NFC-normalized and slash-separated.
func ValidatePathFor(p string, windows bool) (string, error) {
	invalid := func(reason string) (string, error) {
		return "", &PathValidationError{Path: p, Reason: reason}
	}

	if strings.TrimSpace(p) == "" {
		return invalid("path is empty")
	}
	if strings.ContainsRune(p, 0) {
		return invalid("path contains a null byte")
	}

	normalized := norm.NFC.String(strings.TrimSpace(p))
	slashed := strings.ReplaceAll(normalized, `\`, "/")

	if strings.HasPrefix(slashed, "/") {
		return invalid("absolute paths are not allowed")
	}
	if len(slashed) >= 2 && slashed[1] == ':' && isASCIILetter(slashed[0]) {
		return invalid("absolute paths are not allowed")
	}

	for _, seg := range strings.Split(slashed, "/") {
		if seg == ".." {
			return invalid("parent directory traversal is not allowed")
		}
		if !windows {
			continue
		}
		for _, r := range seg {
			if r < 32 {
				return invalid("path contains a control character")
			}
			if strings.ContainsRune(windowsForbidden, r) {
				return invalid(fmt.Sprintf("character %q is not allowed in file names", r))
			}
		}
		base := strings.ToUpper(strings.SplitN(seg, ".", 2)[0])
		if windowsReserved[base] {
			return invalid(fmt.Sprintf("%q is a reserved file name", seg))
		}
		if seg != "." && (strings.HasSuffix(seg, ".") || strings.HasSuffix(seg, " ")) {
			return invalid("file names may not end in a dot or space")
		}
	}

	cleaned := path.Clean(slashed)
	if cleaned == "." || strings.HasSuffix(slashed, "/") {
		return invalid("path does not name a file")
	}
	return cleaned, nil
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
