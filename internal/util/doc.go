// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across llmchat.
//
// # Key Functions
//
// File Operations:
//   - AtomicWriteFile: Crash-safe file writing with fsync
//
// Display Helpers:
//   - FormatBytes: Human readable sizes in base-1024 units
//   - TruncateWidth: Display-width aware truncation with ellipsis
//   - TruncateRunes: UTF-8 safe truncation
//
// # Usage
//
//	// Write files atomically to prevent partial writes
//	err := util.AtomicWriteFile(path, data, 0644)
//
//	// Report a size limit to the user
//	msg := "limit is " + util.FormatBytes(1 << 20) // "1.0 MB"
package util
