// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package commands provides the slash command system for the chat session.
//
// Input is a command only when it starts with "/". The first token selects a
// command by name or alias, ignoring case; the remaining tokens are the
// arguments, with single or double quotes grouping words.
//
// # Built-in Commands
//
//   - /read <path>: Read a workspace file into the conversation
//   - /list [path] [-r] [depth]: List directory entries
//   - /search <glob> [max]: Find files by glob pattern
//   - /workspace: Show workspace information
//   - /models: List models offered by the endpoint
//   - /clear: Start a new conversation
//   - /help: Show available commands
//
// # Usage
//
//	registry := commands.NewRegistry()
//	result, err := registry.Dispatch(ctx, env, "/read main.go")
//	if err != nil {
//	    // report the error; the conversation is untouched
//	}
//	// post result.Report; append result.ContextMessage when set
//
// Commands keep no state between invocations. Only /read produces a message
// for the conversation; every other command only reports.
package commands
