// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli is the llmchat command tree.
//
// # Commands
//
//	llmchat [chat]            terminal chat (default)
//	llmchat serve             bridge for editor hosts (stdio or websocket)
//	llmchat ask <prompt>      one message, reply on stdout
//	llmchat models            models the endpoint offers
//	llmchat doctor            health checks
//	llmchat config ...        show, get, set, path, keys
//	llmchat secret ...        set, delete, status of the auth token
//	llmchat version
//
// Every command except version, help and config path/keys loads the
// configuration, starts logging and opens the workspace and secret store in
// the root PersistentPreRunE.
//
// The terminal chat plays the host role an editor plays for serve: a
// TerminalHost renders replies with glamour, shows errors in a distinct
// style, previews proposed files with chroma and asks for write
// confirmation on the liner prompt.
package cli
