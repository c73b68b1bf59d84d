// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session provides the chat session that ties the model endpoint,
// the conversation, slash commands and the file-write gate together.
//
// # Key Types
//
//   - Session: One conversation with its endpoint settings and collaborators
//   - Display: The host surface messages, errors and file proposals go to
//   - Settings: The configuration a session reads on every request
//
// # Usage
//
//	s := session.New(session.Options{
//	    Client:    llm.NewClient(logger),
//	    Workspace: ws,
//	    Gate:      filegate.New(ws, prompter, opener, logger),
//	    Display:   display,
//	    Secrets:   store,
//	    Settings:  session.SettingsFromConfig(cfg),
//	    Logger:    logger,
//	})
//	_ = s.Submit(ctx, "/read main.go")
//	_ = s.Submit(ctx, "add a test for main")
//
// # Concurrency
//
// One model call runs at a time. Submit and Clear fail with ErrBusy while a
// call is in flight; nothing is queued. Errors are reported to the Display
// before they are returned, so callers only need the return value for
// control flow.
package session
