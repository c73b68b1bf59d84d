// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package bridge connects a chat session to an editor host through a JSON
// event protocol.
//
// Events are JSON objects with a "type" field. Over stdio they are written
// one per line; over a websocket, one per text frame.
//
// Inbound (host to llmchat):
//
//	{"type":"submit","text":"..."}
//	{"type":"clear"}
//	{"type":"confirm_write","path":"...","content":"..."}
//	{"type":"prompt_response","id":"...","choice":"..."}
//	{"type":"ping"}
//
// Outbound (llmchat to host):
//
//	{"type":"ready","session":"...","version":"..."}
//	{"type":"message","role":"assistant","content":"..."}
//	{"type":"error","message":"..."}
//	{"type":"clear"}
//	{"type":"propose_file","path":"...","content":"..."}
//	{"type":"prompt","id":"...","message":"...","options":["Create","Cancel"]}
//	{"type":"open_file","path":"..."}
//	{"type":"pong"}
//
// A Bridge is the session's Display and the write gate's Prompter and
// Opener. A prompt blocks the write until the matching prompt_response
// arrives, so responses are handled directly by the reader and never wait
// behind other work.
package bridge
