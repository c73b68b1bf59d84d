// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package llm sends a conversation to a locally hosted model endpoint and
// returns the model's reply.
//
// Two wire formats are supported:
//
//   - openai: POST /v1/chat/completions, reply at choices[0].message.content
//   - ollama: POST /api/chat, reply at message.content
//
// A custom endpoint URL, when set, is used verbatim and always speaks the
// openai shape.
//
// # Errors
//
// Every failure is an *Error whose Kind is one of KindConfiguration,
// KindTransport, KindTimeout or KindEmptyResponse. Use errors.Is with the
// package sentinels:
//
//	reply, err := client.Invoke(ctx, cfg, messages)
//	if errors.Is(err, llm.ErrTimeout) {
//	    // raise the timeout or try a smaller model
//	}
//
// Calls are non-streaming and never retried.
package llm
