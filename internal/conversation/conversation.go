// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package conversation holds the message history of a chat session and the
// trimming rule that bounds it.
package conversation

import (
	"github.com/markusbegerow/local-llm-chat/internal/llm"
)

// =============================================================================
// TRIMMING
// =============================================================================

// Trim bounds messages to max entries. The leading run of system messages is
// always kept; of the remaining messages only the most recent
// max-len(leading) survive, in their original order.
//
// Trim never modifies its input and is idempotent for a fixed max. A max below
// one means unbounded.
func Trim(messages []llm.Message, max int) []llm.Message {
	if max < 1 || len(messages) <= max {
		return clone(messages)
	}

	pinned := leadingSystemCount(messages)
	keep := max - pinned
	if keep < 0 {
		keep = 0
	}

	out := make([]llm.Message, 0, pinned+keep)
	out = append(out, messages[:pinned]...)
	out = append(out, messages[len(messages)-keep:]...)
	return out
}

func leadingSystemCount(messages []llm.Message) int {
	n := 0
	for n < len(messages) && messages[n].Role == llm.RoleSystem {
		n++
	}
	return n
}

func clone(messages []llm.Message) []llm.Message {
	if messages == nil {
		return nil
	}
	out := make([]llm.Message, len(messages))
	copy(out, messages)
	return out
}

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation is the ordered history owned by one session. It only grows by
// Append and only shrinks by Trim or Reset.
//
// A Conversation is not safe for concurrent mutation; the owning session is
// its single writer.
type Conversation struct {
	messages []llm.Message
}

// New creates a conversation seeded with systemPrompt. An empty prompt yields
// an empty conversation.
func New(systemPrompt string) *Conversation {
	c := &Conversation{}
	c.Reset(systemPrompt)
	return c
}

// Append adds messages to the end of the history.
func (c *Conversation) Append(msgs ...llm.Message) {
	c.messages = append(c.messages, msgs...)
}

// Trim applies Trim to the history in place and reports how many messages
// were dropped.
func (c *Conversation) Trim(max int) int {
	before := len(c.messages)
	c.messages = Trim(c.messages, max)
	return before - len(c.messages)
}

// Reset clears the history down to a single fresh system message.
func (c *Conversation) Reset(systemPrompt string) {
	c.messages = c.messages[:0:0]
	if systemPrompt != "" {
		c.messages = append(c.messages, llm.NewSystemMessage(systemPrompt))
	}
}

// Messages returns a copy of the history.
func (c *Conversation) Messages() []llm.Message {
	return clone(c.messages)
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	return len(c.messages)
}

