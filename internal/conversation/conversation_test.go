// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markusbegerow/local-llm-chat/internal/llm"
)

func sys(s string) llm.Message  { return llm.NewSystemMessage(s) }
func user(s string) llm.Message { return llm.NewUserMessage(s) }
func bot(s string) llm.Message  { return llm.NewAssistantMessage(s) }

// =============================================================================
// TRIM TESTS
// =============================================================================

func TestTrim_UnderBoundUnchanged(t *testing.T) {
	msgs := []llm.Message{sys("S"), user("a"), bot("b")}
	assert.Equal(t, msgs, Trim(msgs, 3))
	assert.Equal(t, msgs, Trim(msgs, 10))
}

func TestTrim_KeepsSystemAndRecent(t *testing.T) {
	msgs := []llm.Message{sys("S"), user("1"), bot("2"), user("3"), bot("4"), user("5")}

	got := Trim(msgs, 3)
	assert.Equal(t, []llm.Message{sys("S"), bot("4"), user("5")}, got)
}

func TestTrim_MultipleLeadingSystem(t *testing.T) {
	msgs := []llm.Message{sys("A"), sys("B"), user("1"), bot("2"), user("3")}

	got := Trim(msgs, 3)
	assert.Equal(t, []llm.Message{sys("A"), sys("B"), user("3")}, got)
}

func TestTrim_SystemExceedsBound(t *testing.T) {
	msgs := []llm.Message{sys("A"), sys("B"), sys("C"), user("1")}

	got := Trim(msgs, 2)
	assert.Equal(t, []llm.Message{sys("A"), sys("B"), sys("C")}, got)
	assert.Equal(t, got, Trim(got, 2))
}

func TestTrim_NoSystem(t *testing.T) {
	msgs := []llm.Message{user("1"), bot("2"), user("3")}
	assert.Equal(t, []llm.Message{bot("2"), user("3")}, Trim(msgs, 2))
}

func TestTrim_DoesNotModifyInput(t *testing.T) {
	msgs := []llm.Message{sys("S"), user("1"), bot("2"), user("3")}
	orig := append([]llm.Message(nil), msgs...)

	out := Trim(msgs, 2)
	out[0].Content = "changed"

	assert.Equal(t, orig, msgs)
}

func TestTrim_NonPositiveBoundIsUnbounded(t *testing.T) {
	msgs := []llm.Message{sys("S"), user("1"), bot("2")}
	assert.Equal(t, msgs, Trim(msgs, 0))
	assert.Equal(t, msgs, Trim(msgs, -1))
}

// randomConversation builds a conversation with an optional system prefix.
func randomConversation(r *rand.Rand) []llm.Message {
	var msgs []llm.Message
	for i := 0; i < r.Intn(3); i++ {
		msgs = append(msgs, sys(fmt.Sprintf("s%d", i)))
	}
	for i := 0; i < r.Intn(30); i++ {
		if i%2 == 0 {
			msgs = append(msgs, user(fmt.Sprintf("u%d", i)))
		} else {
			msgs = append(msgs, bot(fmt.Sprintf("a%d", i)))
		}
	}
	return msgs
}

func TestTrim_Properties(t *testing.T) {
	r := rand.New(rand.NewSource(42))

	for iter := 0; iter < 500; iter++ {
		msgs := randomConversation(r)
		n := 1 + r.Intn(12)
		once := Trim(msgs, n)

		// Idempotent.
		require.Equal(t, once, Trim(once, n), "iteration %d", iter)

		// Leading system messages survive unchanged.
		pinned := leadingSystemCount(msgs)
		require.GreaterOrEqual(t, len(once), pinned)
		require.Equal(t, msgs[:pinned], once[:pinned])

		// Tail is exactly the most recent non-system messages.
		if len(msgs) > n {
			keep := n - pinned
			if keep < 0 {
				keep = 0
			}
			require.Equal(t, msgs[len(msgs)-keep:], once[pinned:])
		} else {
			require.Equal(t, msgs, once)
		}
	}
}

// =============================================================================
// CONVERSATION TESTS
// =============================================================================

func TestConversation_Lifecycle(t *testing.T) {
	c := New("S")
	require.Equal(t, 1, c.Len())

	c.Append(user("hi"))
	c.Append(bot("hello"))
	assert.Equal(t, []llm.Message{sys("S"), user("hi"), bot("hello")}, c.Messages())

	c.Reset("S2")
	assert.Equal(t, []llm.Message{sys("S2")}, c.Messages())
}

func TestConversation_TrimReportsDropped(t *testing.T) {
	c := New("S")
	for i := 0; i < 5; i++ {
		c.Append(user(fmt.Sprint(i)))
	}

	assert.Equal(t, 3, c.Trim(3))
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, 0, c.Trim(3))
}

func TestConversation_MessagesIsCopy(t *testing.T) {
	c := New("S")
	msgs := c.Messages()
	msgs[0].Content = "mutated"

	assert.Equal(t, "S", c.Messages()[0].Content)
}

func TestConversation_EmptyPrompt(t *testing.T) {
	c := New("")
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.Messages())
}
