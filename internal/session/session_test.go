// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markusbegerow/local-llm-chat/internal/filegate"
	"github.com/markusbegerow/local-llm-chat/internal/llm"
	"github.com/markusbegerow/local-llm-chat/internal/secrets"
	"github.com/markusbegerow/local-llm-chat/internal/suggest"
	"github.com/markusbegerow/local-llm-chat/internal/workspace"
)

// =============================================================================
// TEST DOUBLES
// =============================================================================

type shown struct {
	Role    llm.Role
	Content string
}

type recorder struct {
	mu        sync.Mutex
	messages  []shown
	errors    []string
	clears    int
	proposals []suggest.FileSuggestion
}

func (r *recorder) AppendMessage(role llm.Role, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, shown{role, content})
}

func (r *recorder) ReportError(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, message)
}

func (r *recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clears++
}

func (r *recorder) ProposeFile(s suggest.FileSuggestion) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.proposals = append(r.proposals, s)
}

// scriptedInvoker returns canned replies and records what it was sent.
type scriptedInvoker struct {
	mu      sync.Mutex
	replies []string
	err     error
	block   chan struct{}
	started chan struct{}
	calls   [][]llm.Message
	configs []llm.EndpointConfig
	models  []string
}

func (f *scriptedInvoker) Invoke(ctx context.Context, cfg llm.EndpointConfig, messages []llm.Message) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, messages)
	f.configs = append(f.configs, cfg)
	block, started := f.block, f.started
	f.started = nil
	f.mu.Unlock()

	if started != nil {
		close(started)
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return "ok", nil
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	return reply, nil
}

func (f *scriptedInvoker) ListModels(context.Context, llm.EndpointConfig) ([]string, error) {
	return f.models, nil
}

type answerPrompter struct{ answer string }

func (p answerPrompter) Ask(context.Context, string, []string) (string, error) {
	return p.answer, nil
}

func testSettings() Settings {
	return Settings{
		Endpoint: llm.EndpointConfig{
			BaseURL:     "http://localhost:11434",
			Provider:    llm.ProviderOpenAI,
			Model:       "llama3.2",
			Temperature: 0.7,
			MaxTokens:   256,
			Timeout:     5 * time.Second,
		},
		SystemPrompt:       "S",
		MaxHistoryMessages: 50,
		Write:              filegate.Options{MaxFileSize: 1 << 20},
	}
}

func newSession(t *testing.T, client Invoker, answer string) (*Session, *recorder, *workspace.Workspace) {
	t.Helper()
	ws, err := workspace.Open(t.TempDir())
	require.NoError(t, err)
	rec := &recorder{}
	s := New(Options{
		Client:    client,
		Workspace: ws,
		Gate:      filegate.New(ws, answerPrompter{answer: answer}, nil, nil),
		Display:   rec,
		Secrets:   secrets.NewMemoryStore(),
		Settings:  testSettings(),
	})
	return s, rec, ws
}

// =============================================================================
// CHAT FLOW
// =============================================================================

func TestSubmitEndToEnd(t *testing.T) {
	var got struct {
		Model    string        `json:"model"`
		Messages []llm.Message `json:"messages"`
	}
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		auth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  hello \n"}}]}`))
	}))
	defer srv.Close()

	s, rec, _ := newSession(t, llm.NewClient(nil), "")
	settings := s.Settings()
	settings.Endpoint.BaseURL = srv.URL
	s.UpdateSettings(settings)
	require.NoError(t, s.secrets.Set(context.Background(), secrets.AuthTokenKey, "sk-test"))

	require.NoError(t, s.Submit(context.Background(), "hi"))

	assert.Equal(t, "llama3.2", got.Model)
	assert.Equal(t, []llm.Message{llm.NewSystemMessage("S"), llm.NewUserMessage("hi")}, got.Messages)
	assert.Equal(t, "Bearer sk-test", auth)

	assert.Equal(t, []llm.Message{
		llm.NewSystemMessage("S"),
		llm.NewUserMessage("hi"),
		llm.NewAssistantMessage("hello"),
	}, s.Messages())
	assert.Equal(t, []shown{{llm.RoleAssistant, "hello"}}, rec.messages)
	assert.Empty(t, rec.proposals)
	assert.Empty(t, rec.errors)
}

func TestSubmitBlankIgnored(t *testing.T) {
	inv := &scriptedInvoker{}
	s, rec, _ := newSession(t, inv, "")

	require.NoError(t, s.Submit(context.Background(), "   \n"))
	assert.Empty(t, inv.calls)
	assert.Empty(t, rec.messages)
	assert.Len(t, s.Messages(), 1)
}

func TestSubmitProposesFiles(t *testing.T) {
	reply := "Here:\n```file path=\"src/a.go\"\npackage src\n```\nand\n```file path=\" b.txt \"\n\n```"
	inv := &scriptedInvoker{replies: []string{reply}}
	s, rec, _ := newSession(t, inv, "")

	require.NoError(t, s.Submit(context.Background(), "make files"))
	assert.Equal(t, []suggest.FileSuggestion{
		{Path: "src/a.go", Content: "package src"},
		{Path: "b.txt", Content: ""},
	}, rec.proposals)
}

func TestSubmitErrorKeepsUserTurn(t *testing.T) {
	inv := &scriptedInvoker{err: &llm.Error{Kind: llm.KindTransport, Status: 500, Message: "API request failed with status 500: boom"}}
	s, rec, _ := newSession(t, inv, "")

	err := s.Submit(context.Background(), "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrTransport)

	assert.Equal(t, []llm.Message{llm.NewSystemMessage("S"), llm.NewUserMessage("hi")}, s.Messages())
	require.Len(t, rec.errors, 1)
	assert.Contains(t, rec.errors[0], "status 500")
	assert.Empty(t, rec.messages)
}

func TestSubmitTrimsHistory(t *testing.T) {
	inv := &scriptedInvoker{}
	s, _, _ := newSession(t, inv, "")
	settings := s.Settings()
	settings.MaxHistoryMessages = 3
	s.UpdateSettings(settings)

	ctx := context.Background()
	require.NoError(t, s.Submit(ctx, "one"))
	require.NoError(t, s.Submit(ctx, "two"))

	// Second call: [S, one, ok, two] trimmed to the system message plus the last two.
	require.Len(t, inv.calls, 2)
	assert.Equal(t, []llm.Message{
		llm.NewSystemMessage("S"),
		llm.NewAssistantMessage("ok"),
		llm.NewUserMessage("two"),
	}, inv.calls[1])
}

func TestUpdateSettingsAppliesToNextCall(t *testing.T) {
	inv := &scriptedInvoker{}
	s, _, _ := newSession(t, inv, "")
	ctx := context.Background()

	require.NoError(t, s.Submit(ctx, "first"))
	settings := s.Settings()
	settings.Endpoint.Model = "qwen2.5"
	s.UpdateSettings(settings)
	require.NoError(t, s.Submit(ctx, "second"))

	require.Len(t, inv.configs, 2)
	assert.Equal(t, "llama3.2", inv.configs[0].Model)
	assert.Equal(t, "qwen2.5", inv.configs[1].Model)
	assert.Empty(t, inv.configs[1].AuthToken)
}

func TestSubmitRejectsWhileBusy(t *testing.T) {
	inv := &scriptedInvoker{block: make(chan struct{}), started: make(chan struct{})}
	s, rec, _ := newSession(t, inv, "")

	done := make(chan error, 1)
	go func() { done <- s.Submit(context.Background(), "slow") }()
	<-inv.started
	assert.True(t, s.Busy())

	assert.ErrorIs(t, s.Submit(context.Background(), "again"), ErrBusy)
	assert.ErrorIs(t, s.Clear(), ErrBusy)

	close(inv.block)
	require.NoError(t, <-done)
	assert.False(t, s.Busy())

	rec.mu.Lock()
	assert.Equal(t, []string{ErrBusy.Error(), ErrBusy.Error()}, rec.errors)
	rec.mu.Unlock()

	// Only the first call reached the endpoint.
	inv.mu.Lock()
	assert.Len(t, inv.calls, 1)
	inv.mu.Unlock()
}

// =============================================================================
// COMMANDS
// =============================================================================

func TestReadCommandAddsContext(t *testing.T) {
	inv := &scriptedInvoker{}
	s, rec, ws := newSession(t, inv, "")
	require.NoError(t, os.WriteFile(filepath.Join(ws.Root(), "notes.txt"), []byte("remember"), 0644))

	require.NoError(t, s.Submit(context.Background(), "/read notes.txt"))

	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, llm.RoleUser, msgs[1].Role)
	assert.Contains(t, msgs[1].Content, "remember")
	require.Len(t, rec.messages, 1)
	assert.Equal(t, llm.RoleAssistant, rec.messages[0].Role)
	assert.Empty(t, inv.calls)
}

func TestCommandsWithoutSideEffects(t *testing.T) {
	inv := &scriptedInvoker{models: []string{"llama3.2"}}
	s, rec, _ := newSession(t, inv, "")
	ctx := context.Background()

	require.NoError(t, s.Submit(ctx, "/list"))
	require.NoError(t, s.Submit(ctx, "/help"))
	require.NoError(t, s.Submit(ctx, "/models"))
	require.NoError(t, s.Submit(ctx, "/nosuchthing"))

	assert.Len(t, s.Messages(), 1)
	require.Len(t, rec.messages, 4)
	assert.Contains(t, rec.messages[2].Content, "`llama3.2` (current)")
	assert.Equal(t, "Unknown command: /nosuchthing. Type /help for available commands.", rec.messages[3].Content)
}

func TestCommandErrorReported(t *testing.T) {
	s, rec, _ := newSession(t, &scriptedInvoker{}, "")

	err := s.Submit(context.Background(), "/read missing.txt")
	assert.ErrorIs(t, err, workspace.ErrNotFound)
	require.Len(t, rec.errors, 1)
	assert.Len(t, s.Messages(), 1)
}

func TestClear(t *testing.T) {
	inv := &scriptedInvoker{}
	s, rec, _ := newSession(t, inv, "")
	ctx := context.Background()

	require.NoError(t, s.Submit(ctx, "hi"))
	require.NoError(t, s.Clear())
	assert.Equal(t, []llm.Message{llm.NewSystemMessage("S")}, s.Messages())

	require.NoError(t, s.Submit(ctx, "hi again"))
	require.NoError(t, s.Submit(ctx, "/clear"))
	assert.Equal(t, []llm.Message{llm.NewSystemMessage("S")}, s.Messages())
	assert.Equal(t, 2, rec.clears)
}

func TestClearUsesCurrentSystemPrompt(t *testing.T) {
	s, _, _ := newSession(t, &scriptedInvoker{}, "")
	settings := s.Settings()
	settings.SystemPrompt = ""
	s.UpdateSettings(settings)

	require.NoError(t, s.Clear())
	assert.Empty(t, s.Messages())
}

// =============================================================================
// FILE WRITES
// =============================================================================

func TestConfirmWrite(t *testing.T) {
	s, rec, ws := newSession(t, &scriptedInvoker{}, filegate.ChoiceCreate)
	ctx := context.Background()

	outcome, err := s.ConfirmWrite(ctx, "src/new.go", "package src\n")
	require.NoError(t, err)
	assert.Equal(t, filegate.OutcomeCreated, outcome)

	data, err := os.ReadFile(filepath.Join(ws.Root(), "src", "new.go"))
	require.NoError(t, err)
	assert.Equal(t, "package src\n", string(data))
	require.Len(t, rec.messages, 1)
	assert.Equal(t, "Created `src/new.go`.", rec.messages[0].Content)
	// Writes never touch the conversation.
	assert.Len(t, s.Messages(), 1)
}

func TestConfirmWriteCancelled(t *testing.T) {
	s, rec, ws := newSession(t, &scriptedInvoker{}, filegate.ChoiceCancel)

	outcome, err := s.ConfirmWrite(context.Background(), "a.txt", "x")
	require.NoError(t, err)
	assert.Equal(t, filegate.OutcomeCancelled, outcome)
	_, statErr := os.Stat(filepath.Join(ws.Root(), "a.txt"))
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
	assert.Equal(t, "Skipped `a.txt`.", rec.messages[0].Content)
}

func TestConfirmWriteRejected(t *testing.T) {
	s, rec, _ := newSession(t, &scriptedInvoker{}, filegate.ChoiceCreate)
	settings := s.Settings()
	settings.Write.MaxFileSize = 4
	s.UpdateSettings(settings)

	_, err := s.ConfirmWrite(context.Background(), "../escape.txt", "x")
	var pathErr *filegate.PathValidationError
	assert.True(t, errors.As(err, &pathErr))

	_, err = s.ConfirmWrite(context.Background(), "big.txt", "12345")
	var sizeErr *filegate.ContentTooLargeError
	assert.True(t, errors.As(err, &sizeErr))

	assert.Len(t, rec.errors, 2)
}

func TestConfirmWriteWithoutGate(t *testing.T) {
	rec := &recorder{}
	s := New(Options{Client: &scriptedInvoker{}, Display: rec, Settings: testSettings()})

	_, err := s.ConfirmWrite(context.Background(), "a.txt", "x")
	assert.ErrorIs(t, err, ErrNoGate)
	assert.NotEmpty(t, s.ID())
}
