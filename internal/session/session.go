// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/markusbegerow/local-llm-chat/internal/commands"
	"github.com/markusbegerow/local-llm-chat/internal/config"
	"github.com/markusbegerow/local-llm-chat/internal/conversation"
	"github.com/markusbegerow/local-llm-chat/internal/filegate"
	"github.com/markusbegerow/local-llm-chat/internal/llm"
	"github.com/markusbegerow/local-llm-chat/internal/secrets"
	"github.com/markusbegerow/local-llm-chat/internal/suggest"
	"github.com/markusbegerow/local-llm-chat/internal/workspace"
)

// ErrBusy is returned when a request arrives while a model call is in flight.
var ErrBusy = errors.New("a request is already in progress; wait for the reply")

// ErrNoGate is returned by ConfirmWrite when the session cannot write files.
var ErrNoGate = errors.New("file writes are not available in this session")

// =============================================================================
// COLLABORATORS
// =============================================================================

// Display is the host surface a session reports to.
type Display interface {
	// AppendMessage shows a conversation message.
	AppendMessage(role llm.Role, content string)
	// ReportError shows an error, styled apart from messages.
	ReportError(message string)
	// Clear empties the visible conversation.
	Clear()
	// ProposeFile offers a file the model suggested. Writing it goes through
	// Session.ConfirmWrite.
	ProposeFile(s suggest.FileSuggestion)
}

// Invoker performs model calls. *llm.Client implements it.
type Invoker interface {
	Invoke(ctx context.Context, cfg llm.EndpointConfig, messages []llm.Message) (string, error)
	ListModels(ctx context.Context, cfg llm.EndpointConfig) ([]string, error)
}

// =============================================================================
// SETTINGS
// =============================================================================

// Settings is the configuration a session reads on every request. The auth
// token is not part of it; it is read from the secret store per call.
type Settings struct {
	Endpoint           llm.EndpointConfig
	SystemPrompt       string
	MaxHistoryMessages int
	Write              filegate.Options
}

// SettingsFromConfig extracts session settings from a loaded config.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Endpoint:           cfg.Endpoint(""),
		SystemPrompt:       cfg.SystemPrompt,
		MaxHistoryMessages: cfg.MaxHistoryMessages,
		Write:              cfg.WriteOptions(),
	}
}

// Options wires a session.
type Options struct {
	Client    Invoker
	Workspace *workspace.Workspace
	Gate      *filegate.Gate
	Display   Display
	Secrets   secrets.Store
	Registry  *commands.Registry
	Settings  Settings
	Logger    *slog.Logger
}

// =============================================================================
// SESSION
// =============================================================================

// Session is one chat conversation.
type Session struct {
	id       string
	client   Invoker
	ws       *workspace.Workspace
	gate     *filegate.Gate
	display  Display
	secrets  secrets.Store
	registry *commands.Registry
	logger   *slog.Logger

	busy    atomic.Bool
	writeMu sync.Mutex // one gate prompt at a time

	mu       sync.Mutex // guards conv and settings
	conv     *conversation.Conversation
	settings Settings
}

// New creates a session with a fresh conversation.
func New(opts Options) *Session {
	id := uuid.NewString()
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := opts.Registry
	if registry == nil {
		registry = commands.NewRegistry()
	}
	return &Session{
		id:       id,
		client:   opts.Client,
		ws:       opts.Workspace,
		gate:     opts.Gate,
		display:  opts.Display,
		secrets:  opts.Secrets,
		registry: registry,
		logger:   logger.With("session", id),
		conv:     conversation.New(opts.Settings.SystemPrompt),
		settings: opts.Settings,
	}
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string {
	return s.id
}

// Registry returns the command registry.
func (s *Session) Registry() *commands.Registry {
	return s.registry
}

// Messages returns a copy of the conversation.
func (s *Session) Messages() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv.Messages()
}

// Settings returns the current settings.
func (s *Session) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// UpdateSettings replaces the settings. A call in flight keeps the settings
// it started with.
func (s *Session) UpdateSettings(settings Settings) {
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
	s.logger.Info("settings updated",
		"provider", settings.Endpoint.Provider,
		"model", settings.Endpoint.Model,
		"max_history", settings.MaxHistoryMessages)
}

// Busy reports whether a model call is in flight.
func (s *Session) Busy() bool {
	return s.busy.Load()
}

// =============================================================================
// SUBMIT
// =============================================================================

// Submit handles one line of user input: a slash command or a chat message.
// Blank input is ignored.
func (s *Session) Submit(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if !s.busy.CompareAndSwap(false, true) {
		s.display.ReportError(ErrBusy.Error())
		return ErrBusy
	}
	defer s.busy.Store(false)

	if commands.IsCommand(text) {
		return s.runCommand(ctx, text)
	}
	return s.chat(ctx, text)
}

func (s *Session) chat(ctx context.Context, text string) error {
	s.mu.Lock()
	settings := s.settings
	s.conv.Append(llm.NewUserMessage(text))
	if dropped := s.conv.Trim(settings.MaxHistoryMessages); dropped > 0 {
		s.logger.Debug("trimmed history", "dropped", dropped, "max", settings.MaxHistoryMessages)
	}
	messages := s.conv.Messages()
	s.mu.Unlock()

	endpoint, err := s.endpoint(ctx, settings)
	if err != nil {
		s.display.ReportError(err.Error())
		return err
	}

	start := time.Now()
	reply, err := s.client.Invoke(ctx, endpoint, messages)
	if err != nil {
		// The user turn stays so the next attempt has it as context.
		s.logger.Warn("model call failed", "error", err, "duration", time.Since(start))
		s.display.ReportError(err.Error())
		return err
	}

	s.mu.Lock()
	s.conv.Append(llm.NewAssistantMessage(reply))
	s.mu.Unlock()
	s.display.AppendMessage(llm.RoleAssistant, reply)

	suggestions := suggest.Extract(reply)
	for _, sug := range suggestions {
		s.display.ProposeFile(sug)
	}
	if len(suggestions) > 0 {
		s.logger.Info("file suggestions", "count", len(suggestions))
	}
	return nil
}

// endpoint adds the auth token from the secret store.
func (s *Session) endpoint(ctx context.Context, settings Settings) (llm.EndpointConfig, error) {
	endpoint := settings.Endpoint
	if s.secrets == nil {
		return endpoint, nil
	}
	token, ok, err := s.secrets.Get(ctx, secrets.AuthTokenKey)
	if err != nil {
		return endpoint, fmt.Errorf("failed to read auth token: %w", err)
	}
	if ok {
		endpoint.AuthToken = token
	}
	return endpoint, nil
}

// =============================================================================
// COMMANDS
// =============================================================================

func (s *Session) runCommand(ctx context.Context, text string) error {
	settings := s.Settings()
	env := &commands.Env{
		Workspace:    s.ws,
		Models:       modelLister{s: s},
		CurrentModel: settings.Endpoint.Model,
	}

	res, err := s.registry.Dispatch(ctx, env, text)
	if err != nil {
		s.logger.Debug("command failed", "command", commands.ExtractCommandName(text), "error", err)
		s.display.ReportError(err.Error())
		return err
	}

	if res.Clear {
		s.reset()
		return nil
	}
	if res.ContextMessage != "" {
		s.mu.Lock()
		s.conv.Append(llm.NewUserMessage(res.ContextMessage))
		s.conv.Trim(settings.MaxHistoryMessages)
		s.mu.Unlock()
	}
	if res.Report != "" {
		s.display.AppendMessage(llm.RoleAssistant, res.Report)
	}
	return nil
}

// modelLister adapts the session endpoint to commands.ModelLister.
type modelLister struct {
	s *Session
}

func (m modelLister) ListModels(ctx context.Context) ([]string, error) {
	if m.s.client == nil {
		return nil, errors.New("no model client configured")
	}
	endpoint, err := m.s.endpoint(ctx, m.s.Settings())
	if err != nil {
		return nil, err
	}
	return m.s.client.ListModels(ctx, endpoint)
}

// =============================================================================
// CLEAR
// =============================================================================

// Clear resets the conversation to the configured system prompt.
func (s *Session) Clear() error {
	if !s.busy.CompareAndSwap(false, true) {
		s.display.ReportError(ErrBusy.Error())
		return ErrBusy
	}
	defer s.busy.Store(false)
	s.reset()
	return nil
}

func (s *Session) reset() {
	s.mu.Lock()
	s.conv.Reset(s.settings.SystemPrompt)
	s.mu.Unlock()
	s.display.Clear()
	s.logger.Debug("conversation cleared")
}

// =============================================================================
// FILE WRITES
// =============================================================================

// ConfirmWrite runs a proposed file through the write gate and reports the
// outcome.
func (s *Session) ConfirmWrite(ctx context.Context, path, content string) (filegate.Outcome, error) {
	if s.gate == nil {
		s.display.ReportError(ErrNoGate.Error())
		return filegate.OutcomeCancelled, ErrNoGate
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	outcome, err := s.gate.CreateFile(ctx, path, content, s.Settings().Write)
	if err != nil {
		s.display.ReportError(fmt.Sprintf("Failed to create %s: %v", path, err))
		return outcome, err
	}

	switch outcome {
	case filegate.OutcomeCreated:
		s.display.AppendMessage(llm.RoleAssistant, fmt.Sprintf("Created `%s`.", path))
	case filegate.OutcomeOverwritten:
		s.display.AppendMessage(llm.RoleAssistant, fmt.Sprintf("Overwrote `%s`.", path))
	default:
		s.display.AppendMessage(llm.RoleAssistant, fmt.Sprintf("Skipped `%s`.", path))
	}
	return outcome, nil
}
