// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/markusbegerow/local-llm-chat/internal/llm"
	"github.com/markusbegerow/local-llm-chat/internal/session"
	"github.com/markusbegerow/local-llm-chat/internal/suggest"
)

// ErrClosed is returned by Ask when the connection ends before an answer.
var ErrClosed = errors.New("bridge connection closed")

// Bridge serves one session over one connection.
type Bridge struct {
	conn    Conn
	logger  *slog.Logger
	version string

	session *session.Session

	// inFlight is claimed by the reader when it accepts a submit, so a
	// second submit is refused in arrival order.
	inFlight atomic.Bool

	mu      sync.Mutex
	pending map[string]chan string

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a bridge. Attach a session before calling Run.
func New(conn Conn, version string, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		conn:    conn,
		logger:  logger.With("component", "bridge"),
		version: version,
		pending: make(map[string]chan string),
		done:    make(chan struct{}),
	}
}

// Attach sets the session the bridge drives. The session is normally built
// with the bridge as its Display and the gate's Prompter and Opener.
func (b *Bridge) Attach(s *session.Session) {
	b.session = s
	b.logger = b.logger.With("session", s.ID())
}

// Session returns the attached session.
func (b *Bridge) Session() *session.Session {
	return b.session
}

// =============================================================================
// EVENT LOOP
// =============================================================================

// Run sends the ready event and processes inbound events until the peer
// disconnects or ctx is cancelled. Work still running is cancelled and
// awaited before Run returns.
func (b *Bridge) Run(ctx context.Context) error {
	if b.session == nil {
		return errors.New("bridge has no session attached")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		b.shutdown()
		b.wg.Wait()
	}()

	go func() {
		select {
		case <-ctx.Done():
			b.conn.Close()
		case <-b.done:
		}
	}()

	if err := b.send(Event{Type: TypeReady, Session: b.session.ID(), Version: b.version}); err != nil {
		return fmt.Errorf("failed to send ready event: %w", err)
	}
	b.logger.Info("bridge ready")

	for {
		ev, err := b.conn.ReadEvent()
		if err != nil {
			var decodeErr *DecodeError
			if errors.As(err, &decodeErr) {
				b.logger.Warn("dropping malformed event", "error", err)
				b.ReportError(err.Error())
				continue
			}
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				b.logger.Info("bridge closed")
				return nil
			}
			return fmt.Errorf("failed to read event: %w", err)
		}
		b.handle(ctx, ev)
	}
}

func (b *Bridge) handle(ctx context.Context, ev Event) {
	b.logger.Debug("event received", "type", ev.Type)

	switch ev.Type {
	case TypePing:
		b.send(Event{Type: TypePong})

	case TypePromptResponse:
		b.resolvePrompt(ev.ID, ev.Choice)

	case TypeSubmit:
		if !b.inFlight.CompareAndSwap(false, true) {
			b.ReportError(session.ErrBusy.Error())
			return
		}
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			defer b.inFlight.Store(false)
			b.session.Submit(ctx, ev.Text)
		}()

	case TypeClear:
		if b.inFlight.Load() {
			b.ReportError(session.ErrBusy.Error())
			return
		}
		b.session.Clear()

	case TypeConfirmWrite:
		// Runs off the reader so the prompt it raises can be answered.
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.session.ConfirmWrite(ctx, ev.Path, ev.Content)
		}()

	default:
		b.ReportError(fmt.Sprintf("unknown event type %q", ev.Type))
	}
}

func (b *Bridge) send(ev Event) error {
	if err := b.conn.WriteEvent(ev); err != nil {
		b.logger.Warn("failed to send event", "type", ev.Type, "error", err)
		return err
	}
	return nil
}

// shutdown fails every waiting prompt.
func (b *Bridge) shutdown() {
	b.closeOnce.Do(func() {
		close(b.done)
	})
}

// =============================================================================
// DISPLAY
// =============================================================================

// AppendMessage implements session.Display.
func (b *Bridge) AppendMessage(role llm.Role, content string) {
	b.send(Event{Type: TypeMessage, Role: string(role), Content: content})
}

// ReportError implements session.Display.
func (b *Bridge) ReportError(message string) {
	b.send(Event{Type: TypeError, Message: message})
}

// Clear implements session.Display.
func (b *Bridge) Clear() {
	b.send(Event{Type: TypeClear})
}

// ProposeFile implements session.Display.
func (b *Bridge) ProposeFile(s suggest.FileSuggestion) {
	b.send(Event{Type: TypeProposeFile, Path: s.Path, Content: s.Content})
}

// =============================================================================
// PROMPTER AND OPENER
// =============================================================================

// Ask implements filegate.Prompter. It blocks until the host answers, ctx
// ends or the connection closes. A dismissed prompt answers "".
func (b *Bridge) Ask(ctx context.Context, message string, options []string) (string, error) {
	id := uuid.NewString()
	ch := make(chan string, 1)

	b.mu.Lock()
	b.pending[id] = ch
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
	}()

	if err := b.send(Event{Type: TypePrompt, ID: id, Message: message, Options: options}); err != nil {
		return "", fmt.Errorf("failed to send prompt: %w", err)
	}

	select {
	case choice := <-ch:
		return choice, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-b.done:
		return "", ErrClosed
	}
}

func (b *Bridge) resolvePrompt(id, choice string) {
	b.mu.Lock()
	ch, ok := b.pending[id]
	b.mu.Unlock()
	if !ok {
		b.logger.Warn("response for unknown prompt", "id", id)
		return
	}
	select {
	case ch <- choice:
	default:
	}
}

// OpenFile implements filegate.Opener.
func (b *Bridge) OpenFile(_ context.Context, relPath string) error {
	return b.send(Event{Type: TypeOpenFile, Path: relPath})
}
