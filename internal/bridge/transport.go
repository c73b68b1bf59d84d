// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package bridge

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/markusbegerow/local-llm-chat/internal/util"
)

// MaxEventSize bounds one inbound event. File contents travel inside
// confirm_write events, so this is well above the default write limit.
const MaxEventSize = 16 << 20

// Conn carries events. WriteEvent is safe for concurrent use; ReadEvent is
// called from one goroutine. ReadEvent returns io.EOF when the peer is gone
// and *DecodeError for a malformed frame.
type Conn interface {
	ReadEvent() (Event, error)
	WriteEvent(Event) error
	Close() error
}

func decodeEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, &DecodeError{Err: err}
	}
	if ev.Type == "" {
		return Event{}, &DecodeError{Err: errors.New("missing type")}
	}
	return ev, nil
}

// =============================================================================
// STDIO
// =============================================================================

// StdioConn speaks line-delimited JSON over a reader and writer pair.
type StdioConn struct {
	r      *bufio.Reader
	limit  int // longest accepted line in bytes
	closer io.Closer

	mu sync.Mutex
	w  io.Writer
}

// NewStdioConn creates a connection reading r and writing w. When r is an
// io.Closer, Close closes it.
func NewStdioConn(r io.Reader, w io.Writer) *StdioConn {
	c := &StdioConn{r: bufio.NewReaderSize(r, 64*1024), limit: MaxEventSize, w: w}
	if closer, ok := r.(io.Closer); ok {
		c.closer = closer
	}
	return c
}

// ReadEvent reads the next non-blank line. A line over the size limit is
// discarded and reported as a *DecodeError.
func (c *StdioConn) ReadEvent() (Event, error) {
	for {
		line, tooLong, err := c.readLine()
		if err != nil {
			return Event{}, err
		}
		if tooLong {
			return Event{}, &DecodeError{Err: fmt.Errorf("event exceeds %s", util.FormatBytes(int64(c.limit)))}
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		return decodeEvent(line)
	}
}

// readLine returns the next line without its terminator. Once a line grows
// past the limit the rest of it is read and dropped. A final line without a
// newline is returned before io.EOF.
func (c *StdioConn) readLine() ([]byte, bool, error) {
	var line []byte
	tooLong := false
	for {
		chunk, err := c.r.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(bytes.TrimRight(chunk, "\r\n")) > c.limit {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if len(line) > 0 || tooLong {
				return line, tooLong, nil
			}
			return nil, false, io.EOF
		case err != nil:
			return nil, false, err
		}
		return line, tooLong, nil
	}
}

// WriteEvent writes ev as one line.
func (c *StdioConn) WriteEvent(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err = c.w.Write(data)
	return err
}

// Close closes the reader if it can be closed.
func (c *StdioConn) Close() error {
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

// =============================================================================
// WEBSOCKET
// =============================================================================

const wsWriteTimeout = 10 * time.Second

// WSConn speaks JSON text frames over a websocket.
type WSConn struct {
	conn *websocket.Conn

	mu sync.Mutex
}

// NewWSConn wraps an established websocket connection.
func NewWSConn(conn *websocket.Conn) *WSConn {
	conn.SetReadLimit(MaxEventSize)
	return &WSConn{conn: conn}
}

// ReadEvent reads the next frame.
func (c *WSConn) ReadEvent() (Event, error) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return Event{}, io.EOF
			}
			return Event{}, err
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		return decodeEvent(data)
	}
}

// WriteEvent writes ev as one text frame.
func (c *WSConn) WriteEvent(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteJSON(ev)
}

// Close sends a close frame and closes the connection.
func (c *WSConn) Close() error {
	c.mu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.mu.Unlock()
	return c.conn.Close()
}
