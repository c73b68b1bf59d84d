// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package bridge

import "fmt"

// Event types.
const (
	// Inbound
	TypeSubmit         = "submit"
	TypeClear          = "clear"
	TypeConfirmWrite   = "confirm_write"
	TypePromptResponse = "prompt_response"
	TypePing           = "ping"

	// Outbound
	TypeReady       = "ready"
	TypeMessage     = "message"
	TypeError       = "error"
	TypeProposeFile = "propose_file"
	TypePrompt      = "prompt"
	TypeOpenFile    = "open_file"
	TypePong        = "pong"
)

// Event is one protocol message in either direction. Fields that do not
// apply to a type are omitted from the encoding; hosts read a missing
// string as empty.
type Event struct {
	Type string `json:"type"`

	// submit
	Text string `json:"text,omitempty"`

	// message, propose_file, confirm_write
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
	Path    string `json:"path,omitempty"`

	// error, prompt
	Message string `json:"message,omitempty"`

	// prompt, prompt_response
	ID      string   `json:"id,omitempty"`
	Options []string `json:"options,omitempty"`
	Choice  string   `json:"choice,omitempty"`

	// ready
	Session string `json:"session,omitempty"`
	Version string `json:"version,omitempty"`
}

// DecodeError reports an inbound frame that is not a valid event. The
// connection stays usable.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid event: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
