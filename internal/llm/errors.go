// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"fmt"
	"time"
)

// ErrorKind categorizes endpoint failures.
type ErrorKind int

const (
	KindConfiguration ErrorKind = iota + 1
	KindTransport
	KindTimeout
	KindEmptyResponse
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration error"
	case KindTransport:
		return "transport error"
	case KindTimeout:
		return "timeout"
	case KindEmptyResponse:
		return "empty response"
	default:
		return "unknown error"
	}
}

// Error is returned by every Client operation.
type Error struct {
	Kind ErrorKind
	// Status is the HTTP status code for transport errors caused by a
	// non-2xx response, zero otherwise.
	Status  int
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same kind, so the sentinels below work with
// errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinel errors for easy checking.
var (
	ErrConfiguration = &Error{Kind: KindConfiguration, Message: "configuration error"}
	ErrTransport     = &Error{Kind: KindTransport, Message: "transport error"}
	ErrTimeout       = &Error{Kind: KindTimeout, Message: "request timed out"}
	ErrEmptyResponse = &Error{Kind: KindEmptyResponse, Message: "empty response from model"}
)

func newError(kind ErrorKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

func timeoutError(d time.Duration) *Error {
	secs := int((d + time.Second - 1) / time.Second)
	unit := "seconds"
	if secs == 1 {
		unit = "second"
	}
	return &Error{Kind: KindTimeout, Message: fmt.Sprintf("request timed out after %d %s", secs, unit)}
}

func statusError(status int, detail string) *Error {
	return &Error{
		Kind:    KindTransport,
		Status:  status,
		Message: fmt.Sprintf("API request failed with status %d: %s", status, detail),
	}
}
