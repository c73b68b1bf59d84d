// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// =============================================================================
// MESSAGES
// =============================================================================

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn in a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// =============================================================================
// ENDPOINT CONFIGURATION
// =============================================================================

// Provider selects the wire format spoken to the endpoint.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderOllama Provider = "ollama"
)

// ParseProvider maps a configuration value onto a Provider.
func ParseProvider(s string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "openai", "":
		return ProviderOpenAI, nil
	case "ollama":
		return ProviderOllama, nil
	default:
		return "", fmt.Errorf("unknown api compatibility mode %q (want openai or ollama)", s)
	}
}

// EndpointConfig carries everything needed for one model call.
type EndpointConfig struct {
	BaseURL        string
	Provider       Provider
	Model          string
	AuthToken      string
	Temperature    float64
	MaxTokens      int
	Timeout        time.Duration
	CustomEndpoint string
}

// Validate reports the first configuration problem as a KindConfiguration
// error.
func (c EndpointConfig) Validate() error {
	if strings.TrimSpace(c.Model) == "" {
		return newError(KindConfiguration, "model name is not configured", nil)
	}
	if _, ok := c.customURL(); !ok {
		if strings.TrimSpace(c.BaseURL) == "" {
			return newError(KindConfiguration, "api url is not configured", nil)
		}
		if err := CheckURL(c.BaseURL); err != nil {
			return newError(KindConfiguration, "invalid api url", err)
		}
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return newError(KindConfiguration, fmt.Sprintf("temperature %.2f is outside [0, 2]", c.Temperature), nil)
	}
	if c.MaxTokens <= 0 {
		return newError(KindConfiguration, "max tokens must be positive", nil)
	}
	if c.Timeout <= 0 {
		return newError(KindConfiguration, "request timeout must be positive", nil)
	}
	return nil
}

// customURL returns the custom endpoint when it is set and usable.
func (c EndpointConfig) customURL() (string, bool) {
	raw := strings.TrimSpace(c.CustomEndpoint)
	if raw == "" {
		return "", false
	}
	if err := CheckURL(raw); err != nil {
		return "", false
	}
	return raw, true
}

// CheckURL verifies s is an absolute http or https URL with a host.
func CheckURL(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url %q has no host", s)
	}
	return nil
}
