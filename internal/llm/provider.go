// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"encoding/json"
	"strings"

	"github.com/markusbegerow/local-llm-chat/internal/util"
)

// wireFormat is one endpoint dialect. The variant is picked once per call.
type wireFormat interface {
	chatURL(base string) string
	modelsURL(base string) string
	encodeChat(cfg EndpointConfig, messages []Message) ([]byte, error)
	// decodeChat returns the raw reply text, "" when there is none.
	decodeChat(body []byte) (string, error)
	decodeModels(body []byte) ([]string, error)
}

func formatFor(p Provider) wireFormat {
	if p == ProviderOllama {
		return ollamaFormat{}
	}
	return openAIFormat{}
}

// joinPath appends suffix to base without doubling a prefix segment the
// base already ends in ("/v1" or "/api").
func joinPath(base, segment, suffix string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if strings.HasSuffix(base, segment) {
		return base + suffix
	}
	return base + segment + suffix
}

// =============================================================================
// OPENAI-COMPATIBLE
// =============================================================================

type openAIChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	Stream      bool      `json:"stream"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type openAIModelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

type openAIFormat struct{}

func (openAIFormat) chatURL(base string) string   { return joinPath(base, "/v1", "/chat/completions") }
func (openAIFormat) modelsURL(base string) string { return joinPath(base, "/v1", "/models") }

func (openAIFormat) encodeChat(cfg EndpointConfig, messages []Message) ([]byte, error) {
	return json.Marshal(openAIChatRequest{
		Model:       cfg.Model,
		Messages:    messages,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Stream:      false,
	})
}

func (openAIFormat) decodeChat(body []byte) (string, error) {
	var resp openAIChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func (openAIFormat) decodeModels(body []byte) ([]string, error) {
	var resp openAIModelsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(resp.Data))
	for _, m := range resp.Data {
		names = append(names, m.ID)
	}
	return names, nil
}

// =============================================================================
// OLLAMA NATIVE
// =============================================================================

// ollamaOptions holds the model parameters of /api/chat. Temperature has no
// omitempty because zero is a meaningful setting.
type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type ollamaChatRequest struct {
	Model    string        `json:"model"`
	Messages []Message     `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  ollamaOptions `json:"options"`
}

type ollamaChatResponse struct {
	Message *struct {
		Content string `json:"content"`
	} `json:"message"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

type ollamaFormat struct{}

func (ollamaFormat) chatURL(base string) string   { return joinPath(base, "/api", "/chat") }
func (ollamaFormat) modelsURL(base string) string { return joinPath(base, "/api", "/tags") }

func (ollamaFormat) encodeChat(cfg EndpointConfig, messages []Message) ([]byte, error) {
	return json.Marshal(ollamaChatRequest{
		Model:    cfg.Model,
		Messages: messages,
		Stream:   false,
		Options: ollamaOptions{
			Temperature: cfg.Temperature,
			NumPredict:  cfg.MaxTokens,
		},
	})
}

func (ollamaFormat) decodeChat(body []byte) (string, error) {
	var resp ollamaChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", err
	}
	if resp.Message == nil {
		return "", nil
	}
	return resp.Message.Content, nil
}

func (ollamaFormat) decodeModels(body []byte) ([]string, error) {
	var resp ollamaTagsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// =============================================================================
// ERROR BODIES
// =============================================================================

// maxErrorDetail caps the characters of a server error body kept in a
// TransportError message.
const maxErrorDetail = 500

// errorDetail extracts a human readable message from a failed response body.
// Both {"error":"..."} (ollama) and {"error":{"message":"..."}} (openai) are
// unwrapped; anything else is returned as trimmed text.
func errorDetail(body []byte) string {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return ""
	}

	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Error) > 0 {
		var s string
		if json.Unmarshal(envelope.Error, &s) == nil && s != "" {
			text = s
		} else {
			var obj struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(envelope.Error, &obj) == nil && obj.Message != "" {
				text = obj.Message
			}
		}
	}

	return util.TruncateRunes(text, maxErrorDetail+len("..."))
}
