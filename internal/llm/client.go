// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 32 << 20

// =============================================================================
// CLIENT
// =============================================================================

// Client performs model calls. Each call carries its own EndpointConfig, so a
// single Client serves any number of sessions and picks up configuration
// changes between calls.
//
// The Client is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client using a fresh http.Client. Per-call timeouts
// come from EndpointConfig.Timeout.
func NewClient(logger *slog.Logger) *Client {
	return NewClientWithHTTP(&http.Client{}, logger)
}

// NewClientWithHTTP creates a client around an existing http.Client.
func NewClientWithHTTP(hc *http.Client, logger *slog.Logger) *Client {
	if hc == nil {
		hc = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{httpClient: hc, logger: logger.With("component", "llm")}
}

// resolve picks the wire format and chat URL for cfg. A custom endpoint that
// does not parse is ignored with a warning.
func (c *Client) resolve(cfg EndpointConfig) (wireFormat, string) {
	if custom, ok := cfg.customURL(); ok {
		return openAIFormat{}, custom
	}
	if strings.TrimSpace(cfg.CustomEndpoint) != "" {
		c.logger.Warn("ignoring invalid custom endpoint", "custom_endpoint", cfg.CustomEndpoint)
	}
	f := formatFor(cfg.Provider)
	return f, f.chatURL(cfg.BaseURL)
}

// =============================================================================
// CHAT
// =============================================================================

// Invoke sends messages to the configured endpoint and returns the trimmed
// reply text.
func (c *Client) Invoke(ctx context.Context, cfg EndpointConfig, messages []Message) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	format, endpoint := c.resolve(cfg)
	body, err := format.encodeChat(cfg, messages)
	if err != nil {
		return "", newError(KindConfiguration, "failed to encode request", err)
	}

	log := c.logger.With("endpoint", endpoint, "model", cfg.Model, "messages", len(messages))
	log.Debug("sending chat request")
	start := time.Now()

	respBody, err := c.do(ctx, cfg, http.MethodPost, endpoint, body)
	if err != nil {
		log.Warn("chat request failed", "duration", time.Since(start), "error", err)
		return "", err
	}

	reply, err := format.decodeChat(respBody)
	if err != nil {
		log.Warn("undecodable chat response", "error", err)
		return "", newError(KindEmptyResponse, "could not decode model response", err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		log.Warn("model returned no content")
		return "", newError(KindEmptyResponse, "model returned an empty response", nil)
	}

	log.Info("chat request completed", "duration", time.Since(start), "reply_chars", len(reply))
	return reply, nil
}

// =============================================================================
// MODEL LISTING
// =============================================================================

// ListModels returns the model names the endpoint advertises. A custom
// endpoint has no listing route, so the base URL is always used.
func (c *Client) ListModels(ctx context.Context, cfg EndpointConfig) ([]string, error) {
	if err := CheckURL(cfg.BaseURL); err != nil {
		return nil, newError(KindConfiguration, "invalid api url", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	format := formatFor(cfg.Provider)
	body, err := c.do(ctx, cfg, http.MethodGet, format.modelsURL(cfg.BaseURL), nil)
	if err != nil {
		return nil, err
	}
	names, err := format.decodeModels(body)
	if err != nil {
		return nil, newError(KindEmptyResponse, "could not decode model list", err)
	}
	return names, nil
}

// Ping checks that the endpoint answers its model listing route.
func (c *Client) Ping(ctx context.Context, cfg EndpointConfig) error {
	_, err := c.ListModels(ctx, cfg)
	return err
}

// =============================================================================
// TRANSPORT
// =============================================================================

// do performs one HTTP exchange bounded by cfg.Timeout and returns the body of
// a 2xx response.
func (c *Client) do(ctx context.Context, cfg EndpointConfig, method, endpoint string, payload []byte) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(callCtx, method, endpoint, reader)
	if err != nil {
		return nil, newError(KindConfiguration, "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.AuthToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportFailure(ctx, callCtx, cfg.Timeout, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, transportFailure(ctx, callCtx, cfg.Timeout, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := errorDetail(body)
		if detail == "" {
			detail = http.StatusText(resp.StatusCode)
		}
		return nil, statusError(resp.StatusCode, detail)
	}
	return body, nil
}

// transportFailure classifies a failed exchange. Only the call's own deadline
// counts as a timeout; a cancelled parent context is a transport error.
func transportFailure(parent, call context.Context, timeout time.Duration, err error) error {
	if parent.Err() == nil && errors.Is(call.Err(), context.DeadlineExceeded) {
		return timeoutError(timeout)
	}
	if parentErr := parent.Err(); parentErr != nil {
		return newError(KindTransport, "request aborted", parentErr)
	}
	return newError(KindTransport, "could not reach model endpoint", err)
}
