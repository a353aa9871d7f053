// Copyright 2024 AgriGenius Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package openai implements llm.Generator on the OpenAI chat completions API
// using structured JSON-schema output.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/your-org/agrigenius/internal/llm"
	"github.com/your-org/agrigenius/internal/resilience"
)

// DefaultModel is used when Options.Model is empty.
const DefaultModel = openai.GPT4o

// Options configures a Client.
type Options struct {
	APIKey string
	// BaseURL overrides the API endpoint, e.g. an Azure or proxy deployment.
	BaseURL     string
	Model       string
	Temperature float64
	// Timeout bounds each model call. Zero leaves only the caller's deadline.
	Timeout    time.Duration
	MaxRetries int
	HTTPClient *http.Client
}

// Client wraps the go-openai client as a structured generator.
type Client struct {
	client      *openai.Client
	logger      *zap.Logger
	model       string
	temperature float32
	timeout     time.Duration
	backoff     resilience.BackoffConfig
}

// NewClient creates a Client. It does not contact the API.
func NewClient(opts Options, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("API key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}

	model := opts.Model
	if model == "" {
		model = DefaultModel
	}

	logger.Info("OpenAI client initialized",
		zap.String("model", model),
		zap.Int("max_retries", opts.MaxRetries),
		zap.Duration("timeout", opts.Timeout))

	return &Client{
		client:      openai.NewClientWithConfig(cfg),
		logger:      logger,
		model:       model,
		temperature: float32(opts.Temperature),
		timeout:     opts.Timeout,
		backoff:     resilience.TransportBackoff(opts.MaxRetries),
	}, nil
}

// Model returns the chat model in use.
func (c *Client) Model() string { return c.model }

// Generate sends the prompt and any attached media as one user message and
// returns the raw JSON content of the reply.
func (c *Client) Generate(ctx context.Context, req llm.Request) (json.RawMessage, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    []openai.ChatCompletionMessage{userMessage(req)},
		Temperature: c.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   schemaName(req.Name),
				Schema: &req.Schema,
			},
		},
	}

	c.logger.Debug("Creating chat completion",
		zap.String("flow", req.Name),
		zap.String("model", c.model),
		zap.Int("media_count", len(req.Media)))

	var content string
	err := resilience.WithExponentialBackoff(ctx, c.logger, c.backoff, func(ctx context.Context) error {
		callCtx, cancel := c.withTimeout(ctx)
		defer cancel()

		resp, err := c.client.CreateChatCompletion(callCtx, chatReq)
		if err != nil {
			return c.handleAPIError(err)
		}

		if len(resp.Choices) == 0 {
			return resilience.NewGenerationFailedError(errors.New("no choices returned from OpenAI"))
		}
		choice := resp.Choices[0]
		if choice.FinishReason == openai.FinishReasonContentFilter {
			return resilience.NewGenerationFailedError(errors.New("reply blocked by content filter"))
		}
		if strings.TrimSpace(choice.Message.Content) == "" {
			return resilience.NewGenerationFailedError(fmt.Errorf("empty reply (finish reason %q)", choice.FinishReason))
		}

		c.logger.Debug("Chat completion successful",
			zap.String("flow", req.Name),
			zap.String("finish_reason", string(choice.FinishReason)),
			zap.Int("prompt_tokens", resp.Usage.PromptTokens),
			zap.Int("completion_tokens", resp.Usage.CompletionTokens))

		content = choice.Message.Content
		return nil
	})
	if err != nil {
		return nil, err
	}
	return json.RawMessage(content), nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func userMessage(req llm.Request) openai.ChatCompletionMessage {
	if len(req.Media) == 0 {
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt}
	}

	parts := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: req.Prompt}}
	for _, m := range req.Media {
		parts = append(parts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: m.URI, Detail: openai.ImageURLDetailAuto},
		})
	}
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, MultiContent: parts}
}

// schemaName maps a flow name onto the characters the API accepts.
func schemaName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "output"
	}
	return b.String()
}

// handleAPIError classifies a failed call. Rate limits and server errors are
// marked retryable; everything else fails immediately.
func (c *Client) handleAPIError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return resilience.NewTransportError(resilience.MessageTimeout, err)
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	c.logger.Warn("OpenAI request failed", zap.Int("status_code", status), zap.Error(err))

	if status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
		return resilience.NewTransportError("", &resilience.RetryableError{
			Err: fmt.Errorf("OpenAI API error (status %d): %w", status, err),
		})
	}
	if status != 0 {
		return resilience.NewTransportError("", fmt.Errorf("OpenAI API error (status %d): %w", status, err))
	}
	return resilience.NewTransportError("", fmt.Errorf("OpenAI client error: %w", err))
}
