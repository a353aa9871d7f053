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

// Package gemini implements llm.Generator and llm.ImageGenerator on the Gemini API.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/your-org/agrigenius/internal/llm"
	"github.com/your-org/agrigenius/internal/resilience"
)

const (
	DefaultModel      = "gemini-2.0-flash"
	DefaultImageModel = "imagen-3.0-generate-002"
)

// Options configures a Client.
type Options struct {
	APIKey string
	// BaseURL overrides the Gemini API endpoint.
	BaseURL     string
	Model       string
	ImageModel  string
	Temperature float64
	Timeout     time.Duration
	MaxRetries  int
	HTTPClient  *http.Client
}

// Client generates structured content and images through genai.
type Client struct {
	client      *genai.Client
	logger      *zap.Logger
	model       string
	imageModel  string
	temperature float32
	timeout     time.Duration
	backoff     resilience.BackoffConfig
}

// NewClient creates a Client for the Gemini API backend.
func NewClient(ctx context.Context, opts Options, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("API key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      opts.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  opts.HTTPClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: opts.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	c := &Client{
		client:      genaiClient,
		logger:      logger,
		model:       opts.Model,
		imageModel:  opts.ImageModel,
		temperature: float32(opts.Temperature),
		timeout:     opts.Timeout,
		backoff:     resilience.TransportBackoff(opts.MaxRetries),
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.imageModel == "" {
		c.imageModel = DefaultImageModel
	}

	logger.Info("Gemini client initialized",
		zap.String("model", c.model),
		zap.String("image_model", c.imageModel),
		zap.Int("max_retries", opts.MaxRetries))

	return c, nil
}

// Model returns the content model in use.
func (c *Client) Model() string { return c.model }

// Generate sends the prompt with inline media and asks for JSON matching req.Schema.
func (c *Client) Generate(ctx context.Context, req llm.Request) (json.RawMessage, error) {
	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	for _, m := range req.Media {
		mimeType, data, err := llm.DecodeDataURI(m.URI)
		if err != nil {
			return nil, resilience.NewValidationError("Image must be a data URI.", nil, err)
		}
		parts = append(parts, genai.NewPartFromBytes(data, mimeType))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	schema := req.Schema
	config := &genai.GenerateContentConfig{
		Temperature:        genai.Ptr(c.temperature),
		ResponseMIMEType:   "application/json",
		ResponseJsonSchema: &schema,
	}

	c.logger.Debug("Generating content",
		zap.String("flow", req.Name),
		zap.String("model", c.model),
		zap.Int("media_count", len(req.Media)))

	var text string
	err := resilience.WithExponentialBackoff(ctx, c.logger, c.backoff, func(ctx context.Context) error {
		callCtx, cancel := c.withTimeout(ctx)
		defer cancel()

		result, err := c.client.Models.GenerateContent(callCtx, c.model, contents, config)
		if err != nil {
			return c.handleAPIError(err)
		}

		text, err = extractTextFromResponse(result)
		if err != nil {
			return resilience.NewGenerationFailedError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return json.RawMessage(text), nil
}

// GenerateImage renders prompt with the image model and returns a data URI.
func (c *Client) GenerateImage(ctx context.Context, prompt string) (string, error) {
	c.logger.Debug("Generating image", zap.String("model", c.imageModel))

	var uri string
	err := resilience.WithExponentialBackoff(ctx, c.logger, c.backoff, func(ctx context.Context) error {
		callCtx, cancel := c.withTimeout(ctx)
		defer cancel()

		result, err := c.client.Models.GenerateImages(callCtx, c.imageModel, prompt, &genai.GenerateImagesConfig{NumberOfImages: 1})
		if err != nil {
			return c.handleAPIError(err)
		}
		if result == nil || len(result.GeneratedImages) == 0 || result.GeneratedImages[0].Image == nil ||
			len(result.GeneratedImages[0].Image.ImageBytes) == 0 {
			return resilience.NewGenerationFailedError(errors.New("no image generated"))
		}

		image := result.GeneratedImages[0].Image
		mimeType := image.MIMEType
		if mimeType == "" {
			mimeType = "image/png"
		}
		uri = llm.EncodeDataURI(mimeType, image.ImageBytes)
		return nil
	})
	return uri, err
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func extractTextFromResponse(result *genai.GenerateContentResponse) (string, error) {
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil || len(result.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("no content generated")
	}

	var sb strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", fmt.Errorf("empty reply (finish reason %q)", result.Candidates[0].FinishReason)
	}
	return sb.String(), nil
}

func (c *Client) handleAPIError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return resilience.NewTransportError(resilience.MessageTimeout, err)
	}

	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return resilience.NewTransportError("", fmt.Errorf("Gemini client error: %w", err))
	}

	c.logger.Warn("Gemini request failed", zap.Int("status_code", apiErr.Code), zap.String("status", apiErr.Status))

	wrapped := fmt.Errorf("Gemini API error (status %d): %w", apiErr.Code, err)
	if apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError {
		return resilience.NewTransportError("", &resilience.RetryableError{Err: wrapped})
	}
	return resilience.NewTransportError("", wrapped)
}
