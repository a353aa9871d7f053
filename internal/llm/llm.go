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

// Package llm defines the model-facing contract shared by the OpenAI and
// Gemini backends.
package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai/jsonschema"
)

// Media is a binary attachment passed to the model alongside the prompt.
// URI holds the data URI exactly as the user supplied it.
type Media struct {
	URI string
}

// Request is one structured-generation call.
type Request struct {
	// Name identifies the flow, used for logs and as the response schema name.
	Name   string
	Prompt string
	Schema jsonschema.Definition
	Media  []Media
}

// Generator produces a JSON payload for a request. Implementations return
// resilience.ServiceError values classified as transport or generation failures.
type Generator interface {
	Generate(ctx context.Context, req Request) (json.RawMessage, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (json.RawMessage, error)

// Generate calls f(ctx, req).
func (f GeneratorFunc) Generate(ctx context.Context, req Request) (json.RawMessage, error) {
	return f(ctx, req)
}

// ImageGenerator renders an illustration and returns it as a URL or data URI.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

// ErrInvalidDataURI is returned for attachments that are not base64 data URIs.
var ErrInvalidDataURI = errors.New("invalid data URI")

// DecodeDataURI splits a "data:<mime>;base64,<payload>" URI into its MIME type
// and decoded bytes.
func DecodeDataURI(uri string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing data: prefix", ErrInvalidDataURI)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing payload", ErrInvalidDataURI)
	}
	mimeType, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", nil, fmt.Errorf("%w: only base64 payloads are supported", ErrInvalidDataURI)
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}
	return mimeType, data, nil
}

// EncodeDataURI is the inverse of DecodeDataURI.
func EncodeDataURI(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
