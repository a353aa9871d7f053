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

package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/your-org/agrigenius/internal/llm"
	"github.com/your-org/agrigenius/internal/resilience"
)

func chatResponse(content, finishReason string) string {
	body, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-4o",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": finishReason,
		}},
		"usage": map[string]any{"prompt_tokens": 12, "completion_tokens": 8, "total_tokens": 20},
	})
	return string(body)
}

func newTestClient(t *testing.T, server *httptest.Server, opts Options) *Client {
	t.Helper()
	opts.APIKey = "sk-test"
	opts.BaseURL = server.URL + "/v1"
	client, err := NewClient(opts, zaptest.NewLogger(t))
	require.NoError(t, err)
	return client
}

func answerRequest() llm.Request {
	return llm.Request{
		Name:   "farmer-qa",
		Prompt: "When should I sow paddy?",
		Schema: jsonschema.Definition{
			Type:       jsonschema.Object,
			Properties: map[string]jsonschema.Definition{"answer": {Type: jsonschema.String}},
			Required:   []string{"answer"},
		},
	}
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(Options{}, nil)
	assert.Error(t, err)
}

func TestGenerateSendsStructuredRequest(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(raw, &body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatResponse(`{"answer":"Sow after the first monsoon showers."}`, "stop")))
	}))
	defer server.Close()

	client := newTestClient(t, server, Options{Model: "gpt-4o-mini", Temperature: 0.2})
	out, err := client.Generate(context.Background(), answerRequest())
	require.NoError(t, err)
	assert.JSONEq(t, `{"answer":"Sow after the first monsoon showers."}`, string(out))

	assert.Equal(t, "gpt-4o-mini", body["model"])
	format := body["response_format"].(map[string]any)
	assert.Equal(t, "json_schema", format["type"])
	schema := format["json_schema"].(map[string]any)
	assert.Equal(t, "farmer-qa", schema["name"])
	assert.Contains(t, schema["schema"].(map[string]any)["properties"], "answer")

	messages := body["messages"].([]any)
	require.Len(t, messages, 1)
	assert.Equal(t, "When should I sow paddy?", messages[0].(map[string]any)["content"])
}

func TestGenerateAttachesMedia(t *testing.T) {
	const photo = "data:image/jpeg;base64,/9j/4AAQSkZJRg=="
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(raw, &body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatResponse(`{"answer":"Healthy"}`, "stop")))
	}))
	defer server.Close()

	req := answerRequest()
	req.Media = []llm.Media{{URI: photo}}

	_, err := newTestClient(t, server, Options{}).Generate(context.Background(), req)
	require.NoError(t, err)

	parts := body["messages"].([]any)[0].(map[string]any)["content"].([]any)
	require.Len(t, parts, 2)
	assert.Equal(t, "text", parts[0].(map[string]any)["type"])
	image := parts[1].(map[string]any)
	assert.Equal(t, "image_url", image["type"])
	assert.Equal(t, photo, image["image_url"].(map[string]any)["url"])
}

func TestGenerateRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached","type":"requests"}}`))
			return
		}
		_, _ = w.Write([]byte(chatResponse(`{"answer":"ok"}`, "stop")))
	}))
	defer server.Close()

	out, err := newTestClient(t, server, Options{MaxRetries: 2}).Generate(context.Background(), answerRequest())
	require.NoError(t, err)
	assert.JSONEq(t, `{"answer":"ok"}`, string(out))
	assert.Equal(t, int32(2), calls.Load())
}

func TestGenerateDoesNotRetryByDefault(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	}))
	defer server.Close()

	_, err := newTestClient(t, server, Options{}).Generate(context.Background(), answerRequest())
	require.Error(t, err)
	assert.True(t, resilience.IsTransport(err))
	assert.True(t, resilience.IsRetryable(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestGenerateClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	_, err := newTestClient(t, server, Options{MaxRetries: 3}).Generate(context.Background(), answerRequest())
	require.Error(t, err)
	assert.True(t, resilience.IsTransport(err))
	assert.False(t, resilience.IsRetryable(err))
	assert.Equal(t, int32(1), calls.Load())

	var serviceErr *resilience.ServiceError
	require.True(t, resilience.AsServiceError(err, &serviceErr))
	assert.NotContains(t, serviceErr.Message, "API key")
}

func TestGenerateEmptyReplyIsGenerationFailure(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"empty content", chatResponse("", "stop")},
		{"content filter", chatResponse(`{"answer":"x"}`, "content_filter")},
		{"no choices", `{"id":"x","object":"chat.completion","choices":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.response))
			}))
			defer server.Close()

			_, err := newTestClient(t, server, Options{MaxRetries: 2}).Generate(context.Background(), answerRequest())
			require.Error(t, err)
			assert.True(t, resilience.IsGenerationFailed(err))
		})
	}
}

func TestGenerateTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	_, err := newTestClient(t, server, Options{Timeout: 50 * time.Millisecond}).Generate(context.Background(), answerRequest())
	require.Error(t, err)
	assert.True(t, resilience.IsTransport(err))

	var serviceErr *resilience.ServiceError
	require.True(t, resilience.AsServiceError(err, &serviceErr))
	assert.Equal(t, resilience.MessageTimeout, serviceErr.Message)
}

func TestSchemaName(t *testing.T) {
	assert.Equal(t, "encyclopedia-text", schemaName("encyclopedia-text"))
	assert.Equal(t, "a_b", schemaName("a.b"))
	assert.Equal(t, "output", schemaName(""))
}
