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

package resilience

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestServiceError(t *testing.T) {
	internal := errors.New("socket closed")
	serviceErr := NewTransportError("", internal)

	assert.Equal(t, MessageTransport, serviceErr.Error())
	assert.Equal(t, internal, serviceErr.Unwrap())
	assert.Equal(t, ErrorCodeTransport, serviceErr.Code)
	assert.Equal(t, http.StatusBadGateway, serviceErr.StatusCode)
}

func TestConstructors(t *testing.T) {
	internal := errors.New("internal")

	tests := []struct {
		name         string
		err          *ServiceError
		expectCode   ErrorCode
		expectStatus int
	}{
		{"validation", NewValidationError("Query is required.", nil, internal), ErrorCodeValidationFailed, http.StatusBadRequest},
		{"transport", NewTransportError("down", internal), ErrorCodeTransport, http.StatusBadGateway},
		{"generation failed", NewGenerationFailedError(internal), ErrorCodeGenerationFailed, http.StatusBadGateway},
		{"not found", NewNotFoundError("no such flow", internal), ErrorCodeNotFound, http.StatusNotFound},
		{"internal", NewInternalError("boom", internal), ErrorCodeInternalError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expectCode, tt.err.Code)
			assert.Equal(t, tt.expectStatus, tt.err.StatusCode)
			assert.ErrorIs(t, tt.err, internal)
		})
	}
}

func TestPredicatesSeeThroughWrapping(t *testing.T) {
	transport := fmt.Errorf("flow farmer-qa: %w", NewTransportError("", nil))
	generation := fmt.Errorf("flow farmer-qa: %w", NewGenerationFailedError(nil))
	validation := NewValidationError("Query is required.", map[string]string{"query": "Query is required."}, nil)

	assert.True(t, IsTransport(transport))
	assert.False(t, IsGenerationFailed(transport))
	assert.True(t, IsGenerationFailed(generation))
	assert.False(t, IsTransport(generation))
	assert.True(t, IsValidation(validation))
	assert.False(t, IsValidation(errors.New("plain")))
	assert.False(t, IsTransport(nil))
}

func TestUserMessage(t *testing.T) {
	handler := NewErrorHandler(zaptest.NewLogger(t))
	fallback := "An unexpected error occurred while generating the plan."

	assert.Equal(t, MessageGenerationFailed, handler.UserMessage(NewGenerationFailedError(errors.New("raw model text")), fallback))
	assert.Equal(t, MessageTimeout, handler.UserMessage(fmt.Errorf("call: %w", context.DeadlineExceeded), fallback))
	assert.Equal(t, fallback, handler.UserMessage(errors.New("json: cannot unmarshal secret payload"), fallback))
	assert.Equal(t, fallback, handler.UserMessage(&ServiceError{Message: "  "}, fallback))
	assert.Empty(t, handler.UserMessage(nil, fallback))
}

func TestWrapError(t *testing.T) {
	handler := NewErrorHandler(zaptest.NewLogger(t))

	assert.Nil(t, handler.WrapError(nil, "running flow"))

	original := NewNotFoundError("Unknown flow.", nil)
	assert.Same(t, original, handler.WrapError(fmt.Errorf("lookup: %w", original), "running flow"))

	timeout := handler.WrapError(context.DeadlineExceeded, "running flow")
	assert.Equal(t, ErrorCodeTransport, timeout.Code)
	assert.Equal(t, MessageTimeout, timeout.Message)

	plain := handler.WrapError(errors.New("nil map"), "running flow")
	assert.Equal(t, ErrorCodeInternalError, plain.Code)
	assert.Equal(t, "An unexpected error occurred while running flow.", plain.Message)
}

func TestWriteErrorResponse(t *testing.T) {
	handler := NewErrorHandler(zaptest.NewLogger(t))
	recorder := httptest.NewRecorder()

	err := NewValidationError("Soil pH must be between 0 and 14.", map[string]string{"soilPH": "Soil pH must be between 0 and 14."}, nil)
	handler.WriteErrorResponse(recorder, err, "req-1")

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, "application/json", recorder.Header().Get("Content-Type"))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, "Soil pH must be between 0 and 14.", body.Error)
	assert.Equal(t, string(ErrorCodeValidationFailed), body.Code)
	assert.Equal(t, "req-1", body.RequestID)
	assert.Equal(t, "Soil pH must be between 0 and 14.", body.Fields["soilPH"])
}

func TestWriteErrorResponseHidesInternalDetail(t *testing.T) {
	handler := NewErrorHandler(zaptest.NewLogger(t))
	recorder := httptest.NewRecorder()

	handler.WriteErrorResponse(recorder, NewGenerationFailedError(errors.New(`{"answer": 42`)), "")

	assert.Equal(t, http.StatusBadGateway, recorder.Code)
	assert.NotContains(t, recorder.Body.String(), "answer")
}
