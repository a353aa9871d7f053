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
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrorResponse is the JSON body written for failed API calls.
type ErrorResponse struct {
	Error     string            `json:"error"`
	Code      string            `json:"code,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// ErrorCode classifies a ServiceError.
type ErrorCode string

const (
	// Caller errors
	ErrorCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrorCodeNotFound         ErrorCode = "NOT_FOUND"

	// Model and server errors
	ErrorCodeTransport        ErrorCode = "TRANSPORT_ERROR"
	ErrorCodeGenerationFailed ErrorCode = "GENERATION_FAILED"
	ErrorCodeInternalError    ErrorCode = "INTERNAL_ERROR"
)

// Default user-facing messages. None of them carries model output or internal detail.
const (
	MessageTransport        = "The advisory service could not be reached. Please try again later."
	MessageGenerationFailed = "The advisory service returned an incomplete answer. Please try again."
	MessageTimeout          = "The request took longer than expected. Please try again."
)

// ServiceError is an error with a user-safe message and a classification.
// Message is always safe to show to a farmer; Internal never is.
type ServiceError struct {
	Message    string
	Code       ErrorCode
	StatusCode int
	Internal   error
	Fields     map[string]string
}

func (e *ServiceError) Error() string {
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Internal
}

// ToErrorResponse converts a ServiceError to its wire form.
func (e *ServiceError) ToErrorResponse(requestID string) ErrorResponse {
	return ErrorResponse{
		Error:     e.Message,
		Code:      string(e.Code),
		Fields:    e.Fields,
		RequestID: requestID,
		Timestamp: time.Now(),
	}
}

// NewServiceError creates a new ServiceError with the given parameters
func NewServiceError(message string, code ErrorCode, statusCode int, internal error) *ServiceError {
	return &ServiceError{
		Message:    message,
		Code:       code,
		StatusCode: statusCode,
		Internal:   internal,
	}
}

// NewValidationError reports input that violates its schema. fields maps form field
// names to their messages and may be nil.
func NewValidationError(message string, fields map[string]string, internal error) *ServiceError {
	err := NewServiceError(message, ErrorCodeValidationFailed, http.StatusBadRequest, internal)
	err.Fields = fields
	return err
}

// NewTransportError reports that the model could not be reached or refused the call.
func NewTransportError(message string, internal error) *ServiceError {
	if message == "" {
		message = MessageTransport
	}
	return NewServiceError(message, ErrorCodeTransport, http.StatusBadGateway, internal)
}

// NewGenerationFailedError reports a model payload that was empty, filtered or
// did not conform to the output schema.
func NewGenerationFailedError(internal error) *ServiceError {
	return NewServiceError(MessageGenerationFailed, ErrorCodeGenerationFailed, http.StatusBadGateway, internal)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, internal error) *ServiceError {
	return NewServiceError(message, ErrorCodeNotFound, http.StatusNotFound, internal)
}

// NewInternalError creates a new internal server error
func NewInternalError(message string, internal error) *ServiceError {
	return NewServiceError(message, ErrorCodeInternalError, http.StatusInternalServerError, internal)
}

// AsServiceError finds the first ServiceError in err's chain.
func AsServiceError(err error, target **ServiceError) bool {
	if err == nil {
		return false
	}
	return errors.As(err, target)
}

func hasCode(err error, code ErrorCode) bool {
	var serviceErr *ServiceError
	return AsServiceError(err, &serviceErr) && serviceErr.Code == code
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool { return hasCode(err, ErrorCodeValidationFailed) }

// IsTransport reports whether err is a model transport failure.
func IsTransport(err error) bool { return hasCode(err, ErrorCodeTransport) }

// IsGenerationFailed reports whether err is a malformed or missing model payload.
func IsGenerationFailed(err error) bool { return hasCode(err, ErrorCodeGenerationFailed) }

// ErrorHandler maps errors to user-safe messages and API responses.
type ErrorHandler struct {
	logger *zap.Logger
}

// NewErrorHandler creates a new error handler with the given logger
func NewErrorHandler(logger *zap.Logger) *ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ErrorHandler{logger: logger}
}

// WrapError returns err as a ServiceError, classifying plain errors as internal
// failures of operation.
func (eh *ErrorHandler) WrapError(err error, operation string) *ServiceError {
	if err == nil {
		return nil
	}

	var serviceErr *ServiceError
	if AsServiceError(err, &serviceErr) {
		return serviceErr
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewTransportError(MessageTimeout, err)
	}

	if eh != nil {
		eh.logger.Error("Unclassified error",
			zap.String("operation", operation),
			zap.Error(err))
	}
	return NewInternalError("An unexpected error occurred while "+operation+".", err)
}

// UserMessage returns the message to show a farmer for err. ServiceError messages are
// used as-is, timeouts get the timeout message and anything else gets fallback.
func (eh *ErrorHandler) UserMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}

	var serviceErr *ServiceError
	if AsServiceError(err, &serviceErr) && strings.TrimSpace(serviceErr.Message) != "" {
		return serviceErr.Message
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return MessageTimeout
	}
	return fallback
}

// WriteErrorResponse writes err as a JSON ErrorResponse.
func (eh *ErrorHandler) WriteErrorResponse(w http.ResponseWriter, err error, requestID string) {
	serviceErr := eh.WrapError(err, "processing the request")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(serviceErr.StatusCode)

	if err := json.NewEncoder(w).Encode(serviceErr.ToErrorResponse(requestID)); err != nil && eh != nil {
		eh.logger.Error("Failed to encode error response", zap.Error(err))
	}
}

// LogError logs an error with appropriate context
func (eh *ErrorHandler) LogError(err error, operation string, fields ...zap.Field) {
	if err == nil || eh == nil || eh.logger == nil {
		return
	}

	logFields := []zap.Field{
		zap.String("operation", operation),
		zap.Error(err),
	}
	logFields = append(logFields, fields...)

	var serviceErr *ServiceError
	if AsServiceError(err, &serviceErr) {
		logFields = append(logFields,
			zap.String("error_code", string(serviceErr.Code)),
			zap.Int("status_code", serviceErr.StatusCode))
		if serviceErr.Internal != nil {
			logFields = append(logFields, zap.NamedError("cause", serviceErr.Internal))
		}
	}

	eh.logger.Error("Operation failed", logFields...)
}
