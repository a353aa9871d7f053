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

// Package actions adapts advisory flows to form submissions. Every action
// returns a UI state; no error escapes to the caller.
package actions

import (
	"context"
	"errors"
	"maps"

	"go.uber.org/zap"

	"github.com/your-org/agrigenius/internal/flow"
	"github.com/your-org/agrigenius/internal/resilience"
	"github.com/your-org/agrigenius/internal/schema"
)

// Status is the outcome of the last submission.
type Status string

const (
	StatusIdle            Status = "idle"
	StatusSuccess         Status = "success"
	StatusValidationError Status = "validation_error"
	StatusGenerationError Status = "generation_error"
)

// DefaultFallbackMessage is shown when a failure carries no user-safe message.
const DefaultFallbackMessage = "An unexpected error occurred."

// State is what the UI renders after a submission.
type State[Out any] struct {
	Status      Status            `json:"status"`
	Form        map[string]string `json:"form"`
	Result      *Out              `json:"result,omitempty"`
	Error       string            `json:"error,omitempty"`
	FieldErrors map[string]string `json:"fieldErrors,omitempty"`
}

// Idle returns the initial state of a form.
func Idle[Out any]() State[Out] {
	return State[Out]{Status: StatusIdle, Form: map[string]string{}}
}

// Action validates a raw form, invokes a flow and shapes the result.
type Action[In, Out any] struct {
	invoker   flow.Invoker[In, Out]
	fallback  string
	transient []string
	ignored   []string
	errors    *resilience.ErrorHandler
	logger    *zap.Logger
}

// Option configures an Action.
type Option func(*settings)

type settings struct {
	fallback  string
	transient []string
	ignored   []string
	logger    *zap.Logger
}

// WithFallbackMessage sets the message used when a failure carries none.
func WithFallbackMessage(msg string) Option {
	return func(s *settings) { s.fallback = msg }
}

// WithTransientFields lists one-shot fields cleared after a successful submission.
func WithTransientFields(names ...string) Option {
	return func(s *settings) { s.transient = append(s.transient, names...) }
}

// WithIgnoredFields lists UI-only fields removed before validation.
func WithIgnoredFields(names ...string) Option {
	return func(s *settings) { s.ignored = append(s.ignored, names...) }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// New wraps inv in a form action.
func New[In, Out any](inv flow.Invoker[In, Out], opts ...Option) *Action[In, Out] {
	s := settings{fallback: DefaultFallbackMessage}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	return &Action[In, Out]{
		invoker:   inv,
		fallback:  s.fallback,
		transient: s.transient,
		ignored:   s.ignored,
		errors:    resilience.NewErrorHandler(s.logger),
		logger:    s.logger,
	}
}

// Name returns the name of the wrapped flow.
func (a *Action[In, Out]) Name() string { return a.invoker.Name() }

// Submit runs one submission. The previous state is accepted for symmetry with
// progressive forms; every submission carries its full context in form.
func (a *Action[In, Out]) Submit(ctx context.Context, _ State[Out], form map[string]string) State[Out] {
	echo := maps.Clone(form)
	if echo == nil {
		echo = map[string]string{}
	}

	clean := maps.Clone(echo)
	for _, name := range a.ignored {
		delete(clean, name)
	}

	var in In
	if err := schema.Decode(clean, &in); err != nil {
		var verr *schema.ValidationError
		if !errors.As(err, &verr) {
			a.errors.LogError(err, "decoding form", zap.String("flow", a.Name()))
			return State[Out]{Status: StatusGenerationError, Form: echo, Error: a.fallback}
		}
		a.logger.Debug("Form rejected",
			zap.String("flow", a.Name()),
			zap.String("reason", verr.Message))
		return State[Out]{
			Status:      StatusValidationError,
			Form:        echo,
			Error:       verr.Message,
			FieldErrors: verr.FieldMap(),
		}
	}

	out, err := a.invoker.Invoke(ctx, in)
	if err != nil {
		state := State[Out]{
			Status: StatusGenerationError,
			Form:   echo,
			Error:  a.errors.UserMessage(err, a.fallback),
		}
		var serviceErr *resilience.ServiceError
		if resilience.AsServiceError(err, &serviceErr) && serviceErr.Code == resilience.ErrorCodeValidationFailed {
			state.Status = StatusValidationError
			state.FieldErrors = serviceErr.Fields
		}
		return state
	}

	for _, name := range a.transient {
		if _, ok := echo[name]; ok {
			echo[name] = ""
		}
	}
	return State[Out]{Status: StatusSuccess, Form: echo, Result: out}
}
