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

// Package flow turns a prompt template and a pair of record types into a
// validated, traced model invocation.
package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai/jsonschema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/your-org/agrigenius/internal/llm"
	"github.com/your-org/agrigenius/internal/prompt"
	"github.com/your-org/agrigenius/internal/resilience"
	"github.com/your-org/agrigenius/internal/schema"
)

const tracerName = "github.com/your-org/agrigenius/internal/flow"

// Invoker is anything that turns a typed input into a typed output through the model.
type Invoker[In, Out any] interface {
	Name() string
	Description() string
	Invoke(ctx context.Context, in In) (*Out, error)
}

// Definition declares a flow.
type Definition[In any] struct {
	Name        string
	Description string
	// Prompt is a text/template source rendered against the input record.
	Prompt string
	// Media lists attachments taken from the input, such as an uploaded photo.
	Media func(In) []llm.Media
}

// Flow is a single-shot structured generation: validate, render, call, verify.
// A Flow holds no per-call state and is safe for concurrent use.
type Flow[In, Out any] struct {
	name        string
	description string
	template    *prompt.Template
	schema      jsonschema.Definition
	media       func(In) []llm.Media
	generator   llm.Generator
	observer    *Observer
}

// New builds a flow. It panics if the prompt does not compile against In or no
// JSON schema can be derived from Out; both are programming errors.
func New[In, Out any](def Definition[In], generator llm.Generator, opts ...Option) *Flow[In, Out] {
	var zeroIn In
	var zeroOut Out

	outSchema, err := schema.Definition(zeroOut)
	if err != nil {
		panic(fmt.Sprintf("flow %s: %v", def.Name, err))
	}

	return &Flow[In, Out]{
		name:        def.Name,
		description: def.Description,
		template:    prompt.MustCompile(def.Name, def.Prompt, zeroIn),
		schema:      outSchema,
		media:       def.Media,
		generator:   generator,
		observer:    NewObserver(opts...),
	}
}

// Name returns the flow name.
func (f *Flow[In, Out]) Name() string { return f.name }

// Description returns a one-line summary of the flow.
func (f *Flow[In, Out]) Description() string { return f.description }

// Render returns the prompt the flow would send for in, without calling the model.
func (f *Flow[In, Out]) Render(in In) (string, error) {
	return f.template.Render(in)
}

// Invoke validates in, renders the prompt, calls the model once and verifies the
// payload against Out. Invalid input never reaches the model.
func (f *Flow[In, Out]) Invoke(ctx context.Context, in In) (out *Out, err error) {
	ctx, done := f.observer.Start(ctx, f.name)
	defer func() { done(err) }()

	if err := Validate(in); err != nil {
		return nil, err
	}

	rendered, err := f.template.Render(in)
	if err != nil {
		return nil, resilience.NewInternalError("The advisory request could not be prepared.", err)
	}

	req := llm.Request{Name: f.name, Prompt: rendered, Schema: f.schema}
	if f.media != nil {
		req.Media = f.media(in)
	}

	raw, err := f.generator.Generate(ctx, req)
	if err != nil {
		return nil, Classify(err)
	}

	out = new(Out)
	if err := schema.Verify(raw, f.schema, out); err != nil {
		return nil, resilience.NewGenerationFailedError(err)
	}
	return out, nil
}

// Validate checks a typed input record and returns a validation ServiceError
// carrying the field messages when it fails.
func Validate(in any) error {
	if err := schema.Check(in); err != nil {
		return validationFailure(err)
	}
	return nil
}

func validationFailure(err error) error {
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		return resilience.NewValidationError(verr.Message, verr.FieldMap(), verr)
	}
	return resilience.NewInternalError("The advisory request could not be validated.", err)
}

// Classify keeps classified backend errors and treats everything else as a
// transport failure.
func Classify(err error) error {
	var serviceErr *resilience.ServiceError
	if resilience.AsServiceError(err, &serviceErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return resilience.NewTransportError(resilience.MessageTimeout, err)
	}
	return resilience.NewTransportError("", err)
}

// Outcome classifies a finished invocation.
type Outcome string

const (
	OutcomeSuccess          Outcome = "success"
	OutcomeValidationError  Outcome = "validation_error"
	OutcomeTransportError   Outcome = "transport_error"
	OutcomeGenerationFailed Outcome = "generation_failed"
	OutcomeInternalError    Outcome = "internal_error"
)

// OutcomeOf maps an invocation error to its Outcome.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case resilience.IsValidation(err):
		return OutcomeValidationError
	case resilience.IsTransport(err):
		return OutcomeTransportError
	case resilience.IsGenerationFailed(err):
		return OutcomeGenerationFailed
	default:
		return OutcomeInternalError
	}
}

// Event describes one finished invocation. It never carries record content.
type Event struct {
	Flow     string
	Outcome  Outcome
	Started  time.Time
	Duration time.Duration
}

// Hook observes finished invocations. Hooks run synchronously on the calling goroutine.
type Hook func(ctx context.Context, ev Event)

// Option configures a Flow.
type Option func(*options)

type options struct {
	hooks  []Hook
	tracer trace.Tracer
	logger *zap.Logger
}

func newOptions(opts []Option) options {
	o := options{
		tracer: otel.Tracer(tracerName),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithHooks registers hooks called after every invocation.
func WithHooks(hooks ...Hook) Option {
	return func(o *options) { o.hooks = append(o.hooks, hooks...) }
}

// WithTracer overrides the global OpenTelemetry tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) { o.tracer = tracer }
}

// WithLogger sets the logger used for invocation summaries.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Observer traces, logs and reports invocations. Flow uses one internally;
// composite invokers use it to report themselves the same way.
type Observer struct {
	opts options
}

// NewObserver builds an Observer from flow options.
func NewObserver(opts ...Option) *Observer {
	return &Observer{opts: newOptions(opts)}
}

// Start opens a span for an invocation of name. The returned function must be
// called exactly once with the invocation's error.
func (o *Observer) Start(ctx context.Context, name string) (context.Context, func(error)) {
	ctx, span := o.opts.tracer.Start(ctx, "flow."+name,
		trace.WithAttributes(attribute.String("agrigenius.flow", name)))
	start := time.Now()
	return ctx, func(err error) {
		o.opts.finish(ctx, span, name, start, err)
	}
}

func (o options) finish(ctx context.Context, span trace.Span, name string, start time.Time, err error) {
	ev := Event{Flow: name, Outcome: OutcomeOf(err), Started: start, Duration: time.Since(start)}

	span.SetAttributes(attribute.String("agrigenius.outcome", string(ev.Outcome)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(ev.Outcome))
	}
	span.End()

	fields := []zap.Field{
		zap.String("flow", name),
		zap.String("outcome", string(ev.Outcome)),
		zap.Duration("duration", ev.Duration),
	}
	switch ev.Outcome {
	case OutcomeSuccess, OutcomeValidationError:
		o.logger.Info("Flow invoked", fields...)
	default:
		o.logger.Warn("Flow failed", append(fields, zap.Error(errors.Unwrap(err)))...)
	}

	for _, hook := range o.hooks {
		hook(ctx, ev)
	}
}
