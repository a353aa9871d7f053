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

package flow

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/your-org/agrigenius/internal/resilience"
	"github.com/your-org/agrigenius/internal/schema"
)

// Runner is a type-erased flow that accepts raw form fields.
type Runner interface {
	Name() string
	Description() string
	Fields() []schema.Field
	Run(ctx context.Context, form map[string]string) (any, error)
	Render(form map[string]string) (string, error)
}

type renderer[In any] interface {
	Render(in In) (string, error)
}

type boundRunner[In, Out any] struct {
	Invoker[In, Out]
}

// Bind wraps an Invoker so it can be driven from raw form fields.
func Bind[In, Out any](inv Invoker[In, Out]) Runner {
	return boundRunner[In, Out]{Invoker: inv}
}

func (b boundRunner[In, Out]) Fields() []schema.Field {
	var zero In
	return schema.Fields(zero)
}

func (b boundRunner[In, Out]) decode(form map[string]string) (In, error) {
	var in In
	if err := schema.Decode(form, &in); err != nil {
		return in, validationFailure(err)
	}
	return in, nil
}

func (b boundRunner[In, Out]) Run(ctx context.Context, form map[string]string) (any, error) {
	in, err := b.decode(form)
	if err != nil {
		return nil, err
	}
	out, err := b.Invoke(ctx, in)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b boundRunner[In, Out]) Render(form map[string]string) (string, error) {
	r, ok := b.Invoker.(renderer[In])
	if !ok {
		return "", fmt.Errorf("flow %s cannot render prompts", b.Name())
	}
	in, err := b.decode(form)
	if err != nil {
		return "", err
	}
	return r.Render(in)
}

// Descriptor is the catalogue entry for one flow.
type Descriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Fields      []schema.Field `json:"fields"`
}

// Registry indexes flows by name. It is populated at start-up and read-only afterwards.
type Registry struct {
	runners map[string]Runner
}

// ErrDuplicateFlow is returned when two flows share a name.
var ErrDuplicateFlow = errors.New("duplicate flow name")

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{runners: make(map[string]Runner)}
}

// Register adds runners to the registry.
func (r *Registry) Register(runners ...Runner) error {
	for _, runner := range runners {
		if _, exists := r.runners[runner.Name()]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateFlow, runner.Name())
		}
		r.runners[runner.Name()] = runner
	}
	return nil
}

// Get returns the named flow or a not-found ServiceError.
func (r *Registry) Get(name string) (Runner, error) {
	runner, ok := r.runners[name]
	if !ok {
		return nil, resilience.NewNotFoundError(fmt.Sprintf("Unknown flow %q.", name), nil)
	}
	return runner, nil
}

// Names returns the registered flow names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.runners))
	for name := range r.runners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Catalogue describes every registered flow, sorted by name.
func (r *Registry) Catalogue() []Descriptor {
	names := r.Names()
	out := make([]Descriptor, 0, len(names))
	for _, name := range names {
		runner := r.runners[name]
		out = append(out, Descriptor{
			Name:        runner.Name(),
			Description: runner.Description(),
			Fields:      runner.Fields(),
		})
	}
	return out
}
