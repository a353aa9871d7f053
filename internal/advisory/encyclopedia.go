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

package advisory

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/your-org/agrigenius/internal/flow"
	"github.com/your-org/agrigenius/internal/llm"
	"github.com/your-org/agrigenius/internal/prompt"
	"github.com/your-org/agrigenius/internal/resilience"
)

// ImageSource supplies the illustration of an encyclopedia entry.
type ImageSource interface {
	Image(ctx context.Context, in EncyclopediaInput) (string, error)
}

// PlaceholderImage returns the same image URL for every entry.
type PlaceholderImage string

// Image implements ImageSource.
func (p PlaceholderImage) Image(context.Context, EncyclopediaInput) (string, error) {
	return string(p), nil
}

// GeneratedImages asks an image model to illustrate each entry.
type GeneratedImages struct {
	generator llm.ImageGenerator
	prompt    *prompt.Template
}

// NewGeneratedImages builds an ImageSource backed by an image model.
func NewGeneratedImages(generator llm.ImageGenerator) *GeneratedImages {
	return &GeneratedImages{
		generator: generator,
		prompt:    prompt.MustCompile("encyclopedia_image", mustPrompt("encyclopedia_image"), EncyclopediaInput{}),
	}
}

// Image implements ImageSource.
func (g *GeneratedImages) Image(ctx context.Context, in EncyclopediaInput) (string, error) {
	rendered, err := g.prompt.Render(in)
	if err != nil {
		return "", resilience.NewInternalError("The advisory request could not be prepared.", err)
	}
	url, err := g.generator.GenerateImage(ctx, rendered)
	if err != nil {
		return "", flow.Classify(err)
	}
	return url, nil
}

// Encyclopedia looks up a pest or disease. The text entry and its image are
// fetched in parallel; the entry fails if either part fails.
type Encyclopedia struct {
	text     *flow.Flow[EncyclopediaInput, EncyclopediaText]
	images   ImageSource
	observer *flow.Observer
}

// NewEncyclopedia builds the encyclopedia flow.
func NewEncyclopedia(gen llm.Generator, images ImageSource, opts ...flow.Option) *Encyclopedia {
	return &Encyclopedia{
		text: flow.New[EncyclopediaInput, EncyclopediaText](flow.Definition[EncyclopediaInput]{
			Name:        FlowEncyclopediaText,
			Description: "Writes the text of an encyclopedia entry.",
			Prompt:      mustPrompt("encyclopedia"),
		}, gen, opts...),
		images:   images,
		observer: flow.NewObserver(opts...),
	}
}

// Name implements flow.Invoker.
func (e *Encyclopedia) Name() string { return FlowEncyclopedia }

// Description implements flow.Invoker.
func (e *Encyclopedia) Description() string {
	return "Describes a pest or disease with symptoms, treatment and an illustration."
}

// Render returns the prompt of the text sub-call.
func (e *Encyclopedia) Render(in EncyclopediaInput) (string, error) {
	return e.text.Render(in)
}

// Invoke implements flow.Invoker.
func (e *Encyclopedia) Invoke(ctx context.Context, in EncyclopediaInput) (out *EncyclopediaOutput, err error) {
	ctx, done := e.observer.Start(ctx, FlowEncyclopedia)
	defer func() { done(err) }()

	if err := flow.Validate(in); err != nil {
		return nil, err
	}

	var (
		text     *EncyclopediaText
		imageURL string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		text, err = e.text.Invoke(gctx, in)
		return err
	})
	g.Go(func() error {
		url, err := e.images.Image(gctx, in)
		if err != nil {
			return flow.Classify(err)
		}
		if strings.TrimSpace(url) == "" {
			return resilience.NewGenerationFailedError(errors.New("image source returned no image"))
		}
		imageURL = url
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &EncyclopediaOutput{EncyclopediaText: *text, ImageURL: imageURL}, nil
}
