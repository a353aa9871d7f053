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
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/your-org/agrigenius/internal/flow"
	"github.com/your-org/agrigenius/internal/llm"
	"github.com/your-org/agrigenius/internal/llm/llmtest"
	"github.com/your-org/agrigenius/internal/resilience"
)

const armywormEntry = `{"name":"Fall armyworm","description":"A moth larva.","symptoms":"- Ragged leaves","treatment":"- Spinetoram spray"}`

type imageFunc func(ctx context.Context, in EncyclopediaInput) (string, error)

func (f imageFunc) Image(ctx context.Context, in EncyclopediaInput) (string, error) { return f(ctx, in) }

// blockingGenerator runs wait before answering through next.
type blockingGenerator struct {
	wait func(ctx context.Context)
	next llm.Generator
}

func (g blockingGenerator) Generate(ctx context.Context, req llm.Request) (json.RawMessage, error) {
	g.wait(ctx)
	return g.next.Generate(ctx, req)
}

type imageModelFunc func(ctx context.Context, prompt string) (string, error)

func (f imageModelFunc) GenerateImage(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

func TestEncyclopediaPlaceholderImage(t *testing.T) {
	defer goleak.VerifyNone(t)

	stub := llmtest.NewRecorder(armywormEntry)
	enc := NewEncyclopedia(stub, PlaceholderImage(placeholderURL))

	out, err := enc.Invoke(context.Background(), EncyclopediaInput{Query: "Fall armyworm"})
	require.NoError(t, err)

	assert.Equal(t, "Fall armyworm", out.Name)
	assert.Equal(t, "- Ragged leaves", out.Symptoms)
	assert.Equal(t, placeholderURL, out.ImageURL)
	assert.Equal(t, FlowEncyclopediaText, stub.Last().Name)
}

func TestEncyclopediaSubCallsRunInParallel(t *testing.T) {
	defer goleak.VerifyNone(t)

	started := make(chan struct{})
	images := imageFunc(func(ctx context.Context, _ EncyclopediaInput) (string, error) {
		close(started)
		return "data:image/png;base64,iVBORw0K", nil
	})

	var textSawImageStart atomic.Bool
	gen := llmtest.NewRecorder(armywormEntry)
	text := blockingGenerator{
		wait: func(context.Context) {
			select {
			case <-started:
				textSawImageStart.Store(true)
			case <-time.After(2 * time.Second):
			}
		},
		next: gen,
	}

	enc := NewEncyclopedia(text, images)
	out, err := enc.Invoke(context.Background(), EncyclopediaInput{Query: "Aphids"})
	require.NoError(t, err)

	assert.True(t, textSawImageStart.Load(), "image sub-call should start while text sub-call is in flight")
	assert.Equal(t, "data:image/png;base64,iVBORw0K", out.ImageURL)
}

func TestEncyclopediaFailsWhenImageFails(t *testing.T) {
	defer goleak.VerifyNone(t)

	stub := llmtest.NewRecorder(armywormEntry)
	images := imageFunc(func(context.Context, EncyclopediaInput) (string, error) {
		return "", errors.New("image quota exceeded")
	})

	out, err := NewEncyclopedia(stub, images).Invoke(context.Background(), EncyclopediaInput{Query: "Stem borer"})
	assert.Nil(t, out)
	assert.True(t, resilience.IsTransport(err))
}

func TestEncyclopediaFailsOnEmptyImage(t *testing.T) {
	defer goleak.VerifyNone(t)

	out, err := NewEncyclopedia(llmtest.NewRecorder(armywormEntry), PlaceholderImage("")).
		Invoke(context.Background(), EncyclopediaInput{Query: "Stem borer"})
	assert.Nil(t, out)
	assert.True(t, resilience.IsGenerationFailed(err))
}

func TestEncyclopediaFailsWhenTextFails(t *testing.T) {
	defer goleak.VerifyNone(t)

	var imageCancelled atomic.Bool
	images := imageFunc(func(ctx context.Context, _ EncyclopediaInput) (string, error) {
		select {
		case <-ctx.Done():
			imageCancelled.Store(true)
			return "", ctx.Err()
		case <-time.After(2 * time.Second):
			return placeholderURL, nil
		}
	})

	stub := llmtest.NewRecorder(`{"name":"only a name"}`)
	out, err := NewEncyclopedia(stub, images).Invoke(context.Background(), EncyclopediaInput{Query: "Blast"})
	assert.Nil(t, out)
	assert.True(t, resilience.IsGenerationFailed(err))
	assert.True(t, imageCancelled.Load())
}

func TestEncyclopediaValidatesBeforeSubCalls(t *testing.T) {
	stub := llmtest.NewRecorder(armywormEntry)
	var imageCalls atomic.Int32
	images := imageFunc(func(context.Context, EncyclopediaInput) (string, error) {
		imageCalls.Add(1)
		return placeholderURL, nil
	})

	_, err := NewEncyclopedia(stub, images).Invoke(context.Background(), EncyclopediaInput{Query: "a"})
	require.Error(t, err)
	assert.Equal(t, "Search term must be at least 2 characters.", err.Error())
	assert.Zero(t, stub.Calls())
	assert.Zero(t, imageCalls.Load())
}

func TestEncyclopediaReportsComposite(t *testing.T) {
	var names []string
	hook := func(_ context.Context, ev flow.Event) { names = append(names, ev.Flow) }

	enc := NewEncyclopedia(llmtest.NewRecorder(armywormEntry), PlaceholderImage(placeholderURL), flow.WithHooks(hook))
	_, err := enc.Invoke(context.Background(), EncyclopediaInput{Query: "Thrips"})
	require.NoError(t, err)

	assert.Equal(t, []string{FlowEncyclopediaText, FlowEncyclopedia}, names)
}

func TestGeneratedImages(t *testing.T) {
	var gotPrompt string
	source := NewGeneratedImages(imageModelFunc(func(_ context.Context, prompt string) (string, error) {
		gotPrompt = prompt
		return "data:image/png;base64,iVBORw0K", nil
	}))

	url, err := source.Image(context.Background(), EncyclopediaInput{Query: "Pink bollworm"})
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,iVBORw0K", url)
	assert.Contains(t, gotPrompt, `"Pink bollworm"`)

	failing := NewGeneratedImages(imageModelFunc(func(context.Context, string) (string, error) {
		return "", errors.New("connection reset")
	}))
	_, err = failing.Image(context.Background(), EncyclopediaInput{Query: "Pink bollworm"})
	assert.True(t, resilience.IsTransport(err))
}
