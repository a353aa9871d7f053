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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/agrigenius/internal/llm/llmtest"
	"github.com/your-org/agrigenius/internal/resilience"
)

func TestRegistryRunFromForm(t *testing.T) {
	stub := llmtest.NewRecorder(`{"advice":"Mulch.","score":40,"yield":9}`)
	registry := NewRegistry()
	require.NoError(t, registry.Register(Bind[plotInput, plotOutput](newPlotFlow(stub))))

	runner, err := registry.Get("plot-advice")
	require.NoError(t, err)

	result, err := runner.Run(context.Background(), map[string]string{"crop": "Sugarcane", "acres": "12"})
	require.NoError(t, err)
	assert.Equal(t, &plotOutput{Advice: "Mulch.", Score: 40, Yield: 9}, result)
	assert.Equal(t, "Advise on Sugarcane grown on 12 acres.", stub.Last().Prompt)
}

func TestRegistryRunRejectsInvalidForm(t *testing.T) {
	stub := llmtest.NewRecorder(`{}`)
	registry := NewRegistry()
	require.NoError(t, registry.Register(Bind[plotInput, plotOutput](newPlotFlow(stub))))

	runner, err := registry.Get("plot-advice")
	require.NoError(t, err)

	_, err = runner.Run(context.Background(), map[string]string{"acres": "ten"})
	require.Error(t, err)

	var serviceErr *resilience.ServiceError
	require.True(t, errors.As(err, &serviceErr))
	assert.Equal(t, resilience.ErrorCodeValidationFailed, serviceErr.Code)
	assert.Equal(t, "Crop is required.", serviceErr.Message)
	assert.Equal(t, "Acres must be a number.", serviceErr.Fields["acres"])
	assert.Zero(t, stub.Calls())
}

func TestRegistryRender(t *testing.T) {
	stub := llmtest.NewRecorder(`{}`)
	registry := NewRegistry()
	require.NoError(t, registry.Register(Bind[plotInput, plotOutput](newPlotFlow(stub))))

	runner, err := registry.Get("plot-advice")
	require.NoError(t, err)

	rendered, err := runner.Render(map[string]string{"crop": "Jowar", "acres": "1.5", "photo": "data:image/png;base64,AA=="})
	require.NoError(t, err)
	assert.Equal(t, "Advise on Jowar grown on 1.5 acres. A photo is attached.", rendered)
	assert.Zero(t, stub.Calls())
}

func TestRegistryCatalogue(t *testing.T) {
	registry := NewRegistry()
	flow := Bind[plotInput, plotOutput](newPlotFlow(llmtest.NewRecorder(`{}`)))
	require.NoError(t, registry.Register(flow))
	assert.ErrorIs(t, registry.Register(flow), ErrDuplicateFlow)

	catalogue := registry.Catalogue()
	require.Len(t, catalogue, 1)
	assert.Equal(t, "plot-advice", catalogue[0].Name)
	assert.Equal(t, "Advice for one plot", catalogue[0].Description)
	require.Len(t, catalogue[0].Fields, 3)
	assert.Equal(t, "acres", catalogue[0].Fields[1].Name)

	_, err := registry.Get("nope")
	assert.Error(t, err)
	assert.Equal(t, []string{"plot-advice"}, registry.Names())
}
