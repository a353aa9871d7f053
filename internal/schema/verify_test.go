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

package schema

import (
	"testing"

	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scoredCrop struct {
	CropName string `json:"cropName" description:"Name of the crop"`
	Score    int    `json:"score" validate:"gte=0,lte=100"`
}

type scoredOutput struct {
	Crops   []scoredCrop `json:"crops"`
	Summary string       `json:"summary"`
	Extra   float64      `json:"extra,omitempty"`
}

func TestDefinition(t *testing.T) {
	def, err := Definition(scoredOutput{})
	require.NoError(t, err)

	assert.Equal(t, jsonschema.Object, def.Type)
	assert.ElementsMatch(t, []string{"crops", "summary"}, def.Required)
	require.NotNil(t, def.Properties["crops"].Items)
	assert.Equal(t, jsonschema.Number, def.Properties["crops"].Items.Properties["score"].Type)
	assert.Equal(t, "Name of the crop", def.Properties["crops"].Items.Properties["cropName"].Description)

	again, err := Definition(scoredOutput{})
	require.NoError(t, err)
	assert.Equal(t, def, again)
}

func TestVerify(t *testing.T) {
	def, err := Definition(scoredOutput{})
	require.NoError(t, err)

	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"valid", `{"crops":[{"cropName":"Rice","score":80}],"summary":"ok"}`, false},
		{"fenced", "```json\n{\"crops\":[],\"summary\":\"ok\"}\n```", false},
		{"optional extra", `{"crops":[],"summary":"ok","extra":1.5}`, false},
		{"missing required", `{"crops":[]}`, true},
		{"wrong type", `{"crops":[],"summary":7}`, true},
		{"score above range", `{"crops":[{"cropName":"Rice","score":101}],"summary":"ok"}`, true},
		{"fractional integer", `{"crops":[{"cropName":"Rice","score":1.5}],"summary":"ok"}`, true},
		{"not json", `Here are your crops`, true},
		{"empty", "  ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out scoredOutput
			err := Verify([]byte(tt.payload), def, &out)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, "ok", out.Summary)
		})
	}
}

func TestVerifyDecodesPayloadUnchanged(t *testing.T) {
	def, err := Definition(scoredOutput{})
	require.NoError(t, err)

	var out scoredOutput
	require.NoError(t, Verify([]byte(`{"crops":[{"cropName":"Maize","score":64}],"summary":"Plant maize."}`), def, &out))

	assert.Equal(t, scoredOutput{
		Crops:   []scoredCrop{{CropName: "Maize", Score: 64}},
		Summary: "Plant maize.",
	}, out)
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, string(stripCodeFence([]byte("```json\n{\"a\":1}\n```"))))
	assert.Equal(t, `{"a":1}`, string(stripCodeFence([]byte("  {\"a\":1}\n"))))
}
