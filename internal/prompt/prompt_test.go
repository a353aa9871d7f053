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

package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type question struct {
	Query    string
	Language string
	Fields   []string
	Post     string
}

const questionSrc = `Answer in {{.Language}}.
Question: {{.Query}}
{{- if .Post}}
Post: {{.Post}}{{end}}
Fields: {{json .Fields}}`

func TestRenderSubstitutesLiterally(t *testing.T) {
	tmpl := MustCompile("question", questionSrc, question{})

	out, err := tmpl.Render(question{
		Query:    `Why are my <tomato> leaves "yellow" & curling?`,
		Language: "te",
		Fields:   []string{"expectedYieldPerAcre", "inputCostsPerAcre"},
	})
	require.NoError(t, err)

	assert.Contains(t, out, `Question: Why are my <tomato> leaves "yellow" & curling?`)
	assert.Contains(t, out, "Answer in te.")
	assert.Contains(t, out, `Fields: ["expectedYieldPerAcre","inputCostsPerAcre"]`)
	assert.NotContains(t, out, "Post:")
	assert.Equal(t, "question", tmpl.Name())
}

func TestRenderOptionalSection(t *testing.T) {
	tmpl := MustCompile("question", questionSrc, question{})

	out, err := tmpl.Render(question{Query: "q", Language: "en", Post: "Aphids on chilli"})
	require.NoError(t, err)
	assert.Contains(t, out, "Post: Aphids on chilli")
}

func TestCompileRejectsUnknownField(t *testing.T) {
	_, err := Compile("broken", "Crop: {{.CropTyp}}", question{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")

	assert.Panics(t, func() {
		MustCompile("broken", "Crop: {{.CropTyp}}", question{})
	})
}

func TestCompileRejectsUnknownFieldInSkippedBranch(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{name: "if", src: "{{.Query}}{{if .Post}}{{.Psot}}{{end}}"},
		{name: "else", src: "{{if .Post}}{{.Post}}{{else}}{{.Qeury}}{{end}}"},
		{name: "range", src: "{{range .Fields}}{{.Name}}{{end}}"},
		{name: "with", src: "{{with .Post}}{{.Len}}{{end}}"},
		{name: "root variable", src: "{{range .Fields}}{{$.Langauge}}{{end}}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile("branch", tt.src, question{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "can't evaluate field")
		})
	}
}

func TestCompileAcceptsFieldsInBranches(t *testing.T) {
	src := "{{if .Post}}{{.Post}}{{else}}{{.Query}}{{end}}{{range $i, $f := .Fields}}{{$f}}{{$.Language}}{{end}}{{with .Query}}{{.}}{{end}}"

	_, err := Compile("branches", src, question{})
	assert.NoError(t, err)
}

func TestNumPrintsPlainDecimals(t *testing.T) {
	tmpl := MustCompile("num", "{{num .}}", 0.0)

	for in, want := range map[float64]string{1500000: "1500000", 12.5: "12.5", 0: "0", 0.0001: "0.0001"} {
		out, err := tmpl.Render(in)
		require.NoError(t, err)
		assert.Equal(t, want, out)
	}
}

func TestCompileRejectsSyntaxError(t *testing.T) {
	_, err := Compile("syntax", "{{if .Query}", question{})
	assert.Error(t, err)
}

func TestRenderMissingMapKey(t *testing.T) {
	tmpl := MustCompile("map", "{{.region}}", map[string]string{"region": ""})

	_, err := tmpl.Render(map[string]string{})
	assert.Error(t, err)
}
