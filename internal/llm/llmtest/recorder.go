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

// Package llmtest provides a recording Generator for tests.
package llmtest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/your-org/agrigenius/internal/llm"
)

// Recorder is an llm.Generator that records every request and answers with a
// canned payload per flow name.
type Recorder struct {
	mu        sync.Mutex
	requests  []llm.Request
	responses map[string]json.RawMessage
	errs      map[string]error
	fallback  json.RawMessage
}

// NewRecorder returns a Recorder answering every request with fallback.
func NewRecorder(fallback string) *Recorder {
	return &Recorder{
		responses: make(map[string]json.RawMessage),
		errs:      make(map[string]error),
		fallback:  json.RawMessage(fallback),
	}
}

// Respond sets the payload returned for requests named name.
func (r *Recorder) Respond(name, payload string) *Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses[name] = json.RawMessage(payload)
	return r
}

// Fail makes requests named name return err.
func (r *Recorder) Fail(name string, err error) *Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs[name] = err
	return r
}

// Generate implements llm.Generator.
func (r *Recorder) Generate(ctx context.Context, req llm.Request) (json.RawMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := r.errs[req.Name]; ok {
		return nil, err
	}
	if payload, ok := r.responses[req.Name]; ok {
		return payload, nil
	}
	return r.fallback, nil
}

// Requests returns a copy of the recorded requests.
func (r *Recorder) Requests() []llm.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]llm.Request(nil), r.requests...)
}

// Calls returns the number of recorded requests.
func (r *Recorder) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

// Last returns the most recent request. It panics when nothing was recorded.
func (r *Recorder) Last() llm.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requests[len(r.requests)-1]
}
