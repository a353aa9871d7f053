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
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/sashabaranov/go-openai/jsonschema"
)

// ErrEmptyPayload is returned by Verify when the model produced no content.
var ErrEmptyPayload = errors.New("empty model payload")

var definitions sync.Map // reflect.Type -> jsonschema.Definition

// Definition derives the JSON schema the model must satisfy for output record v.
// Results are cached per type.
func Definition(v any) (jsonschema.Definition, error) {
	t := reflect.TypeOf(v)
	if cached, ok := definitions.Load(t); ok {
		return cached.(jsonschema.Definition), nil
	}

	def, err := jsonschema.GenerateSchemaForType(v)
	if err != nil {
		return jsonschema.Definition{}, fmt.Errorf("schema: derive output schema for %s: %w", t, err)
	}
	numberForInteger(def)
	definitions.Store(t, *def)
	return *def, nil
}

// numberForInteger declares integer properties as JSON numbers. Decoded JSON holds
// float64 values only; integrality is still enforced when the payload is
// unmarshalled into the int field.
func numberForInteger(def *jsonschema.Definition) {
	if def.Type == jsonschema.Integer {
		def.Type = jsonschema.Number
	}
	if def.Items != nil {
		numberForInteger(def.Items)
	}
	for name, prop := range def.Properties {
		numberForInteger(&prop)
		def.Properties[name] = prop
	}
}

// Verify checks that raw conforms to def and to the validate tags of dst, and
// decodes it into dst.
func Verify(raw []byte, def jsonschema.Definition, dst any) error {
	payload := stripCodeFence(raw)
	if len(payload) == 0 {
		return ErrEmptyPayload
	}

	if err := jsonschema.VerifySchemaAndUnmarshal(def, payload, dst); err != nil {
		return fmt.Errorf("payload does not match output schema: %w", err)
	}

	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("payload violates output constraints: %w", err)
	}
	return nil
}

// stripCodeFence removes a ```json ... ``` wrapper some models add around JSON.
func stripCodeFence(raw []byte) []byte {
	payload := bytes.TrimSpace(raw)
	if !bytes.HasPrefix(payload, []byte("```")) {
		return payload
	}
	payload = bytes.TrimPrefix(payload, []byte("```"))
	if nl := bytes.IndexByte(payload, '\n'); nl >= 0 {
		payload = payload[nl+1:]
	}
	payload = bytes.TrimSuffix(bytes.TrimSpace(payload), []byte("```"))
	return bytes.TrimSpace(payload)
}
