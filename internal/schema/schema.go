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

// Package schema validates advisory inputs and model outputs against the
// record types declared by each flow.
//
// Input records describe their form contract with struct tags:
//
//	Query    string `form:"query" label:"Query" validate:"required"`
//	Language string `form:"language" label:"Language" default:"en" validate:"oneof=en te hi"`
//	SoilPH   float64 `form:"soilPH" label:"Soil pH" validate:"gte=0,lte=14" msg:"Soil pH must be between 0 and 14."`
//
// A field is required unless its form tag carries ",omitempty" or it declares a default.
package schema

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldError is the message attached to one form field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every field that failed. Message repeats the first
// field's message in declaration order.
type ValidationError struct {
	Message string
	Fields  []FieldError
}

func (e *ValidationError) Error() string {
	return e.Message
}

// FieldMap returns the field errors keyed by form field name.
func (e *ValidationError) FieldMap() map[string]string {
	m := make(map[string]string, len(e.Fields))
	for _, f := range e.Fields {
		m[f.Field] = f.Message
	}
	return m
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(sf reflect.StructField) string {
		if tag, ok := parseFormTag(sf); ok {
			return tag.name
		}
		name, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type formTag struct {
	name     string
	optional bool
}

func parseFormTag(sf reflect.StructField) (formTag, bool) {
	raw, ok := sf.Tag.Lookup("form")
	if !ok || raw == "-" || !sf.IsExported() {
		return formTag{}, false
	}
	name, opts, _ := strings.Cut(raw, ",")
	if name == "" {
		name = sf.Name
	}
	return formTag{name: name, optional: opts == "omitempty"}, true
}

func label(sf reflect.StructField) string {
	if l := sf.Tag.Get("label"); l != "" {
		return l
	}
	if tag, ok := parseFormTag(sf); ok {
		return tag.name
	}
	return sf.Name
}

func fieldName(sf reflect.StructField) string {
	if tag, ok := parseFormTag(sf); ok {
		return tag.name
	}
	name, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return sf.Name
	}
	return name
}

// Check validates an already-typed record against its validate tags.
func Check(v any) error {
	rv := reflect.Indirect(reflect.ValueOf(v))
	if rv.Kind() != reflect.Struct {
		return fmt.Errorf("schema: cannot check %T", v)
	}
	fieldErrs, err := constraintErrors(rv.Type(), v, nil)
	if err != nil {
		return err
	}
	return newValidationError(rv.Type(), fieldErrs)
}

// constraintErrors runs the validator and records the first message per top-level
// field, skipping fields that already failed.
func constraintErrors(st reflect.Type, v any, fieldErrs map[int]string) (map[int]string, error) {
	if fieldErrs == nil {
		fieldErrs = make(map[int]string)
	}

	err := validate.Struct(v)
	if err == nil {
		return fieldErrs, nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil, fmt.Errorf("schema: %w", err)
	}

	for _, fe := range verrs {
		idx := topLevelField(st, fe.StructNamespace())
		if idx < 0 {
			continue
		}
		if _, seen := fieldErrs[idx]; seen {
			continue
		}
		fieldErrs[idx] = constraintMessage(st.Field(idx), fe)
	}
	return fieldErrs, nil
}

// topLevelField resolves "Input.Fields[1]" to the index of Fields in st.
func topLevelField(st reflect.Type, namespace string) int {
	parts := strings.SplitN(namespace, ".", 3)
	if len(parts) < 2 {
		return -1
	}
	name, _, _ := strings.Cut(parts[1], "[")
	sf, ok := st.FieldByName(name)
	if !ok || len(sf.Index) != 1 {
		return -1
	}
	return sf.Index[0]
}

func constraintMessage(sf reflect.StructField, fe validator.FieldError) string {
	if msg := sf.Tag.Get("msg"); msg != "" {
		return msg
	}

	l := label(sf)
	unit := ""
	if fe.Kind() == reflect.String {
		unit = " characters"
	} else if fe.Kind() == reflect.Slice {
		unit = " items"
	}

	switch fe.Tag() {
	case "required":
		return requiredMessage(sf)
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s%s.", l, fe.Param(), unit)
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s%s.", l, fe.Param(), unit)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s.", l, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s.", l, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "datauri":
		return fmt.Sprintf("%s must be a data URI.", l)
	default:
		return fmt.Sprintf("%s is invalid.", l)
	}
}

func requiredMessage(sf reflect.StructField) string {
	return label(sf) + " is required."
}

func newValidationError(st reflect.Type, fieldErrs map[int]string) error {
	if len(fieldErrs) == 0 {
		return nil
	}

	verr := &ValidationError{}
	for i := range st.NumField() {
		msg, ok := fieldErrs[i]
		if !ok {
			continue
		}
		verr.Fields = append(verr.Fields, FieldError{Field: fieldName(st.Field(i)), Message: msg})
	}
	verr.Message = verr.Fields[0].Message
	return verr
}
