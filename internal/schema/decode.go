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
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Decode fills the struct pointed to by dst from a raw form mapping, then
// checks its constraints. Blank values count as absent. A *ValidationError is
// returned when any field fails; other errors indicate a programming mistake.
func Decode(raw map[string]string, dst any) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("schema: Decode needs a non-nil struct pointer, got %T", dst)
	}
	sv := rv.Elem()
	st := sv.Type()

	fieldErrs := make(map[int]string)
	for i := range st.NumField() {
		sf := st.Field(i)
		tag, ok := parseFormTag(sf)
		if !ok {
			continue
		}

		value := strings.TrimSpace(raw[tag.name])
		if value == "" {
			value = sf.Tag.Get("default")
		}
		if value == "" {
			if !tag.optional {
				fieldErrs[i] = requiredMessage(sf)
			}
			continue
		}

		if err := setField(sv.Field(i), value); err != nil {
			fieldErrs[i] = fmt.Sprintf("%s %s.", label(sf), err.Error())
		}
	}

	fieldErrs, err := constraintErrors(st, dst, fieldErrs)
	if err != nil {
		return err
	}
	return newValidationError(st, fieldErrs)
}

type coercionError string

func (e coercionError) Error() string { return string(e) }

const (
	errNotNumber  coercionError = "must be a number"
	errNotInteger coercionError = "must be a whole number"
	errNotBool    coercionError = "must be true or false"
)

func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, field.Type().Bits())
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return errNotNumber
		}
		field.SetFloat(f)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return errNotInteger
		}
		field.SetInt(n)
	case reflect.Bool:
		if value == "on" {
			field.SetBool(true)
			return nil
		}
		b, err := strconv.ParseBool(value)
		if err != nil {
			return errNotBool
		}
		field.SetBool(b)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			panic(fmt.Sprintf("schema: unsupported form list element %s", field.Type().Elem()))
		}
		items := reflect.MakeSlice(field.Type(), 0, strings.Count(value, ",")+1)
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = reflect.Append(items, reflect.ValueOf(item).Convert(field.Type().Elem()))
			}
		}
		field.Set(items)
	default:
		panic(fmt.Sprintf("schema: unsupported form field kind %s", field.Kind()))
	}
	return nil
}

// Field describes one input field for catalogues and help output.
type Field struct {
	Name     string   `json:"name"`
	Label    string   `json:"label"`
	Type     string   `json:"type"`
	Required bool     `json:"required"`
	Default  string   `json:"default,omitempty"`
	Options  []string `json:"options,omitempty"`
}

// Fields lists the form fields of an input record in declaration order.
func Fields(v any) []Field {
	st := reflect.TypeOf(v)
	for st.Kind() == reflect.Pointer {
		st = st.Elem()
	}

	var fields []Field
	for i := range st.NumField() {
		sf := st.Field(i)
		tag, ok := parseFormTag(sf)
		if !ok {
			continue
		}
		def := sf.Tag.Get("default")
		fields = append(fields, Field{
			Name:     tag.name,
			Label:    label(sf),
			Type:     kindName(sf.Type),
			Required: !tag.optional && def == "",
			Default:  def,
			Options:  oneOf(sf.Tag.Get("validate")),
		})
	}
	return fields
}

func kindName(t reflect.Type) string {
	switch t.Kind() {
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return "integer"
	case reflect.Bool:
		return "boolean"
	case reflect.Slice:
		return "list"
	default:
		return "string"
	}
}

func oneOf(rules string) []string {
	for _, rule := range strings.Split(rules, ",") {
		if param, ok := strings.CutPrefix(rule, "oneof="); ok {
			return strings.Fields(param)
		}
	}
	return nil
}
