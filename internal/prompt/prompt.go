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

// Package prompt renders advisory prompt templates.
package prompt

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"text/template"
	"text/template/parse"
)

// Template is a compiled prompt bound to one input record type.
type Template struct {
	name string
	tmpl *template.Template
}

var funcs = template.FuncMap{
	"json": func(v any) (string, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	},
	"join": strings.Join,
	// num prints a number in plain decimal notation, never with an exponent.
	"num": func(f float64) string {
		return strconv.FormatFloat(f, 'f', -1, 64)
	},
}

// Compile parses src, resolves every field reference against the type of zero
// (including those in branches the zero value would skip), and executes it once
// against zero, so that references to unknown fields fail here rather than per request.
func Compile(name, src string, zero any) (*Template, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Funcs(funcs).Parse(src)
	if err != nil {
		return nil, fmt.Errorf("prompt %s: %w", name, err)
	}

	root := reflect.TypeOf(zero)
	if err := checkFields(tmpl.Tree.Root, root, root); err != nil {
		return nil, fmt.Errorf("prompt %s: %w", name, err)
	}

	t := &Template{name: name, tmpl: tmpl}
	if _, err := t.Render(zero); err != nil {
		return nil, err
	}
	return t, nil
}

// MustCompile is like Compile but panics on error. Use it for embedded templates.
func MustCompile(name, src string, zero any) *Template {
	t, err := Compile(name, src, zero)
	if err != nil {
		panic(err)
	}
	return t
}

// Name returns the template name.
func (t *Template) Name() string {
	return t.name
}

// Render substitutes the fields of in into the template verbatim.
func (t *Template) Render(in any) (string, error) {
	var b strings.Builder
	if err := t.tmpl.Execute(&b, in); err != nil {
		return "", fmt.Errorf("prompt %s: %w", t.name, err)
	}
	return b.String(), nil
}

// checkFields walks the parse tree and resolves each field chain against dot,
// the static type of "." at that point. A nil dot means the type is unknown.
func checkFields(node parse.Node, dot, root reflect.Type) error {
	switch n := node.(type) {
	case *parse.ListNode:
		if n == nil {
			return nil
		}
		for _, child := range n.Nodes {
			if err := checkFields(child, dot, root); err != nil {
				return err
			}
		}
	case *parse.ActionNode:
		_, err := checkPipe(n.Pipe, dot, root)
		return err
	case *parse.IfNode:
		return checkBranch(&n.BranchNode, dot, dot, root)
	case *parse.WithNode:
		inner, err := checkPipe(n.Pipe, dot, root)
		if err != nil {
			return err
		}
		return checkBranch(&n.BranchNode, inner, dot, root)
	case *parse.RangeNode:
		t, err := checkPipe(n.Pipe, dot, root)
		if err != nil {
			return err
		}
		return checkBranch(&n.BranchNode, elemType(t), dot, root)
	case *parse.TemplateNode:
		_, err := checkPipe(n.Pipe, dot, root)
		return err
	}
	return nil
}

func checkBranch(b *parse.BranchNode, inner, outer, root reflect.Type) error {
	if _, err := checkPipe(b.Pipe, outer, root); err != nil {
		return err
	}
	if err := checkFields(b.List, inner, root); err != nil {
		return err
	}
	return checkFields(b.ElseList, outer, root)
}

// checkPipe checks every argument of pipe and returns the static type of a
// pipeline that is a single field chain, or nil.
func checkPipe(pipe *parse.PipeNode, dot, root reflect.Type) (reflect.Type, error) {
	if pipe == nil {
		return nil, nil
	}
	var last reflect.Type
	for _, cmd := range pipe.Cmds {
		last = nil
		for _, arg := range cmd.Args {
			t, err := checkArg(arg, dot, root)
			if err != nil {
				return nil, err
			}
			if len(cmd.Args) == 1 {
				last = t
			}
		}
	}
	if len(pipe.Cmds) != 1 {
		return nil, nil
	}
	return last, nil
}

func checkArg(arg parse.Node, dot, root reflect.Type) (reflect.Type, error) {
	switch a := arg.(type) {
	case *parse.DotNode:
		return dot, nil
	case *parse.FieldNode:
		return resolveFields(dot, a.Ident)
	case *parse.VariableNode:
		if len(a.Ident) > 1 && a.Ident[0] == "$" {
			return resolveFields(root, a.Ident[1:])
		}
	case *parse.PipeNode:
		return checkPipe(a, dot, root)
	}
	return nil, nil
}

func resolveFields(t reflect.Type, idents []string) (reflect.Type, error) {
	for _, ident := range idents {
		if t == nil {
			return nil, nil
		}
		if _, ok := t.MethodByName(ident); ok {
			return nil, nil
		}
		for t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		switch t.Kind() {
		case reflect.Interface:
			return nil, nil
		case reflect.Map:
			t = t.Elem()
		case reflect.Struct:
			f, ok := t.FieldByName(ident)
			if !ok || !f.IsExported() {
				return nil, fmt.Errorf("can't evaluate field %s in type %s", ident, t)
			}
			t = f.Type
		default:
			return nil, fmt.Errorf("can't evaluate field %s in type %s", ident, t)
		}
	}
	return t, nil
}

func elemType(t reflect.Type) reflect.Type {
	if t == nil {
		return nil
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Chan:
		return t.Elem()
	}
	return nil
}
