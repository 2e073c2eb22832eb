// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package dtstest holds fixtures and structural comparison helpers shared by
// the rest of the module's tests: an in-memory source set, a one-shot
// parse-from-string helper, and a tree Diff adapted to dts.Node/dts.Tree
// shapes from a recursive AST-comparator pattern.
package dtstest

import (
	"bytes"
	"fmt"

	"github.com/kylelemons/godebug/diff"

	"github.com/google/dtoverlay/dts"
	"github.com/google/dtoverlay/dtsparse"
	"github.com/google/dtoverlay/emit"
	"github.com/google/dtoverlay/fileopen"
	"github.com/google/dtoverlay/lexer"
)

// Source is a named in-memory DTS fixture.
type Source struct {
	Path    string
	Content string
}

// Parse tokenizes and parses a set of in-memory sources rooted at top,
// exercising the same fileopen.Mem backend the lexer package tests use.
func Parse(top string, sources ...Source) (*dts.Tree, error) {
	mem := fileopen.NewMem()
	for _, s := range sources {
		if err := mem.Put(s.Path, s.Content); err != nil {
			return nil, fmt.Errorf("fixture %q: %w", s.Path, err)
		}
	}
	toks, _, err := lexer.Tokenize(top, mem)
	if err != nil {
		return nil, err
	}
	return dtsparse.Parse(toks, top)
}

// EmitString renders t to a string via the emit package.
func EmitString(t *dts.Tree, opts emit.Options) (string, error) {
	var buf bytes.Buffer
	if err := emit.Write(&buf, t, opts); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Roundtrip parses src, emits it, and re-parses the emitted text, returning
// both trees so the caller can Diff them — the "round-trip equivalence"
// property of spec.md §8.
func Roundtrip(top string, sources ...Source) (before, after *dts.Tree, err error) {
	before, err = Parse(top, sources...)
	if err != nil {
		return nil, nil, err
	}
	text, err := EmitString(before, emit.Options{})
	if err != nil {
		return nil, nil, err
	}
	after, err = Parse(top, Source{Path: top, Content: text})
	if err != nil {
		return nil, nil, fmt.Errorf("re-parsing emitted output: %w", err)
	}
	return before, after, nil
}

// Diff structurally compares two nodes, returning a list of human-readable
// mismatches (empty if structurally equal). Adapted to dts.Node/Property/
// Chunk shapes from a recursive AST-comparator pattern: name, labels,
// properties (name plus rendered chunk text) and children are compared
// positionally, recursing into children.
func Diff(got, want *dts.Node) (diff []string) {
	if got == nil && want == nil {
		return nil
	}
	if got == nil {
		return []string{fmt.Sprintf("expected node %q, got nil", want.Name)}
	}
	if want == nil {
		return []string{fmt.Sprintf("expected nil, got node %q", got.Name)}
	}
	if got.Name != want.Name {
		diff = append(diff, fmt.Sprintf("expected node name %q, got %q", want.Name, got.Name))
	}
	diff = append(diff, diffStrings("labels", got.Labels, want.Labels)...)
	diff = append(diff, diffProperties(got.Properties, want.Properties)...)
	if len(got.Children) != len(want.Children) {
		diff = append(diff, fmt.Sprintf("node %q: expected %d children, got %d", want.Name, len(want.Children), len(got.Children)))
	}
	n := len(got.Children)
	if len(want.Children) < n {
		n = len(want.Children)
	}
	for i := 0; i < n; i++ {
		diff = append(diff, Diff(got.Children[i], want.Children[i])...)
	}
	return diff
}

func diffStrings(what string, got, want []string) (diff []string) {
	if len(got) != len(want) {
		diff = append(diff, fmt.Sprintf("%s: expected %v, got %v", what, want, got))
		return diff
	}
	for i := range got {
		if got[i] != want[i] {
			diff = append(diff, fmt.Sprintf("%s[%d]: expected %q, got %q", what, i, want[i], got[i]))
		}
	}
	return diff
}

func diffProperties(got, want []*dts.Property) (diff []string) {
	if len(got) != len(want) {
		diff = append(diff, fmt.Sprintf("properties: expected %d, got %d", len(want), len(got)))
	}
	n := len(got)
	if len(want) < n {
		n = len(want)
	}
	for i := 0; i < n; i++ {
		g, w := got[i], want[i]
		if g.Name != w.Name {
			diff = append(diff, fmt.Sprintf("property[%d]: expected name %q, got %q", i, w.Name, g.Name))
			continue
		}
		gs, ws := renderChunks(g.Chunks), renderChunks(w.Chunks)
		if gs != ws {
			diff = append(diff, fmt.Sprintf("property %q: expected %s, got %s", w.Name, ws, gs))
		}
	}
	return diff
}

// DiffText renders a readable line diff between two emitted DTS texts,
// preferred over Diff's structural []string output wherever the mismatch
// is easier to eyeball as text (spec.md §8's round-trip tests).
func DiffText(got, want string) string {
	return diff.Diff(want, got)
}

func renderChunks(chunks []dts.Chunk) string {
	s := ""
	for i, c := range chunks {
		if i > 0 {
			s += ", "
		}
		s += c.String()
	}
	return s
}
