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

// Package dts is the in-memory device-tree data model: Tree, Node, Property
// and the closed set of Value Chunk kinds they hold.
package dts

import "fmt"

// Chunk is the closed sum type of property value chunks (spec.md §3, design
// note in §9): String, LabelRef, Cells or Bytes. Implementations are
// switched on by the dtparam package to decide where overrides apply, so
// this is modeled as a real tagged variant rather than a heterogeneous
// slice of interface{}.
type Chunk interface {
	fmt.Stringer
	isChunk()
}

// StringChunk is a quoted string value, e.g. "okay".
type StringChunk struct {
	Value string
}

func (StringChunk) isChunk() {}

func (c StringChunk) String() string {
	return fmt.Sprintf("%q", c.Value)
}

// LabelRefChunk is a bare `&label` occurring as a whole property value
// (e.g. `phandle-list = &foo;`), as opposed to a &label term nested inside
// a Cells vector (e.g. `phandle-list = <&foo>;`, which is a CellsChunk with
// one CellTerm{Label: "foo"}). The distinction matters for the "two-tier
// label rewrite" rule in spec.md §9: only the nested form is rewritten
// during overlay label uniquification.
type LabelRefChunk struct {
	Label string
}

func (LabelRefChunk) isChunk() {}

func (c LabelRefChunk) String() string {
	return "&" + c.Label
}

// CellTerm is one element of a CellsChunk: either a &label reference or the
// original textual form of an integer/expression literal, retained verbatim
// (spec.md §3: "items ... are retained as their original textual tokens").
type CellTerm struct {
	Label string // non-empty iff this term is "&label"
	Text  string // literal or parenthesized-expression text otherwise
}

func (t CellTerm) String() string {
	if t.Label != "" {
		return "&" + t.Label
	}
	return t.Text
}

// IsLabelRef reports whether this term is a &label reference.
func (t CellTerm) IsLabelRef() bool { return t.Label != "" }

// CellsChunk is a `<...>` vector of integer-or-labelref terms.
// ElemSize is one of 1, 2, 4, 8 bytes; the default is 4, overridden by a
// preceding `/bits/ N`.
type CellsChunk struct {
	ElemSize int
	Items    []CellTerm
}

func (CellsChunk) isChunk() {}

func (c CellsChunk) String() string {
	s := "<"
	for i, it := range c.Items {
		if i > 0 {
			s += " "
		}
		s += it.String()
	}
	return s + ">"
}

// BytesChunk is a `[...]` vector of hex byte tokens; its element size is
// always 1.
type BytesChunk struct {
	Items []string
}

func (BytesChunk) isChunk() {}

func (c BytesChunk) String() string {
	s := "["
	for i, it := range c.Items {
		if i > 0 {
			s += " "
		}
		s += it
	}
	return s + "]"
}

// DefaultElemSize is the cell width assumed absent a /bits/ directive.
const DefaultElemSize = 4
