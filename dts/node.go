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

package dts

import "strings"

// Node is a mutable device-tree node (spec.md §3). Parent is a weak,
// never-owning back-reference; the owning references run the other way,
// from Tree.Root down through Children.
type Node struct {
	Name       string
	Properties []*Property
	Children   []*Node
	Labels     []string
	Parent     *Node
	Depth      int
}

// Property is an ordered name plus a sequence of value chunks. A property
// with zero chunks is boolean-present (spec.md §3).
type Property struct {
	Name   string
	Chunks []Chunk
}

// Boolean reports whether p is a chunk-less boolean-present property.
func (p *Property) Boolean() bool { return len(p.Chunks) == 0 }

// BaseName strips a trailing "@unit-address" suffix from a node name.
func BaseName(name string) string {
	if i := strings.IndexByte(name, '@'); i >= 0 {
		return name[:i]
	}
	return name
}

// UnitAddress returns the "@..." suffix of a node name (without the "@"),
// or "" if the name carries none.
func UnitAddress(name string) string {
	if i := strings.IndexByte(name, '@'); i >= 0 {
		return name[i+1:]
	}
	return ""
}

// Property looks up a property by exact name, returning nil if absent.
func (n *Node) Property(name string) *Property {
	for _, p := range n.Properties {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Child looks up an immediate child by name using the matching rule of
// spec.md §4.6: an exact match wins; otherwise a name with no "@" matches a
// child named "NAME@anything".
func (n *Node) Child(name string) *Node {
	var fallback *Node
	hasAt := strings.IndexByte(name, '@') >= 0
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
		if !hasAt && fallback == nil && BaseName(c.Name) == name {
			fallback = c
		}
	}
	return fallback
}

// HasLabel reports whether label l is attached to n.
func (n *Node) HasLabel(l string) bool {
	for _, x := range n.Labels {
		if x == l {
			return true
		}
	}
	return false
}
