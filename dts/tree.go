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

import (
	"fmt"
	"strings"

	"github.com/google/dtoverlay/ovlog"
)

// IncludeRef is one entry of the first-seen, deduplicated include set
// (spec.md §3, §9). Text carries the original include token (e.g. `"foo.h"`
// or `<foo.h>`); structural equality over Text is the dedup key, so
// `"foo.h"` and `<foo.h>` are treated as distinct entries.
type IncludeRef struct {
	Text string
}

// Memreserve is one deduplicated `/memreserve/ start length;` pair.
type Memreserve struct {
	Start, Length uint64
}

// Tree is the mutable device-tree store described in spec.md §3. It owns
// every Node reachable from Root; Node.Parent back-references stay inside
// the same object graph, so ownership is a tree with weak parent pointers,
// not an arena of indices (Go's GC makes the arena-of-indices trick from
// §9's design note unnecessary; pointer identity already gives O(1) parent
// traversal without risking use-after-free).
type Tree struct {
	Root        *Node
	Plugin      bool
	Labels      map[string]*Node
	Includes    []IncludeRef
	Memreserves []Memreserve
	FragCount   int
}

// NewTree creates an empty Tree Store with just a root node named "/".
func NewTree() *Tree {
	return &Tree{
		Root:   &Node{Name: "/"},
		Labels: make(map[string]*Node),
	}
}

// AddChild appends child as a new child of parent, wiring Parent/Depth.
func (t *Tree) AddChild(parent, child *Node) {
	child.Parent = parent
	child.Depth = parent.Depth + 1
	parent.Children = append(parent.Children, child)
}

// NewChild creates, wires and appends a fresh child node named name.
func (t *Tree) NewChild(parent *Node, name string) *Node {
	child := &Node{Name: name}
	t.AddChild(parent, child)
	return child
}

// GetOrAddChild returns the existing child of parent matching name
// (spec.md §4.6 matching rule), creating one if none exists.
func (t *Tree) GetOrAddChild(parent *Node, name string) *Node {
	if c := parent.Child(name); c != nil {
		return c
	}
	return t.NewChild(parent, name)
}

// AddLabel attaches label l to node n, maintaining Tree.Labels. Per
// spec.md §4.2: if l already maps to a different node, this fails; if it
// already maps to n itself, a warning is emitted (only surfaced with -w)
// and the call is otherwise a no-op.
func (t *Tree) AddLabel(n *Node, l string) error {
	if existing, ok := t.Labels[l]; ok {
		if existing != n {
			return fmt.Errorf("duplicated label %q: already attached to node %q", l, existing.Name)
		}
		ovlog.Warningf("label %q already attached to node %q", l, n.Name)
		return nil
	}
	t.Labels[l] = n
	n.Labels = append(n.Labels, l)
	return nil
}

// RemoveNode deletes n from its parent's children and removes n and all of
// its descendants' labels from the Tree's label map, per spec.md §3's
// lifecycle clause ("When a node is deleted, all its labels are removed
// ... all descendant nodes are deleted recursively") and the boundary
// behavior in §8.
func (t *Tree) RemoveNode(n *Node) {
	for _, l := range n.Labels {
		delete(t.Labels, l)
	}
	for _, c := range append([]*Node(nil), n.Children...) {
		t.RemoveNode(c)
	}
	if n.Parent == nil {
		return
	}
	siblings := n.Parent.Children
	for i, c := range siblings {
		if c == n {
			n.Parent.Children = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}
}

// RemoveChildNamed deletes the child of parent matching name (spec.md §4.2's
// /delete-node/ rule, using the same exact-or-stripped-unit-address
// matching as Node.Child, §4.6), returning false if none matched.
func (t *Tree) RemoveChildNamed(parent *Node, name string) bool {
	c := parent.Child(name)
	if c == nil {
		return false
	}
	t.RemoveNode(c)
	return true
}

// RemoveProperty deletes the named property from n, returning false if
// none was present.
func (t *Tree) RemoveProperty(n *Node, name string) bool {
	for i, p := range n.Properties {
		if p.Name == name {
			n.Properties = append(n.Properties[:i], n.Properties[i+1:]...)
			return true
		}
	}
	return false
}

// SetProperty implements the property write rule of spec.md §4.2: setting
// property name on node n to chunks replaces any existing property of that
// name, except that "status" is coerced through the boolean-value grammar
// to "okay"/"disabled", and "bootargs" is concatenated onto any existing
// bootargs string with a separating space. Absent an existing property, a
// new one is appended in declaration order.
func (t *Tree) SetProperty(n *Node, name string, chunks []Chunk) error {
	switch name {
	case "status":
		if len(chunks) > 0 {
			raw, err := firstString(chunks[0])
			if err != nil {
				return fmt.Errorf("status property: %w", err)
			}
			b, err := BooleanValue(raw)
			if err != nil {
				return fmt.Errorf("status property: %w", err)
			}
			val := "disabled"
			if b {
				val = "okay"
			}
			chunks = []Chunk{StringChunk{Value: val}}
		}
	case "bootargs":
		if existing := n.Property("bootargs"); existing != nil && len(existing.Chunks) > 0 && len(chunks) > 0 {
			oldVal, err1 := firstString(existing.Chunks[0])
			newVal, err2 := firstString(chunks[0])
			if err1 == nil && err2 == nil {
				chunks = []Chunk{StringChunk{Value: oldVal + " " + newVal}}
			}
		}
	}
	if p := n.Property(name); p != nil {
		p.Chunks = chunks
		return nil
	}
	n.Properties = append(n.Properties, &Property{Name: name, Chunks: chunks})
	return nil
}

func firstString(c Chunk) (string, error) {
	if sc, ok := c.(StringChunk); ok {
		return sc.Value, nil
	}
	return "", fmt.Errorf("expected a string chunk, got %s", c)
}

// AddInclude appends ref to the Includes set unless structurally equal to
// one already present (first-seen ordered set, spec.md §3, §9).
func (t *Tree) AddInclude(ref IncludeRef) {
	for _, existing := range t.Includes {
		if existing.Text == ref.Text {
			return
		}
	}
	t.Includes = append(t.Includes, ref)
}

// AddMemreserve appends a (start, length) pair unless already present
// (deduplicated by value, spec.md §3).
func (t *Tree) AddMemreserve(m Memreserve) {
	for _, existing := range t.Memreserves {
		if existing == m {
			return
		}
	}
	t.Memreserves = append(t.Memreserves, m)
}

// ResolvePath resolves an absolute or alias-rooted device-tree path to a
// node, per the aliasing rule in spec.md §4.6: a leading "NAME/" path
// component is first looked up in /aliases, which may map to either a
// &label or an absolute path string; the remainder of the path is then
// resolved under whatever node that yields.
func (t *Tree) ResolvePath(path string) (*Node, error) {
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return t.Root, nil
	}
	parts := strings.Split(path, "/")
	cur := t.Root
	start := 0
	if aliases := t.Root.Child("aliases"); aliases != nil {
		if p := aliases.Property(parts[0]); p != nil {
			resolved, err := t.resolveAliasTarget(p)
			if err == nil && resolved != nil {
				cur = resolved
				start = 1
			}
		}
	}
	for _, part := range parts[start:] {
		if part == "" {
			continue
		}
		child := cur.Child(part)
		if child == nil {
			return nil, fmt.Errorf("no such node %q (path %q)", part, path)
		}
		cur = child
	}
	return cur, nil
}

// resolveAliasTarget dereferences an /aliases/NAME property to the node it
// designates, whether expressed as &label or as an absolute path string.
func (t *Tree) resolveAliasTarget(p *Property) (*Node, error) {
	if len(p.Chunks) == 0 {
		return nil, fmt.Errorf("empty alias property %q", p.Name)
	}
	switch c := p.Chunks[0].(type) {
	case LabelRefChunk:
		n, ok := t.Labels[c.Label]
		if !ok {
			return nil, fmt.Errorf("alias %q refers to unknown label %q", p.Name, c.Label)
		}
		return n, nil
	case CellsChunk:
		if len(c.Items) == 1 && c.Items[0].IsLabelRef() {
			n, ok := t.Labels[c.Items[0].Label]
			if !ok {
				return nil, fmt.Errorf("alias %q refers to unknown label %q", p.Name, c.Items[0].Label)
			}
			return n, nil
		}
	case StringChunk:
		return t.ResolvePath(c.Value)
	}
	return nil, fmt.Errorf("alias %q has unsupported value shape", p.Name)
}

// FindLabel looks up a node by label, failing if unknown.
func (t *Tree) FindLabel(label string) (*Node, error) {
	n, ok := t.Labels[label]
	if !ok {
		return nil, fmt.Errorf("unknown label %q", label)
	}
	return n, nil
}
