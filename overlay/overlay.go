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

// Package overlay composes plugin trees together and applies them onto a
// base tree (spec.md §4.5).
package overlay

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/dtoverlay/dts"
)

var fragNameRe = regexp.MustCompile(`^fragment([@-])(\d+)$`)

// fragmentCount counts root's direct fragment[@-]N children, used to
// recover a tree's fragment count when it was never explicitly tracked
// (freshly parsed trees carry FragCount == 0).
func fragmentCount(root *dts.Node) int {
	n := 0
	for _, c := range root.Children {
		if fragNameRe.MatchString(c.Name) {
			n++
		}
	}
	return n
}

// RenumberFragments walks o's root children in declaration order and
// renumbers every fragment[@-]N child to fragment<sep>(base+i), where i is
// its 0-based index among fragments, then rewrites any fragment-enable
// declarations in o's __overrides__ through the resulting remap
// (spec.md §4.5 "Renumber fragments").
func RenumberFragments(o *dts.Tree, base int) error {
	remap := make(map[int]int)
	i := 0
	for _, c := range o.Root.Children {
		m := fragNameRe.FindStringSubmatch(c.Name)
		if m == nil {
			continue
		}
		sep := m[1]
		n, err := strconv.Atoi(m[2])
		if err != nil {
			return fmt.Errorf("malformed fragment name %q: %w", c.Name, err)
		}
		remap[n] = base + i
		c.Name = fmt.Sprintf("fragment%s%d", sep, base+i)
		i++
	}
	o.FragCount = base + i

	overrides := o.Root.Child("__overrides__")
	if overrides == nil {
		return nil
	}
	for _, p := range overrides.Properties {
		if err := remapFragmentEnableChunks(p, remap); err != nil {
			return fmt.Errorf("__overrides__ property %q: %w", p.Name, err)
		}
	}
	return nil
}

// remapFragmentEnableChunks rewrites the numeric fragment indices embedded
// in any fragment-enable declaration string within p's chunk sequence
// (target LabelRef(0) followed by a declaration string), per the remap
// table built by RenumberFragments.
func remapFragmentEnableChunks(p *dts.Property, remap map[int]int) error {
	i := 0
	for i < len(p.Chunks) {
		target, ok := p.Chunks[i].(dts.CellsChunk)
		if !ok || len(target.Items) != 1 {
			i++
			continue
		}
		i++
		if i >= len(p.Chunks) {
			break
		}
		declChunk, ok := p.Chunks[i].(dts.StringChunk)
		if !ok {
			i++
			continue
		}
		if isZeroTerm(target.Items[0]) {
			rewritten, err := remapDeclString(declChunk.Value, remap)
			if err != nil {
				return err
			}
			p.Chunks[i] = dts.StringChunk{Value: rewritten}
		}
		if strings.HasSuffix(declChunk.Value, "=") {
			// Skip the trailing value chunk of an empty "=" assignment.
			i++
		}
		i++
	}
	return nil
}

func isZeroTerm(t dts.CellTerm) bool {
	if t.IsLabelRef() {
		return false
	}
	n, err := dts.ParseLiteralUint(strings.TrimSpace(t.Text))
	return err == nil && n == 0
}

var fragOpRe = regexp.MustCompile(`([=!+-])(\d+)`)

func remapDeclString(decl string, remap map[int]int) (string, error) {
	var outErr error
	out := fragOpRe.ReplaceAllStringFunc(decl, func(m string) string {
		sub := fragOpRe.FindStringSubmatch(m)
		n, err := strconv.Atoi(sub[2])
		if err != nil {
			outErr = err
			return m
		}
		nn, ok := remap[n]
		if !ok {
			nn = n
		}
		return sub[1] + strconv.Itoa(nn)
	})
	return out, outErr
}

// MergePlugins merges plugin o into base plugin b in place, per
// spec.md §4.5 "Merge (plugin + plugin)".
func MergePlugins(b, o *dts.Tree) error {
	for _, ref := range o.Includes {
		b.AddInclude(ref)
	}
	if b.FragCount == 0 {
		b.FragCount = fragmentCount(b.Root)
	}
	if err := RenumberFragments(o, b.FragCount); err != nil {
		return fmt.Errorf("renumbering fragments: %w", err)
	}

	labelMap, err := uniquifyLabels(b, o)
	if err != nil {
		return fmt.Errorf("uniquifying labels: %w", err)
	}
	rewriteCellLabelRefs(o.Root, labelMap)

	var stashedOverrides *dts.Node
	for i, c := range b.Root.Children {
		if c.Name == "__overrides__" {
			stashedOverrides = c
			b.Root.Children = append(b.Root.Children[:i], b.Root.Children[i+1:]...)
			break
		}
	}

	for _, frag := range o.Root.Children {
		if frag.Name == "__overrides__" {
			continue
		}
		b.AddChild(b.Root, frag)
	}
	b.FragCount = o.FragCount

	oOverrides := o.Root.Child("__overrides__")
	if oOverrides != nil {
		if stashedOverrides == nil {
			stashedOverrides = &dts.Node{Name: "__overrides__"}
		}
		for _, p := range oOverrides.Properties {
			if stashedOverrides.Property(p.Name) != nil {
				return fmt.Errorf("duplicate override parameter %q on plugin merge", p.Name)
			}
			stashedOverrides.Properties = append(stashedOverrides.Properties, p)
		}
	}
	if stashedOverrides != nil {
		b.AddChild(b.Root, stashedOverrides)
	}
	return nil
}

// uniquifyLabels implements the label-uniquification step of spec.md §4.5:
// every label of o that collides with one already used in b is renamed to
// the smallest free L_k suffix; the mapping old->new (identity for
// untouched labels) is returned for the subsequent CellTerm rewrite pass.
func uniquifyLabels(b, o *dts.Tree) (map[string]string, error) {
	mapping := make(map[string]string)
	oldLabels := o.Labels
	o.Labels = make(map[string]*dts.Node, len(oldLabels))
	for label, node := range oldLabels {
		newLabel := label
		if _, collides := b.Labels[label]; collides {
			k := 1
			for {
				candidate := fmt.Sprintf("%s_%d", label, k)
				if _, used := b.Labels[candidate]; !used {
					newLabel = candidate
					break
				}
				k++
			}
		}
		mapping[label] = newLabel
		if newLabel != label {
			for i, l := range node.Labels {
				if l == label {
					node.Labels[i] = newLabel
					break
				}
			}
		}
		o.Labels[newLabel] = node
		b.Labels[newLabel] = node
	}
	return mapping, nil
}

// rewriteCellLabelRefs walks every node under root (excluding root itself)
// rewriting &L terms nested inside Cells chunks through mapping.
// Top-level LabelRefChunk values are left untouched by design (spec.md §4.5,
// §9): base label references spanning fragments must remain valid.
func rewriteCellLabelRefs(root *dts.Node, mapping map[string]string) {
	for _, child := range root.Children {
		rewriteNodeCellLabelRefs(child, mapping)
	}
}

func rewriteNodeCellLabelRefs(n *dts.Node, mapping map[string]string) {
	for _, p := range n.Properties {
		for i, c := range p.Chunks {
			cc, ok := c.(dts.CellsChunk)
			if !ok {
				continue
			}
			for j, term := range cc.Items {
				if term.IsLabelRef() {
					if newLabel, ok := mapping[term.Label]; ok {
						cc.Items[j] = dts.CellTerm{Label: newLabel}
					}
				}
			}
			p.Chunks[i] = cc
		}
	}
	for _, child := range n.Children {
		rewriteNodeCellLabelRefs(child, mapping)
	}
}

// Apply applies plugin o onto base b in place, per spec.md §4.5
// "Apply (plugin → base)".
func Apply(b, o *dts.Tree) error {
	for _, ref := range o.Includes {
		b.AddInclude(ref)
	}
	for _, frag := range o.Root.Children {
		if frag.Name == "__overrides__" {
			continue
		}
		overlayNode := frag.Child("__overlay__")
		if overlayNode == nil {
			continue
		}
		target, err := resolveFragmentTarget(b, frag)
		if err != nil {
			return fmt.Errorf("%s: %w", frag.Name, err)
		}
		if err := applyInto(b, target, overlayNode); err != nil {
			return fmt.Errorf("%s: %w", frag.Name, err)
		}
	}
	return nil
}

func resolveFragmentTarget(b *dts.Tree, frag *dts.Node) (*dts.Node, error) {
	if p := frag.Property("target"); p != nil {
		if len(p.Chunks) != 1 {
			return nil, fmt.Errorf("malformed target property")
		}
		cc, ok := p.Chunks[0].(dts.CellsChunk)
		if !ok || len(cc.Items) != 1 || !cc.Items[0].IsLabelRef() {
			return nil, fmt.Errorf("target property is not a single &label cell")
		}
		n, ok := b.Labels[cc.Items[0].Label]
		if !ok {
			return nil, fmt.Errorf("unknown target label %q", cc.Items[0].Label)
		}
		return n, nil
	}
	if p := frag.Property("target-path"); p != nil {
		if len(p.Chunks) != 1 {
			return nil, fmt.Errorf("malformed target-path property")
		}
		sc, ok := p.Chunks[0].(dts.StringChunk)
		if !ok {
			return nil, fmt.Errorf("target-path property is not a string")
		}
		return b.ResolvePath(sc.Value)
	}
	return nil, fmt.Errorf("fragment has neither target nor target-path")
}

// applyInto implements apply(base, dst, src) from spec.md §4.5.
func applyInto(base *dts.Tree, dst, src *dts.Node) error {
	for _, p := range src.Properties {
		if err := base.SetProperty(dst, p.Name, p.Chunks); err != nil {
			return fmt.Errorf("property %q: %w", p.Name, err)
		}
	}
	for _, l := range src.Labels {
		if err := base.AddLabel(dst, l); err != nil {
			return err
		}
	}
	for _, c := range src.Children {
		child := base.GetOrAddChild(dst, c.Name)
		if err := applyInto(base, child, c); err != nil {
			return err
		}
	}
	return nil
}

// AddressLess implements the address comparator of spec.md §4.6, used for
// sorted emission: nodes with a unit address sort numerically by it, a node
// with one sorts before one without, and otherwise names compare
// lexicographically. A unit address of zero counts as present, so "foo@0"
// sorts before "bar".
func AddressLess(a, b *dts.Node) bool {
	aAddr, aHas := parseAddr(a.Name)
	bAddr, bHas := parseAddr(b.Name)
	switch {
	case aHas && bHas:
		if aAddr != bAddr {
			return aAddr < bAddr
		}
		return a.Name < b.Name
	case aHas != bHas:
		return aHas
	default:
		return a.Name < b.Name
	}
}

func parseAddr(name string) (uint64, bool) {
	addr := dts.UnitAddress(name)
	if addr == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(addr, 16, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
