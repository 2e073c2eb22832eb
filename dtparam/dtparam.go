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

// Package dtparam applies dtparam assignments against a tree's
// __overrides__ declarations (spec.md §4.3).
package dtparam

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/dtoverlay/dts"
)

// Assignment is one (name, optional value) parameter binding.
type Assignment struct {
	Name     string
	Value    string
	HasValue bool
}

// Apply runs a single assignment against tree's __overrides__ node
// (spec.md §4.3). It mutates tree in place.
func Apply(tree *dts.Tree, a Assignment) error {
	overrides := tree.Root.Child("__overrides__")
	if overrides == nil {
		return fmt.Errorf("dtparam %q: tree has no __overrides__ node", a.Name)
	}
	prop := overrides.Property(a.Name)
	if prop == nil {
		return fmt.Errorf("dtparam %q: no such override parameter", a.Name)
	}
	pairs, err := splitPairs(prop.Chunks)
	if err != nil {
		return fmt.Errorf("dtparam %q: %w", a.Name, err)
	}
	for _, pr := range pairs {
		if err := applyPair(tree, a, pr); err != nil {
			return fmt.Errorf("dtparam %q: %w", a.Name, err)
		}
	}
	return nil
}

// pair is one (target, declaration[, extra]) triple out of an
// __overrides__ property's chunk sequence.
type pair struct {
	target  dts.Chunk // a CellsChunk with a single term: &label or literal 0
	decl    string
	extra   dts.Chunk // present iff decl ends in "=" with nothing following
}

// splitPairs groups an __overrides__ property's flat chunk sequence into
// (target, declaration[, extra cells]) triples per spec.md §4.3 step 2.
func splitPairs(chunks []dts.Chunk) ([]pair, error) {
	var pairs []pair
	i := 0
	for i < len(chunks) {
		target, ok := chunks[i].(dts.CellsChunk)
		if !ok || len(target.Items) != 1 {
			return nil, fmt.Errorf("malformed override target at position %d", i)
		}
		i++
		if i >= len(chunks) {
			return nil, fmt.Errorf("override target with no declaration string")
		}
		declChunk, ok := chunks[i].(dts.StringChunk)
		if !ok {
			return nil, fmt.Errorf("override declaration at position %d is not a string", i)
		}
		i++
		p := pair{target: target, decl: declChunk.Value}
		if emptyAssignSuffix.MatchString(declChunk.Value) {
			if i >= len(chunks) {
				return nil, fmt.Errorf("override declaration %q expects a value chunk", declChunk.Value)
			}
			p.extra = chunks[i]
			i++
		}
		pairs = append(pairs, p)
	}
	return pairs, nil
}

var emptyAssignSuffix = regexp.MustCompile(`=$`)

func applyPair(tree *dts.Tree, a Assignment, p pair) error {
	targetCells := p.target.(dts.CellsChunk)
	term := targetCells.Items[0]
	isFragmentEnable := !term.IsLabelRef() && isZeroLiteral(term.Text)

	if isFragmentEnable {
		return applyFragmentEnable(tree, a, p.decl)
	}

	node, err := tree.FindLabel(term.Label)
	if err != nil {
		return err
	}

	switch {
	case strings.HasSuffix(p.decl, "?"):
		return applyBoolean(tree, node, a, p.decl)
	case integerDeclRe.MatchString(p.decl):
		return applyInteger(tree, node, a, p.decl, p.extra)
	default:
		return applyString(tree, node, a, p.decl)
	}
}

func isZeroLiteral(s string) bool {
	n, err := dts.ParseLiteralUint(strings.TrimSpace(s))
	return err == nil && n == 0
}

// integerDeclRe matches "PROP TYPECHAR OFFSET[=ASSIGN]" declarations,
// spec.md §4.3's integer override shape. The `"` typechar is the width-0
// string variant of this same grammar (spec.md §4.4).
var integerDeclRe = regexp.MustCompile(`^([A-Za-z0-9,._+#@-]+)([.;:#"])(\d+)(=(.*))?$`)

func typeWidth(typechar string) int {
	switch typechar {
	case ".":
		return 1
	case ";":
		return 2
	case ":":
		return 4
	case "#":
		return 8
	}
	return 0
}

// applyInteger implements the integer override of spec.md §4.3.
func applyInteger(tree *dts.Tree, node *dts.Node, a Assignment, decl string, extra dts.Chunk) error {
	m := integerDeclRe.FindStringSubmatch(decl)
	prop := m[1]
	typechar := m[2]
	offset, err := strconv.Atoi(m[3])
	if err != nil {
		return fmt.Errorf("invalid offset in %q: %w", decl, err)
	}
	hasAssign := m[4] != ""
	assignVal := m[5]

	width := typeWidth(typechar)
	isString := typechar == `"`

	var val string
	switch {
	case !hasAssign:
		if !a.HasValue {
			return fmt.Errorf("declaration %q requires a value but none was given", decl)
		}
		val = a.Value
	case assignVal != "":
		val = assignVal
	default:
		if extra == nil {
			return fmt.Errorf("declaration %q expects a trailing value chunk", decl)
		}
		cells, ok := extra.(dts.CellsChunk)
		if !ok || len(cells.Items) != 1 {
			return fmt.Errorf("declaration %q's trailing chunk must be a one-cell vector", decl)
		}
		val = cells.Items[0].String()
	}

	if isString {
		if prop == "reg" {
			return fmt.Errorf("\"reg\" cannot use the string type character")
		}
		return tree.SetProperty(node, prop, []dts.Chunk{dts.StringChunk{Value: val}})
	}

	if offset%width != 0 {
		return fmt.Errorf("offset %d is not a multiple of element size %d", offset, width)
	}

	// A bare &label term passes through untouched at width==4: it is
	// resolved later by the device tree compiler, not by this tool.
	trimmed := strings.TrimSpace(val)
	var term dts.CellTerm
	if strings.HasPrefix(trimmed, "&") {
		if width != 4 {
			return fmt.Errorf("label reference %q is only valid in a 4-byte cell", val)
		}
		term = dts.CellTerm{Label: trimmed[1:]}
	} else {
		n, err := dts.IntegerValue(val, width)
		if err != nil {
			return err
		}
		if prop == "reg" {
			rewriteUnitAddress(node, n)
		}
		term = dts.CellTerm{Text: formatElem(n, width)}
	}

	p := node.Property(prop)
	if p == nil {
		if prop == "reg" {
			// Silently dropped per spec.md §4.3, but the unit-address
			// rewrite above still applies.
			return nil
		}
		p = &dts.Property{Name: prop}
		node.Properties = append(node.Properties, p)
	}
	writeTermAtOffset(p, offset, width, term)
	return nil
}

// rewriteUnitAddress replaces the "@..." suffix of node's name with the
// hex form of val, per spec.md §4.3/§8.
func rewriteUnitAddress(node *dts.Node, val uint64) {
	base := dts.BaseName(node.Name)
	node.Name = fmt.Sprintf("%s@%x", base, val)
}

// writeTermAtOffset writes term at byte offset off within p's first chunk,
// zero-padding the cells before it. Only the first chunk is used: off is
// counted from its start, later chunks are not searched, and a first chunk
// that is not a cells vector of element size width is replaced by an empty
// one before the write.
func writeTermAtOffset(p *dts.Property, off, width int, term dts.CellTerm) {
	if len(p.Chunks) == 0 {
		p.Chunks = []dts.Chunk{dts.CellsChunk{ElemSize: width}}
	}
	cc, ok := p.Chunks[0].(dts.CellsChunk)
	if !ok || cc.ElemSize != width {
		cc = dts.CellsChunk{ElemSize: width}
	}
	index := off / width
	for len(cc.Items) <= index {
		cc.Items = append(cc.Items, dts.CellTerm{Text: "0"})
	}
	cc.Items[index] = term
	p.Chunks[0] = cc
}

func formatElem(n uint64, width int) string {
	return fmt.Sprintf("0x%0*x", width*2, n)
}

// applyBoolean implements the boolean override of spec.md §4.3.
func applyBoolean(tree *dts.Tree, node *dts.Node, a Assignment, decl string) error {
	prop := strings.TrimSuffix(decl, "?")
	var v string
	if a.HasValue {
		v = a.Value
	}
	b, err := dts.BooleanValue(v)
	if err != nil {
		return err
	}
	if b {
		if node.Property(prop) == nil {
			return tree.SetProperty(node, prop, nil)
		}
		return nil
	}
	tree.RemoveProperty(node, prop)
	return nil
}

// applyString implements the string override of spec.md §4.3: "PROP
// [= ASSIGN]".
func applyString(tree *dts.Tree, node *dts.Node, a Assignment, decl string) error {
	prop := decl
	assign := ""
	hasAssign := false
	if idx := strings.IndexByte(decl, '='); idx >= 0 {
		prop = decl[:idx]
		assign = decl[idx+1:]
		hasAssign = true
	}
	val := a.Value
	if hasAssign {
		val = assign
	} else if !a.HasValue {
		return fmt.Errorf("declaration %q requires a value but none was given", decl)
	}
	return tree.SetProperty(node, prop, []dts.Chunk{dts.StringChunk{Value: val}})
}

// applyFragmentEnable implements the fragment-enable override of
// spec.md §4.3.
func applyFragmentEnable(tree *dts.Tree, a Assignment, decl string) error {
	var v string
	if a.HasValue {
		v = a.Value
	}
	b, err := dts.BooleanValue(v)
	if err != nil {
		return err
	}
	ops := fragmentOpRe.FindAllStringSubmatch(decl, -1)
	if ops == nil {
		return fmt.Errorf("malformed fragment-enable declaration %q", decl)
	}
	for _, m := range ops {
		op, numStr := m[1], m[2]
		num, err := strconv.Atoi(numStr)
		if err != nil {
			return fmt.Errorf("invalid fragment number in %q: %w", decl, err)
		}
		switch op {
		case "!":
			b = !b
		case "+":
			b = true
		case "-":
			b = false
		case "=":
			// leave b unchanged
		}
		if err := setFragmentEnabled(tree, num, b); err != nil {
			return err
		}
	}
	return nil
}

var fragmentOpRe = regexp.MustCompile(`([=!+-])(\d+)`)

func setFragmentEnabled(tree *dts.Tree, num int, enabled bool) error {
	frag := findFragment(tree, num)
	if frag == nil {
		return fmt.Errorf("missing fragment-%d", num)
	}
	inner := frag.Child("__overlay__")
	if inner == nil {
		inner = frag.Child("__dormant__")
	}
	if inner == nil {
		return fmt.Errorf("fragment-%d has neither __overlay__ nor __dormant__", num)
	}
	if enabled {
		inner.Name = "__overlay__"
	} else {
		inner.Name = "__dormant__"
	}
	return nil
}

var fragmentNameRe = regexp.MustCompile(`^fragment[@-](\d+)$`)

func findFragment(tree *dts.Tree, num int) *dts.Node {
	for _, c := range tree.Root.Children {
		if m := fragmentNameRe.FindStringSubmatch(c.Name); m != nil {
			if n, _ := strconv.Atoi(m[1]); n == num {
				return c
			}
		}
	}
	return nil
}
