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

package dtsparse

import (
	"fmt"
	"strconv"

	"github.com/google/dtoverlay/dts"
	"github.com/google/dtoverlay/lexer"
	"github.com/google/dtoverlay/ovlog"
)

// Parse builds a dts.Tree from a token stream produced by lexer.Tokenize.
// topFile names the top-level source, used for diagnostics until the first
// file-marker token is consumed.
func Parse(toks []lexer.Token, topFile string) (*dts.Tree, error) {
	c := &cursor{toks: toks, file: topFile}
	tree := dts.NewTree()
	if err := parseHeader(c, tree); err != nil {
		return nil, err
	}
	if err := parseTopLevel(c, tree); err != nil {
		return nil, err
	}
	return tree, nil
}

func parseHeader(c *cursor, tree *dts.Tree) error {
	seenDtsV1 := false
	for {
		t, ok := c.peek()
		if !ok || t.Kind != lexer.Directive {
			break
		}
		switch t.Text {
		case lexer.Include:
			if err := parseIncludeDirective(c, tree); err != nil {
				return err
			}
		case lexer.DtsV1:
			if seenDtsV1 {
				return fmt.Errorf("%s: duplicate /dts-v1/;", c.file)
			}
			c.advance()
			if err := c.expectPunct(";"); err != nil {
				return err
			}
			seenDtsV1 = true
		case lexer.Plugin:
			if !seenDtsV1 {
				return fmt.Errorf("%s: /plugin/; must follow /dts-v1/;", c.file)
			}
			c.advance()
			if err := c.expectPunct(";"); err != nil {
				return err
			}
			tree.Plugin = true
		case lexer.Memreserve:
			if !seenDtsV1 {
				return fmt.Errorf("%s: /memreserve/ must follow /dts-v1/;", c.file)
			}
			c.advance()
			start, err := c.expectUintLiteral()
			if err != nil {
				return err
			}
			length, err := c.expectUintLiteral()
			if err != nil {
				return err
			}
			if err := c.expectPunct(";"); err != nil {
				return err
			}
			tree.AddMemreserve(dts.Memreserve{Start: start, Length: length})
		default:
			// Not a header directive (e.g. /delete-node/, /bits/ belong to
			// the body grammar); stop accepting header items.
			goto doneHeader
		}
	}
doneHeader:
	if !seenDtsV1 {
		return fmt.Errorf("%s: missing required /dts-v1/;", c.file)
	}
	return nil
}

func (c *cursor) expectUintLiteral() (uint64, error) {
	t, ok := c.advance()
	if !ok || t.Kind != lexer.Ident {
		return 0, fmt.Errorf("%s: expected an integer literal, got %s", c.file, describe(t, ok))
	}
	return dts.ParseLiteralUint(t.Text)
}

func parseIncludeDirective(c *cursor, tree *dts.Tree) error {
	c.advance()
	lit, ok := c.advance()
	if !ok || lit.Kind != lexer.String {
		return fmt.Errorf("%s: expected an include literal after #include, got %s", c.file, describe(lit, ok))
	}
	tree.AddInclude(dts.IncludeRef{Text: lit.Text})
	return nil
}

func parseTopLevel(c *cursor, tree *dts.Tree) error {
	for {
		t, ok := c.peek()
		if !ok {
			return nil
		}
		switch {
		case t.Kind == lexer.Directive && t.Text == lexer.Include:
			if err := parseIncludeDirective(c, tree); err != nil {
				return err
			}
		case t.Kind == lexer.Directive && t.Text == lexer.DeleteNode:
			c.advance()
			lref, ok := c.advance()
			if !ok || lref.Kind != lexer.LabelRef {
				return fmt.Errorf("%s: expected &label after /delete-node/, got %s", c.file, describe(lref, ok))
			}
			node, err := tree.FindLabel(lref.Text)
			if err != nil {
				return fmt.Errorf("%s: %w", c.file, err)
			}
			tree.RemoveNode(node)
			if err := c.expectPunct(";"); err != nil {
				return err
			}
		case t.Kind == lexer.Punct && t.Text == "/":
			c.advance()
			if err := c.expectPunct("{"); err != nil {
				return err
			}
			if err := parseNodeBody(c, tree, tree.Root); err != nil {
				return err
			}
			if err := c.expectPunct("}"); err != nil {
				return err
			}
			if err := c.expectPunct(";"); err != nil {
				return err
			}
		case t.Kind == lexer.LabelDecl || t.Kind == lexer.LabelRef:
			labels, ref, err := collectLabelsAndRef(c)
			if err != nil {
				return err
			}
			node, err := tree.FindLabel(ref)
			if err != nil {
				return fmt.Errorf("%s: %w", c.file, err)
			}
			for _, l := range labels {
				if err := tree.AddLabel(node, l); err != nil {
					return fmt.Errorf("%s: %w", c.file, err)
				}
			}
			if err := c.expectPunct("{"); err != nil {
				return err
			}
			if err := parseNodeBody(c, tree, node); err != nil {
				return err
			}
			if err := c.expectPunct("}"); err != nil {
				return err
			}
			if err := c.expectPunct(";"); err != nil {
				return err
			}
		default:
			ovlog.Warningf("%s: junk after top level: %s", c.file, t)
			c.advance()
		}
	}
}

// collectLabelsAndRef consumes a run of "label:" declarations followed by
// the mandatory "&ident" that they attach to, per the top-level reopening
// grammar of spec.md §4.2.
func collectLabelsAndRef(c *cursor) (labels []string, ref string, err error) {
	for {
		t, ok := c.peek()
		if !ok {
			return nil, "", fmt.Errorf("%s: unexpected end of input in label list", c.file)
		}
		if t.Kind != lexer.LabelDecl {
			break
		}
		c.advance()
		labels = append(labels, t.Text)
	}
	t, ok := c.advance()
	if !ok || t.Kind != lexer.LabelRef {
		return nil, "", fmt.Errorf("%s: expected &label, got %s", c.file, describe(t, ok))
	}
	return labels, t.Text, nil
}

// parseNodeBody consumes the body of a node ("{ ... }"'s interior, the
// closing "}" left unconsumed) per spec.md §4.2.
func parseNodeBody(c *cursor, tree *dts.Tree, node *dts.Node) error {
	for {
		t, ok := c.peek()
		if !ok {
			return fmt.Errorf("%s: unexpected end of input inside node %q", c.file, node.Name)
		}
		if t.Kind == lexer.Punct && t.Text == "}" {
			return nil
		}
		if t.Kind == lexer.Directive && t.Text == lexer.DeleteNode {
			c.advance()
			name, err := c.expectIdent()
			if err != nil {
				return err
			}
			if err := c.expectPunct(";"); err != nil {
				return err
			}
			tree.RemoveChildNamed(node, name)
			continue
		}
		if t.Kind == lexer.Directive && t.Text == lexer.DeleteProperty {
			c.advance()
			name, err := c.expectIdent()
			if err != nil {
				return err
			}
			if err := c.expectPunct(";"); err != nil {
				return err
			}
			tree.RemoveProperty(node, name)
			continue
		}
		var labels []string
		for {
			t2, ok := c.peek()
			if !ok {
				return fmt.Errorf("%s: unexpected end of input in node %q", c.file, node.Name)
			}
			if t2.Kind != lexer.LabelDecl {
				break
			}
			c.advance()
			labels = append(labels, t2.Text)
		}
		name, err := c.expectIdent()
		if err != nil {
			return err
		}
		nt, ok := c.peek()
		if !ok {
			return fmt.Errorf("%s: unexpected end of input after %q", c.file, name)
		}
		switch {
		case nt.Kind == lexer.Punct && nt.Text == "{":
			child := tree.GetOrAddChild(node, name)
			for _, l := range labels {
				if err := tree.AddLabel(child, l); err != nil {
					return fmt.Errorf("%s: %w", c.file, err)
				}
			}
			c.advance()
			if err := parseNodeBody(c, tree, child); err != nil {
				return err
			}
			if err := c.expectPunct("}"); err != nil {
				return err
			}
			if err := c.expectPunct(";"); err != nil {
				return err
			}
		case nt.Kind == lexer.Punct && nt.Text == "=":
			if len(labels) > 0 {
				ovlog.Warningf("%s: labels attached to property %q are ignored", c.file, name)
			}
			c.advance()
			chunks, err := parseValueList(c)
			if err != nil {
				return err
			}
			if err := c.expectPunct(";"); err != nil {
				return err
			}
			if err := tree.SetProperty(node, name, chunks); err != nil {
				return fmt.Errorf("%s: %w", c.file, err)
			}
		case nt.Kind == lexer.Punct && nt.Text == ";":
			if len(labels) > 0 {
				ovlog.Warningf("%s: labels attached to property %q are ignored", c.file, name)
			}
			c.advance()
			if err := tree.SetProperty(node, name, nil); err != nil {
				return fmt.Errorf("%s: %w", c.file, err)
			}
		default:
			return fmt.Errorf("%s: unexpected token after %q: %s", c.file, name, nt)
		}
	}
}

func parseValueList(c *cursor) ([]dts.Chunk, error) {
	var chunks []dts.Chunk
	for {
		chunk, err := parseChunk(c)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
		t, ok := c.peek()
		if ok && t.Kind == lexer.Punct && t.Text == "," {
			c.advance()
			continue
		}
		break
	}
	return chunks, nil
}

func parseChunk(c *cursor) (dts.Chunk, error) {
	t, ok := c.advance()
	if !ok {
		return nil, fmt.Errorf("%s: unexpected end of input in property value", c.file)
	}
	switch {
	case t.Kind == lexer.String:
		return dts.StringChunk{Value: t.Text}, nil
	case t.Kind == lexer.LabelRef:
		return dts.LabelRefChunk{Label: t.Text}, nil
	case t.Kind == lexer.Directive && t.Text == lexer.Bits:
		nt, ok := c.advance()
		if !ok || nt.Kind != lexer.Ident {
			return nil, fmt.Errorf("%s: expected a bit width after /bits/, got %s", c.file, describe(nt, ok))
		}
		width, err := strconv.Atoi(nt.Text)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid /bits/ width %q", c.file, nt.Text)
		}
		switch width {
		case 8, 16, 32, 64:
		default:
			return nil, fmt.Errorf("%s: invalid /bits/ size %d, must be one of 8/16/32/64", c.file, width)
		}
		if err := c.expectPunct("<"); err != nil {
			return nil, err
		}
		return parseCells(c, width/8)
	case t.Kind == lexer.Punct && t.Text == "<":
		return parseCells(c, dts.DefaultElemSize)
	case t.Kind == lexer.Punct && t.Text == "[":
		return parseBytes(c)
	}
	return nil, fmt.Errorf("%s: unexpected token in property value: %s", c.file, t)
}

func parseCells(c *cursor, elemSize int) (dts.Chunk, error) {
	var items []dts.CellTerm
	for {
		t, ok := c.peek()
		if !ok {
			return nil, fmt.Errorf("%s: unterminated cells vector", c.file)
		}
		if t.Kind == lexer.Punct && t.Text == ">" {
			c.advance()
			break
		}
		c.advance()
		switch t.Kind {
		case lexer.LabelRef:
			items = append(items, dts.CellTerm{Label: t.Text})
		case lexer.Ident:
			items = append(items, dts.CellTerm{Text: t.Text})
		default:
			return nil, fmt.Errorf("%s: unexpected token in cells vector: %s", c.file, t)
		}
	}
	return dts.CellsChunk{ElemSize: elemSize, Items: items}, nil
}

func parseBytes(c *cursor) (dts.Chunk, error) {
	var items []string
	for {
		t, ok := c.peek()
		if !ok {
			return nil, fmt.Errorf("%s: unterminated byte vector", c.file)
		}
		if t.Kind == lexer.Punct && t.Text == "]" {
			c.advance()
			break
		}
		c.advance()
		if t.Kind != lexer.Ident {
			return nil, fmt.Errorf("%s: unexpected token in byte vector: %s", c.file, t)
		}
		items = append(items, t.Text)
	}
	return dts.BytesChunk{Items: items}, nil
}
