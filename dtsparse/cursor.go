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

// Package dtsparse consumes the lexer's token stream and builds a dts.Tree
// (spec.md §4.2).
package dtsparse

import (
	"fmt"

	"github.com/google/dtoverlay/lexer"
	"github.com/google/dtoverlay/ovlog"
)

// cursor is the parser's (tokens, index, current_file) triple, generalized
// from a push-pop result-stack discipline to a linear token cursor instead
// of a PEG memo table.
type cursor struct {
	toks []lexer.Token
	i    int
	file string
}

// skipMarkers advances past any FileMarker tokens at the cursor, updating
// the current filename for diagnostics (spec.md §4.2: "File-marker tokens
// are transparently skipped, updating current_file for diagnostics").
func (c *cursor) skipMarkers() {
	for c.i < len(c.toks) && c.toks[c.i].Kind == lexer.FileMarker {
		c.file = c.toks[c.i].Text
		c.i++
	}
}

func (c *cursor) peek() (lexer.Token, bool) {
	c.skipMarkers()
	if c.i >= len(c.toks) {
		return lexer.Token{}, false
	}
	return c.toks[c.i], true
}

func (c *cursor) advance() (lexer.Token, bool) {
	t, ok := c.peek()
	if ok {
		ovlog.Tracef("%s: consume %v", c.file, t)
		c.i++
	}
	return t, ok
}

// expectPunct advances if the head token is the punctuation s and fails
// otherwise (spec.md §4.2's expect(s)).
func (c *cursor) expectPunct(s string) error {
	t, ok := c.advance()
	if !ok || t.Kind != lexer.Punct || t.Text != s {
		return fmt.Errorf("%s: expected %q, got %s", c.file, s, describe(t, ok))
	}
	return nil
}

func (c *cursor) expectIdent() (string, error) {
	t, ok := c.advance()
	if !ok || t.Kind != lexer.Ident {
		return "", fmt.Errorf("%s: expected an identifier, got %s", c.file, describe(t, ok))
	}
	return t.Text, nil
}

func describe(t lexer.Token, ok bool) string {
	if !ok {
		return "end of input"
	}
	return t.String()
}
