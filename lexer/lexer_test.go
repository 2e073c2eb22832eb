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

package lexer

import (
	"testing"

	"github.com/google/dtoverlay/fileopen"
)

func kinds(toks []Token) []Kind {
	var ks []Kind
	for _, t := range toks {
		if t.Kind == FileMarker {
			continue
		}
		ks = append(ks, t.Kind)
	}
	return ks
}

func TestTokenizeBasic(t *testing.T) {
	mem := fileopen.NewMem()
	mem.Put("top.dts", `/dts-v1/;
/ {
	foo: node@0 {
		prop = <1 2 &bar>;
		str = "hello";
		empty;
	};
};
`)
	toks, _, err := Tokenize("top.dts", mem)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	want := []Kind{
		Directive, Punct, // /dts-v1/ ;
		Punct, Punct, // / {
		LabelDecl, Ident, Punct, // foo: node@0 {
		Ident, Punct, Punct, Ident, Ident, LabelRef, Punct, Punct, // prop = < 1 2 &bar > ;
		Ident, Punct, String, Punct, // str = "hello" ;
		Ident, Punct, // empty ;
		Punct, Punct, // } ;
		Punct, Punct, // } ;
	}
	got := kinds(toks)
	if len(got) != len(want) {
		t.Fatalf("Tokenize produced %d non-marker tokens, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestTokenizeIncludeDtsi(t *testing.T) {
	mem := fileopen.NewMem()
	mem.Put("top.dts", "/include/ \"child.dtsi\"\n")
	mem.Put("child.dtsi", "/ { x; };\n")
	toks, events, err := Tokenize("top.dts", mem)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	var sawChild bool
	for _, tok := range toks {
		if tok.Kind == Ident && tok.Text == "x" {
			sawChild = true
		}
	}
	if !sawChild {
		t.Errorf("included file's tokens were not inlined: %v", toks)
	}
	if len(events) != 2 {
		t.Errorf("include hierarchy has %d events, want 2: %v", len(events), events)
	}
}

func TestTokenizeHeaderInclude(t *testing.T) {
	mem := fileopen.NewMem()
	mem.Put("top.dts", `#include "foo.h"
/ {};
`)
	toks, _, err := Tokenize("top.dts", mem)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if toks[1].Kind != Directive || toks[1].Text != Include {
		t.Fatalf("token[1] = %v, want Include directive", toks[1])
	}
	if toks[2].Kind != String {
		t.Fatalf("token[2] = %v, want a String token for the include literal", toks[2])
	}
}

func TestTokenizeCommentsAndIfdef(t *testing.T) {
	mem := fileopen.NewMem()
	mem.Put("top.dts", `/* comment
spanning lines */ foo;
// line comment
#ifdef UNDEFINED
bar;
#endif
baz;
`)
	toks, _, err := Tokenize("top.dts", mem)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	var idents []string
	for _, tok := range toks {
		if tok.Kind == Ident {
			idents = append(idents, tok.Text)
		}
	}
	// #if/#ifdef bodies are skipped unconditionally (the tool carries no
	// preprocessor macro state to evaluate them), so "bar" never appears.
	want := []string{"foo", "baz"}
	if len(idents) != len(want) {
		t.Fatalf("idents = %v, want %v", idents, want)
	}
	for i := range want {
		if idents[i] != want[i] {
			t.Errorf("idents[%d] = %q, want %q", i, idents[i], want[i])
		}
	}
}

func TestTokenizeUnknownDirectiveFails(t *testing.T) {
	mem := fileopen.NewMem()
	mem.Put("top.dts", "#bogus\n")
	if _, _, err := Tokenize("top.dts", mem); err == nil {
		t.Errorf("Tokenize should fail on an unrecognized preprocessor directive")
	}
}
