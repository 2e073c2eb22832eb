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
	"testing"

	"github.com/google/dtoverlay/dts"
	"github.com/google/dtoverlay/fileopen"
	"github.com/google/dtoverlay/lexer"
)

func parseString(t *testing.T, content string) *dts.Tree {
	t.Helper()
	mem := fileopen.NewMem()
	if err := mem.Put("top.dts", content); err != nil {
		t.Fatal(err)
	}
	toks, _, err := lexer.Tokenize("top.dts", mem)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	tree, err := Parse(toks, "top.dts")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return tree
}

func TestParseMinimalPlugin(t *testing.T) {
	tree := parseString(t, `/dts-v1/;
/plugin/;
/ {
	fragment@0 {
		target-path = "/";
		__overlay__ {
			foo = "bar";
		};
	};
};
`)
	if !tree.Plugin {
		t.Errorf("tree.Plugin = false, want true")
	}
	frag := tree.Root.Child("fragment@0")
	if frag == nil {
		t.Fatalf("fragment@0 not found")
	}
	overlay := frag.Child("__overlay__")
	if overlay == nil {
		t.Fatalf("__overlay__ not found")
	}
	p := overlay.Property("foo")
	if p == nil || len(p.Chunks) != 1 {
		t.Fatalf("foo property missing or malformed")
	}
	if sc, ok := p.Chunks[0].(dts.StringChunk); !ok || sc.Value != "bar" {
		t.Errorf("foo = %v, want \"bar\"", p.Chunks[0])
	}
}

func TestParseMissingDtsV1Fails(t *testing.T) {
	mem := fileopen.NewMem()
	mem.Put("top.dts", "/ {};\n")
	toks, _, err := lexer.Tokenize("top.dts", mem)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Parse(toks, "top.dts"); err == nil {
		t.Errorf("Parse should fail without /dts-v1/;")
	}
}

func TestParseLabelReopening(t *testing.T) {
	tree := parseString(t, `/dts-v1/;
/ {
	foo: node@0 {
		a = <1>;
	};
};
&foo {
	b = <2>;
};
`)
	node, err := tree.FindLabel("foo")
	if err != nil {
		t.Fatalf("FindLabel(foo): %v", err)
	}
	if node.Property("a") == nil || node.Property("b") == nil {
		t.Errorf("node@0 should have both properties a and b after reopening, got %+v", node.Properties)
	}
}

func TestParseDeleteNode(t *testing.T) {
	tree := parseString(t, `/dts-v1/;
/ {
	foo: node@0 {
	};
};
/delete-node/ &foo;
`)
	if _, err := tree.FindLabel("foo"); err == nil {
		t.Errorf("label foo should have been removed along with its node")
	}
	if tree.Root.Child("node@0") != nil {
		t.Errorf("node@0 should have been deleted")
	}
}

func TestParseMemreserveAndInclude(t *testing.T) {
	tree := parseString(t, `/dts-v1/;
#include "foo.h"
/memreserve/ 0x10000000 0x1000;
/ {};
`)
	if len(tree.Includes) != 1 || tree.Includes[0].Text != `"foo.h"` {
		t.Errorf("Includes = %v", tree.Includes)
	}
	if len(tree.Memreserves) != 1 || tree.Memreserves[0] != (dts.Memreserve{Start: 0x10000000, Length: 0x1000}) {
		t.Errorf("Memreserves = %v", tree.Memreserves)
	}
}

func TestParseCellsWithBits(t *testing.T) {
	tree := parseString(t, `/dts-v1/;
/ {
	prop = /bits/ 8 <1 2 3>;
};
`)
	p := tree.Root.Property("prop")
	if p == nil || len(p.Chunks) != 1 {
		t.Fatalf("prop missing or malformed")
	}
	cc, ok := p.Chunks[0].(dts.CellsChunk)
	if !ok || cc.ElemSize != 1 || len(cc.Items) != 3 {
		t.Errorf("prop = %#v, want a 1-byte, 3-item CellsChunk", p.Chunks[0])
	}
}
