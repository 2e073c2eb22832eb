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

package dtparam

import (
	"strings"
	"testing"

	"github.com/google/dtoverlay/dts"
	"github.com/google/dtoverlay/dtsparse"
	"github.com/google/dtoverlay/fileopen"
	"github.com/google/dtoverlay/internal/dtstest"
	"github.com/google/dtoverlay/lexer"
)

func parseFixture(t *testing.T, content string) *dts.Tree {
	t.Helper()
	mem := fileopen.NewMem()
	if err := mem.Put("top.dts", content); err != nil {
		t.Fatal(err)
	}
	toks, _, err := lexer.Tokenize("top.dts", mem)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	tree, err := dtsparse.Parse(toks, "top.dts")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return tree
}

const fixtureSrc = `/dts-v1/;
/plugin/;
/ {
	fragment@0 {
		target-path = "/";
		__overlay__ {
			target: node@0 {
				reg = <0x7e804000 0x1000>;
				speed = <100000>;
				status = "disabled";
			};
		};
	};
	fragment@1 {
		target-path = "/";
		__dormant__ {
		};
	};
	__overrides__ {
		speed = <&target>, "speed:0";
		addr = <&target>, "reg:0=", <0x7e205000>;
		okay = <&target>, "status?";
		label = <&target>, "label";
		act_led_trigger = <0>, "+1";
	};
};
`

func TestApplyIntegerOverride(t *testing.T) {
	tree := parseFixture(t, fixtureSrc)
	if err := Apply(tree, Assignment{Name: "speed", Value: "400000", HasValue: true}); err != nil {
		t.Fatalf("Apply(speed): %v", err)
	}
	node, err := tree.FindLabel("target")
	if err != nil {
		t.Fatal(err)
	}
	p := node.Property("speed")
	if p == nil {
		t.Fatalf("speed property missing")
	}
	cc := p.Chunks[0].(dts.CellsChunk)
	if got := cc.Items[0].Text; got != "0x00061a80" {
		t.Errorf("speed cell = %q, want 0x00061a80 (400000 in hex)", got)
	}
}

func TestApplyIntegerOverrideRegRenamesUnitAddress(t *testing.T) {
	tree := parseFixture(t, fixtureSrc)
	if err := Apply(tree, Assignment{Name: "addr", HasValue: false}); err != nil {
		t.Fatalf("Apply(addr): %v", err)
	}
	node, err := tree.FindLabel("target")
	if err != nil {
		t.Fatal(err)
	}
	if node.Name != "node@7e205000" {
		t.Errorf("node.Name = %q, want %q", node.Name, "node@7e205000")
	}
}

func TestApplyBooleanOverride(t *testing.T) {
	tree := parseFixture(t, fixtureSrc)
	if err := Apply(tree, Assignment{Name: "okay", Value: "true", HasValue: true}); err != nil {
		t.Fatalf("Apply(okay): %v", err)
	}
	node, err := tree.FindLabel("target")
	if err != nil {
		t.Fatal(err)
	}
	if node.Property("status") == nil {
		t.Errorf("status property should have been created by the boolean override")
	}
}

func TestApplyStringOverride(t *testing.T) {
	tree := parseFixture(t, fixtureSrc)
	if err := Apply(tree, Assignment{Name: "label", Value: "sensor0", HasValue: true}); err != nil {
		t.Fatalf("Apply(label): %v", err)
	}
	node, err := tree.FindLabel("target")
	if err != nil {
		t.Fatal(err)
	}
	p := node.Property("label")
	sc, ok := p.Chunks[0].(dts.StringChunk)
	if !ok || sc.Value != "sensor0" {
		t.Errorf("label = %v, want \"sensor0\"", p.Chunks[0])
	}
}

func TestApplyFragmentEnable(t *testing.T) {
	tree := parseFixture(t, fixtureSrc)
	if err := Apply(tree, Assignment{Name: "act_led_trigger", Value: "", HasValue: false}); err != nil {
		t.Fatalf("Apply(act_led_trigger): %v", err)
	}
	frag := tree.Root.Child("fragment@1")
	if frag == nil {
		t.Fatalf("fragment@1 missing")
	}
	if frag.Child("__overlay__") == nil {
		t.Errorf("fragment@1 should have been enabled (renamed to __overlay__)")
	}
}

func TestApplyIntegerOverrideStringTypechar(t *testing.T) {
	tree := parseFixture(t, `/dts-v1/;
/plugin/;
/ {
	fragment@0 {
		target-path = "/";
		__overlay__ {
			target: node@0 {
				trigger = "none";
			};
		};
	};
	__overrides__ {
		trig = <&target>, "trigger\"0";
	};
};
`)
	if err := Apply(tree, Assignment{Name: "trig", Value: "heartbeat", HasValue: true}); err != nil {
		t.Fatalf("Apply(trig): %v", err)
	}
	node, err := tree.FindLabel("target")
	if err != nil {
		t.Fatal(err)
	}
	p := node.Property("trigger")
	sc, ok := p.Chunks[0].(dts.StringChunk)
	if !ok || sc.Value != "heartbeat" {
		t.Errorf("trigger = %v, want \"heartbeat\"", p.Chunks[0])
	}
}

// TestApplyIntegerOverrideIdempotent covers spec.md §8's idempotence
// property: applying the same assignment a second time leaves the tree in
// the same state a single application produced.
func TestApplyIntegerOverrideIdempotent(t *testing.T) {
	once := parseFixture(t, fixtureSrc)
	twice := parseFixture(t, fixtureSrc)
	a := Assignment{Name: "speed", Value: "400000", HasValue: true}

	if err := Apply(once, a); err != nil {
		t.Fatalf("Apply(speed) once: %v", err)
	}
	if err := Apply(twice, a); err != nil {
		t.Fatalf("Apply(speed) first of twice: %v", err)
	}
	if err := Apply(twice, a); err != nil {
		t.Fatalf("Apply(speed) second of twice: %v", err)
	}

	if diff := dtstest.Diff(twice.Root, once.Root); len(diff) != 0 {
		t.Errorf("applying %v twice diverged from applying it once:\n%s", a, strings.Join(diff, "\n"))
	}
}

// TestApplyCommutes covers spec.md §8's commutativity property: two
// assignments touching disjoint properties produce the same tree
// regardless of application order.
func TestApplyCommutes(t *testing.T) {
	speed := Assignment{Name: "speed", Value: "400000", HasValue: true}
	label := Assignment{Name: "label", Value: "sensor0", HasValue: true}

	forward := parseFixture(t, fixtureSrc)
	if err := Apply(forward, speed); err != nil {
		t.Fatalf("Apply(speed): %v", err)
	}
	if err := Apply(forward, label); err != nil {
		t.Fatalf("Apply(label): %v", err)
	}

	backward := parseFixture(t, fixtureSrc)
	if err := Apply(backward, label); err != nil {
		t.Fatalf("Apply(label): %v", err)
	}
	if err := Apply(backward, speed); err != nil {
		t.Fatalf("Apply(speed): %v", err)
	}

	if diff := dtstest.Diff(backward.Root, forward.Root); len(diff) != 0 {
		t.Errorf("applying speed/label in opposite orders diverged:\n%s", strings.Join(diff, "\n"))
	}
}

func TestApplyUnknownParameterFails(t *testing.T) {
	tree := parseFixture(t, fixtureSrc)
	if err := Apply(tree, Assignment{Name: "bogus", HasValue: false}); err == nil {
		t.Errorf("Apply(bogus) should fail: no such override parameter")
	}
}
