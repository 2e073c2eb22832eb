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

// Package emit serializes a dts.Tree back to DTS text (spec.md §4.6).
package emit

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/google/dtoverlay/dts"
	"github.com/google/dtoverlay/overlay"
)

// Options controls emission; the zero value emits in declaration order.
type Options struct {
	// Sorted enables the -s sorted-emission mode: properties sort by
	// name, children by overlay.AddressLess, and labels lexically.
	Sorted bool
}

// Write serializes t to w per spec.md §4.6: /dts-v1/;, optional /plugin/;,
// the include list, memreserves, then the node tree depth-first.
func Write(w io.Writer, t *dts.Tree, opts Options) error {
	bw := &errWriter{w: w}
	bw.printf("/dts-v1/;\n")
	if t.Plugin {
		bw.printf("/plugin/;\n")
	}
	for _, inc := range t.Includes {
		bw.printf("#include %s\n", inc.Text)
	}
	for _, m := range t.Memreserves {
		bw.printf("/memreserve/ 0x%x 0x%x;\n", m.Start, m.Length)
	}
	bw.printf("\n")
	writeNode(bw, t.Root, 0, opts)
	return bw.err
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...interface{}) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}

func writeNode(w *errWriter, n *dts.Node, depth int, opts Options) {
	indent := strings.Repeat("\t", depth)
	labels := append([]string(nil), n.Labels...)
	if opts.Sorted {
		sort.Strings(labels)
	}
	name := n.Name
	if depth == 0 {
		name = "/"
	}
	if len(labels) > 0 {
		w.printf("%s%s: %s {\n", indent, strings.Join(labels, ": "), name)
	} else {
		w.printf("%s%s {\n", indent, name)
	}

	props := n.Properties
	if opts.Sorted {
		props = append([]*dts.Property(nil), props...)
		sort.Slice(props, func(i, j int) bool { return props[i].Name < props[j].Name })
	}
	for _, p := range props {
		writeProperty(w, p, depth+1)
	}

	children := n.Children
	if opts.Sorted {
		children = append([]*dts.Node(nil), children...)
		sort.Slice(children, func(i, j int) bool { return overlay.AddressLess(children[i], children[j]) })
	}
	for _, c := range children {
		writeNode(w, c, depth+1, opts)
	}

	w.printf("%s};\n", indent)
}

func writeProperty(w *errWriter, p *dts.Property, depth int) {
	indent := strings.Repeat("\t", depth)
	if p.Boolean() {
		w.printf("%s%s;\n", indent, p.Name)
		return
	}
	parts := make([]string, len(p.Chunks))
	for i, c := range p.Chunks {
		parts[i] = formatChunk(c)
	}
	w.printf("%s%s = %s;\n", indent, p.Name, strings.Join(parts, ", "))
}

// formatChunk serializes a single chunk per spec.md §4.6: "…" for strings,
// &L for a whole-value label reference, <items…> for cells, [items…] for
// bytes.
func formatChunk(c dts.Chunk) string {
	return c.String()
}
