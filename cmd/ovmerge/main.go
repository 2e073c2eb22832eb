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

// Command ovmerge parses, merges and emits Device Tree Source overlays
// (spec.md §6).
package main

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/pborman/getopt"

	"github.com/google/dtoverlay/dtparam"
	"github.com/google/dtoverlay/dts"
	"github.com/google/dtoverlay/dtsparse"
	"github.com/google/dtoverlay/emit"
	"github.com/google/dtoverlay/fileopen"
	"github.com/google/dtoverlay/lexer"
	"github.com/google/dtoverlay/overlay"
	"github.com/google/dtoverlay/ovlog"
)

func main() {
	argv := os.Args[1:]
	if hasFlag(argv, 'r') {
		redone, err := readRedoLine(os.Stdin)
		if err != nil {
			fmt.Fprintln(os.Stderr, "ovmerge:", err)
			os.Exit(1)
		}
		argv = redone
	}
	os.Exit(run(argv))
}

// hasFlag reports whether short option c appears among argv's clustered
// short-option arguments, without requiring a full getopt pass (spec.md §6's
// -r must run before the real argv is known).
func hasFlag(argv []string, c byte) bool {
	for _, a := range argv {
		if a == "--" {
			return false
		}
		if len(a) > 1 && a[0] == '-' && a[1] != '-' && strings.IndexByte(a, c) >= 0 {
			return true
		}
	}
	return false
}

func run(argv []string) int {
	set := getopt.New()
	branch := set.String('b', "", "read sources from a git branch instead of the local filesystem")
	redoComment := set.Bool('c', "prepend a reproducibility comment to the output")
	help := set.Bool('h', "show usage")
	includeReport := set.Bool('i', "print the include hierarchy and exit")
	piExtras := set.Bool('p', "enable Pi extras preprocessing of the base")
	sorted := set.Bool('s', "sort children, properties and labels on emit")
	trace := set.Bool('t', "trace parsing to stderr")
	warnings := set.Bool('w', "emit warnings")

	set.Parse(append([]string{"ovmerge"}, argv...))

	if *help {
		set.PrintUsage(os.Stderr)
		return 1
	}

	ovlog.SetTrace(*trace)
	ovlog.SetWarnings(*warnings)
	defer ovlog.Flush()

	var opener fileopen.Opener = fileopen.Local{}
	if *branch != "" {
		opener = fileopen.NewGitBranch(*branch)
	}

	specs, err := parseOvspecs(set.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, "ovmerge:", err)
		return 1
	}
	if len(specs) == 0 {
		fmt.Fprintln(os.Stderr, "ovmerge: no ovspecs given")
		return 1
	}

	if *includeReport {
		if err := printIncludeReport(specs[0].name, opener); err != nil {
			fmt.Fprintln(os.Stderr, "ovmerge:", err)
			return 1
		}
		return 0
	}

	trees := make([]*dts.Tree, len(specs))
	for i, sp := range specs {
		t, err := loadAndApply(sp, opener)
		if err != nil {
			fmt.Fprintln(os.Stderr, "ovmerge:", err)
			return 1
		}
		trees[i] = t
	}

	result, err := compose(trees, specs, *piExtras)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ovmerge:", err)
		return 1
	}

	w := bufio.NewWriter(os.Stdout)
	if *redoComment {
		fmt.Fprintln(w, "// redo: ovmerge "+quoteArgs(argv))
	}
	if err := emit.Write(w, result, emit.Options{Sorted: *sorted}); err != nil {
		fmt.Fprintln(os.Stderr, "ovmerge:", err)
		return 1
	}
	w.Flush()
	return 0
}

// ovspec is one parsed positional argument: NAME(,PARAM(=VAL)?)* or
// NAME:PARAM(=VAL)?... (spec.md §6).
type ovspec struct {
	name        string
	params      []dtparam.Assignment
	trailingSep bool // true if the spec ends in a bare separator with no param
}

var ovspecHeadRe = regexp.MustCompile(`^([^,:]+)([,:]?)(.*)$`)

func parseOvspecs(args []string) ([]ovspec, error) {
	specs := make([]ovspec, 0, len(args))
	for _, arg := range args {
		m := ovspecHeadRe.FindStringSubmatch(arg)
		if m == nil {
			return nil, fmt.Errorf("malformed ovspec %q", arg)
		}
		sp := ovspec{name: m[1]}
		rest := m[3]
		if m[2] != "" {
			if rest == "" {
				sp.trailingSep = true
			}
			for _, part := range strings.Split(rest, ",") {
				if part == "" {
					continue
				}
				a := dtparam.Assignment{}
				if idx := strings.IndexByte(part, '='); idx >= 0 {
					a.Name = part[:idx]
					a.Value = part[idx+1:]
					a.HasValue = true
				} else {
					a.Name = part
				}
				sp.params = append(sp.params, a)
			}
		}
		specs = append(specs, sp)
	}
	return specs, nil
}

func resolveSourcePath(name string) string {
	if strings.Contains(name, ".") {
		return name
	}
	return name + ".dts"
}

func loadAndApply(sp ovspec, opener fileopen.Opener) (*dts.Tree, error) {
	path := resolveSourcePath(sp.name)
	toks, _, err := lexer.Tokenize(path, opener)
	if err != nil {
		return nil, err
	}
	tree, err := dtsparse.Parse(toks, path)
	if err != nil {
		return nil, err
	}
	for _, a := range sp.params {
		if err := dtparam.Apply(tree, a); err != nil {
			return nil, fmt.Errorf("%s: %w", sp.name, err)
		}
	}
	if len(sp.params) > 0 || sp.trailingSep {
		tree.RemoveChildNamed(tree.Root, "__overrides__")
	}
	return tree, nil
}

// compose implements spec.md §2's top-level data flow: if the first tree is
// a plugin, the rest are merged into it; otherwise the first is a base and
// the rest are merged together then applied onto it.
func compose(trees []*dts.Tree, specs []ovspec, piExtras bool) (*dts.Tree, error) {
	first := trees[0]
	rest := trees[1:]

	if first.Plugin {
		for i, t := range rest {
			if !t.Plugin {
				return nil, fmt.Errorf("%s: expected a plugin overlay", specs[i+1].name)
			}
			if err := overlay.MergePlugins(first, t); err != nil {
				return nil, fmt.Errorf("merging %s: %w", specs[i+1].name, err)
			}
		}
		return first, nil
	}

	if piExtras {
		if err := applyPiExtras(first); err != nil {
			return nil, fmt.Errorf("pi extras: %w", err)
		}
	}
	if len(rest) == 0 {
		return first, nil
	}

	if first.Root.Child("__symbols__") == nil {
		first.NewChild(first.Root, "__symbols__")
	}

	combined := rest[0]
	for i, t := range rest[1:] {
		if err := overlay.MergePlugins(combined, t); err != nil {
			return nil, fmt.Errorf("merging %s: %w", specs[i+2].name, err)
		}
	}
	if err := overlay.Apply(first, combined); err != nil {
		return nil, fmt.Errorf("applying overlay: %w", err)
	}
	return first, nil
}

// applyPiExtras implements the -p preprocessing step of spec.md §6: alias
// i2c and i2c_arm to whatever /aliases/i2c1 resolves to.
func applyPiExtras(base *dts.Tree) error {
	aliases := base.Root.Child("aliases")
	if aliases == nil {
		return fmt.Errorf("no /aliases node")
	}
	p := aliases.Property("i2c1")
	if p == nil {
		return fmt.Errorf("no /aliases/i2c1 property")
	}
	if len(p.Chunks) != 1 {
		return fmt.Errorf("malformed /aliases/i2c1 property")
	}
	var label string
	switch c := p.Chunks[0].(type) {
	case dts.LabelRefChunk:
		label = c.Label
	case dts.CellsChunk:
		if len(c.Items) == 1 && c.Items[0].IsLabelRef() {
			label = c.Items[0].Label
		}
	}
	if label == "" {
		return fmt.Errorf("/aliases/i2c1 is not a label reference")
	}
	target, ok := base.Labels[label]
	if !ok {
		return fmt.Errorf("/aliases/i2c1 refers to unknown label %q", label)
	}
	ref := []dts.Chunk{dts.LabelRefChunk{Label: label}}
	if err := base.SetProperty(aliases, "i2c", ref); err != nil {
		return err
	}
	if err := base.SetProperty(aliases, "i2c_arm", ref); err != nil {
		return err
	}
	if err := base.AddLabel(target, "i2c"); err != nil {
		return err
	}
	return base.AddLabel(target, "i2c_arm")
}

func printIncludeReport(name string, opener fileopen.Opener) error {
	path := resolveSourcePath(name)
	_, events, err := lexer.Tokenize(path, opener)
	if err != nil {
		return err
	}
	for _, ev := range events {
		indent := strings.Repeat("  ", ev.Depth)
		if ev.IncludedBy == "" {
			fmt.Printf("%s%s\n", indent, ev.File)
		} else {
			fmt.Printf("%s%s (included by %s)\n", indent, ev.File, ev.IncludedBy)
		}
	}
	return nil
}

var redoLineRe = regexp.MustCompile(`^// redo: ovmerge (.*)$`)

// readRedoLine reads the first line of r and splits the captured argument
// text into argv, honoring single-quoted tokens (spec.md §6's -r/-c pair).
func readRedoLine(r *os.File) ([]string, error) {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		return nil, fmt.Errorf("stdin is empty, expected a redo comment")
	}
	m := redoLineRe.FindStringSubmatch(sc.Text())
	if m == nil {
		return nil, fmt.Errorf("stdin's first line does not match \"// redo: ovmerge ...\"")
	}
	return splitShellWords(m[1]), nil
}

// splitShellWords splits s on whitespace, treating '...' runs as single
// tokens. It reverses quoteArgs below for arguments without a single quote;
// backslash escapes are not interpreted, so the close-escape-reopen
// sequence quoteArgs writes for an embedded single quote is not turned back
// into one.
func splitShellWords(s string) []string {
	var words []string
	var cur strings.Builder
	inQuote := false
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
		case (c == ' ' || c == '\t') && !inQuote:
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return words
}

// quoteArgs re-quotes argv for the -c redo comment, single-quoting any
// argument containing whitespace (spec.md §6).
func quoteArgs(argv []string) string {
	parts := make([]string, len(argv))
	for i, a := range argv {
		if strings.ContainsAny(a, " \t") {
			parts[i] = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
		} else {
			parts[i] = a
		}
	}
	return strings.Join(parts, " ")
}
