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

package fileopen

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalOpen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "top.dts")
	if err := os.WriteFile(path, []byte("/dts-v1/;\n"), 0644); err != nil {
		t.Fatal(err)
	}
	var l Local
	rc, err := l.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "/dts-v1/;\n" {
		t.Errorf("content = %q", got)
	}
}

func TestLocalOpenMissing(t *testing.T) {
	var l Local
	if _, err := l.Open(filepath.Join(t.TempDir(), "nope.dts")); err == nil {
		t.Errorf("Open of a missing file should fail")
	}
}

func TestMemPutAndOpen(t *testing.T) {
	m := NewMem()
	if err := m.Put("include/foo.dtsi", "/ { foo; };\n"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	rc, err := m.Open("include/foo.dtsi")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "/ { foo; };\n" {
		t.Errorf("content = %q", got)
	}
}

func TestMemOpenMissing(t *testing.T) {
	m := NewMem()
	if _, err := m.Open("nope.dts"); err == nil {
		t.Errorf("Open of an unwritten path should fail")
	}
}

// fakeGitRun simulates "git cat-file -e" and "git show" against a fixed
// branch/path->content map, so GitBranch.Open can be tested without
// invoking the real git binary.
func fakeGitRun(files map[string]string) func(args ...string) ([]byte, error) {
	return func(args ...string) ([]byte, error) {
		if len(args) < 2 {
			return nil, errNotFound
		}
		ref := args[len(args)-1]
		content, ok := files[ref]
		if !ok {
			return nil, errNotFound
		}
		switch args[0] {
		case "cat-file":
			return nil, nil
		case "show":
			return []byte(content), nil
		}
		return nil, errNotFound
	}
}

var errNotFound = &notFoundError{}

type notFoundError struct{}

func (*notFoundError) Error() string { return "not found" }

func TestGitBranchOpen(t *testing.T) {
	g := &GitBranch{
		Branch: "overlays",
		Run:    fakeGitRun(map[string]string{"overlays:./top.dts": "/dts-v1/;\n"}),
	}
	rc, err := g.Open("top.dts")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "/dts-v1/;\n" {
		t.Errorf("content = %q", got)
	}
}

func TestGitBranchOpenMissing(t *testing.T) {
	g := &GitBranch{
		Branch: "overlays",
		Run:    fakeGitRun(map[string]string{}),
	}
	if _, err := g.Open("nope.dts"); err == nil {
		t.Errorf("Open of a path absent from the branch should fail")
	}
}

func TestGitBranchOpenTrimsLeadingDotSlash(t *testing.T) {
	g := &GitBranch{
		Branch: "overlays",
		Run:    fakeGitRun(map[string]string{"overlays:./top.dts": "/dts-v1/;\n"}),
	}
	if _, err := g.Open("./top.dts"); err != nil {
		t.Errorf("Open(\"./top.dts\"): %v", err)
	}
}
