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

// Package fileopen provides the pluggable file-opening capability the
// tokenizer reads through (spec.md §4.1), generalized from a prefix-hijack
// file-resolution pattern into an explicit interface with three
// implementations: a local filesystem opener, a git-branch opener (the
// "git-branch file access" collaborator of spec.md §1/§6), and an
// in-memory opener for tests.
package fileopen

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/golang/leveldb/db"
	"github.com/golang/leveldb/memfs"
)

// Opener resolves a path to its textual content. Two implementations are
// provided externally per spec.md §4.1: local filesystem and git-branch
// content; a third, in-memory, backs package tests.
type Opener interface {
	Open(path string) (io.ReadCloser, error)
}

// Local reads files directly off the local filesystem.
type Local struct{}

func (Local) Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", path, err)
	}
	return f, nil
}

// GitBranch reads file content as it exists on a given git branch/ref,
// using "git show BRANCH:./PATH" semantics (spec.md §6). Existence is
// probed with "git cat-file -e" before the read, so a missing path fails
// with a "no such file" diagnostic, to which git's own error text is
// appended.
type GitBranch struct {
	Branch string
	// Run executes a git subcommand and returns its stdout; overridable in
	// tests. Defaults to invoking the system git binary.
	Run func(args ...string) ([]byte, error)
}

func NewGitBranch(branch string) *GitBranch {
	return &GitBranch{Branch: branch, Run: runGit}
}

func runGit(args ...string) ([]byte, error) {
	cmd := exec.Command("git", args...)
	var out, errbuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errbuf
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, errbuf.String())
	}
	return out.Bytes(), nil
}

func (g *GitBranch) Open(path string) (io.ReadCloser, error) {
	run := g.Run
	if run == nil {
		run = runGit
	}
	ref := fmt.Sprintf("%s:./%s", g.Branch, strings.TrimPrefix(path, "./"))
	if _, err := run("cat-file", "-e", ref); err != nil {
		return nil, fmt.Errorf("no such file %q on branch %q: %w", path, g.Branch, err)
	}
	content, err := run("show", ref)
	if err != nil {
		return nil, fmt.Errorf("reading %q on branch %q: %w", path, g.Branch, err)
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

// Mem is an in-memory fixture backend for tests, built directly on
// leveldb/memfs rather than a hand-rolled map.
type Mem struct {
	fs db.FileSystem
}

// NewMem creates an empty in-memory file set.
func NewMem() *Mem {
	return &Mem{fs: memfs.New()}
}

// Put writes content at path, creating any parent directories as needed.
func (m *Mem) Put(path, content string) error {
	if idx := strings.LastIndexByte(path, '/'); idx > 0 {
		if err := m.fs.MkdirAll(path[:idx], 0770); err != nil {
			return err
		}
	}
	f, err := m.fs.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write([]byte(content))
	return err
}

func (m *Mem) Open(path string) (io.ReadCloser, error) {
	fi, err := m.fs.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", path, err)
	}
	f, err := m.fs.Open(path)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, fi.Size())
	n, err := io.ReadFull(f, buf)
	f.Close()
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(buf[:n])), nil
}
