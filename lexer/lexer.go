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
	"bufio"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/dtoverlay/fileopen"
)

const punctChars = "{};=<>,[]/"

var (
	includeRe    = regexp.MustCompile(`^(#include|/include/)\s+("([^"]*)"|<([^>]*)>)\s*$`)
	negLiteralRe = regexp.MustCompile(`^\(-[0-9A-Fa-fxX]+\)`)
	ifRe         = regexp.MustCompile(`^#(if|ifdef)\b`)
	endifRe      = regexp.MustCompile(`^#endif\b`)
)

// state carries everything that must survive across lines and across
// recursive descents into included files.
type state struct {
	opener    fileopen.Opener
	toks      []Token
	inComment bool
	ifDepth   int
	// includeHierarchy records, in order, each file entered and the file
	// that included it, for the CLI's -i report (spec.md §6).
	includeHierarchy []IncludeEvent
}

// IncludeEvent is one step of the include hierarchy, recorded purely for
// the -i report; it has no bearing on token stream content.
type IncludeEvent struct {
	File       string
	IncludedBy string
	Depth      int
}

// Tokenize reads filename through opener and returns the flat token stream
// of spec.md §4.1, starting with a file-marker token for the top-level
// file. Includes are inlined depth-first.
func Tokenize(filename string, opener fileopen.Opener) ([]Token, []IncludeEvent, error) {
	s := &state{opener: opener}
	s.emitFileMarker(filename)
	s.includeHierarchy = append(s.includeHierarchy, IncludeEvent{File: filename, Depth: 0})
	if err := s.tokenizeFile(filename, 0); err != nil {
		return nil, nil, err
	}
	return s.toks, s.includeHierarchy, nil
}

func (s *state) emitFileMarker(filename string) {
	s.toks = append(s.toks, Token{Kind: FileMarker, Text: filename, File: filename})
}

func (s *state) tokenizeFile(filename string, depth int) error {
	rc, err := s.opener.Open(filename)
	if err != nil {
		return fmt.Errorf("tokenizing %q: %w", filename, err)
	}
	defer rc.Close()
	sc := bufio.NewScanner(rc)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineno := 0
	// A new file starts outside any comment and with a fresh #if nest,
	// since #if/#endif balancing is defined per translation unit in this
	// tool (the spec is silent on cross-file #if nesting; dtsi fragments
	// are always well-formed in practice).
	savedComment := s.inComment
	savedDepth := s.ifDepth
	s.inComment = false
	s.ifDepth = 0
	for sc.Scan() {
		lineno++
		if err := s.processLine(sc.Text(), filename, lineno, depth); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading %q: %w", filename, err)
	}
	s.inComment = savedComment
	s.ifDepth = savedDepth
	return nil
}

func (s *state) processLine(line, file string, lineno, depth int) error {
	if s.inComment {
		idx := strings.Index(line, "*/")
		if idx == -1 {
			return nil
		}
		line = line[idx+2:]
		s.inComment = false
	}
	trimmed := strings.TrimLeft(line, " \t")
	// #else is not recognized: inside a skipped #if region it is skipped
	// like any other line, and elsewhere it fails as an unknown directive.
	if ifRe.MatchString(trimmed) {
		s.ifDepth++
		return nil
	}
	if endifRe.MatchString(trimmed) {
		if s.ifDepth > 0 {
			s.ifDepth--
		}
		return nil
	}
	if s.ifDepth > 0 {
		return nil
	}
	if m := includeRe.FindStringSubmatch(trimmed); m != nil {
		return s.handleInclude(m, file, lineno, depth)
	}
	if strings.HasPrefix(trimmed, "#") {
		return fmt.Errorf("%s:%d: unknown preprocessor directive: %q", file, lineno, trimmed)
	}
	return s.scanTokens(trimmed, file, lineno)
}

func (s *state) handleInclude(m []string, file string, lineno, depth int) error {
	quoteForm := m[2]
	target := m[3]
	if target == "" {
		target = m[4]
	}
	switch {
	case strings.Contains(target, ".h"):
		s.toks = append(s.toks, Token{Kind: Directive, Text: Include, File: file, Line: lineno})
		s.toks = append(s.toks, Token{Kind: String, Text: quoteForm, File: file, Line: lineno})
		return nil
	case strings.Contains(target, ".dtsi") || strings.Contains(target, ".dts"):
		s.includeHierarchy = append(s.includeHierarchy, IncludeEvent{File: target, IncludedBy: file, Depth: depth + 1})
		if err := s.tokenizeFile(target, depth+1); err != nil {
			return err
		}
		s.emitFileMarker(file)
		return nil
	default:
		return fmt.Errorf("%s:%d: cannot include %q: unrecognized file type", file, lineno, target)
	}
}

// scanTokens implements the longest-match scan described in spec.md §4.1
// over the residue of a single (non-directive, non-comment-only) line.
func (s *state) scanTokens(line, file string, lineno int) error {
	i, n := 0, len(line)
	for i < n {
		c := line[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case c == '/' && i+1 < n && line[i+1] == '/':
			return nil
		case c == '/' && i+1 < n && line[i+1] == '*':
			rest := line[i+2:]
			if end := strings.Index(rest, "*/"); end >= 0 {
				i = i + 2 + end + 2
			} else {
				s.inComment = true
				return nil
			}
		case matchDirectiveAt(line[i:]) != "":
			kw := matchDirectiveAt(line[i:])
			s.toks = append(s.toks, Token{Kind: Directive, Text: kw, File: file, Line: lineno})
			i += len(kw)
		case c == '&':
			j := i + 1
			for j < n && isNameByte(line[j]) {
				j++
			}
			if j == i+1 {
				return fmt.Errorf("%s:%d: stray '&'", file, lineno)
			}
			s.toks = append(s.toks, Token{Kind: LabelRef, Text: line[i+1 : j], File: file, Line: lineno})
			i = j
		case c == '(' && negLiteralRe.MatchString(line[i:]):
			m := negLiteralRe.FindString(line[i:])
			s.toks = append(s.toks, Token{Kind: Ident, Text: m, File: file, Line: lineno})
			i += len(m)
		case c == '"' || c == '\'':
			val, w, err := scanQuoted(line[i:], rune(c))
			if err != nil {
				return fmt.Errorf("%s:%d: %w", file, lineno, err)
			}
			s.toks = append(s.toks, Token{Kind: String, Text: val, File: file, Line: lineno})
			i += w
		case isNameByte(c):
			j := i
			for j < n && isNameByte(line[j]) {
				j++
			}
			text := line[i:j]
			if j < n && line[j] == ':' {
				s.toks = append(s.toks, Token{Kind: LabelDecl, Text: text, File: file, Line: lineno})
				i = j + 1
			} else {
				s.toks = append(s.toks, Token{Kind: Ident, Text: text, File: file, Line: lineno})
				i = j
			}
		case strings.IndexByte(punctChars, c) >= 0:
			s.toks = append(s.toks, Token{Kind: Punct, Text: string(c), File: file, Line: lineno})
			i++
		default:
			return fmt.Errorf("%s:%d: unrecognized residue %q", file, lineno, line[i:])
		}
	}
	return nil
}

// matchDirectiveAt returns the directive keyword that is a prefix of s, or
// "" if there is none. The byte following the keyword is not examined.
func matchDirectiveAt(s string) string {
	for _, kw := range directiveKeywords {
		if strings.HasPrefix(s, kw) {
			return kw
		}
	}
	return ""
}

func isNameByte(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == ',' || c == '.' || c == '_' || c == '+' || c == '#' || c == '@' || c == '-':
		return true
	}
	return false
}

// scanQuoted consumes a quoted string starting at s[0] == q, resolving
// backslash escapes, and returns the unescaped value and the number of
// bytes consumed (including both quote characters).
func scanQuoted(s string, q rune) (string, int, error) {
	qb := byte(q)
	var b strings.Builder
	i := 1
	for i < len(s) {
		c := s[i]
		if c == qb {
			return b.String(), i + 1, nil
		}
		if c == '\\' && i+1 < len(s) {
			i++
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case '\\', '"', '\'':
				b.WriteByte(s[i])
			default:
				b.WriteByte('\\')
				b.WriteByte(s[i])
			}
			i++
			continue
		}
		b.WriteByte(c)
		i++
	}
	return "", 0, fmt.Errorf("unterminated quoted literal: %c%s", q, s[1:])
}
