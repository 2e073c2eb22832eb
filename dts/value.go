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

package dts

import (
	"fmt"
	"strconv"
	"strings"
)

// BooleanValue implements the boolean-value(V) grammar of spec.md §4.4:
// y|yes|on|true|okay and the empty string are true; n|no|off|false|disabled
// are false; anything else is parsed as a (possibly hex) integer and
// compared against zero.
func BooleanValue(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "y", "yes", "on", "true", "okay":
		return true, nil
	case "n", "no", "off", "false", "disabled":
		return false, nil
	}
	n, err := evalInt(v)
	if err != nil {
		return false, fmt.Errorf("invalid boolean value %q: %w", v, err)
	}
	return n != 0, nil
}

// IntegerValue implements the integer-value(V, width) grammar of spec.md
// §4.4, masking the result to the unsigned range of the given element width
// in bytes (1, 2, 4 or 8).
func IntegerValue(v string, width int) (uint64, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "y", "yes", "on", "true", "down":
		return mask(1, width), nil
	case "n", "no", "off", "false", "none":
		return mask(0, width), nil
	case "up":
		return mask(2, width), nil
	}
	if strings.HasPrefix(strings.TrimSpace(v), "&") {
		return 0, fmt.Errorf("label reference %q cannot be used as an integer value outside 4-byte cells", v)
	}
	n, err := evalInt(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value %q: %w", v, err)
	}
	return mask(n, width), nil
}

// ParseLiteralUint parses a decimal or hex integer literal token as it
// appears in /memreserve/ pairs and cell vector terms.
func ParseLiteralUint(s string) (uint64, error) {
	n, err := evalInt(s)
	if err != nil {
		return 0, fmt.Errorf("invalid integer literal %q: %w", s, err)
	}
	return uint64(n), nil
}

// mask truncates n to the unsigned range representable in width bytes.
func mask(n int64, width int) uint64 {
	if width <= 0 || width >= 8 {
		return uint64(n)
	}
	bits := uint(width) * 8
	return uint64(n) & ((uint64(1) << bits) - 1)
}

// evalInt parses a decimal or 0x-prefixed hex integer literal, tolerating
// any number of enclosing parentheses and a leading '-' (the tokenizer's
// "(-N)" negative integer literal form, spec.md §4.1).
func evalInt(s string) (int64, error) {
	s = strings.TrimSpace(s)
	for strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	n, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		u, uerr := strconv.ParseUint(s, 0, 64)
		if uerr != nil {
			return 0, err
		}
		return int64(u), nil
	}
	return n, nil
}
