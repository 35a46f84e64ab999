// Copyright 2016 - 2021 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package doctmpl

import (
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// parseLiteral implements C2: parse(token) -> value. Attempts are made in
// order: boolean, integer, float, quoted string, else the bare token taken
// as a string (Unicode-NFC normalized, per SPEC_FULL.md §2, so filter
// comparisons are insensitive to combining-character composition).
func parseLiteral(token string) any {
	trimmed := strings.TrimSpace(token)

	switch strings.ToLower(trimmed) {
	case "true":
		return true
	case "false":
		return false
	}

	if i, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return f
	}

	if unquoted, ok := unquote(trimmed); ok {
		return norm.NFC.String(unquoted)
	}

	return norm.NFC.String(trimmed)
}

// unquote strips a single matching pair of single or double quotes from s,
// reporting whether s was in fact quoted.
func unquote(s string) (string, bool) {
	if len(s) < 2 {
		return s, false
	}
	first, last := s[0], s[len(s)-1]
	if (first == '\'' && last == '\'') || (first == '"' && last == '"') {
		return s[1 : len(s)-1], true
	}
	return s, false
}
