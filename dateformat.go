// Copyright 2016 - 2021 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package doctmpl

import "strings"

// dateFormatTokens maps the template's date-format mini-language to Go's
// reference-time layout. Longer tokens are listed before their prefixes so
// the longest-match-first replacement in translateDateFormat never splits
// e.g. "MMMM" into "MM"+"MM".
var dateFormatTokens = []struct {
	token, layout string
}{
	{"YYYY", "2006"},
	{"YY", "06"},
	{"MMMM", "January"},
	{"MMM", "Jan"},
	{"MM", "01"},
	{"DD", "02"},
	{"dd", "02"},
	{"HH", "15"},
	{"hh", "03"},
	{"mm", "04"},
	{"ss", "05"},
	{"A", "PM"},
}

// translateDateFormat implements C1: translate(fmt_str) -> platform_fmt_str.
// It walks fmt_str left to right, at each position trying the longest
// matching token first; unmatched runes (including unknown tokens) pass
// through unchanged into the output layout.
func translateDateFormat(fmtStr string) string {
	var out strings.Builder
	i := 0
	for i < len(fmtStr) {
		matched := false
		for _, tok := range dateFormatTokens {
			if strings.HasPrefix(fmtStr[i:], tok.token) {
				out.WriteString(tok.layout)
				i += len(tok.token)
				matched = true
				break
			}
		}
		if !matched {
			out.WriteByte(fmtStr[i])
			i++
		}
	}
	return out.String()
}
