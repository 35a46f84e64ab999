// Copyright 2016 - 2021 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package doctmpl

import (
	"strings"

	"golang.org/x/net/html"
)

// sanitizeScalar strips any embedded markup from a scalar substitution
// value before it is written into a run's <a:t> (or a worksheet cell's
// inline string), per SPEC_FULL.md §2: a context value that happens to
// contain "<b>bold</b>"-shaped text must not be interpreted as markup by a
// downstream viewer, since this engine only ever substitutes into existing
// styled-text runs and never interprets HTML itself.
func sanitizeScalar(s string) string {
	if !strings.ContainsRune(s, '<') {
		return s
	}
	tokenizer := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	skip := false // inside <script>/<style>, whose raw text is not displayed content
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			if !skip {
				b.Write(tokenizer.Text())
			}
		case html.StartTagToken, html.EndTagToken:
			// tags are dropped; a script or style element loses its content too.
			if name, _ := tokenizer.TagName(); string(name) == "script" || string(name) == "style" {
				skip = tt == html.StartTagToken
			}
		default:
			// tags, comments, doctypes: dropped entirely rather than
			// re-escaped, so no stray "&lt;" ever reaches the document.
		}
	}
}
