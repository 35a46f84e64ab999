// Copyright 2016 - 2021 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package doctmpl

import (
	"sort"
	"strings"
)

// ContextKeys is the result of a static template scan (C11).
type ContextKeys struct {
	SimpleFields []string // top-level identifiers used without "." or "[" qualification
	ObjectFields []string // top-level identifiers used with qualification
}

var reservedIdents = map[string]bool{
	identNow:        true,
	identLoopCount:  true,
	identLoopNumber: true,
}

// extractKeys implements C11: scan every text frame, table cell, and chart
// category/series name in a parsed presentation, collecting the top-level
// identifier of every {{ ... }} tag into "simple" (no "." or "[") or
// "object" (qualified) buckets, ignoring reserved identifiers and any
// identifier bound as a loop variable by a %loop% sentinel.
func extractKeys(slides []*Slide, chartTexts [][]string) (ContextKeys, error) {
	loopVars, err := collectLoopVars(slides)
	if err != nil {
		return ContextKeys{}, err
	}

	simple := map[string]bool{}
	object := map[string]bool{}

	record := func(text string) {
		// Canonicalise split placeholders the same way C7 would (merge
		// consecutive runs), so extraction sees the full tag text; for a
		// bare text string already concatenated from run reassembly this is
		// a no-op scan over its own {{ }} matches.
		for _, m := range placeholderRe.FindAllStringSubmatch(mergeForScan(text), -1) {
			expr := strings.TrimSpace(m[1])
			ident, qualified := leadingIdentifier(expr)
			if ident == "" || reservedIdents[ident] || loopVars[ident] {
				continue
			}
			if qualified {
				object[ident] = true
			} else {
				simple[ident] = true
			}
		}
	}

	for _, s := range slides {
		for _, shape := range s.Shapes() {
			switch {
			case shape.Text != nil && shape.Text.TxBody != nil:
				for _, p := range shape.Text.TxBody.Paragraphs {
					record(p.PlainText())
				}
			case shape.Table != nil && shape.Table.Table() != nil:
				for _, row := range shape.Table.Table().Rows {
					for _, cell := range row.Cells {
						record(cell.PlainText())
					}
				}
			}
		}
	}
	for _, texts := range chartTexts {
		for _, t := range texts {
			record(t)
		}
	}

	return ContextKeys{
		SimpleFields: sortedKeys(simple),
		ObjectFields: sortedKeys(object),
	}, nil
}

// mergeForScan concatenates run text with no structural change; kept as a
// named step so the merge behavior mirrors C7's run-reassembly intent (the
// extractor must see the same tag text the renderer would) even though, for
// already-concatenated paragraph text, there is nothing left to merge.
func mergeForScan(text string) string { return text }

// leadingIdentifier returns the first segment's bare identifier (stripping
// any "(", "[" call/filter suffix) and whether the expression is qualified
// beyond that first segment (a "." or a "[" filter on the first segment, or
// a "(" call whose result is then further accessed).
func leadingIdentifier(expr string) (ident string, qualified bool) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return "", false
	}
	end := len(expr)
	for i, r := range expr {
		if r == '.' || r == '[' || r == '|' || r == '(' {
			end = i
			break
		}
	}
	ident = strings.TrimSpace(expr[:end])
	rest := expr[end:]
	if strings.HasPrefix(rest, "(") {
		if close := strings.Index(rest, ")"); close != -1 {
			rest = rest[close+1:]
		} else {
			rest = ""
		}
	}
	if len(rest) > 0 && (rest[0] == '.' || rest[0] == '[') {
		qualified = true
	}
	return ident, qualified
}

func collectLoopVars(slides []*Slide) (map[string]bool, error) {
	vars := map[string]bool{}
	for _, s := range slides {
		kind, loopVar, _, err := detectSentinel(s)
		if err != nil {
			return nil, err
		}
		if kind == sentinelLoopStart {
			vars[loopVar] = true
		}
	}
	return vars, nil
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
