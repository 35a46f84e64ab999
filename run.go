// Copyright 2016 - 2021 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package doctmpl

import "strings"

// reassembleParagraph implements C7: walk a paragraph's runs left to right,
// merging any run that opens "{{" without a closing "}}" in the same run
// with however many following runs it takes to find one, then driving the
// merged text through C6 (process) in the requested mode. The starting
// run's formatting (RPr) survives; merged-in runs are discarded, per the
// "split-run preservation" design note.
func reassembleParagraph(p *Paragraph, env evalEnv, mode Mode, errs *RenderErrors) error {
	var newRuns []*Run
	i := 0
	for i < len(p.Runs) {
		run := p.Runs[i]
		text := runText(run)

		if strings.Contains(text, "{{") && !hasBalancedTag(text) {
			merged, consumed, ok := mergeUntilClosed(p.Runs, i)
			if !ok {
				return &UnterminatedTagError{Paragraph: p.PlainText()}
			}
			rewritten, err := processRunText(merged, env, mode, errs)
			if err != nil {
				return err
			}
			newRuns = append(newRuns, cloneRunWithTexts(run, rewritten)...)
			i += consumed
			continue
		}

		rewritten, err := processRunText(text, env, mode, errs)
		if err != nil {
			return err
		}
		newRuns = append(newRuns, cloneRunWithTexts(run, rewritten)...)
		i++
	}
	p.Runs = newRuns
	return nil
}

// processRunText drives a merged run's text through C6 and returns the
// resulting run texts (normal mode always yields one; table mode, handled
// by the table expander rather than here, is not expected to reach
// multiple-output territory within a single paragraph run).
func processRunText(text string, env evalEnv, mode Mode, errs *RenderErrors) (out []string, err error) {
	defer recoverStructural(&err)
	return process(text, env, mode, errs)
}

func runText(r *Run) string {
	if r.Text == nil {
		return ""
	}
	return r.Text.Content
}

// hasBalancedTag reports whether every "{{" in text has a following "}}".
func hasBalancedTag(text string) bool {
	depth := 0
	i := 0
	for i < len(text) {
		switch {
		case strings.HasPrefix(text[i:], "{{"):
			depth++
			i += 2
		case strings.HasPrefix(text[i:], "}}"):
			depth--
			i += 2
		default:
			i++
		}
	}
	return depth == 0
}

// mergeUntilClosed concatenates runs[start].Text with following runs' text
// until one is found containing "}}", returning the merged string and how
// many runs were consumed. ok is false if the paragraph ends first
// (spec.md §4.7 step 2: UnterminatedTag).
func mergeUntilClosed(runs []*Run, start int) (merged string, consumed int, ok bool) {
	var b strings.Builder
	for i := start; i < len(runs); i++ {
		b.WriteString(runText(runs[i]))
		if strings.Contains(runText(runs[i]), "}}") {
			return b.String(), i - start + 1, true
		}
	}
	return "", 0, false
}

// cloneRunWithTexts builds one *Run per output text string, all sharing the
// source run's RPr (formatting). Normal mode always produces exactly one
// run; this also supports the (rare within a paragraph) case of process
// returning multiple segments.
func cloneRunWithTexts(source *Run, texts []string) []*Run {
	out := make([]*Run, 0, len(texts))
	for _, t := range texts {
		out = append(out, &Run{RPr: source.RPr, Text: &Text{Content: t}})
	}
	return out
}
