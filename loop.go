// Copyright 2016 - 2021 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package doctmpl

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mohae/deepcopy"
)

var (
	loopStartRe = regexp.MustCompile(`^%loop\s+([A-Za-z_][A-Za-z0-9_]*)\s+in\s+(.+?)%$`)
	loopEndRe   = regexp.MustCompile(`^%endloop%$`)
)

// section is one unit of C9's first pass: either a plain run of slides, or
// a loop body plus its binding variable and collection expression.
type section struct {
	slides   []*Slide
	isLoop   bool
	loopVar  string
	collExpr string
}

// sentinelKind classifies a slide's lone sentinel shape, if any.
type sentinelKind int

const (
	sentinelNone sentinelKind = iota
	sentinelLoopStart
	sentinelLoopEnd
)

// detectSentinel implements the per-slide event classification of C9's
// state table: a slide is a sentinel iff exactly one shape's whole text
// matches the loop-start or endloop grammar; other, non-sentinel shapes on
// the slide do not change the classification.
func detectSentinel(s *Slide) (kind sentinelKind, loopVar, collExpr string, err error) {
	var matches int
	for _, shape := range s.Shapes() {
		if shape.Text == nil || shape.Text.TxBody == nil {
			continue
		}
		text := strings.TrimSpace(shapeText(shape.Text))
		if text == "" {
			continue
		}
		if m := loopStartRe.FindStringSubmatch(text); m != nil {
			matches++
			kind, loopVar, collExpr = sentinelLoopStart, m[1], strings.TrimSpace(m[2])
			continue
		}
		if loopEndRe.MatchString(text) {
			matches++
			kind = sentinelLoopEnd
			continue
		}
	}
	if matches > 1 {
		return sentinelNone, "", "", &LoopStructureError{Reason: "multiple sentinels on one slide"}
	}
	if matches == 0 {
		return sentinelNone, "", "", nil
	}
	return kind, loopVar, collExpr, nil
}

func shapeText(ts *TextShape) string {
	var b strings.Builder
	for _, p := range ts.TxBody.Paragraphs {
		b.WriteString(p.PlainText())
	}
	return b.String()
}

// buildSections runs C9's first pass over slides in document order,
// implementing the OUTSIDE/INSIDE state machine of spec.md §4.9.
func buildSections(slides []*Slide) ([]section, error) {
	var sections []section
	state := sentinelNone // reuse sentinelNone to mean OUTSIDE, sentinelLoopStart to mean INSIDE
	var current section

	for _, s := range slides {
		kind, loopVar, collExpr, err := detectSentinel(s)
		if err != nil {
			return nil, err
		}

		switch {
		case state == sentinelNone && kind == sentinelNone:
			sections = append(sections, section{slides: []*Slide{s}})
		case state == sentinelNone && kind == sentinelLoopStart:
			state = sentinelLoopStart
			current = section{isLoop: true, loopVar: loopVar, collExpr: collExpr}
		case state == sentinelNone && kind == sentinelLoopEnd:
			return nil, &LoopStructureError{Reason: "endloop without matching loop"}
		case state == sentinelLoopStart && kind == sentinelNone:
			current.slides = append(current.slides, s)
		case state == sentinelLoopStart && kind == sentinelLoopStart:
			return nil, &LoopStructureError{Reason: "nested loops unsupported"}
		case state == sentinelLoopStart && kind == sentinelLoopEnd:
			sections = append(sections, current)
			state = sentinelNone
			current = section{}
		}
	}

	if state == sentinelLoopStart {
		return nil, &LoopStructureError{Reason: "unclosed loop"}
	}
	return sections, nil
}

// expandedSlide pairs a slide (original or a loop-iteration clone) with the
// extra per-iteration context the renderer driver (C12) must merge in
// before processing its shapes.
type expandedSlide struct {
	slide *Slide
	extra map[string]any
}

// buildRenderPlan implements C9's second pass: evaluate each loop section's
// collection expression once (against the base context, via C5) and
// produce the final ordered slide list with per-slide extra context,
// duplicating slides for i>0 per spec.md §4.9.
func buildRenderPlan(slides []*Slide, baseCtx map[string]any, principal Principal, env evalEnv, errs *RenderErrors) ([]expandedSlide, error) {
	sections, err := buildSections(slides)
	if err != nil {
		return nil, err
	}

	var plan []expandedSlide
	for _, sec := range sections {
		if !sec.isLoop {
			for _, s := range sec.slides {
				plan = append(plan, expandedSlide{slide: s, extra: nil})
			}
			continue
		}

		collValue, err := evaluate(sec.collExpr, env, errs)
		if err != nil {
			if _, ok := err.(recoverableError); ok {
				return nil, &LoopStructureError{Reason: "loop collection expression did not resolve: " + sec.collExpr}
			}
			return nil, err
		}
		items, isList := asGenericList(collValue)
		if !isList || len(items) == 0 {
			return nil, &LoopStructureError{Reason: "loop collection is empty or not iterable: " + sec.collExpr}
		}

		// The loop-start/endloop sentinel slides themselves were never
		// buffered into sec.slides (see buildSections); only the strictly
		// INSIDE slides constitute the loop body, matching the
		// "k slides -> k*len(coll) rendered slides" cardinality property.
		bodySlides := sec.slides

		for i, item := range items {
			extra := map[string]any{
				sec.loopVar:     item,
				identLoopCount:  len(items),
				identLoopNumber: i + 1,
			}
			var iterSlides []*Slide
			if i == 0 {
				iterSlides = bodySlides
			} else {
				iterSlides = cloneSlides(bodySlides)
			}
			for _, s := range iterSlides {
				plan = append(plan, expandedSlide{slide: s, extra: extra})
			}
			if len(plan) > MaxSlidesPerLoopExpansion {
				return nil, &LoopStructureError{Reason: fmt.Sprintf("loop expansion exceeds %d slides", MaxSlidesPerLoopExpansion)}
			}
		}
	}
	return plan, nil
}

// cloneSlides deep-copies a slice of slides via mohae/deepcopy for a
// non-zero loop iteration, so each iteration gets an independent shape
// graph to substitute into.
func cloneSlides(slides []*Slide) []*Slide {
	out := make([]*Slide, len(slides))
	for i, s := range slides {
		copied := deepcopy.Copy(s)
		clone, ok := copied.(*Slide)
		if !ok {
			clone = s
		}
		out[i] = clone
	}
	return out
}
