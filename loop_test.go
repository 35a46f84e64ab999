// Copyright 2016 - 2021 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package doctmpl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textSlide(texts ...string) *Slide {
	var shapes []ShapeNode
	for _, s := range texts {
		shapes = append(shapes, ShapeNode{Text: &TextShape{
			TxBody: &TxBody{Paragraphs: []*Paragraph{{Runs: []*Run{textRun(s)}}}},
		}})
	}
	s := &Slide{}
	s.SetShapes(shapes)
	return s
}

func TestDetectSentinelLoopStart(t *testing.T) {
	kind, loopVar, collExpr, err := detectSentinel(textSlide("%loop item in items%"))
	require.NoError(t, err)
	assert.Equal(t, sentinelLoopStart, kind)
	assert.Equal(t, "item", loopVar)
	assert.Equal(t, "items", collExpr)
}

func TestDetectSentinelLoopEnd(t *testing.T) {
	kind, _, _, err := detectSentinel(textSlide("%endloop%"))
	require.NoError(t, err)
	assert.Equal(t, sentinelLoopEnd, kind)
}

func TestDetectSentinelPlainSlide(t *testing.T) {
	kind, _, _, err := detectSentinel(textSlide("just some text"))
	require.NoError(t, err)
	assert.Equal(t, sentinelNone, kind)
}

// buildSections/buildRenderPlan cardinality: k body slides and an n-item
// collection must produce exactly k*n rendered slides, with the sentinel
// slides themselves never appearing in the output.
func TestBuildRenderPlanCardinality(t *testing.T) {
	slides := []*Slide{
		textSlide("intro"),
		textSlide("%loop item in items%"),
		textSlide("{{ item }}"),
		textSlide("%endloop%"),
	}
	ctx := map[string]any{"items": []any{"a", "b"}}
	env := evalEnv{ctx: ctx}

	plan, err := buildRenderPlan(slides, ctx, nil, env, &RenderErrors{})
	require.NoError(t, err)
	require.Len(t, plan, 3) // 1 intro + 2 loop iterations of the 1 body slide

	assert.Nil(t, plan[0].extra)
	assert.Equal(t, "a", plan[1].extra["item"])
	assert.Equal(t, 1, plan[1].extra[identLoopNumber])
	assert.Equal(t, 2, plan[1].extra[identLoopCount])
	assert.Equal(t, "b", plan[2].extra["item"])
	assert.Equal(t, 2, plan[2].extra[identLoopNumber])
}

func TestBuildSectionsRejectsUnclosedLoop(t *testing.T) {
	slides := []*Slide{textSlide("%loop item in items%"), textSlide("body")}
	_, err := buildSections(slides)
	require.Error(t, err)
	var loopErr *LoopStructureError
	require.ErrorAs(t, err, &loopErr)
}

func TestBuildSectionsRejectsEndloopWithoutLoop(t *testing.T) {
	slides := []*Slide{textSlide("%endloop%")}
	_, err := buildSections(slides)
	require.Error(t, err)
}
