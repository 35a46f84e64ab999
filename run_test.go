// Copyright 2016 - 2021 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package doctmpl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textRun(s string) *Run {
	return &Run{Text: &Text{Content: s}}
}

func TestReassembleParagraphSingleRun(t *testing.T) {
	p := &Paragraph{Runs: []*Run{textRun("Hello, {{ name }}!")}}
	env := evalEnv{ctx: map[string]any{"name": "Alice"}}
	errs := &RenderErrors{}

	require.NoError(t, reassembleParagraph(p, env, ModeNormal, errs))
	assert.Equal(t, "Hello, Alice!", p.PlainText())
}

func TestReassembleParagraphMergesSplitTag(t *testing.T) {
	// A styling tool commonly splits "{{ name }}" across three runs at
	// arbitrary character boundaries; C7 must still resolve it as one tag.
	p := &Paragraph{Runs: []*Run{
		textRun("Hello, {{ na"),
		textRun("me "),
		textRun("}}!"),
	}}
	env := evalEnv{ctx: map[string]any{"name": "Bob"}}
	errs := &RenderErrors{}

	require.NoError(t, reassembleParagraph(p, env, ModeNormal, errs))
	assert.Equal(t, "Hello, Bob!", p.PlainText())
	// The three runs collapse into the single run that opened the tag.
	require.Len(t, p.Runs, 1)
}

func TestReassembleParagraphUnterminatedTagErrors(t *testing.T) {
	p := &Paragraph{Runs: []*Run{textRun("Hello, {{ name")}}
	env := evalEnv{ctx: map[string]any{"name": "Alice"}}
	errs := &RenderErrors{}

	err := reassembleParagraph(p, env, ModeNormal, errs)
	require.Error(t, err)
	var unterminated *UnterminatedTagError
	require.ErrorAs(t, err, &unterminated)
}

func TestHasBalancedTag(t *testing.T) {
	assert.True(t, hasBalancedTag("no tags here"))
	assert.True(t, hasBalancedTag("{{ a }} and {{ b }}"))
	assert.False(t, hasBalancedTag("{{ a"))
}
