// Copyright 2016 - 2021 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package doctmpl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessNormalSubstitutesScalar(t *testing.T) {
	env := evalEnv{ctx: map[string]any{"name": "Alice"}}
	errs := &RenderErrors{}
	out := processNormal("Hello, {{ name }}!", env, errs)
	assert.Equal(t, "Hello, Alice!", out)
	assert.True(t, errs.Empty())
}

func TestProcessNormalRecordsMissingData(t *testing.T) {
	env := evalEnv{ctx: map[string]any{}}
	errs := &RenderErrors{}
	out := processNormal("Hi {{ missing }}", env, errs)
	assert.Equal(t, "Hi ", out)
	require.False(t, errs.Empty())
	assert.Equal(t, []string{"missing"}, errs.Missing)
}

func TestProcessTableSingleValue(t *testing.T) {
	env := evalEnv{ctx: map[string]any{"total": "42"}}
	errs := &RenderErrors{}
	out, err := processTable("{{ total }}", env, errs)
	require.NoError(t, err)
	assert.Equal(t, []string{"42"}, out)
}

func TestProcessTableListProducesOneCellPerItem(t *testing.T) {
	env := evalEnv{ctx: map[string]any{"items": []any{"a", "b", "c"}}}
	errs := &RenderErrors{}
	out, err := processTable("{{ items }}", env, errs)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, out)
}

func TestProcessTableRejectsMultiplePlaceholders(t *testing.T) {
	env := evalEnv{ctx: map[string]any{"a": "1", "b": "2"}}
	errs := &RenderErrors{}
	_, err := processTable("{{ a }}-{{ b }}", env, errs)
	assert.Error(t, err)
}

func TestProcessNormalBadTagIsStructural(t *testing.T) {
	env := evalEnv{ctx: map[string]any{}}
	errs := &RenderErrors{}

	var out string
	func() {
		defer func() {
			r := recover()
			require.NotNil(t, r)
			sp, ok := r.(structuralPanic)
			require.True(t, ok)
			var bad *BadTagError
			require.ErrorAs(t, sp.err, &bad)
		}()
		out = processNormal("{{ a[b }}", env, errs)
	}()
	assert.Empty(t, out)
}
