// Copyright 2016 - 2021 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package doctmpl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractKeysSimpleAndObjectFields(t *testing.T) {
	slides := []*Slide{
		textSlide("Hello {{ name }}, your balance is {{ account.balance }}"),
	}
	keys, err := extractKeys(slides, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"name"}, keys.SimpleFields)
	assert.Equal(t, []string{"account"}, keys.ObjectFields)
}

func TestExtractKeysIgnoresReservedAndLoopVars(t *testing.T) {
	slides := []*Slide{
		textSlide("%loop item in items%"),
		textSlide("{{ item.name }} as of {{ now|YYYY }}"),
		textSlide("%endloop%"),
	}
	keys, err := extractKeys(slides, nil)
	require.NoError(t, err)
	assert.Empty(t, keys.SimpleFields)
	assert.NotContains(t, keys.ObjectFields, "item")
	assert.NotContains(t, keys.ObjectFields, "now")
}

func TestExtractKeysDedupesAcrossSlides(t *testing.T) {
	slides := []*Slide{
		textSlide("{{ name }}"),
		textSlide("{{ name }}"),
	}
	keys, err := extractKeys(slides, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"name"}, keys.SimpleFields)
}

func TestLeadingIdentifierStripsCallSuffix(t *testing.T) {
	ident, qualified := leadingIdentifier("foo(1).bar")
	assert.Equal(t, "foo", ident)
	assert.True(t, qualified)

	ident, qualified = leadingIdentifier("foo(1)")
	assert.Equal(t, "foo", ident)
	assert.False(t, qualified)
}
