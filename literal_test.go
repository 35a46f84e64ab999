// Copyright 2016 - 2021 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package doctmpl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLiteralBool(t *testing.T) {
	assert.Equal(t, true, parseLiteral("true"))
	assert.Equal(t, false, parseLiteral("FALSE"))
}

func TestParseLiteralNumeric(t *testing.T) {
	assert.Equal(t, int64(42), parseLiteral("42"))
	assert.Equal(t, 3.14, parseLiteral("3.14"))
}

func TestParseLiteralQuotedString(t *testing.T) {
	assert.Equal(t, "hello world", parseLiteral(`"hello world"`))
	assert.Equal(t, "it works", parseLiteral(`'it works'`))
}

func TestParseLiteralBareTokenIsNormalizedString(t *testing.T) {
	// A bare, unquoted token that is neither a bool nor numeric is returned
	// as its own (NFC-normalized) string value; call arguments and filter
	// values are never looked up as context identifiers.
	assert.Equal(t, "customer_name", parseLiteral("customer_name"))
}

func TestUnquoteRejectsUnterminated(t *testing.T) {
	_, ok := unquote(`"unterminated`)
	assert.False(t, ok)
}

func TestUnquoteStripsMatchingQuotes(t *testing.T) {
	s, ok := unquote(`"abc"`)
	assert.True(t, ok)
	assert.Equal(t, "abc", s)
}
