// Copyright 2016 - 2021 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package doctmpl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSegmentPlainIdent(t *testing.T) {
	ident, _, hasCall, _, hasFilter, err := parseSegment("orders")
	require.NoError(t, err)
	assert.Equal(t, "orders", ident)
	assert.False(t, hasCall)
	assert.False(t, hasFilter)
}

func TestParseSegmentWithCallArgs(t *testing.T) {
	ident, args, hasCall, _, _, err := parseSegment(`discount(10, "VIP")`)
	require.NoError(t, err)
	assert.Equal(t, "discount", ident)
	assert.True(t, hasCall)
	assert.Equal(t, []string{"10", `"VIP"`}, args)
}

func TestParseSegmentWithFilter(t *testing.T) {
	ident, _, _, filter, hasFilter, err := parseSegment(`orders[status=shipped]`)
	require.NoError(t, err)
	assert.Equal(t, "orders", ident)
	assert.True(t, hasFilter)
	assert.Equal(t, map[string]string{"status": "shipped"}, filter)
}

func TestParseSegmentUnterminatedCallIsError(t *testing.T) {
	_, _, _, _, _, err := parseSegment("discount(10")
	assert.Error(t, err)
}

func TestInvokeCallableZeroArgFunc(t *testing.T) {
	fn := func() string { return "ok" }
	result, err := invokeCallable(fn, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}

func TestInvokeCallableWithArgsAndCoercion(t *testing.T) {
	fn := func(n int, label string) string {
		return label
	}
	result, err := invokeCallable(fn, []string{"5", `"gold"`})
	require.NoError(t, err)
	assert.Equal(t, "gold", result)
}

func TestInvokeCallableErrorReturnPropagates(t *testing.T) {
	fn := func() (string, error) { return "", assertErr }
	_, err := invokeCallable(fn, nil)
	assert.Error(t, err)
}

var assertErr = fmtErr("boom")

type fmtErr string

func (e fmtErr) Error() string { return string(e) }
