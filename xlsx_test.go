// Copyright 2016 - 2021 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package doctmpl

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsFormulaCellRecognizesRealFormula(t *testing.T) {
	assert.True(t, isFormulaCell("SUM(A1:A2)"))
}

func TestIsFormulaCellRejectsEmptyFormula(t *testing.T) {
	assert.False(t, isFormulaCell(""))
	assert.False(t, isFormulaCell("=   "))
}

func TestCellTextResolvesSharedString(t *testing.T) {
	v := "0"
	cell := &cellXML{T: "s", V: &v}
	text, ok := cellText(cell, []string{"hello"})
	require.True(t, ok)
	assert.Equal(t, "hello", text)
}

func TestCellTextResolvesInlineString(t *testing.T) {
	cell := &cellXML{T: "inlineStr", IS: &inlineStrXML{T: "{{ name }}"}}
	text, ok := cellText(cell, nil)
	require.True(t, ok)
	assert.Equal(t, "{{ name }}", text)
}

func TestCellTextOutOfRangeSharedStringIndex(t *testing.T) {
	v := "5"
	cell := &cellXML{T: "s", V: &v}
	_, ok := cellText(cell, []string{"only one"})
	assert.False(t, ok)
}

func TestWalkCellSubstitutesInlineStringScalar(t *testing.T) {
	cell := &cellXML{T: "inlineStr", IS: &inlineStrXML{T: "{{ amount }}"}}
	env := evalEnv{ctx: map[string]any{"amount": int64(42)}}
	errs := &RenderErrors{}

	err := walkCell(cell, nil, env, errs, false)
	require.NoError(t, err)
	require.NotNil(t, cell.V)
	assert.Equal(t, "42", *cell.V)
	assert.Empty(t, cell.T)
}

func TestWalkCellLeavesFormulaCellsAlone(t *testing.T) {
	formula := "SUM(A1:A2)"
	cell := &cellXML{F: &formula}
	env := evalEnv{ctx: map[string]any{}}
	errs := &RenderErrors{}

	err := walkCell(cell, nil, env, errs, false)
	require.NoError(t, err)
	assert.Nil(t, cell.V)
}

func TestWalkCellFallsBackToInlineStringForNonNumeric(t *testing.T) {
	cell := &cellXML{T: "inlineStr", IS: &inlineStrXML{T: "Hello {{ name }}"}}
	env := evalEnv{ctx: map[string]any{"name": "World"}}
	errs := &RenderErrors{}

	err := walkCell(cell, nil, env, errs, false)
	require.NoError(t, err)
	require.NotNil(t, cell.IS)
	assert.Equal(t, "Hello World", cell.IS.T)
}

func TestSetNumericAwareCellTextWritesNumericValue(t *testing.T) {
	cell := &cellXML{}
	require.NoError(t, setNumericAwareCellText(cell, "123", false))
	require.NotNil(t, cell.V)
	assert.Equal(t, "123", *cell.V)
	assert.Empty(t, cell.T)
}

func TestSetNumericAwareCellTextFallsBackToInlineString(t *testing.T) {
	cell := &cellXML{}
	require.NoError(t, setNumericAwareCellText(cell, "not a number", false))
	require.NotNil(t, cell.IS)
	assert.Equal(t, "not a number", cell.IS.T)
	assert.Equal(t, "inlineStr", cell.T)
}

func TestSetNumericAwareCellTextFailOnNonNumericReturnsBadTagError(t *testing.T) {
	cell := &cellXML{R: "B2"}
	err := setNumericAwareCellText(cell, "not a number", true)
	require.Error(t, err)
	var bad *BadTagError
	require.ErrorAs(t, err, &bad)
	assert.Equal(t, "B2", bad.Expr)
}

func TestParseSharedStringsEmptyInput(t *testing.T) {
	out, err := parseSharedStrings(nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestParseSharedStringsParsesEntries(t *testing.T) {
	xml := []byte(`<sst><si><t>foo</t></si><si><t>bar</t></si></sst>`)
	out, err := parseSharedStrings(xml)
	require.NoError(t, err)
	assert.Equal(t, []string{"foo", "bar"}, out)
}

func TestRewriteWorksheetXMLPreservesSiblingsAndSubstitutesOnce(t *testing.T) {
	raw := []byte(`<worksheet><cols><col min="1" max="1" width="12"/></cols>` +
		`<sheetData><row r="1"><c r="A1" t="inlineStr"><is><t>{{ name }}</t></is></c></row></sheetData>` +
		`<pageSetup orientation="portrait"/></worksheet>`)
	env := evalEnv{ctx: map[string]any{"name": "Ada"}}
	errs := &RenderErrors{}

	out, err := rewriteWorksheetXML(raw, nil, env, errs, false)
	require.NoError(t, err)

	result := string(out)
	assert.Contains(t, result, `<cols><col min="1" max="1" width="12"/></cols>`)
	assert.Contains(t, result, `<pageSetup orientation="portrait"/>`)
	assert.Contains(t, result, "Ada")
	assert.Equal(t, 1, strings.Count(result, "<sheetData"))
}

func TestRewriteWorksheetXMLErrorsWithoutSheetData(t *testing.T) {
	_, err := rewriteWorksheetXML([]byte(`<worksheet></worksheet>`), nil, evalEnv{}, &RenderErrors{}, false)
	assert.Error(t, err)
}
