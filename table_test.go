// Copyright 2016 - 2021 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package doctmpl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textCell(s string) *TableCell {
	c := &TableCell{}
	c.SetPlainText(s)
	return c
}

func TestIsPurePlaceholder(t *testing.T) {
	assert.True(t, isPurePlaceholder("{{ item.name }}"))
	assert.False(t, isPurePlaceholder("Name: {{ item.name }}"))
	assert.False(t, isPurePlaceholder("{{ a }}{{ b }}"))
}

func TestExpandTableColumnFillGrowsIntoEmptyRows(t *testing.T) {
	table := &Table{Rows: []*TableRow{
		{Cells: []*TableCell{textCell("{{ items }}"), textCell("header")}},
		{Cells: []*TableCell{textCell(""), textCell("")}},
		{Cells: []*TableCell{textCell(""), textCell("")}},
	}}
	env := evalEnv{ctx: map[string]any{"items": []any{"one", "two", "three"}}}
	errs := &RenderErrors{}

	require.NoError(t, expandTable(0, table, env, errs))

	require.Len(t, table.Rows, 3)
	assert.Equal(t, "one", table.Rows[0].Cells[0].PlainText())
	assert.Equal(t, "two", table.Rows[1].Cells[0].PlainText())
	assert.Equal(t, "three", table.Rows[2].Cells[0].PlainText())
}

func TestExpandTableColumnFillClonesRowWhenTableRunsOut(t *testing.T) {
	table := &Table{Rows: []*TableRow{
		{Cells: []*TableCell{textCell("{{ items }}")}},
	}}
	env := evalEnv{ctx: map[string]any{"items": []any{"one", "two"}}}
	errs := &RenderErrors{}

	require.NoError(t, expandTable(0, table, env, errs))

	require.Len(t, table.Rows, 2)
	assert.Equal(t, "one", table.Rows[0].Cells[0].PlainText())
	assert.Equal(t, "two", table.Rows[1].Cells[0].PlainText())
}

func TestExpandTableColumnFillRefusesToOverwriteNonEmptyCell(t *testing.T) {
	table := &Table{Rows: []*TableRow{
		{Cells: []*TableCell{textCell("{{ items }}")}},
		{Cells: []*TableCell{textCell("already has data")}},
	}}
	env := evalEnv{ctx: map[string]any{"items": []any{"one", "two"}}}
	errs := &RenderErrors{}

	err := expandTable(3, table, env, errs)
	require.Error(t, err)
	var overwrite *CellOverwriteError
	require.ErrorAs(t, err, &overwrite)
	assert.Equal(t, 3, overwrite.Table)
}

// A clone grown past the last existing row must copy the source row (the
// one holding the original placeholder), not whatever row happens to sit
// last once other columns have already grown the table.
func TestExpandTableColumnFillClonesSourceRowNotLastRow(t *testing.T) {
	table := &Table{Rows: []*TableRow{
		{Cells: []*TableCell{textCell("{{ items }}"), textCell("label")}},
	}}
	env := evalEnv{ctx: map[string]any{"items": []any{"one", "two"}}}
	errs := &RenderErrors{}

	require.NoError(t, expandTable(0, table, env, errs))

	require.Len(t, table.Rows, 2)
	assert.Equal(t, "two", table.Rows[1].Cells[0].PlainText())
	assert.Len(t, table.Rows[1].Cells, 2)
	assert.Equal(t, "label", table.Rows[1].Cells[1].PlainText())
}

func TestExpandTableMixedTextUsesRunReassembly(t *testing.T) {
	table := &Table{Rows: []*TableRow{
		{Cells: []*TableCell{textCell("Total: {{ total }}")}},
	}}
	env := evalEnv{ctx: map[string]any{"total": "100"}}
	errs := &RenderErrors{}

	require.NoError(t, expandTable(0, table, env, errs))
	assert.Equal(t, "Total: 100", table.Rows[0].Cells[0].PlainText())
}
