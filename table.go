// Copyright 2016 - 2021 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package doctmpl

import (
	"fmt"
	"strings"

	"github.com/mohae/deepcopy"
)

// expandTable implements C8: for each cell, decide whether it is a "pure"
// single-placeholder cell (table mode, possibly growing the column) or
// mixed text (run reassembly in normal mode). Per spec.md §9 Open Question
// 2, "pure" means the placeholder is the entire non-whitespace content of
// the cell.
func expandTable(tableIdx int, t *Table, env evalEnv, errs *RenderErrors) error {
	for rowIdx, row := range t.Rows {
		for colIdx, cell := range row.Cells {
			if err := expandCell(tableIdx, t, rowIdx, colIdx, cell, env, errs); err != nil {
				return err
			}
		}
	}
	return nil
}

func expandCell(tableIdx int, t *Table, rowIdx, colIdx int, cell *TableCell, env evalEnv, errs *RenderErrors) error {
	text := trimSpace(cell.PlainText())
	if result, pure, err := resolveCellPlaceholder(text, env, errs); pure {
		if err != nil {
			return err
		}
		if len(result) == 0 {
			cell.SetPlainText("")
			return nil
		}
		cell.SetPlainText(result[0])
		if len(result) > 1 {
			return columnFill(tableIdx, t, rowIdx, colIdx, result[1:])
		}
		return nil
	}

	if cell.TxBody == nil {
		return nil
	}
	for _, p := range cell.TxBody.Paragraphs {
		if err := reassembleParagraph(p, env, ModeNormal, errs); err != nil {
			return err
		}
	}
	return nil
}

// isPurePlaceholder reports whether text is exactly one {{ ... }} tag with
// no other non-whitespace content, per spec.md §9 Open Question 2.
func isPurePlaceholder(text string) bool {
	matches := placeholderRe.FindAllStringIndex(text, -1)
	if len(matches) != 1 {
		return false
	}
	m := matches[0]
	return m[0] == 0 && m[1] == len(text)
}

// columnFill implements C8's "column fill" algorithm: write overflow[0] is
// already placed by the caller at (rowIdx, colIdx); this places the
// remaining items into empty cells below in the same column, cloning the
// source row (the one that held the original placeholder) when the table
// runs out of space, per spec.md §4.8 step 4.
func columnFill(tableIdx int, t *Table, rowIdx, colIdx int, overflow []string) error {
	sourceRow := t.Rows[rowIdx]
	cursor := rowIdx + 1
	for _, item := range overflow {
		placed := false
		for r := cursor; r < len(t.Rows); r++ {
			if colIdx >= len(t.Rows[r].Cells) {
				continue
			}
			target := t.Rows[r].Cells[colIdx]
			if target.IsEmpty() {
				target.SetPlainText(item)
				placed = true
				cursor = r + 1
				break
			}
			return &CellOverwriteError{Table: tableIdx, Row: r, Col: colIdx}
		}
		if placed {
			continue
		}
		cursor = len(t.Rows) + 1

		if len(t.Rows) >= MaxTableRowsPerExpansion {
			return &TableStructureError{Reason: fmt.Sprintf("table expansion exceeds %d rows", MaxTableRowsPerExpansion)}
		}

		clone, err := cloneRow(sourceRow)
		if err != nil {
			return err
		}
		clearPlaceholderCells(clone)
		if colIdx >= len(clone.Cells) {
			return &TableStructureError{Reason: "cloned row missing target column"}
		}
		clone.Cells[colIdx].SetPlainText(item)
		t.Rows = append(t.Rows, clone)
	}
	return nil
}

// cloneRow deep-copies a *TableRow via mohae/deepcopy so the clone's cell
// graph shares no pointers with the source row (SPEC_FULL.md §2).
func cloneRow(row *TableRow) (*TableRow, error) {
	copied := deepcopy.Copy(row)
	clone, ok := copied.(*TableRow)
	if !ok {
		return nil, &TableStructureError{Reason: "row clone produced unexpected type"}
	}
	return clone, nil
}

// clearPlaceholderCells blanks every cell in a freshly cloned row that
// still carries placeholder text, so a cloned row does not re-emit the
// same tag the original row resolved.
func clearPlaceholderCells(row *TableRow) {
	for _, cell := range row.Cells {
		if strings.Contains(cell.PlainText(), "{{") {
			cell.SetPlainText("")
		}
	}
}
