// Copyright 2016 - 2021 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package doctmpl

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/xuri/efp"
)

// sheetDataRe locates a worksheet part's <sheetData> span (self-closing or
// not) so rewriteWorksheetXML can re-marshal only that element and leave
// every sibling (column widths, sheet views, conditional formats, page
// setup) byte-for-byte untouched.
var sheetDataRe = regexp.MustCompile(`(?s)<sheetData(?:\s[^>]*)?(?:/>|>.*?</sheetData>)`)

// rewriteWorksheetXML substitutes placeholders across a worksheet part's
// <sheetData> only, splicing the re-marshaled fragment back into the
// original bytes. Unmarshaling the whole <worksheet> element with both a
// typed SheetData field and a blanket ",innerxml" catch-all would capture
// sheetData twice (once decoded, once raw) and double-emit it on marshal,
// so the cell-rewrite pass is scoped to the sheetData span directly instead.
func rewriteWorksheetXML(raw []byte, sharedStrings []string, env evalEnv, errs *RenderErrors, failOnNonNumeric bool) ([]byte, error) {
	loc := sheetDataRe.FindIndex(raw)
	if loc == nil {
		return nil, newDocumentError("parse", "sheetData", fmt.Errorf("no <sheetData> element found"))
	}

	var sd sheetDataXML
	if err := xml.Unmarshal(raw[loc[0]:loc[1]], &sd); err != nil {
		return nil, newDocumentError("parse", "sheetData", err)
	}

	if err := walkWorksheet(&sd, sharedStrings, env, errs, failOnNonNumeric); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	if err := enc.Encode(&sd); err != nil {
		return nil, newDocumentError("marshal", "sheetData", err)
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(raw)-(loc[1]-loc[0])+buf.Len())
	out = append(out, raw[:loc[0]]...)
	out = append(out, buf.Bytes()...)
	out = append(out, raw[loc[1]:]...)
	return out, nil
}

type sheetDataXML struct {
	XMLName xml.Name  `xml:"sheetData"`
	Rows    []*rowXML `xml:"row"`
}

type rowXML struct {
	XMLName xml.Name   `xml:"row"`
	R       string     `xml:"r,attr"`
	Attrs   []xml.Attr `xml:",any,attr"`
	Cells   []*cellXML `xml:"c"`
}

// cellXML is a single <c> spreadsheet cell. T is the cell's declared type
// ("s" shared string, "str" formula result string, "inlineStr", numeric
// when empty); F, when present and it tokenizes as a formula
// (isFormulaCell), disables substitution for the cell. The formula text
// itself is never read as template text.
type cellXML struct {
	XMLName xml.Name    `xml:"c"`
	R       string      `xml:"r,attr"`
	T       string      `xml:"t,attr,omitempty"`
	S       string      `xml:"s,attr,omitempty"`
	F       *string     `xml:"f"`
	V       *string     `xml:"v"`
	IS      *inlineStrXML `xml:"is"`
}

type inlineStrXML struct {
	T string `xml:"t"`
}

// cellHostAdapter lets cellXML satisfy CellHost without the xlsx model
// depending on the pptx package's TableCell type.
type cellHostAdapter struct{ c *cellXML }

func (a cellHostAdapter) PlainText() string {
	if a.c.IS != nil {
		return a.c.IS.T
	}
	if a.c.T == "str" && a.c.V != nil {
		return *a.c.V
	}
	return ""
}

func (a cellHostAdapter) SetPlainText(s string) {
	a.c.T = "inlineStr"
	a.c.F = nil
	a.c.V = nil
	a.c.IS = &inlineStrXML{T: s}
}

func (a cellHostAdapter) IsEmpty() bool {
	return trimSpace(a.PlainText()) == ""
}

// sharedStrings is the shared-string table (xl/sharedStrings.xml); cells of
// type "s" index into it rather than carrying their text inline.
type sharedStringsXML struct {
	XMLName xml.Name `xml:"sst"`
	SI      []struct {
		T string `xml:"t"`
	} `xml:"si"`
}

func parseSharedStrings(data []byte) ([]string, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var sst sharedStringsXML
	if err := xml.Unmarshal(data, &sst); err != nil {
		return nil, newDocumentError("parse", "xl/sharedStrings.xml", err)
	}
	out := make([]string, len(sst.SI))
	for i, si := range sst.SI {
		out[i] = si.T
	}
	return out, nil
}

// isFormulaCell reports whether formula looks like a real spreadsheet formula
// (as opposed to placeholder prose that happens to start with "="), by
// running it through the Excel formula tokenizer and checking it actually
// parses into tokens.
func isFormulaCell(formula string) bool {
	trimmed := strings.TrimPrefix(strings.TrimSpace(formula), "=")
	if trimmed == "" {
		return false
	}
	ps := efp.ExcelParser()
	tokens := ps.Parse(trimmed)
	return len(tokens.Items) > 0
}

// walkWorksheet implements the xlsx branch of C6/C8: for every non-formula
// cell whose resolved text contains a placeholder, substitute it, coercing
// the result back to a number when it parses as one (so a {{ amount }} tag
// lands in a genuinely numeric cell rather than a numeric-looking string),
// per opts.FailOnNonNumeric.
func walkWorksheet(sd *sheetDataXML, sharedStrings []string, env evalEnv, errs *RenderErrors, failOnNonNumeric bool) error {
	for _, row := range sd.Rows {
		for _, cell := range row.Cells {
			if err := walkCell(cell, sharedStrings, env, errs, failOnNonNumeric); err != nil {
				return err
			}
		}
	}
	return nil
}

func walkCell(cell *cellXML, sharedStrings []string, env evalEnv, errs *RenderErrors, failOnNonNumeric bool) error {
	if cell.F != nil {
		if isFormulaCell(*cell.F) {
			return nil
		}
	}

	text, ok := cellText(cell, sharedStrings)
	if !ok || !strings.Contains(text, "{{") {
		return nil
	}

	host := cellHostAdapter{c: cell}
	if result, pure, err := resolveCellPlaceholder(text, env, errs); pure {
		if err != nil {
			return err
		}
		if len(result) == 0 {
			host.SetPlainText("")
			return nil
		}
		// Overflow items from a list-valued scalar cell have no column to
		// grow into on a worksheet (that is the table expander's job on the
		// pptx side); spec.md's scope for xlsx cells is single-valued
		// substitution, so any extra items are folded into the one cell
		// joined the same way ModeNormal would.
		final := result[0]
		for _, extra := range result[1:] {
			final += ", " + extra
		}
		return setNumericAwareCellText(cell, final, failOnNonNumeric)
	}

	rendered := processNormal(text, env, errs)
	return setNumericAwareCellText(cell, rendered, failOnNonNumeric)
}

func cellText(cell *cellXML, sharedStrings []string) (string, bool) {
	switch cell.T {
	case "s":
		if cell.V == nil {
			return "", false
		}
		idx, err := strconv.Atoi(*cell.V)
		if err != nil || idx < 0 || idx >= len(sharedStrings) {
			return "", false
		}
		return sharedStrings[idx], true
	case "inlineStr":
		if cell.IS == nil {
			return "", false
		}
		return cell.IS.T, true
	case "str":
		if cell.V == nil {
			return "", false
		}
		return *cell.V, true
	default:
		return "", false
	}
}

// setNumericAwareCellText applies C6's xlsx-specific numeric-coercion
// policy: a rendered value that parses as a number is written as a plain
// numeric cell; otherwise it becomes an inline string. With
// failOnNonNumeric set, a non-numeric result is a structural error instead
// of a silent string fallback, since the caller asked every substituted
// cell in this sheet to be a number.
func setNumericAwareCellText(cell *cellXML, s string, failOnNonNumeric bool) error {
	coerced, err := coerceNumeric(s, failOnNonNumeric)
	if err != nil {
		return &BadTagError{Expr: cell.R, Reason: err.Error()}
	}
	switch v := coerced.(type) {
	case int64:
		numStr := strconv.FormatInt(v, 10)
		cell.T, cell.IS, cell.V = "", nil, &numStr
		return nil
	case float64:
		numStr := strconv.FormatFloat(v, 'g', -1, 64)
		cell.T, cell.IS, cell.V = "", nil, &numStr
		return nil
	}
	cellHostAdapter{c: cell}.SetPlainText(s)
	return nil
}
