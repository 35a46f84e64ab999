// Copyright 2016 - 2021 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package doctmpl

// Relationship types and content types the renderer driver (C12) uses to
// classify parts while walking a package. Adapted from the teacher's
// SourceRelationship*/ContentType* const block, trimmed to the presentation
// and spreadsheet parts this engine actually touches.
//
// The teacher's companion NameSpace* xml.Attr var-block (xmlns declarations
// for a freshly synthesized root element) has no equivalent here: every
// rewritten part is unmarshaled from, and re-marshaled back over, the
// template's own bytes (see model.go's catch-all xml:",any,attr" Attrs
// fields and xlsx.go's rewriteWorksheetXML), so the root element's existing
// xmlns declarations simply round-trip rather than ever needing to be
// synthesized.
const (
	RelTypeChart = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/chart"

	ContentTypeSlide     = "application/vnd.openxmlformats-officedocument.presentationml.slide+xml"
	ContentTypePresent   = "application/vnd.openxmlformats-officedocument.presentationml.presentation.main+xml"
	ContentTypeChart     = "application/vnd.openxmlformats-officedocument.drawingml.chart+xml"
	ContentTypeWorksheet = "application/vnd.openxmlformats-officedocument.spreadsheetml.worksheet+xml"

	presentationPartName = "ppt/presentation.xml"
	slidePartPrefix      = "ppt/slides/slide"
	slideRelsPrefix      = "ppt/slides/_rels/slide"
	workbookPartName     = "xl/workbook.xml"
	sheetPartPrefix      = "xl/worksheets/sheet"
	contentTypesPartName = "[Content_Types].xml"
)

// Office specifications and limits relevant to this engine's loop/table
// expansion (spec.md §8's cardinality/column-fill properties). Adapted from
// the teacher's "Excel specifications and limits" const block; enforced in
// buildRenderPlan (loop.go) and columnFill (table.go).
const (
	MaxSlidesPerLoopExpansion = 5000
	MaxTableRowsPerExpansion  = 100000
)
