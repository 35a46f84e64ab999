// Copyright 2016 - 2021 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package doctmpl

import (
	"bytes"
	"encoding/xml"
)

// RawElement preserves an XML element this engine does not interpret (a
// picture, a group shape, run/paragraph properties) byte-for-byte across a
// render, following the "split-run preservation" design note: only the
// pieces C5-C10 actually touch are modelled as structs, everything else
// round-trips as captured bytes.
type RawElement struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Inner   []byte     `xml:",innerxml"`
}

// Text is the <a:t> leaf of a run.
type Text struct {
	XMLName xml.Name `xml:"a:t"`
	Content string   `xml:",chardata"`
}

// Run is a single <a:r> styled-text run inside a paragraph (spec.md's
// GLOSSARY "Run"). RPr is preserved untouched; Text is the only part C7/C6
// rewrite.
type Run struct {
	XMLName xml.Name    `xml:"a:r"`
	RPr     *RawElement `xml:"a:rPr"`
	Text    *Text       `xml:"a:t"`
}

// Paragraph is an <a:p>: an ordered sequence of runs plus paragraph
// properties preserved untouched (spec.md GLOSSARY "Paragraph").
type Paragraph struct {
	XMLName    xml.Name    `xml:"a:p"`
	PPr        *RawElement `xml:"a:pPr"`
	Runs       []*Run      `xml:"a:r"`
	EndParaRPr *RawElement `xml:"a:endParaRPr"`
}

// PlainText concatenates every run's text, used by the loop processor (C9)
// and sentinel detector to read a shape's full text without caring how it
// is split across runs.
func (p *Paragraph) PlainText() string {
	var b bytes.Buffer
	for _, r := range p.Runs {
		if r.Text != nil {
			b.WriteString(r.Text.Content)
		}
	}
	return b.String()
}

// TxBody is a <p:txBody>: the text frame of a shape (spec.md GLOSSARY
// "Shape" / "text frame").
type TxBody struct {
	XMLName    xml.Name    `xml:"p:txBody"`
	BodyPr     *RawElement `xml:"a:bodyPr"`
	LstStyle   *RawElement `xml:"a:lstStyle"`
	Paragraphs []*Paragraph `xml:"a:p"`
}

// TextShape is a <p:sp> shape whose content is a text frame.
type TextShape struct {
	XMLName  xml.Name    `xml:"p:sp"`
	NvSpPr   *RawElement `xml:"p:nvSpPr"`
	SpPr     *RawElement `xml:"p:spPr"`
	Style    *RawElement `xml:"p:style"`
	TxBody   *TxBody     `xml:"p:txBody"`
}

// TableCell is an <a:tc>: a single cell in a table row (GLOSSARY "Cell").
type TableCell struct {
	XMLName xml.Name    `xml:"a:tc"`
	TcPr    *RawElement `xml:"a:tcPr"`
	TxBody  *TxBody     `xml:"a:txBody"`
}

// PlainText concatenates the text of every paragraph/run in the cell.
func (c *TableCell) PlainText() string {
	if c.TxBody == nil {
		return ""
	}
	var b bytes.Buffer
	for _, p := range c.TxBody.Paragraphs {
		b.WriteString(p.PlainText())
	}
	return b.String()
}

// SetPlainText replaces the cell's entire text content with s, collapsing
// to a single paragraph/run (used by column-fill's non-placeholder writes).
func (c *TableCell) SetPlainText(s string) {
	if c.TxBody == nil {
		c.TxBody = &TxBody{}
	}
	c.TxBody.Paragraphs = []*Paragraph{{
		Runs: []*Run{{Text: &Text{Content: s}}},
	}}
}

// IsEmpty reports whether the cell's trimmed text content is empty
// (spec.md §4.8 column-fill's "empty cell" predicate).
func (c *TableCell) IsEmpty() bool {
	return trimSpace(c.PlainText()) == ""
}

// TableRow is an <a:tr>.
type TableRow struct {
	XMLName xml.Name     `xml:"a:tr"`
	Height  string       `xml:"h,attr"`
	Cells   []*TableCell `xml:"a:tc"`
}

// Table is an <a:tbl> embedded in a <p:graphicFrame> (GLOSSARY "Cell" /
// spec.md §4.8 Table expander).
type Table struct {
	XMLName  xml.Name    `xml:"a:tbl"`
	TblPr    *RawElement `xml:"a:tblPr"`
	TblGrid  *RawElement `xml:"a:tblGrid"`
	Rows     []*TableRow `xml:"a:tr"`
}

// GraphicData is an <a:graphicData>, the URI-tagged wrapper distinguishing
// a table's graphic data from a chart's.
type GraphicData struct {
	XMLName xml.Name `xml:"a:graphicData"`
	URI     string   `xml:"uri,attr"`
	Table   *Table   `xml:"a:tbl"`
}

// Graphic is an <a:graphic>.
type Graphic struct {
	XMLName     xml.Name    `xml:"a:graphic"`
	GraphicData GraphicData `xml:"a:graphicData"`
}

const tableGraphicDataURI = "http://schemas.openxmlformats.org/drawingml/2006/table"

// TableShape is a <p:graphicFrame> whose graphic data is a table.
type TableShape struct {
	XMLName xml.Name    `xml:"p:graphicFrame"`
	NvPr    *RawElement `xml:"p:nvGraphicFramePr"`
	Xfrm    *RawElement `xml:"p:xfrm"`
	Graphic Graphic     `xml:"a:graphic"`
}

// Table returns the shape's embedded table (never nil for a populated
// TableShape; decoding only produces one when the graphicData URI matched).
func (ts *TableShape) Table() *Table { return ts.Graphic.GraphicData.Table }

// ChartShape is a <p:graphicFrame> whose graphic data is a chart
// reference; the actual category/series data lives in a separate
// ppt/charts/chartN.xml part named by RelID (spec.md §4.10).
type ChartShape struct {
	XMLName xml.Name    `xml:"p:graphicFrame"`
	NvPr    *RawElement `xml:"p:nvGraphicFramePr"`
	Xfrm    *RawElement `xml:"p:xfrm"`
	RelID   string
}

// ShapeNode is a single child of a slide's <p:spTree>: exactly one of Text,
// Table, Chart, or Raw is populated, with Raw the fallback for shape kinds
// this engine does not template (pictures, connectors, groups) — preserved
// byte-for-byte, per the "document-model mutation during traversal" design
// note (build a plan, never half-apply structural edits).
type ShapeNode struct {
	Text  *TextShape
	Table *TableShape
	Chart *ChartShape
	Raw   *RawElement
}

// UnmarshalXML dispatches on the element's local name to decide which
// concrete shape kind to decode into.
func (s *ShapeNode) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	switch localName(start.Name) {
	case "sp":
		var sp TextShape
		if err := d.DecodeElement(&sp, &start); err != nil {
			return err
		}
		s.Text = &sp
		return nil
	case "graphicFrame":
		var raw RawElement
		if err := d.DecodeElement(&raw, &start); err != nil {
			return err
		}
		if bytes.Contains(raw.Inner, []byte("drawingml/2006/table")) {
			tbl, err := decodeElementBytes[TableShape](start, raw)
			if err != nil {
				return err
			}
			s.Table = tbl
			return nil
		}
		if relID := extractChartRelID(raw.Inner); relID != "" {
			s.Chart = &ChartShape{XMLName: start.Name, RelID: relID}
			return nil
		}
		s.Raw = &raw
		return nil
	default:
		var raw RawElement
		if err := d.DecodeElement(&raw, &start); err != nil {
			return err
		}
		s.Raw = &raw
		return nil
	}
}

// MarshalXML re-emits whichever concrete shape was populated.
func (s ShapeNode) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	switch {
	case s.Text != nil:
		return e.EncodeElement(s.Text, xml.StartElement{Name: xml.Name{Local: "p:sp"}})
	case s.Table != nil:
		return e.EncodeElement(s.Table, xml.StartElement{Name: xml.Name{Local: "p:graphicFrame"}})
	case s.Chart != nil:
		return e.Encode(s.Chart.raw())
	default:
		return e.EncodeElement(s.Raw, xml.StartElement{Name: s.Raw.XMLName})
	}
}

// raw reconstructs the graphicFrame wrapper around a chart reference so a
// ChartShape (which only tracks RelID internally) can be re-serialized.
func (cs *ChartShape) raw() *RawElement {
	inner := `<p:nvGraphicFramePr/><p:xfrm/><a:graphic><a:graphicData uri="http://schemas.openxmlformats.org/drawingml/2006/chart">` +
		`<c:chart xmlns:c="http://schemas.openxmlformats.org/drawingml/2006/chart" r:id="` + cs.RelID + `"/>` +
		`</a:graphicData></a:graphic>`
	return &RawElement{XMLName: xml.Name{Local: "p:graphicFrame"}, Inner: []byte(inner)}
}

func extractChartRelID(inner []byte) string {
	const marker = `c:chart`
	idx := bytes.Index(inner, []byte(marker))
	if idx == -1 {
		return ""
	}
	rest := inner[idx:]
	ridIdx := bytes.Index(rest, []byte(`r:id="`))
	if ridIdx == -1 {
		return ""
	}
	rest = rest[ridIdx+len(`r:id="`):]
	end := bytes.IndexByte(rest, '"')
	if end == -1 {
		return ""
	}
	return string(rest[:end])
}

func localName(n xml.Name) string {
	if i := bytes.LastIndexByte([]byte(n.Local), ':'); i != -1 {
		return n.Local[i+1:]
	}
	return n.Local
}

// decodeElementBytes re-decodes a captured RawElement's reconstructed XML
// into a concrete struct type T, used when the first pass (RawElement)
// only determined the element's kind.
func decodeElementBytes[T any](start xml.StartElement, raw RawElement) (*T, error) {
	full := reconstructXML(start, raw)
	var out T
	if err := xml.Unmarshal(full, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// reconstructXML rebuilds a standalone XML document for a previously
// captured element (a start tag plus its innerxml) so it can be
// re-unmarshalled into a more specific struct.
func reconstructXML(start xml.StartElement, raw RawElement) []byte {
	var b bytes.Buffer
	b.WriteByte('<')
	b.WriteString(start.Name.Local)
	for _, a := range raw.Attrs {
		b.WriteByte(' ')
		if a.Name.Space != "" {
			b.WriteString(a.Name.Space)
			b.WriteByte(':')
		}
		b.WriteString(a.Name.Local)
		b.WriteString(`="`)
		b.WriteString(xmlEscapeAttr(a.Value))
		b.WriteString(`"`)
	}
	b.WriteByte('>')
	b.Write(raw.Inner)
	b.WriteString("</")
	b.WriteString(start.Name.Local)
	b.WriteByte('>')
	return b.Bytes()
}

func xmlEscapeAttr(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && isSpaceByte(s[start]) {
		start++
	}
	for end > start && isSpaceByte(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// SpTree is a slide's shape tree: <p:cSld><p:spTree>.
type SpTree struct {
	XMLName xml.Name    `xml:"p:spTree"`
	NvGrpSp *RawElement `xml:"p:nvGrpSpPr"`
	GrpSpPr *RawElement `xml:"p:grpSpPr"`
	Shapes  []ShapeNode `xml:",any"`
}

// CSld is a slide's <p:cSld>.
type CSld struct {
	XMLName xml.Name `xml:"p:cSld"`
	SpTree  SpTree   `xml:"p:spTree"`
}

// Slide is a single <p:sld> part (GLOSSARY "Slide").
type Slide struct {
	XMLName xml.Name    `xml:"p:sld"`
	Attrs   []xml.Attr  `xml:",any,attr"`
	CSld    CSld        `xml:"p:cSld"`
	ClrMapOvr *RawElement `xml:"p:clrMapOvr"`
}

// Shapes returns the slide's top-level shapes in document order.
func (s *Slide) Shapes() []ShapeNode { return s.CSld.SpTree.Shapes }

// SetShapes replaces the slide's shape list (renderSlide stores the
// processed shapes back through it).
func (s *Slide) SetShapes(shapes []ShapeNode) { s.CSld.SpTree.Shapes = shapes }
