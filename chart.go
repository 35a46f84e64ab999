// Copyright 2016 - 2021 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package doctmpl

import (
	"bytes"
	"encoding/xml"
	"image"
	"io"
	"regexp"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// rewriteChart implements C10: re-evaluate the text of every category label
// and series name inside an embedded chart's data, rebuilding only those
// <c:v> text nodes that sit inside a <c:cat> or <c:tx> scope; <c:val>
// (the series' numeric values) is left untouched, per spec.md §4.10.
//
// mediaByRelID resolves a chart's picture-fill relationship id (if any) to
// the referenced media bytes, used only for the x/image decode sanity
// check described in SPEC_FULL.md §2; nil disables that check.
func rewriteChart(chartXML []byte, env evalEnv, errs *RenderErrors, mediaByRelID func(relID string) ([]byte, bool)) (out0 []byte, err error) {
	defer recoverStructural(&err)

	if err := validateChartPictureFill(chartXML, mediaByRelID); err != nil {
		return nil, err
	}

	decoder := xml.NewDecoder(bytes.NewReader(chartXML))
	var out bytes.Buffer
	encoder := xml.NewEncoder(&out)

	var scopeStack []string // tracks nesting of c:cat / c:tx scopes
	inValueScope := func() bool {
		for _, s := range scopeStack {
			if s == "cat" || s == "tx" {
				return true
			}
			if s == "val" {
				return false
			}
		}
		return false
	}

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ChartError{Reason: err.Error()}
		}

		switch t := tok.(type) {
		case xml.StartElement:
			scopeStack = append(scopeStack, localName(t.Name))
		case xml.EndElement:
			if len(scopeStack) > 0 {
				scopeStack = scopeStack[:len(scopeStack)-1]
			}
		case xml.CharData:
			if len(scopeStack) > 0 && scopeStack[len(scopeStack)-1] == "v" && inValueScope() {
				text := processNormal(string(t), env, errs)
				if encErr := encoder.EncodeToken(xml.CharData(text)); encErr != nil {
					return nil, &ChartError{Reason: encErr.Error()}
				}
				continue
			}
		}
		if err := encoder.EncodeToken(tok); err != nil {
			return nil, &ChartError{Reason: err.Error()}
		}
	}
	if err := encoder.Flush(); err != nil {
		return nil, &ChartError{Reason: err.Error()}
	}
	return out.Bytes(), nil
}

var blipEmbedRe = regexp.MustCompile(`r:embed="([^"]+)"`)

// validateChartPictureFill decodes a chart's plot-area picture fill (if
// any) with image.DecodeConfig so a corrupt/unsupported referenced media
// file surfaces as a ChartError rather than a half-rendered chart.
func validateChartPictureFill(chartXML []byte, mediaByRelID func(relID string) ([]byte, bool)) error {
	if mediaByRelID == nil {
		return nil
	}
	m := blipEmbedRe.FindSubmatch(chartXML)
	if m == nil {
		return nil
	}
	data, ok := mediaByRelID(string(m[1]))
	if !ok {
		return nil
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return &ChartError{Reason: "undecodable picture fill: " + err.Error()}
	}
	return nil
}
