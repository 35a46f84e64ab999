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

const testChartXML = `<c:chartSpace xmlns:c="http://schemas.openxmlformats.org/drawingml/2006/chart">` +
	`<c:chart><c:cat><c:strRef><c:strCache><c:pt><c:v>{{ label }}</c:v></c:pt></c:strCache></c:strRef></c:cat>` +
	`<c:val><c:numRef><c:numCache><c:pt><c:v>100</c:v></c:pt></c:numCache></c:numRef></c:val></c:chart></c:chartSpace>`

func TestRewriteChartSubstitutesCategoryLabel(t *testing.T) {
	env := evalEnv{ctx: map[string]any{"label": "Q1"}}
	errs := &RenderErrors{}

	out, err := rewriteChart([]byte(testChartXML), env, errs, nil)
	require.NoError(t, err)
	assert.Contains(t, string(out), "Q1")
	assert.NotContains(t, string(out), "{{ label }}")
}

func TestRewriteChartLeavesSeriesValuesUntouched(t *testing.T) {
	env := evalEnv{ctx: map[string]any{"label": "Q1"}}
	errs := &RenderErrors{}

	out, err := rewriteChart([]byte(testChartXML), env, errs, nil)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(out), ">100<"))
}

func TestValidateChartPictureFillSkippedWhenNoResolver(t *testing.T) {
	err := validateChartPictureFill([]byte(testChartXML), nil)
	assert.NoError(t, err)
}

func TestValidateChartPictureFillSkippedWhenNoBlipEmbed(t *testing.T) {
	resolver := func(relID string) ([]byte, bool) {
		t.Fatal("resolver should not be called when no r:embed is present")
		return nil, false
	}
	err := validateChartPictureFill([]byte(testChartXML), resolver)
	assert.NoError(t, err)
}

func TestValidateChartPictureFillErrorsOnUndecodableMedia(t *testing.T) {
	xmlWithBlip := `<c:chart><a:blip r:embed="rId7"/></c:chart>`
	resolver := func(relID string) ([]byte, bool) {
		assert.Equal(t, "rId7", relID)
		return []byte("not an image"), true
	}

	err := validateChartPictureFill([]byte(xmlWithBlip), resolver)
	require.Error(t, err)
	var chartErr *ChartError
	require.ErrorAs(t, err, &chartErr)
}
