// Copyright 2016 - 2021 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.
//
// Package doctmpl renders PowerPoint (.pptx) and Excel (.xlsx) Office Open
// XML documents by substituting {{ ... }} placeholder expressions embedded
// in a template with values drawn from a caller-supplied context.
//
// The two entry points are RenderPPTX / RenderXLSX, which take an opened
// template, a context map, and an optional Principal for permission
// enforcement, and produce a rendered document plus an error report.
// ExtractContextKeys performs a static scan of a template and reports the
// top-level context identifiers it references, without evaluating anything.
package doctmpl
