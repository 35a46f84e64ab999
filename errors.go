// Copyright 2016 - 2021 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package doctmpl

import "fmt"

// Structural errors (§7 of the spec) abort the render immediately. Each
// carries enough detail for a caller to locate the offending shape/cell.

// UnterminatedTagError is raised when a paragraph contains an opening "{{"
// with no matching "}}" across any of its runs.
type UnterminatedTagError struct {
	Slide     int
	Paragraph string
}

func (e *UnterminatedTagError) Error() string {
	return fmt.Sprintf("doctmpl: unterminated tag on slide %d: %q", e.Slide, e.Paragraph)
}

// BadTagError is raised for a malformed expression: unmatched brackets, an
// unparseable segment, or a format that cannot be translated/applied.
type BadTagError struct {
	Expr   string
	Reason string
}

func (e *BadTagError) Error() string {
	return fmt.Sprintf("doctmpl: bad tag %q: %s", e.Expr, e.Reason)
}

// TagCallableError is raised when a segment supplies call arguments against
// a non-callable value, or the callable itself fails.
type TagCallableError struct {
	Expr   string
	Reason string
}

func (e *TagCallableError) Error() string {
	return fmt.Sprintf("doctmpl: tag %q not callable: %s", e.Expr, e.Reason)
}

// CellOverwriteError is raised when column-fill would clobber a non-empty
// cell while placing overflow list items.
type CellOverwriteError struct {
	Table, Row, Col int
}

func (e *CellOverwriteError) Error() string {
	return fmt.Sprintf("doctmpl: column fill would overwrite table %d row %d col %d", e.Table, e.Row, e.Col)
}

// TableStructureError is raised when a row/table element the expander
// expects cannot be located.
type TableStructureError struct {
	Reason string
}

func (e *TableStructureError) Error() string {
	return fmt.Sprintf("doctmpl: table structure error: %s", e.Reason)
}

// ChartError is raised when a chart rewrite (C10) fails.
type ChartError struct {
	Chart  string
	Reason string
}

func (e *ChartError) Error() string {
	return fmt.Sprintf("doctmpl: chart %q rewrite failed: %s", e.Chart, e.Reason)
}

// UnsupportedFileTypeError is raised when the input stream dispatched to
// RenderPPTX/RenderXLSX is not the expected OOXML package kind.
type UnsupportedFileTypeError struct {
	Detected string
}

func (e *UnsupportedFileTypeError) Error() string {
	return fmt.Sprintf("doctmpl: unsupported file type: %s", e.Detected)
}

// LoopStructureError is raised for malformed %loop%/%endloop% sentinel
// sequences (nesting, unmatched, multiple sentinels on one slide).
type LoopStructureError struct {
	Reason string
}

func (e *LoopStructureError) Error() string {
	return fmt.Sprintf("doctmpl: loop structure error: %s", e.Reason)
}

// DocumentError wraps a failure opening, parsing, or serializing the
// underlying zip/XML package.
type DocumentError struct {
	Op     string
	Part   string
	Reason error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("doctmpl: %s %s: %v", e.Op, e.Part, e.Reason)
}

func (e *DocumentError) Unwrap() error { return e.Reason }

func newDocumentError(op, part string, reason error) *DocumentError {
	return &DocumentError{Op: op, Part: part, Reason: reason}
}

// recoverableError marks the two kinds (MissingData, PermissionDenied) whose
// disposition is "accumulate", per spec.md §7, rather than "raise".
type recoverableError interface {
	error
	recoverable() string // the raw expression text to record
}

// MissingDataError is recoverable: a named attribute was absent on an
// object. C6 accumulates its expression text rather than aborting.
type MissingDataError struct{ Expr string }

func (e *MissingDataError) Error() string       { return fmt.Sprintf("doctmpl: missing data for %q", e.Expr) }
func (e *MissingDataError) recoverable() string { return e.Expr }

// PermissionDeniedError is recoverable: the principal denied view of a
// resolved record. C6 accumulates its expression text rather than aborting.
type PermissionDeniedError struct{ Expr string }

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("doctmpl: permission denied for %q", e.Expr)
}
func (e *PermissionDeniedError) recoverable() string { return e.Expr }

// RenderErrors accumulates the recoverable error kinds of §7 (MissingData,
// PermissionDenied) across a full render. A non-empty RenderErrors means the
// render traversed to completion but produced no output, per spec.md §7,
// unless RenderOptions.OnMissingPolicy is OnMissingEmit.
type RenderErrors struct {
	Missing    []string // raw expression text of tags whose data was missing
	Permission []string // raw expression text of tags denied by the principal
}

// Empty reports whether no recoverable errors were recorded.
func (e *RenderErrors) Empty() bool {
	return e == nil || (len(e.Missing) == 0 && len(e.Permission) == 0)
}

func (e *RenderErrors) addMissing(expr string) {
	e.Missing = append(e.Missing, expr)
}

func (e *RenderErrors) addPermission(expr string) {
	e.Permission = append(e.Permission, expr)
}

// Strings renders the accumulated errors as the flat human-readable list
// described in spec.md §6 ("Error surface").
func (e *RenderErrors) Strings() []string {
	if e == nil {
		return nil
	}
	out := make([]string, 0, len(e.Missing)+len(e.Permission))
	for _, m := range e.Missing {
		out = append(out, fmt.Sprintf("missing data for tag: %s", m))
	}
	for _, p := range e.Permission {
		out = append(out, fmt.Sprintf("permission denied for tag: %s", p))
	}
	return out
}
