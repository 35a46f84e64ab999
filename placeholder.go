// Copyright 2016 - 2021 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package doctmpl

import (
	"fmt"
	"regexp"
	"strings"
)

// placeholderRe matches a single {{ ... }} tag, non-greedily so adjacent
// tags in the same text are matched individually.
var placeholderRe = regexp.MustCompile(`\{\{(.*?)\}\}`)

// Mode selects how process (C6) handles a tag whose value resolves to a
// list.
type Mode int

const (
	// ModeNormal joins list results with ", " and always returns a string.
	ModeNormal Mode = iota
	// ModeTable preserves list-ness so the table expander (C8) can grow
	// the column; the input must contain exactly one placeholder.
	ModeTable
)

// process implements C6: process(text, env, mode) -> string | []string.
// Normal mode always returns exactly one string (wrapped in a 1-element
// slice for a uniform signature); table mode may return zero, one, or many
// strings.
func process(text string, env evalEnv, mode Mode, errs *RenderErrors) ([]string, error) {
	switch mode {
	case ModeTable:
		return processTable(text, env, errs)
	default:
		return []string{processNormal(text, env, errs)}
	}
}

// processNormal implements the "normal" branch of C6.
func processNormal(text string, env evalEnv, errs *RenderErrors) string {
	var out strings.Builder
	last := 0
	for _, loc := range placeholderRe.FindAllStringSubmatchIndex(text, -1) {
		out.WriteString(text[last:loc[0]])
		last = loc[1]

		exprText := strings.TrimSpace(text[loc[2]:loc[3]])
		value, err := evaluate(exprText, env, errs)
		if err != nil {
			if rec, ok := err.(recoverableError); ok {
				recordRecoverable(errs, rec)
				continue
			}
			// structural errors propagate; caller (C7/C8) surfaces them.
			panic(structuralPanic{err})
		}

		rendered := stringify(value)
		if rendered == "" {
			errs.addMissing(exprText)
		}
		out.WriteString(rendered)
	}
	out.WriteString(text[last:])
	return out.String()
}

// structuralPanic lets processNormal/processTable unwind through the
// regexp-driven substitution loop without plumbing an error return through
// every call site; recoverStructural converts it back into a normal error.
type structuralPanic struct{ err error }

func recoverStructural(errp *error) {
	if r := recover(); r != nil {
		if sp, ok := r.(structuralPanic); ok {
			*errp = sp.err
			return
		}
		panic(r)
	}
}

func recordRecoverable(errs *RenderErrors, rec recoverableError) {
	switch rec.(type) {
	case *MissingDataError:
		errs.addMissing(rec.recoverable())
	case *PermissionDeniedError:
		errs.addPermission(rec.recoverable())
	}
}

// processTable implements the "table" branch of C6.
func processTable(text string, env evalEnv, errs *RenderErrors) (result []string, err error) {
	defer recoverStructural(&err)

	matches := placeholderRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) != 1 {
		return nil, fmt.Errorf("doctmpl: table mode requires exactly one placeholder, found %d", len(matches))
	}
	loc := matches[0]
	prefix := text[:loc[0]]
	suffix := text[loc[1]:]
	exprText := strings.TrimSpace(text[loc[2]:loc[3]])

	value, evalErr := evaluate(exprText, env, errs)
	if evalErr != nil {
		if rec, ok := evalErr.(recoverableError); ok {
			recordRecoverable(errs, rec)
			return []string{prefix + suffix}, nil
		}
		return nil, evalErr
	}

	if list, isList := asGenericList(value); isList {
		if len(list) == 0 {
			return []string{}, nil
		}
		out := make([]string, len(list))
		for i, item := range list {
			out[i] = prefix + stringifyAny(item) + suffix
		}
		return out, nil
	}

	rendered := prefix + stringify(value) + suffix
	if stringify(value) == "" {
		errs.addMissing(exprText)
	}
	return []string{rendered}, nil
}

// processSegments is the helper named in spec.md §4.6's closing paragraph:
// given the list of text segments a run-reassembly pass produced, decide
// per-segment whether table-mode column expansion applies.
func processSegments(segments []string, env evalEnv, errs *RenderErrors) (out []string, expandable bool, err error) {
	defer recoverStructural(&err)

	if len(segments) == 1 && placeholderRe.MatchString(segments[0]) && len(placeholderRe.FindAllString(segments[0], -1)) == 1 {
		res, tableErr := processTable(segments[0], env, errs)
		if tableErr != nil {
			return nil, false, tableErr
		}
		return res, true, nil
	}

	out = make([]string, len(segments))
	for i, seg := range segments {
		out[i] = processNormal(seg, env, errs)
	}
	return out, false, nil
}

// CellHost is the shared contract table.go's pptx cell expander and
// xlsx.go's worksheet walker both satisfy, so the "pure placeholder decides
// between scalar write and column-fill" decision in C6/C8 is written once.
type CellHost interface {
	PlainText() string
	SetPlainText(s string)
	IsEmpty() bool
}

// resolveCellPlaceholder implements the per-cell decision shared by the
// pptx table expander and the xlsx worksheet walker: a pure single-tag
// cell goes through table mode (possibly yielding overflow for the caller
// to place); for anything else it returns pure=false and leaves ordinary
// run/text substitution to the caller.
func resolveCellPlaceholder(text string, env evalEnv, errs *RenderErrors) (result []string, pure bool, err error) {
	if !isPurePlaceholder(text) {
		return nil, false, nil
	}
	result, err = processTable(text, env, errs)
	return result, true, err
}

// coerceNumeric attempts a numeric parse of s for spreadsheet cells,
// returning the original string unchanged when it does not parse (or,
// with failOnNonNumeric, an error).
func coerceNumeric(s string, failOnNonNumeric bool) (any, error) {
	trimmed := strings.TrimSpace(s)
	if v := parseLiteral(trimmed); v != nil {
		switch v.(type) {
		case int64, float64:
			return v, nil
		}
	}
	if failOnNonNumeric {
		return nil, fmt.Errorf("doctmpl: value %q is not numeric", s)
	}
	return s, nil
}
