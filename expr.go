// Copyright 2016 - 2021 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package doctmpl

import (
	"reflect"
	"strings"
	"time"
)

// reserved identifiers (spec.md §3).
const (
	identNow        = "now"
	identLoopCount  = "loop_count"
	identLoopNumber = "loop_number"
)

// evalEnv bundles everything evaluate() needs that is not part of the
// expression text itself.
type evalEnv struct {
	ctx       map[string]any
	principal Principal
	now       time.Time
}

// evaluate implements C5: evaluate(expr_text, context, principal) -> value,
// raising *BadTagError / *TagCallableError for structural problems and
// returning *MissingDataError / *PermissionDeniedError for recoverable ones
// (the caller, C6, decides disposition per spec.md §7). errs additionally
// receives a Permission-denied entry for every collection element the
// permission gate (C4) drops along the way, since a list result can contain
// several denials within a single evaluate call that otherwise returns
// successfully.
func evaluate(exprText string, env evalEnv, errs *RenderErrors) (any, error) {
	resolved, err := resolveSubExpressions(exprText, env, errs)
	if err != nil {
		return nil, err
	}

	if strings.ContainsAny(resolved, "{}") {
		return nil, &BadTagError{Expr: exprText, Reason: "unexpected '{' or '}' after sub-expression resolution"}
	}

	valueExpr, format, hasFormat := splitOnUnquotedPipe(resolved)

	segments, err := splitSegments(valueExpr)
	if err != nil {
		return nil, &BadTagError{Expr: exprText, Reason: err.Error()}
	}
	if len(segments) == 0 {
		return nil, &BadTagError{Expr: exprText, Reason: "empty expression"}
	}

	var current any
	start := 0
	if segments[0] == identNow {
		current = env.now
		start = 1
	} else {
		current = env.ctx
	}

	for i := start; i < len(segments); i++ {
		next, err := resolveSegment(current, segments[i], env, exprText, errs)
		if err != nil {
			return nil, err
		}
		current = next
	}

	if hasFormat {
		t, ok := asTime(current)
		if !ok {
			return nil, &BadTagError{Expr: exprText, Reason: "value does not support date formatting"}
		}
		layout := translateDateFormat(strings.TrimSpace(format))
		return t.Format(layout), nil
	}

	return current, nil
}

// resolveSubExpressions implements C5 step 1: repeatedly evaluate
// non-nested "$...$" spans and splice their stringified result back in,
// until none remain.
func resolveSubExpressions(s string, env evalEnv, errs *RenderErrors) (string, error) {
	for {
		start := strings.IndexByte(s, '$')
		if start == -1 {
			return s, nil
		}
		end := strings.IndexByte(s[start+1:], '$')
		if end == -1 {
			return "", &BadTagError{Expr: s, Reason: "unterminated sub-expression"}
		}
		end += start + 1
		inner := s[start+1 : end]
		val, err := evaluate(inner, env, errs)
		if err != nil {
			var missing *MissingDataError
			var denied *PermissionDeniedError
			if !(asType(err, &missing) || asType(err, &denied)) {
				return "", err
			}
			val = nil
		}
		s = s[:start] + stringify(val) + s[end+1:]
	}
}

func asType[T error](err error, target *T) bool {
	if e, ok := err.(T); ok {
		*target = e
		return true
	}
	return false
}

// splitOnUnquotedPipe implements C5 step 3: split on the first unquoted "|".
func splitOnUnquotedPipe(s string) (value, format string, has bool) {
	inSingle, inDouble := false, false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\'':
			if !inDouble {
				inSingle = !inSingle
			}
		case '"':
			if !inSingle {
				inDouble = !inDouble
			}
		case '|':
			if !inSingle && !inDouble {
				return s[:i], s[i+1:], true
			}
		}
	}
	return s, "", false
}

// splitSegments implements C5 step 4: split value-expr on "." but never on
// a "." inside "[...]".
func splitSegments(s string) ([]string, error) {
	var segments []string
	depth := 0
	last := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth < 0 {
				return nil, &parseError{"unbalanced ']'"}
			}
		case '.':
			if depth == 0 {
				segments = append(segments, s[last:i])
				last = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, &parseError{"unbalanced '['"}
	}
	segments = append(segments, s[last:])
	return segments, nil
}

type parseError struct{ msg string }

func (e *parseError) Error() string { return e.msg }

// resolveSegment implements C5's resolve_segment(current, seg) -> value.
func resolveSegment(current any, seg string, env evalEnv, fullExpr string, errs *RenderErrors) (any, error) {
	if err := checkBalanced(seg); err != nil {
		return nil, &BadTagError{Expr: fullExpr, Reason: err.Error()}
	}

	ident, args, hasCall, filter, hasFilter, err := parseSegment(seg)
	if err != nil {
		return nil, &BadTagError{Expr: fullExpr, Reason: err.Error()}
	}
	if ident == "" || ident == "#" || ident == "%" {
		return nil, &BadTagError{Expr: fullExpr, Reason: "empty or reserved-character segment"}
	}

	// reserved loop identifiers (loop_count, loop_number) resolve through
	// the ordinary attrGet path below: the loop processor (C9) injects them
	// as plain keys into the per-iteration context map.

	// Mapping over a list: spec.md §4.5 "if current is a list, map the
	// segment across it and flatten one level".
	if list, isList := asGenericList(current); isList {
		var mapped []any
		for _, item := range list {
			v, err := resolveSegment(item, seg, env, fullExpr, errs)
			if err != nil {
				var missing *MissingDataError
				var denied *PermissionDeniedError
				if asType(err, &denied) {
					errs.addPermission(fullExpr)
					continue
				}
				if asType(err, &missing) {
					continue
				}
				return nil, err
			}
			if sub, ok := asGenericList(v); ok {
				mapped = append(mapped, sub...)
			} else {
				mapped = append(mapped, v)
			}
		}
		return mapped, nil
	}

	fetched, found := attrGet(current, ident)
	if !found {
		return nil, &MissingDataError{Expr: fullExpr}
	}

	if hasCall {
		result, err := invokeCallable(fetched, args)
		if err != nil {
			return nil, &TagCallableError{Expr: fullExpr, Reason: err.Error()}
		}
		fetched = result
	}

	return applyCallAndFilter(fetched, nil, false, filter, hasFilter, env, fullExpr, errs)
}

// applyCallAndFilter handles the filter/all-capability branch and the
// scalar-coercion + equality-filter + permission branch of resolve_segment.
// Per spec.md §4.5: a denial drops the element from a collection result
// (recorded into errs for each dropped element) but marks the containing
// tag `Permission denied` when the original value was scalar.
func applyCallAndFilter(value any, args []string, hasCall bool, filter map[string]string, hasFilter bool, env evalEnv, fullExpr string, errs *RenderErrors) (any, error) {
	if hasCall {
		result, err := invokeCallable(value, args)
		if err != nil {
			return nil, &TagCallableError{Expr: fullExpr, Reason: err.Error()}
		}
		value = result
	}

	if q, ok := value.(Queryable); ok {
		var materialized any
		var err error
		if hasFilter {
			conds := make(map[string]any, len(filter))
			for k, v := range filter {
				conds[k] = parseLiteral(v)
			}
			materialized, err = q.Filter(conds)
		} else {
			materialized, err = q.All()
		}
		if err != nil {
			return nil, &TagCallableError{Expr: fullExpr, Reason: err.Error()}
		}
		list, _ := asGenericList(materialized)
		out, denied := filterAndPermit(list, nil, env)
		for i := 0; i < denied; i++ {
			errs.addPermission(fullExpr)
		}
		return out, nil
	}

	list, wasList := asGenericList(value)
	if !wasList {
		list = []any{value}
	}

	out, denied := filterAndPermit(list, filter, env)
	if !wasList {
		if denied > 0 {
			return nil, &PermissionDeniedError{Expr: fullExpr}
		}
		if len(out) == 0 {
			return nil, nil
		}
		return out[0], nil
	}
	for i := 0; i < denied; i++ {
		errs.addPermission(fullExpr)
	}
	return out, nil
}

// filterAndPermit applies the equality filter element-wise (C3 for the
// attribute side, C2 for the literal side) and then the permission gate
// (C4), dropping denied elements. deniedCount distinguishes a permission
// drop from an ordinary filter mismatch, since the two have different error
// dispositions at the scalar level (the caller records/raises accordingly).
func filterAndPermit(list []any, filter map[string]string, env evalEnv) (out []any, deniedCount int) {
	out = make([]any, 0, len(list))
	for _, item := range list {
		if filter != nil {
			match := true
			for key, litTok := range filter {
				attrVal, found := attrGet(item, key)
				if !found || !equalValue(attrVal, parseLiteral(litTok)) {
					match = false
					break
				}
			}
			if !match {
				continue
			}
		}
		if !allowed(item, env.principal) {
			deniedCount++
			continue
		}
		out = append(out, item)
	}
	return out, deniedCount
}

// equalValue compares a resolved attribute value against a C2-parsed
// literal with light numeric/string coercion.
func equalValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch bv := b.(type) {
	case bool:
		av, ok := a.(bool)
		return ok && av == bv
	case int64:
		return numericEqual(a, float64(bv))
	case float64:
		return numericEqual(a, bv)
	case string:
		return stringifyAny(a) == bv
	}
	return reflect.DeepEqual(a, b)
}

func numericEqual(a any, b float64) bool {
	switch v := a.(type) {
	case int:
		return float64(v) == b
	case int64:
		return float64(v) == b
	case float64:
		return v == b
	case float32:
		return float64(v) == b
	}
	return false
}

// asGenericList coerces v into a []any if it is a slice/array (including
// []any, or any other slice type via reflection), reporting ok=false for
// scalars.
func asGenericList(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if list, ok := v.([]any); ok {
		return list, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	}
	return time.Time{}, false
}

// stringify renders a resolved value as text for sub-expression splicing
// and normal-mode substitution.
func stringify(v any) string {
	if v == nil {
		return ""
	}
	if list, ok := asGenericList(v); ok {
		parts := make([]string, len(list))
		for i, item := range list {
			parts[i] = stringifyAny(item)
		}
		return strings.Join(parts, ", ")
	}
	return stringifyAny(v)
}

func stringifyAny(v any) string {
	switch t := v.(type) {
	case string:
		return sanitizeScalar(t)
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return fmtValue(t)
	}
}
