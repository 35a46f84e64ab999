// Copyright 2016 - 2021 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package doctmpl

import (
	"reflect"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Principal answers permission queries for the record-like values a render
// resolves. A nil Principal disables permission checks entirely (spec.md §6).
type Principal interface {
	HasPerm(action string, obj any) bool
}

// RecordLike marks a Go value as subject to permission enforcement (C4).
// Values that do not implement it are always permitted, matching spec.md
// §4.4's "not record-like -> permitted" rule.
type RecordLike interface {
	IsRecordLike()
}

// Queryable is implemented by a Collection whose elements can be filtered
// or materialized server-side (spec.md §3's "server-side filtering").
type Queryable interface {
	Filter(conds map[string]any) (any, error)
	All() (any, error)
}

// nowProvider holds the wall-clock instant sampled once per render call (spec.md
// §5: "now" is consistent across all tags within one render). Renders pass
// their sampled instant down explicitly rather than reading the system clock
// mid-evaluation.
type nowProvider struct{ t time.Time }

func newNowProvider() nowProvider { return nowProvider{t: time.Now()} }

// attrGet implements C3: get(obj, name) -> value | missing. It splits name
// on "__" into a chain of parts and walks each part against current,
// returning ok=false the moment an attribute is genuinely absent (as
// distinct from present-but-nil, which returns ok=true, value=nil).
func attrGet(obj any, name string) (value any, ok bool) {
	parts := strings.Split(name, "__")
	current := obj
	for _, part := range parts {
		part = norm.NFC.String(part)
		if current == nil {
			return nil, true
		}
		next, found := attrGetOne(current, part)
		if !found {
			return nil, false
		}
		current = next
	}
	return current, true
}

// attrGetOne resolves a single "__"-delimited segment against current,
// auto-invoking zero-arg methods/callables per spec.md §4.3.
func attrGetOne(current any, part string) (value any, found bool) {
	switch v := current.(type) {
	case map[string]any:
		val, exists := v[part]
		if !exists {
			return nil, false
		}
		return invokeIfZeroArg(val), true
	case Mapping:
		val, exists := v.M[part]
		if !exists {
			return nil, false
		}
		return invokeIfZeroArg(unwrapContextValue(val)), true
	}

	rv := reflect.ValueOf(current)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, true
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		key := reflect.ValueOf(part)
		if !key.Type().AssignableTo(rv.Type().Key()) {
			return nil, false
		}
		val := rv.MapIndex(key)
		if !val.IsValid() {
			return nil, false
		}
		return invokeIfZeroArg(val.Interface()), true
	case reflect.Struct:
		field := rv.FieldByName(exportedName(part))
		if field.IsValid() && field.CanInterface() {
			return invokeIfZeroArg(field.Interface()), true
		}
	}

	// Zero-arg method, tried against the original (possibly pointer) value
	// so value-receiver and pointer-receiver methods both resolve.
	methodHolder := reflect.ValueOf(current)
	method := methodHolder.MethodByName(exportedName(part))
	if method.IsValid() {
		return invokeMethod(method)
	}

	return nil, false
}

// invokeIfZeroArg auto-invokes v when it is itself a zero-arg callable
// (e.g. a bound method value stored in a map), per spec.md §4.3.
func invokeIfZeroArg(v any) any {
	rv := reflect.ValueOf(v)
	if rv.IsValid() && rv.Kind() == reflect.Func && rv.Type().NumIn() == 0 {
		result, ok := invokeMethod(rv)
		if ok {
			return result
		}
		return nil
	}
	return v
}

// invokeMethod calls a zero-arg reflect.Value method/function, swallowing
// any failure (panic or error return) into (nil, true) per spec.md §4.3's
// "does not raise".
func invokeMethod(method reflect.Value) (value any, found bool) {
	defer func() {
		if recover() != nil {
			value, found = nil, true
		}
	}()
	if method.Type().NumIn() != 0 || method.Type().NumOut() == 0 {
		return nil, false
	}
	results := method.Call(nil)
	if len(results) == 2 {
		if errVal, ok := results[1].Interface().(error); ok && errVal != nil {
			return nil, true
		}
	}
	return results[0].Interface(), true
}

// exportedName capitalizes name's first rune so reflect field/method lookups
// against idiomatic Go exported identifiers succeed for lower_snake or
// lowerCamel template field names.
func exportedName(name string) string {
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

// allowed implements C4: allowed(value, principal) -> bool.
func allowed(value any, principal Principal) bool {
	if principal == nil {
		return true
	}
	if rl, ok := value.(RecordLike); ok {
		_ = rl
		return principal.HasPerm("view", value)
	}
	return true
}

// Mapping and unwrapContextValue support the ContextValue sum type named in
// SPEC_FULL.md §3; plain Go context values (map[string]any, slices, structs)
// are the common case and are handled directly by attrGet above, while
// Mapping lets embedding callers hand in an already-wrapped value explicitly.
type Mapping struct{ M map[string]ContextValue }

// ContextValue is the polymorphic context value described in SPEC_FULL.md
// §3; Mapping is its only implementation. Most templates never construct
// one: plain Go values are resolved as they are, without conversion.
type ContextValue interface{ isContextValue() }

func (Mapping) isContextValue() {}

func unwrapContextValue(v ContextValue) any {
	switch t := v.(type) {
	case Mapping:
		return t
	case nil:
		return nil
	default:
		return v
	}
}
