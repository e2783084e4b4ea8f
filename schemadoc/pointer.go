package schemadoc

import (
	"fmt"
	"strconv"
	"strings"
)

// RootPointer addresses the document root.
const RootPointer = "#"

// Schema keywords that appear as pointer segments.
const (
	KeywordProperties  = "properties"
	KeywordItems       = "items"
	KeywordDefs        = "$defs"
	KeywordDefinitions = "definitions"
)

// EscapeSegment applies RFC 6901 escaping to a single segment.
func EscapeSegment(segment string) string {
	segment = strings.ReplaceAll(segment, "~", "~0")
	return strings.ReplaceAll(segment, "/", "~1")
}

// UnescapeSegment reverses EscapeSegment.
func UnescapeSegment(segment string) string {
	segment = strings.ReplaceAll(segment, "~1", "/")
	return strings.ReplaceAll(segment, "~0", "~")
}

// MakePointer appends escaped segments to base.
func MakePointer(base string, segments ...string) string {
	var sb strings.Builder
	sb.WriteString(base)
	for _, segment := range segments {
		sb.WriteByte('/')
		sb.WriteString(EscapeSegment(segment))
	}
	return sb.String()
}

// Segments returns the unescaped segments after the root marker.
func Segments(pointer string) []string {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(pointer, RootPointer), "/")
	if trimmed == "" {
		return nil
	}
	parts := strings.Split(trimmed, "/")
	for i, part := range parts {
		parts[i] = UnescapeSegment(part)
	}
	return parts
}

// SplitPointer splits a pointer into its base and its unescaped last segment.
func SplitPointer(pointer string) (base, name string) {
	idx := strings.LastIndex(pointer, "/")
	if idx < 0 {
		return pointer, ""
	}
	return pointer[:idx], UnescapeSegment(pointer[idx+1:])
}

// ReplaceLastSegment swaps the last segment of pointer for name.
func ReplaceLastSegment(pointer, name string) string {
	base, _ := SplitPointer(pointer)
	return MakePointer(base, name)
}

// HasPrefix reports whether pointer is prefix itself or lies below it.
func HasPrefix(pointer, prefix string) bool {
	return pointer == prefix || strings.HasPrefix(pointer, prefix+"/")
}

// ReplacePrefix rewrites the prefix of pointer. ok is false when pointer is not under prefix.
func ReplacePrefix(pointer, prefix, replacement string) (string, bool) {
	if !HasPrefix(pointer, prefix) {
		return pointer, false
	}
	return replacement + pointer[len(prefix):], true
}

// IsDefinition reports whether pointer addresses a definition or something inside one.
func IsDefinition(pointer string) bool {
	return strings.HasPrefix(pointer, MakePointer(RootPointer, KeywordDefs)+"/") ||
		strings.HasPrefix(pointer, MakePointer(RootPointer, KeywordDefinitions)+"/")
}

// IsLocalRef reports whether a $ref value points inside the current document.
func IsLocalRef(ref string) bool {
	return ref == RootPointer || strings.HasPrefix(ref, RootPointer+"/")
}

// Resolve walks a local pointer ("#/a/b", "/a/b" or "#") through the document.
func Resolve(doc *Object, pointer string) (any, error) {
	if pointer == RootPointer || pointer == "" || pointer == "/" {
		return doc, nil
	}
	if !strings.HasPrefix(pointer, RootPointer+"/") && !strings.HasPrefix(pointer, "/") {
		return nil, fmt.Errorf("pointer %q is not local to the document", pointer)
	}

	var current any = doc
	for _, part := range Segments(strings.TrimPrefix(pointer, RootPointer)) {
		switch v := current.(type) {
		case *Object:
			next, ok := v.Get(part)
			if !ok {
				return nil, fmt.Errorf("key not found: %s", part)
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("invalid array index: %s", part)
			}
			if idx < 0 || idx >= len(v) {
				return nil, fmt.Errorf("array index out of bounds: %d", idx)
			}
			current = v[idx]
		default:
			return nil, fmt.Errorf("cannot traverse into %T", current)
		}
	}
	return current, nil
}

// ResolveObject is Resolve for pointers that must address a schema object.
func ResolveObject(doc *Object, pointer string) (*Object, error) {
	target, err := Resolve(doc, pointer)
	if err != nil {
		return nil, err
	}
	obj, ok := target.(*Object)
	if !ok {
		return nil, fmt.Errorf("pointer %q does not address an object", pointer)
	}
	return obj, nil
}
