// Package schemadoc holds JSON Schema documents as insertion-ordered keyword maps.
//
// Property, definition and array-item order is part of a data model, so documents are never
// decoded into plain Go maps. Nested objects are *Object, arrays are []any and numbers keep
// their literal form as json.Number.
package schemadoc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Object is an insertion-ordered JSON object.
type Object struct {
	*orderedmap.OrderedMap[string, any]
}

// NewObject returns an empty Object.
func NewObject() *Object {
	return &Object{orderedmap.New[string, any]()}
}

// ObjectOf builds an Object from alternating key/value arguments.
func ObjectOf(kv ...any) *Object {
	obj := NewObject()
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			panic(fmt.Sprintf("schemadoc: key at position %d is %T, not string", i, kv[i]))
		}
		obj.Set(key, kv[i+1])
	}
	return obj
}

// Has reports whether the keyword is present, regardless of its value.
func (o *Object) Has(key string) bool {
	if o == nil || o.OrderedMap == nil {
		return false
	}
	_, ok := o.Get(key)
	return ok
}

// Keys returns the keys in insertion order.
func (o *Object) Keys() []string {
	if o == nil || o.OrderedMap == nil {
		return nil
	}
	keys := make([]string, 0, o.Len())
	for pair := o.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Each calls fn for every entry in insertion order.
func (o *Object) Each(fn func(key string, value any)) {
	if o == nil || o.OrderedMap == nil {
		return
	}
	for pair := o.Oldest(); pair != nil; pair = pair.Next() {
		fn(pair.Key, pair.Value)
	}
}

// Object returns the nested object stored under key.
func (o *Object) Object(key string) (*Object, bool) {
	if !o.Has(key) {
		return nil, false
	}
	v, _ := o.Get(key)
	obj, ok := v.(*Object)
	return obj, ok
}

// StringValue returns the string stored under key.
func (o *Object) StringValue(key string) (string, bool) {
	if !o.Has(key) {
		return "", false
	}
	v, _ := o.Get(key)
	s, ok := v.(string)
	return s, ok
}

// Array returns the array stored under key.
func (o *Object) Array(key string) ([]any, bool) {
	if !o.Has(key) {
		return nil, false
	}
	v, _ := o.Get(key)
	arr, ok := v.([]any)
	return arr, ok
}

// Bool returns the boolean stored under key.
func (o *Object) Bool(key string) (bool, bool) {
	if !o.Has(key) {
		return false, false
	}
	v, _ := o.Get(key)
	b, ok := v.(bool)
	return b, ok
}

// Int returns the integral number stored under key.
func (o *Object) Int(key string) (int, bool) {
	if !o.Has(key) {
		return 0, false
	}
	v, _ := o.Get(key)
	return ToInt(v)
}

// Strings returns the string elements of the array stored under key.
func (o *Object) Strings(key string) []string {
	arr, _ := o.Array(key)
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Clone returns a deep copy.
func (o *Object) Clone() *Object {
	if o == nil {
		return nil
	}
	out := NewObject()
	o.Each(func(key string, value any) {
		out.Set(key, CloneValue(value))
	})
	return out
}

// CloneValue deep-copies a decoded JSON value.
func CloneValue(v any) any {
	switch t := v.(type) {
	case *Object:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = CloneValue(item)
		}
		return out
	default:
		return v
	}
}

// ToInt converts a decoded JSON number to int.
func ToInt(v any) (int, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
		f, err := n.Float64()
		if err != nil || f != math.Trunc(f) {
			return 0, false
		}
		return int(f), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	}
	return 0, false
}

// MarshalJSON writes the entries in insertion order without HTML escaping.
func (o *Object) MarshalJSON() ([]byte, error) {
	if o == nil || o.OrderedMap == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for pair := o.Oldest(); pair != nil; pair = pair.Next() {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		key, err := encodeValue(pair.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		value, err := encodeValue(pair.Value)
		if err != nil {
			return nil, fmt.Errorf("encode %q: %w", pair.Key, err)
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object keeping key order at every depth.
func (o *Object) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	o.OrderedMap = parsed.OrderedMap
	return nil
}

func encodeValue(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Parse decodes a JSON document whose top level must be an object.
func Parse(data []byte) (*Object, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	value, err := decodeValue(dec)
	if err != nil {
		return nil, fmt.Errorf("parse JSON: %w", err)
	}
	obj, ok := value.(*Object)
	if !ok {
		return nil, fmt.Errorf("parse JSON: top level is %T, expected an object", value)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse JSON: unexpected data after top-level object")
	}
	return obj, nil
}

// ParseString is Parse for string input.
func ParseString(text string) (*Object, error) {
	return Parse([]byte(text))
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}
	switch delim {
	case '{':
		obj := NewObject()
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := keyTok.(string)
			if !ok {
				return nil, fmt.Errorf("object key is %T", keyTok)
			}
			value, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			obj.Set(key, value)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return obj, nil
	case '[':
		arr := make([]any, 0)
		for dec.More() {
			value, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, value)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return arr, nil
	}
	return nil, fmt.Errorf("unexpected delimiter %q", delim)
}

// Marshal encodes a document compactly.
func Marshal(o *Object) ([]byte, error) {
	return o.MarshalJSON()
}

// MarshalIndent encodes a document with two-space indentation.
func MarshalIndent(o *Object) ([]byte, error) {
	raw, err := o.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Equal compares two decoded JSON values ignoring object key order. Numbers compare by value.
func Equal(a, b any) bool {
	switch x := a.(type) {
	case *Object:
		y, ok := b.(*Object)
		if !ok || x.Len() != y.Len() {
			return false
		}
		for pair := x.Oldest(); pair != nil; pair = pair.Next() {
			other, ok := y.Get(pair.Key)
			if !ok || !Equal(pair.Value, other) {
				return false
			}
		}
		return true
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	}
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		return 0, false
	}
	return 0, false
}

// FormatNumber renders a decoded number the way it appeared in the source.
func FormatNumber(v any) (string, bool) {
	switch n := v.(type) {
	case json.Number:
		return n.String(), true
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64), true
	case int:
		return strconv.Itoa(n), true
	case int64:
		return strconv.FormatInt(n, 10), true
	}
	return "", false
}
