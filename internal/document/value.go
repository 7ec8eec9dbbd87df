// Package document holds the source side of the engine: a small tagged-union
// JSON value that represents one external entity (order, refund, inventory
// level, ...) and the path walking used by the field mapper.
//
// Values are immutable once built. Numbers keep their literal text so that
// large external identifiers survive without float rounding.
package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/zeebo/xxh3"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	Null Kind = iota
	Bool
	Number
	String
	Array
	Object
)

func (k Kind) String() string {
	switch k {
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return "null"
	}
}

// Value is one node of a JSON document. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	s    string // string content or number literal
	arr  []Value
	obj  map[string]Value
}

// NullValue is the explicit null.
var NullValue = Value{}

// StringValue wraps s.
func StringValue(s string) Value { return Value{kind: String, s: s} }

// NumberValue wraps a number literal such as "42" or "19.99".
func NumberValue(lit string) Value { return Value{kind: Number, s: lit} }

// BoolValue wraps b.
func BoolValue(b bool) Value { return Value{kind: Bool, b: b} }

// ArrayValue wraps elems.
func ArrayValue(elems []Value) Value { return Value{kind: Array, arr: elems} }

// ObjectValue wraps fields. The map is owned by the returned Value.
func ObjectValue(fields map[string]Value) Value {
	if fields == nil {
		fields = map[string]Value{}
	}
	return Value{kind: Object, obj: fields}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == Null }

// Str returns the string content when v is a string.
func (v Value) Str() (string, bool) { return v.s, v.kind == String }

// Literal returns the number literal when v is a number.
func (v Value) Literal() (string, bool) { return v.s, v.kind == Number }

// Boolean returns the bool when v is a bool.
func (v Value) Boolean() (bool, bool) { return v.b, v.kind == Bool }

// Float returns v as float64 for numbers and numeric strings.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case Number, String:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.s), 64)
		return f, err == nil
	}
	return 0, false
}

// Len returns the number of elements of an array or fields of an object.
func (v Value) Len() int {
	switch v.kind {
	case Array:
		return len(v.arr)
	case Object:
		return len(v.obj)
	}
	return 0
}

// Elements returns the elements of an array, or nil.
func (v Value) Elements() []Value {
	if v.kind != Array {
		return nil
	}
	return v.arr
}

// Field returns the value stored under key when v is an object.
func (v Value) Field(key string) (Value, bool) {
	if v.kind != Object {
		return NullValue, false
	}
	f, ok := v.obj[key]
	return f, ok
}

// Keys returns the object's keys in sorted order.
func (v Value) Keys() []string {
	if v.kind != Object {
		return nil
	}
	keys := make([]string, 0, len(v.obj))
	for k := range v.obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// With returns a copy of object v with key set to f. Non-objects are
// returned unchanged.
func (v Value) With(key string, f Value) Value {
	if v.kind != Object {
		return v
	}
	fields := make(map[string]Value, len(v.obj)+1)
	for k, x := range v.obj {
		fields[k] = x
	}
	fields[key] = f
	return ObjectValue(fields)
}

// Scalar converts v into the plain Go value handed to the coercion layer:
// nil, bool, json.Number or string. Arrays and objects become their compact
// JSON text.
func (v Value) Scalar() any {
	switch v.kind {
	case Null:
		return nil
	case Bool:
		return v.b
	case Number:
		return json.Number(v.s)
	case String:
		return v.s
	default:
		return v.JSON()
	}
}

// JSON renders v as compact JSON with object keys sorted.
func (v Value) JSON() string {
	var sb strings.Builder
	v.writeJSON(&sb)
	return sb.String()
}

func (v Value) writeJSON(sb *strings.Builder) {
	switch v.kind {
	case Null:
		sb.WriteString("null")
	case Bool:
		sb.WriteString(strconv.FormatBool(v.b))
	case Number:
		sb.WriteString(v.s)
	case String:
		b, _ := json.Marshal(v.s)
		sb.Write(b)
	case Array:
		sb.WriteByte('[')
		for i, e := range v.arr {
			if i > 0 {
				sb.WriteByte(',')
			}
			e.writeJSON(sb)
		}
		sb.WriteByte(']')
	case Object:
		sb.WriteByte('{')
		for i, k := range v.Keys() {
			if i > 0 {
				sb.WriteByte(',')
			}
			b, _ := json.Marshal(k)
			sb.Write(b)
			sb.WriteByte(':')
			v.obj[k].writeJSON(sb)
		}
		sb.WriteByte('}')
	}
}

// Fingerprint returns a stable 64-bit hash of v's canonical JSON, rendered as
// 16 hex digits. Equal documents always share a fingerprint regardless of the
// key order they arrived in.
func Fingerprint(v Value) string {
	return fmt.Sprintf("%016x", xxh3.HashString(v.JSON()))
}

// Parse decodes one JSON value. Number literals are kept verbatim.
func Parse(data []byte) (Value, error) {
	raw, typ, _, err := jsonparser.Get(data)
	if err != nil {
		return NullValue, fmt.Errorf("document: parse: %w", err)
	}
	return build(raw, typ)
}

// ParseAll decodes a stream of concatenated JSON values, such as NDJSON.
// Whitespace between values is ignored.
func ParseAll(data []byte) ([]Value, error) {
	var out []Value
	for pos := 0; ; {
		rest := bytes.TrimLeft(data[pos:], " \t\r\n")
		if len(rest) == 0 {
			return out, nil
		}
		pos = len(data) - len(rest)
		raw, typ, end, err := jsonparser.Get(rest)
		if err != nil {
			return out, fmt.Errorf("document: parse value %d at offset %d: %w", len(out)+1, pos, err)
		}
		v, err := build(raw, typ)
		if err != nil {
			return out, fmt.Errorf("document: value %d: %w", len(out)+1, err)
		}
		out = append(out, v)
		pos += end
	}
}

func build(raw []byte, typ jsonparser.ValueType) (Value, error) {
	switch typ {
	case jsonparser.Null:
		return NullValue, nil
	case jsonparser.Boolean:
		b, err := jsonparser.ParseBoolean(raw)
		if err != nil {
			return NullValue, fmt.Errorf("document: bool: %w", err)
		}
		return BoolValue(b), nil
	case jsonparser.Number:
		return NumberValue(string(raw)), nil
	case jsonparser.String:
		s, err := jsonparser.ParseString(raw)
		if err != nil {
			return NullValue, fmt.Errorf("document: string: %w", err)
		}
		return StringValue(s), nil
	case jsonparser.Array:
		elems := []Value{}
		var inner error
		_, err := jsonparser.ArrayEach(raw, func(value []byte, dt jsonparser.ValueType, _ int, err error) {
			if inner != nil {
				return
			}
			if err != nil {
				inner = err
				return
			}
			e, err := build(value, dt)
			if err != nil {
				inner = err
				return
			}
			elems = append(elems, e)
		})
		if err == nil {
			err = inner
		}
		if err != nil {
			return NullValue, fmt.Errorf("document: array: %w", err)
		}
		return ArrayValue(elems), nil
	case jsonparser.Object:
		fields := map[string]Value{}
		err := jsonparser.ObjectEach(raw, func(key, value []byte, dt jsonparser.ValueType, _ int) error {
			k, err := jsonparser.ParseString(key)
			if err != nil {
				return err
			}
			f, err := build(value, dt)
			if err != nil {
				return err
			}
			fields[k] = f
			return nil
		})
		if err != nil {
			return NullValue, fmt.Errorf("document: object: %w", err)
		}
		return ObjectValue(fields), nil
	}
	return NullValue, fmt.Errorf("document: unsupported value type %v", typ)
}

// FromAny converts values produced by encoding/json (or built by hand in
// tests) into a Value. Unsupported types are rendered with fmt as strings.
func FromAny(x any) Value {
	switch t := x.(type) {
	case nil:
		return NullValue
	case Value:
		return t
	case bool:
		return BoolValue(t)
	case json.Number:
		return NumberValue(t.String())
	case float64:
		return NumberValue(strconv.FormatFloat(t, 'f', -1, 64))
	case float32:
		return NumberValue(strconv.FormatFloat(float64(t), 'f', -1, 32))
	case int:
		return NumberValue(strconv.Itoa(t))
	case int64:
		return NumberValue(strconv.FormatInt(t, 10))
	case string:
		return StringValue(t)
	case []any:
		elems := make([]Value, len(t))
		for i, e := range t {
			elems[i] = FromAny(e)
		}
		return ArrayValue(elems)
	case []map[string]any:
		elems := make([]Value, len(t))
		for i, e := range t {
			elems[i] = FromAny(e)
		}
		return ArrayValue(elems)
	case map[string]any:
		fields := make(map[string]Value, len(t))
		for k, e := range t {
			fields[k] = FromAny(e)
		}
		return ObjectValue(fields)
	default:
		return StringValue(fmt.Sprint(t))
	}
}
