package entities

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNil Kind = iota
	KindInteger
	KindFloat
	KindString
	KindBoolean
	KindTable
	KindFunction
)

var kindNames = [...]string{
	KindNil:      "nil",
	KindInteger:  "integer",
	KindFloat:    "float",
	KindString:   "string",
	KindBoolean:  "boolean",
	KindTable:    "table",
	KindFunction: "function",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// FunctionRef is an opaque reference to a script callable.
// It is only valid while the VM identified by Handle is alive.
type FunctionRef struct {
	Handle string `json:"handle"`
	ID     uint64 `json:"id"`
}

// IsZero reports whether the reference is unset.
func (r FunctionRef) IsZero() bool {
	return r.Handle == "" && r.ID == 0
}

func (r FunctionRef) String() string {
	return fmt.Sprintf("function<%s#%d>", r.Handle, r.ID)
}

// Value is the tagged union that crosses the native/script boundary.
// The zero Value is Nil.
//
// Tables are either sequences (ordered, 1-based on the script side) or mappings
// with string keys. An empty table is an empty sequence.
type Value struct {
	kind   Kind
	i      int64
	f      float64
	s      string
	b      bool
	list   []Value
	fields map[string]Value
	mapped bool
	ref    FunctionRef
}

// Nil returns the nil value.
func Nil() Value { return Value{} }

// Int returns an Integer value.
func Int(i int64) Value { return Value{kind: KindInteger, i: i} }

// Float returns a Float value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String returns a String value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Bool returns a Boolean value.
func Bool(b bool) Value { return Value{kind: KindBoolean, b: b} }

// List returns a sequence table holding items in order.
func List(items ...Value) Value {
	v := Value{kind: KindTable}
	if len(items) > 0 {
		v.list = items
	}
	return v
}

// Map returns a mapping table. An empty map yields an empty sequence.
func Map(fields map[string]Value) Value {
	if len(fields) == 0 {
		return List()
	}
	return Value{kind: KindTable, fields: fields, mapped: true}
}

// Ref wraps a FunctionRef.
func Ref(r FunctionRef) Value { return Value{kind: KindFunction, ref: r} }

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// IsNil reports whether v is Nil.
func (v Value) IsNil() bool { return v.kind == KindNil }

// AsInt returns the integer payload.
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInteger }

// AsFloat returns the numeric payload widened to float64.
// Integers are accepted since widening is always permitted.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInteger:
		return float64(v.i), true
	default:
		return 0, false
	}
}

// AsString returns the string payload.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsBool returns the boolean payload.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBoolean }

// AsRef returns the function reference payload.
func (v Value) AsRef() (FunctionRef, bool) { return v.ref, v.kind == KindFunction }

// IsSequence reports whether v is a table with sequence shape.
func (v Value) IsSequence() bool { return v.kind == KindTable && !v.mapped }

// IsMapping reports whether v is a table with mapping shape.
func (v Value) IsMapping() bool { return v.kind == KindTable && v.mapped }

// Len returns the number of entries of a table, 0 otherwise.
func (v Value) Len() int {
	if v.kind != KindTable {
		return 0
	}
	if v.mapped {
		return len(v.fields)
	}
	return len(v.list)
}

// Items returns the elements of a sequence. The slice must not be modified.
func (v Value) Items() []Value {
	if !v.IsSequence() {
		return nil
	}
	return v.list
}

// Fields returns a copy of the entries of a mapping.
func (v Value) Fields() map[string]Value {
	if !v.IsMapping() {
		return nil
	}
	return maps.Clone(v.fields)
}

// Field returns the entry stored under key in a mapping.
func (v Value) Field(key string) (Value, bool) {
	if !v.IsMapping() {
		return Value{}, false
	}
	f, ok := v.fields[key]
	return f, ok
}

// Keys returns the sorted keys of a mapping.
func (v Value) Keys() []string {
	if !v.IsMapping() {
		return nil
	}
	keys := make([]string, 0, len(v.fields))
	for k := range v.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Equal reports deep equality. NaN floats compare equal to each other.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNil:
		return true
	case KindInteger:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f || (math.IsNaN(v.f) && math.IsNaN(o.f))
	case KindString:
		return v.s == o.s
	case KindBoolean:
		return v.b == o.b
	case KindFunction:
		return v.ref == o.ref
	case KindTable:
		if v.Len() == 0 && o.Len() == 0 {
			return true
		}
		if v.mapped != o.mapped || v.Len() != o.Len() {
			return false
		}
		if !v.mapped {
			for i := range v.list {
				if !v.list[i].Equal(o.list[i]) {
					return false
				}
			}
			return true
		}
		for k, fv := range v.fields {
			ov, ok := o.fields[k]
			if !ok || !fv.Equal(ov) {
				return false
			}
		}
		return true
	}
	return false
}

// Interface converts v into plain Go values: nil, int64, float64, string, bool,
// []any, map[string]any or FunctionRef.
func (v Value) Interface() any {
	switch v.kind {
	case KindInteger:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindBoolean:
		return v.b
	case KindFunction:
		return v.ref
	case KindTable:
		if v.mapped {
			out := make(map[string]any, len(v.fields))
			for k, fv := range v.fields {
				out[k] = fv.Interface()
			}
			return out
		}
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Interface()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON renders v as JSON. Function references render as their string form.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindFunction:
		return json.Marshal(v.ref.String())
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return json.Marshal(strconv.FormatFloat(v.f, 'g', -1, 64))
		}
	}
	return json.Marshal(v.Interface())
}

func (v Value) String() string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.s)
	case KindBoolean:
		return strconv.FormatBool(v.b)
	case KindFunction:
		return v.ref.String()
	}

	var sb strings.Builder
	sb.WriteByte('{')
	if v.mapped {
		for i, k := range v.Keys() {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(k)
			sb.WriteString(" = ")
			sb.WriteString(v.fields[k].String())
		}
	} else {
		for i, item := range v.list {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(item.String())
		}
	}
	sb.WriteByte('}')
	return sb.String()
}
