// Package marshal converts between dispatch values and native Go values and checks
// call arguments against native function signatures.
package marshal

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/reglet-dev/reglet-lua/domain/entities"
	"github.com/reglet-dev/reglet-lua/domain/errors"
)

var (
	valueType = reflect.TypeOf(entities.Value{})
	refType   = reflect.TypeOf(entities.FunctionRef{})
)

// To converts v into a Go value of type T.
//
// Integers widen to floats. A float with a fractional part never converts to an
// integer type, and integers that overflow the target type fail with
// LossyConversion. Tables convert to slices, arrays and string-keyed maps.
func To[T any](v entities.Value) (T, error) {
	var out T
	if err := assign(reflect.ValueOf(&out).Elem(), v); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// MustTo is like To but panics on error. Intended for tests and constants.
func MustTo[T any](v entities.Value) T {
	out, err := To[T](v)
	if err != nil {
		panic(err)
	}
	return out
}

func mismatch(target reflect.Type, v entities.Value) error {
	return &errors.MarshalError{
		Kind:     errors.UnsupportedType,
		Expected: target.String(),
		Received: v.Kind().String(),
		Message:  fmt.Sprintf("cannot convert %s to %s", v.Kind(), target),
	}
}

func lossy(target reflect.Type, v entities.Value, format string, args ...any) error {
	return &errors.MarshalError{
		Kind:     errors.LossyConversion,
		Expected: target.String(),
		Received: v.Kind().String(),
		Message:  fmt.Sprintf(format, args...),
	}
}

func assign(rv reflect.Value, v entities.Value) error {
	t := rv.Type()

	switch t {
	case valueType:
		rv.Set(reflect.ValueOf(v))
		return nil
	case refType:
		ref, ok := v.AsRef()
		if !ok {
			return mismatch(t, v)
		}
		rv.Set(reflect.ValueOf(ref))
		return nil
	}

	switch t.Kind() {
	case reflect.Interface:
		if t.NumMethod() != 0 {
			return mismatch(t, v)
		}
		if iv := v.Interface(); iv != nil {
			rv.Set(reflect.ValueOf(iv))
		}
		return nil

	case reflect.Bool:
		b, ok := v.AsBool()
		if !ok {
			return mismatch(t, v)
		}
		rv.SetBool(b)
		return nil

	case reflect.String:
		s, ok := v.AsString()
		if !ok {
			return mismatch(t, v)
		}
		rv.SetString(s)
		return nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := integer(t, v)
		if err != nil {
			return err
		}
		if rv.OverflowInt(i) {
			return lossy(t, v, "%d overflows %s", i, t)
		}
		rv.SetInt(i)
		return nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		i, err := integer(t, v)
		if err != nil {
			return err
		}
		if i < 0 || rv.OverflowUint(uint64(i)) {
			return lossy(t, v, "%d overflows %s", i, t)
		}
		rv.SetUint(uint64(i))
		return nil

	case reflect.Float32, reflect.Float64:
		f, ok := v.AsFloat()
		if !ok {
			return mismatch(t, v)
		}
		if rv.OverflowFloat(f) {
			return lossy(t, v, "%g overflows %s", f, t)
		}
		rv.SetFloat(f)
		return nil

	case reflect.Pointer:
		if v.IsNil() {
			rv.SetZero()
			return nil
		}
		elem := reflect.New(t.Elem())
		if err := assign(elem.Elem(), v); err != nil {
			return err
		}
		rv.Set(elem)
		return nil

	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			if s, ok := v.AsString(); ok {
				rv.SetBytes([]byte(s))
				return nil
			}
		}
		if v.Kind() != entities.KindTable || v.IsMapping() {
			return mismatch(t, v)
		}
		items := v.Items()
		out := reflect.MakeSlice(t, len(items), len(items))
		for i, item := range items {
			if err := assign(out.Index(i), item); err != nil {
				return err
			}
		}
		rv.Set(out)
		return nil

	case reflect.Array:
		if v.Kind() != entities.KindTable || v.IsMapping() {
			return mismatch(t, v)
		}
		items := v.Items()
		if len(items) != t.Len() {
			return lossy(t, v, "sequence of %d elements does not fit %s", len(items), t)
		}
		for i, item := range items {
			if err := assign(rv.Index(i), item); err != nil {
				return err
			}
		}
		return nil

	case reflect.Map:
		if t.Key().Kind() != reflect.String || v.Kind() != entities.KindTable || v.IsSequence() && v.Len() > 0 {
			return mismatch(t, v)
		}
		out := reflect.MakeMapWithSize(t, v.Len())
		for _, key := range v.Keys() {
			field, _ := v.Field(key)
			elem := reflect.New(t.Elem()).Elem()
			if err := assign(elem, field); err != nil {
				return err
			}
			out.SetMapIndex(reflect.ValueOf(key).Convert(t.Key()), elem)
		}
		rv.Set(out)
		return nil
	}

	return mismatch(t, v)
}

// integer extracts an integral payload, accepting floats without a fractional part.
func integer(t reflect.Type, v entities.Value) (int64, error) {
	if i, ok := v.AsInt(); ok {
		return i, nil
	}
	if v.Kind() != entities.KindFloat {
		return 0, mismatch(t, v)
	}
	f, _ := v.AsFloat()
	if f != math.Trunc(f) || math.IsInf(f, 0) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, lossy(t, v, "%g is not an integer", f)
	}
	return int64(f), nil
}

// From converts a Go value into a dispatch value.
//
// Structs convert to mappings using their json field names; nil pointers,
// slices and maps convert to Nil. Channels, functions and complex numbers are
// not supported.
func From(x any) (entities.Value, error) {
	switch val := x.(type) {
	case nil:
		return entities.Nil(), nil
	case entities.Value:
		return val, nil
	case entities.FunctionRef:
		return entities.Ref(val), nil
	case []byte:
		return entities.String(string(val)), nil
	}
	return fromReflect(reflect.ValueOf(x), 0)
}

// maxDepth bounds recursion for self-referencing Go values.
const maxDepth = 128

func fromReflect(rv reflect.Value, depth int) (entities.Value, error) {
	if depth > maxDepth {
		return entities.Nil(), &errors.MarshalError{
			Kind:     errors.UnsupportedType,
			Received: rv.Type().String(),
			Message:  "value nesting is too deep",
		}
	}

	if rv.IsValid() && rv.CanInterface() {
		switch val := rv.Interface().(type) {
		case entities.Value:
			return val, nil
		case entities.FunctionRef:
			return entities.Ref(val), nil
		}
	}

	switch rv.Kind() {
	case reflect.Invalid:
		return entities.Nil(), nil
	case reflect.Bool:
		return entities.Bool(rv.Bool()), nil
	case reflect.String:
		return entities.String(rv.String()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return entities.Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return entities.Nil(), &errors.MarshalError{
				Kind:     errors.LossyConversion,
				Expected: "integer",
				Received: rv.Type().String(),
				Message:  fmt.Sprintf("%d overflows int64", u),
			}
		}
		return entities.Int(int64(u)), nil
	case reflect.Float32, reflect.Float64:
		return entities.Float(rv.Float()), nil
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return entities.Nil(), nil
		}
		return fromReflect(rv.Elem(), depth+1)
	case reflect.Slice:
		if rv.IsNil() {
			return entities.Nil(), nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return entities.String(string(rv.Bytes())), nil
		}
		fallthrough
	case reflect.Array:
		items := make([]entities.Value, rv.Len())
		for i := range items {
			item, err := fromReflect(rv.Index(i), depth+1)
			if err != nil {
				return entities.Nil(), err
			}
			items[i] = item
		}
		return entities.List(items...), nil
	case reflect.Map:
		if rv.IsNil() {
			return entities.Nil(), nil
		}
		fields := make(map[string]entities.Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key, err := mapKey(iter.Key())
			if err != nil {
				return entities.Nil(), err
			}
			field, err := fromReflect(iter.Value(), depth+1)
			if err != nil {
				return entities.Nil(), err
			}
			fields[key] = field
		}
		return entities.Map(fields), nil
	case reflect.Struct:
		return fromStruct(rv, depth)
	}

	return entities.Nil(), &errors.MarshalError{
		Kind:     errors.UnsupportedType,
		Received: rv.Type().String(),
		Message:  fmt.Sprintf("%s values cannot cross the boundary", rv.Kind()),
	}
}

func mapKey(k reflect.Value) (string, error) {
	switch k.Kind() {
	case reflect.String:
		return k.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(k.Uint(), 10), nil
	case reflect.Bool:
		return strconv.FormatBool(k.Bool()), nil
	default:
		return "", &errors.MarshalError{
			Kind:     errors.UnsupportedType,
			Received: k.Type().String(),
			Message:  "map keys must be strings, integers or booleans",
		}
	}
}

func fromStruct(rv reflect.Value, depth int) (entities.Value, error) {
	t := rv.Type()
	fields := make(map[string]entities.Value, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		name, omitEmpty, skip := jsonName(sf)
		if skip {
			continue
		}
		fv := rv.Field(i)
		if omitEmpty && fv.IsZero() {
			continue
		}
		v, err := fromReflect(fv, depth+1)
		if err != nil {
			return entities.Nil(), err
		}
		if !v.IsNil() {
			fields[name] = v
		}
	}
	return entities.Map(fields), nil
}

func jsonName(sf reflect.StructField) (name string, omitEmpty, skip bool) {
	tag := sf.Tag.Get("json")
	if tag == "-" {
		return "", false, true
	}
	parts := strings.Split(tag, ",")
	name = parts[0]
	if name == "" {
		name = sf.Name
	}
	for _, opt := range parts[1:] {
		if opt == "omitempty" {
			omitEmpty = true
		}
	}
	return name, omitEmpty, false
}

// TypeOf returns the parameter type tag that describes T.
func TypeOf[T any]() entities.Type {
	return typeOf(reflect.TypeOf((*T)(nil)).Elem())
}

func typeOf(t reflect.Type) entities.Type {
	switch t {
	case valueType:
		return entities.TypeAny
	case refType:
		return entities.TypeHandle
	}
	switch t.Kind() {
	case reflect.Bool:
		return entities.TypeBoolean
	case reflect.String:
		return entities.TypeString
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return entities.TypeInteger
	case reflect.Float32, reflect.Float64:
		return entities.TypeFloat
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return entities.TypeString
		}
		return entities.TypeAggregate
	case reflect.Array, reflect.Map, reflect.Struct:
		return entities.TypeAggregate
	case reflect.Pointer:
		return typeOf(t.Elem())
	default:
		return entities.TypeAny
	}
}

// Values converts each argument with From.
func Values(xs ...any) ([]entities.Value, error) {
	out := make([]entities.Value, len(xs))
	for i, x := range xs {
		v, err := From(x)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		out[i] = v
	}
	return out, nil
}
