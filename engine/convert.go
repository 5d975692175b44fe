package engine

import (
	"fmt"
	"math"
	"strconv"

	lua "github.com/yuin/gopher-lua"

	"github.com/reglet-dev/reglet-lua/domain/entities"
	"github.com/reglet-dev/reglet-lua/domain/errors"
)

// ScriptValue is an engine-native value. It is only meaningful to the VM that
// produced it.
type ScriptValue struct {
	lv lua.LValue
}

// TypeName returns the script type name of the value ("nil", "number", ...).
func (s ScriptValue) TypeName() string {
	if s.lv == nil {
		return lua.LTNil.String()
	}
	return s.lv.Type().String()
}

func (s ScriptValue) String() string {
	if s.lv == nil {
		return "nil"
	}
	return s.lv.String()
}

// ToScript converts v into an engine-native value.
func (vm *VM) ToScript(v entities.Value) (ScriptValue, error) {
	if vm.Closed() {
		return ScriptValue{}, vm.staleError()
	}
	lv, err := vm.toLua(v)
	if err != nil {
		return ScriptValue{}, err
	}
	return ScriptValue{lv: lv}, nil
}

// FromScript converts an engine-native value back into a Value.
func (vm *VM) FromScript(s ScriptValue) (entities.Value, error) {
	if vm.Closed() {
		return entities.Nil(), vm.staleError()
	}
	if s.lv == nil {
		return entities.Nil(), nil
	}
	return vm.fromLua(s.lv)
}

func unsupported(received, format string, args ...any) error {
	return &errors.MarshalError{
		Kind:     errors.UnsupportedType,
		Received: received,
		Message:  fmt.Sprintf(format, args...),
	}
}

func (vm *VM) toLua(v entities.Value) (lua.LValue, error) {
	return vm.toLuaDepth(v, 0)
}

func (vm *VM) toLuaDepth(v entities.Value, depth int) (lua.LValue, error) {
	switch v.Kind() {
	case entities.KindNil:
		return lua.LNil, nil
	case entities.KindInteger:
		i, _ := v.AsInt()
		if i > profile.MaxExactInteger || i < -profile.MaxExactInteger {
			return nil, &errors.MarshalError{
				Kind:     errors.LossyConversion,
				Expected: "number",
				Received: "integer",
				Message:  fmt.Sprintf("%d is outside the exact integer range of %s", i, profile.Name),
			}
		}
		return lua.LNumber(float64(i)), nil
	case entities.KindFloat:
		f, _ := v.AsFloat()
		return lua.LNumber(f), nil
	case entities.KindString:
		s, _ := v.AsString()
		return lua.LString(s), nil
	case entities.KindBoolean:
		b, _ := v.AsBool()
		return lua.LBool(b), nil
	case entities.KindFunction:
		ref, _ := v.AsRef()
		fn, err := vm.resolveRef(ref)
		if err != nil {
			return nil, err
		}
		return fn, nil
	case entities.KindTable:
		if depth >= vm.cfg.runtime.MaxTableDepth {
			return nil, unsupported("table", "nesting exceeds %d levels", vm.cfg.runtime.MaxTableDepth)
		}
		if v.IsMapping() {
			tbl := vm.L.CreateTable(0, v.Len())
			for _, key := range v.Keys() {
				field, _ := v.Field(key)
				if field.IsNil() {
					continue
				}
				lv, err := vm.toLuaDepth(field, depth+1)
				if err != nil {
					return nil, err
				}
				tbl.RawSetString(key, lv)
			}
			return tbl, nil
		}
		items := v.Items()
		tbl := vm.L.CreateTable(len(items), 0)
		for i, item := range items {
			if item.IsNil() {
				return nil, unsupported("nil", "sequence element %d is nil", i+1)
			}
			lv, err := vm.toLuaDepth(item, depth+1)
			if err != nil {
				return nil, err
			}
			tbl.RawSetInt(i+1, lv)
		}
		return tbl, nil
	}
	return nil, unsupported(v.Kind().String(), "unknown value kind")
}

// numberValue classifies a script number: integral values within the exact
// range become Integer, everything else Float.
func numberValue(n lua.LNumber) entities.Value {
	f := float64(n)
	if f == math.Trunc(f) && math.Abs(f) <= float64(profile.MaxExactInteger) {
		return entities.Int(int64(f))
	}
	return entities.Float(f)
}

func (vm *VM) fromLua(lv lua.LValue) (entities.Value, error) {
	return vm.fromLuaDepth(lv, 0, make(map[*lua.LTable]bool))
}

func (vm *VM) fromLuaDepth(lv lua.LValue, depth int, visiting map[*lua.LTable]bool) (entities.Value, error) {
	switch val := lv.(type) {
	case *lua.LNilType:
		return entities.Nil(), nil
	case lua.LBool:
		return entities.Bool(bool(val)), nil
	case lua.LNumber:
		return numberValue(val), nil
	case lua.LString:
		return entities.String(string(val)), nil
	case *lua.LFunction:
		return entities.Ref(vm.refFor(val)), nil
	case *lua.LTable:
		if visiting[val] {
			return entities.Nil(), unsupported("table", "cyclic table")
		}
		if depth >= vm.cfg.runtime.MaxTableDepth {
			return entities.Nil(), unsupported("table", "nesting exceeds %d levels", vm.cfg.runtime.MaxTableDepth)
		}
		visiting[val] = true
		defer delete(visiting, val)
		return vm.fromTable(val, depth, visiting)
	case nil:
		return entities.Nil(), nil
	default:
		return entities.Nil(), unsupported(lv.Type().String(), "%s values cannot cross the boundary", lv.Type())
	}
}

func (vm *VM) fromTable(tbl *lua.LTable, depth int, visiting map[*lua.LTable]bool) (entities.Value, error) {
	count, maxIndex := 0, 0
	sequence := true
	tbl.ForEach(func(k, _ lua.LValue) {
		count++
		n, ok := k.(lua.LNumber)
		if !ok || float64(n) != math.Trunc(float64(n)) || n < 1 {
			sequence = false
			return
		}
		if int(n) > maxIndex {
			maxIndex = int(n)
		}
	})

	if count == 0 {
		return entities.List(), nil
	}

	if sequence && maxIndex == count {
		items := make([]entities.Value, count)
		for i := 1; i <= count; i++ {
			item, err := vm.fromLuaDepth(tbl.RawGetInt(i), depth+1, visiting)
			if err != nil {
				return entities.Nil(), err
			}
			items[i-1] = item
		}
		return entities.List(items...), nil
	}

	fields := make(map[string]entities.Value, count)
	var firstErr error
	tbl.ForEach(func(k, fv lua.LValue) {
		if firstErr != nil {
			return
		}
		key, err := mappingKey(k)
		if err != nil {
			firstErr = err
			return
		}
		if _, dup := fields[key]; dup {
			firstErr = unsupported("table", "key %q appears more than once after conversion", key)
			return
		}
		v, err := vm.fromLuaDepth(fv, depth+1, visiting)
		if err != nil {
			firstErr = err
			return
		}
		fields[key] = v
	})
	if firstErr != nil {
		return entities.Nil(), firstErr
	}
	return entities.Map(fields), nil
}

// mappingKey renders a table key as a mapping key. Numbers and booleans are
// rendered as strings.
func mappingKey(k lua.LValue) (string, error) {
	switch key := k.(type) {
	case lua.LString:
		return string(key), nil
	case lua.LNumber:
		nv := numberValue(key)
		if i, ok := nv.AsInt(); ok {
			return strconv.FormatInt(i, 10), nil
		}
		return strconv.FormatFloat(float64(key), 'g', -1, 64), nil
	case lua.LBool:
		return strconv.FormatBool(bool(key)), nil
	default:
		return "", unsupported(k.Type().String(), "%s keys are not supported", k.Type())
	}
}
