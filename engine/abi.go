package engine

import (
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// Profile describes the Lua ABI variant compiled into the engine.
type Profile struct {
	// Name is the build tag that selected the profile ("lua51", "lua52", ...).
	Name string `json:"name"`

	// Version is the value scripts see in _VERSION.
	Version string `json:"version"`

	// MaxExactInteger is the largest magnitude an integer may have to cross the
	// boundary without loss.
	MaxExactInteger int64 `json:"max_exact_integer"`

	// IntegerSubtype reports whether scripts can tell integers from floats with
	// math.type.
	IntegerSubtype bool `json:"integer_subtype"`
}

// ABI returns the profile compiled into this binary.
func ABI() Profile { return profile }

// Numbers are IEEE doubles in every profile.
const maxExactInteger = 1<<53 - 1

func setVersion(L *lua.LState, version string) {
	L.SetGlobal("_VERSION", lua.LString(version))
}

func removeGlobals(L *lua.LState, names ...string) {
	for _, name := range names {
		L.SetGlobal(name, lua.LNil)
	}
}

// install52 moves the 5.1 compat surface to its 5.2 location.
func install52(vm *VM) {
	L := vm.L

	legacyLoad := L.GetGlobal("load")
	unpack := L.GetGlobal("unpack")

	if tbl, ok := L.GetGlobal("table").(*lua.LTable); ok {
		tbl.RawSetString("unpack", unpack)
		tbl.RawSetString("pack", L.NewFunction(tablePack))
		tbl.RawSetString("maxn", lua.LNil)
		tbl.RawSetString("getn", lua.LNil)
	}

	L.SetGlobal("load", L.NewFunction(load52(legacyLoad)))
	L.SetGlobal("rawlen", L.NewFunction(rawLen))
	removeGlobals(L, "unpack", "loadstring", "setfenv", "getfenv", "module")
}

func tablePack(L *lua.LState) int {
	n := L.GetTop()
	tbl := L.CreateTable(n, 1)
	for i := 1; i <= n; i++ {
		tbl.RawSetInt(i, L.Get(i))
	}
	tbl.RawSetString("n", lua.LNumber(n))
	L.Push(tbl)
	return 1
}

func rawLen(L *lua.LState) int {
	switch v := L.CheckAny(1).(type) {
	case *lua.LTable:
		L.Push(lua.LNumber(v.Len()))
	case lua.LString:
		L.Push(lua.LNumber(len(v)))
	default:
		L.ArgError(1, "table or string expected")
	}
	return 1
}

// load52 accepts a source string as well as a reader function, and an optional
// environment table as fourth argument.
func load52(legacy lua.LValue) lua.LGFunction {
	return func(L *lua.LState) int {
		chunkName := L.OptString(2, "=(load)")

		var fn *lua.LFunction
		switch chunk := L.CheckAny(1).(type) {
		case lua.LString:
			f, err := L.Load(strings.NewReader(string(chunk)), chunkName)
			if err != nil {
				L.Push(lua.LNil)
				L.Push(lua.LString(err.Error()))
				return 2
			}
			fn = f
		case *lua.LFunction:
			L.Push(legacy)
			L.Push(chunk)
			L.Push(lua.LString(chunkName))
			L.Call(2, 2)
			res, msg := L.Get(-2), L.Get(-1)
			L.Pop(2)
			f, ok := res.(*lua.LFunction)
			if !ok {
				L.Push(lua.LNil)
				L.Push(msg)
				return 2
			}
			fn = f
		default:
			L.ArgError(1, "string or function expected")
			return 0
		}

		if env, ok := L.Get(4).(*lua.LTable); ok {
			fn.Env = env
		}
		L.Push(fn)
		return 1
	}
}

// install53 adds the integer subtype helpers of the math library.
func install53(vm *VM) {
	L := vm.L
	mathLib, ok := L.GetGlobal("math").(*lua.LTable)
	if !ok {
		return
	}
	mathLib.RawSetString("type", L.NewFunction(mathType))
	mathLib.RawSetString("tointeger", L.NewFunction(mathToInteger))
	mathLib.RawSetString("maxinteger", lua.LNumber(maxExactInteger))
	mathLib.RawSetString("mininteger", lua.LNumber(-maxExactInteger))
}

func mathType(L *lua.LState) int {
	n, ok := L.CheckAny(1).(lua.LNumber)
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	if _, isInt := numberValue(n).AsInt(); isInt {
		L.Push(lua.LString("integer"))
	} else {
		L.Push(lua.LString("float"))
	}
	return 1
}

func mathToInteger(L *lua.LState) int {
	n, ok := L.Get(1).(lua.LNumber)
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	if _, isInt := numberValue(n).AsInt(); isInt {
		L.Push(n)
	} else {
		L.Push(lua.LNil)
	}
	return 1
}

// install54 adds warn, routed to the VM logger. "@off" and "@on" toggle it.
func install54(vm *VM) {
	vm.L.SetGlobal("warn", vm.L.NewFunction(func(L *lua.LState) int {
		n := L.GetTop()
		if n == 0 {
			L.ArgError(1, "string expected")
		}
		parts := make([]string, n)
		for i := 1; i <= n; i++ {
			parts[i-1] = L.CheckString(i)
		}
		msg := strings.Join(parts, "")

		if n == 1 && strings.HasPrefix(msg, "@") {
			switch msg {
			case "@on":
				vm.warnOff = false
			case "@off":
				vm.warnOff = true
			}
			return 0
		}
		if !vm.warnOff {
			vm.cfg.logger.Warn(msg, "source", "script", "name", vm.cfg.name, "vm", vm.id)
		}
		return 0
	}))
}
