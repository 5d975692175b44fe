package engine

import (
	"bytes"
	"context"
	stdErrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reglet-dev/reglet-lua/domain/entities"
	"github.com/reglet-dev/reglet-lua/domain/errors"
	"github.com/reglet-dev/reglet-lua/internal/testutil"
)

func newTestVM(t *testing.T, opts ...Option) *VM {
	t.Helper()
	vm, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(vm.Close)
	return vm
}

const exportsSource = `
local function add(a, b) return a + b end

return {
	{ name = "add", inputs = { "a", "b" }, func = add },
	{ name = "noinputs", func = function() return 1 end },
	{ name = "add", func = function() return 0 end },
	{ name = "bad", inputs = { 1 }, func = add },
	{ name = "nofunc" },
	"not a table",
}
`

func TestVM_ExecuteCollectsExports(t *testing.T) {
	vm := newTestVM(t)
	ctx := context.Background()

	exports, err := vm.Execute(ctx, "main.lua", exportsSource)
	require.NoError(t, err)

	assert.Equal(t, []entities.ScriptRequestDescriptor{
		{Name: "add", Inputs: []string{"a", "b"}},
		{Name: "noinputs", Inputs: nil},
	}, exports.Requests())

	ref, ok := exports.Lookup("add")
	require.True(t, ok)
	assert.Equal(t, vm.ID(), ref.Handle)

	results, err := vm.CallRef(ctx, ref, entities.Int(4), entities.Int(6))
	require.NoError(t, err)
	testutil.AssertValuesEqual(t, []entities.Value{entities.Int(10)}, results)

	_, ok = exports.Lookup("bad")
	assert.False(t, ok)
}

func TestVM_ExecuteWithoutReturn(t *testing.T) {
	vm := newTestVM(t)

	exports, err := vm.Execute(context.Background(), "main.lua", `x = 1`)
	require.NoError(t, err)
	assert.Equal(t, 0, exports.Len())
}

func TestVM_ExecuteErrors(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		phase   string
		message string
	}{
		{name: "syntax", source: "return {", phase: "parse", message: "main.lua"},
		{name: "runtime", source: `error("boom")`, phase: "execute", message: "boom"},
		{name: "nil call", source: `undefined_fn()`, phase: "execute", message: "attempt to call"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm := newTestVM(t)
			_, err := vm.Execute(context.Background(), "main.lua", tt.source)
			require.Error(t, err)

			var scriptErr *errors.ScriptError
			require.True(t, stdErrors.As(err, &scriptErr))
			assert.Equal(t, tt.phase, scriptErr.Phase)
			assert.Contains(t, scriptErr.Message, tt.message)
			assert.False(t, scriptErr.Panic)
		})
	}
}

func TestVM_RegisterNative(t *testing.T) {
	vm := newTestVM(t)
	ctx := context.Background()

	calls := 0
	err := vm.RegisterNative("add", 2, func(_ context.Context, args []entities.Value) ([]entities.Value, error) {
		calls++
		a, _ := args[0].AsInt()
		b, _ := args[1].AsInt()
		return []entities.Value{entities.Int(a + b)}, nil
	})
	require.NoError(t, err)

	exports, err := vm.Execute(ctx, "main.lua", `
		return {{ name = "main", func = function() return add(4, 6) end }}
	`)
	require.NoError(t, err)

	ref, ok := exports.Lookup("main")
	require.True(t, ok)

	results, err := vm.CallRef(ctx, ref)
	require.NoError(t, err)
	testutil.AssertValuesEqual(t, []entities.Value{entities.Int(10)}, results)
	assert.Equal(t, 1, calls)
}

func TestVM_RegisterNative_ArityMismatch(t *testing.T) {
	vm := newTestVM(t)

	calls := 0
	require.NoError(t, vm.RegisterNative("add", 2, func(context.Context, []entities.Value) ([]entities.Value, error) {
		calls++
		return nil, nil
	}))

	_, err := vm.Execute(context.Background(), "main.lua", `add(1)`)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrSignatureMismatch)

	var marshalErr *errors.MarshalError
	require.True(t, stdErrors.As(err, &marshalErr))
	assert.Equal(t, 1, marshalErr.Position)
	assert.Equal(t, "missing", marshalErr.Received)
	assert.Zero(t, calls)
}

func TestVM_RegisterNative_ErrorSurvivesScript(t *testing.T) {
	vm := newTestVM(t)
	hostErr := &errors.MarshalError{Kind: errors.LossyConversion, Expected: "int8", Received: "integer"}

	require.NoError(t, vm.RegisterNative("fail", -1, func(context.Context, []entities.Value) ([]entities.Value, error) {
		return nil, hostErr
	}))

	_, err := vm.Execute(context.Background(), "main.lua", `
		local function inner() fail() end
		inner()
	`)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrLossyConversion)

	var scriptErr *errors.ScriptError
	require.True(t, stdErrors.As(err, &scriptErr))
	assert.Equal(t, hostErr.Error(), scriptErr.Message)
}

func TestVM_RegisterNative_CaughtByPcall(t *testing.T) {
	vm := newTestVM(t)
	require.NoError(t, vm.RegisterNative("fail", 0, func(context.Context, []entities.Value) ([]entities.Value, error) {
		return nil, stdErrors.New("native failure")
	}))

	_, err := vm.Execute(context.Background(), "main.lua", `
		local ok, err = pcall(fail)
		result = tostring(ok) .. ":" .. tostring(err)
	`)
	require.NoError(t, err)

	v, err := vm.Global("result")
	require.NoError(t, err)
	testutil.AssertValueEqual(t, entities.String("false:native failure"), v)
}

func TestVM_RegisterNative_Panic(t *testing.T) {
	vm := newTestVM(t)
	require.NoError(t, vm.RegisterNative("explode", 0, func(context.Context, []entities.Value) ([]entities.Value, error) {
		panic("kaboom")
	}))

	_, err := vm.Execute(context.Background(), "main.lua", `explode()`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")

	// The VM stays usable.
	_, err = vm.Execute(context.Background(), "again.lua", `x = 1`)
	assert.NoError(t, err)
}

func TestVM_RegisterNative_DottedName(t *testing.T) {
	vm := newTestVM(t)
	require.NoError(t, vm.RegisterNative("host.math.double", 1, func(_ context.Context, args []entities.Value) ([]entities.Value, error) {
		n, _ := args[0].AsInt()
		return []entities.Value{entities.Int(n * 2)}, nil
	}))

	_, err := vm.Execute(context.Background(), "main.lua", `answer = host.math.double(21)`)
	require.NoError(t, err)

	v, err := vm.Global("answer")
	require.NoError(t, err)
	testutil.AssertValueEqual(t, entities.Int(42), v)

	err = vm.RegisterNative("answer.nested", 0, nil)
	assert.Error(t, err)
	assert.Error(t, vm.RegisterNative("bad..name", 0, nil))
}

func TestVM_Call(t *testing.T) {
	vm := newTestVM(t)
	ctx := context.Background()

	_, err := vm.Execute(ctx, "main.lua", `
		function greet(name) return "hello " .. name, #name end
		lib = { twice = function(x) return x * 2 end }
		notfn = 3
	`)
	require.NoError(t, err)

	results, err := vm.Call(ctx, "greet", entities.String("lua"))
	require.NoError(t, err)
	testutil.AssertValuesEqual(t, []entities.Value{entities.String("hello lua"), entities.Int(3)}, results)

	results, err = vm.Call(ctx, "lib.twice", entities.Float(1.25))
	require.NoError(t, err)
	testutil.AssertValuesEqual(t, []entities.Value{entities.Float(2.5)}, results)

	_, err = vm.Call(ctx, "notfn")
	var scriptErr *errors.ScriptError
	require.True(t, stdErrors.As(err, &scriptErr))
	assert.Equal(t, "call", scriptErr.Phase)
}

func TestVM_ContextCancellation(t *testing.T) {
	vm := newTestVM(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := vm.Execute(ctx, "main.lua", `while true do end`)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = vm.Execute(context.Background(), "main.lua", `x = 1`)
	assert.NoError(t, err, "context is detached after the call")
}

func TestVM_Print(t *testing.T) {
	var out bytes.Buffer
	vm := newTestVM(t, WithStdout(&out))

	_, err := vm.Execute(context.Background(), "main.lua", `print("hello", 1, true, nil)`)
	require.NoError(t, err)
	assert.Equal(t, "hello\t1\ttrue\tnil\n", out.String())
}

func TestVM_PackageDir(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFiles(t, dir, map[string]string{
		"helper.lua":     `return { double = function(x) return x * 2 end }`,
		"util/init.lua":  `return { name = "util" }`,
		"util/other.lua": `return 1`,
	})

	vm := newTestVM(t, WithPackageDir(dir))
	ctx := context.Background()

	_, err := vm.Execute(ctx, "main.lua", `
		local helper = require("helper")
		local util = require("util")
		function run(x) return helper.double(x), util.name end
	`)
	require.NoError(t, err)

	results, err := vm.Call(ctx, "run", entities.Int(21))
	require.NoError(t, err)
	testutil.AssertValuesEqual(t, []entities.Value{entities.Int(42), entities.String("util")}, results)
}

func TestVM_Global(t *testing.T) {
	vm := newTestVM(t)

	_, err := vm.Execute(context.Background(), "main.lua", `answer = 42; cfg = { name = "x" }`)
	require.NoError(t, err)

	tests := []struct {
		name string
		want entities.Value
	}{
		{name: "answer", want: entities.Int(42)},
		{name: "cfg.name", want: entities.String("x")},
		{name: "missing", want: entities.Nil()},
		{name: "answer.field", want: entities.Nil()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := vm.Global(tt.name)
			require.NoError(t, err)
			testutil.AssertValueEqual(t, tt.want, v)
		})
	}

	require.NoError(t, vm.SetGlobal("plugin.name", entities.String("calc")))
	v, err := vm.Global("plugin.name")
	require.NoError(t, err)
	testutil.AssertValueEqual(t, entities.String("calc"), v)
}

func TestVM_References(t *testing.T) {
	ctx := context.Background()
	vm := newTestVM(t)
	other := newTestVM(t)

	exports, err := vm.Execute(ctx, "main.lua", `return {{ name = "id", func = function(x) return x end }}`)
	require.NoError(t, err)
	ref, _ := exports.Lookup("id")

	t.Run("foreign reference", func(t *testing.T) {
		_, err := other.CallRef(ctx, ref)
		assert.ErrorIs(t, err, errors.ErrUnsupportedType)

		_, err = other.ToScript(entities.Ref(ref))
		assert.ErrorIs(t, err, errors.ErrUnsupportedType)
	})

	t.Run("function round trip", func(t *testing.T) {
		results, err := vm.CallRef(ctx, ref, entities.Ref(ref))
		require.NoError(t, err)
		testutil.AssertValuesEqual(t, []entities.Value{entities.Ref(ref)}, results)
	})

	t.Run("released reference", func(t *testing.T) {
		extra, err := vm.Global("print")
		require.NoError(t, err)
		printRef, ok := extra.AsRef()
		require.True(t, ok)

		assert.True(t, vm.ReleaseRef(printRef))
		assert.False(t, vm.ReleaseRef(printRef))
		_, err = vm.CallRef(ctx, printRef)
		assert.ErrorIs(t, err, errors.ErrStaleReference)
	})

	t.Run("closed vm", func(t *testing.T) {
		vm.Close()
		assert.True(t, vm.Closed())
		vm.Close()

		_, err := vm.CallRef(ctx, ref)
		assert.ErrorIs(t, err, errors.ErrStaleReference)
		_, err = vm.Execute(ctx, "main.lua", "x = 1")
		assert.ErrorIs(t, err, errors.ErrStaleReference)
	})
}
