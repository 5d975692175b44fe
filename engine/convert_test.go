package engine

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reglet-dev/reglet-lua/domain/entities"
	"github.com/reglet-dev/reglet-lua/domain/errors"
	"github.com/reglet-dev/reglet-lua/internal/testutil"
)

func TestConvert_RoundTrip(t *testing.T) {
	vm := newTestVM(t)

	tests := []struct {
		name  string
		value entities.Value
	}{
		{name: "nil", value: entities.Nil()},
		{name: "integer", value: entities.Int(-42)},
		{name: "max exact integer", value: entities.Int(maxExactInteger)},
		{name: "float", value: entities.Float(1.5)},
		{name: "nan", value: entities.Float(math.NaN())},
		{name: "string", value: entities.String("héllo\x00world")},
		{name: "boolean", value: entities.Bool(true)},
		{name: "empty table", value: entities.List()},
		{name: "sequence", value: entities.List(entities.Int(1), entities.String("two"), entities.Float(3.5))},
		{name: "mapping", value: entities.Map(map[string]entities.Value{
			"name": entities.String("calc"),
			"tags": entities.List(entities.String("a"), entities.String("b")),
			"meta": entities.Map(map[string]entities.Value{"ok": entities.Bool(false)}),
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sv, err := vm.ToScript(tt.value)
			require.NoError(t, err)

			back, err := vm.FromScript(sv)
			require.NoError(t, err)
			testutil.AssertValueEqual(t, tt.value, back)
		})
	}
}

func TestConvert_IntegralFloatBecomesInteger(t *testing.T) {
	vm := newTestVM(t)

	sv, err := vm.ToScript(entities.Float(2.0))
	require.NoError(t, err)
	assert.Equal(t, "number", sv.TypeName())

	back, err := vm.FromScript(sv)
	require.NoError(t, err)
	testutil.AssertValueEqual(t, entities.Int(2), back)
}

func TestConvert_ToScriptErrors(t *testing.T) {
	vm := newTestVM(t, WithRuntimeConfig(entities.NewConfig(entities.WithMaxTableDepth(3))))

	deep := entities.List()
	for i := 0; i < 5; i++ {
		deep = entities.List(deep)
	}

	tests := []struct {
		name  string
		value entities.Value
		want  error
	}{
		{name: "integer above exact range", value: entities.Int(maxExactInteger + 1), want: errors.ErrLossyConversion},
		{name: "integer below exact range", value: entities.Int(math.MinInt64), want: errors.ErrLossyConversion},
		{name: "nil in sequence", value: entities.List(entities.Int(1), entities.Nil()), want: errors.ErrUnsupportedType},
		{name: "too deep", value: deep, want: errors.ErrUnsupportedType},
		{name: "unknown reference", value: entities.Ref(entities.FunctionRef{Handle: vm.ID(), ID: 999}), want: errors.ErrStaleReference},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := vm.ToScript(tt.value)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestConvert_NilMappingFieldsAreDropped(t *testing.T) {
	vm := newTestVM(t)

	sv, err := vm.ToScript(entities.Map(map[string]entities.Value{
		"keep": entities.Int(1),
		"drop": entities.Nil(),
	}))
	require.NoError(t, err)

	back, err := vm.FromScript(sv)
	require.NoError(t, err)
	testutil.AssertValueEqual(t, entities.Map(map[string]entities.Value{"keep": entities.Int(1)}), back)
}

const shapesSource = `
function mixed() return { 1, 2, x = "y" } end
function holes() local t = {}; t[1] = "a"; t[3] = "c"; return t end
function floatkeys() return { [1.5] = true } end
function boolkeys() return { [true] = 1 } end
function shared() local s = { 1 }; return { a = s, b = s } end
function numbers() return 3.0, 0.5, 2^60, -0 end
function cyclic() local t = {}; t.self = t; return t end
function tablekey() return { [{}] = 1 } end
function thread() return coroutine.create(function() end) end
function collide() return { [1] = "a", ["1"] = "b", x = 1 } end
function deep(n)
	local t = {}
	local cur = t
	for i = 1, n do cur.next = {}; cur = cur.next end
	return t
end
`

func TestConvert_FromScriptShapes(t *testing.T) {
	vm := newTestVM(t)
	ctx := context.Background()

	_, err := vm.Execute(ctx, "shapes.lua", shapesSource)
	require.NoError(t, err)

	tests := []struct {
		fn   string
		want []entities.Value
	}{
		{fn: "mixed", want: []entities.Value{entities.Map(map[string]entities.Value{
			"1": entities.Int(1), "2": entities.Int(2), "x": entities.String("y"),
		})}},
		{fn: "holes", want: []entities.Value{entities.Map(map[string]entities.Value{
			"1": entities.String("a"), "3": entities.String("c"),
		})}},
		{fn: "floatkeys", want: []entities.Value{entities.Map(map[string]entities.Value{"1.5": entities.Bool(true)})}},
		{fn: "boolkeys", want: []entities.Value{entities.Map(map[string]entities.Value{"true": entities.Int(1)})}},
		{fn: "shared", want: []entities.Value{entities.Map(map[string]entities.Value{
			"a": entities.List(entities.Int(1)), "b": entities.List(entities.Int(1)),
		})}},
		{fn: "numbers", want: []entities.Value{
			entities.Int(3), entities.Float(0.5), entities.Float(math.Pow(2, 60)), entities.Int(0),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.fn, func(t *testing.T) {
			results, err := vm.Call(ctx, tt.fn)
			require.NoError(t, err)
			testutil.AssertValuesEqual(t, tt.want, results)
		})
	}
}

func TestConvert_FromScriptUnsupported(t *testing.T) {
	vm := newTestVM(t)
	ctx := context.Background()

	_, err := vm.Execute(ctx, "shapes.lua", shapesSource)
	require.NoError(t, err)

	for _, fn := range []string{"cyclic", "tablekey", "thread", "collide"} {
		t.Run(fn, func(t *testing.T) {
			_, err := vm.Call(ctx, fn)
			assert.ErrorIs(t, err, errors.ErrUnsupportedType)
		})
	}

	t.Run("depth limit", func(t *testing.T) {
		_, err := vm.Call(ctx, "deep", entities.Int(10))
		assert.NoError(t, err)

		_, err = vm.Call(ctx, "deep", entities.Int(100))
		assert.ErrorIs(t, err, errors.ErrUnsupportedType)
	})
}

func TestConvert_ClosedVM(t *testing.T) {
	vm, err := New()
	require.NoError(t, err)
	sv, err := vm.ToScript(entities.Int(1))
	require.NoError(t, err)
	vm.Close()

	_, err = vm.ToScript(entities.Int(1))
	assert.ErrorIs(t, err, errors.ErrStaleReference)
	_, err = vm.FromScript(sv)
	assert.ErrorIs(t, err, errors.ErrStaleReference)
}
