package marshal

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reglet-dev/reglet-lua/domain/entities"
	"github.com/reglet-dev/reglet-lua/domain/errors"
	"github.com/reglet-dev/reglet-lua/internal/testutil"
)

func TestTo_Scalars(t *testing.T) {
	i, err := To[int](entities.Int(42))
	require.NoError(t, err)
	assert.Equal(t, 42, i)

	f, err := To[float64](entities.Int(7))
	require.NoError(t, err)
	assert.Equal(t, 7.0, f, "integers widen to floats")

	n, err := To[int32](entities.Float(12.0))
	require.NoError(t, err)
	assert.Equal(t, int32(12), n)

	s, err := To[string](entities.String("x"))
	require.NoError(t, err)
	assert.Equal(t, "x", s)

	b, err := To[bool](entities.Bool(true))
	require.NoError(t, err)
	assert.True(t, b)

	raw, err := To[[]byte](entities.String("abc"))
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), raw)

	ref := entities.FunctionRef{Handle: "vm", ID: 3}
	gotRef, err := To[entities.FunctionRef](entities.Ref(ref))
	require.NoError(t, err)
	assert.Equal(t, ref, gotRef)

	v, err := To[entities.Value](entities.Float(1.5))
	require.NoError(t, err)
	testutil.AssertValueEqual(t, entities.Float(1.5), v)

	ptr, err := To[*int](entities.Nil())
	require.NoError(t, err)
	assert.Nil(t, ptr)

	ptr, err = To[*int](entities.Int(5))
	require.NoError(t, err)
	require.NotNil(t, ptr)
	assert.Equal(t, 5, *ptr)
}

func TestTo_Errors(t *testing.T) {
	tests := []struct {
		name string
		conv func() error
		want error
	}{
		{name: "fraction to int", conv: func() error { _, err := To[int](entities.Float(1.5)); return err }, want: errors.ErrLossyConversion},
		{name: "int8 overflow", conv: func() error { _, err := To[int8](entities.Int(300)); return err }, want: errors.ErrLossyConversion},
		{name: "negative to uint", conv: func() error { _, err := To[uint](entities.Int(-1)); return err }, want: errors.ErrLossyConversion},
		{name: "float32 overflow", conv: func() error { _, err := To[float32](entities.Float(math.MaxFloat64)); return err }, want: errors.ErrLossyConversion},
		{name: "infinity to int", conv: func() error { _, err := To[int64](entities.Float(math.Inf(1))); return err }, want: errors.ErrLossyConversion},
		{name: "array length", conv: func() error { _, err := To[[2]int](entities.List(entities.Int(1))); return err }, want: errors.ErrLossyConversion},
		{name: "string to int", conv: func() error { _, err := To[int](entities.String("1")); return err }, want: errors.ErrUnsupportedType},
		{name: "mapping to slice", conv: func() error {
			_, err := To[[]int](entities.Map(map[string]entities.Value{"a": entities.Int(1)}))
			return err
		}, want: errors.ErrUnsupportedType},
		{name: "sequence to map", conv: func() error { _, err := To[map[string]int](entities.List(entities.Int(1))); return err }, want: errors.ErrUnsupportedType},
		{name: "nested element", conv: func() error {
			_, err := To[[]int](entities.List(entities.Int(1), entities.Float(2.5)))
			return err
		}, want: errors.ErrLossyConversion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.conv(), tt.want)
		})
	}
}

func TestTo_Aggregates(t *testing.T) {
	list, err := To[[]string](entities.List(entities.String("a"), entities.String("b")))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, list)

	empty, err := To[map[string]int](entities.List())
	require.NoError(t, err)
	assert.Empty(t, empty)

	m, err := To[map[string]float64](entities.Map(map[string]entities.Value{
		"x": entities.Int(1),
		"y": entities.Float(2.5),
	}))
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"x": 1, "y": 2.5}, m)

	anyVal, err := To[any](entities.Map(map[string]entities.Value{"k": entities.List(entities.Int(1))}))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"k": []any{int64(1)}}, anyVal)
}

func TestFrom(t *testing.T) {
	type point struct {
		X       int     `json:"x"`
		Y       float64 `json:"y,omitempty"`
		Label   string
		Ignored string `json:"-"`
		hidden  int
	}

	var nilMap map[string]int
	ref := entities.FunctionRef{Handle: "vm", ID: 1}

	tests := []struct {
		name string
		in   any
		want entities.Value
	}{
		{name: "nil", in: nil, want: entities.Nil()},
		{name: "int", in: 42, want: entities.Int(42)},
		{name: "uint8", in: uint8(7), want: entities.Int(7)},
		{name: "float32", in: float32(0.5), want: entities.Float(0.5)},
		{name: "string", in: "s", want: entities.String("s")},
		{name: "bytes", in: []byte("raw"), want: entities.String("raw")},
		{name: "bool", in: false, want: entities.Bool(false)},
		{name: "ref", in: ref, want: entities.Ref(ref)},
		{name: "value", in: entities.Int(3), want: entities.Int(3)},
		{name: "nil map", in: nilMap, want: entities.Nil()},
		{name: "slice", in: []any{1, "two", nil}, want: entities.List(entities.Int(1), entities.String("two"), entities.Nil())},
		{name: "array", in: [2]bool{true, false}, want: entities.List(entities.Bool(true), entities.Bool(false))},
		{name: "int keys", in: map[int]string{1: "a", 2: "b"}, want: entities.Map(map[string]entities.Value{
			"1": entities.String("a"), "2": entities.String("b"),
		})},
		{name: "struct", in: point{X: 1, Label: "p", Ignored: "x", hidden: 9}, want: entities.Map(map[string]entities.Value{
			"x": entities.Int(1), "Label": entities.String("p"),
		})},
		{name: "pointer", in: &point{X: 2, Y: 0.5}, want: entities.Map(map[string]entities.Value{
			"x": entities.Int(2), "y": entities.Float(0.5), "Label": entities.String(""),
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := From(tt.in)
			require.NoError(t, err)
			testutil.AssertValueEqual(t, tt.want, got)
		})
	}
}

func TestFrom_Errors(t *testing.T) {
	_, err := From(uint64(math.MaxUint64))
	assert.ErrorIs(t, err, errors.ErrLossyConversion)

	_, err = From(make(chan int))
	assert.ErrorIs(t, err, errors.ErrUnsupportedType)

	_, err = From(map[float64]int{1.5: 1})
	assert.ErrorIs(t, err, errors.ErrUnsupportedType)

	_, err = From(func() {})
	assert.ErrorIs(t, err, errors.ErrUnsupportedType)
}

func TestValues(t *testing.T) {
	vs, err := Values(1, "a", true)
	require.NoError(t, err)
	testutil.AssertValuesEqual(t, []entities.Value{entities.Int(1), entities.String("a"), entities.Bool(true)}, vs)

	_, err = Values(1, make(chan int))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "argument 2")
}

func TestTypeOf(t *testing.T) {
	assert.Equal(t, entities.TypeInteger, TypeOf[int]())
	assert.Equal(t, entities.TypeInteger, TypeOf[uint16]())
	assert.Equal(t, entities.TypeFloat, TypeOf[float32]())
	assert.Equal(t, entities.TypeString, TypeOf[string]())
	assert.Equal(t, entities.TypeString, TypeOf[[]byte]())
	assert.Equal(t, entities.TypeBoolean, TypeOf[bool]())
	assert.Equal(t, entities.TypeHandle, TypeOf[entities.FunctionRef]())
	assert.Equal(t, entities.TypeAggregate, TypeOf[[]int]())
	assert.Equal(t, entities.TypeAggregate, TypeOf[map[string]any]())
	assert.Equal(t, entities.TypeAny, TypeOf[entities.Value]())
	assert.Equal(t, entities.TypeAny, TypeOf[any]())
	assert.Equal(t, entities.TypeInteger, TypeOf[*int]())
}
