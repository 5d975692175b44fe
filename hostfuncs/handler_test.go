package hostfuncs

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reglet-dev/reglet-lua/domain/entities"
	"github.com/reglet-dev/reglet-lua/domain/errors"
	"github.com/reglet-dev/reglet-lua/internal/testutil"
)

func TestFuncHelpers_Signatures(t *testing.T) {
	tests := []struct {
		name      string
		desc      entities.NativeFunctionDescriptor
		signature string
		arity     int
	}{
		{
			name:      "func0",
			desc:      Func0("now", "", func(context.Context) (int64, error) { return 0, nil }),
			signature: "()",
			arity:     0,
		},
		{
			name:      "func1",
			desc:      Func1("upper", "", func(_ context.Context, s string) (string, error) { return s, nil }),
			signature: "(string)",
			arity:     1,
		},
		{
			name:      "func2",
			desc:      Func2("scale", "", func(_ context.Context, f float64, n int) (float64, error) { return f, nil }),
			signature: "(float, integer)",
			arity:     2,
		},
		{
			name: "func3",
			desc: Func3("pick", "", func(_ context.Context, b bool, xs []int, v entities.Value) (bool, error) {
				return b, nil
			}),
			signature: "(boolean, aggregate, any)",
			arity:     3,
		},
		{
			name:      "variadic",
			desc:      FuncVariadic("sum", "", func(_ context.Context, xs []float64) (float64, error) { return 0, nil }),
			signature: "(float...)",
			arity:     -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.signature, tt.desc.Signature.String())
			assert.Equal(t, tt.arity, tt.desc.Signature.Arity())
			assert.NotNil(t, tt.desc.Func)
		})
	}
}

func TestFunc1_Call(t *testing.T) {
	desc := Func1("upper", "Uppercases a string", func(_ context.Context, s string) (string, error) {
		return strings.ToUpper(s), nil
	})

	got, err := desc.Func(context.Background(), []entities.Value{entities.String("abc")})
	require.NoError(t, err)
	testutil.AssertValueEqual(t, entities.String("ABC"), got)
	assert.Equal(t, "Uppercases a string", desc.Description)
}

func TestFunc2_LossyArgument(t *testing.T) {
	desc := Func2("small", "", func(_ context.Context, a int8, b int8) (int8, error) { return a + b, nil })

	_, err := desc.Func(context.Background(), []entities.Value{entities.Int(1), entities.Int(1000)})
	require.ErrorIs(t, err, errors.ErrLossyConversion)
	assert.Contains(t, err.Error(), "small: argument 2")
}

func TestFuncVariadic_Call(t *testing.T) {
	desc := FuncVariadic("sum", "", func(_ context.Context, xs []float64) (float64, error) {
		var total float64
		for _, x := range xs {
			total += x
		}
		return total, nil
	})

	got, err := desc.Func(context.Background(), []entities.Value{entities.Int(1), entities.Float(2.5)})
	require.NoError(t, err)
	testutil.AssertValueEqual(t, entities.Float(3.5), got)

	got, err = desc.Func(context.Background(), nil)
	require.NoError(t, err)
	testutil.AssertValueEqual(t, entities.Float(0), got)
}

func TestFunc_ResultConversion(t *testing.T) {
	desc := Func0("info", "", func(context.Context) (map[string]any, error) {
		return map[string]any{"name": "calc", "tags": []string{"a"}}, nil
	})

	got, err := desc.Func(context.Background(), nil)
	require.NoError(t, err)
	testutil.AssertValueEqual(t, entities.Map(map[string]entities.Value{
		"name": entities.String("calc"),
		"tags": entities.List(entities.String("a")),
	}), got)

	bad := Func0("chan", "", func(context.Context) (chan int, error) { return make(chan int), nil })
	_, err = bad.Func(context.Background(), nil)
	assert.ErrorIs(t, err, errors.ErrUnsupportedType)
}
