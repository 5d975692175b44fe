package marshal

import (
	stdErrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reglet-dev/reglet-lua/domain/entities"
	"github.com/reglet-dev/reglet-lua/domain/errors"
)

func TestCheckSignature(t *testing.T) {
	intInt := entities.Signature{Params: []entities.Type{entities.TypeInteger, entities.TypeInteger}}
	variadic := entities.Signature{Params: []entities.Type{entities.TypeString, entities.TypeFloat}, Variadic: true}

	tests := []struct {
		name     string
		sig      entities.Signature
		args     []entities.Value
		ok       bool
		position int
		expected string
		received string
	}{
		{name: "exact", sig: intInt, args: []entities.Value{entities.Int(4), entities.Int(6)}, ok: true},
		{name: "integral float", sig: intInt, args: []entities.Value{entities.Float(4), entities.Int(6)}, ok: true},
		{name: "fractional float", sig: intInt, args: []entities.Value{entities.Int(4), entities.Float(6.5)},
			position: 1, expected: "integer", received: "float"},
		{name: "wrong type", sig: intInt, args: []entities.Value{entities.String("4"), entities.Int(6)},
			position: 0, expected: "integer", received: "string"},
		{name: "too few", sig: intInt, args: []entities.Value{entities.Int(4)},
			position: 1, expected: "integer", received: "missing"},
		{name: "too many", sig: intInt, args: []entities.Value{entities.Int(4), entities.Int(6), entities.Bool(true)},
			position: 2, expected: "none", received: "boolean"},
		{name: "nil argument", sig: intInt, args: []entities.Value{entities.Nil(), entities.Int(6)},
			position: 0, expected: "integer", received: "nil"},
		{name: "variadic empty tail", sig: variadic, args: []entities.Value{entities.String("sum")}, ok: true},
		{name: "variadic tail", sig: variadic, args: []entities.Value{entities.String("sum"), entities.Int(1), entities.Float(2.5)}, ok: true},
		{name: "variadic bad tail", sig: variadic, args: []entities.Value{entities.String("sum"), entities.Int(1), entities.Bool(true)},
			position: 2, expected: "float", received: "boolean"},
		{name: "variadic missing head", sig: variadic, args: nil,
			position: 0, expected: "string", received: "missing"},
		{name: "any accepts nil", sig: entities.Signature{Params: []entities.Type{entities.TypeAny}}, args: []entities.Value{entities.Nil()}, ok: true},
		{name: "aggregate", sig: entities.Signature{Params: []entities.Type{entities.TypeAggregate}}, args: []entities.Value{entities.List()}, ok: true},
		{name: "handle", sig: entities.Signature{Params: []entities.Type{entities.TypeHandle}}, args: []entities.Value{entities.Int(1)},
			position: 0, expected: "handle", received: "integer"},
		{name: "no params", sig: entities.Signature{}, args: nil, ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckSignature("fn", tt.sig, tt.args)
			if tt.ok {
				assert.NoError(t, err)
				return
			}

			require.ErrorIs(t, err, errors.ErrSignatureMismatch)
			var marshalErr *errors.MarshalError
			require.True(t, stdErrors.As(err, &marshalErr))
			assert.Equal(t, "fn", marshalErr.Function)
			assert.Equal(t, tt.position, marshalErr.Position)
			assert.Equal(t, tt.expected, marshalErr.Expected)
			assert.Equal(t, tt.received, marshalErr.Received)
		})
	}
}

func TestCheckResult(t *testing.T) {
	integer := entities.TypeInteger

	assert.NoError(t, CheckResult("main", nil, nil))
	assert.NoError(t, CheckResult("main", &integer, []entities.Value{entities.Int(10), entities.String("extra")}))
	assert.NoError(t, CheckResult("main", &integer, []entities.Value{entities.Float(10)}))

	err := CheckResult("main", &integer, nil)
	require.ErrorIs(t, err, errors.ErrSignatureMismatch)
	assert.Equal(t, `signature mismatch in result of "main": expected integer, received nil`, err.Error())

	err = CheckResult("main", &integer, []entities.Value{entities.String("10")})
	var marshalErr *errors.MarshalError
	require.True(t, stdErrors.As(err, &marshalErr))
	assert.Equal(t, -1, marshalErr.Position)
	assert.Equal(t, "string", marshalErr.Received)
}
