package marshal

import (
	"math"

	"github.com/reglet-dev/reglet-lua/domain/entities"
	"github.com/reglet-dev/reglet-lua/domain/errors"
)

// CheckSignature validates args against sig and reports the first mismatch, by
// arity or by type, as a SignatureMismatch MarshalError naming the offending
// position. A float without a fractional part satisfies an integer parameter.
func CheckSignature(name string, sig entities.Signature, args []entities.Value) error {
	params := sig.Params

	minArgs, maxArgs := len(params), len(params)
	if sig.Variadic && len(params) > 0 {
		minArgs = len(params) - 1
		maxArgs = -1
	}

	for i, arg := range args {
		if maxArgs >= 0 && i >= maxArgs {
			return &errors.MarshalError{
				Kind:     errors.SignatureMismatch,
				Function: name,
				Position: i,
				Expected: "none",
				Received: arg.Kind().String(),
			}
		}

		param := paramAt(params, i)
		if !accepts(param, arg) {
			return &errors.MarshalError{
				Kind:     errors.SignatureMismatch,
				Function: name,
				Position: i,
				Expected: param.String(),
				Received: arg.Kind().String(),
			}
		}
	}

	if len(args) < minArgs {
		return &errors.MarshalError{
			Kind:     errors.SignatureMismatch,
			Function: name,
			Position: len(args),
			Expected: params[len(args)].String(),
			Received: "missing",
		}
	}
	return nil
}

// CheckResult validates the first result of a call against an expected type.
// A missing result counts as nil. A nil expected type accepts anything.
func CheckResult(name string, expected *entities.Type, results []entities.Value) error {
	if expected == nil {
		return nil
	}
	result := entities.Nil()
	if len(results) > 0 {
		result = results[0]
	}
	if accepts(*expected, result) {
		return nil
	}
	return &errors.MarshalError{
		Kind:     errors.SignatureMismatch,
		Function: name,
		Position: -1,
		Expected: expected.String(),
		Received: result.Kind().String(),
	}
}

func paramAt(params []entities.Type, i int) entities.Type {
	if len(params) == 0 {
		return entities.TypeAny
	}
	if i >= len(params) {
		return params[len(params)-1]
	}
	return params[i]
}

func accepts(param entities.Type, arg entities.Value) bool {
	if param.Accepts(arg.Kind()) {
		return true
	}
	if param == entities.TypeInteger && arg.Kind() == entities.KindFloat {
		f, _ := arg.AsFloat()
		return f == math.Trunc(f) && !math.IsInf(f, 0)
	}
	return false
}
