package hostfuncs

import (
	"context"
	"fmt"

	"github.com/reglet-dev/reglet-lua/domain/entities"
	"github.com/reglet-dev/reglet-lua/marshal"
)

// Handler is the common shape of every native function once its arguments have
// been validated. It is what middleware wraps.
type Handler = entities.NativeFunc

// Func0 builds a descriptor for a native function without parameters.
func Func0[R any](name, description string, fn func(context.Context) (R, error)) entities.NativeFunctionDescriptor {
	return entities.NativeFunctionDescriptor{
		Name:        name,
		Description: description,
		Func: func(ctx context.Context, _ []entities.Value) (entities.Value, error) {
			r, err := fn(ctx)
			if err != nil {
				return entities.Nil(), err
			}
			return marshal.From(r)
		},
	}
}

// Func1 builds a descriptor for a native function with one typed parameter.
// The parameter type tag is derived from A.
//
// Example usage:
//
//	hostfuncs.Func1("upper", "Uppercases a string", func(ctx context.Context, s string) (string, error) {
//	    return strings.ToUpper(s), nil
//	})
func Func1[A, R any](name, description string, fn func(context.Context, A) (R, error)) entities.NativeFunctionDescriptor {
	return entities.NativeFunctionDescriptor{
		Name:        name,
		Description: description,
		Signature:   entities.Signature{Params: []entities.Type{marshal.TypeOf[A]()}},
		Func: func(ctx context.Context, args []entities.Value) (entities.Value, error) {
			a, err := arg[A](name, args, 0)
			if err != nil {
				return entities.Nil(), err
			}
			r, err := fn(ctx, a)
			if err != nil {
				return entities.Nil(), err
			}
			return marshal.From(r)
		},
	}
}

// Func2 builds a descriptor for a native function with two typed parameters.
func Func2[A, B, R any](name, description string, fn func(context.Context, A, B) (R, error)) entities.NativeFunctionDescriptor {
	return entities.NativeFunctionDescriptor{
		Name:        name,
		Description: description,
		Signature:   entities.Signature{Params: []entities.Type{marshal.TypeOf[A](), marshal.TypeOf[B]()}},
		Func: func(ctx context.Context, args []entities.Value) (entities.Value, error) {
			a, err := arg[A](name, args, 0)
			if err != nil {
				return entities.Nil(), err
			}
			b, err := arg[B](name, args, 1)
			if err != nil {
				return entities.Nil(), err
			}
			r, err := fn(ctx, a, b)
			if err != nil {
				return entities.Nil(), err
			}
			return marshal.From(r)
		},
	}
}

// Func3 builds a descriptor for a native function with three typed parameters.
func Func3[A, B, C, R any](name, description string, fn func(context.Context, A, B, C) (R, error)) entities.NativeFunctionDescriptor {
	return entities.NativeFunctionDescriptor{
		Name:        name,
		Description: description,
		Signature: entities.Signature{Params: []entities.Type{
			marshal.TypeOf[A](), marshal.TypeOf[B](), marshal.TypeOf[C](),
		}},
		Func: func(ctx context.Context, args []entities.Value) (entities.Value, error) {
			a, err := arg[A](name, args, 0)
			if err != nil {
				return entities.Nil(), err
			}
			b, err := arg[B](name, args, 1)
			if err != nil {
				return entities.Nil(), err
			}
			c, err := arg[C](name, args, 2)
			if err != nil {
				return entities.Nil(), err
			}
			r, err := fn(ctx, a, b, c)
			if err != nil {
				return entities.Nil(), err
			}
			return marshal.From(r)
		},
	}
}

// FuncVariadic builds a descriptor for a native function taking any number of
// arguments of type A.
func FuncVariadic[A, R any](name, description string, fn func(context.Context, []A) (R, error)) entities.NativeFunctionDescriptor {
	return entities.NativeFunctionDescriptor{
		Name:        name,
		Description: description,
		Signature:   entities.Signature{Params: []entities.Type{marshal.TypeOf[A]()}, Variadic: true},
		Func: func(ctx context.Context, args []entities.Value) (entities.Value, error) {
			as := make([]A, len(args))
			for i := range args {
				a, err := arg[A](name, args, i)
				if err != nil {
					return entities.Nil(), err
				}
				as[i] = a
			}
			r, err := fn(ctx, as)
			if err != nil {
				return entities.Nil(), err
			}
			return marshal.From(r)
		},
	}
}

func arg[T any](name string, args []entities.Value, i int) (T, error) {
	var zero T
	if i >= len(args) {
		return zero, fmt.Errorf("%s: argument %d is missing", name, i+1)
	}
	v, err := marshal.To[T](args[i])
	if err != nil {
		return zero, fmt.Errorf("%s: argument %d: %w", name, i+1, err)
	}
	return v, nil
}
