package entities

import (
	"context"
	"strings"
)

// Type is the semantic type tag of a native function parameter.
type Type uint8

const (
	// TypeAny accepts every value, including nil.
	TypeAny Type = iota
	TypeInteger
	TypeFloat
	TypeString
	TypeBoolean
	// TypeHandle is an opaque handle; script callables arrive as FunctionRefs.
	TypeHandle
	// TypeAggregate is a table, either sequence or mapping.
	TypeAggregate
)

var typeNames = [...]string{
	TypeAny:       "any",
	TypeInteger:   "integer",
	TypeFloat:     "float",
	TypeString:    "string",
	TypeBoolean:   "boolean",
	TypeHandle:    "handle",
	TypeAggregate: "aggregate",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "unknown"
}

// ParseType resolves a type tag from its name.
func ParseType(name string) (Type, bool) {
	for i, n := range typeNames {
		if strings.EqualFold(n, name) {
			return Type(i), true
		}
	}
	return TypeAny, false
}

// Accepts reports whether a value of kind k satisfies the tag.
// Integers satisfy TypeFloat since widening is always permitted.
func (t Type) Accepts(k Kind) bool {
	switch t {
	case TypeAny:
		return true
	case TypeInteger:
		return k == KindInteger
	case TypeFloat:
		return k == KindFloat || k == KindInteger
	case TypeString:
		return k == KindString
	case TypeBoolean:
		return k == KindBoolean
	case TypeHandle:
		return k == KindFunction
	case TypeAggregate:
		return k == KindTable
	default:
		return false
	}
}

// Signature is the positional input signature of a native function.
// When Variadic is set, the last parameter type applies to every extra argument.
type Signature struct {
	Params   []Type
	Variadic bool
}

// Arity returns the number of declared parameters, or -1 for variadic signatures.
func (s Signature) Arity() int {
	if s.Variadic {
		return -1
	}
	return len(s.Params)
}

func (s Signature) String() string {
	parts := make([]string, len(s.Params))
	for i, p := range s.Params {
		parts[i] = p.String()
	}
	if s.Variadic && len(parts) > 0 {
		parts[len(parts)-1] += "..."
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// NativeFunc is a host-implemented callable exposed to scripts.
// Arguments already satisfy the descriptor's signature when it runs.
type NativeFunc func(ctx context.Context, args []Value) (Value, error)

// NativeFunctionDescriptor describes a native function registered with a manager context.
type NativeFunctionDescriptor struct {
	Func        NativeFunc
	Name        string
	Description string
	Signature   Signature
}

// ScriptRequestDescriptor is a request a plugin exposes to the host.
// Inputs are informational parameter names.
type ScriptRequestDescriptor struct {
	Name   string   `json:"name"`
	Inputs []string `json:"inputs,omitempty"`
}

// RequestDeclaration is a request the host expects every plugin to implement.
// A nil Output means the result is not checked.
type RequestDeclaration struct {
	Output *Type
	Name   string
	Inputs []Type
}
