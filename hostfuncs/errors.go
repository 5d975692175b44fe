package hostfuncs

import (
	"fmt"

	"github.com/reglet-dev/reglet-lua/domain/entities"
)

// NotFoundError is returned by Invoke for unknown native function names.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return "unknown native function: " + e.Name
}

// ToErrorDetail converts the error to a structured ErrorDetail.
func (e *NotFoundError) ToErrorDetail() *entities.ErrorDetail {
	return entities.NewErrorDetail("registry", e.Error()).WithCode("NOT_FOUND")
}

// PanicError reports a panic recovered from a native function.
type PanicError struct {
	Value    any
	Function string
}

// NewPanicError creates an error for a recovered panic value.
func NewPanicError(function string, panicValue any) *PanicError {
	return &PanicError{Function: function, Value: panicValue}
}

func (e *PanicError) Error() string {
	var msg string
	switch v := e.Value.(type) {
	case error:
		msg = v.Error()
	case string:
		msg = v
	default:
		msg = fmt.Sprintf("%v", v)
	}
	if e.Function == "" {
		return "panic: " + msg
	}
	return fmt.Sprintf("native function %q panicked: %s", e.Function, msg)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// ToErrorDetail converts the error to a structured ErrorDetail.
func (e *PanicError) ToErrorDetail() *entities.ErrorDetail {
	return entities.NewErrorDetail("internal", e.Error()).WithCode("PANIC")
}
