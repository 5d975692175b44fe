package hostfuncs

import (
	"context"
	"log/slog"
	"time"

	"github.com/reglet-dev/reglet-lua/domain/entities"
)

// Middleware is a function that wraps a Handler to add cross-cutting behavior.
// Middleware executes in FIFO order (first registered wraps first, onion model).
// It only ever sees calls whose arguments already match the signature.
//
// Example usage:
//
//	countingMiddleware := func(next Handler) Handler {
//	    return func(ctx context.Context, args []entities.Value) (entities.Value, error) {
//	        calls.Add(1)
//	        return next(ctx, args)
//	    }
//	}
type Middleware func(next Handler) Handler

// RegistryOption is a functional option for configuring a Registry.
type RegistryOption func(*registryBuilder)

// PanicRecoveryMiddleware returns a middleware that catches panics in native
// functions and converts them to a PanicError instead of crashing the host.
func PanicRecoveryMiddleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, args []entities.Value) (result entities.Value, err error) {
			defer func() {
				if r := recover(); r != nil {
					name := ""
					if hc, ok := ctx.(HostContext); ok {
						name = hc.FunctionName()
					}
					result = entities.Nil()
					err = NewPanicError(name, r)
				}
			}()
			return next(ctx, args)
		}
	}
}

// LoggingMiddleware returns a middleware that logs native function invocations
// at debug level and failures at warn level.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, args []entities.Value) (entities.Value, error) {
			funcName, plugin := "unknown", ""
			if hc, ok := ctx.(HostContext); ok {
				funcName = hc.FunctionName()
				plugin = hc.PluginName()
			}

			start := time.Now()
			result, err := next(ctx, args)
			if err != nil {
				logger.WarnContext(ctx, "native function failed",
					"function", funcName, "plugin", plugin, "error", err)
				return result, err
			}
			logger.DebugContext(ctx, "native function completed",
				"function", funcName, "plugin", plugin, "args", len(args), "duration", time.Since(start))
			return result, nil
		}
	}
}
