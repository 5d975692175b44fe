package hostfuncs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/reglet-dev/reglet-lua/domain/entities"
	"github.com/reglet-dev/reglet-lua/marshal"
)

// HostFuncBundle is a pre-configured set of related native functions.
// Bundles allow registering multiple functions at once for common use cases.
type HostFuncBundle interface {
	// Functions returns the descriptors provided by the bundle.
	Functions() []entities.NativeFunctionDescriptor
}

// staticBundle implements HostFuncBundle with a fixed set of functions.
type staticBundle struct {
	functions []entities.NativeFunctionDescriptor
}

func (b *staticBundle) Functions() []entities.NativeFunctionDescriptor {
	return b.functions
}

// NewBundle returns a bundle over a fixed set of descriptors.
func NewBundle(functions ...entities.NativeFunctionDescriptor) HostFuncBundle {
	return &staticBundle{functions: functions}
}

// CoreBundle returns the functions every plugin host usually wants:
// log(level, message), json_encode(value) and json_decode(text).
func CoreBundle(logger *slog.Logger) HostFuncBundle {
	if logger == nil {
		logger = slog.Default()
	}
	return &staticBundle{
		functions: []entities.NativeFunctionDescriptor{
			Func2("log", "Writes a message to the host log at the given level",
				func(ctx context.Context, level, message string) (entities.Value, error) {
					attrs := []any{}
					if hc, ok := ctx.(HostContext); ok && hc.PluginName() != "" {
						attrs = append(attrs, "plugin", hc.PluginName())
					}
					logger.Log(ctx, parseLevel(level), message, attrs...)
					return entities.Nil(), nil
				}),
			Func1("json_encode", "Encodes a value as JSON text",
				func(_ context.Context, v entities.Value) (string, error) {
					data, err := json.Marshal(v)
					if err != nil {
						return "", fmt.Errorf("json_encode: %w", err)
					}
					return string(data), nil
				}),
			Func1("json_decode", "Decodes JSON text into a value",
				func(_ context.Context, text string) (entities.Value, error) {
					return DecodeJSON([]byte(text))
				}),
		},
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// DecodeJSON decodes a single JSON document into a Value. Numbers without a
// fraction or exponent that fit in int64 become integers.
func DecodeJSON(data []byte) (entities.Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return entities.Nil(), fmt.Errorf("json_decode: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return entities.Nil(), fmt.Errorf("json_decode: unexpected data after document")
	}
	return fromJSON(raw)
}

func fromJSON(raw any) (entities.Value, error) {
	switch x := raw.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return entities.Int(i), nil
		}
		f, err := x.Float64()
		if err != nil {
			return entities.Nil(), fmt.Errorf("json_decode: %w", err)
		}
		return entities.Float(f), nil
	case []any:
		items := make([]entities.Value, len(x))
		for i, item := range x {
			v, err := fromJSON(item)
			if err != nil {
				return entities.Nil(), err
			}
			items[i] = v
		}
		return entities.List(items...), nil
	case map[string]any:
		if len(x) == 0 {
			return entities.List(), nil
		}
		fields := make(map[string]entities.Value, len(x))
		for k, item := range x {
			v, err := fromJSON(item)
			if err != nil {
				return entities.Nil(), err
			}
			fields[k] = v
		}
		return entities.Map(fields), nil
	default:
		return marshal.From(x)
	}
}

// compositeBundle combines multiple bundles into one.
type compositeBundle struct {
	bundles []HostFuncBundle
}

func (b *compositeBundle) Functions() []entities.NativeFunctionDescriptor {
	var result []entities.NativeFunctionDescriptor
	for _, bundle := range b.bundles {
		result = append(result, bundle.Functions()...)
	}
	return result
}

// Combine returns a bundle containing the functions of every given bundle.
func Combine(bundles ...HostFuncBundle) HostFuncBundle {
	return &compositeBundle{bundles: bundles}
}

// WithBundle registers all functions from a bundle.
func WithBundle(bundle HostFuncBundle) RegistryOption {
	return func(b *registryBuilder) {
		if bundle == nil {
			b.errors = append(b.errors, fmt.Errorf("bundle cannot be nil"))
			return
		}
		b.functions = append(b.functions, bundle.Functions()...)
	}
}
