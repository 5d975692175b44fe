package wazero

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/reglet-dev/reglet-lua/domain/entities"
	"github.com/reglet-dev/reglet-lua/marshal"
)

// moduleConfig holds configuration for a wasm native module.
type moduleConfig struct {
	logger *slog.Logger
	// name is the module instance name (default: "natives").
	name string
	// prefix is prepended to every exported function name, joined with a dot.
	prefix string
}

// Option configures Load.
type Option func(*moduleConfig)

// WithModuleName sets the module instance name (default: "natives").
func WithModuleName(name string) Option {
	return func(c *moduleConfig) {
		c.name = name
	}
}

// WithPrefix exposes the exports under prefix, so "add" becomes "prefix.add".
func WithPrefix(prefix string) Option {
	return func(c *moduleConfig) {
		c.prefix = prefix
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *moduleConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func defaultModuleConfig() moduleConfig {
	return moduleConfig{
		name:   "natives",
		logger: slog.Default(),
	}
}

// Module is an instantiated WebAssembly module whose numeric exports are
// offered to Lua plugins as native functions. It implements
// hostfuncs.HostFuncBundle.
type Module struct {
	runtime   wazero.Runtime
	module    api.Module
	functions []entities.NativeFunctionDescriptor
	mu        sync.Mutex
}

// Load compiles and instantiates wasmBytes. Every export whose parameters and
// result are i32, i64, f32 or f64 becomes a native function; other exports
// are skipped.
//
// Example:
//
//	mod, err := wazero.Load(ctx, wasmBytes, wazero.WithPrefix("wasm"))
//	if err != nil {
//	    return err
//	}
//	defer mod.Close(ctx)
//	hctx, err := host.NewContext(hostfuncs.WithBundle(mod))
func Load(ctx context.Context, wasmBytes []byte, opts ...Option) (*Module, error) {
	cfg := defaultModuleConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	rt := wazero.NewRuntime(ctx)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate wasi: %w", err)
	}

	compiled, err := rt.CompileModule(ctx, wasmBytes)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("failed to compile module: %w", err)
	}
	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(cfg.name))
	if err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate module: %w", err)
	}

	m := &Module{runtime: rt, module: mod}

	defs := compiled.ExportedFunctions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, export := range names {
		def := defs[export]
		sig, ok := signatureOf(def.ParamTypes(), def.ResultTypes())
		if !ok {
			cfg.logger.Debug("skipping wasm export with unsupported signature", "module", cfg.name, "export", export)
			continue
		}
		name := export
		if cfg.prefix != "" {
			name = cfg.prefix + "." + export
		}
		m.functions = append(m.functions, entities.NativeFunctionDescriptor{
			Name:        name,
			Description: fmt.Sprintf("wasm export %s.%s", cfg.name, export),
			Signature:   sig,
			Func:        m.caller(name, export, def.ParamTypes(), def.ResultTypes()),
		})
	}

	cfg.logger.Debug("wasm module loaded", "module", cfg.name, "functions", len(m.functions))
	return m, nil
}

// Functions returns the native function descriptors for the module's exports.
func (m *Module) Functions() []entities.NativeFunctionDescriptor {
	return m.functions
}

// Close releases the runtime and the module instance.
func (m *Module) Close(ctx context.Context) error {
	return m.runtime.Close(ctx)
}

// signatureOf maps a wasm function type to a native signature. Only numeric
// parameters and at most one numeric result are supported.
func signatureOf(params, results []api.ValueType) (entities.Signature, bool) {
	if len(results) > 1 {
		return entities.Signature{}, false
	}
	for _, r := range results {
		if _, ok := typeOf(r); !ok {
			return entities.Signature{}, false
		}
	}

	sig := entities.Signature{Params: make([]entities.Type, len(params))}
	for i, p := range params {
		t, ok := typeOf(p)
		if !ok {
			return entities.Signature{}, false
		}
		sig.Params[i] = t
	}
	return sig, true
}

func typeOf(vt api.ValueType) (entities.Type, bool) {
	switch vt {
	case api.ValueTypeI32, api.ValueTypeI64:
		return entities.TypeInteger, true
	case api.ValueTypeF32, api.ValueTypeF64:
		return entities.TypeFloat, true
	default:
		return entities.TypeAny, false
	}
}

// caller returns the native callable for one export. Calls into the module
// are serialized since a module instance is not safe for concurrent use.
func (m *Module) caller(name, export string, params, results []api.ValueType) entities.NativeFunc {
	return func(ctx context.Context, args []entities.Value) (entities.Value, error) {
		stack := make([]uint64, len(params))
		for i, vt := range params {
			enc, err := encode(vt, args[i])
			if err != nil {
				return entities.Nil(), fmt.Errorf("%s: argument %d: %w", name, i+1, err)
			}
			stack[i] = enc
		}

		fn := m.module.ExportedFunction(export)
		if fn == nil {
			return entities.Nil(), fmt.Errorf("%s: export %q not found", name, export)
		}

		m.mu.Lock()
		out, err := fn.Call(ctx, stack...)
		m.mu.Unlock()
		if err != nil {
			return entities.Nil(), fmt.Errorf("%s: %w", name, err)
		}

		if len(results) == 0 || len(out) == 0 {
			return entities.Nil(), nil
		}
		return decode(results[0], out[0]), nil
	}
}

func encode(vt api.ValueType, v entities.Value) (uint64, error) {
	switch vt {
	case api.ValueTypeI32:
		i, err := marshal.To[int32](v)
		if err != nil {
			return 0, err
		}
		return api.EncodeI32(i), nil
	case api.ValueTypeI64:
		i, err := marshal.To[int64](v)
		if err != nil {
			return 0, err
		}
		return api.EncodeI64(i), nil
	case api.ValueTypeF32:
		f, err := marshal.To[float32](v)
		if err != nil {
			return 0, err
		}
		return api.EncodeF32(f), nil
	default:
		f, err := marshal.To[float64](v)
		if err != nil {
			return 0, err
		}
		return api.EncodeF64(f), nil
	}
}

func decode(vt api.ValueType, raw uint64) entities.Value {
	switch vt {
	case api.ValueTypeI32:
		return entities.Int(int64(api.DecodeI32(raw)))
	case api.ValueTypeI64:
		return entities.Int(int64(raw))
	case api.ValueTypeF32:
		return entities.Float(float64(api.DecodeF32(raw)))
	default:
		return entities.Float(api.DecodeF64(raw))
	}
}
