// Package wazero exposes WebAssembly functions to Lua plugins as native functions.
//
// A module is compiled and instantiated with the wazero runtime. Each export
// with a numeric signature becomes an entities.NativeFunctionDescriptor: i32 and
// i64 parameters take integers, f32 and f64 take floats, and the single result
// (if any) comes back as the matching value. Integers that do not fit an i32
// parameter fail with a lossy conversion error instead of being truncated.
//
// # Basic Usage
//
//	mod, err := wazero.Load(ctx, wasmBytes, wazero.WithPrefix("wasm"))
//	if err != nil {
//	    return err
//	}
//	defer mod.Close(ctx)
//
//	hctx, err := host.NewContext(hostfuncs.WithBundle(mod))
//
// Scripts then call the exports as wasm.add(1, 2).
package wazero
