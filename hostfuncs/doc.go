// Package hostfuncs holds the native functions a host exposes to Lua plugins.
//
// A Registry collects NativeFunctionDescriptors and the requests the host
// expects plugins to implement. Bind installs the functions into a VM: every
// call from a script is converted to entities.Value, checked against the
// declared signature, and then passed through the middleware chain before the
// Go callable runs.
//
// Typed Go functions become descriptors with Func0..Func3 and FuncVariadic:
//
//	registry, err := hostfuncs.NewRegistry(
//	    hostfuncs.WithMiddleware(hostfuncs.PanicRecoveryMiddleware()),
//	    hostfuncs.WithFunction(hostfuncs.Func2("add", "Adds two integers",
//	        func(_ context.Context, a, b int64) (int64, error) { return a + b, nil })),
//	)
package hostfuncs
