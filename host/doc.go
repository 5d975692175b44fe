// Package host runs Lua plugins on behalf of a host application.
//
// A Context owns the native functions and request declarations shared by
// every plugin. A Manager registered with the Context loads plugin bundles:
// each bundle's manifest is validated, its dependencies are checked against
// the plugins already loaded, and its source runs in a fresh VM with the
// context's natives bound. The requests the source exports can then be
// dispatched by name.
//
// Calls into one plugin are serialized; different plugins run concurrently.
// A plugin calls its dependencies through the api table installed in its VM:
//
//	local n = api.call_depend("calc", "sum", 1, 2)
//	local ok, text = api.call_optional_depend("fmt", "wrap", n)
//
// call_function_depend and call_function_optional_depend take the exact
// version of the dependency after its name and return only the first result:
//
//	local n = api.call_function_depend("calc", "1.2.0", "sum", 1, 2)
//
// Typical wiring:
//
//	hctx, err := host.NewContext(hostfuncs.WithBundle(hostfuncs.CoreBundle(logger)))
//	if err != nil {
//	    return err
//	}
//	manager := host.NewManager(host.WithLogger(logger))
//	if err := hctx.RegisterManager(manager); err != nil {
//	    return err
//	}
//	defer manager.Close(ctx)
//
//	if err := manager.Load(ctx, bundle); err != nil {
//	    return err
//	}
//	results, err := manager.Dispatch(ctx, "calc", "sum", entities.Int(4), entities.Int(6))
package host
