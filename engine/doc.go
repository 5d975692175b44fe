// Package engine embeds the Lua interpreter used by plugins.
//
// A VM owns exactly one interpreter state. It can execute a source unit, expose
// Go callbacks under global names, call script functions with entities.Value
// arguments and read globals. Values cross the boundary only through the
// conversions in convert.go, which enforce the numeric and table rules shared by
// every plugin.
//
// # ABI Profiles
//
// The engine is compiled for exactly one Lua ABI profile, chosen with build tags:
//
//	go build                 # lua51 (default)
//	go build -tags lua52
//	go build -tags lua53
//	go build -tags lua54
//
// Setting more than one of the tags fails compilation. ABI reports the compiled
// profile at run time. Profiles differ in _VERSION, the compat globals offered to
// scripts (unpack, loadstring, setfenv in 5.1; table.unpack and string-accepting
// load in 5.2+; math.type and friends in 5.3+; warn in 5.4) and in the exact
// integer range the marshaler honors.
//
// # Basic Usage
//
//	vm, err := engine.New(engine.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer vm.Close()
//
//	err = vm.RegisterNative("add", 2, func(ctx context.Context, args []entities.Value) ([]entities.Value, error) {
//	    a, _ := args[0].AsInt()
//	    b, _ := args[1].AsInt()
//	    return []entities.Value{entities.Int(a + b)}, nil
//	})
//
//	exports, err := vm.Execute(ctx, "main.lua", source)
//	ref, _ := exports.Lookup("main")
//	results, err := vm.CallRef(ctx, ref, nil)
//
// A VM is not safe for concurrent use. Callers serialize access per VM.
package engine
