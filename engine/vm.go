package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	lua "github.com/yuin/gopher-lua"

	"github.com/reglet-dev/reglet-lua/domain/entities"
	"github.com/reglet-dev/reglet-lua/domain/errors"
)

// Callback is a Go function callable from scripts. It receives the converted
// arguments and returns any number of results.
type Callback func(ctx context.Context, args []entities.Value) ([]entities.Value, error)

// VM is one embedded interpreter state.
type VM struct {
	L       *lua.LState
	errMeta *lua.LTable
	refs    map[uint64]*lua.LFunction
	refIDs  map[*lua.LFunction]uint64
	cfg     vmConfig
	id      string
	nextRef uint64
	closed  atomic.Bool
	warnOff bool
}

// libraries opened in every VM. The debug and channel libraries are left out.
var libraries = []struct {
	name string
	open lua.LGFunction
}{
	{lua.LoadLibName, lua.OpenPackage},
	{lua.BaseLibName, lua.OpenBase},
	{lua.TabLibName, lua.OpenTable},
	{lua.StringLibName, lua.OpenString},
	{lua.MathLibName, lua.OpenMath},
	{lua.OsLibName, lua.OpenOs},
	{lua.IoLibName, lua.OpenIo},
	{lua.CoroutineLibName, lua.OpenCoroutine},
}

// New creates a VM with the compiled ABI profile installed.
func New(opts ...Option) (*VM, error) {
	cfg := defaultVMConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	L := lua.NewState(lua.Options{
		SkipOpenLibs:  true,
		CallStackSize: cfg.runtime.CallStackSize,
		RegistrySize:  cfg.runtime.RegistrySize,
	})

	vm := &VM{
		L:      L,
		cfg:    cfg,
		id:     uuid.NewString(),
		refs:   make(map[uint64]*lua.LFunction),
		refIDs: make(map[*lua.LFunction]uint64),
	}

	if err := vm.open(); err != nil {
		L.Close()
		return nil, err
	}

	cfg.logger.Debug("vm created", "vm", vm.id, "name", cfg.name, "abi", profile.Name)
	return vm, nil
}

func (vm *VM) open() error {
	L := vm.L
	for _, lib := range libraries {
		if err := L.CallByParam(lua.P{Fn: L.NewFunction(lib.open), NRet: 0, Protect: true}, lua.LString(lib.name)); err != nil {
			return fmt.Errorf("failed to open %q library: %w", lib.name, err)
		}
	}

	vm.errMeta = L.NewTypeMetatable("host.error")
	L.SetField(vm.errMeta, "__tostring", L.NewFunction(func(L *lua.LState) int {
		ud := L.CheckUserData(1)
		if err, ok := ud.Value.(error); ok {
			L.Push(lua.LString(err.Error()))
		} else {
			L.Push(lua.LString("host error"))
		}
		return 1
	}))

	L.SetGlobal("print", L.NewFunction(vm.print))

	if len(vm.cfg.packageDirs) > 0 {
		pkg, ok := L.GetGlobal("package").(*lua.LTable)
		if !ok {
			return fmt.Errorf("package library is not available")
		}
		paths := make([]string, 0, 2*len(vm.cfg.packageDirs)+1)
		for _, dir := range vm.cfg.packageDirs {
			paths = append(paths, filepath.Join(dir, "?.lua"), filepath.Join(dir, "?", "init.lua"))
		}
		paths = append(paths, lua.LVAsString(pkg.RawGetString("path")))
		pkg.RawSetString("path", lua.LString(strings.Join(paths, ";")))
	}

	installProfile(vm)
	return nil
}

func (vm *VM) print(L *lua.LState) int {
	n := L.GetTop()
	parts := make([]string, n)
	for i := 1; i <= n; i++ {
		parts[i-1] = L.ToStringMeta(L.Get(i)).String()
	}
	fmt.Fprintln(vm.cfg.stdout, strings.Join(parts, "\t"))
	return 0
}

// ID returns the VM handle. Function references carry it.
func (vm *VM) ID() string { return vm.id }

// Name returns the label given with WithName.
func (vm *VM) Name() string { return vm.cfg.name }

// Closed reports whether Close has been called.
func (vm *VM) Closed() bool { return vm.closed.Load() }

// Close destroys the interpreter state. Every FunctionRef issued by the VM
// becomes stale. Close is idempotent.
func (vm *VM) Close() {
	if !vm.closed.CompareAndSwap(false, true) {
		return
	}
	vm.L.Close()
	vm.refs = nil
	vm.refIDs = nil
	vm.cfg.logger.Debug("vm closed", "vm", vm.id, "name", vm.cfg.name)
}

func (vm *VM) staleError() error {
	return &errors.MarshalError{
		Kind:    errors.StaleReference,
		Message: fmt.Sprintf("vm %s is closed", vm.id),
	}
}

// Execute runs a source unit and collects the request table it returns.
func (vm *VM) Execute(ctx context.Context, chunkName, source string) (*Exports, error) {
	if vm.Closed() {
		return nil, vm.staleError()
	}

	fn, err := vm.L.Load(strings.NewReader(source), chunkName)
	if err != nil {
		return nil, &errors.ScriptError{Phase: "parse", Message: err.Error(), Err: err}
	}

	results, err := vm.pcall(ctx, "execute", fn, nil)
	if err != nil {
		return nil, err
	}

	var ret lua.LValue = lua.LNil
	if len(results) > 0 {
		ret = results[0]
	}
	return vm.collectExports(ret), nil
}

// RegisterNative exposes cb to scripts under name. Dotted names create nested
// tables, so "api.call" becomes a field of the global "api". A non-negative arity
// is enforced before cb runs; a negative arity accepts any number of arguments.
func (vm *VM) RegisterNative(name string, arity int, cb Callback) error {
	if vm.Closed() {
		return vm.staleError()
	}
	fn := vm.L.NewFunction(func(L *lua.LState) int {
		return vm.invokeNative(L, name, arity, cb)
	})
	return vm.setPath(name, fn)
}

func (vm *VM) invokeNative(L *lua.LState, name string, arity int, cb Callback) int {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(*lua.ApiError); ok {
				panic(r)
			}
			vm.raise(L, fmt.Errorf("native function %q panicked: %v", name, r))
		}
	}()

	n := L.GetTop()
	if arity >= 0 && n != arity {
		vm.raise(L, arityError(name, arity, n))
	}

	args := make([]entities.Value, n)
	for i := 1; i <= n; i++ {
		v, err := vm.fromLua(L.Get(i))
		if err != nil {
			vm.raise(L, err)
		}
		args[i-1] = v
	}

	ctx := L.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	results, err := cb(ctx, args)
	if err != nil {
		vm.raise(L, err)
	}

	values := make([]lua.LValue, len(results))
	for i, r := range results {
		lv, err := vm.toLua(r)
		if err != nil {
			vm.raise(L, err)
		}
		values[i] = lv
	}
	for _, lv := range values {
		L.Push(lv)
	}
	return len(values)
}

func arityError(name string, arity, got int) error {
	e := &errors.MarshalError{Kind: errors.SignatureMismatch, Function: name}
	if got < arity {
		e.Position = got
		e.Expected = fmt.Sprintf("%d arguments", arity)
		e.Received = "missing"
	} else {
		e.Position = arity
		e.Expected = "none"
		e.Received = fmt.Sprintf("%d arguments", got)
	}
	return e
}

// raise aborts the running Lua call with err. The error travels as userdata so
// that callers can still match it with errors.As once the call unwinds.
func (vm *VM) raise(L *lua.LState, err error) {
	ud := L.NewUserData()
	ud.Value = err
	L.SetMetatable(ud, vm.errMeta)
	L.Error(ud, 1)
}

// Call calls the global function name. Dotted names are resolved through tables.
func (vm *VM) Call(ctx context.Context, name string, args ...entities.Value) ([]entities.Value, error) {
	if vm.Closed() {
		return nil, vm.staleError()
	}
	fn, ok := vm.lookupPath(name).(*lua.LFunction)
	if !ok {
		return nil, &errors.ScriptError{Phase: "call", Message: fmt.Sprintf("global %q is not a function", name)}
	}
	return vm.callFunction(ctx, "call", fn, args)
}

// CallRef calls a function reference issued by this VM.
func (vm *VM) CallRef(ctx context.Context, ref entities.FunctionRef, args ...entities.Value) ([]entities.Value, error) {
	fn, err := vm.resolveRef(ref)
	if err != nil {
		return nil, err
	}
	return vm.callFunction(ctx, "call", fn, args)
}

func (vm *VM) callFunction(ctx context.Context, phase string, fn *lua.LFunction, args []entities.Value) ([]entities.Value, error) {
	largs := make([]lua.LValue, len(args))
	for i, a := range args {
		lv, err := vm.toLua(a)
		if err != nil {
			return nil, err
		}
		largs[i] = lv
	}

	results, err := vm.pcall(ctx, phase, fn, largs)
	if err != nil {
		return nil, err
	}

	out := make([]entities.Value, len(results))
	for i, lv := range results {
		v, err := vm.fromLua(lv)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// pcall runs fn in protected mode with ctx attached and returns every result.
// The stack is restored to its entry height on return.
func (vm *VM) pcall(ctx context.Context, phase string, fn *lua.LFunction, args []lua.LValue) ([]lua.LValue, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, &errors.ScriptError{Phase: phase, Message: err.Error(), Err: err}
	}

	L := vm.L
	if L.Context() == nil {
		L.SetContext(ctx)
		defer L.RemoveContext()
	}

	base := L.GetTop()
	defer L.SetTop(base)

	L.Push(fn)
	for _, a := range args {
		L.Push(a)
	}
	if err := L.PCall(len(args), lua.MultRet, nil); err != nil {
		return nil, vm.scriptError(ctx, phase, err)
	}

	n := L.GetTop() - base
	results := make([]lua.LValue, n)
	for i := 0; i < n; i++ {
		results[i] = L.Get(base + i + 1)
	}
	return results, nil
}

func (vm *VM) scriptError(ctx context.Context, phase string, err error) error {
	se := &errors.ScriptError{Phase: phase, Message: err.Error(), Err: err}

	if apiErr, ok := err.(*lua.ApiError); ok {
		se.StackTrace = apiErr.StackTrace
		se.Panic = apiErr.Type == lua.ApiErrorPanic
		se.Err = apiErr.Cause
		if apiErr.Object != nil {
			se.Message = apiErr.Object.String()
		}
		if ud, ok := apiErr.Object.(*lua.LUserData); ok {
			if hostErr, ok := ud.Value.(error); ok {
				se.Err = hostErr
				se.Message = hostErr.Error()
			}
		}
	}

	if ctxErr := ctx.Err(); ctxErr != nil && se.Err == nil {
		se.Err = ctxErr
	}
	return se
}

// Global reads a global entry. Dotted names are resolved through tables.
func (vm *VM) Global(name string) (entities.Value, error) {
	if vm.Closed() {
		return entities.Nil(), vm.staleError()
	}
	return vm.fromLua(vm.lookupPath(name))
}

// SetGlobal assigns a global entry. Dotted names create intermediate tables.
func (vm *VM) SetGlobal(name string, v entities.Value) error {
	if vm.Closed() {
		return vm.staleError()
	}
	lv, err := vm.toLua(v)
	if err != nil {
		return err
	}
	return vm.setPath(name, lv)
}

func (vm *VM) lookupPath(name string) lua.LValue {
	parts := strings.Split(name, ".")
	cur := vm.L.GetGlobal(parts[0])
	for _, part := range parts[1:] {
		tbl, ok := cur.(*lua.LTable)
		if !ok {
			return lua.LNil
		}
		cur = tbl.RawGetString(part)
	}
	return cur
}

func (vm *VM) setPath(name string, lv lua.LValue) error {
	parts := strings.Split(name, ".")
	for _, p := range parts {
		if p == "" {
			return fmt.Errorf("invalid global name %q", name)
		}
	}
	if len(parts) == 1 {
		vm.L.SetGlobal(name, lv)
		return nil
	}

	L := vm.L
	tbl, ok := L.GetGlobal(parts[0]).(*lua.LTable)
	if !ok {
		if L.GetGlobal(parts[0]) != lua.LNil {
			return fmt.Errorf("global %q is not a table", parts[0])
		}
		tbl = L.NewTable()
		L.SetGlobal(parts[0], tbl)
	}
	for i, part := range parts[1 : len(parts)-1] {
		next, ok := tbl.RawGetString(part).(*lua.LTable)
		if !ok {
			if tbl.RawGetString(part) != lua.LNil {
				return fmt.Errorf("%q is not a table", strings.Join(parts[:i+2], "."))
			}
			next = L.NewTable()
			tbl.RawSetString(part, next)
		}
		tbl = next
	}
	tbl.RawSetString(parts[len(parts)-1], lv)
	return nil
}

// refFor returns the reference for fn, issuing one on first sight.
func (vm *VM) refFor(fn *lua.LFunction) entities.FunctionRef {
	if id, ok := vm.refIDs[fn]; ok {
		return entities.FunctionRef{Handle: vm.id, ID: id}
	}
	vm.nextRef++
	vm.refs[vm.nextRef] = fn
	vm.refIDs[fn] = vm.nextRef
	return entities.FunctionRef{Handle: vm.id, ID: vm.nextRef}
}

func (vm *VM) resolveRef(ref entities.FunctionRef) (*lua.LFunction, error) {
	if ref.Handle != vm.id {
		return nil, &errors.MarshalError{
			Kind:     errors.UnsupportedType,
			Received: "function",
			Message:  fmt.Sprintf("%s belongs to another vm", ref),
		}
	}
	if vm.Closed() {
		return nil, vm.staleError()
	}
	fn, ok := vm.refs[ref.ID]
	if !ok {
		return nil, &errors.MarshalError{Kind: errors.StaleReference, Message: fmt.Sprintf("%s was released", ref)}
	}
	return fn, nil
}

// ReleaseRef forgets a reference so the function can be collected. It reports
// whether the reference was live.
func (vm *VM) ReleaseRef(ref entities.FunctionRef) bool {
	if ref.Handle != vm.id || vm.Closed() {
		return false
	}
	fn, ok := vm.refs[ref.ID]
	if !ok {
		return false
	}
	delete(vm.refs, ref.ID)
	delete(vm.refIDs, fn)
	return true
}
