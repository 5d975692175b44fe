package engine

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/reglet-dev/reglet-lua/domain/entities"
)

// Exports holds the requests a source unit returned, in declaration order.
type Exports struct {
	refs     map[string]entities.FunctionRef
	requests []entities.ScriptRequestDescriptor
}

// Requests returns the exported request descriptors in declaration order.
func (e *Exports) Requests() []entities.ScriptRequestDescriptor {
	out := make([]entities.ScriptRequestDescriptor, len(e.requests))
	copy(out, e.requests)
	return out
}

// Lookup returns the function exported under name.
func (e *Exports) Lookup(name string) (entities.FunctionRef, bool) {
	ref, ok := e.refs[name]
	return ref, ok
}

// Len returns the number of exported requests.
func (e *Exports) Len() int { return len(e.requests) }

// collectExports scans the sequence returned by a source unit for entries of the
// shape {name = string, inputs = {string...}, func = function}. Entries that do
// not match are skipped; a repeated name keeps its first entry.
func (vm *VM) collectExports(ret lua.LValue) *Exports {
	exports := &Exports{refs: make(map[string]entities.FunctionRef)}

	list, ok := ret.(*lua.LTable)
	if !ok {
		if ret != lua.LNil {
			vm.cfg.logger.Debug("source unit returned a non-table value", "name", vm.cfg.name, "type", ret.Type().String())
		}
		return exports
	}

	for i := 1; i <= list.Len(); i++ {
		entry, ok := list.RawGetInt(i).(*lua.LTable)
		if !ok {
			continue
		}

		name, ok := entry.RawGetString("name").(lua.LString)
		if !ok || name == "" {
			continue
		}
		fn, ok := entry.RawGetString("func").(*lua.LFunction)
		if !ok {
			continue
		}
		inputs, ok := exportInputs(entry.RawGetString("inputs"))
		if !ok {
			vm.cfg.logger.Debug("skipping export with malformed inputs", "name", vm.cfg.name, "request", string(name))
			continue
		}

		if _, dup := exports.refs[string(name)]; dup {
			vm.cfg.logger.Debug("skipping duplicate export", "name", vm.cfg.name, "request", string(name))
			continue
		}
		exports.refs[string(name)] = vm.refFor(fn)
		exports.requests = append(exports.requests, entities.ScriptRequestDescriptor{
			Name:   string(name),
			Inputs: inputs,
		})
	}
	return exports
}

func exportInputs(lv lua.LValue) ([]string, bool) {
	if lv == lua.LNil {
		return nil, true
	}
	tbl, ok := lv.(*lua.LTable)
	if !ok {
		return nil, false
	}
	inputs := make([]string, 0, tbl.Len())
	for i := 1; i <= tbl.Len(); i++ {
		s, ok := tbl.RawGetInt(i).(lua.LString)
		if !ok {
			return nil, false
		}
		inputs = append(inputs, string(s))
	}
	return inputs, true
}
