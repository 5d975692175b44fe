package host

import (
	"context"
	"fmt"

	"github.com/reglet-dev/reglet-lua/domain/constraint"
	"github.com/reglet-dev/reglet-lua/domain/entities"
	"github.com/reglet-dev/reglet-lua/engine"
	"github.com/reglet-dev/reglet-lua/marshal"
)

// dependSignature is (name, request, args...).
var dependSignature = entities.Signature{
	Params:   []entities.Type{entities.TypeString, entities.TypeString, entities.TypeAny},
	Variadic: true,
}

// versionedSignature is (name, version, request, args...).
var versionedSignature = entities.Signature{
	Params:   []entities.Type{entities.TypeString, entities.TypeString, entities.TypeString, entities.TypeAny},
	Variadic: true,
}

// bindAPI installs the api table that lets a plugin call requests of the
// plugins it depends on.
//
// call_depend and call_optional_depend return every result of the request.
// call_function_depend and call_function_optional_depend also take the exact
// version the dependency must be loaded at, and return only the first result.
func (m *Manager) bindAPI(vm *engine.VM, p *Plugin) error {
	natives := []struct {
		name string
		cb   engine.Callback
	}{
		{"api.call_depend", m.dependCall(p, false)},
		{"api.call_optional_depend", m.dependCall(p, true)},
		{"api.call_function_depend", m.versionedCall(p, false)},
		{"api.call_function_optional_depend", m.versionedCall(p, true)},
	}
	for _, n := range natives {
		if err := vm.RegisterNative(n.name, -1, n.cb); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) dependCall(p *Plugin, optional bool) engine.Callback {
	fn := "api.call_depend"
	if optional {
		fn = "api.call_optional_depend"
	}

	return func(ctx context.Context, args []entities.Value) ([]entities.Value, error) {
		if err := marshal.CheckSignature(fn, dependSignature, args); err != nil {
			return nil, err
		}
		if len(args) < 2 {
			return nil, fmt.Errorf("%s: expected plugin name and request", fn)
		}
		target, _ := args[0].AsString()
		request, _ := args[1].AsString()

		if err := checkDeclared(fn, p, target, optional); err != nil {
			return nil, err
		}

		if optional {
			if dep := m.lookup(target); dep == nil || !dep.State().Loaded() {
				return []entities.Value{entities.Bool(false)}, nil
			}
		}

		results, err := m.Dispatch(ctx, target, request, args[2:]...)
		if err != nil {
			return nil, err
		}
		if optional {
			return append([]entities.Value{entities.Bool(true)}, results...), nil
		}
		return results, nil
	}
}

func (m *Manager) versionedCall(p *Plugin, optional bool) engine.Callback {
	fn := "api.call_function_depend"
	if optional {
		fn = "api.call_function_optional_depend"
	}

	return func(ctx context.Context, args []entities.Value) ([]entities.Value, error) {
		if err := marshal.CheckSignature(fn, versionedSignature, args); err != nil {
			return nil, err
		}
		if len(args) < 3 {
			return nil, fmt.Errorf("%s: expected plugin name, version and request", fn)
		}
		target, _ := args[0].AsString()
		rawVersion, _ := args[1].AsString()
		request, _ := args[2].AsString()

		version, err := constraint.ParseVersion(rawVersion)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fn, err)
		}
		if err := checkDeclared(fn, p, target, optional); err != nil {
			return nil, err
		}

		dep := m.lookup(target)
		present := dep != nil && dep.State().Loaded() && dep.manifest.PluginVersion().Compare(version) == 0
		if !present {
			if optional {
				return []entities.Value{entities.Bool(false), entities.Nil()}, nil
			}
			return nil, fmt.Errorf("%s: plugin %q is not loaded at version %s", fn, target, version)
		}

		results, err := m.Dispatch(ctx, target, request, args[3:]...)
		if err != nil {
			return nil, err
		}
		first := entities.Nil()
		if len(results) > 0 {
			first = results[0]
		}
		if optional {
			return []entities.Value{entities.Bool(true), first}, nil
		}
		return []entities.Value{first}, nil
	}
}

// checkDeclared rejects calls to the plugin itself and to plugins it does not
// declare with the matching kind of dependency.
func checkDeclared(fn string, p *Plugin, target string, optional bool) error {
	if target == p.name {
		return fmt.Errorf("%s: plugin %q cannot call itself", fn, target)
	}
	declaredOptional, declared := p.manifest.DependsOn(target)
	if !declared || declaredOptional != optional {
		kind := "dependency"
		if optional {
			kind = "optional dependency"
		}
		return fmt.Errorf("%s: %q is not declared as a %s of %q", fn, target, kind, p.name)
	}
	return nil
}
