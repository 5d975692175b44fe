//go:build !lua52 && !lua53 && !lua54

package engine

var profile = Profile{
	Name:            "lua51",
	Version:         "Lua 5.1",
	MaxExactInteger: maxExactInteger,
}

func installProfile(vm *VM) {
	setVersion(vm.L, profile.Version)
}
