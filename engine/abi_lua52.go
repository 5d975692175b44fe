//go:build lua52

package engine

var profile = Profile{
	Name:            "lua52",
	Version:         "Lua 5.2",
	MaxExactInteger: maxExactInteger,
}

func installProfile(vm *VM) {
	setVersion(vm.L, profile.Version)
	install52(vm)
}
