//go:build lua53

package engine

var profile = Profile{
	Name:            "lua53",
	Version:         "Lua 5.3",
	MaxExactInteger: maxExactInteger,
	IntegerSubtype:  true,
}

func installProfile(vm *VM) {
	setVersion(vm.L, profile.Version)
	install52(vm)
	install53(vm)
}
