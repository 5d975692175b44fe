//go:build lua54

package engine

var profile = Profile{
	Name:            "lua54",
	Version:         "Lua 5.4",
	MaxExactInteger: maxExactInteger,
	IntegerSubtype:  true,
}

func installProfile(vm *VM) {
	setVersion(vm.L, profile.Version)
	install52(vm)
	install53(vm)
	install54(vm)
}
