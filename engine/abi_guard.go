//go:build (lua52 && lua53) || (lua52 && lua54) || (lua53 && lua54)

package engine

// Only one ABI profile can be compiled in.
const _ = "engine: build tags lua52, lua53 and lua54 are mutually exclusive" + 1
