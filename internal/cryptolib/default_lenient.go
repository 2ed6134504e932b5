//go:build !keyless_strict

package cryptolib

import (
	"sync"

	"github.com/glinharesb/keyless/internal/symbols"
)

// weak holds the optional entry points. Embedders may Register
// replacements or remove entries before the first provider is created.
var weak = symbols.NewTable(Symbols())

// Weak returns the process-wide optional symbol table.
func Weak() *symbols.Table { return weak }

// Default returns the process resolver: lenient in this build.
var Default = sync.OnceValue(func() symbols.Resolver {
	return symbols.NewLenient(weak)
})
