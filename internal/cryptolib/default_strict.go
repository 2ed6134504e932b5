//go:build keyless_strict

package cryptolib

import (
	"sync"

	"github.com/glinharesb/keyless/internal/symbols"
)

// Default returns the process resolver: strict in this build. Symbols()
// references every entry point directly, so an absent one fails to link.
var Default = sync.OnceValue(func() symbols.Resolver {
	return symbols.MustStrict(symbols.NewTable(Symbols()), Required)
})
