// Package symbols resolves named crypto-library entry points.
//
// Two resolvers share one interface. A StrictResolver is only built when
// every required symbol is present. A LenientResolver resolves lazily and
// reports unresolved names through a diag.Record that call sites must
// check before invoking the symbol.
package symbols

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/glinharesb/keyless/internal/diag"
)

// ErrMissingSymbol is returned when a required entry point is absent.
var ErrMissingSymbol = errors.New("missing crypto symbol")

// Mode identifies the resolution discipline of a Resolver.
type Mode int

const (
	ModeLenient Mode = iota + 1
	ModeStrict
)

func (m Mode) String() string {
	switch m {
	case ModeLenient:
		return "lenient"
	case ModeStrict:
		return "strict"
	default:
		return "unknown"
	}
}

// Resolver maps symbol names to callable references.
type Resolver interface {
	Resolve(name string) (any, diag.Record)
	Mode() Mode
}

// Table is a name to function mapping. It is safe for concurrent use.
type Table struct {
	mu   sync.RWMutex
	syms map[string]any
}

// NewTable returns a table holding the given symbols.
func NewTable(syms map[string]any) *Table {
	t := &Table{syms: make(map[string]any, len(syms))}
	for name, fn := range syms {
		if fn != nil {
			t.syms[name] = fn
		}
	}
	return t
}

// Register adds or replaces a symbol. A nil fn removes it.
func (t *Table) Register(name string, fn any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if fn == nil {
		delete(t.syms, name)
		return
	}
	t.syms[name] = fn
}

func (t *Table) get(name string) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	fn, ok := t.syms[name]
	return fn, ok
}

// Names returns the registered symbol names in sorted order.
func (t *Table) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	names := make([]string, 0, len(t.syms))
	for name := range t.syms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StrictResolver resolves from a snapshot that is known to be complete.
type StrictResolver struct {
	syms map[string]any
}

// NewStrict snapshots table and fails if any required symbol is absent.
func NewStrict(table *Table, required []string) (*StrictResolver, error) {
	r := &StrictResolver{syms: make(map[string]any)}

	var missing []string
	for _, name := range required {
		fn, ok := table.get(name)
		if !ok {
			missing = append(missing, name)
			continue
		}
		r.syms[name] = fn
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingSymbol, strings.Join(missing, ", "))
	}
	for _, name := range table.Names() {
		if _, ok := r.syms[name]; !ok {
			fn, _ := table.get(name)
			r.syms[name] = fn
		}
	}
	return r, nil
}

// MustStrict is like NewStrict but panics on an incomplete table.
func MustStrict(table *Table, required []string) *StrictResolver {
	r, err := NewStrict(table, required)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *StrictResolver) Resolve(name string) (any, diag.Record) {
	fn, ok := r.syms[name]
	if !ok {
		return nil, diag.Missing(name)
	}
	return fn, diag.OK
}

func (r *StrictResolver) Mode() Mode { return ModeStrict }

// LenientResolver resolves against a live table; absence is not an error
// until a caller needs the symbol.
type LenientResolver struct {
	table *Table
}

func NewLenient(table *Table) *LenientResolver {
	return &LenientResolver{table: table}
}

func (r *LenientResolver) Resolve(name string) (any, diag.Record) {
	fn, ok := r.table.get(name)
	if !ok {
		return nil, diag.Missing(name)
	}
	return fn, diag.OK
}

func (r *LenientResolver) Mode() Mode { return ModeLenient }

// Lookup resolves name and asserts it to F. A symbol of the wrong type
// is reported as unresolved.
func Lookup[F any](r Resolver, name string) (F, diag.Record) {
	var zero F
	if r == nil {
		return zero, diag.Missing(name)
	}
	sym, rec := r.Resolve(name)
	if !rec.Resolved {
		return zero, rec
	}
	fn, ok := sym.(F)
	if !ok {
		return zero, diag.Missing(name)
	}
	return fn, rec
}
