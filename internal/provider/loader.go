package provider

import (
	"errors"
	"fmt"
	"sync"

	"github.com/glinharesb/keyless/internal/keymgmt"
)

// DefaultName names the builtin provider that serves every key the Go
// standard library handles on its own. Its tables are empty.
const DefaultName = "default"

var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrBuiltinExists   = errors.New("provider builtin already added")
)

// Dispatcher is a loaded provider.
type Dispatcher interface {
	Query(op keymgmt.Operation) []Algorithm
	Close() error
}

// InitFunc creates a provider instance when it is first loaded.
type InitFunc func() (Dispatcher, error)

type defaultProvider struct{}

func (defaultProvider) Query(keymgmt.Operation) []Algorithm { return nil }

func (defaultProvider) Close() error { return nil }

// Loader keeps the builtin providers and the ones loaded from them.
// Loaded providers are consulted in load order.
type Loader struct {
	mu       sync.Mutex
	builtins map[string]InitFunc
	loaded   map[string]Dispatcher
	order    []string
}

func NewLoader() *Loader {
	return &Loader{
		builtins: map[string]InitFunc{
			DefaultName: func() (Dispatcher, error) { return defaultProvider{}, nil },
		},
		loaded: make(map[string]Dispatcher),
	}
}

// AddBuiltin makes init loadable under name.
func (l *Loader) AddBuiltin(name string, init InitFunc) error {
	if name == "" || init == nil {
		return errors.New("add builtin: empty name or nil init")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.builtins[name]; ok {
		return fmt.Errorf("%w: %s", ErrBuiltinExists, name)
	}
	l.builtins[name] = init
	return nil
}

// Load returns the provider called name, initializing it on first use.
func (l *Loader) Load(name string) (Dispatcher, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if d, ok := l.loaded[name]; ok {
		return d, nil
	}
	init, ok := l.builtins[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	d, err := init()
	if err != nil {
		return nil, fmt.Errorf("load provider %s: %w", name, err)
	}
	l.loaded[name] = d
	l.order = append(l.order, name)
	return d, nil
}

// Fetch finds the first loaded provider offering alg for op.
func (l *Loader) Fetch(op keymgmt.Operation, alg string) (Algorithm, string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, name := range l.order {
		for _, a := range l.loaded[name].Query(op) {
			if a.Matches(alg) {
				return a, name, true
			}
		}
	}
	return Algorithm{}, "", false
}

// Unload closes and forgets the provider called name.
func (l *Loader) Unload(name string) error {
	l.mu.Lock()
	d, ok := l.loaded[name]
	if ok {
		delete(l.loaded, name)
		for i, n := range l.order {
			if n == name {
				l.order = append(l.order[:i], l.order[i+1:]...)
				break
			}
		}
	}
	l.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return d.Close()
}

// Close unloads every provider in reverse load order.
func (l *Loader) Close() error {
	l.mu.Lock()
	order := append([]string(nil), l.order...)
	l.mu.Unlock()

	var errs []error
	for i := len(order) - 1; i >= 0; i-- {
		if err := l.Unload(order[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
