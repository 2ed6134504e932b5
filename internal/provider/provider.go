// Package provider holds the keyless provider context: the callback
// registry, the key manager and the decrypt engine, plus the algorithm
// tables the host queries per operation.
//
// At most one Context is live per process. A second New fails until the
// first is closed.
package provider

import (
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/glinharesb/keyless/internal/asymcipher"
	"github.com/glinharesb/keyless/internal/cryptolib"
	"github.com/glinharesb/keyless/internal/diag"
	"github.com/glinharesb/keyless/internal/keymgmt"
	"github.com/glinharesb/keyless/internal/registry"
	"github.com/glinharesb/keyless/internal/symbols"
)

// Name is the name the provider registers under.
const Name = "keyless"

var (
	ErrAlreadyActive = errors.New("keyless provider already active")
	ErrClosed        = errors.New("keyless provider closed")
)

var active atomic.Bool

// Algorithm is one entry of a provider's per-operation table.
type Algorithm struct {
	// Names is a colon-separated list of names the algorithm answers to.
	Names       string
	Properties  string
	Description string

	KeyMgmt    *keymgmt.Functions
	AsymCipher *asymcipher.Functions
}

// Matches reports whether name is one of the algorithm's names. The
// comparison is case-insensitive.
func (a Algorithm) Matches(name string) bool {
	for n := range strings.SplitSeq(a.Names, ":") {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

// Option configures a Context.
type Option func(*Context)

func WithLogger(log *slog.Logger) Option {
	return func(c *Context) { c.log = log }
}

// WithResolver replaces the process default resolver.
func WithResolver(r symbols.Resolver) Option {
	return func(c *Context) { c.resolver = r }
}

// Context is the live provider.
type Context struct {
	log      *slog.Logger
	resolver symbols.Resolver

	lib    *cryptolib.Lib
	reg    *registry.Registry
	keys   *keymgmt.Manager
	cipher *asymcipher.Engine
	algs   map[keymgmt.Operation][]Algorithm

	closed atomic.Bool
}

// New creates the provider context. It fails with ErrAlreadyActive while
// another context is live.
func New(opts ...Option) (*Context, error) {
	if !active.CompareAndSwap(false, true) {
		return nil, ErrAlreadyActive
	}

	c := &Context{}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = slog.New(slog.DiscardHandler)
	}
	c.lib = cryptolib.New(c.resolver)

	snapshot := diag.OK
	for _, name := range cryptolib.Required {
		if _, rec := c.lib.Resolver().Resolve(name); !diag.Check(c.log, rec, "provider init") && snapshot.Resolved {
			snapshot = rec
		}
	}

	c.reg = registry.New()
	c.keys = keymgmt.NewManager(c.lib, c.log, snapshot)
	c.cipher = asymcipher.NewEngine(c.lib, c.log, c.reg)

	rsaKM, ecKM := c.keys.RSAFunctions(), c.keys.ECFunctions()
	ac := c.cipher.Functions()
	c.algs = map[keymgmt.Operation][]Algorithm{
		keymgmt.OpKeyMgmt: {
			{Names: "RSA:rsaEncryption:1.2.840.113549.1.1.1", Properties: "provider=keyless", Description: "Keyless RSA", KeyMgmt: &rsaKM},
			{Names: "EC:id-ecPublicKey:1.2.840.10045.2.1", Properties: "provider=keyless", Description: "Keyless EC", KeyMgmt: &ecKM},
		},
		keymgmt.OpAsymCipher: {
			{Names: "RSA:rsaEncryption:1.2.840.113549.1.1.1", Properties: "provider=keyless", Description: "Keyless RSA Decrypt (remote)", AsymCipher: &ac},
		},
	}

	c.log.Debug("provider initialized", "resolver", c.lib.Resolver().Mode().String())
	return c, nil
}

// Query returns the algorithms the provider offers for op. Signatures
// are produced by the sign callbacks directly and have no table.
func (c *Context) Query(op keymgmt.Operation) []Algorithm {
	if c.closed.Load() {
		return nil
	}
	return c.algs[op]
}

func (c *Context) Logger() *slog.Logger { return c.log }

func (c *Context) Lib() *cryptolib.Lib { return c.lib }

func (c *Context) Registry() *registry.Registry { return c.reg }

func (c *Context) Keys() *keymgmt.Manager { return c.keys }

func (c *Context) Cipher() *asymcipher.Engine { return c.cipher }

// RegisterSign binds a sign callback to keyID.
func (c *Context) RegisterSign(keyID string, cb registry.SignFunc) error {
	if c.closed.Load() {
		return ErrClosed
	}
	return c.reg.RegisterSign(keyID, cb)
}

// RegisterDecrypt binds a decrypt callback to keyID.
func (c *Context) RegisterDecrypt(keyID string, cb registry.DecryptFunc) error {
	if c.closed.Load() {
		return ErrClosed
	}
	return c.reg.RegisterDecrypt(keyID, cb)
}

// Close clears the registry and releases the process slot. It is safe to
// call more than once.
func (c *Context) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.reg.Clear()
	active.Store(false)
	c.log.Debug("provider torn down")
	return nil
}
