// Package asymcipher implements RSA decryption for keyless keys. The
// private-key operation is delegated to the decrypt callback registered
// for the key; the padding is removed locally in constant time.
//
// Decrypt is shaped for TLS RSA key exchange. Once a callback is found
// it always reports success with a 48-byte result. When the remote call
// fails or the recovered padding is invalid, the result is fresh random
// data that is indistinguishable from a real pre-master secret.
package asymcipher

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/glinharesb/keyless/internal/cryptolib"
	"github.com/glinharesb/keyless/internal/diag"
	"github.com/glinharesb/keyless/internal/keymgmt"
	"github.com/glinharesb/keyless/internal/registry"
)

// PMSLen is the length of a TLS RSA pre-master secret.
const PMSLen = 48

var (
	ErrNoKey       = errors.New("operation context has no key")
	ErrNotRSA      = errors.New("asymmetric cipher requires an RSA key")
	ErrNoModulus   = errors.New("key has no modulus")
	ErrShortBuffer = errors.New("output buffer shorter than a pre-master secret")
	ErrNoCallback  = errors.New("no decrypt callback registered")
)

// Callbacks is the registry view the engine needs.
type Callbacks interface {
	LookupDecrypt(keyID string) registry.DecryptFunc
}

// Engine runs decrypt operations for one provider.
type Engine struct {
	lib *cryptolib.Lib
	log *slog.Logger
	cbs Callbacks
}

func NewEngine(lib *cryptolib.Lib, log *slog.Logger, cbs Callbacks) *Engine {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Engine{lib: lib, log: log, cbs: cbs}
}

// Context is the state of one decrypt operation. It must not be shared
// between goroutines.
type Context struct {
	key *keymgmt.Object
	op  keymgmt.Operation
	ch  diag.Channel
}

// NewCtx returns an uninitialized context.
func (e *Engine) NewCtx() *Context {
	e.log.Debug("asym newctx")
	return &Context{}
}

// FreeCtx releases the context's key reference.
func FreeCtx(c *Context) {
	if c == nil || c.key == nil {
		return
	}
	keymgmt.Free(c.key)
	c.key = nil
}

// DupCtx copies c, taking another reference on its key.
func DupCtx(c *Context) *Context {
	if c == nil {
		return nil
	}
	n := &Context{op: c.op}
	if c.key != nil {
		if n.key = keymgmt.Dup(c.key); n.key == nil {
			return nil
		}
	}
	return n
}

// DecryptInit binds an RSA key to c. Any key bound earlier is released.
func (e *Engine) DecryptInit(c *Context, obj *keymgmt.Object) error {
	if c == nil || obj == nil {
		return ErrNoKey
	}
	if obj.Type() != keymgmt.TypeRSA {
		return fmt.Errorf("%w: got %s", ErrNotRSA, obj.Type())
	}
	if !obj.UpRef() {
		return keymgmt.ErrBadReference
	}
	FreeCtx(c)
	c.key = obj
	c.op = keymgmt.OpAsymCipher
	return nil
}

// Decrypt recovers a pre-master secret from in into out[:PMSLen].
//
// With a nil out it only reports PMSLen. Errors are returned only for
// conditions the caller controls: no key, a short buffer, no registered
// callback, or no random source. Remote and padding failures are not
// errors; out then holds random bytes.
func (e *Engine) Decrypt(c *Context, out, in []byte) (int, error) {
	if out == nil {
		e.log.Debug("asym size query", "len", PMSLen)
		return PMSLen, nil
	}
	if c == nil || c.key == nil {
		return 0, ErrNoKey
	}
	modLen := c.key.ModulusLen()
	if modLen == 0 {
		modLen = c.key.Size()
	}
	if modLen == 0 {
		return 0, ErrNoModulus
	}
	if len(out) < PMSLen {
		return 0, fmt.Errorf("%w: %d < %d", ErrShortBuffer, len(out), PMSLen)
	}
	pms := out[:PMSLen]

	keyID := c.key.KeyID()
	cb := e.cbs.LookupDecrypt(keyID)
	if cb == nil {
		e.log.Debug("decrypt callback not set", "key_id", keyID)
		return 0, fmt.Errorf("%w for key %q", ErrNoCallback, keyID)
	}

	if err := e.lib.RandBytes(&c.ch, pms); err != nil {
		diag.Check(e.log, c.ch.Get(), "asymcipher decrypt")
		return 0, fmt.Errorf("random fallback: %w", err)
	}

	ct := make([]byte, modLen)
	em := make([]byte, modLen)
	defer func() {
		e.lib.Cleanse(&c.ch, ct)
		e.lib.Cleanse(&c.ch, em)
		diag.Check(e.log, c.ch.Get(), "asymcipher decrypt")
	}()

	if len(in) > modLen {
		in = in[len(in)-modLen:]
	}
	copy(ct[modLen-len(in):], in)
	e.log.Debug("asym decrypt", "in_len", len(in), "padded_len", modLen)

	remote, err := cb(keyID, ct)
	if err == nil && len(remote) > 0 && len(remote) <= modLen {
		copy(em[modLen-len(remote):], remote)
		ok := unpadPKCS1v15(pms, em)
		e.log.Debug("asym decrypt done", "remote_len", len(remote), "success", ok)
	} else {
		e.log.Debug("asym decrypt remote failure", "written", len(remote), "error", err)
		unpadPKCS1v15(pms, em)
	}
	if remote != nil {
		e.lib.Cleanse(&c.ch, remote)
	}
	return PMSLen, nil
}

// GetCtxParams reports no parameters; the operation has none.
func GetCtxParams(c *Context, names ...string) (keymgmt.Params, error) {
	return keymgmt.Params{}, nil
}

// SetCtxParams accepts and ignores params.
func SetCtxParams(c *Context, params keymgmt.Params) error {
	return nil
}

func GettableCtxParams() []keymgmt.ParamDescriptor { return nil }

func SettableCtxParams() []keymgmt.ParamDescriptor { return nil }

// Functions is the asymmetric-cipher dispatch table.
type Functions struct {
	NewCtx            func() *Context
	FreeCtx           func(*Context)
	DupCtx            func(*Context) *Context
	DecryptInit       func(*Context, *keymgmt.Object) error
	Decrypt           func(c *Context, out, in []byte) (int, error)
	GetCtxParams      func(c *Context, names ...string) (keymgmt.Params, error)
	SetCtxParams      func(*Context, keymgmt.Params) error
	GettableCtxParams func() []keymgmt.ParamDescriptor
	SettableCtxParams func() []keymgmt.ParamDescriptor
}

func (e *Engine) Functions() Functions {
	return Functions{
		NewCtx:            e.NewCtx,
		FreeCtx:           FreeCtx,
		DupCtx:            DupCtx,
		DecryptInit:       e.DecryptInit,
		Decrypt:           e.Decrypt,
		GetCtxParams:      GetCtxParams,
		SetCtxParams:      SetCtxParams,
		GettableCtxParams: GettableCtxParams,
		SettableCtxParams: SettableCtxParams,
	}
}
