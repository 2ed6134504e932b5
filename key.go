package keyless

import (
	"crypto"
	"crypto/rsa"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/glinharesb/keyless/internal/diag"
	"github.com/glinharesb/keyless/internal/keymgmt"
	"github.com/glinharesb/keyless/internal/sigalg"
)

var (
	ErrKeyClosed        = errors.New("keyless: key closed")
	ErrNoSignCallback   = errors.New("keyless: no sign callback registered")
	ErrRemoteSign       = errors.New("keyless: remote sign failed")
	ErrDecryptOptions   = errors.New("keyless: unsupported decrypt options")
	ErrDigestLength     = errors.New("keyless: digest length does not match hash")
	ErrSignatureTooLong = errors.New("keyless: remote signature exceeds key maximum")
)

// Key is a private key whose operations run at the custodian. It
// implements crypto.Signer and, for RSA keys, crypto.Decrypter.
type Key struct {
	p   *Provider
	pub crypto.PublicKey
	id  string
	obj *keymgmt.Object
	fns *keymgmt.Functions

	closeOnce sync.Once
}

func newKey(p *Provider, pub crypto.PublicKey, obj *keymgmt.Object, fns *keymgmt.Functions) *Key {
	return &Key{p: p, pub: pub, id: obj.KeyID(), obj: obj, fns: fns}
}

// acquire holds a reference on the key object for one operation. The
// caller must release it with fns.Free.
func (k *Key) acquire() (*keymgmt.Object, error) {
	obj := k.fns.Dup(k.obj)
	if obj == nil {
		return nil, ErrKeyClosed
	}
	return obj, nil
}

// ID returns the identifier the key is registered under.
func (k *Key) ID() string { return k.id }

func (k *Key) Public() crypto.PublicKey { return k.pub }

// Equal reports whether x is a keyless key with the same public
// material.
func (k *Key) Equal(x crypto.PrivateKey) bool {
	o, ok := x.(*Key)
	if !ok {
		return false
	}
	a, err := k.acquire()
	if err != nil {
		return false
	}
	defer k.fns.Free(a)
	b, err := o.acquire()
	if err != nil {
		return false
	}
	defer o.fns.Free(b)
	return k.fns.Match(a, b, keymgmt.SelectPublicKey)
}

// Params reports the key parameters: size bounds, security strength,
// default digest and identifier.
func (k *Key) Params() (map[string]any, error) {
	obj, err := k.acquire()
	if err != nil {
		return nil, err
	}
	defer k.fns.Free(obj)
	return k.fns.GetParams(obj)
}

// Sign asks the custodian to sign digest. rand is unused; the custodian
// supplies its own randomness.
func (k *Key) Sign(_ io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	obj, err := k.acquire()
	if err != nil {
		return nil, err
	}
	defer k.fns.Free(obj)

	alg, err := sigalg.Name(k.pub, opts)
	if err != nil {
		return nil, err
	}
	if h := opts.HashFunc(); len(digest) != h.Size() {
		return nil, fmt.Errorf("%w: %d bytes for %v", ErrDigestLength, len(digest), h)
	}

	id := obj.KeyID()
	cb := k.p.ctx.Registry().LookupSign(id)
	if cb == nil {
		return nil, fmt.Errorf("%w for key %q", ErrNoSignCallback, id)
	}

	k.p.log.Debug("keyless sign", "key_id", id, "algorithm", alg, "digest_len", len(digest))
	remote, err := cb(id, alg, digest)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRemoteSign, err)
	}
	if len(remote) == 0 {
		return nil, fmt.Errorf("%w: empty signature", ErrRemoteSign)
	}

	params, err := k.fns.GetParams(obj, keymgmt.ParamMaxSize)
	if err != nil {
		return nil, err
	}
	if limit, ok := params[keymgmt.ParamMaxSize].(int); ok && len(remote) > limit {
		return nil, fmt.Errorf("%w: %d > %d", ErrSignatureTooLong, len(remote), limit)
	}

	sig := append([]byte(nil), remote...)
	var ch diag.Channel
	k.p.ctx.Lib().Cleanse(&ch, remote)
	diag.Check(k.p.log, ch.Get(), "keyless sign")
	return sig, nil
}

// Decrypt recovers a TLS RSA pre-master secret. opts must be nil or an
// *rsa.PKCS1v15DecryptOptions with SessionKeyLen 0 or 48.
//
// The result is always 48 bytes and no error is returned for a bad
// ciphertext or a failed remote call: the output is then random, as
// crypto/tls expects for RSA key exchange.
func (k *Key) Decrypt(_ io.Reader, msg []byte, opts crypto.DecrypterOpts) ([]byte, error) {
	obj, err := k.acquire()
	if err != nil {
		return nil, err
	}
	defer k.fns.Free(obj)

	switch o := opts.(type) {
	case nil:
	case *rsa.PKCS1v15DecryptOptions:
		if o.SessionKeyLen != 0 && o.SessionKeyLen != 48 {
			return nil, fmt.Errorf("%w: session key length %d", ErrDecryptOptions, o.SessionKeyLen)
		}
	default:
		return nil, fmt.Errorf("%w: %T", ErrDecryptOptions, opts)
	}

	a, _, ok := k.p.loader.Fetch(keymgmt.OpAsymCipher, "RSA")
	if !ok {
		return nil, fmt.Errorf("%w: asym-cipher RSA", ErrNoAlgorithm)
	}
	fns := a.AsymCipher

	ctx := fns.NewCtx()
	defer fns.FreeCtx(ctx)
	if err := fns.DecryptInit(ctx, obj); err != nil {
		return nil, err
	}

	n, err := fns.Decrypt(ctx, nil, msg)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	if n, err = fns.Decrypt(ctx, out, msg); err != nil {
		return nil, err
	}
	return out[:n], nil
}

// Close releases the key. Later operations fail with ErrKeyClosed.
func (k *Key) Close() error {
	k.closeOnce.Do(func() { k.fns.Free(k.obj) })
	return nil
}
