// Package keyless lets crypto/tls serve certificates whose private keys
// live with a remote custodian.
//
// An embedding application initializes the provider once, registers a
// sign and a decrypt callback per key identifier, and installs the keys
// returned by NewKey or Certificate in its tls.Config. Every private-key
// operation the TLS stack asks for is then forwarded to the callback
// registered for the key.
//
//	p, err := keyless.InitEmbeddedKeylessProvider()
//	...
//	p.RegisterKeylessSignCallback(id, sign)
//	p.RegisterKeylessDecryptCallback(id, decrypt)
//	cert, err := p.Certificate(chain)
package keyless

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/glinharesb/keyless/internal/config"
	"github.com/glinharesb/keyless/internal/keymgmt"
	"github.com/glinharesb/keyless/internal/logging"
	"github.com/glinharesb/keyless/internal/provider"
	"github.com/glinharesb/keyless/internal/registry"
	"github.com/glinharesb/keyless/internal/symbols"
)

var (
	ErrUnsupportedKey = errors.New("keyless: unsupported public key")
	ErrNoAlgorithm    = errors.New("keyless: no provider offers the algorithm")
	ErrEmptyChain     = errors.New("keyless: empty certificate chain")
)

// SignFunc signs digest with the remote key keyID. algorithm is one of
// the names rsa-pkcs1-<hash>, rsa-pss-<hash> or ecdsa-<curve>-<hash>.
// The returned buffer belongs to the provider once returned.
type SignFunc func(keyID, algorithm string, digest []byte) ([]byte, error)

// DecryptFunc applies the raw RSA private-key operation of keyID to
// ciphertext, which is exactly the modulus length. It returns the
// encoded message with its PKCS #1 v1.5 padding intact. The returned
// buffer belongs to the provider once returned.
type DecryptFunc func(keyID string, ciphertext []byte) ([]byte, error)

type options struct {
	log      *slog.Logger
	resolver symbols.Resolver
}

// Option configures InitEmbeddedKeylessProvider.
type Option func(*options)

// WithLogger sets the provider logger. By default diagnostics go to
// stderr when KEYLESS_DEBUG is set and are discarded otherwise.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) { o.log = log }
}

func withResolver(r symbols.Resolver) Option {
	return func(o *options) { o.resolver = r }
}

// Provider is the embedded keyless provider.
type Provider struct {
	loader *provider.Loader
	ctx    *provider.Context
	log    *slog.Logger
}

// InitEmbeddedKeylessProvider registers the keyless provider as a
// builtin, loads it and then the default provider. It fails if either
// load fails, and while another Provider is open.
func InitEmbeddedKeylessProvider(opts ...Option) (*Provider, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logging.New(config.Debug())
	}

	p := &Provider{loader: provider.NewLoader(), log: o.log}
	err := p.loader.AddBuiltin(provider.Name, func() (provider.Dispatcher, error) {
		c, err := provider.New(provider.WithLogger(o.log), provider.WithResolver(o.resolver))
		if err != nil {
			return nil, err
		}
		p.ctx = c
		return c, nil
	})
	if err != nil {
		return nil, err
	}

	if _, err := p.loader.Load(provider.Name); err != nil {
		o.log.Debug("failed to load keyless provider", "error", err)
		return nil, err
	}
	if _, err := p.loader.Load(provider.DefaultName); err != nil {
		o.log.Debug("failed to load default provider", "error", err)
		p.loader.Close()
		return nil, err
	}
	return p, nil
}

// RegisterKeylessSignCallback binds cb to keyID, replacing any earlier
// sign callback for it.
func (p *Provider) RegisterKeylessSignCallback(keyID string, cb SignFunc) error {
	var fn registry.SignFunc
	if cb != nil {
		fn = registry.SignFunc(cb)
	}
	return p.ctx.RegisterSign(keyID, fn)
}

// RegisterKeylessDecryptCallback binds cb to keyID, replacing any
// earlier decrypt callback for it.
func (p *Provider) RegisterKeylessDecryptCallback(keyID string, cb DecryptFunc) error {
	var fn registry.DecryptFunc
	if cb != nil {
		fn = registry.DecryptFunc(cb)
	}
	return p.ctx.RegisterDecrypt(keyID, fn)
}

// NewKey returns a keyless key for pub, an *rsa.PublicKey or an
// *ecdsa.PublicKey, whose private half the custodian knows as keyID.
func (p *Provider) NewKey(pub crypto.PublicKey, keyID string) (*Key, error) {
	var (
		alg    string
		params keymgmt.Params
	)
	switch k := pub.(type) {
	case *rsa.PublicKey:
		alg = "RSA"
		params = keymgmt.Params{
			keymgmt.ParamRSAN: k.N,
			keymgmt.ParamRSAE: big.NewInt(int64(k.E)),
		}
	case *ecdsa.PublicKey:
		point, err := k.ECDH()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedKey, err)
		}
		alg = "EC"
		params = keymgmt.Params{
			keymgmt.ParamPubKey:    point.Bytes(),
			keymgmt.ParamGroupName: k.Curve.Params().Name,
		}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, pub)
	}
	if keyID != "" {
		params[keymgmt.ParamKeyID] = keyID
	}

	a, _, ok := p.loader.Fetch(keymgmt.OpKeyMgmt, alg)
	if !ok {
		return nil, fmt.Errorf("%w: keymgmt %s", ErrNoAlgorithm, alg)
	}
	fns := a.KeyMgmt
	obj := fns.New()
	if err := fns.Import(obj, keymgmt.SelectPublicKey, params); err != nil {
		fns.Free(obj)
		return nil, fmt.Errorf("import %s key: %w", alg, err)
	}
	return newKey(p, pub, obj, fns), nil
}

// Certificate builds a tls.Certificate for chain, leaf first, whose
// private key is the keyless key identified by CertKeyID of the leaf.
func (p *Provider) Certificate(chain [][]byte) (tls.Certificate, error) {
	if len(chain) == 0 {
		return tls.Certificate{}, ErrEmptyChain
	}
	leaf, err := x509.ParseCertificate(chain[0])
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("parse leaf: %w", err)
	}
	id, err := CertKeyID(chain[0])
	if err != nil {
		return tls.Certificate{}, err
	}
	key, err := p.NewKey(leaf.PublicKey, id)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: chain, PrivateKey: key, Leaf: leaf}, nil
}

// Close tears the provider down. Callbacks are dropped; keys created
// from the provider stop working.
func (p *Provider) Close() error {
	return p.loader.Close()
}
