// Package sigalg maps crypto.Signer requests to the algorithm names sent
// to a remote signer, and back.
//
// Names have the forms rsa-pkcs1-<hash>, rsa-pss-<hash> and
// ecdsa-<curve>-<hash>, for example "ecdsa-secp256r1-sha256".
package sigalg

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnsupportedKey  = errors.New("unsupported public key type")
	ErrUnsupportedHash = errors.New("unsupported hash")
	ErrUnknownName     = errors.New("unknown signature algorithm name")
)

type Scheme int

const (
	RSAPKCS1 Scheme = iota + 1
	RSAPSS
	ECDSA
)

func (s Scheme) String() string {
	switch s {
	case RSAPKCS1:
		return "rsa-pkcs1"
	case RSAPSS:
		return "rsa-pss"
	case ECDSA:
		return "ecdsa"
	default:
		return "unknown"
	}
}

// Algorithm is a parsed algorithm name.
type Algorithm struct {
	Scheme Scheme
	Hash   crypto.Hash
	// Curve is set for ECDSA only.
	Curve string
}

func (a Algorithm) String() string {
	h := hashNames[a.Hash]
	if a.Scheme == ECDSA {
		return fmt.Sprintf("ecdsa-%s-%s", a.Curve, h)
	}
	return a.Scheme.String() + "-" + h
}

var hashNames = map[crypto.Hash]string{
	crypto.SHA1:   "sha1",
	crypto.SHA256: "sha256",
	crypto.SHA384: "sha384",
	crypto.SHA512: "sha512",
}

var curveNames = map[string]elliptic.Curve{
	"secp256r1": elliptic.P256(),
	"secp384r1": elliptic.P384(),
	"secp521r1": elliptic.P521(),
}

// CurveName returns the name used for c, or "" if it is not supported.
func CurveName(c elliptic.Curve) string {
	for name, curve := range curveNames {
		if curve == c {
			return name
		}
	}
	return ""
}

// Curve returns the curve called name.
func Curve(name string) (elliptic.Curve, bool) {
	c, ok := curveNames[name]
	return c, ok
}

// For returns the algorithm that signing with pub under opts selects.
func For(pub crypto.PublicKey, opts crypto.SignerOpts) (Algorithm, error) {
	h := opts.HashFunc()
	if _, ok := hashNames[h]; !ok {
		return Algorithm{}, fmt.Errorf("%w: %v", ErrUnsupportedHash, h)
	}

	switch k := pub.(type) {
	case *rsa.PublicKey:
		if _, ok := opts.(*rsa.PSSOptions); ok {
			return Algorithm{Scheme: RSAPSS, Hash: h}, nil
		}
		return Algorithm{Scheme: RSAPKCS1, Hash: h}, nil
	case *ecdsa.PublicKey:
		curve := CurveName(k.Curve)
		if curve == "" {
			return Algorithm{}, fmt.Errorf("%w: curve %s", ErrUnsupportedKey, k.Curve.Params().Name)
		}
		return Algorithm{Scheme: ECDSA, Hash: h, Curve: curve}, nil
	default:
		return Algorithm{}, fmt.Errorf("%w: %T", ErrUnsupportedKey, pub)
	}
}

// Name is For followed by String.
func Name(pub crypto.PublicKey, opts crypto.SignerOpts) (string, error) {
	a, err := For(pub, opts)
	if err != nil {
		return "", err
	}
	return a.String(), nil
}

// Parse reverses Algorithm.String.
func Parse(name string) (Algorithm, error) {
	cut := strings.LastIndexByte(name, '-')
	if cut < 0 {
		return Algorithm{}, fmt.Errorf("%w: %q", ErrUnknownName, name)
	}
	prefix, hashName := name[:cut], name[cut+1:]

	var a Algorithm
	for h, n := range hashNames {
		if n == hashName {
			a.Hash = h
		}
	}
	if a.Hash == 0 {
		return Algorithm{}, fmt.Errorf("%w: %q", ErrUnknownName, name)
	}

	switch prefix {
	case "rsa-pkcs1":
		a.Scheme = RSAPKCS1
	case "rsa-pss":
		a.Scheme = RSAPSS
	default:
		curve, ok := strings.CutPrefix(prefix, "ecdsa-")
		if _, known := curveNames[curve]; !ok || !known {
			return Algorithm{}, fmt.Errorf("%w: %q", ErrUnknownName, name)
		}
		a.Scheme, a.Curve = ECDSA, curve
	}
	return a, nil
}
