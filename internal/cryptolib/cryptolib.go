// Package cryptolib is the provider's view of the underlying crypto
// library: a fixed set of named entry points reached through a
// symbols.Resolver, with typed wrappers that record every resolution
// into the caller's diag.Channel.
package cryptolib

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"fmt"
	"math/big"
	"runtime"
	"strings"

	"github.com/glinharesb/keyless/internal/diag"
	"github.com/glinharesb/keyless/internal/symbols"
)

// Symbol names.
const (
	SymRandBytes = "rand.Read"
	SymCleanse   = "mem.Cleanse"
	SymBNCmp     = "bn.Cmp"
	SymDigest    = "digest.Sum"
)

// Required lists every symbol a strict build must carry.
var Required = []string{SymRandBytes, SymCleanse, SymBNCmp, SymDigest}

type (
	RandBytesFunc func(dst []byte) error
	CleanseFunc   func(b []byte)
	BNCmpFunc     func(a, b []byte) int
	DigestFunc    func(alg string, data []byte) ([]byte, error)
)

// Symbols returns the standard-library implementations keyed by name.
func Symbols() map[string]any {
	return map[string]any{
		SymRandBytes: RandBytesFunc(randBytes),
		SymCleanse:   CleanseFunc(cleanse),
		SymBNCmp:     BNCmpFunc(bnCmp),
		SymDigest:    DigestFunc(digest),
	}
}

func randBytes(dst []byte) error {
	_, err := rand.Read(dst)
	return err
}

//go:noinline
func cleanse(b []byte) {
	if len(b) == 0 {
		return
	}
	subtle.ConstantTimeCopy(1, b, make([]byte, len(b)))
	runtime.KeepAlive(&b)
}

// bnCmp compares two big-endian unsigned integers numerically.
func bnCmp(a, b []byte) int {
	return new(big.Int).SetBytes(a).Cmp(new(big.Int).SetBytes(b))
}

func digest(alg string, data []byte) ([]byte, error) {
	switch strings.ToUpper(alg) {
	case "SHA256", "SHA2-256":
		sum := sha256.Sum256(data)
		return sum[:], nil
	case "SHA384", "SHA2-384":
		sum := sha512.Sum384(data)
		return sum[:], nil
	case "SHA512", "SHA2-512":
		sum := sha512.Sum512(data)
		return sum[:], nil
	default:
		return nil, fmt.Errorf("unsupported digest %q", alg)
	}
}

// Lib calls library entry points through a resolver.
type Lib struct {
	r symbols.Resolver
}

// New returns a Lib backed by r, or by Default() when r is nil.
func New(r symbols.Resolver) *Lib {
	if r == nil {
		r = Default()
	}
	return &Lib{r: r}
}

func (l *Lib) Resolver() symbols.Resolver { return l.r }

// RandBytes fills dst with cryptographically secure random bytes.
func (l *Lib) RandBytes(ch *diag.Channel, dst []byte) error {
	fn, rec := symbols.Lookup[RandBytesFunc](l.r, SymRandBytes)
	ch.Set(rec)
	if !rec.Resolved {
		return fmt.Errorf("%w: %s", symbols.ErrMissingSymbol, SymRandBytes)
	}
	return fn(dst)
}

// Cleanse scrubs b. Without the library symbol it falls back to clear so
// buffers are never released unscrubbed; the fallback is still recorded.
func (l *Lib) Cleanse(ch *diag.Channel, b []byte) {
	fn, rec := symbols.Lookup[CleanseFunc](l.r, SymCleanse)
	ch.Set(rec)
	if !rec.Resolved {
		clear(b)
		return
	}
	fn(b)
}

// BNCmp compares two big-endian magnitudes.
func (l *Lib) BNCmp(ch *diag.Channel, a, b []byte) (int, error) {
	fn, rec := symbols.Lookup[BNCmpFunc](l.r, SymBNCmp)
	ch.Set(rec)
	if !rec.Resolved {
		return 0, fmt.Errorf("%w: %s", symbols.ErrMissingSymbol, SymBNCmp)
	}
	return fn(a, b), nil
}

// Digest hashes data with the named algorithm.
func (l *Lib) Digest(ch *diag.Channel, alg string, data []byte) ([]byte, error) {
	fn, rec := symbols.Lookup[DigestFunc](l.r, SymDigest)
	ch.Set(rec)
	if !rec.Resolved {
		return nil, fmt.Errorf("%w: %s", symbols.ErrMissingSymbol, SymDigest)
	}
	return fn(alg, data)
}
