package hsm

import (
	"crypto"
	"errors"

	"github.com/glinharesb/keyless/internal/keystore"
)

var (
	ErrKeyMismatch       = errors.New("algorithm does not match key")
	ErrDigestLength      = errors.New("digest length does not match hash")
	ErrDecryptNotAllowed = errors.New("key cannot decrypt")
)

// Provider abstracts the private-key operations behind the custodian.
// Real implementations would delegate to PKCS#11 or cloud KMS.
//
// algorithm is a signature algorithm name such as "rsa-pss-sha256".
// digest is already hashed. Decrypt is the raw RSA operation: the result
// keeps its padding and is left-padded to the modulus length.
type Provider interface {
	GenerateKey(alg keystore.KeyAlgorithm) (crypto.Signer, error)
	Sign(key crypto.Signer, algorithm string, digest []byte) ([]byte, error)
	Verify(pub crypto.PublicKey, algorithm string, digest, signature []byte) bool
	Decrypt(key crypto.Signer, ciphertext []byte) ([]byte, error)
}
